package pubsub

import "sync"

// MessageHandler receives the topic and decoded text of an inbound message
type MessageHandler func(topic, message string)

// Entry is one registered subscription
type Entry struct {
	ID      uint64
	Pattern string
	Handler MessageHandler
}

// Registry maps subscription patterns to their handler.
//
// There is at most one handler per distinct pattern string. Adding a pattern
// that is already present replaces its handler in place, so iteration order
// is the order in which each pattern was first added. The manager mutates the
// registry only from its dispatch loop; the lock makes snapshots safe to take
// from any goroutine.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]Entry
	nextID  uint64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
	}
}

// Add registers handler for pattern and returns the registration ID.
// replaced is true when a previous handler for the same pattern was dropped.
func (r *Registry) Add(pattern string, handler MessageHandler) (id uint64, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id = r.nextID

	_, replaced = r.entries[pattern]
	if !replaced {
		r.order = append(r.order, pattern)
	}
	r.entries[pattern] = Entry{ID: id, Pattern: pattern, Handler: handler}

	return id, replaced
}

// Remove deletes the registration for pattern. It is a no-op when the
// pattern is absent.
func (r *Registry) Remove(pattern string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(pattern)
}

// RemoveIf deletes the registration for pattern only if it is still the
// registration identified by id.
func (r *Registry) RemoveIf(pattern string, id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[pattern]
	if !ok || entry.ID != id {
		return false
	}
	return r.removeLocked(pattern)
}

func (r *Registry) removeLocked(pattern string) bool {
	if _, ok := r.entries[pattern]; !ok {
		return false
	}
	delete(r.entries, pattern)

	for i, p := range r.order {
		if p == pattern {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Entries returns a snapshot of all registrations in iteration order.
// Later mutations of the registry do not affect the returned slice.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Entry, 0, len(r.order))
	for _, p := range r.order {
		result = append(result, r.entries[p])
	}
	return result
}

// Patterns returns a snapshot of the registered patterns in iteration order
func (r *Registry) Patterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, len(r.order))
	copy(result, r.order)
	return result
}

// Len returns the number of registered patterns
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
