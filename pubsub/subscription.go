package pubsub

import (
	"context"
	"sync"
)

// Subscription is the handle returned by Subscribe. Releasing it removes the
// registration, exactly once, however many times it is released.
type Subscription struct {
	manager *Manager
	pattern string
	handler MessageHandler

	// id of the registry entry; owned by the dispatch loop
	id uint64

	once sync.Once
	done chan struct{}
}

func newSubscription(m *Manager, pattern string, handler MessageHandler) *Subscription {
	return &Subscription{
		manager: m,
		pattern: pattern,
		handler: handler,
		done:    make(chan struct{}),
	}
}

// Pattern returns the subscribed pattern
func (s *Subscription) Pattern() string {
	return s.pattern
}

// Unsubscribe releases the subscription. No new handler invocations start
// after it returns. Safe to call from any goroutine, including from inside
// the handler, and safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.manager.release(s)
		close(s.done)
	})
}

// Close releases the subscription and implements io.Closer
func (s *Subscription) Close() error {
	s.Unsubscribe()
	return nil
}

// Done is closed once the subscription has been released and its removal
// enqueued
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// markReleased marks an inert handle without touching the manager
func (s *Subscription) markReleased() {
	s.once.Do(func() {
		close(s.done)
	})
}

func (s *Subscription) isReleased() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// deliver is the handler stored in the registry
func (s *Subscription) deliver(topic, message string) {
	if s.isReleased() {
		return
	}
	s.handler(topic, message)
}

// Scope subscribes, runs fn and releases the subscription when fn returns
// or panics.
func Scope(ctx context.Context, m *Manager, pattern string, handler MessageHandler, fn func(context.Context) error) error {
	sub := m.Subscribe(pattern, handler)
	defer sub.Unsubscribe()
	return fn(ctx)
}

// SubscribeContext subscribes and releases the subscription when ctx is done.
// The watch ends when the manager is closed.
func (m *Manager) SubscribeContext(ctx context.Context, pattern string, handler MessageHandler) *Subscription {
	sub := m.Subscribe(pattern, handler)

	go func() {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
		case <-sub.Done():
		case <-m.ctx.Done():
		}
	}()

	return sub
}
