package pubsub

import (
	"context"
	"sync"

	"github.com/c360/busmux/transport"
)

type opKind int

const (
	opSubscribe opKind = iota
	opRelease
	opPublish
	opEvent
	opFlush
	opClose
)

// op is one unit of work for the dispatch loop
type op struct {
	kind    opKind
	sub     *Subscription
	topic   string
	payload []byte
	event   transport.Event
	done    chan struct{}
	ctx     context.Context
}

// mailbox is an unbounded FIFO feeding the dispatch loop. push never blocks,
// which lets handlers running on the loop enqueue more work.
type mailbox struct {
	mu     sync.Mutex
	queue  []op
	closed bool
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

// push appends o and wakes the loop. Returns false once the mailbox is closed.
func (b *mailbox) push(o op) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.queue = append(b.queue, o)
	b.mu.Unlock()

	b.wake()
	return true
}

// closeWith appends a final op and rejects every later push
func (b *mailbox) closeWith(o op) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.queue = append(b.queue, o)
	b.closed = true
	b.mu.Unlock()

	b.wake()
	return true
}

// close rejects every later push
func (b *mailbox) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// drain removes and returns every queued op
func (b *mailbox) drain() []op {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queue
	b.queue = nil
	return q
}

func (b *mailbox) wake() {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}
