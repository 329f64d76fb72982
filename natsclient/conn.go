package natsclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/busmux/errors"
	"github.com/c360/busmux/topic"
	"github.com/c360/busmux/transport"
)

// conn is a NATS connection adapted to transport.Conn. Topics and patterns
// are translated to NATS subjects on the way out and back on the way in.
type conn struct {
	nc           *nats.Conn
	handler      transport.Handler
	logger       *slog.Logger
	drainTimeout time.Duration
	closing      *atomic.Bool

	mu     sync.Mutex
	subs   map[string]*nats.Subscription // keyed by pattern
	closed bool
}

func newConn(nc *nats.Conn, handler transport.Handler, logger *slog.Logger, drainTimeout time.Duration) *conn {
	return &conn{
		nc:           nc,
		handler:      handler,
		logger:       logger,
		drainTimeout: drainTimeout,
		closing:      &atomic.Bool{},
		subs:         make(map[string]*nats.Subscription),
	}
}

// Subscribe subscribes to the subject for pattern. The NATS client restores
// its subscriptions after a reconnect, so subscribing an already subscribed
// pattern is a no-op.
func (c *conn) Subscribe(pattern string) error {
	subject, err := topic.ToNATSSubject(pattern)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.ErrClosed
	}
	if _, exists := c.subs[pattern]; exists {
		return nil
	}

	sub, err := c.nc.Subscribe(subject, func(msg *nats.Msg) {
		c.onMessage(pattern, msg)
	})
	if err != nil {
		return errors.WrapTransient(err, "conn", "Subscribe", fmt.Sprintf("subscribe to %s", subject))
	}

	c.subs[pattern] = sub
	return nil
}

// Unsubscribe removes the subscription for pattern
func (c *conn) Unsubscribe(pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.ErrClosed
	}

	sub, exists := c.subs[pattern]
	if !exists {
		return nil
	}
	delete(c.subs, pattern)

	if err := sub.Unsubscribe(); err != nil {
		return errors.WrapTransient(err, "conn", "Unsubscribe", fmt.Sprintf("unsubscribe from %s", sub.Subject))
	}
	return nil
}

// Publish publishes payload to the subject for topicName
func (c *conn) Publish(topicName string, payload []byte) error {
	subject, err := topic.ToNATSSubject(topicName)
	if err != nil {
		return err
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errors.ErrClosed
	}

	if err := c.nc.Publish(subject, payload); err != nil {
		return errors.WrapTransient(err, "conn", "Publish", fmt.Sprintf("publish to %s", subject))
	}
	return nil
}

// Close drains the connection, bounded by the drain timeout and ctx
func (c *conn) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.subs = nil
	c.mu.Unlock()
	c.closing.Store(true)

	drainTimeout := c.drainTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
			drainTimeout = remaining
		}
	}

	drainDone := make(chan error, 1)
	go func() {
		drainDone <- c.nc.Drain()
	}()

	var drainErr error
	select {
	case err := <-drainDone:
		if err != nil {
			drainErr = errors.Wrap(err, "conn", "Close", "drain connection")
		}
	case <-time.After(drainTimeout):
		drainErr = errors.WrapTransient(
			fmt.Errorf("drain timeout after %v", drainTimeout),
			"conn", "Close", "drain timeout")
	case <-ctx.Done():
		drainErr = errors.Wrap(ctx.Err(), "conn", "Close", "context cancelled during drain")
	}

	c.nc.Close()
	return drainErr
}

// onMessage forwards a message received on the subscription for pattern.
// NATS delivers a message once per matching subscription, so only the
// lowest sorting active pattern that matches forwards it.
func (c *conn) onMessage(pattern string, msg *nats.Msg) {
	topicName := topic.FromNATSSubject(msg.Subject)
	if !c.owns(pattern, topicName) {
		return
	}

	c.handler(transport.Event{
		Type:    transport.EventMessage,
		Topic:   topicName,
		Payload: msg.Data,
	})
}

func (c *conn) owns(pattern, topicName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, active := c.subs[pattern]; !active {
		return false
	}
	for other := range c.subs {
		if other < pattern && topic.Match(other, topicName) {
			return false
		}
	}
	return true
}
