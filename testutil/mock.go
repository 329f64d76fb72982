package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/c360/busmux/transport"
)

// Call operations recorded by MockConn
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpPublish     = "publish"
)

// Call is one recorded transport call
type Call struct {
	Op      string
	Name    string
	Payload []byte
}

// MockDialer is an in-memory transport.Dialer
type MockDialer struct {
	mu    sync.Mutex
	conns []*MockConn
	cfgs  []transport.Config
	ready chan struct{}

	// DialErr, when set, is returned from Dial instead of a connection
	DialErr error
}

// NewMockDialer creates a new mock dialer
func NewMockDialer() *MockDialer {
	return &MockDialer{ready: make(chan struct{})}
}

// Dial records the configuration and returns a new MockConn
func (d *MockDialer) Dial(_ context.Context, cfg transport.Config, handler transport.Handler) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cfgs = append(d.cfgs, cfg)
	if d.DialErr != nil {
		return nil, d.DialErr
	}

	conn := &MockConn{handler: handler}
	d.conns = append(d.conns, conn)
	if len(d.conns) == 1 {
		close(d.ready)
	}
	return conn, nil
}

// DialCount returns how many times Dial was called
func (d *MockDialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.cfgs)
}

// Configs returns the configurations passed to Dial
func (d *MockDialer) Configs() []transport.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	result := make([]transport.Config, len(d.cfgs))
	copy(result, d.cfgs)
	return result
}

// Conn returns the first dialed connection, or nil
func (d *MockDialer) Conn() *MockConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[0]
}

// WaitForConn blocks until the first connection has been dialed
func (d *MockDialer) WaitForConn(t testing.TB, timeout time.Duration) *MockConn {
	t.Helper()
	select {
	case <-d.ready:
		return d.Conn()
	case <-time.After(timeout):
		t.Fatalf("no connection dialed within %v", timeout)
		return nil
	}
}

// MockConn is an in-memory transport.Conn
type MockConn struct {
	mu      sync.Mutex
	handler transport.Handler
	calls   []Call
	closed  bool

	// Optional error injection
	SubscribeErr   error
	UnsubscribeErr error
	PublishErr     error
}

func (c *MockConn) record(op, name string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New("mock connection closed")
	}

	var p []byte
	if payload != nil {
		p = make([]byte, len(payload))
		copy(p, payload)
	}
	c.calls = append(c.calls, Call{Op: op, Name: name, Payload: p})

	switch op {
	case OpSubscribe:
		return c.SubscribeErr
	case OpUnsubscribe:
		return c.UnsubscribeErr
	default:
		return c.PublishErr
	}
}

// Subscribe records a subscribe call
func (c *MockConn) Subscribe(pattern string) error {
	return c.record(OpSubscribe, pattern, nil)
}

// Unsubscribe records an unsubscribe call
func (c *MockConn) Unsubscribe(pattern string) error {
	return c.record(OpUnsubscribe, pattern, nil)
}

// Publish records a publish call
func (c *MockConn) Publish(topic string, payload []byte) error {
	return c.record(OpPublish, topic, payload)
}

// Close marks the connection closed
func (c *MockConn) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// IsClosed returns whether Close was called
func (c *MockConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Calls returns a copy of every recorded call in order
func (c *MockConn) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]Call, len(c.calls))
	copy(result, c.calls)
	return result
}

// Names returns the names of recorded calls of the given operation in order
func (c *MockConn) Names(op string) []string {
	var names []string
	for _, call := range c.Calls() {
		if call.Op == op {
			names = append(names, call.Name)
		}
	}
	return names
}

// Subscribes returns the subscribed patterns in call order
func (c *MockConn) Subscribes() []string {
	return c.Names(OpSubscribe)
}

// Unsubscribes returns the unsubscribed patterns in call order
func (c *MockConn) Unsubscribes() []string {
	return c.Names(OpUnsubscribe)
}

// Publishes returns the recorded publish calls in order
func (c *MockConn) Publishes() []Call {
	var result []Call
	for _, call := range c.Calls() {
		if call.Op == OpPublish {
			result = append(result, call)
		}
	}
	return result
}

// Reset clears recorded calls
func (c *MockConn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

// Emit delivers an arbitrary event to the manager
func (c *MockConn) Emit(ev transport.Event) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()

	if handler != nil {
		handler(ev)
	}
}

// EmitConnect signals a successful (re)connection
func (c *MockConn) EmitConnect() {
	c.Emit(transport.Event{Type: transport.EventConnect})
}

// EmitReconnect signals a reconnection in progress
func (c *MockConn) EmitReconnect() {
	c.Emit(transport.Event{Type: transport.EventReconnect})
}

// EmitError signals a transport error
func (c *MockConn) EmitError(err error) {
	c.Emit(transport.Event{Type: transport.EventError, Err: err})
}

// EmitMessage delivers an inbound message
func (c *MockConn) EmitMessage(topic string, payload []byte) {
	c.Emit(transport.Event{Type: transport.EventMessage, Topic: topic, Payload: payload})
}
