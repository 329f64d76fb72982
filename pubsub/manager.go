package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/busmux/errors"
	"github.com/c360/busmux/health"
	"github.com/c360/busmux/metric"
	"github.com/c360/busmux/topic"
	"github.com/c360/busmux/transport"
)

const defaultName = "busmux"

// Stats holds runtime counters for the manager
type Stats struct {
	State            ConnectionState
	Subscriptions    int
	Received         int64
	Dispatched       int64
	Published        int64
	Dropped          int64
	CallbackFailures int64
	Reconnects       int64
	LastActivity     time.Time
}

// Manager owns the single broker connection of a process and multiplexes
// any number of subscriptions over it.
//
// Every registry mutation, state transition and handler invocation happens on
// one dispatch loop goroutine. Subscribe, Publish and Unsubscribe only
// enqueue work and never wait for the broker.
type Manager struct {
	name      string
	cfg       transport.Config
	dialer    transport.Dialer
	logger    *slog.Logger
	metrics   *metric.Metrics
	observers []Observer
	limiter   *rate.Limiter

	registry *Registry
	mailbox  *mailbox
	state    atomic.Int32

	// owned by the dispatch loop
	conn     transport.Conn
	sent     map[string]struct{} // patterns subscribed on conn
	closeErr error

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex // protects started, closed, lastErr
	started   bool
	closed    bool
	lastErr   error
	startOnce sync.Once
	closeOnce sync.Once

	received         atomic.Int64
	dispatched       atomic.Int64
	published        atomic.Int64
	dropped          atomic.Int64
	callbackFailures atomic.Int64
	reconnects       atomic.Int64
	lastActivity     atomic.Int64 // unix nanoseconds
}

// NewManager creates a manager for the broker described by cfg. The
// connection is dialed lazily on the first Subscribe, Publish or Start.
func NewManager(cfg transport.Config, dialer transport.Dialer, opts ...Option) (*Manager, error) {
	if dialer == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Manager", "NewManager", "dialer is nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		name:     defaultName,
		cfg:      cfg,
		dialer:   dialer,
		logger:   slog.Default(),
		registry: NewRegistry(),
		mailbox:  newMailbox(),
		sent:     make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			cancel()
			return nil, err
		}
	}

	m.logger = m.logger.With("component", "pubsub", "name", m.name)
	m.setState(StateDisconnected)

	return m, nil
}

// Name returns the component name
func (m *Manager) Name() string {
	return m.name
}

// State returns the current connection state
func (m *Manager) State() ConnectionState {
	return ConnectionState(m.state.Load())
}

// IsConnected returns true if the manager is connected
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Patterns returns the registered patterns in replay order
func (m *Manager) Patterns() []string {
	return m.registry.Patterns()
}

// LastError returns the most recent transport error, if any
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Stats returns a snapshot of the manager counters
func (m *Manager) Stats() Stats {
	var lastActivity time.Time
	if ns := m.lastActivity.Load(); ns != 0 {
		lastActivity = time.Unix(0, ns)
	}

	return Stats{
		State:            m.State(),
		Subscriptions:    m.registry.Len(),
		Received:         m.received.Load(),
		Dispatched:       m.dispatched.Load(),
		Published:        m.published.Load(),
		Dropped:          m.dropped.Load(),
		CallbackFailures: m.callbackFailures.Load(),
		Reconnects:       m.reconnects.Load(),
		LastActivity:     lastActivity,
	}
}

// Health reports the connection health
func (m *Manager) Health() health.Status {
	stats := m.Stats()
	return health.FromConnectionState(m.name, stats.State.String(), m.LastError()).
		WithMetrics(&health.Metrics{
			Subscriptions:    stats.Subscriptions,
			Reconnects:       stats.Reconnects,
			MessagesReceived: stats.Received,
			CallbackFailures: stats.CallbackFailures,
			LastActivity:     stats.LastActivity,
		})
}

// Start starts the dispatch loop and dials the broker. It is called
// implicitly by Subscribe and Publish; calling it again has no effect.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		m.started = true
		m.mu.Unlock()

		go m.run()
	})
}

// Subscribe registers handler for pattern and returns its handle.
//
// If the broker connection is up and the pattern is new, the transport
// subscribe is issued right away; otherwise it is issued on the next connect.
// Subscribing to a pattern that is already registered replaces its handler.
// An invalid pattern is logged and yields an already released handle.
func (m *Manager) Subscribe(pattern string, handler MessageHandler) *Subscription {
	sub := newSubscription(m, pattern, handler)

	if handler == nil {
		m.logger.Error("Rejected subscription without handler", "pattern", pattern)
		m.recordError("subscribe")
		sub.markReleased()
		return sub
	}

	if err := topic.ValidatePattern(pattern); err != nil {
		m.logger.Error("Rejected invalid subscription pattern", "pattern", pattern, "error", err)
		m.recordError("subscribe")
		sub.markReleased()
		return sub
	}

	m.Start()
	if !m.mailbox.push(op{kind: opSubscribe, sub: sub}) {
		m.logger.Debug("Subscribe after close ignored", "pattern", pattern)
		sub.markReleased()
	}
	return sub
}

// Publish sends payload to topic without waiting for the broker.
//
// Strings and byte slices are sent verbatim; any other value is JSON encoded.
// The message is dropped, never queued, when the manager is not connected,
// when the publish limit is exceeded or when the payload cannot be encoded.
func (m *Manager) Publish(topicName string, payload any) {
	if err := topic.ValidateTopic(topicName); err != nil {
		m.logger.Error("Dropping publish to invalid topic", "topic", topicName, "error", err)
		m.drop(metric.DropInvalidTopic)
		return
	}

	data, err := encodePayload(payload)
	if err != nil {
		m.logger.Error("Dropping publish with unencodable payload", "topic", topicName, "error", err)
		m.drop(metric.DropEncoding)
		return
	}

	m.Start()
	if !m.mailbox.push(op{kind: opPublish, topic: topicName, payload: data}) {
		m.logger.Debug("Dropping publish after close", "topic", topicName)
		m.drop(metric.DropClosed)
	}
}

// WaitForConnection waits for the connection to be established
func (m *Manager) WaitForConnection(ctx context.Context) error {
	m.Start()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if m.IsConnected() {
			return nil
		}
		if m.isClosed() {
			return errors.ErrClosed
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", errors.ErrConnectionTimeout, ctx.Err())
		case <-m.done:
			return errors.ErrClosed
		case <-ticker.C:
		}
	}
}

// Flush waits until every operation enqueued before the call has been
// processed by the dispatch loop. It must not be called from a handler or
// observer.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return nil
	}

	done := make(chan struct{})
	if !m.mailbox.push(op{kind: opFlush, done: done}) {
		return errors.ErrClosed
	}

	select {
	case <-done:
		return nil
	case <-m.done:
		return errors.ErrClosed
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Manager", "Flush", "wait for dispatch loop")
	}
}

// Close tears down the dispatch loop and the broker connection. Registered
// subscriptions are discarded. Close is idempotent.
func (m *Manager) Close(ctx context.Context) error {
	var err error

	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		started := m.started
		m.mu.Unlock()

		if !started {
			m.mailbox.close()
			m.cancel()
			return
		}

		m.mailbox.closeWith(op{kind: opClose, ctx: ctx})
		m.cancel()

		select {
		case <-m.done:
			err = m.closeErr
		case <-ctx.Done():
			err = errors.WrapTransient(ctx.Err(), "Manager", "Close", "wait for dispatch loop")
		}
	})

	return err
}

// run is the dispatch loop
func (m *Manager) run() {
	defer close(m.done)

	m.connect()

	for range m.mailbox.signal {
		for _, o := range m.mailbox.drain() {
			if !m.process(o) {
				return
			}
		}
	}
}

func (m *Manager) connect() {
	m.setState(StateConnecting)
	m.logger.Info("Connecting to broker", "broker", m.cfg.String())

	ctx := m.ctx
	if m.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ConnectTimeout)
		defer cancel()
	}

	conn, err := m.dialer.Dial(ctx, m.cfg, m.onTransportEvent)
	if err != nil {
		// The transport retries connection failures itself. A dial error
		// means the configuration was rejected, which no retry can fix.
		m.fail(errors.Wrap(err, "Manager", "connect", "dial broker"))
		return
	}

	m.conn = conn
}

// onTransportEvent is the transport.Handler given to the dialer
func (m *Manager) onTransportEvent(ev transport.Event) {
	m.mailbox.push(op{kind: opEvent, event: ev})
}

// process runs one op on the dispatch loop. Returns false when the loop
// must stop.
func (m *Manager) process(o op) bool {
	switch o.kind {
	case opSubscribe:
		m.handleSubscribe(o.sub)
	case opRelease:
		m.handleRelease(o.sub)
	case opPublish:
		m.handlePublish(o.topic, o.payload)
	case opEvent:
		m.handleEvent(o.event)
	case opFlush:
		close(o.done)
	case opClose:
		m.shutdown(o.ctx)
		return false
	}
	return true
}

func (m *Manager) handleSubscribe(sub *Subscription) {
	if sub.isReleased() {
		return
	}

	id, replaced := m.registry.Add(sub.pattern, sub.deliver)
	sub.id = id
	m.recordSubscriptions()

	if replaced {
		m.logger.Debug("Replaced subscription handler", "pattern", sub.pattern)
		return
	}

	if !m.canSend() {
		m.logger.Debug("Deferred subscription until connected", "pattern", sub.pattern)
		return
	}

	m.subscribe(sub.pattern)
}

// subscribe issues the transport subscribe for pattern and remembers it
// for a later unsubscribe
func (m *Manager) subscribe(pattern string) {
	if err := m.conn.Subscribe(pattern); err != nil {
		m.logger.Warn("Transport subscribe failed", "pattern", pattern, "error", err)
		m.recordError("subscribe")
		return
	}
	m.sent[pattern] = struct{}{}
}

func (m *Manager) handleRelease(sub *Subscription) {
	if !m.registry.RemoveIf(sub.pattern, sub.id) {
		return
	}
	m.recordSubscriptions()

	// Unsubscribe while reconnecting too; clients that restore their own
	// subscriptions would otherwise bring the pattern back.
	if _, ok := m.sent[sub.pattern]; !ok || m.conn == nil {
		return
	}
	delete(m.sent, sub.pattern)

	if err := m.conn.Unsubscribe(sub.pattern); err != nil {
		m.logger.Warn("Transport unsubscribe failed", "pattern", sub.pattern, "error", err)
		m.recordError("unsubscribe")
	}
}

func (m *Manager) handlePublish(topicName string, payload []byte) {
	if !m.canSend() {
		m.logger.Debug("Dropping publish while not connected", "topic", topicName, "state", m.State().String())
		m.drop(metric.DropNotConnected)
		return
	}

	if m.limiter != nil && !m.limiter.Allow() {
		m.logger.Debug("Dropping publish over rate limit", "topic", topicName)
		m.drop(metric.DropRateLimited)
		return
	}

	if err := m.conn.Publish(topicName, payload); err != nil {
		m.logger.Warn("Transport publish failed", "topic", topicName, "error", err)
		m.recordError("publish")
		m.drop(metric.DropTransport)
		return
	}

	m.published.Add(1)
	if m.metrics != nil {
		m.metrics.RecordMessagePublished()
	}
}

func (m *Manager) handleEvent(ev transport.Event) {
	switch ev.Type {
	case transport.EventConnect:
		m.handleConnect()
	case transport.EventReconnect:
		m.handleReconnect()
	case transport.EventError:
		err := ev.Err
		if err == nil {
			err = errors.ErrConnectionLost
		}
		m.fail(err)
	case transport.EventMessage:
		m.dispatch(ev)
	default:
		m.logger.Warn("Ignoring unknown transport event", "type", ev.Type.String())
	}
}

func (m *Manager) handleConnect() {
	m.setState(StateConnected)

	patterns := m.registry.Patterns()
	for _, pattern := range patterns {
		m.subscribe(pattern)
	}

	m.logger.Info("Connected to broker", "replayed", len(patterns))
	m.notify(Notification{Kind: KindConnected, Message: "connected to broker"})
}

func (m *Manager) handleReconnect() {
	m.setState(StateReconnecting)
	m.reconnects.Add(1)
	if m.metrics != nil {
		m.metrics.RecordReconnect()
	}

	m.logger.Warn("Reconnecting to broker")
	m.notify(Notification{Kind: KindReconnecting, Message: "reconnecting to broker"})
}

// fail moves the manager to Errored. The registry is kept for the next
// connect.
func (m *Manager) fail(err error) {
	m.setState(StateErrored)

	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()

	m.recordError("transport")
	m.logger.Error("Broker connection error", "error", err)
	m.notify(Notification{
		Kind:    KindError,
		Message: health.SanitizeErrorMessage(err.Error()),
		Err:     err,
	})
}

// dispatch invokes every handler whose pattern matches the message topic, in
// registry order. A panicking handler does not stop the others.
func (m *Manager) dispatch(ev transport.Event) {
	start := time.Now()
	m.received.Add(1)
	m.lastActivity.Store(start.UnixNano())
	if m.metrics != nil {
		m.metrics.RecordMessageReceived()
	}

	text := decodePayload(ev.Payload)

	invoked := 0
	for _, entry := range m.registry.Entries() {
		if !topic.Match(entry.Pattern, ev.Topic) {
			continue
		}
		invoked++
		m.invoke(entry, ev.Topic, text)
	}

	m.dispatched.Add(int64(invoked))
	if m.metrics != nil {
		m.metrics.RecordDispatch(invoked, time.Since(start))
	}

	if invoked == 0 {
		m.logger.Debug("No subscriber for message", "topic", ev.Topic)
	}
}

func (m *Manager) invoke(entry Entry, topicName, text string) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", errors.ErrCallbackPanic, r)

			m.callbackFailures.Add(1)
			if m.metrics != nil {
				m.metrics.RecordCallbackFailure()
			}

			m.logger.Error("Subscriber callback failed", "topic", topicName, "pattern", entry.Pattern, "panic", r)
			m.notify(Notification{
				Kind:    KindCallbackFailed,
				Message: "subscriber callback failed",
				Err:     err,
				Topic:   topicName,
				Pattern: entry.Pattern,
			})
		}
	}()

	entry.Handler(topicName, text)
}

func (m *Manager) notify(n Notification) {
	n.State = m.State()
	n.Time = time.Now()

	for _, observer := range m.observers {
		m.callObserver(observer, n)
	}
}

func (m *Manager) callObserver(observer Observer, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Observer panicked", "kind", n.Kind.String(), "panic", r)
		}
	}()
	observer(n)
}

func (m *Manager) shutdown(ctx context.Context) {
	if m.conn != nil {
		if err := m.conn.Close(ctx); err != nil {
			m.closeErr = errors.WrapTransient(err, "Manager", "Close", "close transport")
			m.logger.Warn("Transport close failed", "error", err)
		}
		m.conn = nil
	}
	clear(m.sent)

	m.setState(StateDisconnected)
	m.logger.Info("Connection manager closed")
}

// release enqueues removal of a subscription's registration
func (m *Manager) release(sub *Subscription) {
	m.mailbox.push(op{kind: opRelease, sub: sub})
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// canSend reports whether transport calls can be issued now
func (m *Manager) canSend() bool {
	return m.conn != nil && m.State() == StateConnected
}

func (m *Manager) setState(state ConnectionState) {
	m.state.Store(int32(state))
	if m.metrics != nil {
		m.metrics.RecordConnectionState(int(state), state == StateConnected)
	}
}

func (m *Manager) drop(reason string) {
	m.dropped.Add(1)
	if m.metrics != nil {
		m.metrics.RecordMessageDropped(reason)
	}
}

func (m *Manager) recordError(errorType string) {
	if m.metrics != nil {
		m.metrics.RecordError(errorType)
	}
}

func (m *Manager) recordSubscriptions() {
	if m.metrics != nil {
		m.metrics.RecordSubscriptions(m.registry.Len())
	}
}
