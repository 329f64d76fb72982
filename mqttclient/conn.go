package mqttclient

import (
	"context"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/c360/busmux/errors"
	"github.com/c360/busmux/pkg/retry"
	"github.com/c360/busmux/transport"
)

// conn is a paho client adapted to transport.Conn
type conn struct {
	client  pahoClient
	logger  *slog.Logger
	quiesce time.Duration

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup // connect loop and token watchers
}

func newConn(client pahoClient, logger *slog.Logger, quiesce time.Duration) *conn {
	return &conn{
		client:  client,
		logger:  logger,
		quiesce: quiesce,
		closed:  make(chan struct{}),
	}
}

// Subscribe subscribes at QoS 0. Messages arrive through the default
// publish handler.
func (c *conn) Subscribe(pattern string) error {
	if c.isClosed() {
		return errors.ErrClosed
	}
	c.watchLogged(c.client.Subscribe(pattern, qos, nil), "subscribe", pattern)
	return nil
}

// Unsubscribe removes the broker subscription for pattern
func (c *conn) Unsubscribe(pattern string) error {
	if c.isClosed() {
		return errors.ErrClosed
	}
	c.watchLogged(c.client.Unsubscribe(pattern), "unsubscribe", pattern)
	return nil
}

// Publish sends payload at QoS 0, not retained
func (c *conn) Publish(topic string, payload []byte) error {
	if c.isClosed() {
		return errors.ErrClosed
	}
	c.watchLogged(c.client.Publish(topic, qos, false, payload), "publish", topic)
	return nil
}

// connectLoop issues Connect until an attempt succeeds or the conn is
// closed. Each failed attempt is reported through handler before the next
// one is scheduled.
func (c *conn) connectLoop(schedule retry.Backoff, handler transport.Handler) {
	defer c.wg.Done()

	for attempt := 1; ; attempt++ {
		token := c.client.Connect()
		select {
		case <-token.Done():
		case <-c.closed:
			return
		}

		err := token.Error()
		if err == nil {
			return
		}

		handler(transport.Event{
			Type: transport.EventError,
			Err:  errors.WrapTransient(err, "conn", "connectLoop", "connect to broker"),
		})

		delay := schedule.Delay(attempt)
		c.logger.Warn("MQTT connect failed", "attempt", attempt, "retry_in", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-c.closed:
			return
		}
	}
}

// Close disconnects from the broker and waits for the connect loop and token
// watchers to exit
func (c *conn) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.client.Disconnect(uint(c.quiesce.Milliseconds()))
	})

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "conn", "Close", "wait for pending operations")
	}
}

func (c *conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// watchLogged logs a failed token without changing connection state
func (c *conn) watchLogged(token mqtt.Token, op, name string) {
	c.watch(token, func(err error) {
		c.logger.Warn("MQTT operation failed", "op", op, "name", name, "error", err)
	})
}

// watch calls onError if token completes with an error before Close
func (c *conn) watch(token mqtt.Token, onError func(error)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case <-token.Done():
			if err := token.Error(); err != nil {
				onError(err)
			}
		case <-c.closed:
		}
	}()
}
