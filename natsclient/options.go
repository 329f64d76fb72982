package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/busmux/errors"
)

// DialerOption is a functional option for configuring the Dialer
type DialerOption func(*Dialer) error

// WithMaxReconnects sets the maximum number of reconnection attempts (-1 for infinite).
// A non-zero MaxReconnects in the transport config takes precedence.
func WithMaxReconnects(max int) DialerOption {
	return func(d *Dialer) error {
		d.maxReconnects = max
		return nil
	}
}

// WithReconnectWait sets the wait time between reconnection attempts
func WithReconnectWait(wait time.Duration) DialerOption {
	return func(d *Dialer) error {
		if wait <= 0 {
			return errors.WrapInvalid(
				fmt.Errorf("%w: reconnect wait must be positive, got %v", errors.ErrInvalidConfig, wait),
				"Dialer", "WithReconnectWait", "validate reconnect wait")
		}
		d.reconnectWait = wait
		return nil
	}
}

// WithPingInterval sets the ping interval for connection health checks
func WithPingInterval(interval time.Duration) DialerOption {
	return func(d *Dialer) error {
		d.pingInterval = interval
		return nil
	}
}

// WithTimeout sets the connection timeout
func WithTimeout(timeout time.Duration) DialerOption {
	return func(d *Dialer) error {
		d.timeout = timeout
		return nil
	}
}

// WithDrainTimeout sets how long Close drains pending messages
func WithDrainTimeout(timeout time.Duration) DialerOption {
	return func(d *Dialer) error {
		d.drainTimeout = timeout
		return nil
	}
}

// WithToken sets a token for authentication
func WithToken(token string) DialerOption {
	return func(d *Dialer) error {
		d.token = token
		return nil
	}
}

// WithClientName sets the connection name reported to the server when the
// transport config has no client ID
func WithClientName(name string) DialerOption {
	return func(d *Dialer) error {
		d.clientName = name
		return nil
	}
}

// WithCompression enables websocket compression
func WithCompression(enabled bool) DialerOption {
	return func(d *Dialer) error {
		d.compression = enabled
		return nil
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) DialerOption {
	return func(d *Dialer) error {
		if logger == nil {
			logger = slog.Default()
		}
		d.logger = logger
		return nil
	}
}
