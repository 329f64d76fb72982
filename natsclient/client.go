package natsclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/busmux/errors"
	"github.com/c360/busmux/pkg/retry"
	"github.com/c360/busmux/pkg/tlsutil"
	"github.com/c360/busmux/transport"
)

var supportedSchemes = map[string]bool{
	"nats": true,
	"tls":  true,
	"ws":   true,
	"wss":  true,
}

var _ transport.Dialer = (*Dialer)(nil)

// Dialer creates NATS connections
type Dialer struct {
	logger *slog.Logger

	// Connection options
	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	// Authentication
	token string

	// Client identification
	clientName  string
	compression bool
}

// NewDialer creates a NATS dialer with optional configuration
func NewDialer(opts ...DialerOption) (*Dialer, error) {
	d := &Dialer{
		logger: slog.Default(),
		// Sensible defaults
		maxReconnects: -1, // infinite by default
		reconnectWait: 2 * time.Second,
		pingInterval:  30 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  30 * time.Second,
		clientName:    "busmux",
	}

	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}

	d.logger = d.logger.With("component", "natsclient")
	return d, nil
}

// Dial connects to the NATS server described by cfg. A failed initial
// connect is retried in the background, and every failed attempt is
// reported as EventError.
func (d *Dialer) Dial(_ context.Context, cfg transport.Config, handler transport.Handler) (transport.Conn, error) {
	if handler == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Dialer", "Dial", "event handler is nil")
	}

	serverURL, err := d.serverURL(cfg)
	if err != nil {
		return nil, err
	}

	closing := &atomic.Bool{}
	opts, err := d.buildConnectionOptions(cfg, handler, closing)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("Dialing NATS server", "server", cfg.Redacted())

	nc, err := nats.Connect(serverURL, opts...)
	if err != nil {
		return nil, errors.WrapTransient(err, "Dialer", "Dial", "connect to NATS")
	}

	c := newConn(nc, handler, d.logger, d.drainTimeout)
	c.closing = closing
	return c, nil
}

func (d *Dialer) serverURL(cfg transport.Config) (string, error) {
	if cfg.Host == "" {
		return "", errors.WrapInvalid(errors.ErrMissingConfig, "Dialer", "serverURL", "server host is empty")
	}

	if cfg.Transport == "" {
		cfg.Transport = transport.KindNATS
	}

	u, err := url.Parse(cfg.URL())
	if err != nil {
		return "", errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"Dialer", "serverURL", "parse server url")
	}
	if !supportedSchemes[u.Scheme] {
		return "", errors.WrapInvalid(
			fmt.Errorf("%w: unsupported protocol %q", errors.ErrInvalidConfig, u.Scheme),
			"Dialer", "serverURL", "validate protocol")
	}
	return u.String(), nil
}

// buildConnectionOptions builds NATS connection options from the dialer and
// transport configuration. closing is set by conn.Close; a close the client
// reaches on its own is reported as EventError.
func (d *Dialer) buildConnectionOptions(cfg transport.Config, handler transport.Handler, closing *atomic.Bool) ([]nats.Option, error) {
	maxReconnects := d.maxReconnects
	if cfg.MaxReconnects != 0 {
		maxReconnects = cfg.MaxReconnects
	}
	reconnectWait := d.reconnectWait
	if cfg.ReconnectWait > 0 {
		reconnectWait = cfg.ReconnectWait
	}
	pingInterval := d.pingInterval
	if cfg.KeepAlive > 0 {
		pingInterval = cfg.KeepAlive
	}
	timeout := d.timeout
	if cfg.ConnectTimeout > 0 {
		timeout = cfg.ConnectTimeout
	}

	opts := []nats.Option{
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.PingInterval(pingInterval),
		nats.Timeout(timeout),
		nats.DrainTimeout(d.drainTimeout),
		nats.RetryOnFailedConnect(true),
		nats.ConnectHandler(func(*nats.Conn) {
			handler(transport.Event{Type: transport.EventConnect})
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			handler(transport.Event{Type: transport.EventConnect})
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				handler(transport.Event{
					Type: transport.EventError,
					Err:  errors.WrapTransient(err, "Dialer", "disconnect", "server connection"),
				})
			}
			handler(transport.Event{Type: transport.EventReconnect})
		}),
		nats.ReconnectErrHandler(func(_ *nats.Conn, err error) {
			handler(transport.Event{
				Type: transport.EventError,
				Err:  errors.WrapTransient(err, "Dialer", "reconnect", "connect attempt"),
			})
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			if closing.Load() {
				return
			}
			err := errors.ErrConnectionLost
			if nc != nil && nc.LastError() != nil {
				err = fmt.Errorf("%w: %w", errors.ErrConnectionLost, nc.LastError())
			}
			handler(transport.Event{
				Type: transport.EventError,
				Err:  errors.WrapFatal(err, "Dialer", "closed", "reconnect attempts exhausted"),
			})
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			// Async errors such as slow consumers do not affect the connection
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			d.logger.Warn("NATS async error", "subject", subject, "error", err)
		}),
	}

	if cfg.MaxReconnectInterval > 0 {
		schedule := retry.Backoff{
			InitialDelay: reconnectWait,
			MaxDelay:     cfg.MaxReconnectInterval,
			Multiplier:   2.0,
		}
		opts = append(opts, nats.CustomReconnectDelay(schedule.Func()))
	}

	// Add authentication if configured
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if d.token != "" {
		opts = append(opts, nats.Token(d.token))
	}

	tlsConfig, err := tlsutil.LoadClientTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		opts = append(opts, nats.Secure(tlsConfig))
	}

	name := cfg.ClientID
	if name == "" {
		name = d.clientName
	}
	if name != "" {
		opts = append(opts, nats.Name(name))
	}

	if d.compression {
		opts = append(opts, nats.Compression(true))
	}

	return opts, nil
}
