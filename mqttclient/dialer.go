package mqttclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/c360/busmux/errors"
	"github.com/c360/busmux/pkg/retry"
	"github.com/c360/busmux/pkg/tlsutil"
	"github.com/c360/busmux/transport"
)

// All traffic is QoS 0: delivery guarantees are left to the broker
const qos byte = 0

const clientIDPrefix = "busmux-"

// Connect retry schedule used when the configuration leaves it unset
const (
	defaultReconnectWait        = 2 * time.Second
	defaultMaxReconnectInterval = time.Minute
)

var supportedSchemes = map[string]bool{
	"tcp":   true,
	"mqtt":  true,
	"ssl":   true,
	"tls":   true,
	"mqtts": true,
	"ws":    true,
	"wss":   true,
}

// pahoClient is the subset of mqtt.Client used by a connection
type pahoClient interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Option is a functional option for configuring the Dialer
type Option func(*Dialer) error

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dialer) error {
		if logger == nil {
			logger = slog.Default()
		}
		d.logger = logger
		return nil
	}
}

// WithDisconnectQuiesce sets how long Close waits for in-flight work
func WithDisconnectQuiesce(quiesce time.Duration) Option {
	return func(d *Dialer) error {
		if quiesce < 0 {
			return errors.WrapInvalid(
				fmt.Errorf("%w: negative quiesce %v", errors.ErrInvalidConfig, quiesce),
				"Dialer", "WithDisconnectQuiesce", "validate quiesce")
		}
		d.quiesce = quiesce
		return nil
	}
}

// Dialer creates MQTT connections backed by paho
type Dialer struct {
	logger    *slog.Logger
	quiesce   time.Duration
	newClient func(*mqtt.ClientOptions) pahoClient
}

// NewDialer creates an MQTT dialer
func NewDialer(opts ...Option) (*Dialer, error) {
	d := &Dialer{
		logger:  slog.Default(),
		quiesce: 250 * time.Millisecond,
		newClient: func(o *mqtt.ClientOptions) pahoClient {
			return mqtt.NewClient(o)
		},
	}

	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}

	d.logger = d.logger.With("component", "mqttclient")
	return d, nil
}

// Dial creates the paho client and starts connecting in the background.
// Every failed connect attempt, a refused login included, is reported as
// EventError and retried on an exponential schedule. Once connected, paho
// reconnects on its own.
func (d *Dialer) Dial(_ context.Context, cfg transport.Config, handler transport.Handler) (transport.Conn, error) {
	if handler == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Dialer", "Dial", "event handler is nil")
	}

	opts, err := buildClientOptions(cfg, handler)
	if err != nil {
		return nil, err
	}

	c := newConn(d.newClient(opts), d.logger, d.quiesce)

	d.logger.Debug("Dialing MQTT broker", "broker", cfg.Redacted(), "client_id", opts.ClientID)

	c.wg.Add(1)
	go c.connectLoop(connectBackoff(cfg), handler)

	return c, nil
}

// connectBackoff is the retry schedule for failed connect attempts
func connectBackoff(cfg transport.Config) retry.Backoff {
	schedule := retry.Backoff{
		InitialDelay: defaultReconnectWait,
		MaxDelay:     defaultMaxReconnectInterval,
		Multiplier:   2.0,
		AddJitter:    true,
	}
	if cfg.ReconnectWait > 0 {
		schedule.InitialDelay = cfg.ReconnectWait
	}
	if cfg.MaxReconnectInterval > 0 {
		schedule.MaxDelay = cfg.MaxReconnectInterval
	}
	if schedule.MaxDelay < schedule.InitialDelay {
		schedule.MaxDelay = schedule.InitialDelay
	}
	return schedule
}

// buildClientOptions maps the transport configuration onto paho options
func buildClientOptions(cfg transport.Config, handler transport.Handler) (*mqtt.ClientOptions, error) {
	if cfg.Host == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Dialer", "buildClientOptions", "broker host is empty")
	}

	brokerURL, err := url.Parse(cfg.URL())
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"Dialer", "buildClientOptions", "parse broker url")
	}
	if !supportedSchemes[brokerURL.Scheme] {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unsupported protocol %q", errors.ErrInvalidConfig, brokerURL.Scheme),
			"Dialer", "buildClientOptions", "validate protocol")
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = clientIDPrefix + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL.String()).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.KeepAlive > 0 {
		opts.SetKeepAlive(cfg.KeepAlive)
	}
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	if cfg.MaxReconnectInterval > 0 {
		opts.SetMaxReconnectInterval(cfg.MaxReconnectInterval)
	}

	tlsConfig, err := tlsutil.LoadClientTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		handler(transport.Event{Type: transport.EventConnect})
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		handler(transport.Event{Type: transport.EventReconnect})
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if err == nil {
			err = errors.ErrConnectionLost
		}
		handler(transport.Event{
			Type: transport.EventError,
			Err:  errors.WrapTransient(err, "Dialer", "connectionLost", "broker connection"),
		})
	})
	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		handler(messageEvent(msg))
	})

	return opts, nil
}

func messageEvent(msg mqtt.Message) transport.Event {
	return transport.Event{
		Type:    transport.EventMessage,
		Topic:   msg.Topic(),
		Payload: msg.Payload(),
		Metadata: transport.Metadata{
			QoS:       msg.Qos(),
			Retained:  msg.Retained(),
			Duplicate: msg.Duplicate(),
			MessageID: msg.MessageID(),
		},
	}
}
