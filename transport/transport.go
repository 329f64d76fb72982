// Package transport defines the boundary between the connection manager and
// the broker client libraries that own the wire protocol.
//
// A Dialer creates exactly one Conn per manager. The Conn reports its
// lifecycle and inbound messages through the Handler passed to Dial; it is
// responsible for its own reconnect cadence and connect timeouts. Calls on a
// Conn must not block on broker round-trips: failures are reported later as
// EventError.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Transport kinds
const (
	KindMQTT = "mqtt"
	KindNATS = "nats"
)

// EventType identifies a transport lifecycle or message event
type EventType int

// Possible transport events
const (
	EventConnect EventType = iota + 1
	EventReconnect
	EventError
	EventMessage
)

// String returns the string representation of EventType
func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "connect"
	case EventReconnect:
		return "reconnect"
	case EventError:
		return "error"
	case EventMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Metadata carries broker delivery details of an inbound message
type Metadata struct {
	QoS       byte
	Retained  bool
	Duplicate bool
	MessageID uint16
}

// Event is emitted by a Conn
type Event struct {
	Type     EventType
	Topic    string
	Payload  []byte
	Metadata Metadata
	Err      error
}

// Handler receives transport events. Implementations must not block for long;
// the connection manager only enqueues them.
type Handler func(Event)

// Conn is a live broker connection handle
type Conn interface {
	Subscribe(pattern string) error
	Unsubscribe(pattern string) error
	Publish(topic string, payload []byte) error
	Close(ctx context.Context) error
}

// Dialer creates broker connections
type Dialer interface {
	Dial(ctx context.Context, cfg Config, handler Handler) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface
type DialerFunc func(ctx context.Context, cfg Config, handler Handler) (Conn, error)

// Dial calls f(ctx, cfg, handler)
func (f DialerFunc) Dial(ctx context.Context, cfg Config, handler Handler) (Conn, error) {
	return f(ctx, cfg, handler)
}

// TLSConfig holds client certificate settings
type TLSConfig struct {
	Enabled            bool     `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	CAFiles            []string `mapstructure:"ca_files" json:"ca_files,omitempty" yaml:"ca_files,omitempty"`
	CertFile           string   `mapstructure:"cert_file" json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile            string   `mapstructure:"key_file" json:"key_file,omitempty" yaml:"key_file,omitempty"`
	MinVersion         string   `mapstructure:"min_version" json:"min_version,omitempty" yaml:"min_version,omitempty"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify" json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"`
}

// Config is passed through unchanged to the transport. The connection
// manager never interprets it.
type Config struct {
	Transport string
	Host      string
	Port      int
	Path      string
	Protocol  string // tcp, ssl, ws, wss for MQTT; nats, tls for NATS

	Username string
	Password string
	ClientID string

	KeepAlive            time.Duration
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnectInterval time.Duration
	MaxReconnects        int

	TLS TLSConfig
}

// URL builds the broker URL from the host, port, protocol and path
func (c Config) URL() string {
	protocol := c.Protocol
	if protocol == "" {
		protocol = defaultProtocol(c.Transport)
	}

	host := c.Host
	if c.Port > 0 {
		host = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	}

	u := url.URL{Scheme: protocol, Host: host}
	if c.Path != "" && isWebsocket(protocol) {
		u.Path = "/" + strings.TrimPrefix(c.Path, "/")
	}
	return u.String()
}

// Redacted returns the broker URL with the username but never the password
func (c Config) Redacted() string {
	if c.Username == "" {
		return c.URL()
	}
	u, err := url.Parse(c.URL())
	if err != nil {
		return c.URL()
	}
	u.User = url.User(c.Username)
	return u.String()
}

// String implements fmt.Stringer without exposing credentials
func (c Config) String() string {
	return fmt.Sprintf("%s(%s)", c.Transport, c.Redacted())
}

func defaultProtocol(kind string) string {
	if kind == KindNATS {
		return "nats"
	}
	return "tcp"
}

func isWebsocket(protocol string) bool {
	return protocol == "ws" || protocol == "wss"
}
