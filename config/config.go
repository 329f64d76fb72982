package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/c360/busmux/errors"
	"github.com/c360/busmux/topic"
	"github.com/c360/busmux/transport"
)

// DefaultEnvPrefix prefixes environment overrides, e.g. BUSMUX_BROKER_HOST
const DefaultEnvPrefix = "BUSMUX"

const redactedPassword = "***"

// Config represents the complete application configuration
type Config struct {
	Broker    BrokerConfig  `mapstructure:"broker" json:"broker" yaml:"broker"`
	Metrics   MetricsConfig `mapstructure:"metrics" json:"metrics" yaml:"metrics"`
	Log       LogConfig     `mapstructure:"log" json:"log" yaml:"log"`
	Subscribe []string      `mapstructure:"subscribe" json:"subscribe" yaml:"subscribe"` // Patterns the CLI subscribes to
}

// BrokerConfig defines the broker connection
type BrokerConfig struct {
	Transport string `mapstructure:"transport" json:"transport" yaml:"transport"` // mqtt or nats
	Host      string `mapstructure:"host" json:"host" yaml:"host"`
	Port      int    `mapstructure:"port" json:"port" yaml:"port"`
	Path      string `mapstructure:"path" json:"path,omitempty" yaml:"path,omitempty"` // websocket path
	Protocol  string `mapstructure:"protocol" json:"protocol" yaml:"protocol"`

	Username string `mapstructure:"username" json:"username,omitempty" yaml:"username,omitempty"`
	Password string `mapstructure:"password" json:"password,omitempty" yaml:"password,omitempty"`
	ClientID string `mapstructure:"client_id" json:"client_id,omitempty" yaml:"client_id,omitempty"`

	KeepAlive            time.Duration `mapstructure:"keep_alive" json:"keep_alive" yaml:"keep_alive"`
	ConnectTimeout       time.Duration `mapstructure:"connect_timeout" json:"connect_timeout" yaml:"connect_timeout"`
	ReconnectWait        time.Duration `mapstructure:"reconnect_wait" json:"reconnect_wait" yaml:"reconnect_wait"`
	MaxReconnectInterval time.Duration `mapstructure:"max_reconnect_interval" json:"max_reconnect_interval" yaml:"max_reconnect_interval"`
	MaxReconnects        int           `mapstructure:"max_reconnects" json:"max_reconnects" yaml:"max_reconnects"`

	// Outbound publish limit in messages per second (0 = unlimited)
	PublishRate  float64 `mapstructure:"publish_rate" json:"publish_rate" yaml:"publish_rate"`
	PublishBurst int     `mapstructure:"publish_burst" json:"publish_burst" yaml:"publish_burst"`

	TLS transport.TLSConfig `mapstructure:"tls" json:"tls" yaml:"tls"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port" json:"port" yaml:"port"`
	Path    string `mapstructure:"path" json:"path" yaml:"path"`
}

// LogConfig controls the structured logger
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level" yaml:"level"`    // debug, info, warn, error
	Format string `mapstructure:"format" json:"format" yaml:"format"` // json or text
}

// defaults are registered with viper so every key can be overridden from the environment
var defaults = map[string]any{
	"broker.transport":                transport.KindMQTT,
	"broker.host":                     "localhost",
	"broker.port":                     8083,
	"broker.path":                     "mqtt",
	"broker.protocol":                 "ws",
	"broker.username":                 "",
	"broker.password":                 "",
	"broker.client_id":                "",
	"broker.keep_alive":               30 * time.Second,
	"broker.connect_timeout":          10 * time.Second,
	"broker.reconnect_wait":           2 * time.Second,
	"broker.max_reconnect_interval":   time.Minute,
	"broker.max_reconnects":           0,
	"broker.publish_rate":             0.0,
	"broker.publish_burst":            1,
	"broker.tls.enabled":              false,
	"broker.tls.ca_files":             []string{},
	"broker.tls.cert_file":            "",
	"broker.tls.key_file":             "",
	"broker.tls.min_version":          "",
	"broker.tls.insecure_skip_verify": false,
	"metrics.enabled":                 false,
	"metrics.port":                    9090,
	"metrics.path":                    "/metrics",
	"log.level":                       "info",
	"log.format":                      "text",
	"subscribe":                       []string{"#"},
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:    []string{},
		envPrefix: DefaultEnvPrefix,
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// SetEnvPrefix changes the environment variable prefix
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = prefix
}

// Load merges defaults, every layer and environment overrides, in that order
func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	for _, path := range l.layers {
		if err := l.mergeLayer(v, path); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix(l.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"Loader", "Load", "decode configuration")
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func (l *Loader) mergeLayer(v *viper.Viper, path string) error {
	data, err := safeReadFile(path)
	if err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"Loader", "Load", fmt.Sprintf("read %s", path))
	}

	kind, err := configType(path)
	if err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"Loader", "Load", fmt.Sprintf("detect type of %s", path))
	}

	v.SetConfigType(kind)
	if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"Loader", "Load", fmt.Sprintf("parse %s", path))
	}
	return nil
}

// Load loads and validates the configuration. An empty path uses defaults
// and environment overrides only.
func Load(path string) (*Config, error) {
	loader := NewLoader()
	if path != "" {
		loader.AddLayer(path)
	}
	loader.EnableValidation(true)
	return loader.Load()
}

// Default returns the default configuration without environment overrides
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Transport:            transport.KindMQTT,
			Host:                 "localhost",
			Port:                 8083,
			Path:                 "mqtt",
			Protocol:             "ws",
			KeepAlive:            30 * time.Second,
			ConnectTimeout:       10 * time.Second,
			ReconnectWait:        2 * time.Second,
			MaxReconnectInterval: time.Minute,
			PublishBurst:         1,
		},
		Metrics:   MetricsConfig{Port: 9090, Path: "/metrics"},
		Log:       LogConfig{Level: "info", Format: "text"},
		Subscribe: []string{"#"},
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if err := c.Broker.Validate(); err != nil {
		return err
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return invalid("metrics.port", "must be between 1 and 65535, got %d", c.Metrics.Port)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return invalid("metrics.path", "must start with /, got %q", c.Metrics.Path)
		}
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "%v", err)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return invalid("log.format", "must be json or text, got %q", c.Log.Format)
	}

	for i, pattern := range c.Subscribe {
		if err := topic.ValidatePattern(pattern); err != nil {
			return invalid(fmt.Sprintf("subscribe[%d]", i), "%v", err)
		}
	}

	return nil
}

// Validate checks the broker section
func (b *BrokerConfig) Validate() error {
	switch b.Transport {
	case transport.KindMQTT, transport.KindNATS:
	default:
		return invalid("broker.transport", "must be %s or %s, got %q", transport.KindMQTT, transport.KindNATS, b.Transport)
	}

	if b.Host == "" {
		return invalid("broker.host", "is required")
	}
	if b.Port < 0 || b.Port > 65535 {
		return invalid("broker.port", "must be between 0 and 65535, got %d", b.Port)
	}

	durations := map[string]time.Duration{
		"broker.keep_alive":             b.KeepAlive,
		"broker.connect_timeout":        b.ConnectTimeout,
		"broker.reconnect_wait":         b.ReconnectWait,
		"broker.max_reconnect_interval": b.MaxReconnectInterval,
	}
	for field, d := range durations {
		if d < 0 {
			return invalid(field, "must not be negative, got %v", d)
		}
	}

	if b.PublishRate < 0 {
		return invalid("broker.publish_rate", "must not be negative, got %v", b.PublishRate)
	}
	if b.PublishRate > 0 && b.PublishBurst < 1 {
		return invalid("broker.publish_burst", "must be at least 1 when publish_rate is set, got %d", b.PublishBurst)
	}

	if (b.TLS.CertFile == "") != (b.TLS.KeyFile == "") {
		return invalid("broker.tls", "cert_file and key_file must be set together")
	}
	switch b.TLS.MinVersion {
	case "", "1.2", "1.3":
	default:
		return invalid("broker.tls.min_version", "must be \"1.2\" or \"1.3\", got %q", b.TLS.MinVersion)
	}

	return nil
}

// TransportConfig converts the broker section for the transport layer
func (b BrokerConfig) TransportConfig() transport.Config {
	tlsConfig := b.TLS
	tlsConfig.CAFiles = append([]string(nil), b.TLS.CAFiles...)

	return transport.Config{
		Transport:            b.Transport,
		Host:                 b.Host,
		Port:                 b.Port,
		Path:                 b.Path,
		Protocol:             b.Protocol,
		Username:             b.Username,
		Password:             b.Password,
		ClientID:             b.ClientID,
		KeepAlive:            b.KeepAlive,
		ConnectTimeout:       b.ConnectTimeout,
		ReconnectWait:        b.ReconnectWait,
		MaxReconnectInterval: b.MaxReconnectInterval,
		MaxReconnects:        b.MaxReconnects,
		TLS:                  tlsConfig,
	}
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	clone := *c
	clone.Subscribe = append([]string(nil), c.Subscribe...)
	clone.Broker.TLS.CAFiles = append([]string(nil), c.Broker.TLS.CAFiles...)
	return &clone
}

// Redacted returns a copy safe for printing
func (c *Config) Redacted() *Config {
	clone := c.Clone()
	if clone.Broker.Password != "" {
		clone.Broker.Password = redactedPassword
	}
	return clone
}

// ParseLevel converts a level name to a slog.Level
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

func invalid(field, format string, args ...any) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s %s", errors.ErrInvalidConfig, field, fmt.Sprintf(format, args...)),
		"Config", "Validate", fmt.Sprintf("validate %s", field))
}
