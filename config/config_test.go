package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/busmux/errors"
	"github.com/c360/busmux/transport"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	want := Default()
	assert.Equal(t, want.Broker.Transport, cfg.Broker.Transport)
	assert.Equal(t, want.Broker.KeepAlive, cfg.Broker.KeepAlive)
	assert.Equal(t, want.Broker.ConnectTimeout, cfg.Broker.ConnectTimeout)
	assert.Equal(t, want.Broker.MaxReconnectInterval, cfg.Broker.MaxReconnectInterval)
	assert.Equal(t, want.Broker.PublishBurst, cfg.Broker.PublishBurst)
	assert.Equal(t, want.Metrics, cfg.Metrics)
	assert.Equal(t, want.Log, cfg.Log)
	assert.Equal(t, []string{"#"}, cfg.Subscribe)
	assert.False(t, cfg.Broker.TLS.Enabled)
	assert.Equal(t, "ws://localhost:8083/mqtt", cfg.Broker.TransportConfig().URL())
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "busmux.yaml", `
broker:
  transport: nats
  host: nats.local
  port: 4222
  protocol: nats
  username: edge
  password: s3cret
  reconnect_wait: 500ms
  max_reconnects: 5
  tls:
    enabled: true
    min_version: "1.3"
metrics:
  enabled: true
  port: 9100
log:
  level: debug
  format: json
subscribe:
  - sensors/#
  - alerts/+
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, transport.KindNATS, cfg.Broker.Transport)
	assert.Equal(t, "nats.local", cfg.Broker.Host)
	assert.Equal(t, 4222, cfg.Broker.Port)
	assert.Equal(t, "edge", cfg.Broker.Username)
	assert.Equal(t, 500*time.Millisecond, cfg.Broker.ReconnectWait)
	assert.Equal(t, 5, cfg.Broker.MaxReconnects)
	assert.True(t, cfg.Broker.TLS.Enabled)
	assert.Equal(t, "1.3", cfg.Broker.TLS.MinVersion)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9100, cfg.Metrics.Port)
	assert.Equal(t, "/metrics", cfg.Metrics.Path, "unset keys keep defaults")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"sensors/#", "alerts/+"}, cfg.Subscribe)
	assert.Equal(t, 30*time.Second, cfg.Broker.KeepAlive)
}

func TestLoader_Layers(t *testing.T) {
	base := writeFile(t, "base.json", `{"broker": {"host": "base.local", "port": 1883, "protocol": "tcp"}}`)
	override := writeFile(t, "override.toml", `
[broker]
host = "prod.local"
`)

	loader := NewLoader()
	loader.AddLayer(base)
	loader.AddLayer(override)
	loader.EnableValidation(true)

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "prod.local", cfg.Broker.Host)
	assert.Equal(t, 1883, cfg.Broker.Port)
	assert.Equal(t, "tcp", cfg.Broker.Protocol)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BUSMUX_BROKER_HOST", "env.local")
	t.Setenv("BUSMUX_BROKER_PORT", "1884")
	t.Setenv("BUSMUX_BROKER_PASSWORD", "from-env")
	t.Setenv("BUSMUX_BROKER_CONNECT_TIMEOUT", "3s")
	t.Setenv("BUSMUX_BROKER_TLS_ENABLED", "true")
	t.Setenv("BUSMUX_SUBSCRIBE", "a/#,b/+")
	t.Setenv("BUSMUX_LOG_FORMAT", "json")

	path := writeFile(t, "busmux.yml", "broker:\n  host: file.local\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env.local", cfg.Broker.Host, "environment wins over files")
	assert.Equal(t, 1884, cfg.Broker.Port)
	assert.Equal(t, "from-env", cfg.Broker.Password)
	assert.Equal(t, 3*time.Second, cfg.Broker.ConnectTimeout)
	assert.True(t, cfg.Broker.TLS.Enabled)
	assert.Equal(t, []string{"a/#", "b/+"}, cfg.Subscribe)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoader_EnvPrefix(t *testing.T) {
	t.Setenv("DASH_BROKER_HOST", "dash.local")

	loader := NewLoader()
	loader.SetEnvPrefix("DASH")
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "dash.local", cfg.Broker.Host)
}

func TestLoad_FileErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(t.TempDir(), "missing.yaml")},
		{"unsupported extension", writeFile(t, "busmux.ini", "host=x")},
		{"malformed yaml", writeFile(t, "bad.yaml", "broker: [unclosed")},
		{"directory", func() string {
			dir := filepath.Join(t.TempDir(), "dir.yaml")
			require.NoError(t, os.Mkdir(dir, 0700))
			return dir
		}()},
		{"relative traversal", "../../etc/busmux.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown transport", func(c *Config) { c.Broker.Transport = "amqp" }, "broker.transport"},
		{"empty host", func(c *Config) { c.Broker.Host = "" }, "broker.host"},
		{"port out of range", func(c *Config) { c.Broker.Port = 70000 }, "broker.port"},
		{"negative duration", func(c *Config) { c.Broker.ReconnectWait = -time.Second }, "broker.reconnect_wait"},
		{"negative rate", func(c *Config) { c.Broker.PublishRate = -1 }, "broker.publish_rate"},
		{"rate without burst", func(c *Config) { c.Broker.PublishRate = 10; c.Broker.PublishBurst = 0 }, "broker.publish_burst"},
		{"cert without key", func(c *Config) { c.Broker.TLS.CertFile = "client.pem" }, "broker.tls"},
		{"bad tls version", func(c *Config) { c.Broker.TLS.MinVersion = "1.0" }, "broker.tls.min_version"},
		{"metrics port", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Port = 0 }, "metrics.port"},
		{"metrics path", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Path = "metrics" }, "metrics.path"},
		{"log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad pattern", func(c *Config) { c.Subscribe = []string{"a/#/b"} }, "subscribe[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	require.NoError(t, Default().Validate())
}

func TestTransportConfig(t *testing.T) {
	b := BrokerConfig{
		Transport:            transport.KindMQTT,
		Host:                 "broker",
		Port:                 8883,
		Protocol:             "ssl",
		Username:             "u",
		Password:             "p",
		ClientID:             "id",
		KeepAlive:            time.Second,
		ConnectTimeout:       2 * time.Second,
		ReconnectWait:        3 * time.Second,
		MaxReconnectInterval: 4 * time.Second,
		MaxReconnects:        5,
		TLS:                  transport.TLSConfig{Enabled: true, CAFiles: []string{"ca.pem"}},
	}

	tc := b.TransportConfig()
	assert.Equal(t, "ssl://broker:8883", tc.URL())
	assert.Equal(t, "id", tc.ClientID)
	assert.Equal(t, 5, tc.MaxReconnects)
	assert.Equal(t, 4*time.Second, tc.MaxReconnectInterval)
	assert.Equal(t, []string{"ca.pem"}, tc.TLS.CAFiles)

	tc.TLS.CAFiles[0] = "changed.pem"
	assert.Equal(t, "ca.pem", b.TLS.CAFiles[0], "transport config must not alias the broker config")
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Broker.Password = "s3cret"

	redacted := cfg.Redacted()
	assert.Equal(t, redactedPassword, redacted.Broker.Password)
	assert.Equal(t, "s3cret", cfg.Broker.Password)

	redacted.Subscribe[0] = "changed"
	assert.Equal(t, "#", cfg.Subscribe[0])

	assert.Empty(t, Default().Redacted().Broker.Password)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for input, want := range tests {
		got, err := ParseLevel(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}
