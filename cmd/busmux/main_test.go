package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/c360/busmux/config"
	"github.com/c360/busmux/metric"
	"github.com/c360/busmux/mqttclient"
	"github.com/c360/busmux/natsclient"
	"github.com/c360/busmux/pubsub"
	"github.com/c360/busmux/transport"
)

func validCLI() *CLIConfig {
	return &CLIConfig{ConnectTimeout: time.Second, ShutdownTimeout: time.Second}
}

func TestPublishList_Set(t *testing.T) {
	var list publishList

	require.NoError(t, list.Set("alerts/test=hello"))
	require.NoError(t, list.Set(`sensors/a={"v":1,"eq":"a=b"}`))
	require.NoError(t, list.Set("empty/msg="))

	assert.Equal(t, publishList{
		{Topic: "alerts/test", Message: "hello"},
		{Topic: "sensors/a", Message: `{"v":1,"eq":"a=b"}`},
		{Topic: "empty/msg", Message: ""},
	}, list)
	assert.Equal(t, `alerts/test=hello,sensors/a={"v":1,"eq":"a=b"},empty/msg=`, list.String())

	assert.Error(t, list.Set("no-separator"))
	assert.Error(t, list.Set("sensors/#=wildcard"))
	assert.Error(t, list.Set("=empty topic"))
	assert.Len(t, list, 3)
}

func TestSplitPatterns(t *testing.T) {
	assert.Equal(t, []string{"a/#", "b/+/c"}, splitPatterns(" a/# , ,b/+/c,"))
	assert.Nil(t, splitPatterns(""))
}

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CLIConfig)
		wantErr bool
	}{
		{"defaults", func(*CLIConfig) {}, false},
		{"log level", func(c *CLIConfig) { c.LogLevel = "debug" }, false},
		{"bad log level", func(c *CLIConfig) { c.LogLevel = "loud" }, true},
		{"bad log format", func(c *CLIConfig) { c.LogFormat = "xml" }, true},
		{"bad pattern", func(c *CLIConfig) { c.Subscribe = "a/#/b" }, true},
		{"zero connect timeout", func(c *CLIConfig) { c.ConnectTimeout = 0 }, true},
		{"zero shutdown timeout", func(c *CLIConfig) { c.ShutdownTimeout = 0 }, true},
		{"version skips validation", func(c *CLIConfig) { c.ShowVersion = true; c.LogLevel = "loud" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validCLI()
			tt.mutate(cfg)
			err := validateFlags(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := config.Default()
	cli := validCLI()
	cli.LogLevel = "debug"
	cli.LogFormat = "json"
	cli.Subscribe = "sensors/#,alerts/+"

	applyOverrides(cfg, cli)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"sensors/#", "alerts/+"}, cfg.Subscribe)

	untouched := config.Default()
	applyOverrides(untouched, validCLI())
	assert.Equal(t, config.Default(), untouched)
}

func TestPrintConfig_Redacts(t *testing.T) {
	cfg := config.Default()
	cfg.Broker.Username = "edge"
	cfg.Broker.Password = "s3cret"

	var buf bytes.Buffer
	require.NoError(t, printConfig(&buf, cfg))

	assert.NotContains(t, buf.String(), "s3cret")

	var decoded config.Config
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "edge", decoded.Broker.Username)
	assert.Equal(t, "***", decoded.Broker.Password)
	assert.Equal(t, []string{"#"}, decoded.Subscribe)
}

func TestNewDialer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	d, err := newDialer(config.BrokerConfig{Transport: transport.KindMQTT}, logger)
	require.NoError(t, err)
	assert.IsType(t, &mqttclient.Dialer{}, d)

	d, err = newDialer(config.BrokerConfig{Transport: transport.KindNATS}, logger)
	require.NoError(t, err)
	assert.IsType(t, &natsclient.Dialer{}, d)
}

func TestManagerOptions(t *testing.T) {
	dialer := transport.DialerFunc(func(_ context.Context, _ transport.Config, _ transport.Handler) (transport.Conn, error) {
		return nil, nil
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.Default()
	assert.Len(t, managerOptions(cfg, logger, nil), 3)

	cfg.Broker.PublishRate = 10
	cfg.Broker.PublishBurst = 5
	opts := managerOptions(cfg, logger, metric.NewMetricsRegistry())
	assert.Len(t, opts, 5)

	m, err := pubsub.NewManager(cfg.Broker.TransportConfig(), dialer, opts...)
	require.NoError(t, err)
	assert.Equal(t, appName, m.Name())
}

func TestRegisterBuildInfo(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	require.NoError(t, registerBuildInfo(registry))

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if mf.GetName() != "busmux_build_info" {
			continue
		}
		found = true
		require.Len(t, mf.GetMetric(), 1)
		assert.Equal(t, 1.0, mf.GetMetric()[0].GetGauge().GetValue())

		labels := map[string]string{}
		for _, lp := range mf.GetMetric()[0].GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		assert.Equal(t, Version, labels["version"])
	}
	assert.True(t, found)

	assert.Error(t, registerBuildInfo(registry), "registered once per registry")
}

func TestLogNotification(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	observer := logNotification(logger)

	observer(pubsub.Notification{Kind: pubsub.KindReconnecting, State: pubsub.StateReconnecting, Message: "reconnecting to broker"})
	observer(pubsub.Notification{
		Kind:    pubsub.KindCallbackFailed,
		State:   pubsub.StateConnected,
		Message: "subscriber callback failed",
		Topic:   "a/b",
		Pattern: "a/+",
	})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))

	assert.Equal(t, "WARN", first["level"])
	assert.Equal(t, "reconnecting", first["kind"])
	assert.NotContains(t, first, "pattern")

	assert.Equal(t, "ERROR", second["level"])
	assert.Equal(t, "a/+", second["pattern"])
	assert.Equal(t, "a/b", second["topic"])
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("shown")

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record))
	assert.Equal(t, "shown", record["msg"])
	assert.Equal(t, appName, record["service"])
	assert.Equal(t, Version, record["version"])
}
