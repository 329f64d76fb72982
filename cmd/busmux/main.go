// Package main implements the busmux command, which connects to a broker,
// logs every message matching the configured patterns and optionally
// publishes messages once connected.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/c360/busmux/config"
	"github.com/c360/busmux/metric"
	"github.com/c360/busmux/mqttclient"
	"github.com/c360/busmux/natsclient"
	"github.com/c360/busmux/pubsub"
	"github.com/c360/busmux/transport"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "busmux"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := initializeConfiguration(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.PrintConfig {
		return printConfig(os.Stdout, cfg)
	}

	logger := setupLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	logger.Info("Starting busmux",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"broker", cfg.Broker.TransportConfig().String())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return runManager(ctx, cfg, cliCfg, logger)
}

// initializeConfiguration loads the configuration and applies flag overrides
func initializeConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	applyOverrides(cfg, cliCfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyOverrides copies explicitly set flags over the loaded configuration
func applyOverrides(cfg *config.Config, cliCfg *CLIConfig) {
	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}
	if patterns := splitPatterns(cliCfg.Subscribe); len(patterns) > 0 {
		cfg.Subscribe = patterns
	}
}

func printConfig(w io.Writer, cfg *config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.Redacted()); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// newDialer selects the transport for the configured broker
func newDialer(broker config.BrokerConfig, logger *slog.Logger) (transport.Dialer, error) {
	switch broker.Transport {
	case transport.KindNATS:
		return natsclient.NewDialer(natsclient.WithLogger(logger))
	default:
		return mqttclient.NewDialer(mqttclient.WithLogger(logger))
	}
}

// managerOptions builds the manager options for cfg
func managerOptions(cfg *config.Config, logger *slog.Logger, registry *metric.MetricsRegistry) []pubsub.Option {
	opts := []pubsub.Option{
		pubsub.WithName(appName),
		pubsub.WithLogger(logger),
		pubsub.WithObserver(logNotification(logger)),
	}
	if registry != nil {
		opts = append(opts, pubsub.WithMetrics(registry))
	}
	if cfg.Broker.PublishRate > 0 {
		opts = append(opts, pubsub.WithPublishLimit(rate.Limit(cfg.Broker.PublishRate), cfg.Broker.PublishBurst))
	}
	return opts
}

// registerBuildInfo exposes the version as busmux_build_info
func registerBuildInfo(registry *metric.MetricsRegistry) error {
	info := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "busmux",
		Name:      "build_info",
		Help:      "Build information, always 1",
	}, []string{"version", "build_time", "go_version"})
	info.WithLabelValues(Version, BuildTime, runtime.Version()).Set(1)

	return registry.Register(appName, "build_info", info)
}

// runManager runs the manager, the optional metrics server and the one-shot
// publishes until ctx is cancelled
func runManager(ctx context.Context, cfg *config.Config, cliCfg *CLIConfig, logger *slog.Logger) error {
	dialer, err := newDialer(cfg.Broker, logger)
	if err != nil {
		return fmt.Errorf("create dialer: %w", err)
	}

	var registry *metric.MetricsRegistry
	if cfg.Metrics.Enabled {
		registry = metric.NewMetricsRegistry()
		if err := registerBuildInfo(registry); err != nil {
			return fmt.Errorf("register build info: %w", err)
		}
	}

	manager, err := pubsub.NewManager(cfg.Broker.TransportConfig(), dialer, managerOptions(cfg, logger, registry)...)
	if err != nil {
		return fmt.Errorf("create manager: %w", err)
	}

	for _, pattern := range cfg.Subscribe {
		manager.Subscribe(pattern, logMessage(logger, pattern))
	}
	manager.Start()

	g, gctx := errgroup.WithContext(ctx)

	if registry != nil {
		server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry, manager.Health)
		logger.Info("Serving metrics", "address", server.Address())

		g.Go(server.Start)
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
			defer stopCancel()
			return server.Stop(stopCtx)
		})
	}

	if len(cliCfg.Publish) > 0 {
		g.Go(func() error {
			publishWhenConnected(gctx, manager, cliCfg.Publish, cliCfg.ConnectTimeout, logger)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		closeCtx, closeCancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
		defer closeCancel()
		if err := manager.Close(closeCtx); err != nil {
			return fmt.Errorf("close manager: %w", err)
		}

		stats := manager.Stats()
		logger.Info("busmux shutdown complete",
			"received", stats.Received,
			"dispatched", stats.Dispatched,
			"published", stats.Published,
			"dropped", stats.Dropped)
		return nil
	})

	return g.Wait()
}

// publishWhenConnected waits for the connection and publishes every message
// once. Messages are not published if the broker is unreachable within timeout.
func publishWhenConnected(ctx context.Context, manager *pubsub.Manager, messages publishList, timeout time.Duration, logger *slog.Logger) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := manager.WaitForConnection(waitCtx); err != nil {
		logger.Warn("Skipping publish, broker not connected", "count", len(messages), "error", err)
		return
	}

	for _, msg := range messages {
		manager.Publish(msg.Topic, msg.Message)
		logger.Debug("Published message", "topic", msg.Topic)
	}

	if err := manager.Flush(ctx); err != nil {
		logger.Debug("Flush interrupted", "error", err)
	}
}
