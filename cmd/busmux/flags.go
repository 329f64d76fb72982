package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/c360/busmux/topic"
)

// CLIConfig holds command-line configuration. Empty string fields fall back
// to the loaded configuration file.
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Subscribe       string
	Publish         publishList
	ConnectTimeout  time.Duration
	ShutdownTimeout time.Duration
	PrintConfig     bool
	ShowVersion     bool
	ShowHelp        bool
}

// publishArg is one -publish topic=message argument
type publishArg struct {
	Topic   string
	Message string
}

// publishList collects repeated -publish flags
type publishList []publishArg

func (p *publishList) String() string {
	parts := make([]string, 0, len(*p))
	for _, arg := range *p {
		parts = append(parts, arg.Topic+"="+arg.Message)
	}
	return strings.Join(parts, ",")
}

func (p *publishList) Set(value string) error {
	topicName, message, ok := strings.Cut(value, "=")
	if !ok {
		return fmt.Errorf("expected topic=message, got %q", value)
	}
	if err := topic.ValidateTopic(topicName); err != nil {
		return err
	}
	*p = append(*p, publishArg{Topic: topicName, Message: message})
	return nil
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	// Define flags with environment variable fallback
	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("BUSMUX_CONFIG", ""),
		"Path to configuration file, yaml/json/toml (env: BUSMUX_CONFIG)")

	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("BUSMUX_CONFIG", ""),
		"Path to configuration file, yaml/json/toml (env: BUSMUX_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides log.level)")

	flag.StringVar(&cfg.LogFormat, "log-format", "",
		"Log format: json, text (overrides log.format)")

	flag.StringVar(&cfg.Subscribe, "subscribe", "",
		"Comma separated topic patterns to subscribe to (overrides subscribe)")

	flag.Var(&cfg.Publish, "publish",
		"Publish topic=message once connected, repeatable")

	flag.DurationVar(&cfg.ConnectTimeout, "connect-timeout",
		getEnvDuration("BUSMUX_CONNECT_TIMEOUT", 15*time.Second),
		"How long -publish waits for the connection (env: BUSMUX_CONNECT_TIMEOUT)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("BUSMUX_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: BUSMUX_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.PrintConfig, "print-config", false, "Print the effective configuration and exit")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")

	flag.Usage = func() {
		printDetailedHelp()
	}

	flag.Parse()

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.LogLevel != "" && !contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	if cfg.LogFormat != "" && !contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	for _, pattern := range splitPatterns(cfg.Subscribe) {
		if err := topic.ValidatePattern(pattern); err != nil {
			return fmt.Errorf("invalid -subscribe pattern: %w", err)
		}
	}

	if cfg.ConnectTimeout <= 0 {
		return fmt.Errorf("invalid connect timeout: %v", cfg.ConnectTimeout)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %v", cfg.ShutdownTimeout)
	}

	return nil
}

// splitPatterns splits a comma separated pattern list, dropping blanks
func splitPatterns(list string) []string {
	var patterns []string
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - single-connection pub/sub multiplexer

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Watch everything on a local MQTT-over-WebSocket broker
  %s

  # Watch sensor topics on NATS
  BUSMUX_BROKER_TRANSPORT=nats BUSMUX_BROKER_PROTOCOL=nats BUSMUX_BROKER_PORT=4222 \
    %s -subscribe 'sensors/#'

  # Publish once connected, then keep watching
  %s -config busmux.yaml -publish 'alerts/test={"level":"info"}'

  # Show the effective configuration
  %s -config busmux.yaml -print-config

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Utility function to check if slice contains string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
