package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/c360/busmux/config"
	"github.com/c360/busmux/pubsub"
)

func setupLogger(w io.Writer, level, format string) *slog.Logger {
	var handler slog.Handler

	// Unknown levels were rejected by config validation
	logLevel, _ := config.ParseLevel(level)

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With(
		"service", appName,
		"version", Version,
		"pid", os.Getpid(),
	)
}

// logNotification logs connection notifications at the level they carry
func logNotification(logger *slog.Logger) pubsub.Observer {
	return func(n pubsub.Notification) {
		attrs := []any{"kind", n.Kind.String(), "state", n.State.String()}
		if n.Pattern != "" {
			attrs = append(attrs, "topic", n.Topic, "pattern", n.Pattern)
		}
		logger.Log(context.Background(), n.Level(), n.Message, attrs...)
	}
}

// logMessage logs every message delivered to a CLI subscription
func logMessage(logger *slog.Logger, pattern string) pubsub.MessageHandler {
	return func(topicName, message string) {
		logger.Info("Message received", "pattern", pattern, "topic", topicName, "message", message)
	}
}
