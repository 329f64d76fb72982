package pubsub

import (
	"log/slog"
	"time"
)

// NotificationKind identifies what a Notification reports
type NotificationKind int

// Notification kinds
const (
	KindConnected NotificationKind = iota + 1
	KindReconnecting
	KindError
	KindCallbackFailed
)

// String returns the string representation of NotificationKind
func (k NotificationKind) String() string {
	switch k {
	case KindConnected:
		return "connected"
	case KindReconnecting:
		return "reconnecting"
	case KindError:
		return "error"
	case KindCallbackFailed:
		return "callback_failed"
	default:
		return "unknown"
	}
}

// Notification describes a change in connection health or a failed
// subscriber callback. Message never contains broker addresses or
// credentials.
type Notification struct {
	Kind    NotificationKind
	State   ConnectionState
	Message string
	Err     error

	// Set for KindCallbackFailed
	Topic   string
	Pattern string

	Time time.Time
}

// Level maps the notification to a log level: connected is informational,
// reconnecting is a warning, everything else is an error.
func (n Notification) Level() slog.Level {
	switch n.Kind {
	case KindConnected:
		return slog.LevelInfo
	case KindReconnecting:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Observer receives notifications. Observers run on the dispatch loop and
// must not block; a panicking observer is recovered and logged.
type Observer func(Notification)
