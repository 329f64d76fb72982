// Package health reports broker connection health in a form safe to expose
// outside the process.
package health

import (
	"regexp"
	"strings"
	"time"
)

// Pre-compiled regexes for error message sanitization
var (
	brokerURLRegex   = regexp.MustCompile(`(?i)\b(?:https?|wss?|tcp|ssl|tls|mqtts?|nats)://[^\s]+`)
	unixPathRegex    = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	windowsPathRegex = regexp.MustCompile(`[A-Z]:\\[^:\s]+`)
	ipAddrRegex      = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex        = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex  = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status values
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Status represents the health state of the broker connection
type Status struct {
	Component string    `json:"component"`
	Healthy   bool      `json:"healthy"`
	Status    string    `json:"status"`
	State     string    `json:"state,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Metrics   *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains health-related counters
type Metrics struct {
	Subscriptions    int       `json:"subscriptions"`
	Reconnects       int64     `json:"reconnects"`
	MessagesReceived int64     `json:"messages_received"`
	CallbackFailures int64     `json:"callback_failures"`
	LastActivity     time.Time `json:"last_activity,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == StatusHealthy
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == StatusDegraded
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == StatusUnhealthy
}

// WithMetrics returns a copy of the status with metrics attached
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// Healthy creates a healthy status
func Healthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		Status:    StatusHealthy,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Degraded creates a degraded status
func Degraded(component, message string) Status {
	return Status{
		Component: component,
		Status:    StatusDegraded,
		Message:   SanitizeErrorMessage(message),
		Timestamp: time.Now(),
	}
}

// Unhealthy creates an unhealthy status
func Unhealthy(component, message string) Status {
	return Status{
		Component: component,
		Status:    StatusUnhealthy,
		Message:   SanitizeErrorMessage(message),
		Timestamp: time.Now(),
	}
}

// FromConnectionState maps a connection state name to a health status.
// "connected" is healthy, "connecting" and "reconnecting" are degraded,
// anything else is unhealthy. lastErr is sanitized before use.
func FromConnectionState(component, state string, lastErr error) Status {
	var s Status
	switch state {
	case "connected":
		s = Healthy(component, "connected to broker")
	case "connecting", "reconnecting":
		s = Degraded(component, state+" to broker")
	default:
		message := "not connected to broker"
		if lastErr != nil {
			message = lastErr.Error()
		}
		s = Unhealthy(component, message)
	}
	s.State = state
	return s
}

// SanitizeErrorMessage removes potentially sensitive information from error
// messages before they leave the process:
//   - broker and HTTP URLs → [URL]
//   - file paths → [PATH]
//   - IP addresses → [IP]
//   - port numbers → [PORT]
//   - credentials (password=X, token=X, key=X, secret=X) → [REDACTED]
func SanitizeErrorMessage(err string) string {
	if err == "" {
		return ""
	}

	sanitized := brokerURLRegex.ReplaceAllString(err, "[URL]")

	sanitized = unixPathRegex.ReplaceAllString(sanitized, "[PATH]")
	sanitized = windowsPathRegex.ReplaceAllString(sanitized, "[PATH]")

	sanitized = ipAddrRegex.ReplaceAllString(sanitized, "[IP]")
	sanitized = portRegex.ReplaceAllString(sanitized, "[PORT]")

	lowerSanitized := strings.ToLower(sanitized)
	if strings.Contains(lowerSanitized, "password") || strings.Contains(lowerSanitized, "token") ||
		strings.Contains(lowerSanitized, "key") || strings.Contains(lowerSanitized, "secret") ||
		strings.Contains(lowerSanitized, "credential") {
		sanitized = credentialRegex.ReplaceAllString(sanitized, "[REDACTED]")
	}

	return sanitized
}
