package pubsub

import (
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/c360/busmux/errors"
	"github.com/c360/busmux/metric"
)

// Option is a functional option for configuring the Manager
type Option func(*Manager) error

// WithLogger sets the structured logger. A nil logger keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger
		return nil
	}
}

// WithMetrics records manager metrics into the registry's core metrics
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(m *Manager) error {
		if registry == nil {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Manager", "WithMetrics", "metrics registry is nil")
		}
		m.metrics = registry.CoreMetrics()
		return nil
	}
}

// WithObserver adds an observer for connection and callback notifications.
// May be given more than once.
func WithObserver(observer Observer) Option {
	return func(m *Manager) error {
		if observer == nil {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Manager", "WithObserver", "observer is nil")
		}
		m.observers = append(m.observers, observer)
		return nil
	}
}

// WithPublishLimit drops publishes exceeding limit messages per second with
// the given burst
func WithPublishLimit(limit rate.Limit, burst int) Option {
	return func(m *Manager) error {
		if burst < 1 {
			return errors.WrapInvalid(
				fmt.Errorf("%w: burst must be at least 1, got %d", errors.ErrInvalidConfig, burst),
				"Manager", "WithPublishLimit", "validate burst")
		}
		m.limiter = rate.NewLimiter(limit, burst)
		return nil
	}
}

// WithName sets the component name used in logs and health reports
func WithName(name string) Option {
	return func(m *Manager) error {
		if name == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Manager", "WithName", "name is empty")
		}
		m.name = name
		return nil
	}
}
