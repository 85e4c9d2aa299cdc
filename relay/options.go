package relay

import (
	"time"

	"github.com/AntonStoeckl/nostr-relay-go/eventstore"
)

// settings holds the optional collaborators shared by all components of the relay core.
type settings struct {
	logger           eventstore.Logger
	contextualLogger eventstore.ContextualLogger
	metricsCollector eventstore.MetricsCollector
	tracingCollector eventstore.TracingCollector
	now              func() time.Time
}

// Option defines a functional option for the components of the relay core.
type Option func(*settings) error

func newSettings(options []Option) (settings, error) {
	s := settings{now: time.Now}

	for _, option := range options {
		if err := option(&s); err != nil {
			return settings{}, err
		}
	}

	return s, nil
}

// WithLogger sets the logger. Lifecycle events are logged at info, per-message details at debug level.
func WithLogger(logger eventstore.Logger) Option {
	return func(s *settings) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets a logger that correlates records with the active trace.
// It takes precedence over WithLogger for messages that have a context.
func WithContextualLogger(logger eventstore.ContextualLogger) Option {
	return func(s *settings) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector eventstore.MetricsCollector) Option {
	return func(s *settings) error {
		s.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector. Every inbound message gets its own span.
func WithTracing(collector eventstore.TracingCollector) Option {
	return func(s *settings) error {
		s.tracingCollector = collector
		return nil
	}
}

// WithClock replaces time.Now, it is used for subscription creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *settings) error {
		if now == nil {
			return ErrNilClock
		}

		s.now = now
		return nil
	}
}
