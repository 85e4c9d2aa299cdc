package wsserver

import (
	"time"

	"github.com/AntonStoeckl/nostr-relay-go/eventstore"
)

// Option defines a functional option for configuring a Server.
type Option func(*Server) error

// WithAddr sets the listen address, e.g. ":7447" or "127.0.0.1:0".
func WithAddr(addr string) Option {
	return func(s *Server) error {
		s.addr = addr
		return nil
	}
}

// WithAllowedOrigins restricts browser origins. Empty or "*" allows all.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) error {
		s.allowedOrigins = origins
		return nil
	}
}

// WithReadLimit sets the maximum size of one inbound frame in bytes, larger frames close the connection.
func WithReadLimit(limit int64) Option {
	return func(s *Server) error {
		if limit <= 0 {
			return ErrInvalidReadLimit
		}

		s.readLimit = limit
		return nil
	}
}

// WithSendQueueSize sets how many outbound messages can be pending per client.
func WithSendQueueSize(size int) Option {
	return func(s *Server) error {
		if size <= 0 {
			return ErrInvalidQueueSize
		}

		s.sendQueueSize = size
		return nil
	}
}

// WithSendTimeout sets how long Send waits for room in a full queue before the client is disconnected.
func WithSendTimeout(timeout time.Duration) Option {
	return func(s *Server) error {
		if timeout <= 0 {
			return ErrInvalidSendTimeout
		}

		s.sendTimeout = timeout
		return nil
	}
}

// WithPingInterval sets the keepalive ping interval and the deadline for the matching pong.
func WithPingInterval(interval, pongTimeout time.Duration) Option {
	return func(s *Server) error {
		if interval <= 0 || pongTimeout <= interval {
			return ErrInvalidPingInterval
		}

		s.pingInterval = interval
		s.pongTimeout = pongTimeout
		return nil
	}
}

// WithAdmin enables the admin endpoint for the given API keys.
func WithAdmin(remover SubscriptionRemover, apiKeys ...string) Option {
	return func(s *Server) error {
		if remover == nil {
			return ErrNilSubscriptionRemover
		}

		s.remover = remover
		for _, key := range apiKeys {
			if key != "" {
				s.adminKeys.Add(key)
			}
		}

		return nil
	}
}

// WithLogger sets the logger, *slog.Logger satisfies it.
func WithLogger(logger eventstore.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector eventstore.MetricsCollector) Option {
	return func(s *Server) error {
		s.metricsCollector = collector
		return nil
	}
}
