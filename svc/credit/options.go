package credit

import (
	"log/slog"

	"github.com/coachkit/creditledger/pkg/metrics"
)

// Option configures a Service.
type Option func(*Service)

// WithGrants replaces the default grants. Invalid grants panic at construction.
func WithGrants(g Grants) Option {
	return func(s *Service) {
		if err := g.Validate(); err != nil {
			panic(err)
		}
		s.grants = g
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}
