package service

import (
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/adapters/ledger"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/adapters/repository"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/analysis"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/quality"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock drives gate monitors and session timestamps.
func WithClock(c quality.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithCompleter replaces the completer built from configuration.
func WithCompleter(c analysis.Completer) Option {
	return func(s *Service) {
		if c != nil {
			s.completer = c
		}
	}
}

// WithStore replaces the store built from configuration. The service does
// not close an injected store.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithLedger replaces the ledger built from configuration. The service does
// not close an injected ledger.
func WithLedger(l ledger.Ledger) Option {
	return func(s *Service) {
		if l != nil {
			s.ledger = l
		}
	}
}
