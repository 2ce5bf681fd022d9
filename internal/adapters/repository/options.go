package repository

import "time"

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// SQLiteOption configures the SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithBusyTimeout sets how long SQLite waits on a locked database.
func WithBusyTimeout(d time.Duration) SQLiteOption {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.busyTimeout = d
		}
	}
}
