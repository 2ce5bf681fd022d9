// Package config defines service configuration and its layered loading.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/catalog"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/quality"
)

// Storage and ledger backends.
const (
	StoreMemory    = "memory"
	StoreSQLite    = "sqlite"
	LedgerMemory   = "memory"
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`
	// CORSAllowedOrigins lists origins allowed by the API; empty allows all.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// QueueSize bounds the in-memory job queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of pipeline workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize bounds the submitted-job-ID cache.
	DedupeSize int `koanf:"dedupe_size"`

	QualityProfile           string `koanf:"quality_profile"`
	QualityExpression        string `koanf:"quality_expression"`
	QualityWindowSize        int    `koanf:"quality_window_size"`
	StabilityRequiredSeconds int    `koanf:"stability_required_seconds"`
	// RecordingDurationSeconds is how long a session records after its
	// gate fires before it is sealed.
	RecordingDurationSeconds int `koanf:"recording_duration_seconds"`

	ExecutionTimeoutMS  int    `koanf:"execution_timeout_ms"`
	ExecutionMaxRetries int    `koanf:"execution_max_retries"`
	RetryBaseDelayMS    int    `koanf:"retry_base_delay_ms"`
	AnalysisLanguage    string `koanf:"analysis_language"`
	AnalysisDepth       string `koanf:"analysis_depth"`

	// AIEndpointURL is the completion endpoint; empty runs engines against
	// a local canned completer.
	AIEndpointURL  string  `koanf:"ai_endpoint_url"`
	AIAPIKey       string  `koanf:"ai_api_key"`
	AIModel        string  `koanf:"ai_model"`
	AIRateLimitRPS float64 `koanf:"ai_rate_limit_rps"`
	AIRateBurst    int     `koanf:"ai_rate_burst"`

	StoreDriver string `koanf:"store_driver"`
	SQLitePath  string `koanf:"sqlite_path"`

	LedgerDriver  string `koanf:"ledger_driver"`
	PostgresDSN   string `koanf:"postgres_dsn"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// EnginesFile is a YAML engines file; empty registers the built-in engine.
	EnginesFile string `koanf:"engines_file"`
	// DefaultAccountCredit is granted to each account the first time one of
	// its sessions is opened.
	DefaultAccountCredit int `koanf:"default_account_credit"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:                 "info",
		LogFormat:                "text",
		Addr:                     ":9080",
		QueueSize:                1024,
		WorkerCount:              runtime.NumCPU() * 2,
		DedupeSize:               100_000,
		QualityProfile:           quality.ProfileStrict,
		QualityWindowSize:        quality.DefaultWindowSize,
		StabilityRequiredSeconds: 10,
		RecordingDurationSeconds: 60,
		ExecutionTimeoutMS:       120_000,
		ExecutionMaxRetries:      2,
		RetryBaseDelayMS:         500,
		AnalysisLanguage:         "en",
		AnalysisDepth:            catalog.DepthDetailed,
		AIModel:                  "gpt-4o-mini",
		AIRateLimitRPS:           2,
		AIRateBurst:              4,
		StoreDriver:              StoreMemory,
		SQLitePath:               "data/mindbreeze.db",
		LedgerDriver:             LedgerMemory,
		RedisAddr:                "localhost:6379",
		DefaultAccountCredit:     100,
	}
}

// ExecutionTimeout is ExecutionTimeoutMS as a duration.
func (c *Config) ExecutionTimeout() time.Duration {
	return time.Duration(c.ExecutionTimeoutMS) * time.Millisecond
}

// RetryBaseDelay is RetryBaseDelayMS as a duration.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMS) * time.Millisecond
}

// RecordingDuration is RecordingDurationSeconds as a duration.
func (c *Config) RecordingDuration() time.Duration {
	return time.Duration(c.RecordingDurationSeconds) * time.Second
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StabilityRequiredSeconds <= 0:
		return fmt.Errorf("%w: stability_required_seconds must be positive", ErrInvalidConfig)
	case c.RecordingDurationSeconds < 0:
		return fmt.Errorf("%w: recording_duration_seconds must not be negative", ErrInvalidConfig)
	case c.ExecutionTimeoutMS <= 0:
		return fmt.Errorf("%w: execution_timeout_ms must be positive", ErrInvalidConfig)
	case c.ExecutionMaxRetries < 0:
		return fmt.Errorf("%w: execution_max_retries must not be negative", ErrInvalidConfig)
	case c.DefaultAccountCredit < 0:
		return fmt.Errorf("%w: default_account_credit must not be negative", ErrInvalidConfig)
	}

	if strings.TrimSpace(c.QualityExpression) == "" {
		if _, ok := quality.ProfileExpression(c.QualityProfile); !ok {
			return fmt.Errorf("%w: unknown quality_profile %q without quality_expression", ErrInvalidConfig, c.QualityProfile)
		}
	}

	switch c.StoreDriver {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path is required for the sqlite store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}

	switch c.LedgerDriver {
	case LedgerMemory:
	case LedgerPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn is required for the postgres ledger", ErrInvalidConfig)
		}
	case LedgerRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr is required for the redis ledger", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown ledger_driver %q", ErrInvalidConfig, c.LedgerDriver)
	}

	switch c.AnalysisDepth {
	case catalog.DepthBasic, catalog.DepthDetailed, catalog.DepthComprehensive:
	default:
		return fmt.Errorf("%w: unknown analysis_depth %q", ErrInvalidConfig, c.AnalysisDepth)
	}
	return nil
}
