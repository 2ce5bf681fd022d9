// Package simulate drives a running report service over HTTP: it streams
// synthetic quality samples into gates, seals the sessions, submits
// analysis jobs and follows them to a terminal stage.
package simulate

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid simulation config")

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL        string        // Base URL of the service
	Sessions       int           // Number of measurement sessions to simulate
	Workers        int           // Sessions driven concurrently
	Timeout        time.Duration // Per-request HTTP timeout
	TickInterval   time.Duration // Delay between sample batches
	SamplesPerTick int           // Samples per channel in each batch
	GateTimeout    time.Duration // Give up on a gate that never fires
	JobTimeout     time.Duration // Give up on a job that never ends
	NoisyRatio     float64       // Fraction of sessions fed poor signal
	OwnerUserID    string        // Owner of every session; empty generates one per session
	OrganizationID string        // Paying organization, optional
	EngineID       string        // Engine to request; empty lets the service choose
	Budget         int           // Credit budget per job; zero lets the service pick the cheapest engine
	FollowEvents   bool          // Follow jobs over SSE instead of polling
	OutputFile     string        // Optional JSON file for per-session results
	Seed           uint64        // Random seed; zero seeds from the clock
	Verbose        bool          // Log every session step
}

// DefaultConfig returns the settings used by cmd/simulate.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://localhost:9080",
		Sessions:       10,
		Workers:        4,
		Timeout:        10 * time.Second,
		TickInterval:   500 * time.Millisecond,
		SamplesPerTick: 4,
		GateTimeout:    time.Minute,
		JobTimeout:     5 * time.Minute,
		NoisyRatio:     0.1,
		FollowEvents:   true,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	switch {
	case err != nil || u.Scheme == "" || u.Host == "":
		return fmt.Errorf("%w: base URL %q", ErrInvalidConfig, c.BaseURL)
	case c.Sessions <= 0:
		return fmt.Errorf("%w: sessions must be positive", ErrInvalidConfig)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	case c.TickInterval <= 0:
		return fmt.Errorf("%w: tick interval must be positive", ErrInvalidConfig)
	case c.SamplesPerTick <= 0:
		return fmt.Errorf("%w: samples per tick must be positive", ErrInvalidConfig)
	case c.GateTimeout <= 0 || c.JobTimeout <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	case c.Budget < 0:
		return fmt.Errorf("%w: budget must not be negative", ErrInvalidConfig)
	case c.NoisyRatio < 0 || c.NoisyRatio > 1:
		return fmt.Errorf("%w: noisy ratio must be within [0,1]", ErrInvalidConfig)
	}
	return nil
}
