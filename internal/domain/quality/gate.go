package quality

import (
	"sync"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/metrics"
)

// Gate enforces that a profile holds for Required consecutive ticks.
// Once satisfied it stays inert until Reopen.
type Gate struct {
	mu      sync.Mutex
	profile *Profile
	state   model.StabilityState
	last    model.QualitySnapshot
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithRequiredSeconds sets the continuous stability requirement.
func WithRequiredSeconds(n int) GateOption {
	return func(g *Gate) {
		if n > 0 {
			g.state.Required = n
		}
	}
}

// NewGate creates a gate for profile.
func NewGate(profile *Profile, opts ...GateOption) *Gate {
	g := &Gate{
		profile: profile,
		state:   model.StabilityState{Required: model.DefaultStabilitySeconds},
		last:    model.NoDataSnapshot(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Tick advances the stability counter by one second of evaluation.
func (g *Gate) Tick(s model.QualitySnapshot) model.StabilityState {
	g.mu.Lock()
	defer g.mu.Unlock()
	metrics.RecordGateTick()
	g.last = s

	if g.state.Satisfied {
		out := g.state
		out.Fired = false
		return out
	}

	if g.profile.Allows(s) {
		g.state.ElapsedSeconds++
	} else {
		g.state.ElapsedSeconds = 0
	}

	g.state.Fired = false
	if g.state.ElapsedSeconds >= g.state.Required {
		g.state.Satisfied = true
		g.state.Fired = true
		metrics.RecordGateFired()
	}
	return g.state
}

// State returns the latest stability state.
func (g *Gate) State() model.StabilityState {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := g.state
	out.Fired = false
	return out
}

// LastSnapshot returns the snapshot seen by the latest tick.
func (g *Gate) LastSnapshot() model.QualitySnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// Reopen resets the gate for a new stability run.
func (g *Gate) Reopen() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = model.StabilityState{Required: g.state.Required}
}

// Profile returns the gate's predicate.
func (g *Gate) Profile() *Profile { return g.profile }

// IsReady reports whether the stability requirement has been met.
func IsReady(state model.StabilityState) bool {
	return state.Satisfied
}
