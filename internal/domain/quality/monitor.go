package quality

import (
	"context"
	"sync"
	"time"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/logger"
)

// TickInterval is the stability evaluation cadence.
const TickInterval = time.Second

// ReadyFunc is invoked once when the gate fires.
type ReadyFunc func(state model.StabilityState, snapshot model.QualitySnapshot)

// TickFunc observes every evaluation.
type TickFunc func(state model.StabilityState, snapshot model.QualitySnapshot)

// Monitor drives a Gate from a Window on a fixed cadence.
type Monitor struct {
	gate    *Gate
	window  *Window
	clock   Clock
	onReady ReadyFunc
	onTick  TickFunc
	log     logger.Logger
	once    sync.Once
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithClock injects the tick source.
func WithClock(c Clock) MonitorOption {
	return func(m *Monitor) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithOnReady sets the ready callback.
func WithOnReady(fn ReadyFunc) MonitorOption {
	return func(m *Monitor) { m.onReady = fn }
}

// WithOnTick sets the per-tick observer.
func WithOnTick(fn TickFunc) MonitorOption {
	return func(m *Monitor) { m.onTick = fn }
}

// WithMonitorLogger sets the logger.
func WithMonitorLogger(l logger.Logger) MonitorOption {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

// NewMonitor creates a monitor over gate and window.
func NewMonitor(gate *Gate, window *Window, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		gate:   gate,
		window: window,
		clock:  RealClock{},
		log:    logger.Named("quality"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run ticks until the gate fires or ctx is done. It returns nil after the
// ready callback ran and ctx.Err() on cancellation.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := m.clock.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			snap := m.window.Snapshot()
			state := m.gate.Tick(snap)
			if m.onTick != nil {
				m.onTick(state, snap)
			}
			if !IsReady(state) {
				continue
			}
			m.once.Do(func() {
				m.log.Info(ctx, "quality gate ready",
					logger.String("profile", m.gate.Profile().Name()),
					logger.Int("elapsedSeconds", state.ElapsedSeconds),
					logger.Float64("overall", snap.Overall))
				if m.onReady != nil {
					m.onReady(state, snap)
				}
			})
			return nil
		}
	}
}
