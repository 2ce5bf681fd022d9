package quality

import (
	"sync"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
)

// ring is a fixed-capacity buffer keeping a running sum.
type ring struct {
	buf  []float64
	next int
	n    int
	sum  float64
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]float64, capacity)}
}

func (r *ring) add(v float64) {
	if r.n == len(r.buf) {
		r.sum -= r.buf[r.next]
	} else {
		r.n++
	}
	r.buf[r.next] = v
	r.sum += v
	r.next = (r.next + 1) % len(r.buf)
}

func (r *ring) mean() float64 {
	if r.n == 0 {
		return 0
	}
	return r.sum / float64(r.n)
}

// Window keeps the most recent samples per channel and the current sensor
// contact flag. It is safe for concurrent producers.
type Window struct {
	mu        sync.Mutex
	size      int
	channels  [3]*ring
	contacted bool
	total     int64
}

// WindowOption configures a Window.
type WindowOption func(*Window)

// WithWindowSize sets the per-channel capacity.
func WithWindowSize(n int) WindowOption {
	return func(w *Window) {
		if n > 0 {
			w.size = n
		}
	}
}

// NewWindow creates an empty window.
func NewWindow(opts ...WindowOption) *Window {
	w := &Window{size: DefaultWindowSize}
	for _, opt := range opts {
		opt(w)
	}
	for i := range w.channels {
		w.channels[i] = newRing(w.size)
	}
	return w
}

// Add ingests one sample. Unknown channels are ignored and out-of-range
// scores are clamped.
func (w *Window) Add(s model.QualitySample) {
	idx, ok := channelIndex(s.Channel)
	if !ok {
		return
	}
	s = s.Clamped()
	w.mu.Lock()
	w.channels[idx].add(s.Score)
	w.total++
	w.mu.Unlock()
}

// SetContact records whether the headset currently touches the skin.
func (w *Window) SetContact(contacted bool) {
	w.mu.Lock()
	w.contacted = contacted
	w.mu.Unlock()
}

// Samples returns how many samples were ingested in total.
func (w *Window) Samples() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.total
}

// Snapshot returns the current smoothed view.
func (w *Window) Snapshot() model.QualitySnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.total == 0 {
		return model.NoDataSnapshot()
	}
	return model.NewQualitySnapshot(
		w.channels[0].mean(),
		w.channels[1].mean(),
		w.channels[2].mean(),
		w.contacted,
	)
}
