package simulate

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/types"
)

// Score ranges for synthetic quality streams.
const (
	cleanScoreMin   = 88.0
	cleanScoreRange = 12.0
	noisyScoreMin   = 20.0
	noisyScoreRange = 45.0
)

var channels = []model.Channel{model.ChannelEEG, model.ChannelPPG, model.ChannelMotion}

// generator produces synthetic sample batches and session summaries. It is
// safe for concurrent use.
type generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newGenerator(seed uint64) *generator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// uniform returns min + [0,span).
func (g *generator) uniform(minValue, span float64) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return minValue + g.rng.Float64()*span
}

// chance reports true with probability p.
func (g *generator) chance(p float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64() < p
}

// batch builds one tick of samples on every channel. Noisy sessions stay
// below the gate thresholds and report intermittent contact.
func (g *generator) batch(noisy bool, perChannel int, at time.Time) types.SampleBatch {
	minScore, span := cleanScoreMin, cleanScoreRange
	contacted := true
	if noisy {
		minScore, span = noisyScoreMin, noisyScoreRange
		contacted = g.chance(0.5)
	}
	out := types.SampleBatch{
		Samples:   make([]model.QualitySample, 0, perChannel*len(channels)),
		Contacted: &contacted,
	}
	for i := 0; i < perChannel; i++ {
		for _, ch := range channels {
			out.Samples = append(out.Samples, model.QualitySample{
				Channel:   ch,
				Score:     g.uniform(minScore, span),
				Timestamp: at,
			})
		}
	}
	return out
}

// summaries builds plausible per-signal metrics for a sealed session.
func (g *generator) summaries() types.SealRequest {
	return types.SealRequest{
		EEGSummary: model.Summary{
			"alphaPower":      g.uniform(0.2, 0.6),
			"betaPower":       g.uniform(0.1, 0.5),
			"thetaPower":      g.uniform(0.1, 0.4),
			"focusIndex":      g.uniform(30, 60),
			"relaxationIndex": g.uniform(30, 60),
		},
		PPGSummary: model.Summary{
			"heartRate":   g.uniform(58, 40),
			"rmssd":       g.uniform(20, 60),
			"stressIndex": g.uniform(20, 60),
		},
		AccSummary: model.Summary{
			"movementIndex": g.uniform(0, 0.3),
		},
	}
}
