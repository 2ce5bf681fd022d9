// Package quality computes smoothed signal-quality snapshots and gates a
// measurement on continuous stability.
package quality

import "github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"

// DefaultWindowSize is the number of recent samples averaged per channel.
const DefaultWindowSize = 100

// Evaluate computes a snapshot from a sample slice ordered oldest first,
// averaging the most recent DefaultWindowSize samples per channel.
func Evaluate(samples []model.QualitySample, contacted bool) model.QualitySnapshot {
	return EvaluateWindow(samples, contacted, DefaultWindowSize)
}

// EvaluateWindow is Evaluate with an explicit window size.
func EvaluateWindow(samples []model.QualitySample, contacted bool, windowSize int) model.QualitySnapshot {
	if len(samples) == 0 {
		return model.NoDataSnapshot()
	}
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}

	var sums [3]float64
	var counts [3]int
	// walk backwards so each channel keeps only its newest samples
	for i := len(samples) - 1; i >= 0; i-- {
		idx, ok := channelIndex(samples[i].Channel)
		if !ok || counts[idx] >= windowSize {
			continue
		}
		sums[idx] += samples[i].Clamped().Score
		counts[idx]++
	}

	return model.NewQualitySnapshot(
		mean(sums[0], counts[0]),
		mean(sums[1], counts[1]),
		mean(sums[2], counts[2]),
		contacted,
	)
}

func channelIndex(c model.Channel) (int, bool) {
	switch c {
	case model.ChannelEEG:
		return 0, true
	case model.ChannelPPG:
		return 1, true
	case model.ChannelMotion:
		return 2, true
	}
	return 0, false
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
