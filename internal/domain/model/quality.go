// Package model contains domain models passed between layers.
package model

import "time"

// Channel identifies a biosignal quality stream.
type Channel string

// Quality channels.
const (
	ChannelEEG    Channel = "EEG"
	ChannelPPG    Channel = "PPG"
	ChannelMotion Channel = "MOTION"
)

// Quality score bounds.
const (
	MinQualityScore = 0.0
	MaxQualityScore = 100.0
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEEG, ChannelPPG, ChannelMotion:
		return true
	}
	return false
}

// QualitySample is a single per-channel quality score emitted by the
// upstream signal pipeline.
type QualitySample struct {
	Channel   Channel   `json:"channel"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// Clamped returns the sample with its score forced into [0,100].
func (s QualitySample) Clamped() QualitySample {
	switch {
	case s.Score < MinQualityScore:
		s.Score = MinQualityScore
	case s.Score > MaxQualityScore:
		s.Score = MaxQualityScore
	case s.Score != s.Score: // NaN
		s.Score = MinQualityScore
	}
	return s
}

// QualitySnapshot is the smoothed quality view computed on each evaluation tick.
type QualitySnapshot struct {
	EEG             float64 `json:"eeg"`
	PPG             float64 `json:"ppg"`
	Motion          float64 `json:"motion"`
	Overall         float64 `json:"overall"`
	SensorContacted bool    `json:"sensorContacted"`
}

// NewQualitySnapshot builds a snapshot, applying the contact rule and
// computing the overall mean.
func NewQualitySnapshot(eeg, ppg, motion float64, contacted bool) QualitySnapshot {
	if !contacted {
		eeg, ppg = 0, 0
	}
	return QualitySnapshot{
		EEG:             eeg,
		PPG:             ppg,
		Motion:          motion,
		Overall:         (eeg + ppg + motion) / 3,
		SensorContacted: contacted,
	}
}

// NoDataSnapshot is reported when the sample stream produced nothing.
func NoDataSnapshot() QualitySnapshot {
	return NewQualitySnapshot(0, 0, MaxQualityScore, false)
}

// StabilityState tracks how long the gating predicate has held.
type StabilityState struct {
	ElapsedSeconds int  `json:"elapsedSeconds"`
	Required       int  `json:"required"`
	Satisfied      bool `json:"satisfied"`
	// Fired is set only on the tick where Satisfied first became true.
	Fired bool `json:"fired"`
}

// DefaultStabilitySeconds is the continuous-stability requirement.
const DefaultStabilitySeconds = 10
