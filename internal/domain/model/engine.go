package model

// EngineStatus marks whether an engine accepts new jobs.
type EngineStatus string

// Engine statuses.
const (
	EngineActive   EngineStatus = "ACTIVE"
	EngineInactive EngineStatus = "INACTIVE"
)

// DataTypes flags the signal families an engine supports or a caller requires.
type DataTypes struct {
	EEG bool `json:"eeg" yaml:"eeg"`
	PPG bool `json:"ppg" yaml:"ppg"`
	ACC bool `json:"acc" yaml:"acc"`
}

// Intersects reports whether d and o share at least one family.
func (d DataTypes) Intersects(o DataTypes) bool {
	return (d.EEG && o.EEG) || (d.PPG && o.PPG) || (d.ACC && o.ACC)
}

// Any reports whether at least one family is set.
func (d DataTypes) Any() bool {
	return d.EEG || d.PPG || d.ACC
}

// Capabilities describes engine limits.
type Capabilities struct {
	MaxDataDurationSec int      `json:"maxDataDurationSec" yaml:"maxDataDurationSec"`
	RealTime           bool     `json:"realTime" yaml:"realTime"`
	Languages          []string `json:"languages" yaml:"languages"`
}

// SupportsLanguage reports whether lang is declared; an empty list accepts all.
func (c Capabilities) SupportsLanguage(lang string) bool {
	if len(c.Languages) == 0 {
		return true
	}
	for _, l := range c.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// EngineDescriptor describes a pluggable analysis backend.
type EngineDescriptor struct {
	ID                 string       `json:"id" yaml:"id"`
	Name               string       `json:"name" yaml:"name"`
	Version            string       `json:"version" yaml:"version"`
	Provider           string       `json:"provider" yaml:"provider"`
	CostPerAnalysis    int          `json:"costPerAnalysis" yaml:"costPerAnalysis"`
	SupportedDataTypes DataTypes    `json:"supportedDataTypes" yaml:"supportedDataTypes"`
	Capabilities       Capabilities `json:"capabilities" yaml:"capabilities"`
	Status             EngineStatus `json:"status" yaml:"status"`
	// MinQuality is the minimum session overall quality the engine accepts.
	MinQuality float64 `json:"minQuality" yaml:"minQuality"`
	// RequiredMetrics must all be present in the session summaries.
	RequiredMetrics []string `json:"requiredMetrics,omitempty" yaml:"requiredMetrics"`
}

// Active reports whether the engine accepts jobs.
func (e EngineDescriptor) Active() bool {
	return e.Status == EngineActive
}

// EngineUsage is the mutable usage history kept per engine.
type EngineUsage struct {
	Count         int64   `json:"count"`
	RatingCount   int64   `json:"ratingCount"`
	AverageRating float64 `json:"averageRating"`
}
