package model

import (
	"errors"
	"reflect"
	"time"
)

// ErrSessionSealed is returned when a sealed session would be modified.
var ErrSessionSealed = errors.New("measurement session is sealed")

// Summary holds precomputed metrics for one signal family, keyed by metric
// name (e.g. "heartRate", "stressIndex", "alphaPower").
type Summary map[string]float64

// MeasurementSession is the aggregated output of one recording.
// It is immutable once SealedAt is set.
type MeasurementSession struct {
	SessionID       string          `json:"sessionId"`
	OwnerUserID     string          `json:"ownerUserId"`
	OrganizationID  string          `json:"organizationId,omitempty"`
	StartedAt       time.Time       `json:"startedAt"`
	DurationSeconds int             `json:"durationSeconds"`
	EEGSummary      Summary         `json:"eegSummary"`
	PPGSummary      Summary         `json:"ppgSummary"`
	AccSummary      Summary         `json:"accSummary"`
	QualitySummary  QualitySnapshot `json:"qualitySummary"`
	SealedAt        *time.Time      `json:"sealedAt,omitempty"`
}

// IsSealed reports whether the session is read-only.
func (s *MeasurementSession) IsSealed() bool {
	return s != nil && s.SealedAt != nil
}

// Seal returns a sealed deep copy of s. Sealing an already sealed session
// returns it unchanged.
func (s MeasurementSession) Seal(at time.Time) MeasurementSession {
	out := s.Clone()
	if out.SealedAt == nil {
		t := at.UTC()
		out.SealedAt = &t
	}
	return out
}

// AccountID returns the paying account: the organization when present,
// otherwise the owning user.
func (s *MeasurementSession) AccountID() string {
	if s.OrganizationID != "" {
		return s.OrganizationID
	}
	return s.OwnerUserID
}

// Metric looks a metric up across all summaries.
func (s *MeasurementSession) Metric(name string) (float64, bool) {
	for _, sum := range []Summary{s.EEGSummary, s.PPGSummary, s.AccSummary} {
		if v, ok := sum[name]; ok {
			return v, true
		}
	}
	return 0, false
}

// HasData reports which data families carry at least one metric.
func (s *MeasurementSession) HasData() DataTypes {
	return DataTypes{
		EEG: len(s.EEGSummary) > 0,
		PPG: len(s.PPGSummary) > 0,
		ACC: len(s.AccSummary) > 0,
	}
}

// Clone returns a deep copy.
func (s MeasurementSession) Clone() MeasurementSession {
	out := s
	out.EEGSummary = s.EEGSummary.clone()
	out.PPGSummary = s.PPGSummary.clone()
	out.AccSummary = s.AccSummary.clone()
	if s.SealedAt != nil {
		t := *s.SealedAt
		out.SealedAt = &t
	}
	return out
}

// SameContent reports whether two sessions carry identical data, ignoring
// the seal timestamp.
func (s MeasurementSession) SameContent(o MeasurementSession) bool {
	a, b := s.Clone(), o.Clone()
	a.SealedAt, b.SealedAt = nil, nil
	a.StartedAt, b.StartedAt = a.StartedAt.UTC(), b.StartedAt.UTC()
	return reflect.DeepEqual(a, b)
}

func (m Summary) clone() Summary {
	if m == nil {
		return nil
	}
	out := make(Summary, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
