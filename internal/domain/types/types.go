// Package types contains the wire shapes shared by the HTTP API, the service
// layer and the simulator.
package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/catalog"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
)

// ErrInvalidFlag is returned for unparsable boolean query values.
var ErrInvalidFlag = errors.New("invalid boolean flag")

// OpenGateRequest opens a measurement session behind a quality gate.
type OpenGateRequest struct {
	SessionID      string `json:"sessionId,omitempty"`
	OwnerUserID    string `json:"ownerUserId"`
	OrganizationID string `json:"organizationId,omitempty"`
	// Profile and Expression override the configured quality profile.
	Profile    string `json:"profile,omitempty"`
	Expression string `json:"expression,omitempty"`
	// RequiredSeconds overrides the continuous-stability requirement.
	RequiredSeconds int `json:"requiredSeconds,omitempty"`
}

// SampleBatch feeds quality samples into an open gate.
type SampleBatch struct {
	Samples []model.QualitySample `json:"samples"`
	// Contacted updates the sensor contact flag when set.
	Contacted *bool `json:"contacted,omitempty"`
}

// Validate rejects samples on unknown channels.
func (b SampleBatch) Validate() error {
	for i, s := range b.Samples {
		if !s.Channel.Valid() {
			return fmt.Errorf("sample %d: unknown channel %q", i, s.Channel)
		}
	}
	return nil
}

// SealRequest carries the session summaries computed upstream.
type SealRequest struct {
	EEGSummary model.Summary `json:"eegSummary"`
	PPGSummary model.Summary `json:"ppgSummary"`
	AccSummary model.Summary `json:"accSummary"`
}

// GateStatus is the observable state of one gate.
type GateStatus struct {
	SessionID  string                `json:"sessionId"`
	Profile    string                `json:"profile"`
	State      model.StabilityState  `json:"state"`
	Snapshot   model.QualitySnapshot `json:"snapshot"`
	Samples    int64                 `json:"samples"`
	Ready      bool                  `json:"ready"`
	ReadyAt    *time.Time            `json:"readyAt,omitempty"`
	SealableAt *time.Time            `json:"sealableAt,omitempty"`
}

// JobAck answers a job submission.
type JobAck struct {
	Status    string            `json:"status"`
	Duplicate bool              `json:"duplicate"`
	Job       model.PipelineJob `json:"job"`
}

// Ack statuses.
const (
	AckAccepted  = "accepted"
	AckDuplicate = "duplicate"
)

// JobEvent is one server-sent progress update.
type JobEvent struct {
	JobID       string          `json:"jobId"`
	Stage       model.Stage     `json:"stage"`
	ProgressPct float64         `json:"progressPct"`
	Terminal    bool            `json:"terminal"`
	ErrorKind   model.ErrorKind `json:"errorKind,omitempty"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// NewJobEvent projects a job onto its progress event.
func NewJobEvent(j model.PipelineJob) JobEvent {
	return JobEvent{
		JobID:       j.JobID,
		Stage:       j.Stage,
		ProgressPct: j.ProgressPct,
		Terminal:    j.IsTerminal(),
		ErrorKind:   j.ErrorKind,
		UpdatedAt:   j.UpdatedAt,
	}
}

// EngineList is the ranked engine listing.
type EngineList struct {
	Budget  int                    `json:"budget"`
	Engines []catalog.RankedEngine `json:"engines"`
}

// RatingRequest rates an engine from 1 to 5.
type RatingRequest struct {
	Rating float64 `json:"rating"`
}

// TopUpRequest adds credits to an account.
type TopUpRequest struct {
	Amount int `json:"amount"`
}

// Balance reports an account's spendable credits.
type Balance struct {
	AccountID string `json:"accountId"`
	Balance   int    `json:"balance"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Stats is a point-in-time service summary.
type Stats struct {
	Started       bool   `json:"started"`
	Workers       int    `json:"workers"`
	BusyWorkers   int    `json:"busyWorkers"`
	QueueLength   int    `json:"queueLength"`
	QueueCapacity int    `json:"queueCapacity"`
	Jobs          int    `json:"jobs"`
	Sessions      int    `json:"sessions"`
	ActiveGates   int    `json:"activeGates"`
	Engines       int    `json:"engines"`
	DedupeSize    int64  `json:"dedupeSize"`
	StoreDriver   string `json:"storeDriver"`
	LedgerDriver  string `json:"ledgerDriver"`
	Profile       string `json:"qualityProfile"`
}

// ParseDataTypes reads the eeg, ppg and acc query flags. Empty values are
// false.
func ParseDataTypes(eeg, ppg, acc string) (model.DataTypes, error) {
	var (
		out model.DataTypes
		err error
	)
	if out.EEG, err = parseFlag("eeg", eeg); err != nil {
		return model.DataTypes{}, err
	}
	if out.PPG, err = parseFlag("ppg", ppg); err != nil {
		return model.DataTypes{}, err
	}
	if out.ACC, err = parseFlag("acc", acc); err != nil {
		return model.DataTypes{}, err
	}
	return out, nil
}

func parseFlag(name, v string) (bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q", ErrInvalidFlag, name, v)
	}
	return b, nil
}
