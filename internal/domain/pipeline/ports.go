package pipeline

import (
	"context"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
)

// Ledger reserves and settles credits. Debit and Release are idempotent per
// reservation; settling a reservation the other way fails with
// ErrReservationSettled.
type Ledger interface {
	// Reserve holds amount credits for accountID. It fails with
	// ErrInsufficientCredit when the balance is too low.
	Reserve(ctx context.Context, accountID string, amount int) (string, error)
	Debit(ctx context.Context, reservationID string) error
	Release(ctx context.Context, reservationID string) error
}

// ReportStore persists jobs and sessions.
type ReportStore interface {
	// Put upserts job by JobID and notifies subscribers.
	Put(ctx context.Context, job model.PipelineJob) error
	// Get fails with ErrJobNotFound for unknown IDs.
	Get(ctx context.Context, jobID string) (model.PipelineJob, error)
	// Subscribe calls fn with every stored version of the job until the
	// returned cancel func is called.
	Subscribe(jobID string, fn func(model.PipelineJob)) (cancel func())

	// PutSession stores a session. A sealed session cannot be replaced by
	// different content (model.ErrSessionSealed).
	PutSession(ctx context.Context, session model.MeasurementSession) error
	// GetSession fails with ErrSessionNotFound for unknown IDs.
	GetSession(ctx context.Context, sessionID string) (model.MeasurementSession, error)
}
