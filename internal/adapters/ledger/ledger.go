// Package ledger implements the credit ledger behind pipeline.Ledger with
// in-memory, PostgreSQL and Redis backends. All backends settle a
// reservation exactly once: repeated Debit or Release calls are no-ops and
// settling the other way fails with pipeline.ErrReservationSettled.
package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/pipeline"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/metrics"
)

// Reservation states.
const (
	StateHeld     = "held"
	StateDebited  = "debited"
	StateReleased = "released"
)

// Ledger is the pipeline ledger plus account administration.
type Ledger interface {
	pipeline.Ledger
	// TopUp adds credits and returns the new balance.
	TopUp(ctx context.Context, accountID string, amount int) (int, error)
	// Balance returns the spendable balance; unknown accounts have zero.
	Balance(ctx context.Context, accountID string) (int, error)
}

func newReservationID() string {
	return "rsv_" + uuid.NewString()
}

func record(backend, op string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrInsufficientCredit):
		result = "insufficient"
	case errors.Is(err, pipeline.ErrReservationNotFound), errors.Is(err, pipeline.ErrReservationSettled):
		result = "rejected"
	default:
		result = "error"
	}
	metrics.RecordLedgerOperation(backend, op, result)
}
