package pipeline

import (
	"errors"
	"fmt"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
)

// Sentinel errors shared with the ledger and store adapters.
var (
	ErrNotFound            = errors.New("not found")
	ErrJobNotFound         = fmt.Errorf("job %w", ErrNotFound)
	ErrSessionNotFound     = fmt.Errorf("session %w", ErrNotFound)
	ErrDuplicateJob        = errors.New("job already submitted")
	ErrCancelRefused       = errors.New("job can no longer be cancelled")
	ErrInvalidRequest      = errors.New("invalid submit request")
	ErrInsufficientCredit  = errors.New("insufficient credit")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrReservationSettled  = errors.New("reservation already settled differently")
	ErrInvalidAmount       = errors.New("amount must not be negative")
)

// Error is a classified pipeline failure recorded on a job.
type Error struct {
	Kind    model.ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail())
}

// Detail is the message recorded on the job.
func (e *Error) Detail() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind model.ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the ErrorKind carried by err, or INTERNAL.
func KindOf(err error) model.ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return model.ErrorKindInternal
}
