package service

import "errors"

// Sentinel errors surfaced to the HTTP layer.
var (
	ErrNotStarted       = errors.New("service not started")
	ErrGateExists       = errors.New("a quality gate is already open for this session")
	ErrGateNotFound     = errors.New("quality gate not found")
	ErrGateNotReady     = errors.New("quality gate has not fired")
	ErrRecordingActive  = errors.New("recording window has not elapsed")
	ErrQueueUnavailable = errors.New("job queue unavailable")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrEngineNotFound   = errors.New("engine not found")
)
