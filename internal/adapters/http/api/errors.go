package api

import (
	"errors"
	"net/http"

	app "github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/app"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/pipeline"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/types"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest           = errors.New("bad request")
	ErrStreamingUnsupported = errors.New("streaming not supported")
)

type errorMapping struct {
	target error
	status int
	code   string
}

// errorMappings is checked in order; the first errors.Is match wins.
var errorMappings = []errorMapping{
	{ErrBadRequest, http.StatusBadRequest, "bad_request"},
	{types.ErrInvalidFlag, http.StatusBadRequest, "bad_request"},
	{app.ErrInvalidArgument, http.StatusBadRequest, "bad_request"},
	{pipeline.ErrInvalidRequest, http.StatusBadRequest, "bad_request"},
	{pipeline.ErrInvalidAmount, http.StatusBadRequest, "bad_request"},
	{app.ErrGateNotFound, http.StatusNotFound, "not_found"},
	{app.ErrEngineNotFound, http.StatusNotFound, "not_found"},
	{pipeline.ErrNotFound, http.StatusNotFound, "not_found"},
	{app.ErrGateExists, http.StatusConflict, "gate_exists"},
	{app.ErrGateNotReady, http.StatusConflict, "gate_not_ready"},
	{app.ErrRecordingActive, http.StatusConflict, "recording_active"},
	{model.ErrSessionSealed, http.StatusConflict, "session_sealed"},
	{pipeline.ErrCancelRefused, http.StatusConflict, "cancel_refused"},
	{app.ErrQueueUnavailable, http.StatusServiceUnavailable, "backpressure"},
	{app.ErrNotStarted, http.StatusServiceUnavailable, "unavailable"},
}

// statusFor translates service and domain sentinels into HTTP statuses.
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}
