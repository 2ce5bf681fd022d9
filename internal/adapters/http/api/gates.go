package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/types"
)

// GatesHandler serves quality gates and measurement sessions.
type GatesHandler struct {
	deps GateService
}

// NewGatesHandler creates a new gates handler.
func NewGatesHandler(deps GateService) *GatesHandler {
	return &GatesHandler{deps: deps}
}

// HandleOpen handles POST /api/v1/gates.
func (h *GatesHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	var req types.OpenGateRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		fail(w, err)
		return
	}
	st, err := h.deps.OpenGate(r.Context(), req)
	if err != nil {
		fail(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/gates/"+st.SessionID)
	writeJSON(w, http.StatusCreated, st)
}

// HandleGet handles GET /api/v1/gates/{id}.
func (h *GatesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.GateState(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleSamples handles POST /api/v1/gates/{id}/samples.
func (h *GatesHandler) HandleSamples(w http.ResponseWriter, r *http.Request) {
	var batch types.SampleBatch
	if err := decodeJSON(w, r, &batch, false); err != nil {
		fail(w, err)
		return
	}
	st, err := h.deps.AddSamples(r.Context(), chi.URLParam(r, "id"), batch)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleReopen handles POST /api/v1/gates/{id}/reopen.
func (h *GatesHandler) HandleReopen(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.ReopenGate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleSeal handles POST /api/v1/sessions/{id}/seal.
func (h *GatesHandler) HandleSeal(w http.ResponseWriter, r *http.Request) {
	var req types.SealRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		fail(w, err)
		return
	}
	session, err := h.deps.SealSession(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// HandleGetSession handles GET /api/v1/sessions/{id}.
func (h *GatesHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.deps.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}
