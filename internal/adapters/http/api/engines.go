package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/catalog"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/types"
)

// EnginesHandler handles engine listing and rating requests.
type EnginesHandler struct {
	deps EngineService
}

// NewEnginesHandler creates a new engines handler.
func NewEnginesHandler(deps EngineService) *EnginesHandler {
	return &EnginesHandler{deps: deps}
}

// HandleList handles GET /api/v1/engines?eeg=&ppg=&acc=&budget=. Without a
// budget, affordability is not limited.
func (h *EnginesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	required, err := types.ParseDataTypes(q.Get("eeg"), q.Get("ppg"), q.Get("acc"))
	if err != nil {
		fail(w, err)
		return
	}
	budget := -1
	if v := q.Get("budget"); v != "" {
		budget, err = strconv.Atoi(v)
		if err != nil || budget < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid budget %q", v))
			return
		}
	}

	ranked, err := h.deps.RankEngines(r.Context(), required, budget)
	if err != nil {
		fail(w, err)
		return
	}
	if ranked == nil {
		ranked = []catalog.RankedEngine{}
	}
	writeJSON(w, http.StatusOK, types.EngineList{Budget: budget, Engines: ranked})
}

// HandleRate handles POST /api/v1/engines/{id}/ratings.
func (h *EnginesHandler) HandleRate(w http.ResponseWriter, r *http.Request) {
	var req types.RatingRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		fail(w, err)
		return
	}
	usage, err := h.deps.RateEngine(r.Context(), chi.URLParam(r, "id"), req.Rating)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}
