package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/types"
)

// AccountsHandler administers credit balances.
type AccountsHandler struct {
	deps AccountService
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(deps AccountService) *AccountsHandler {
	return &AccountsHandler{deps: deps}
}

// HandleBalance handles GET /api/v1/accounts/{id}/balance.
func (h *AccountsHandler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	balance, err := h.deps.Balance(r.Context(), id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.Balance{AccountID: id, Balance: balance})
}

// HandleTopUp handles POST /api/v1/accounts/{id}/credits.
func (h *AccountsHandler) HandleTopUp(w http.ResponseWriter, r *http.Request) {
	var req types.TopUpRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		fail(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	balance, err := h.deps.TopUp(r.Context(), id, req.Amount)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.Balance{AccountID: id, Balance: balance})
}
