package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"altcoin/internal/money"
	"altcoin/internal/websocket"

	"github.com/go-chi/chi/v5"
)

type balanceResponse struct {
	Currency   string `json:"currency"`
	Balance    string `json:"balance"`
	Calculated string `json:"calculated"`
	Difference string `json:"difference"`
}

// Balances lists the cached balances of a user next to the values folded
// from the applied ledger.
func (h *Handler) Balances(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if _, err := h.users.GetByID(r.Context(), h.queryDB, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "user_not_found")
			return
		}
		h.respondServiceError(w, r, err)
		return
	}
	checks, err := h.verifier.Verify(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	balances := make([]balanceResponse, 0, len(checks))
	for _, check := range checks {
		balances = append(balances, balanceResponse{
			Currency:   check.Currency,
			Balance:    money.Format(check.Stored),
			Calculated: money.Format(check.Calculated),
			Difference: money.Format(check.Difference),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":  userID,
		"balances": balances,
	})
}

func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if _, err := h.users.GetByID(r.Context(), h.queryDB, userID); err != nil {
		respondError(w, http.StatusNotFound, "user_not_found")
		return
	}
	websocket.ServeWS(w, r, h.hub, h.upgrader, userID)
}
