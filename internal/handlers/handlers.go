package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"altcoin/internal/services"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps intake errors to a status and a stable error code.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var pqErr *pq.Error
	switch {
	case errors.Is(err, services.ErrInsufficientFunds):
		respondError(w, http.StatusBadRequest, "insufficient_funds")
	case errors.Is(err, services.ErrInvalidValue):
		respondError(w, http.StatusBadRequest, "invalid_value")
	case errors.Is(err, services.ErrInvalidPrice):
		respondError(w, http.StatusBadRequest, "invalid_price")
	case errors.Is(err, services.ErrInvalidSide):
		respondError(w, http.StatusBadRequest, "invalid_side")
	case errors.Is(err, services.ErrInvalidPair):
		respondError(w, http.StatusBadRequest, "invalid_currency")
	case errors.Is(err, services.ErrInvalidUsername):
		respondError(w, http.StatusBadRequest, "invalid_username")
	case errors.Is(err, services.ErrInvalidFee):
		respondError(w, http.StatusBadRequest, "invalid_trading_fee")
	case errors.Is(err, services.ErrUserNotFound):
		respondError(w, http.StatusNotFound, "user_not_found")
	case errors.As(err, &pqErr) && pqErr.Code == "23505":
		respondError(w, http.StatusConflict, "already_exists")
	default:
		h.logger.Error("request failed", requestFields(r, err)...)
		respondError(w, http.StatusInternalServerError, "internal_error")
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func requestFields(r *http.Request, err error) []zap.Field {
	return []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", chimiddleware.GetReqID(r.Context())),
		zap.Error(err),
	}
}
