package handlers

import (
	"net/http"
	"strings"

	"altcoin/internal/models"
	"altcoin/internal/services"

	"github.com/shopspring/decimal"
)

type orderRequest struct {
	UserID        string          `json:"userId"`
	Currency      string          `json:"currency"`
	Value         decimal.Decimal `json:"value"`
	Price         decimal.Decimal `json:"price"`
	PriceCurrency string          `json:"priceCurrency"`
}

func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	h.placeOrder(w, r, models.SideBuy)
}

func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	h.placeOrder(w, r, models.SideSell)
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request, side models.Side) {
	var req orderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		respondError(w, http.StatusBadRequest, "userId is required")
		return
	}
	tradeID, err := h.orders.PlaceOrder(r.Context(), services.PlaceOrderRequest{
		UserID: req.UserID,
		Side:   side,
		Pair: models.TradingPair{
			Currency:      strings.ToUpper(req.Currency),
			PriceCurrency: strings.ToUpper(req.PriceCurrency),
		},
		Value: req.Value,
		Price: req.Price,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": tradeID})
}

type createUserRequest struct {
	Username   string          `json:"username"`
	TradingFee decimal.Decimal `json:"tradingFee"`
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	userID, err := h.orders.CreateUser(r.Context(), services.CreateUserRequest{
		Username:   strings.TrimSpace(req.Username),
		TradingFee: req.TradingFee,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": userID})
}

type transferRequest struct {
	UserID   string          `json:"userId"`
	Currency string          `json:"currency"`
	Value    decimal.Decimal `json:"value"`
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	entryID, err := h.orders.Deposit(r.Context(), req.UserID, strings.ToUpper(req.Currency), req.Value)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": entryID})
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	entryID, err := h.orders.Withdraw(r.Context(), req.UserID, strings.ToUpper(req.Currency), req.Value)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": entryID})
}
