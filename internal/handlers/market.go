package handlers

import (
	"net/http"
	"slices"

	"altcoin/internal/models"
	"altcoin/internal/money"
	"altcoin/internal/tradefeed"
)

type priceLevel struct {
	Price string `json:"price"`
	Value string `json:"value"`
}

// OrderBook returns the resting book of a pair: bids best first (highest
// price) and asks best first (lowest price).
func (h *Handler) OrderBook(w http.ResponseWriter, r *http.Request) {
	pair, err := pairFromPath(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_currency")
		return
	}
	levels, err := h.trades.Depth(r.Context(), pair)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	bids := []priceLevel{}
	asks := []priceLevel{}
	for _, level := range levels {
		row := priceLevel{Price: money.Format(level.Price), Value: money.Format(level.Value)}
		if level.Side == models.SideBuy {
			bids = append(bids, row)
		} else {
			asks = append(asks, row)
		}
	}
	slices.Reverse(asks)
	respondJSON(w, http.StatusOK, map[string]any{
		"pair": pair.String(),
		"bids": bids,
		"asks": asks,
	})
}

func (h *Handler) Trades(w http.ResponseWriter, r *http.Request) {
	pair, err := pairFromPath(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_currency")
		return
	}
	limit, offset, err := parsePaging(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_paging")
		return
	}
	rows, err := h.history.ListByPair(r.Context(), pair, limit, offset)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	events := make([]tradefeed.TradeEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, tradefeed.NewTradeEvent(row))
	}
	respondJSON(w, http.StatusOK, events)
}
