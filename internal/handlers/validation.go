package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"altcoin/internal/models"
	"altcoin/internal/validator"

	"github.com/go-chi/chi/v5"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

var (
	errInvalidPair   = errors.New("invalid trading pair")
	errInvalidPaging = errors.New("invalid paging")
)

func pairFromPath(r *http.Request) (models.TradingPair, error) {
	pair := models.TradingPair{
		Currency:      strings.ToUpper(chi.URLParam(r, "currency")),
		PriceCurrency: strings.ToUpper(chi.URLParam(r, "priceCurrency")),
	}
	if validator.ValidateCurrency(pair.Currency) != nil || validator.ValidateCurrency(pair.PriceCurrency) != nil {
		return models.TradingPair{}, errInvalidPair
	}
	if pair.Currency == pair.PriceCurrency {
		return models.TradingPair{}, errInvalidPair
	}
	return pair, nil
}

func parsePaging(r *http.Request) (int, int, error) {
	limit, offset := defaultPageSize, 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return 0, 0, errInvalidPaging
		}
		limit = min(parsed, maxPageSize)
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return 0, 0, errInvalidPaging
		}
		offset = parsed
	}
	return limit, offset, nil
}
