package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"altcoin/internal/dispatcher"
	"altcoin/internal/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalancesIncludesLedgerCheck(t *testing.T) {
	h := newTestHandler(testDeps{
		users: stubUserStore{getByIDFn: knownUser},
		verifier: stubVerifier{verifyFn: func(ctx context.Context, userID string) ([]services.BalanceCheck, error) {
			return []services.BalanceCheck{{
				Currency:   "BTC",
				Stored:     decimal.RequireFromString("1.5"),
				Calculated: decimal.RequireFromString("1.5"),
				Difference: decimal.Zero,
			}}, nil
		}},
	})

	rr := serve(t, h, http.MethodGet, "/users/user-1/balances", "")

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		UserID   string            `json:"user_id"`
		Balances []balanceResponse `json:"balances"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "user-1", body.UserID)
	require.Len(t, body.Balances, 1)
	assert.Equal(t, "1.50000000", body.Balances[0].Balance)
	assert.Equal(t, "0.00000000", body.Balances[0].Difference)
}

func TestBalancesUnknownUser(t *testing.T) {
	h := newTestHandler(testDeps{})
	rr := serve(t, h, http.MethodGet, "/users/ghost/balances", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBalancesVerifyFailure(t *testing.T) {
	h := newTestHandler(testDeps{
		users: stubUserStore{getByIDFn: knownUser},
		verifier: stubVerifier{verifyFn: func(context.Context, string) ([]services.BalanceCheck, error) {
			return nil, errors.New("timeout")
		}},
	})
	rr := serve(t, h, http.MethodGet, "/users/user-1/balances", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestWSBalancesRequiresUser(t *testing.T) {
	h := newTestHandler(testDeps{})
	rr := serve(t, h, http.MethodGet, "/ws/balances", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(t, h, http.MethodGet, "/ws/balances?user_id=ghost", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHealthReportsHaltedWorkers(t *testing.T) {
	h := newTestHandler(testDeps{})
	rr := serve(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	h = newTestHandler(testDeps{status: stubStatus{status: dispatcher.Status{HaltedPairs: []string{"BTC/USD"}}}})
	rr = serve(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "BTC/USD")
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(testDeps{})
	rr := serve(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}
