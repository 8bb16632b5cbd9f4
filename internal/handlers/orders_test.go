package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"altcoin/internal/models"
	"altcoin/internal/services"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuyCreatesOrder(t *testing.T) {
	var got services.PlaceOrderRequest
	h := newTestHandler(testDeps{orders: stubOrderService{
		placeOrderFn: func(ctx context.Context, req services.PlaceOrderRequest) (string, error) {
			got = req
			return "trade-42", nil
		},
	}})

	rr := serve(t, h, http.MethodPost, "/buy", `{"userId":"user-1","currency":"btc","value":"0.005","price":100100,"priceCurrency":"USD"}`)

	require.Equal(t, http.StatusCreated, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "trade-42", body["id"])
	assert.Equal(t, models.SideBuy, got.Side)
	assert.Equal(t, models.TradingPair{Currency: "BTC", PriceCurrency: "USD"}, got.Pair)
	assert.True(t, got.Value.Equal(decimal.RequireFromString("0.005")))
	assert.True(t, got.Price.Equal(decimal.RequireFromString("100100")))
}

func TestSellUsesSellSide(t *testing.T) {
	var side models.Side
	h := newTestHandler(testDeps{orders: stubOrderService{
		placeOrderFn: func(ctx context.Context, req services.PlaceOrderRequest) (string, error) {
			side = req.Side
			return "trade-1", nil
		},
	}})

	rr := serve(t, h, http.MethodPost, "/sell", `{"userId":"user-1","currency":"BTC","value":"1","price":"10","priceCurrency":"USD"}`)

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, models.SideSell, side)
}

func TestPlaceOrderErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrInsufficientFunds, http.StatusBadRequest, "insufficient_funds"},
		{services.ErrInvalidValue, http.StatusBadRequest, "invalid_value"},
		{services.ErrInvalidPrice, http.StatusBadRequest, "invalid_price"},
		{services.ErrInvalidPair, http.StatusBadRequest, "invalid_currency"},
		{services.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
		{errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			h := newTestHandler(testDeps{orders: stubOrderService{
				placeOrderFn: func(context.Context, services.PlaceOrderRequest) (string, error) {
					return "", tc.err
				},
			}})
			rr := serve(t, h, http.MethodPost, "/buy", `{"userId":"user-1","currency":"BTC","value":"1","price":"150","priceCurrency":"USD"}`)
			require.Equal(t, tc.status, rr.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body["error"])
		})
	}
}

func TestPlaceOrderRejectsBadPayload(t *testing.T) {
	h := newTestHandler(testDeps{orders: stubOrderService{
		placeOrderFn: func(context.Context, services.PlaceOrderRequest) (string, error) {
			t.Fatal("service must not be called")
			return "", nil
		},
	}})

	for _, body := range []string{
		`not json`,
		`{"userId":"user-1","value":"abc"}`,
		`{"userId":"user-1","side":"buy"}`,
		`{"currency":"BTC","value":"1","price":"1","priceCurrency":"USD"}`,
	} {
		rr := serve(t, h, http.MethodPost, "/buy", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
}

func TestCreateUser(t *testing.T) {
	var got services.CreateUserRequest
	h := newTestHandler(testDeps{orders: stubOrderService{
		createUserFn: func(ctx context.Context, req services.CreateUserRequest) (string, error) {
			got = req
			return "user-9", nil
		},
	}})

	rr := serve(t, h, http.MethodPost, "/users", `{"username":"alice","tradingFee":"0.25"}`)

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "alice", got.Username)
	assert.True(t, got.TradingFee.Equal(decimal.RequireFromString("0.25")))
}

func TestCreateUserDuplicate(t *testing.T) {
	h := newTestHandler(testDeps{orders: stubOrderService{
		createUserFn: func(context.Context, services.CreateUserRequest) (string, error) {
			return "", &pq.Error{Code: "23505"}
		},
	}})

	rr := serve(t, h, http.MethodPost, "/users", `{"username":"alice","tradingFee":0}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestDepositAndWithdraw(t *testing.T) {
	var deposited, withdrawn string
	h := newTestHandler(testDeps{orders: stubOrderService{
		depositFn: func(ctx context.Context, userID, currency string, value decimal.Decimal) (string, error) {
			deposited = currency + " " + value.String()
			return "entry-1", nil
		},
		withdrawFn: func(ctx context.Context, userID, currency string, value decimal.Decimal) (string, error) {
			withdrawn = currency + " " + value.String()
			return "", services.ErrInsufficientFunds
		},
	}})

	rr := serve(t, h, http.MethodPost, "/deposit", `{"userId":"user-1","currency":"usd","value":"10.5"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "USD 10.5", deposited)

	rr = serve(t, h, http.MethodPost, "/withdraw", `{"userId":"user-1","currency":"USD","value":"11"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "USD 11", withdrawn)
}
