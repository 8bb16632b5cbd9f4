package handlers

import (
	"context"
	"database/sql"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"altcoin/internal/config"
	"altcoin/internal/dispatcher"
	"altcoin/internal/models"
	"altcoin/internal/services"
	"altcoin/internal/store"
	"altcoin/internal/websocket"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type stubOrderService struct {
	placeOrderFn func(ctx context.Context, req services.PlaceOrderRequest) (string, error)
	createUserFn func(ctx context.Context, req services.CreateUserRequest) (string, error)
	depositFn    func(ctx context.Context, userID, currency string, value decimal.Decimal) (string, error)
	withdrawFn   func(ctx context.Context, userID, currency string, value decimal.Decimal) (string, error)
}

func (s stubOrderService) PlaceOrder(ctx context.Context, req services.PlaceOrderRequest) (string, error) {
	if s.placeOrderFn == nil {
		return "trade-1", nil
	}
	return s.placeOrderFn(ctx, req)
}

func (s stubOrderService) CreateUser(ctx context.Context, req services.CreateUserRequest) (string, error) {
	if s.createUserFn == nil {
		return "user-1", nil
	}
	return s.createUserFn(ctx, req)
}

func (s stubOrderService) Deposit(ctx context.Context, userID, currency string, value decimal.Decimal) (string, error) {
	if s.depositFn == nil {
		return "entry-1", nil
	}
	return s.depositFn(ctx, userID, currency, value)
}

func (s stubOrderService) Withdraw(ctx context.Context, userID, currency string, value decimal.Decimal) (string, error) {
	if s.withdrawFn == nil {
		return "entry-1", nil
	}
	return s.withdrawFn(ctx, userID, currency, value)
}

type stubVerifier struct {
	verifyFn func(ctx context.Context, userID string) ([]services.BalanceCheck, error)
}

func (s stubVerifier) Verify(ctx context.Context, userID string) ([]services.BalanceCheck, error) {
	if s.verifyFn == nil {
		return nil, nil
	}
	return s.verifyFn(ctx, userID)
}

type stubUserStore struct {
	getByIDFn func(ctx context.Context, q store.Getter, userID string) (models.User, error)
}

func (s stubUserStore) GetByID(ctx context.Context, q store.Getter, userID string) (models.User, error) {
	if s.getByIDFn == nil {
		return models.User{}, sql.ErrNoRows
	}
	return s.getByIDFn(ctx, q, userID)
}

type stubTradeStore struct {
	depthFn func(ctx context.Context, pair models.TradingPair) ([]models.PriceLevel, error)
}

func (s stubTradeStore) Depth(ctx context.Context, pair models.TradingPair) ([]models.PriceLevel, error) {
	if s.depthFn == nil {
		return nil, nil
	}
	return s.depthFn(ctx, pair)
}

type stubHistoryStore struct {
	listByPairFn func(ctx context.Context, pair models.TradingPair, limit, offset int) ([]models.TradeHistory, error)
}

func (s stubHistoryStore) ListByPair(ctx context.Context, pair models.TradingPair, limit, offset int) ([]models.TradeHistory, error) {
	if s.listByPairFn == nil {
		return nil, nil
	}
	return s.listByPairFn(ctx, pair, limit, offset)
}

type stubStatus struct {
	status dispatcher.Status
}

func (s stubStatus) Status() dispatcher.Status {
	return s.status
}

type testDeps struct {
	orders   stubOrderService
	verifier stubVerifier
	users    stubUserStore
	trades   stubTradeStore
	history  stubHistoryStore
	status   StatusReporter
}

func newTestHandler(deps testDeps) *Handler {
	cfg := config.Config{AllowedOrigins: "*"}
	return New(nil, cfg, deps.orders, deps.verifier, deps.users, deps.trades, deps.history, deps.status, websocket.NewHub(), zap.NewNop())
}

func serve(t *testing.T, h *Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}

func knownUser(context.Context, store.Getter, string) (models.User, error) {
	return models.User{ID: "user-1", Username: "alice"}, nil
}
