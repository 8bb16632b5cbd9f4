package handlers

import (
	"context"

	"altcoin/internal/dispatcher"
	"altcoin/internal/models"
	"altcoin/internal/services"
	"altcoin/internal/store"

	"github.com/shopspring/decimal"
)

type OrderService interface {
	PlaceOrder(ctx context.Context, req services.PlaceOrderRequest) (string, error)
	CreateUser(ctx context.Context, req services.CreateUserRequest) (string, error)
	Deposit(ctx context.Context, userID, currency string, value decimal.Decimal) (string, error)
	Withdraw(ctx context.Context, userID, currency string, value decimal.Decimal) (string, error)
}

type BalanceVerifier interface {
	Verify(ctx context.Context, userID string) ([]services.BalanceCheck, error)
}

type UserStore interface {
	GetByID(ctx context.Context, q store.Getter, userID string) (models.User, error)
}

type TradeStore interface {
	Depth(ctx context.Context, pair models.TradingPair) ([]models.PriceLevel, error)
}

type TradeHistoryStore interface {
	ListByPair(ctx context.Context, pair models.TradingPair, limit, offset int) ([]models.TradeHistory, error)
}

type StatusReporter interface {
	Status() dispatcher.Status
}
