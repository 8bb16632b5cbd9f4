package services

import (
	"context"
	"time"

	"altcoin/internal/models"
	"altcoin/internal/store"
	"altcoin/internal/websocket"

	"github.com/shopspring/decimal"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, user models.User) error
	GetByID(ctx context.Context, q store.Getter, userID string) (models.User, error)
	GetBalance(ctx context.Context, q store.Getter, userID, currency string) (decimal.Decimal, error)
	LockBalance(ctx context.Context, tx store.Tx, userID, currency string) (decimal.Decimal, error)
	SetBalance(ctx context.Context, tx store.Execer, userID, currency string, balance decimal.Decimal) error
	ListBalances(ctx context.Context, q store.Selecter, userID string) ([]models.Balance, error)
}

type OrderStore interface {
	Create(ctx context.Context, tx store.Execer, order models.Order) error
	Deactivate(ctx context.Context, tx store.Execer, orderIDs ...string) error
}

type TradeStore interface {
	Create(ctx context.Context, tx store.Execer, trade models.Trade) error
	LowestSell(ctx context.Context, tx store.Getter, pair models.TradingPair, cutoff time.Time) (models.Trade, error)
	BestBuy(ctx context.Context, tx store.Getter, pair models.TradingPair, minPrice decimal.Decimal, cutoff time.Time) (models.Trade, error)
	UpdateValue(ctx context.Context, tx store.Execer, tradeID string, value decimal.Decimal) error
	Delete(ctx context.Context, tx store.Execer, tradeIDs ...string) error
}

type TradeHistoryStore interface {
	Create(ctx context.Context, tx store.Execer, h models.TradeHistory) error
}

type LedgerStore interface {
	Insert(ctx context.Context, tx store.Execer, entries []models.LedgerEntry) error
	GetForUpdate(ctx context.Context, tx store.Getter, entryID string) (models.LedgerEntry, error)
	MarkApplied(ctx context.Context, tx store.Execer, entryID string) error
	PendingDebits(ctx context.Context, q store.Getter, userID, currency string) (decimal.Decimal, error)
	ListByUser(ctx context.Context, q store.Selecter, userID string) ([]models.LedgerEntry, error)
}

// TradePublisher receives every committed match. Delivery is best effort.
type TradePublisher interface {
	PublishTrade(ctx context.Context, trade models.TradeHistory) error
}

type BalanceHub interface {
	BroadcastBalance(userID string, update websocket.BalanceUpdate)
}

type nopPublisher struct{}

func (nopPublisher) PublishTrade(context.Context, models.TradeHistory) error {
	return nil
}

type nopHub struct{}

func (nopHub) BroadcastBalance(string, websocket.BalanceUpdate) {}

func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
