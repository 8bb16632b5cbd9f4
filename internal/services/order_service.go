package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"altcoin/internal/db"
	"altcoin/internal/metrics"
	"altcoin/internal/models"
	"altcoin/internal/money"
	"altcoin/internal/store"
	"altcoin/internal/validator"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var maxTradingFee = decimal.NewFromInt(100)

// OrderService is the write side used by the HTTP layer: users, deposits,
// withdrawals and limit orders. It never touches user_balances directly;
// every balance change goes through a ledger entry.
type OrderService struct {
	txRunner db.TxRunner
	users    UserStore
	orders   OrderStore
	trades   TradeStore
	ledger   LedgerStore
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

func NewOrderService(txRunner db.TxRunner, users UserStore, orders OrderStore, trades TradeStore, ledger LedgerStore, logger *zap.Logger) *OrderService {
	return &OrderService{
		txRunner: txRunner,
		users:    users,
		orders:   orders,
		trades:   trades,
		ledger:   ledger,
		logger:   logger,
		now:      utcNow,
		newID:    uuid.NewString,
	}
}

type PlaceOrderRequest struct {
	UserID string
	Side   models.Side
	Pair   models.TradingPair
	Value  decimal.Decimal
	Price  decimal.Decimal
}

// PlaceOrder records a limit order, its matchable trade and the ledger entry
// reserving the funds, all in one transaction. It returns the trade id.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (string, error) {
	if err := validateOrder(req); err != nil {
		metrics.OrdersRejected.WithLabelValues(rejectReason(err)).Inc()
		return "", err
	}

	debitCurrency, required := req.Pair.Currency, req.Value
	kind := models.EntrySellOrderCreated
	if req.Side == models.SideBuy {
		debitCurrency, required = req.Pair.PriceCurrency, money.Round(req.Value.Mul(req.Price))
		kind = models.EntryBuyOrderCreated
	}

	var tradeID string
	err := s.txRunner.WithTx(ctx, func(tx store.Tx) error {
		if err := s.requireUser(ctx, tx, req.UserID); err != nil {
			return err
		}
		if err := s.checkFunds(ctx, tx, req.UserID, debitCurrency, required); err != nil {
			return err
		}

		now := s.now()
		order := models.Order{
			ID:            s.newID(),
			Side:          req.Side,
			UserID:        req.UserID,
			Value:         req.Value,
			Currency:      req.Pair.Currency,
			Price:         req.Price,
			PriceCurrency: req.Pair.PriceCurrency,
			CreatedAt:     now,
			Active:        true,
		}
		if err := s.orders.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		trade := models.Trade{
			ID:            s.newID(),
			Side:          order.Side,
			UserID:        order.UserID,
			OrderID:       order.ID,
			Value:         order.Value,
			Currency:      order.Currency,
			Price:         order.Price,
			PriceCurrency: order.PriceCurrency,
			CreatedAt:     now,
			Active:        true,
		}
		if err := s.trades.Create(ctx, tx, trade); err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
		priceCurrency := order.PriceCurrency
		entry := models.LedgerEntry{
			ID:            s.newID(),
			UserID:        order.UserID,
			Kind:          kind,
			OrderID:       &order.ID,
			Currency:      order.Currency,
			Value:         order.Value,
			Price:         decimal.NewNullDecimal(order.Price),
			PriceCurrency: &priceCurrency,
			CreatedAt:     now,
		}
		if err := s.ledger.Insert(ctx, tx, []models.LedgerEntry{entry}); err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}
		tradeID = trade.ID
		return nil
	})
	if err != nil {
		metrics.OrdersRejected.WithLabelValues(rejectReason(err)).Inc()
		return "", err
	}

	metrics.OrdersPlaced.WithLabelValues(string(req.Side), req.Pair.String()).Inc()
	s.logger.Info("order placed",
		zap.String("trade_id", tradeID),
		zap.String("user_id", req.UserID),
		zap.String("side", string(req.Side)),
		zap.String("pair", req.Pair.String()),
		zap.String("value", req.Value.String()),
		zap.String("price", req.Price.String()),
	)
	return tradeID, nil
}

type CreateUserRequest struct {
	Username   string
	TradingFee decimal.Decimal
}

func (s *OrderService) CreateUser(ctx context.Context, req CreateUserRequest) (string, error) {
	if err := validator.ValidateUsername(req.Username); err != nil {
		return "", ErrInvalidUsername
	}
	if req.TradingFee.IsNegative() || req.TradingFee.GreaterThanOrEqual(maxTradingFee) || money.CheckPrecision(req.TradingFee) != nil {
		return "", ErrInvalidFee
	}
	user := models.User{
		ID:         s.newID(),
		Username:   req.Username,
		TradingFee: req.TradingFee,
		CreatedAt:  s.now(),
	}
	err := s.txRunner.WithTx(ctx, func(tx store.Tx) error {
		return s.users.Create(ctx, tx, user)
	})
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}
	return user.ID, nil
}

// Deposit credits value to the user once the reconciler applies the entry.
func (s *OrderService) Deposit(ctx context.Context, userID, currency string, value decimal.Decimal) (string, error) {
	return s.recordTransfer(ctx, models.EntryDeposit, userID, currency, value)
}

// Withdraw is subject to the same funds check as a sell.
func (s *OrderService) Withdraw(ctx context.Context, userID, currency string, value decimal.Decimal) (string, error) {
	return s.recordTransfer(ctx, models.EntryWithdrawal, userID, currency, value)
}

func (s *OrderService) recordTransfer(ctx context.Context, kind models.EntryKind, userID, currency string, value decimal.Decimal) (string, error) {
	if err := validator.ValidateCurrency(currency); err != nil {
		return "", ErrInvalidPair
	}
	if !value.IsPositive() || money.CheckPrecision(value) != nil {
		return "", ErrInvalidValue
	}
	entry := models.LedgerEntry{
		ID:       s.newID(),
		UserID:   userID,
		Kind:     kind,
		Currency: currency,
		Value:    value,
	}
	err := s.txRunner.WithTx(ctx, func(tx store.Tx) error {
		if err := s.requireUser(ctx, tx, userID); err != nil {
			return err
		}
		if kind == models.EntryWithdrawal {
			if err := s.checkFunds(ctx, tx, userID, currency, value); err != nil {
				return err
			}
		}
		entry.CreatedAt = s.now()
		if err := s.ledger.Insert(ctx, tx, []models.LedgerEntry{entry}); err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("ledger entry recorded",
		zap.String("entry_id", entry.ID),
		zap.String("user_id", userID),
		zap.String("kind", string(kind)),
		zap.String("currency", currency),
		zap.String("value", value.String()),
	)
	return entry.ID, nil
}

func (s *OrderService) requireUser(ctx context.Context, tx store.Tx, userID string) error {
	if _, err := s.users.GetByID(ctx, tx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("load user: %w", err)
	}
	return nil
}

// checkFunds compares the cached balance, less debits the reconciler has not
// applied yet, against required. Pending credits are not counted.
func (s *OrderService) checkFunds(ctx context.Context, tx store.Tx, userID, currency string, required decimal.Decimal) error {
	balance, err := s.users.GetBalance(ctx, tx, userID, currency)
	if err != nil {
		return fmt.Errorf("load balance: %w", err)
	}
	pending, err := s.ledger.PendingDebits(ctx, tx, userID, currency)
	if err != nil {
		return fmt.Errorf("load pending debits: %w", err)
	}
	if balance.Sub(pending).Sub(required).IsNegative() {
		return ErrInsufficientFunds
	}
	return nil
}

func validateOrder(req PlaceOrderRequest) error {
	if !req.Side.Valid() {
		return ErrInvalidSide
	}
	if !req.Value.IsPositive() || money.CheckPrecision(req.Value) != nil {
		return ErrInvalidValue
	}
	if !req.Price.IsPositive() || money.CheckPrecision(req.Price) != nil {
		return ErrInvalidPrice
	}
	if validator.ValidateCurrency(req.Pair.Currency) != nil ||
		validator.ValidateCurrency(req.Pair.PriceCurrency) != nil ||
		req.Pair.Currency == req.Pair.PriceCurrency {
		return ErrInvalidPair
	}
	if req.UserID == "" {
		return ErrUserNotFound
	}
	return nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrInvalidSide), errors.Is(err, ErrInvalidValue),
		errors.Is(err, ErrInvalidPrice), errors.Is(err, ErrInvalidPair):
		return "validation"
	default:
		return "internal"
	}
}
