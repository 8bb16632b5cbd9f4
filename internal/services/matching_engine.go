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
	"altcoin/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MatchingEngine pairs resting trades of one trading pair until nothing
// crosses. Every iteration is its own transaction.
type MatchingEngine struct {
	txRunner  db.TxRunner
	users     UserStore
	orders    OrderStore
	trades    TradeStore
	history   TradeHistoryStore
	ledger    LedgerStore
	publisher TradePublisher
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

func NewMatchingEngine(txRunner db.TxRunner, users UserStore, orders OrderStore, trades TradeStore, history TradeHistoryStore, ledger LedgerStore, publisher TradePublisher, logger *zap.Logger) *MatchingEngine {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &MatchingEngine{
		txRunner:  txRunner,
		users:     users,
		orders:    orders,
		trades:    trades,
		history:   history,
		ledger:    ledger,
		publisher: publisher,
		logger:    logger,
		now:       utcNow,
		newID:     uuid.NewString,
	}
}

type executedMatch struct {
	match   Match
	history models.TradeHistory
}

// Run matches trades of pair created at or before cutoff and returns how many
// iterations committed. It stops when no sell remains or the lowest sell has
// no crossing buy. Each committed iteration removes a positive value from
// both sides of the book, so a run over a fixed cutoff always ends.
func (e *MatchingEngine) Run(ctx context.Context, pair models.TradingPair, cutoff time.Time) (int, error) {
	started := time.Now()
	matches := 0
	defer func() {
		metrics.MatchRunDuration.WithLabelValues(pair.String()).Observe(time.Since(started).Seconds())
	}()
	for {
		if err := ctx.Err(); err != nil {
			return matches, err
		}
		executed, err := e.matchNext(ctx, pair, cutoff)
		if err != nil {
			return matches, fmt.Errorf("match %s: %w", pair, err)
		}
		if executed == nil {
			break
		}
		matches++
		e.afterCommit(ctx, executed)
	}
	if matches > 0 {
		e.logger.Debug("matching run finished",
			zap.String("pair", pair.String()),
			zap.Time("cutoff", cutoff),
			zap.Int("matches", matches),
		)
	}
	return matches, nil
}

func (e *MatchingEngine) matchNext(ctx context.Context, pair models.TradingPair, cutoff time.Time) (*executedMatch, error) {
	var executed *executedMatch
	err := e.txRunner.WithTx(ctx, func(tx store.Tx) error {
		executed = nil
		sell, err := e.trades.LowestSell(ctx, tx, pair, cutoff)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select sell: %w", err)
		}
		buy, err := e.trades.BestBuy(ctx, tx, pair, sell.Price, cutoff)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select buy: %w", err)
		}
		buyer, err := e.users.GetByID(ctx, tx, buy.UserID)
		if err != nil {
			return fmt.Errorf("load buyer %s: %w", buy.UserID, err)
		}
		seller, err := e.users.GetByID(ctx, tx, sell.UserID)
		if err != nil {
			return fmt.Errorf("load seller %s: %w", sell.UserID, err)
		}

		match, err := NewMatch(buy, sell, buyer.TradingFee, seller.TradingFee)
		if err != nil {
			return err
		}
		now := e.now()
		history := match.History(e.newID(), now)
		if err := e.history.Create(ctx, tx, history); err != nil {
			return fmt.Errorf("insert trade history: %w", err)
		}
		if err := e.ledger.Insert(ctx, tx, match.LedgerEntries(e.newID, now)); err != nil {
			return fmt.Errorf("insert ledger entries: %w", err)
		}
		if err := e.settle(ctx, tx, match); err != nil {
			return err
		}
		executed = &executedMatch{match: match, history: history}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return executed, nil
}

func (e *MatchingEngine) settle(ctx context.Context, tx store.Tx, match Match) error {
	s := match.Settlement
	switch s.Kind {
	case SettleEqual:
		if err := e.trades.Delete(ctx, tx, match.Buy.ID, match.Sell.ID); err != nil {
			return fmt.Errorf("delete trades: %w", err)
		}
		if err := e.orders.Deactivate(ctx, tx, match.Buy.OrderID, match.Sell.OrderID); err != nil {
			return fmt.Errorf("deactivate orders: %w", err)
		}
	case SettlePartial:
		if !s.Remaining.IsPositive() {
			return fmt.Errorf("%w: trade %s would keep %s", ErrInvariantViolation, s.Partial.ID, s.Remaining)
		}
		if err := e.trades.Delete(ctx, tx, s.Completed.ID); err != nil {
			return fmt.Errorf("delete trade: %w", err)
		}
		if err := e.trades.UpdateValue(ctx, tx, s.Partial.ID, s.Remaining); err != nil {
			return fmt.Errorf("update trade value: %w", err)
		}
		if err := e.orders.Deactivate(ctx, tx, s.Completed.OrderID); err != nil {
			return fmt.Errorf("deactivate order: %w", err)
		}
	default:
		return fmt.Errorf("%w: unknown settlement %d", ErrInvariantViolation, s.Kind)
	}
	return nil
}

func (e *MatchingEngine) afterCommit(ctx context.Context, executed *executedMatch) {
	match := executed.match
	pair := match.Pair().String()
	metrics.MatchesExecuted.WithLabelValues(pair, match.Settlement.Kind.String()).Inc()
	metrics.MatchedVolume.WithLabelValues(pair).Add(match.Value.InexactFloat64())
	e.logger.Info("trade executed",
		zap.String("pair", pair),
		zap.String("trade_history_id", executed.history.ID),
		zap.String("buy_trade_id", match.Buy.ID),
		zap.String("sell_trade_id", match.Sell.ID),
		zap.String("value", match.Value.String()),
		zap.String("price", match.Price.String()),
		zap.Stringer("settlement", match.Settlement.Kind),
	)
	if err := e.publisher.PublishTrade(ctx, executed.history); err != nil {
		e.logger.Warn("publish trade failed", zap.String("trade_history_id", executed.history.ID), zap.Error(err))
	}
}
