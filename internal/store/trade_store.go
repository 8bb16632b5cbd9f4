package store

import (
	"context"
	"time"

	"altcoin/internal/models"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type TradeStore struct {
	db DB
}

const tradeColumns = `id, side, user_id, order_id, value, currency, price, price_currency, created_at, active`

func NewTradeStore(db DB) *TradeStore {
	return &TradeStore{db: db}
}

func (s *TradeStore) Create(ctx context.Context, tx Execer, trade models.Trade) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO trades (id, side, user_id, order_id, value, currency, price, price_currency, created_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, trade.ID, trade.Side, trade.UserID, trade.OrderID, trade.Value, trade.Currency, trade.Price, trade.PriceCurrency, trade.CreatedAt, trade.Active)
	return err
}

func (s *TradeStore) GetByID(ctx context.Context, tradeID string) (models.Trade, error) {
	var trade models.Trade
	err := s.db.GetContext(ctx, &trade, `SELECT `+tradeColumns+` FROM trades WHERE id = $1`, tradeID)
	if err != nil {
		return models.Trade{}, err
	}
	return trade, nil
}

// LowestSell locks the cheapest active sell of the pair created at or before
// cutoff, oldest first on equal price. Rows locked by a concurrent run are
// skipped. Returns sql.ErrNoRows when there is none.
func (s *TradeStore) LowestSell(ctx context.Context, tx Getter, pair models.TradingPair, cutoff time.Time) (models.Trade, error) {
	var trade models.Trade
	err := tx.GetContext(ctx, &trade, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE side = 'sell'
		  AND active
		  AND currency = $1
		  AND price_currency = $2
		  AND created_at <= $3
		ORDER BY price, created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, pair.Currency, pair.PriceCurrency, cutoff)
	if err != nil {
		return models.Trade{}, err
	}
	return trade, nil
}

// BestBuy locks the highest active buy priced at or above minPrice, oldest
// first on equal price. Returns sql.ErrNoRows when nothing crosses.
func (s *TradeStore) BestBuy(ctx context.Context, tx Getter, pair models.TradingPair, minPrice decimal.Decimal, cutoff time.Time) (models.Trade, error) {
	var trade models.Trade
	err := tx.GetContext(ctx, &trade, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE side = 'buy'
		  AND active
		  AND currency = $1
		  AND price_currency = $2
		  AND price >= $3
		  AND created_at <= $4
		ORDER BY price DESC, created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, pair.Currency, pair.PriceCurrency, minPrice, cutoff)
	if err != nil {
		return models.Trade{}, err
	}
	return trade, nil
}

func (s *TradeStore) UpdateValue(ctx context.Context, tx Execer, tradeID string, value decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `UPDATE trades SET value = $2 WHERE id = $1`, tradeID, value)
	return err
}

func (s *TradeStore) Delete(ctx context.Context, tx Execer, tradeIDs ...string) error {
	if len(tradeIDs) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM trades WHERE id = ANY($1)`, pq.Array(tradeIDs))
	return err
}

// Depth aggregates the active book of a pair by side and price level.
func (s *TradeStore) Depth(ctx context.Context, pair models.TradingPair) ([]models.PriceLevel, error) {
	var levels []models.PriceLevel
	err := s.db.SelectContext(ctx, &levels, `
		SELECT side, price, SUM(value) AS value
		FROM trades
		WHERE active AND currency = $1 AND price_currency = $2
		GROUP BY side, price
		ORDER BY side, price DESC
	`, pair.Currency, pair.PriceCurrency)
	if err != nil {
		return nil, err
	}
	return levels, nil
}

// ActivePairs lists every pair with resting trades together with the newest
// trade timestamp, which is a cutoff that covers the whole pair.
func (s *TradeStore) ActivePairs(ctx context.Context) ([]PairCutoff, error) {
	var rows []PairCutoff
	err := s.db.SelectContext(ctx, &rows, `
		SELECT currency, price_currency, MAX(created_at) AS cutoff
		FROM trades
		WHERE active
		GROUP BY currency, price_currency
		ORDER BY currency, price_currency
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type PairCutoff struct {
	models.TradingPair
	Cutoff time.Time `db:"cutoff"`
}
