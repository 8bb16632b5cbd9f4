package store

import (
	"context"

	"altcoin/internal/models"
)

type TradeHistoryStore struct {
	db DB
}

func NewTradeHistoryStore(db DB) *TradeHistoryStore {
	return &TradeHistoryStore{db: db}
}

func (s *TradeHistoryStore) Create(ctx context.Context, tx Execer, h models.TradeHistory) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO trade_history (id, buyer_id, seller_id, buy_order_id, sell_order_id,
			value, currency, price, price_currency,
			buy_commission, sell_commission, value_less_commission, price_less_commission,
			trade_value, trade_value_less_commission, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, h.ID, h.BuyerID, h.SellerID, h.BuyOrderID, h.SellOrderID,
		h.Value, h.Currency, h.Price, h.PriceCurrency,
		h.BuyCommission, h.SellCommission, h.ValueLessCommission, h.PriceLessCommission,
		h.TradeValue, h.TradeValueLessCommission, h.CreatedAt,
	)
	return err
}

func (s *TradeHistoryStore) ListByPair(ctx context.Context, pair models.TradingPair, limit, offset int) ([]models.TradeHistory, error) {
	var rows []models.TradeHistory
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, buyer_id, seller_id, buy_order_id, sell_order_id,
		       value, currency, price, price_currency,
		       buy_commission, sell_commission, value_less_commission, price_less_commission,
		       trade_value, trade_value_less_commission, created_at
		FROM trade_history
		WHERE currency = $1 AND price_currency = $2
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4
	`, pair.Currency, pair.PriceCurrency, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
