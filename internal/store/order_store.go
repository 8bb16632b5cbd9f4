package store

import (
	"context"

	"altcoin/internal/models"

	"github.com/lib/pq"
)

type OrderStore struct {
	db DB
}

func NewOrderStore(db DB) *OrderStore {
	return &OrderStore{db: db}
}

func (s *OrderStore) Create(ctx context.Context, tx Execer, order models.Order) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO orders (id, side, user_id, value, currency, price, price_currency, created_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, order.ID, order.Side, order.UserID, order.Value, order.Currency, order.Price, order.PriceCurrency, order.CreatedAt, order.Active)
	return err
}

// Deactivate flips active off for the given orders. It is the only mutation
// an order ever sees.
func (s *OrderStore) Deactivate(ctx context.Context, tx Execer, orderIDs ...string) error {
	if len(orderIDs) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `UPDATE orders SET active = FALSE WHERE id = ANY($1)`, pq.Array(orderIDs))
	return err
}

func (s *OrderStore) GetByID(ctx context.Context, orderID string) (models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, `
		SELECT id, side, user_id, value, currency, price, price_currency, created_at, active
		FROM orders
		WHERE id = $1
	`, orderID)
	if err != nil {
		return models.Order{}, err
	}
	return order, nil
}
