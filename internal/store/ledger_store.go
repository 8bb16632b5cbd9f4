package store

import (
	"context"

	"altcoin/internal/models"

	"github.com/shopspring/decimal"
)

type LedgerStore struct {
	db DB
}

const entryColumns = `id, seq, user_id, kind, order_id, currency, value, price, price_currency, created_at, applied_at`

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// Insert appends entries in slice order; seq is assigned by the database.
func (s *LedgerStore) Insert(ctx context.Context, tx Execer, entries []models.LedgerEntry) error {
	query := `
		INSERT INTO user_transactions (id, user_id, kind, order_id, currency, value, price, price_currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, query,
			entry.ID, entry.UserID, entry.Kind, entry.OrderID, entry.Currency,
			entry.Value, entry.Price, entry.PriceCurrency, entry.CreatedAt,
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *LedgerStore) GetForUpdate(ctx context.Context, tx Getter, entryID string) (models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := tx.GetContext(ctx, &entry, `
		SELECT `+entryColumns+`
		FROM user_transactions
		WHERE id = $1
		FOR UPDATE
	`, entryID)
	if err != nil {
		return models.LedgerEntry{}, err
	}
	return entry, nil
}

func (s *LedgerStore) MarkApplied(ctx context.Context, tx Execer, entryID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE user_transactions
		SET applied_at = NOW()
		WHERE id = $1 AND applied_at IS NULL
	`, entryID)
	return err
}

// ListUnapplied returns entries the reconciler has not consumed yet, in seq
// order. seq is taken at insert time, so concurrent writers may commit out of
// seq order; balance deltas commute, so the applied result is the same.
func (s *LedgerStore) ListUnapplied(ctx context.Context, limit int) ([]models.LedgerEntry, error) {
	var rows []models.LedgerEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+entryColumns+`
		FROM user_transactions
		WHERE applied_at IS NULL
		ORDER BY seq
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *LedgerStore) ListByUser(ctx context.Context, q Selecter, userID string) ([]models.LedgerEntry, error) {
	var rows []models.LedgerEntry
	err := q.SelectContext(ctx, &rows, `
		SELECT `+entryColumns+`
		FROM user_transactions
		WHERE user_id = $1
		ORDER BY seq
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// PendingDebits sums the unapplied entries that will lower the user's balance
// in currency once the reconciler consumes them.
func (s *LedgerStore) PendingDebits(ctx context.Context, q Getter, userID, currency string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(
			CASE WHEN kind = 'buyOrderCreated' THEN ROUND(value * price, 8) ELSE value END
		), 0)
		FROM user_transactions
		WHERE user_id = $1
		  AND applied_at IS NULL
		  AND (
			(kind IN ('withdrawal', 'sellOrderCreated') AND currency = $2)
			OR (kind = 'buyOrderCreated' AND price_currency = $2)
		  )
	`, userID, currency)
	return total, err
}
