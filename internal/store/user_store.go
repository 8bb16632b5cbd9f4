package store

import (
	"context"

	"altcoin/internal/models"

	"github.com/shopspring/decimal"
)

type UserStore struct {
	db DB
}

func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, tx Execer, user models.User) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, username, trading_fee, created_at)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.Username, user.TradingFee, user.CreatedAt)
	return err
}

func (s *UserStore) GetByID(ctx context.Context, q Getter, userID string) (models.User, error) {
	var user models.User
	err := q.GetContext(ctx, &user, `
		SELECT id, username, trading_fee, created_at
		FROM users
		WHERE id = $1
	`, userID)
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

// GetBalance returns the cached balance, zero when the user never held the currency.
func (s *UserStore) GetBalance(ctx context.Context, q Getter, userID, currency string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := q.GetContext(ctx, &balance, `
		SELECT COALESCE((
			SELECT balance FROM user_balances WHERE user_id = $1 AND currency = $2
		), 0)
	`, userID, currency)
	return balance, err
}

// LockBalance locks the (user, currency) balance row for the rest of tx,
// creating it at zero first if needed.
func (s *UserStore) LockBalance(ctx context.Context, tx Tx, userID, currency string) (decimal.Decimal, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_balances (user_id, currency, balance)
		VALUES ($1, $2, 0)
		ON CONFLICT (user_id, currency) DO NOTHING
	`, userID, currency); err != nil {
		return decimal.Zero, err
	}
	var balance decimal.Decimal
	err := tx.GetContext(ctx, &balance, `
		SELECT balance
		FROM user_balances
		WHERE user_id = $1 AND currency = $2
		FOR UPDATE
	`, userID, currency)
	return balance, err
}

func (s *UserStore) SetBalance(ctx context.Context, tx Execer, userID, currency string, balance decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE user_balances
		SET balance = $1, updated_at = NOW()
		WHERE user_id = $2 AND currency = $3
	`, balance, userID, currency)
	return err
}

func (s *UserStore) ListBalances(ctx context.Context, q Selecter, userID string) ([]models.Balance, error) {
	var rows []models.Balance
	err := q.SelectContext(ctx, &rows, `
		SELECT user_id, currency, balance, updated_at
		FROM user_balances
		WHERE user_id = $1
		ORDER BY currency
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
