package db

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"time"

	"altcoin/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type TxRunner interface {
	WithTx(ctx context.Context, fn func(store.Tx) error) error
	WithReadTx(ctx context.Context, fn func(store.Tx) error) error
}

type SQLXTxRunner struct {
	db *sqlx.DB
}

func NewTxRunner(db *sqlx.DB) SQLXTxRunner {
	return SQLXTxRunner{db: db}
}

func (r SQLXTxRunner) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	return WithTx(ctx, r.db, fn)
}

func (r SQLXTxRunner) WithReadTx(ctx context.Context, fn func(store.Tx) error) error {
	return WithReadTx(ctx, r.db, fn)
}

func Connect(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// WithTx runs fn in a serializable transaction. The transaction is the retry
// unit: serialization failures and deadlocks roll back and run fn again from
// scratch, so fn must not keep state across attempts.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(store.Tx) error) error {
	const maxAttempts = 5
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			if IsRetryable(err) && attempt < maxAttempts {
				if err := sleepWithBackoff(ctx, attempt); err != nil {
					return err
				}
				continue
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			if IsRetryable(err) && attempt < maxAttempts {
				if err := sleepWithBackoff(ctx, attempt); err != nil {
					return err
				}
				continue
			}
			return err
		}
		return nil
	}
	return errors.New("transaction retry limit exceeded")
}

// WithReadTx runs fn in a read-only repeatable read transaction, so every
// query in fn sees the same snapshot.
func WithReadTx(ctx context.Context, db *sqlx.DB, fn func(store.Tx) error) error {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// IsRetryable reports whether err is a serialization failure or deadlock.
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

func sleepWithBackoff(ctx context.Context, attempt int) error {
	base := 20 * time.Millisecond
	backoff := time.Duration(attempt*attempt) * base
	jitter := time.Duration(rand.Int63n(int64(10 * time.Millisecond)))
	timer := time.NewTimer(backoff + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
