package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"altcoin/internal/db"
	"altcoin/internal/metrics"
	"altcoin/internal/models"
	"altcoin/internal/money"
	"altcoin/internal/store"
	"altcoin/internal/websocket"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reconciler folds ledger entries into the cached user_balances rows.
type Reconciler struct {
	txRunner db.TxRunner
	users    UserStore
	ledger   LedgerStore
	hub      BalanceHub
	logger   *zap.Logger
}

func NewReconciler(txRunner db.TxRunner, users UserStore, ledger LedgerStore, hub BalanceHub, logger *zap.Logger) *Reconciler {
	if hub == nil {
		hub = nopHub{}
	}
	return &Reconciler{
		txRunner: txRunner,
		users:    users,
		ledger:   ledger,
		hub:      hub,
		logger:   logger,
	}
}

// BalanceDelta returns the currency an entry moves and the signed amount.
func BalanceDelta(entry models.LedgerEntry) (string, decimal.Decimal, error) {
	if !entry.Value.IsPositive() {
		return "", decimal.Zero, fmt.Errorf("%w: entry %s has value %s", ErrMalformedEntry, entry.ID, entry.Value)
	}
	switch entry.Kind {
	case models.EntryDeposit, models.EntryBuyOrderCompleted, models.EntrySellOrderCompleted, models.EntryBuyersChange:
		return entry.Currency, entry.Value, nil
	case models.EntryWithdrawal, models.EntrySellOrderCreated:
		return entry.Currency, entry.Value.Neg(), nil
	case models.EntryBuyOrderCreated:
		if !entry.Price.Valid || entry.PriceCurrency == nil || *entry.PriceCurrency == "" {
			return "", decimal.Zero, fmt.Errorf("%w: buy order entry %s has no price", ErrMalformedEntry, entry.ID)
		}
		return *entry.PriceCurrency, money.Round(entry.Value.Mul(entry.Price.Decimal)).Neg(), nil
	default:
		return "", decimal.Zero, fmt.Errorf("%w: entry %s has kind %q", ErrMalformedEntry, entry.ID, entry.Kind)
	}
}

type applyResult struct {
	applied   bool
	entry     models.LedgerEntry
	currency  string
	balance   decimal.Decimal
	malformed error
	missing   bool
}

// Apply consumes one ledger entry. It reports false when the entry was
// already consumed, is missing, or was malformed and skipped. Replaying an
// entry is always safe.
func (r *Reconciler) Apply(ctx context.Context, entryID string) (bool, error) {
	var result applyResult
	err := r.txRunner.WithTx(ctx, func(tx store.Tx) error {
		result = applyResult{}
		entry, err := r.ledger.GetForUpdate(ctx, tx, entryID)
		if errors.Is(err, sql.ErrNoRows) {
			result.missing = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock entry: %w", err)
		}
		result.entry = entry
		if entry.AppliedAt != nil {
			return nil
		}

		currency, delta, err := BalanceDelta(entry)
		if errors.Is(err, ErrMalformedEntry) {
			result.malformed = err
			return r.ledger.MarkApplied(ctx, tx, entry.ID)
		}
		if err != nil {
			return err
		}

		balance, err := r.users.LockBalance(ctx, tx, entry.UserID, currency)
		if err != nil {
			return fmt.Errorf("lock balance: %w", err)
		}
		updated := money.Round(balance.Add(delta))
		if err := r.users.SetBalance(ctx, tx, entry.UserID, currency, updated); err != nil {
			return fmt.Errorf("set balance: %w", err)
		}
		if err := r.ledger.MarkApplied(ctx, tx, entry.ID); err != nil {
			return fmt.Errorf("mark applied: %w", err)
		}
		result.applied = true
		result.currency = currency
		result.balance = updated
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("apply entry %s: %w", entryID, err)
	}

	switch {
	case result.missing:
		r.logger.Warn("ledger entry not found", zap.String("entry_id", entryID))
	case result.malformed != nil:
		metrics.LedgerEntriesApplied.WithLabelValues(string(result.entry.Kind), "malformed").Inc()
		r.logger.Error("skipped malformed ledger entry", zap.String("entry_id", entryID), zap.Error(result.malformed))
	case result.applied:
		metrics.LedgerEntriesApplied.WithLabelValues(string(result.entry.Kind), "applied").Inc()
		r.logger.Debug("ledger entry applied",
			zap.String("entry_id", entryID),
			zap.String("user_id", result.entry.UserID),
			zap.String("currency", result.currency),
			zap.String("balance", result.balance.String()),
		)
		r.hub.BroadcastBalance(result.entry.UserID, websocket.BalanceUpdate{
			Currency: result.currency,
			Balance:  money.Format(result.balance),
			EntryID:  result.entry.ID,
			Kind:     string(result.entry.Kind),
		})
	default:
		metrics.LedgerEntriesApplied.WithLabelValues(string(result.entry.Kind), "replayed").Inc()
	}
	return result.applied, nil
}

type BalanceCheck struct {
	Currency   string          `json:"currency"`
	Stored     decimal.Decimal `json:"stored"`
	Calculated decimal.Decimal `json:"calculated"`
	Difference decimal.Decimal `json:"difference"`
}

// Verify recomputes every balance of a user from the applied ledger entries
// and compares it with the cached row. Both are read from one snapshot, so a
// non-zero Difference means the cache drifted from the ledger.
func (r *Reconciler) Verify(ctx context.Context, userID string) ([]BalanceCheck, error) {
	var (
		entries  []models.LedgerEntry
		balances []models.Balance
	)
	err := r.txRunner.WithReadTx(ctx, func(tx store.Tx) error {
		var err error
		entries, err = r.ledger.ListByUser(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("list ledger entries: %w", err)
		}
		balances, err = r.users.ListBalances(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("list balances: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	calculated := make(map[string]decimal.Decimal)
	for _, entry := range entries {
		if entry.AppliedAt == nil {
			continue
		}
		currency, delta, err := BalanceDelta(entry)
		if err != nil {
			continue
		}
		calculated[currency] = money.Round(calculated[currency].Add(delta))
	}
	stored := make(map[string]decimal.Decimal, len(balances))
	for _, b := range balances {
		stored[b.Currency] = b.Balance
		if _, ok := calculated[b.Currency]; !ok {
			calculated[b.Currency] = decimal.Zero
		}
	}

	checks := make([]BalanceCheck, 0, len(calculated))
	for currency, sum := range calculated {
		cached := stored[currency]
		checks = append(checks, BalanceCheck{
			Currency:   currency,
			Stored:     cached,
			Calculated: sum,
			Difference: cached.Sub(sum),
		})
	}
	sort.Slice(checks, func(i, j int) bool { return checks[i].Currency < checks[j].Currency })
	return checks, nil
}
