package dispatcher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"altcoin/internal/db"
	"altcoin/internal/metrics"
	"altcoin/internal/models"
	"altcoin/internal/services"
	"altcoin/internal/store"

	"go.uber.org/zap"
)

const (
	TableTrades = "trades"
	TableLedger = "user_transactions"
)

type Matcher interface {
	Run(ctx context.Context, pair models.TradingPair, cutoff time.Time) (int, error)
}

type Reconciler interface {
	Apply(ctx context.Context, entryID string) (bool, error)
}

type TradeReader interface {
	GetByID(ctx context.Context, tradeID string) (models.Trade, error)
	ActivePairs(ctx context.Context) ([]store.PairCutoff, error)
}

type LedgerReader interface {
	ListUnapplied(ctx context.Context, limit int) ([]models.LedgerEntry, error)
}

type Options struct {
	RetryBase    time.Duration
	RetryMax     time.Duration
	QueueSize    int
	CatchUpBatch int
}

func (o Options) withDefaults() Options {
	if o.RetryBase <= 0 {
		o.RetryBase = 50 * time.Millisecond
	}
	if o.RetryMax <= 0 {
		o.RetryMax = 30 * time.Second
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 4096
	}
	if o.CatchUpBatch <= 0 {
		o.CatchUpBatch = 500
	}
	return o
}

// Dispatcher turns row change notifications into matching runs and ledger
// applications. Each trading pair gets its own worker goroutine; all ledger
// entries go through a single reconciler worker.
type Dispatcher struct {
	matcher    Matcher
	reconciler Reconciler
	trades     TradeReader
	ledger     LedgerReader
	logger     *zap.Logger
	opts       Options

	mu      sync.Mutex
	pairs   map[models.TradingPair]*pairWorker
	entries chan string
	catchUp chan struct{}
	wg      sync.WaitGroup

	// reconcilerStopped is closed when the reconciler worker halts.
	reconcilerStopped chan struct{}

	reconcilerHalted bool
}

func New(matcher Matcher, reconciler Reconciler, trades TradeReader, ledger LedgerReader, logger *zap.Logger, opts Options) *Dispatcher {
	opts = opts.withDefaults()
	return &Dispatcher{
		matcher:    matcher,
		reconciler: reconciler,
		trades:     trades,
		ledger:     ledger,
		logger:     logger,
		opts:       opts,
		pairs:      make(map[models.TradingPair]*pairWorker),
		entries:    make(chan string, opts.QueueSize),
		catchUp:    make(chan struct{}, 1),

		reconcilerStopped: make(chan struct{}),
	}
}

// Run consumes notifications until ctx is done or the stream closes, then
// waits for in-flight work to stop. It performs a catch-up pass on start and
// after every reconnect.
func (d *Dispatcher) Run(ctx context.Context, notifications <-chan db.Notification) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		d.wg.Wait()
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.reconcileLoop(ctx)
	}()

	d.recover(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-notifications:
			if !ok {
				d.logger.Info("notification stream closed")
				return nil
			}
			d.handle(ctx, n)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, n db.Notification) {
	if n.Reconnected {
		d.logger.Info("notification stream reconnected, catching up")
		d.recover(ctx)
		return
	}
	metrics.NotificationsReceived.WithLabelValues(n.Table, n.Op).Inc()

	switch n.Table {
	case TableTrades:
		if n.Op == db.OpDelete {
			return
		}
		var trade models.Trade
		err := d.retry(ctx, "trade-lookup", func() error {
			var err error
			trade, err = d.trades.GetByID(ctx, n.ID)
			return err
		})
		if errors.Is(err, sql.ErrNoRows) {
			// Already matched away.
			return
		}
		if err != nil {
			return
		}
		d.trigger(ctx, trade.Pair(), trade.CreatedAt)
	case TableLedger:
		if n.Op != db.OpInsert {
			return
		}
		// Entries dropped here stay unapplied and are found by the next
		// catch-up after a restart.
		select {
		case <-d.reconcilerStopped:
			d.logger.Debug("dropping ledger entry for halted reconciler", zap.String("entry_id", n.ID))
			return
		default:
		}
		select {
		case d.entries <- n.ID:
		case <-d.reconcilerStopped:
			d.logger.Debug("dropping ledger entry for halted reconciler", zap.String("entry_id", n.ID))
		case <-ctx.Done():
		}
	}
}

// recover re-derives work that notifications may have missed: every
// unapplied ledger entry and every pair with resting trades.
func (d *Dispatcher) recover(ctx context.Context) {
	select {
	case d.catchUp <- struct{}{}:
	default:
	}
	var pairs []store.PairCutoff
	err := d.retry(ctx, "catch-up", func() error {
		var err error
		pairs, err = d.trades.ActivePairs(ctx)
		return err
	})
	if err != nil {
		return
	}
	for _, p := range pairs {
		d.trigger(ctx, p.TradingPair, p.Cutoff)
	}
}

func (d *Dispatcher) trigger(ctx context.Context, pair models.TradingPair, cutoff time.Time) {
	d.mu.Lock()
	w, ok := d.pairs[pair]
	if !ok {
		w = newPairWorker(pair)
		d.pairs[pair] = w
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.pairLoop(ctx, w)
		}()
	}
	d.mu.Unlock()

	if !w.trigger(cutoff) {
		d.logger.Debug("dropping trigger for halted pair", zap.String("pair", pair.String()))
	}
}

func (d *Dispatcher) pairLoop(ctx context.Context, w *pairWorker) {
	logger := d.logger.With(zap.String("pair", w.pair.String()))
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		}
		cutoff, ok := w.take()
		if !ok {
			continue
		}
		err := d.retry(ctx, "match", func() error {
			_, err := d.matcher.Run(ctx, w.pair, cutoff)
			return err
		})
		if services.IsFatal(err) {
			w.halt()
			metrics.HaltedWorkers.Inc()
			logger.Error("pair worker halted", zap.Error(err))
			return
		}
	}
}

func (d *Dispatcher) reconcileLoop(ctx context.Context) {
	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case <-d.catchUp:
			err = d.applyUnapplied(ctx)
		case id := <-d.entries:
			err = d.apply(ctx, id)
		}
		if services.IsFatal(err) {
			d.mu.Lock()
			d.reconcilerHalted = true
			d.mu.Unlock()
			close(d.reconcilerStopped)
			metrics.HaltedWorkers.Inc()
			d.logger.Error("reconciler halted", zap.Error(err))
			return
		}
	}
}

func (d *Dispatcher) apply(ctx context.Context, entryID string) error {
	return d.retry(ctx, "reconcile", func() error {
		_, err := d.reconciler.Apply(ctx, entryID)
		return err
	})
}

func (d *Dispatcher) applyUnapplied(ctx context.Context) error {
	for {
		var batch []models.LedgerEntry
		err := d.retry(ctx, "catch-up", func() error {
			var err error
			batch, err = d.ledger.ListUnapplied(ctx, d.opts.CatchUpBatch)
			return err
		})
		if err != nil {
			return err
		}
		for _, entry := range batch {
			if err := d.apply(ctx, entry.ID); err != nil {
				return err
			}
		}
		if len(batch) < d.opts.CatchUpBatch {
			return nil
		}
	}
}

// retry runs fn until it succeeds, fails fatally, or ctx ends. sql.ErrNoRows
// is returned as is since retrying a missing row does not help.
func (d *Dispatcher) retry(ctx context.Context, worker string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || services.IsFatal(err) || errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.WorkerRetries.WithLabelValues(worker).Inc()
		delay := d.backoff(attempt)
		d.logger.Warn("retrying after transient failure",
			zap.String("worker", worker),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := time.Duration(attempt*attempt) * d.opts.RetryBase
	if delay <= 0 || delay > d.opts.RetryMax {
		delay = d.opts.RetryMax
	}
	return delay + time.Duration(rand.Int63n(int64(d.opts.RetryBase)))
}

type Status struct {
	Pairs            []string `json:"pairs"`
	HaltedPairs      []string `json:"halted_pairs"`
	ReconcilerHalted bool     `json:"reconciler_halted"`
	QueuedEntries    int      `json:"queued_entries"`
}

func (d *Dispatcher) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	status := Status{
		Pairs:            []string{},
		HaltedPairs:      []string{},
		ReconcilerHalted: d.reconcilerHalted,
		QueuedEntries:    len(d.entries),
	}
	for pair, w := range d.pairs {
		status.Pairs = append(status.Pairs, pair.String())
		if w.isHalted() {
			status.HaltedPairs = append(status.HaltedPairs, pair.String())
		}
	}
	sort.Strings(status.Pairs)
	sort.Strings(status.HaltedPairs)
	return status
}

func (s Status) Healthy() bool {
	return !s.ReconcilerHalted && len(s.HaltedPairs) == 0
}

func (s Status) String() string {
	return fmt.Sprintf("%d pairs, %d halted, reconciler halted: %t", len(s.Pairs), len(s.HaltedPairs), s.ReconcilerHalted)
}
