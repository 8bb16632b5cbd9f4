package services

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"altcoin/internal/models"
	"altcoin/internal/money"
	"altcoin/internal/store"
	"altcoin/internal/websocket"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type balanceKey struct {
	userID   string
	currency string
}

// memState is an in-memory stand-in for the database. memTxRunner snapshots
// it before each transaction and restores the snapshot when fn fails.
type memState struct {
	users    map[string]models.User
	balances map[balanceKey]decimal.Decimal
	orders   map[string]models.Order
	trades   map[string]models.Trade
	history  []models.TradeHistory
	entries  []models.LedgerEntry
	seq      int64

	failHistoryCreate error
	failLedgerInsert  error
}

func newMemState() *memState {
	return &memState{
		users:    make(map[string]models.User),
		balances: make(map[balanceKey]decimal.Decimal),
		orders:   make(map[string]models.Order),
		trades:   make(map[string]models.Trade),
	}
}

func (s *memState) clone() memState {
	c := *s
	c.users = maps.Clone(s.users)
	c.balances = maps.Clone(s.balances)
	c.orders = maps.Clone(s.orders)
	c.trades = maps.Clone(s.trades)
	c.history = slices.Clone(s.history)
	c.entries = slices.Clone(s.entries)
	return c
}

func (s *memState) unappliedIDs() []string {
	var ids []string
	for _, entry := range s.entries {
		if entry.AppliedAt == nil {
			ids = append(ids, entry.ID)
		}
	}
	return ids
}

func (s *memState) tradesOf(pair models.TradingPair) []models.Trade {
	var out []models.Trade
	for _, trade := range s.trades {
		if trade.Pair() == pair {
			out = append(out, trade)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *memState) entriesOfKind(kind models.EntryKind) []models.LedgerEntry {
	var out []models.LedgerEntry
	for _, entry := range s.entries {
		if entry.Kind == kind {
			out = append(out, entry)
		}
	}
	return out
}

type memTxRunner struct {
	mu      sync.Mutex
	state   *memState
	err     error
	readTxs int
}

func (r *memTxRunner) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := r.state.clone()
	if err := fn(nil); err != nil {
		*r.state = snapshot
		return err
	}
	return nil
}

// WithReadTx holds the same lock as WithTx, so reads in fn never observe a
// transaction halfway through.
func (r *memTxRunner) WithReadTx(ctx context.Context, fn func(store.Tx) error) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readTxs++
	return fn(nil)
}

type memUsers struct{ s *memState }

func (m memUsers) Create(ctx context.Context, tx store.Execer, user models.User) error {
	for _, existing := range m.s.users {
		if existing.Username == user.Username {
			return fmt.Errorf("duplicate username %q", user.Username)
		}
	}
	m.s.users[user.ID] = user
	return nil
}

func (m memUsers) GetByID(ctx context.Context, q store.Getter, userID string) (models.User, error) {
	user, ok := m.s.users[userID]
	if !ok {
		return models.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (m memUsers) GetBalance(ctx context.Context, q store.Getter, userID, currency string) (decimal.Decimal, error) {
	return m.s.balances[balanceKey{userID, currency}], nil
}

func (m memUsers) LockBalance(ctx context.Context, tx store.Tx, userID, currency string) (decimal.Decimal, error) {
	key := balanceKey{userID, currency}
	if _, ok := m.s.balances[key]; !ok {
		m.s.balances[key] = decimal.Zero
	}
	return m.s.balances[key], nil
}

func (m memUsers) SetBalance(ctx context.Context, tx store.Execer, userID, currency string, balance decimal.Decimal) error {
	m.s.balances[balanceKey{userID, currency}] = balance
	return nil
}

func (m memUsers) ListBalances(ctx context.Context, q store.Selecter, userID string) ([]models.Balance, error) {
	var out []models.Balance
	for key, balance := range m.s.balances {
		if key.userID == userID {
			out = append(out, models.Balance{UserID: userID, Currency: key.currency, Balance: balance})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

type memOrders struct{ s *memState }

func (m memOrders) Create(ctx context.Context, tx store.Execer, order models.Order) error {
	m.s.orders[order.ID] = order
	return nil
}

func (m memOrders) Deactivate(ctx context.Context, tx store.Execer, orderIDs ...string) error {
	for _, id := range orderIDs {
		order := m.s.orders[id]
		order.Active = false
		m.s.orders[id] = order
	}
	return nil
}

type memTrades struct{ s *memState }

func (m memTrades) Create(ctx context.Context, tx store.Execer, trade models.Trade) error {
	m.s.trades[trade.ID] = trade
	return nil
}

func (m memTrades) candidates(side models.Side, pair models.TradingPair, cutoff time.Time) []models.Trade {
	var out []models.Trade
	for _, trade := range m.s.trades {
		if trade.Side == side && trade.Active && trade.Pair() == pair && !trade.CreatedAt.After(cutoff) {
			out = append(out, trade)
		}
	}
	return out
}

func (m memTrades) LowestSell(ctx context.Context, tx store.Getter, pair models.TradingPair, cutoff time.Time) (models.Trade, error) {
	sells := m.candidates(models.SideSell, pair, cutoff)
	if len(sells) == 0 {
		return models.Trade{}, sql.ErrNoRows
	}
	sort.Slice(sells, func(i, j int) bool {
		if !sells[i].Price.Equal(sells[j].Price) {
			return sells[i].Price.LessThan(sells[j].Price)
		}
		return sells[i].CreatedAt.Before(sells[j].CreatedAt)
	})
	return sells[0], nil
}

func (m memTrades) BestBuy(ctx context.Context, tx store.Getter, pair models.TradingPair, minPrice decimal.Decimal, cutoff time.Time) (models.Trade, error) {
	var buys []models.Trade
	for _, trade := range m.candidates(models.SideBuy, pair, cutoff) {
		if trade.Price.GreaterThanOrEqual(minPrice) {
			buys = append(buys, trade)
		}
	}
	if len(buys) == 0 {
		return models.Trade{}, sql.ErrNoRows
	}
	sort.Slice(buys, func(i, j int) bool {
		if !buys[i].Price.Equal(buys[j].Price) {
			return buys[i].Price.GreaterThan(buys[j].Price)
		}
		return buys[i].CreatedAt.Before(buys[j].CreatedAt)
	})
	return buys[0], nil
}

func (m memTrades) UpdateValue(ctx context.Context, tx store.Execer, tradeID string, value decimal.Decimal) error {
	trade := m.s.trades[tradeID]
	trade.Value = value
	m.s.trades[tradeID] = trade
	return nil
}

func (m memTrades) Delete(ctx context.Context, tx store.Execer, tradeIDs ...string) error {
	for _, id := range tradeIDs {
		delete(m.s.trades, id)
	}
	return nil
}

type memHistory struct{ s *memState }

func (m memHistory) Create(ctx context.Context, tx store.Execer, h models.TradeHistory) error {
	if m.s.failHistoryCreate != nil {
		return m.s.failHistoryCreate
	}
	m.s.history = append(m.s.history, h)
	return nil
}

type memLedger struct{ s *memState }

func (m memLedger) Insert(ctx context.Context, tx store.Execer, entries []models.LedgerEntry) error {
	if m.s.failLedgerInsert != nil {
		return m.s.failLedgerInsert
	}
	for _, entry := range entries {
		m.s.seq++
		entry.Seq = m.s.seq
		m.s.entries = append(m.s.entries, entry)
	}
	return nil
}

func (m memLedger) GetForUpdate(ctx context.Context, tx store.Getter, entryID string) (models.LedgerEntry, error) {
	for _, entry := range m.s.entries {
		if entry.ID == entryID {
			return entry, nil
		}
	}
	return models.LedgerEntry{}, sql.ErrNoRows
}

func (m memLedger) MarkApplied(ctx context.Context, tx store.Execer, entryID string) error {
	for i, entry := range m.s.entries {
		if entry.ID == entryID && entry.AppliedAt == nil {
			now := time.Now().UTC()
			m.s.entries[i].AppliedAt = &now
		}
	}
	return nil
}

func (m memLedger) PendingDebits(ctx context.Context, q store.Getter, userID, currency string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, entry := range m.s.entries {
		if entry.UserID != userID || entry.AppliedAt != nil {
			continue
		}
		switch entry.Kind {
		case models.EntryWithdrawal, models.EntrySellOrderCreated:
			if entry.Currency == currency {
				total = total.Add(entry.Value)
			}
		case models.EntryBuyOrderCreated:
			if entry.PriceCurrency != nil && *entry.PriceCurrency == currency {
				total = total.Add(money.Round(entry.Value.Mul(entry.Price.Decimal)))
			}
		}
	}
	return total, nil
}

func (m memLedger) ListByUser(ctx context.Context, q store.Selecter, userID string) ([]models.LedgerEntry, error) {
	var out []models.LedgerEntry
	for _, entry := range m.s.entries {
		if entry.UserID == userID {
			out = append(out, entry)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	trades []models.TradeHistory
	err    error
}

func (p *recordingPublisher) PublishTrade(ctx context.Context, trade models.TradeHistory) error {
	p.trades = append(p.trades, trade)
	return p.err
}

type broadcast struct {
	userID string
	update websocket.BalanceUpdate
}

type recordingHub struct {
	mu      sync.Mutex
	updates []broadcast
}

func (h *recordingHub) BroadcastBalance(userID string, update websocket.BalanceUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, broadcast{userID: userID, update: update})
}

// testClock hands out strictly increasing timestamps.
type testClock struct {
	current time.Time
}

func (c *testClock) now() time.Time {
	c.current = c.current.Add(time.Millisecond)
	return c.current
}

type sequentialIDs struct {
	prefix string
	next   int
}

func (g *sequentialIDs) newID() string {
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next)
}

type testEnv struct {
	state      *memState
	txRunner   *memTxRunner
	orders     *OrderService
	engine     *MatchingEngine
	reconciler *Reconciler
	clock      *testClock
	publisher  *recordingPublisher
	hub        *recordingHub
}

var btcUSD = models.TradingPair{Currency: "BTC", PriceCurrency: "USD"}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	state := newMemState()
	txRunner := &memTxRunner{state: state}
	users, orders, trades := memUsers{state}, memOrders{state}, memTrades{state}
	history, ledger := memHistory{state}, memLedger{state}
	logger := zap.NewNop()
	clock := &testClock{current: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	ids := &sequentialIDs{prefix: "id"}
	publisher := &recordingPublisher{}
	hub := &recordingHub{}

	orderService := NewOrderService(txRunner, users, orders, trades, ledger, logger)
	orderService.now, orderService.newID = clock.now, ids.newID
	engine := NewMatchingEngine(txRunner, users, orders, trades, history, ledger, publisher, logger)
	engine.now, engine.newID = clock.now, ids.newID

	return &testEnv{
		state:      state,
		txRunner:   txRunner,
		orders:     orderService,
		engine:     engine,
		reconciler: NewReconciler(txRunner, users, ledger, hub, logger),
		clock:      clock,
		publisher:  publisher,
		hub:        hub,
	}
}

// drain applies every unconsumed ledger entry in seq order.
func (e *testEnv) drain(t *testing.T) {
	t.Helper()
	for _, id := range e.state.unappliedIDs() {
		_, err := e.reconciler.Apply(context.Background(), id)
		require.NoError(t, err)
	}
}

func (e *testEnv) user(t *testing.T, name, fee string) string {
	t.Helper()
	id, err := e.orders.CreateUser(context.Background(), CreateUserRequest{Username: name, TradingFee: dec(fee)})
	require.NoError(t, err)
	return id
}

func (e *testEnv) deposit(t *testing.T, userID, currency, value string) {
	t.Helper()
	_, err := e.orders.Deposit(context.Background(), userID, currency, dec(value))
	require.NoError(t, err)
	e.drain(t)
}

func (e *testEnv) place(t *testing.T, userID string, side models.Side, value, price string) string {
	t.Helper()
	tradeID, err := e.orders.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: userID,
		Side:   side,
		Pair:   btcUSD,
		Value:  dec(value),
		Price:  dec(price),
	})
	require.NoError(t, err)
	return tradeID
}

func (e *testEnv) match(t *testing.T) int {
	t.Helper()
	n, err := e.engine.Run(context.Background(), btcUSD, e.clock.current)
	require.NoError(t, err)
	return n
}

func (e *testEnv) balance(userID, currency string) decimal.Decimal {
	return e.state.balances[balanceKey{userID, currency}]
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
