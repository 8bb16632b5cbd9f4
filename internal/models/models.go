package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// TradingPair is the partition key for matching: trades only match within one pair.
type TradingPair struct {
	Currency      string `db:"currency" json:"currency"`
	PriceCurrency string `db:"price_currency" json:"price_currency"`
}

func (p TradingPair) String() string {
	return p.Currency + "/" + p.PriceCurrency
}

type User struct {
	ID         string          `db:"id" json:"id"`
	Username   string          `db:"username" json:"username"`
	TradingFee decimal.Decimal `db:"trading_fee" json:"trading_fee"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

type Balance struct {
	UserID    string          `db:"user_id" json:"user_id"`
	Currency  string          `db:"currency" json:"currency"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

type Order struct {
	ID            string          `db:"id" json:"id"`
	Side          Side            `db:"side" json:"side"`
	UserID        string          `db:"user_id" json:"user_id"`
	Value         decimal.Decimal `db:"value" json:"value"`
	Currency      string          `db:"currency" json:"currency"`
	Price         decimal.Decimal `db:"price" json:"price"`
	PriceCurrency string          `db:"price_currency" json:"price_currency"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	Active        bool            `db:"active" json:"active"`
}

// Trade is the live, matchable remainder of an Order. Value shrinks on partial
// fills and the row is deleted once it reaches zero.
type Trade struct {
	ID            string          `db:"id" json:"id"`
	Side          Side            `db:"side" json:"side"`
	UserID        string          `db:"user_id" json:"user_id"`
	OrderID       string          `db:"order_id" json:"order_id"`
	Value         decimal.Decimal `db:"value" json:"value"`
	Currency      string          `db:"currency" json:"currency"`
	Price         decimal.Decimal `db:"price" json:"price"`
	PriceCurrency string          `db:"price_currency" json:"price_currency"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	Active        bool            `db:"active" json:"active"`
}

func (t Trade) Pair() TradingPair {
	return TradingPair{Currency: t.Currency, PriceCurrency: t.PriceCurrency}
}

type TradeHistory struct {
	ID                       string          `db:"id" json:"id"`
	BuyerID                  string          `db:"buyer_id" json:"buyer_id"`
	SellerID                 string          `db:"seller_id" json:"seller_id"`
	BuyOrderID               string          `db:"buy_order_id" json:"buy_order_id"`
	SellOrderID              string          `db:"sell_order_id" json:"sell_order_id"`
	Value                    decimal.Decimal `db:"value" json:"value"`
	Currency                 string          `db:"currency" json:"currency"`
	Price                    decimal.Decimal `db:"price" json:"price"`
	PriceCurrency            string          `db:"price_currency" json:"price_currency"`
	BuyCommission            decimal.Decimal `db:"buy_commission" json:"buy_commission"`
	SellCommission           decimal.Decimal `db:"sell_commission" json:"sell_commission"`
	ValueLessCommission      decimal.Decimal `db:"value_less_commission" json:"value_less_commission"`
	PriceLessCommission      decimal.Decimal `db:"price_less_commission" json:"price_less_commission"`
	TradeValue               decimal.Decimal `db:"trade_value" json:"trade_value"`
	TradeValueLessCommission decimal.Decimal `db:"trade_value_less_commission" json:"trade_value_less_commission"`
	CreatedAt                time.Time       `db:"created_at" json:"created_at"`
}

func (h TradeHistory) Pair() TradingPair {
	return TradingPair{Currency: h.Currency, PriceCurrency: h.PriceCurrency}
}

type EntryKind string

const (
	EntryDeposit            EntryKind = "deposit"
	EntryWithdrawal         EntryKind = "withdrawal"
	EntryBuyOrderCreated    EntryKind = "buyOrderCreated"
	EntrySellOrderCreated   EntryKind = "sellOrderCreated"
	EntryBuyOrderCompleted  EntryKind = "buyOrderCompleted"
	EntrySellOrderCompleted EntryKind = "sellOrderCompleted"
	EntryBuyersChange       EntryKind = "buyersChange"
)

// LedgerEntry is one row of user_transactions. Entries are append-only; the
// reconciler only ever sets AppliedAt.
type LedgerEntry struct {
	ID            string              `db:"id" json:"id"`
	Seq           int64               `db:"seq" json:"seq"`
	UserID        string              `db:"user_id" json:"user_id"`
	Kind          EntryKind           `db:"kind" json:"kind"`
	OrderID       *string             `db:"order_id" json:"order_id,omitempty"`
	Currency      string              `db:"currency" json:"currency"`
	Value         decimal.Decimal     `db:"value" json:"value"`
	Price         decimal.NullDecimal `db:"price" json:"price"`
	PriceCurrency *string             `db:"price_currency" json:"price_currency,omitempty"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
	AppliedAt     *time.Time          `db:"applied_at" json:"applied_at,omitempty"`
}

type PriceLevel struct {
	Side  Side            `db:"side" json:"side"`
	Price decimal.Decimal `db:"price" json:"price"`
	Value decimal.Decimal `db:"value" json:"value"`
}
