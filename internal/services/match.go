package services

import (
	"fmt"
	"time"

	"altcoin/internal/models"
	"altcoin/internal/money"

	"github.com/shopspring/decimal"
)

type SettlementKind int

const (
	SettleEqual SettlementKind = iota + 1
	SettlePartial
)

func (k SettlementKind) String() string {
	switch k {
	case SettleEqual:
		return "equal"
	case SettlePartial:
		return "partial"
	default:
		return "unknown"
	}
}

// Settlement is what happens to the two trade rows after a match. For an
// equal match both rows are deleted. For a partial match Completed is
// deleted and Partial keeps Remaining.
type Settlement struct {
	Kind      SettlementKind
	Completed models.Trade
	Partial   models.Trade
	Remaining decimal.Decimal
}

func settle(buy, sell models.Trade, value decimal.Decimal) Settlement {
	if buy.Value.Equal(sell.Value) {
		return Settlement{Kind: SettleEqual}
	}
	completed, partial := sell, buy
	if sell.Value.GreaterThan(buy.Value) {
		completed, partial = buy, sell
	}
	return Settlement{
		Kind:      SettlePartial,
		Completed: completed,
		Partial:   partial,
		Remaining: money.Round(partial.Value.Sub(value)),
	}
}

type Commission struct {
	BuyCommission            decimal.Decimal
	SellCommission           decimal.Decimal
	ValueLessCommission      decimal.Decimal
	PriceLessCommission      decimal.Decimal
	TradeValue               decimal.Decimal
	TradeValueLessCommission decimal.Decimal
}

// CalculateCommission splits a match of value at price into what each side
// receives. The buyer pays buyFee percent of the base value, the seller pays
// sellFee percent of the quote value.
func CalculateCommission(value, price, buyFee, sellFee decimal.Decimal) Commission {
	tradeValue := money.Round(value.Mul(price))
	buyCommission := money.Percent(value, buyFee)
	sellCommission := money.Percent(tradeValue, sellFee)
	return Commission{
		BuyCommission:            buyCommission,
		SellCommission:           sellCommission,
		ValueLessCommission:      money.Round(value.Sub(buyCommission)),
		PriceLessCommission:      money.Round(price.Sub(money.Percent(price, sellFee))),
		TradeValue:               tradeValue,
		TradeValueLessCommission: money.Round(tradeValue.Sub(sellCommission)),
	}
}

// Match is one fully computed pairing of a buy and a sell trade.
type Match struct {
	Buy          models.Trade
	Sell         models.Trade
	Price        decimal.Decimal
	Value        decimal.Decimal
	Commission   Commission
	BuyersChange decimal.Decimal
	Settlement   Settlement
}

// NewMatch prices a crossing buy and sell. The earlier trade is the maker and
// sets the price. When the seller is the maker the buyer is refunded the gap
// between their limit and the execution price; sellers never get a rebate.
func NewMatch(buy, sell models.Trade, buyFee, sellFee decimal.Decimal) (Match, error) {
	if err := checkCrossing(buy, sell); err != nil {
		return Match{}, err
	}
	price := buy.Price
	if sell.CreatedAt.Before(buy.CreatedAt) {
		price = sell.Price
	}
	value := decimal.Min(buy.Value, sell.Value)

	buyersChange := decimal.Zero
	if sell.CreatedAt.Before(buy.CreatedAt) {
		if change := money.Round(value.Mul(buy.Price.Sub(price))); change.IsPositive() {
			buyersChange = change
		}
	}

	return Match{
		Buy:          buy,
		Sell:         sell,
		Price:        price,
		Value:        value,
		Commission:   CalculateCommission(value, price, buyFee, sellFee),
		BuyersChange: buyersChange,
		Settlement:   settle(buy, sell, value),
	}, nil
}

func checkCrossing(buy, sell models.Trade) error {
	switch {
	case buy.Side != models.SideBuy || sell.Side != models.SideSell:
		return fmt.Errorf("%w: trade sides %s/%s", ErrInvariantViolation, buy.Side, sell.Side)
	case buy.Pair() != sell.Pair():
		return fmt.Errorf("%w: pairs %s and %s do not match", ErrInvariantViolation, buy.Pair(), sell.Pair())
	case !buy.Value.IsPositive() || !sell.Value.IsPositive():
		return fmt.Errorf("%w: non-positive trade value (buy %s, sell %s)", ErrInvariantViolation, buy.ID, sell.ID)
	case !buy.Price.IsPositive() || !sell.Price.IsPositive():
		return fmt.Errorf("%w: non-positive trade price (buy %s, sell %s)", ErrInvariantViolation, buy.ID, sell.ID)
	case buy.Price.LessThan(sell.Price):
		return fmt.Errorf("%w: buy %s priced below sell %s", ErrInvariantViolation, buy.ID, sell.ID)
	}
	return nil
}

func (m Match) Pair() models.TradingPair {
	return m.Sell.Pair()
}

func (m Match) History(id string, at time.Time) models.TradeHistory {
	return models.TradeHistory{
		ID:                       id,
		BuyerID:                  m.Buy.UserID,
		SellerID:                 m.Sell.UserID,
		BuyOrderID:               m.Buy.OrderID,
		SellOrderID:              m.Sell.OrderID,
		Value:                    m.Value,
		Currency:                 m.Buy.Currency,
		Price:                    m.Price,
		PriceCurrency:            m.Sell.PriceCurrency,
		BuyCommission:            m.Commission.BuyCommission,
		SellCommission:           m.Commission.SellCommission,
		ValueLessCommission:      m.Commission.ValueLessCommission,
		PriceLessCommission:      m.Commission.PriceLessCommission,
		TradeValue:               m.Commission.TradeValue,
		TradeValueLessCommission: m.Commission.TradeValueLessCommission,
		CreatedAt:                at,
	}
}

// LedgerEntries returns the credits a match produces: the seller's quote
// proceeds, the buyer's base proceeds and, when due, the buyer's change.
func (m Match) LedgerEntries(newID func() string, at time.Time) []models.LedgerEntry {
	sellOrderID := m.Sell.OrderID
	buyOrderID := m.Buy.OrderID
	entries := []models.LedgerEntry{
		{
			ID:        newID(),
			UserID:    m.Sell.UserID,
			Kind:      models.EntrySellOrderCompleted,
			OrderID:   &sellOrderID,
			Currency:  m.Sell.PriceCurrency,
			Value:     m.Commission.TradeValueLessCommission,
			CreatedAt: at,
		},
		{
			ID:        newID(),
			UserID:    m.Buy.UserID,
			Kind:      models.EntryBuyOrderCompleted,
			OrderID:   &buyOrderID,
			Currency:  m.Buy.Currency,
			Value:     m.Commission.ValueLessCommission,
			CreatedAt: at,
		},
	}
	if m.BuyersChange.IsPositive() {
		entries = append(entries, models.LedgerEntry{
			ID:        newID(),
			UserID:    m.Buy.UserID,
			Kind:      models.EntryBuyersChange,
			OrderID:   &buyOrderID,
			Currency:  m.Buy.PriceCurrency,
			Value:     m.BuyersChange,
			CreatedAt: at,
		})
	}
	return entries
}
