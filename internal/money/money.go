package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the fixed precision of every balance, value and price.
const Places int32 = 8

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
)

var hundred = decimal.NewFromInt(100)

func Round(value decimal.Decimal) decimal.Decimal {
	return value.Round(Places)
}

func Parse(input string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if err := CheckPrecision(value); err != nil {
		return decimal.Zero, err
	}
	return value, nil
}

func CheckPrecision(value decimal.Decimal) error {
	if !value.Equal(Round(value)) {
		return ErrTooManyDecimals
	}
	return nil
}

func Format(value decimal.Decimal) string {
	return value.StringFixed(Places)
}

// Percent returns value * rate / 100, rounded.
func Percent(value, rate decimal.Decimal) decimal.Decimal {
	return Round(value.Mul(rate).Div(hundred))
}
