package validator

import (
	"errors"
	"regexp"
)

var (
	ErrInvalidUsername = errors.New("invalid username")
	ErrInvalidCurrency = errors.New("invalid currency code")
)

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)
	currencyRegex = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)
)

func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

// ValidateCurrency accepts upper-case ticker symbols such as BTC or USDT.
func ValidateCurrency(code string) error {
	if !currencyRegex.MatchString(code) {
		return ErrInvalidCurrency
	}
	return nil
}
