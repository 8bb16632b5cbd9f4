package services

import "errors"

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidValue      = errors.New("invalid value")
	ErrInvalidPrice      = errors.New("invalid price")
	ErrInvalidSide       = errors.New("invalid side")
	ErrInvalidPair       = errors.New("invalid trading pair")
	ErrInvalidUsername   = errors.New("invalid username")
	ErrInvalidFee        = errors.New("invalid trading fee")
	ErrUserNotFound      = errors.New("user not found")

	// ErrMalformedEntry marks a ledger entry the reconciler cannot interpret.
	// It is logged and consumed without touching balances.
	ErrMalformedEntry = errors.New("malformed ledger entry")

	// ErrInvariantViolation means stored data broke a monetary invariant.
	// Workers stop on it instead of retrying.
	ErrInvariantViolation = errors.New("invariant violation")
)

// IsFatal reports whether err must stop the worker that hit it.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}
