package domain

import (
	"github.com/shopspring/decimal"
)

// Account represents an account entity in the domain layer.
// Accounts are provisioned externally; this core only mutates balances.
type Account struct {
	ID      int64
	Balance decimal.Decimal // Never negative after a committed transfer
}

// CanCover reports whether the account balance covers the given amount.
func (a *Account) CanCover(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(amount)
}
