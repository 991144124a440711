// Package ledger describes the value-transfer ledger the escrow engine talks to:
// atomic transfers between accounts, each debit authorized either by the account
// holder or by an escrow capability derived from the order it belongs to.
package ledger

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInsufficientFunds  = errors.New("ledger: insufficient funds")
	ErrUnauthorizedDebit  = errors.New("ledger: debit not authorized for source account")
	ErrZeroAmount         = errors.New("ledger: transfer amount must be positive")
	ErrBalanceOverflow    = errors.New("ledger: balance overflow")
	ErrSameAccount        = errors.New("ledger: source and destination are the same account")
	ErrMissingAccountInfo = errors.New("ledger: account and asset are required")
)

type Transfer struct {
	From   string
	To     string
	Asset  string
	Amount uint64
}

func (t Transfer) String() string {
	return fmt.Sprintf("%d %s %s -> %s", t.Amount, t.Asset, t.From, t.To)
}

// Ledger moves value between accounts. Transfer must either apply fully or not at all.
type Ledger interface {
	Transfer(ctx context.Context, t Transfer, auth Authority) error
	Balance(ctx context.Context, account, asset string) (uint64, error)
}

// Validate runs the checks every Ledger implementation applies before touching balances.
func Validate(t Transfer, auth Authority) error {
	if t.From == "" || t.To == "" || t.Asset == "" {
		return ErrMissingAccountInfo
	}
	if t.Amount == 0 {
		return ErrZeroAmount
	}
	if t.From == t.To {
		return ErrSameAccount
	}
	if auth == nil || !auth.CanDebit(t.From, t.Asset) {
		return ErrUnauthorizedDebit
	}
	return nil
}
