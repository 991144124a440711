package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/keeper-escrow/backend/internal/ledger"
)

// LedgerRepo keeps per-(account, asset) balances in ledger_balances. A transfer is two
// conditional statements, so it must run inside a transaction to be atomic.
type LedgerRepo struct {
	db DBTX
}

func NewLedgerRepo(db DBTX) *LedgerRepo {
	return &LedgerRepo{db: db}
}

var _ ledger.Ledger = (*LedgerRepo)(nil)

func (r *LedgerRepo) Balance(ctx context.Context, account, asset string) (uint64, error) {
	var balance string
	err := r.db.QueryRow(ctx, `
		SELECT balance::text FROM ledger_balances WHERE account = $1 AND asset = $2
	`, account, asset).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return parseU64("balance", balance)
}

func (r *LedgerRepo) Transfer(ctx context.Context, t ledger.Transfer, auth ledger.Authority) error {
	if err := ledger.Validate(t, auth); err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE ledger_balances SET balance = balance - $1::numeric, updated_at = now()
		WHERE account = $2 AND asset = $3 AND balance >= $1::numeric
	`, dec(t.Amount), t.From, t.Asset)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrInsufficientFunds
	}

	return r.Credit(ctx, t.To, t.Asset, t.Amount)
}

// Credit adds amount to account. The balance column check rejects values past the u64 range.
func (r *LedgerRepo) Credit(ctx context.Context, account, asset string, amount uint64) error {
	if account == "" || asset == "" {
		return ledger.ErrMissingAccountInfo
	}
	if amount == 0 {
		return ledger.ErrZeroAmount
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO ledger_balances (account, asset, balance)
		VALUES ($1, $2, $3::numeric)
		ON CONFLICT (account, asset) DO UPDATE
		SET balance = ledger_balances.balance + EXCLUDED.balance, updated_at = now()
	`, account, asset, dec(amount))
	if pgErrCode(err) == pgCheckViolation {
		return ledger.ErrBalanceOverflow
	}
	return err
}
