package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/keeper-escrow/backend/internal/models"
	"github.com/keeper-escrow/backend/internal/services"
)

type OrderRepo struct {
	db DBTX
}

func NewOrderRepo(db DBTX) *OrderRepo {
	return &OrderRepo{db: db}
}

const orderColumns = `order_id::text, asset, depositor, keeper, amount::text, completed_amount::text,
		       status, timeout_seconds, created_at, escrow_account, updated_at`

func scanOrder(row pgx.Row) (*models.DepositOrder, error) {
	var (
		o                         models.DepositOrder
		orderID, amount, complete string
	)
	err := row.Scan(&orderID, &o.Asset, &o.Depositor, &o.Keeper, &amount, &complete,
		&o.Status, &o.TimeoutSeconds, &o.CreatedAt, &o.EscrowAccount, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if o.OrderID, err = parseU64("order_id", orderID); err != nil {
		return nil, err
	}
	if o.Amount, err = parseU64("amount", amount); err != nil {
		return nil, err
	}
	if o.CompletedAmount, err = parseU64("completed_amount", complete); err != nil {
		return nil, err
	}
	return &o, nil
}

// Insert returns services.ErrDuplicateOrder when the key or escrow account already exists.
func (r *OrderRepo) Insert(ctx context.Context, o *models.DepositOrder) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO deposit_orders (order_id, asset, depositor, keeper, amount, completed_amount,
		                            status, timeout_seconds, created_at, escrow_account)
		VALUES ($1::numeric, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9, $10)
		ON CONFLICT DO NOTHING
		RETURNING updated_at
	`, dec(o.OrderID), o.Asset, o.Depositor, o.Keeper, dec(o.Amount), dec(o.CompletedAmount),
		o.Status, o.TimeoutSeconds, o.CreatedAt, o.EscrowAccount,
	).Scan(&o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) || pgErrCode(err) == pgUniqueViolation {
		return services.ErrDuplicateOrder
	}
	return err
}

func (r *OrderRepo) get(ctx context.Context, key models.OrderKey, lock bool) (*models.DepositOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM deposit_orders WHERE order_id = $1::numeric AND asset = $2`
	if lock {
		query += ` FOR UPDATE`
	}
	o, err := scanOrder(r.db.QueryRow(ctx, query, dec(key.OrderID), key.Asset))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, services.ErrOrderNotFound
	}
	return o, err
}

func (r *OrderRepo) GetByKey(ctx context.Context, key models.OrderKey) (*models.DepositOrder, error) {
	return r.get(ctx, key, false)
}

// GetForUpdate row-locks the order until the surrounding transaction ends.
func (r *OrderRepo) GetForUpdate(ctx context.Context, key models.OrderKey) (*models.DepositOrder, error) {
	return r.get(ctx, key, true)
}

func (r *OrderRepo) EscrowAccountExists(ctx context.Context, account string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM deposit_orders WHERE escrow_account = $1)`, account,
	).Scan(&exists)
	return exists, err
}

func (r *OrderRepo) Update(ctx context.Context, o *models.DepositOrder) error {
	err := r.db.QueryRow(ctx, `
		UPDATE deposit_orders
		SET status = $1, completed_amount = $2::numeric, updated_at = now()
		WHERE order_id = $3::numeric AND asset = $4
		RETURNING updated_at
	`, o.Status, dec(o.CompletedAmount), dec(o.OrderID), o.Asset).Scan(&o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return services.ErrOrderNotFound
	}
	return err
}

func (r *OrderRepo) List(ctx context.Context, f services.OrderFilter) ([]models.DepositOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM deposit_orders`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.Party != nil {
		where = append(where, fmt.Sprintf("(depositor = $%d OR keeper = $%d)", argIdx, argIdx))
		args = append(args, *f.Party)
		argIdx++
	}
	if f.Depositor != nil {
		where = append(where, fmt.Sprintf("depositor = $%d", argIdx))
		args = append(args, *f.Depositor)
		argIdx++
	}
	if f.Keeper != nil {
		where = append(where, fmt.Sprintf("keeper = $%d", argIdx))
		args = append(args, *f.Keeper)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}
	if f.Asset != nil {
		where = append(where, fmt.Sprintf("asset = $%d", argIdx))
		args = append(args, *f.Asset)
		argIdx++
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, asset, order_id LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	return r.query(ctx, query, args...)
}

// ListExpired returns live orders past their deadline, oldest deadline first.
func (r *OrderRepo) ListExpired(ctx context.Context, now int64, limit int) ([]models.DepositOrder, error) {
	if limit <= 0 {
		limit = 500
	}
	// now - timeout > created_at avoids overflowing created_at + timeout
	return r.query(ctx, `
		SELECT `+orderColumns+`
		FROM deposit_orders
		WHERE status IN ('initialized', 'ready_to_execute')
		  AND $1 - timeout_seconds > created_at
		ORDER BY created_at + timeout_seconds
		LIMIT $2
	`, now, limit)
}

func (r *OrderRepo) query(ctx context.Context, query string, args ...any) ([]models.DepositOrder, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.DepositOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}
