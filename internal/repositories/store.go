package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keeper-escrow/backend/internal/ledger"
	"github.com/keeper-escrow/backend/internal/models"
	"github.com/keeper-escrow/backend/internal/services"
)

// Store is the Postgres services.Store. Each unit of work is one read-committed
// transaction; the order row lock serializes operations on the same order.
type Store struct {
	pool   *pgxpool.Pool
	orders *OrderRepo
	ledger *LedgerRepo
	audit  *AuditRepo
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:   pool,
		orders: NewOrderRepo(pool),
		ledger: NewLedgerRepo(pool),
		audit:  NewAuditRepo(pool),
	}
}

var _ services.Store = (*Store)(nil)

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx services.OrderTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, newPgTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, key models.OrderKey) (*models.DepositOrder, error) {
	return s.orders.GetByKey(ctx, key)
}

func (s *Store) ListOrders(ctx context.Context, f services.OrderFilter) ([]models.DepositOrder, error) {
	return s.orders.List(ctx, f)
}

func (s *Store) ListExpired(ctx context.Context, now int64, limit int) ([]models.DepositOrder, error) {
	return s.orders.ListExpired(ctx, now, limit)
}

func (s *Store) GetAuditLog(ctx context.Context, entityType, entityID string, limit, offset int) ([]models.AuditLog, error) {
	return s.audit.GetByEntity(ctx, entityType, entityID, limit, offset)
}

func (s *Store) Balance(ctx context.Context, account, asset string) (uint64, error) {
	return s.ledger.Balance(ctx, account, asset)
}

func (s *Store) Credit(ctx context.Context, account, asset string, amount uint64) error {
	return s.ledger.Credit(ctx, account, asset, amount)
}

type pgTx struct {
	orders *OrderRepo
	ledger *LedgerRepo
	audit  *AuditRepo
}

func newPgTx(tx pgx.Tx) *pgTx {
	return &pgTx{
		orders: NewOrderRepo(tx),
		ledger: NewLedgerRepo(tx),
		audit:  NewAuditRepo(tx),
	}
}

func (t *pgTx) GetOrderForUpdate(ctx context.Context, key models.OrderKey) (*models.DepositOrder, error) {
	return t.orders.GetForUpdate(ctx, key)
}

func (t *pgTx) InsertOrder(ctx context.Context, o *models.DepositOrder) error {
	return t.orders.Insert(ctx, o)
}

func (t *pgTx) IsEscrowAccount(ctx context.Context, account string) (bool, error) {
	return t.orders.EscrowAccountExists(ctx, account)
}

func (t *pgTx) UpdateOrder(ctx context.Context, o *models.DepositOrder) error {
	return t.orders.Update(ctx, o)
}

func (t *pgTx) Ledger() ledger.Ledger {
	return t.ledger
}

func (t *pgTx) LogAudit(ctx context.Context, entry models.AuditLog) error {
	return t.audit.Log(ctx, entry)
}
