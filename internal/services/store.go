package services

import (
	"context"

	"github.com/keeper-escrow/backend/internal/ledger"
	"github.com/keeper-escrow/backend/internal/models"
)

type OrderFilter struct {
	Party     *string // depositor or keeper
	Depositor *string
	Keeper    *string
	Status    *models.OrderStatus
	Asset     *string
	Limit     int
	Offset    int
}

// OrderTx is the view of the store inside one atomic unit of work.
type OrderTx interface {
	// GetOrderForUpdate returns ErrOrderNotFound when the key is unknown and holds
	// the record until the unit of work ends.
	GetOrderForUpdate(ctx context.Context, key models.OrderKey) (*models.DepositOrder, error)
	// InsertOrder returns ErrDuplicateOrder when the key or escrow account is taken.
	InsertOrder(ctx context.Context, o *models.DepositOrder) error
	UpdateOrder(ctx context.Context, o *models.DepositOrder) error
	// IsEscrowAccount reports whether account is the escrow account of a stored order.
	IsEscrowAccount(ctx context.Context, account string) (bool, error)
	Ledger() ledger.Ledger
	LogAudit(ctx context.Context, entry models.AuditLog) error
}

// Store persists deposit orders. WithinTx commits only when fn returns nil.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx OrderTx) error) error

	GetOrder(ctx context.Context, key models.OrderKey) (*models.DepositOrder, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]models.DepositOrder, error)
	// ListExpired returns non-terminal orders whose deadline is before now (unix seconds).
	ListExpired(ctx context.Context, now int64, limit int) ([]models.DepositOrder, error)
	GetAuditLog(ctx context.Context, entityType, entityID string, limit, offset int) ([]models.AuditLog, error)

	Balance(ctx context.Context, account, asset string) (uint64, error)
	// Credit mints value into an account. Only used to bootstrap the in-process ledger.
	Credit(ctx context.Context, account, asset string, amount uint64) error
}
