// Package memstore keeps orders, ledger balances and the audit log in process memory.
// It gives the same all-or-nothing unit of work as the Postgres store and backs tests
// and STORE_DRIVER=memory.
package memstore

import (
	"context"
	"math/bits"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/keeper-escrow/backend/internal/ledger"
	"github.com/keeper-escrow/backend/internal/models"
	"github.com/keeper-escrow/backend/internal/services"
)

type balanceKey struct {
	account string
	asset   string
}

type Store struct {
	mu       sync.Mutex
	orders   map[models.OrderKey]models.DepositOrder
	escrows  map[string]models.OrderKey
	balances map[balanceKey]uint64
	audit    []models.AuditLog
}

func New() *Store {
	return &Store{
		orders:   make(map[models.OrderKey]models.DepositOrder),
		escrows:  make(map[string]models.OrderKey),
		balances: make(map[balanceKey]uint64),
	}
}

var _ services.Store = (*Store)(nil)

// WithinTx serializes units of work. Writes are staged and applied only if fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx services.OrderTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		store:    s,
		orders:   make(map[models.OrderKey]models.DepositOrder),
		balances: make(map[balanceKey]uint64),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	for k, o := range tx.orders {
		o.UpdatedAt = time.Now()
		s.orders[k] = o
		s.escrows[o.EscrowAccount] = k
	}
	for k, v := range tx.balances {
		s.balances[k] = v
	}
	s.audit = append(s.audit, tx.audit...)
	return nil
}

func (s *Store) GetOrder(_ context.Context, key models.OrderKey) (*models.DepositOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[key]
	if !ok {
		return nil, services.ErrOrderNotFound
	}
	return &o, nil
}

func (s *Store) ListOrders(_ context.Context, f services.OrderFilter) ([]models.DepositOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.DepositOrder
	for _, o := range s.orders {
		if f.Party != nil && o.Depositor != *f.Party && o.Keeper != *f.Party {
			continue
		}
		if f.Depositor != nil && o.Depositor != *f.Depositor {
			continue
		}
		if f.Keeper != nil && o.Keeper != *f.Keeper {
			continue
		}
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		if f.Asset != nil && o.Asset != *f.Asset {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].Key().String() < out[j].Key().String()
	})

	return page(out, f.Limit, f.Offset), nil
}

func (s *Store) ListExpired(_ context.Context, now int64, limit int) ([]models.DepositOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.DepositOrder
	for _, o := range s.orders {
		if o.Status.IsTerminal() || now <= o.ExpiresAt() {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt() < out[j].ExpiresAt() })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetAuditLog(_ context.Context, entityType, entityID string, limit, offset int) ([]models.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	var out []models.AuditLog
	for i := len(s.audit) - 1; i >= 0; i-- {
		l := s.audit[i]
		if l.EntityType == entityType && l.EntityID == entityID {
			out = append(out, l)
		}
	}
	return page(out, limit, offset), nil
}

func (s *Store) Balance(_ context.Context, account, asset string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[balanceKey{account, asset}], nil
}

func (s *Store) Credit(_ context.Context, account, asset string, amount uint64) error {
	if account == "" || asset == "" {
		return ledger.ErrMissingAccountInfo
	}
	if amount == 0 {
		return ledger.ErrZeroAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := balanceKey{account, asset}
	sum, carry := bits.Add64(s.balances[k], amount, 0)
	if carry != 0 {
		return ledger.ErrBalanceOverflow
	}
	s.balances[k] = sum
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

type memTx struct {
	store    *Store
	orders   map[models.OrderKey]models.DepositOrder
	balances map[balanceKey]uint64
	audit    []models.AuditLog
}

func (t *memTx) lookup(key models.OrderKey) (models.DepositOrder, bool) {
	if o, ok := t.orders[key]; ok {
		return o, true
	}
	o, ok := t.store.orders[key]
	return o, ok
}

func (t *memTx) GetOrderForUpdate(_ context.Context, key models.OrderKey) (*models.DepositOrder, error) {
	o, ok := t.lookup(key)
	if !ok {
		return nil, services.ErrOrderNotFound
	}
	return &o, nil
}

func (t *memTx) InsertOrder(_ context.Context, o *models.DepositOrder) error {
	if _, ok := t.lookup(o.Key()); ok {
		return services.ErrDuplicateOrder
	}
	if _, ok := t.store.escrows[o.EscrowAccount]; ok {
		return services.ErrDuplicateOrder
	}
	t.orders[o.Key()] = *o
	return nil
}

func (t *memTx) IsEscrowAccount(_ context.Context, account string) (bool, error) {
	if _, ok := t.store.escrows[account]; ok {
		return true, nil
	}
	for _, o := range t.orders {
		if o.EscrowAccount == account {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) UpdateOrder(_ context.Context, o *models.DepositOrder) error {
	if _, ok := t.lookup(o.Key()); !ok {
		return services.ErrOrderNotFound
	}
	t.orders[o.Key()] = *o
	return nil
}

func (t *memTx) LogAudit(_ context.Context, entry models.AuditLog) error {
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	t.audit = append(t.audit, entry)
	return nil
}

func (t *memTx) Ledger() ledger.Ledger {
	return memLedger{tx: t}
}

type memLedger struct {
	tx *memTx
}

func (l memLedger) balance(k balanceKey) uint64 {
	if v, ok := l.tx.balances[k]; ok {
		return v
	}
	return l.tx.store.balances[k]
}

func (l memLedger) Balance(_ context.Context, account, asset string) (uint64, error) {
	return l.balance(balanceKey{account, asset}), nil
}

func (l memLedger) Transfer(_ context.Context, t ledger.Transfer, auth ledger.Authority) error {
	if err := ledger.Validate(t, auth); err != nil {
		return err
	}

	from := balanceKey{t.From, t.Asset}
	to := balanceKey{t.To, t.Asset}

	src := l.balance(from)
	if src < t.Amount {
		return ledger.ErrInsufficientFunds
	}
	dst, carry := bits.Add64(l.balance(to), t.Amount, 0)
	if carry != 0 {
		return ledger.ErrBalanceOverflow
	}

	l.tx.balances[from] = src - t.Amount
	l.tx.balances[to] = dst
	return nil
}
