package memstore

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/keeper-escrow/backend/internal/ledger"
	"github.com/keeper-escrow/backend/internal/models"
	"github.com/keeper-escrow/backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrder(id uint64, asset string) *models.DepositOrder {
	return &models.DepositOrder{
		OrderID:        id,
		Asset:          asset,
		Depositor:      "D",
		Keeper:         "K",
		Amount:         100,
		Status:         models.OrderStatusInitialized,
		TimeoutSeconds: 300,
		CreatedAt:      1000,
		EscrowAccount:  ledger.EscrowAccount(id, asset),
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Credit(ctx, "D", "USDT", 100))

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, tx services.OrderTx) error {
		o := testOrder(1, "USDT")
		require.NoError(t, tx.InsertOrder(ctx, o))
		require.NoError(t, tx.Ledger().Transfer(ctx, ledger.Transfer{
			From: "D", To: o.EscrowAccount, Asset: "USDT", Amount: 100,
		}, ledger.Holder("D")))
		require.NoError(t, tx.LogAudit(ctx, models.AuditLog{EntityType: "deposit_order", EntityID: o.Key().String()}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetOrder(ctx, models.OrderKey{OrderID: 1, Asset: "USDT"})
	assert.ErrorIs(t, err, services.ErrOrderNotFound)

	bal, _ := s.Balance(ctx, "D", "USDT")
	assert.Equal(t, uint64(100), bal)

	logs, _ := s.GetAuditLog(ctx, "deposit_order", "USDT/1", 10, 0)
	assert.Empty(t, logs)
}

func TestInsertOrderRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := New()

	insert := func(o *models.DepositOrder) error {
		return s.WithinTx(ctx, func(ctx context.Context, tx services.OrderTx) error {
			return tx.InsertOrder(ctx, o)
		})
	}

	require.NoError(t, insert(testOrder(1, "USDT")))
	assert.ErrorIs(t, insert(testOrder(1, "USDT")), services.ErrDuplicateOrder)
	assert.NoError(t, insert(testOrder(1, "TON")), "same id under another asset is a different order")
}

func TestGetOrderReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx services.OrderTx) error {
		return tx.InsertOrder(ctx, testOrder(1, "USDT"))
	}))

	o, err := s.GetOrder(ctx, models.OrderKey{OrderID: 1, Asset: "USDT"})
	require.NoError(t, err)
	o.Status = models.OrderStatusCancelled

	again, _ := s.GetOrder(ctx, models.OrderKey{OrderID: 1, Asset: "USDT"})
	assert.Equal(t, models.OrderStatusInitialized, again.Status)
}

func TestLedgerTransfer(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Credit(ctx, "D", "USDT", 50))

	transfer := func(tr ledger.Transfer, auth ledger.Authority) error {
		return s.WithinTx(ctx, func(ctx context.Context, tx services.OrderTx) error {
			return tx.Ledger().Transfer(ctx, tr, auth)
		})
	}

	assert.ErrorIs(t, transfer(ledger.Transfer{From: "D", To: "E", Asset: "USDT", Amount: 51}, ledger.Holder("D")), ledger.ErrInsufficientFunds)
	assert.ErrorIs(t, transfer(ledger.Transfer{From: "D", To: "E", Asset: "USDT", Amount: 10}, ledger.Holder("E")), ledger.ErrUnauthorizedDebit)
	require.NoError(t, transfer(ledger.Transfer{From: "D", To: "E", Asset: "USDT", Amount: 20}, ledger.Holder("D")))

	d, _ := s.Balance(ctx, "D", "USDT")
	e, _ := s.Balance(ctx, "E", "USDT")
	assert.Equal(t, uint64(30), d)
	assert.Equal(t, uint64(20), e)
}

func TestCreditOverflow(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Credit(ctx, "D", "USDT", math.MaxUint64))
	assert.ErrorIs(t, s.Credit(ctx, "D", "USDT", 1), ledger.ErrBalanceOverflow)
}

func TestListExpired(t *testing.T) {
	ctx := context.Background()
	s := New()

	live := testOrder(1, "USDT")
	expired := testOrder(2, "USDT")
	expired.CreatedAt = 0
	done := testOrder(3, "USDT")
	done.CreatedAt = 0
	done.Status = models.OrderStatusCompleted

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx services.OrderTx) error {
		for _, o := range []*models.DepositOrder{live, expired, done} {
			if err := tx.InsertOrder(ctx, o); err != nil {
				return err
			}
		}
		return nil
	}))

	out, err := s.ListExpired(ctx, 1200, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, uint64(2), out[0].OrderID)
}

func TestListOrdersFilters(t *testing.T) {
	ctx := context.Background()
	s := New()

	a := testOrder(1, "USDT")
	b := testOrder(2, "TON")
	b.Keeper = "K2"
	b.CreatedAt = 2000
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx services.OrderTx) error {
		if err := tx.InsertOrder(ctx, a); err != nil {
			return err
		}
		return tx.InsertOrder(ctx, b)
	}))

	all, _ := s.ListOrders(ctx, services.OrderFilter{})
	require.Len(t, all, 2)
	assert.Equal(t, uint64(2), all[0].OrderID, "newest first")

	keeper := "K2"
	byKeeper, _ := s.ListOrders(ctx, services.OrderFilter{Keeper: &keeper})
	require.Len(t, byKeeper, 1)
	assert.Equal(t, "TON", byKeeper[0].Asset)

	byParty, _ := s.ListOrders(ctx, services.OrderFilter{Party: &keeper})
	require.Len(t, byParty, 1)
	depositor := a.Depositor
	byParty, _ = s.ListOrders(ctx, services.OrderFilter{Party: &depositor})
	require.Len(t, byParty, 2)

	paged, _ := s.ListOrders(ctx, services.OrderFilter{Limit: 1, Offset: 1})
	require.Len(t, paged, 1)
	assert.Equal(t, uint64(1), paged[0].OrderID)
}
