package services

import (
	"context"
	"fmt"
	"math/bits"
	"strconv"
	"time"

	"github.com/keeper-escrow/backend/internal/events"
	"github.com/keeper-escrow/backend/internal/ledger"
	"github.com/keeper-escrow/backend/internal/models"
	"github.com/keeper-escrow/backend/internal/rbac"
	"go.uber.org/zap"
)

// Audit actions
const (
	ActionOrderCreated   = "order_created"
	ActionOrderReady     = "order_ready"
	ActionOrderExecuted  = "order_executed"
	ActionOrderCancelled = "order_cancelled"
)

const entityTypeOrder = "deposit_order"

// OrderService runs the deposit order lifecycle. Every operation loads the order,
// checks its guards, moves funds and writes the record in one unit of work.
type OrderService struct {
	store     Store
	publisher events.Publisher
	clock     Clock
	policy    TimeoutPolicy
	log       *zap.Logger
}

func NewOrderService(store Store, publisher events.Publisher, clock Clock, policy TimeoutPolicy, log *zap.Logger) *OrderService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &OrderService{
		store:     store,
		publisher: publisher,
		clock:     clock,
		policy:    policy,
		log:       log,
	}
}

type CreateOrderInput struct {
	OrderID        uint64
	Amount         uint64
	Asset          string
	Keeper         string
	Depositor      string
	TimeoutSeconds int64
}

// CreateOrder locks Amount of Asset from the depositor into the order's escrow account.
// actor is the authenticated caller and must be the depositor.
func (s *OrderService) CreateOrder(ctx context.Context, actor string, in CreateOrderInput) (*models.DepositOrder, error) {
	if in.Depositor == "" {
		in.Depositor = actor
	}
	if actor == "" || actor != in.Depositor {
		return nil, ErrAuthenticationFailure
	}
	if !s.policy.Admits(in.TimeoutSeconds) {
		return nil, ErrInvalidTimeout
	}
	if in.Amount == 0 {
		return nil, ErrInvalidAmount
	}
	if in.Asset == "" {
		return nil, fmt.Errorf("%w: asset is required", ErrInvalidRequest)
	}
	if in.Keeper == "" {
		return nil, fmt.Errorf("%w: keeper is required", ErrInvalidRequest)
	}

	var order *models.DepositOrder
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx OrderTx) error {
		order = &models.DepositOrder{
			OrderID:         in.OrderID,
			Depositor:       in.Depositor,
			Amount:          in.Amount,
			Asset:           in.Asset,
			Keeper:          in.Keeper,
			Status:          models.OrderStatusInitialized,
			CompletedAmount: 0,
			TimeoutSeconds:  in.TimeoutSeconds,
			CreatedAt:       s.clock.Now().Unix(),
			EscrowAccount:   ledger.EscrowAccount(in.OrderID, in.Asset),
		}
		if err := rejectEscrowParties(ctx, tx, order); err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		deposit := ledger.Transfer{
			From:   order.Depositor,
			To:     order.EscrowAccount,
			Asset:  order.Asset,
			Amount: order.Amount,
		}
		if err := tx.Ledger().Transfer(ctx, deposit, ledger.Holder(actor)); err != nil {
			return err
		}

		return tx.LogAudit(ctx, orderAudit(actor, ActionOrderCreated, order, map[string]any{
			"amount":         strconv.FormatUint(order.Amount, 10),
			"keeper":         order.Keeper,
			"timeout":        order.TimeoutSeconds,
			"escrow_account": order.EscrowAccount,
		}))
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order created",
		zap.Uint64("order_id", order.OrderID),
		zap.String("asset", order.Asset),
		zap.Uint64("amount", order.Amount),
		zap.String("escrow_account", order.EscrowAccount),
	)
	s.publish(ctx, events.EventOrderCreated, order, nil)

	return order, nil
}

// MarkReady lets the keeper move an initialized order to ready_to_execute before it expires.
// An expired order stays initialized; it still has to be cancelled to release funds.
func (s *OrderService) MarkReady(ctx context.Context, key models.OrderKey, actor string) (*models.DepositOrder, error) {
	return s.mutate(ctx, key, actor, ActionOrderReady, func(now time.Time, o *models.DepositOrder, _ OrderTx) (map[string]any, error) {
		if !rbac.Can(o, actor, rbac.PermMarkReady) {
			return nil, ErrUnauthorized
		}
		if o.Status != models.OrderStatusInitialized {
			return nil, ErrInvalidOrderStatus
		}
		if o.IsExpired(now) {
			return nil, ErrOrderTimeout
		}

		o.Status = models.OrderStatusReadyToExecute
		return nil, nil
	})
}

// PartiallyExecute allocates amount of the escrowed value to the keeper's side.
// It updates bookkeeping only; payout happens outside this service.
func (s *OrderService) PartiallyExecute(ctx context.Context, key models.OrderKey, actor string, amount uint64) (*models.DepositOrder, error) {
	return s.mutate(ctx, key, actor, ActionOrderExecuted, func(now time.Time, o *models.DepositOrder, _ OrderTx) (map[string]any, error) {
		if !rbac.Can(o, actor, rbac.PermExecute) {
			return nil, ErrUnauthorized
		}
		if o.Status != models.OrderStatusReadyToExecute {
			return nil, ErrInvalidOrderStatus
		}
		if o.IsExpired(now) {
			return nil, ErrOrderTimeout
		}
		if amount == 0 {
			return nil, ErrInvalidAmount
		}

		completed, carry := bits.Add64(o.CompletedAmount, amount, 0)
		if carry != 0 || completed > o.Amount {
			return nil, ErrInvalidAmount
		}

		o.CompletedAmount = completed
		if completed == o.Amount {
			o.Status = models.OrderStatusCompleted
		}
		return map[string]any{
			"amount":           strconv.FormatUint(amount, 10),
			"completed_amount": strconv.FormatUint(completed, 10),
		}, nil
	})
}

// CancelOrder refunds what is left in escrow to the depositor. It is allowed while the
// order is initialized, or at any non-terminal status once the order has expired.
func (s *OrderService) CancelOrder(ctx context.Context, key models.OrderKey, actor string) (*models.DepositOrder, error) {
	return s.mutate(ctx, key, actor, ActionOrderCancelled, func(now time.Time, o *models.DepositOrder, tx OrderTx) (map[string]any, error) {
		if !rbac.Can(o, actor, rbac.PermCancel) {
			return nil, ErrUnauthorized
		}
		if o.Status != models.OrderStatusInitialized && !o.IsExpired(now) {
			return nil, ErrInvalidOrderStatus
		}

		refund, ok := o.Remaining()
		if !ok {
			return nil, ErrInvalidAmount
		}

		if refund > 0 {
			authority := ledger.DeriveEscrowAuthority(o.OrderID, o.Asset)
			t := ledger.Transfer{
				From:   authority.Account(),
				To:     o.Depositor,
				Asset:  o.Asset,
				Amount: refund,
			}
			if err := tx.Ledger().Transfer(ctx, t, authority); err != nil {
				return nil, err
			}
		}

		o.Status = models.OrderStatusCancelled
		return map[string]any{
			"refund":  strconv.FormatUint(refund, 10),
			"expired": o.IsExpired(now),
		}, nil
	})
}

func (s *OrderService) GetOrder(ctx context.Context, key models.OrderKey) (*models.DepositOrder, error) {
	return s.store.GetOrder(ctx, key)
}

func (s *OrderService) ListOrders(ctx context.Context, f OrderFilter) ([]models.DepositOrder, error) {
	return s.store.ListOrders(ctx, f)
}

// GetOrderFor returns the order if actor is one of its parties.
func (s *OrderService) GetOrderFor(ctx context.Context, key models.OrderKey, actor string) (*models.DepositOrder, error) {
	o, err := s.store.GetOrder(ctx, key)
	if err != nil {
		return nil, err
	}
	if !rbac.Can(o, actor, rbac.PermView) {
		return nil, ErrUnauthorized
	}
	return o, nil
}

// GetOrderEvents returns the audit history of an order, newest first.
func (s *OrderService) GetOrderEvents(ctx context.Context, key models.OrderKey, actor string) ([]models.AuditLog, error) {
	if _, err := s.GetOrderFor(ctx, key, actor); err != nil {
		return nil, err
	}
	return s.store.GetAuditLog(ctx, entityTypeOrder, key.String(), 100, 0)
}

// rejectEscrowParties keeps escrow accounts out of the depositor and keeper roles,
// so escrowed value only ever leaves through the order's own escrow authority.
func rejectEscrowParties(ctx context.Context, tx OrderTx, o *models.DepositOrder) error {
	for _, party := range []string{o.Depositor, o.Keeper} {
		escrow := party == o.EscrowAccount
		if !escrow {
			var err error
			if escrow, err = tx.IsEscrowAccount(ctx, party); err != nil {
				return err
			}
		}
		if escrow {
			return fmt.Errorf("%w: %s is an escrow account", ErrInvalidRequest, party)
		}
	}
	return nil
}

type mutation func(now time.Time, o *models.DepositOrder, tx OrderTx) (map[string]any, error)

// mutate runs fn against the locked order. Terminal orders are rejected before anything
// else so the outcome does not depend on caller or time.
func (s *OrderService) mutate(ctx context.Context, key models.OrderKey, actor, action string, fn mutation) (*models.DepositOrder, error) {
	var (
		order     *models.DepositOrder
		oldStatus models.OrderStatus
		meta      map[string]any
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx OrderTx) error {
		o, err := tx.GetOrderForUpdate(ctx, key)
		if err != nil {
			return err
		}
		if o.Status.IsTerminal() {
			return ErrInvalidOrderStatus
		}

		now := s.clock.Now()
		oldStatus = o.Status
		before := o.CompletedAmount

		meta, err = fn(now, o, tx)
		if err != nil {
			return err
		}
		if !models.IsValidTransition(oldStatus, o.Status) || o.CompletedAmount < before || o.CompletedAmount > o.Amount {
			return fmt.Errorf("order %s: illegal transition %s -> %s", key, oldStatus, o.Status)
		}

		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}

		if meta == nil {
			meta = map[string]any{}
		}
		meta["old_status"] = oldStatus
		meta["new_status"] = o.Status
		order = o
		return tx.LogAudit(ctx, orderAudit(actor, action, o, meta))
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order transition",
		zap.Uint64("order_id", order.OrderID),
		zap.String("asset", order.Asset),
		zap.String("action", action),
		zap.String("old_status", string(oldStatus)),
		zap.String("new_status", string(order.Status)),
	)

	eventType := events.EventOrderStatusChanged
	switch action {
	case ActionOrderExecuted:
		eventType = events.EventOrderExecuted
	case ActionOrderCancelled:
		eventType = events.EventOrderCancelled
	}
	s.publish(ctx, eventType, order, meta)

	return order, nil
}

// publish is best effort: the order is already committed.
func (s *OrderService) publish(ctx context.Context, eventType string, o *models.DepositOrder, extra map[string]any) {
	payload := orderPayload(o)
	for k, v := range extra {
		payload[k] = v
	}
	if err := s.publisher.Publish(ctx, events.StreamOrders, events.Event{Type: eventType, Payload: payload}); err != nil {
		s.log.Warn("failed to publish order event",
			zap.String("type", eventType),
			zap.String("order", o.Key().String()),
			zap.Error(err),
		)
	}
}

func orderPayload(o *models.DepositOrder) map[string]any {
	return map[string]any{
		"order_id":         strconv.FormatUint(o.OrderID, 10),
		"asset":            o.Asset,
		"depositor":        o.Depositor,
		"keeper":           o.Keeper,
		"status":           string(o.Status),
		"amount":           strconv.FormatUint(o.Amount, 10),
		"completed_amount": strconv.FormatUint(o.CompletedAmount, 10),
		"escrow_account":   o.EscrowAccount,
	}
}

func orderAudit(actor, action string, o *models.DepositOrder, meta map[string]any) models.AuditLog {
	return models.AuditLog{
		Actor:      actor,
		ActorType:  models.ActorTypeUser,
		Action:     action,
		EntityType: entityTypeOrder,
		EntityID:   o.Key().String(),
		Meta:       meta,
	}
}
