package models

import (
	"math"
	"strconv"
	"time"
)

type OrderStatus string

// Order statuses
const (
	OrderStatusInitialized    OrderStatus = "initialized"
	OrderStatusReadyToExecute OrderStatus = "ready_to_execute"
	OrderStatusCompleted      OrderStatus = "completed"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

var AllOrderStatuses = []OrderStatus{
	OrderStatusInitialized,
	OrderStatusReadyToExecute,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// Valid state transitions: from -> []to.
// ready_to_execute -> ready_to_execute is a partial execution that leaves a remainder.
var ValidOrderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusInitialized:    {OrderStatusReadyToExecute, OrderStatusCancelled},
	OrderStatusReadyToExecute: {OrderStatusReadyToExecute, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted:      {},
	OrderStatusCancelled:      {},
}

func IsValidTransition(from, to OrderStatus) bool {
	allowed, ok := ValidOrderTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	for _, st := range AllOrderStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// OrderKey identifies a deposit order. The same order id may be reused across assets.
type OrderKey struct {
	OrderID uint64 `json:"order_id,string"`
	Asset   string `json:"asset"`
}

func (k OrderKey) String() string {
	return k.Asset + "/" + strconv.FormatUint(k.OrderID, 10)
}

// DepositOrder is value locked by a depositor and released to a keeper in increments.
type DepositOrder struct {
	OrderID         uint64      `json:"order_id,string"`
	Depositor       string      `json:"depositor"`
	Amount          uint64      `json:"amount,string"`
	Asset           string      `json:"asset"`
	Keeper          string      `json:"keeper"`
	Status          OrderStatus `json:"status"`
	CompletedAmount uint64      `json:"completed_amount,string"`
	TimeoutSeconds  int64       `json:"timeout_seconds"`
	CreatedAt       int64       `json:"created_at"` // unix seconds
	EscrowAccount   string      `json:"escrow_account"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func (o *DepositOrder) Key() OrderKey {
	return OrderKey{OrderID: o.OrderID, Asset: o.Asset}
}

// ExpiresAt is the last second at which the order is still live.
// A sum that would overflow int64 never expires.
func (o *DepositOrder) ExpiresAt() int64 {
	if o.TimeoutSeconds > 0 && o.CreatedAt > math.MaxInt64-o.TimeoutSeconds {
		return math.MaxInt64
	}
	return o.CreatedAt + o.TimeoutSeconds
}

func (o *DepositOrder) IsExpired(now time.Time) bool {
	return now.Unix() > o.ExpiresAt()
}

// Remaining is the value still held in escrow.
func (o *DepositOrder) Remaining() (uint64, bool) {
	if o.CompletedAmount > o.Amount {
		return 0, false
	}
	return o.Amount - o.CompletedAmount, true
}

func (o *DepositOrder) IsDepositor(identity string) bool {
	return identity != "" && identity == o.Depositor
}

func (o *DepositOrder) IsKeeper(identity string) bool {
	return identity != "" && identity == o.Keeper
}
