package services

import "errors"

// Order lifecycle error kinds. Ledger errors are returned as the ledger produced them.
var (
	ErrUnauthorized          = errors.New("caller is not allowed to perform this operation on the order")
	ErrInvalidOrderStatus    = errors.New("operation is not allowed in the current order status")
	ErrOrderTimeout          = errors.New("order has expired")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidTimeout        = errors.New("timeout is outside the admissible range")
	ErrDuplicateOrder        = errors.New("order already exists for this id and asset")
	ErrAuthenticationFailure = errors.New("authentication failed")
	ErrOrderNotFound         = errors.New("order not found")
	ErrInvalidRequest        = errors.New("invalid request")
)
