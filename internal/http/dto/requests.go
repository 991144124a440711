package dto

import "github.com/keeper-escrow/backend/internal/ton"

// u64 values (order ids, amounts) are decimal strings so JavaScript clients keep full precision.

type CreateOrderRequest struct {
	OrderID        string `json:"order_id"`
	Amount         string `json:"amount"`
	Asset          string `json:"asset"`
	Keeper         string `json:"keeper"`
	Depositor      string `json:"depositor,omitempty"` // must match the caller when set
	TimeoutSeconds int64  `json:"timeout_seconds"`
}

type ExecuteOrderRequest struct {
	Amount string `json:"amount"`
}

type TonLoginRequest struct {
	Address   string    `json:"address"`    // raw "0:..." or friendly "EQ..."/"UQ..."
	Network   string    `json:"network"`    // mainnet/testnet
	PublicKey string    `json:"public_key,omitempty"` // hex
	StateInit string    `json:"state_init"`           // base64 BOC, account.walletStateInit in TON Connect
	Proof     ton.Proof `json:"proof"`
}

type CreditRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}
