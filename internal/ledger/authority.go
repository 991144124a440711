package ledger

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/xssnick/tonutils-go/address"
)

const escrowSeed = "deposit_order"

// Authority is what a ledger checks before debiting an account.
type Authority interface {
	CanDebit(account, asset string) bool
}

type holderAuthority struct {
	identity string
}

// Holder is the authority of an identity over its own account.
// The caller must already have authenticated the identity.
func Holder(identity string) Authority {
	return holderAuthority{identity: identity}
}

func (h holderAuthority) CanDebit(account, _ string) bool {
	return h.identity != "" && account == h.identity
}

// EscrowAuthority is the signing capability of an escrow account. It is derived
// from the order id and asset and is never held by a person.
type EscrowAuthority struct {
	account string
	asset   string
}

func DeriveEscrowAuthority(orderID uint64, asset string) EscrowAuthority {
	return EscrowAuthority{account: EscrowAccount(orderID, asset), asset: asset}
}

func (e EscrowAuthority) Account() string {
	return e.account
}

func (e EscrowAuthority) CanDebit(account, asset string) bool {
	return e.account != "" && account == e.account && asset == e.asset
}

// EscrowAccount derives the custody account of an order:
// sha256("deposit_order" || order_id as 8 bytes LE || asset), as a raw workchain-0 address.
func EscrowAccount(orderID uint64, asset string) string {
	var id [8]byte
	binary.LittleEndian.PutUint64(id[:], orderID)

	h := sha256.New()
	h.Write([]byte(escrowSeed))
	h.Write(id[:])
	h.Write([]byte(asset))

	return address.NewAddress(0, 0, h.Sum(nil)).StringRaw()
}
