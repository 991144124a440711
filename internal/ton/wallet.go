package ton

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton/wallet"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// supportedWallets are the wallet contracts accepted for login, with the bit offset
// of the public key inside each contract's data cell.
var supportedWallets = []struct {
	version wallet.VersionConfig
	keyAt   uint
}{
	{wallet.V3R1, 64},
	{wallet.V3R2, 64},
	{wallet.V4R1, 64},
	{wallet.V4R2, 64},
	{wallet.ConfigV5R1Final{NetworkGlobalID: wallet.MainnetGlobalID}, 65},
}

// walletKeyOffsets maps a wallet code hash to its public key offset.
var walletKeyOffsets = sync.OnceValue(func() map[string]uint {
	offsets := make(map[string]uint, len(supportedWallets))
	zeroKey := make(ed25519.PublicKey, ed25519.PublicKeySize)
	for _, w := range supportedWallets {
		si, err := wallet.GetStateInit(zeroKey, w.version, wallet.DefaultSubwallet)
		if err != nil || si.Code == nil {
			continue
		}
		offsets[string(si.Code.Hash())] = w.keyAt
	}
	return offsets
})

// WalletPublicKey returns the public key held by the wallet at addr. stateInit is the
// wallet's base64 StateInit BOC; it must hash to the address, so a key taken from it
// belongs to that address and to no other.
func WalletPublicKey(addr *address.Address, stateInit string) (ed25519.PublicKey, error) {
	if stateInit == "" {
		return nil, fmt.Errorf("state_init is required")
	}
	boc, err := base64.StdEncoding.DecodeString(stateInit)
	if err != nil {
		return nil, fmt.Errorf("invalid state_init base64: %w", err)
	}
	root, err := cell.FromBOC(boc)
	if err != nil {
		return nil, fmt.Errorf("invalid state_init boc: %w", err)
	}
	if !bytes.Equal(root.Hash(), addr.Data()) {
		return nil, fmt.Errorf("state_init does not match address %s", addr.StringRaw())
	}

	var si tlb.StateInit
	if err := tlb.LoadFromCell(&si, root.BeginParse()); err != nil {
		return nil, fmt.Errorf("parse state_init: %w", err)
	}
	if si.Code == nil || si.Data == nil {
		return nil, fmt.Errorf("state_init has no code or data")
	}

	keyAt, ok := walletKeyOffsets()[string(si.Code.Hash())]
	if !ok {
		return nil, fmt.Errorf("unsupported wallet contract")
	}

	data := si.Data.BeginParse()
	if _, err := data.LoadSlice(keyAt); err != nil {
		return nil, fmt.Errorf("wallet data too short: %w", err)
	}
	key, err := data.LoadSlice(ed25519.PublicKeySize * 8)
	if err != nil {
		return nil, fmt.Errorf("wallet data has no public key: %w", err)
	}
	return ed25519.PublicKey(key), nil
}
