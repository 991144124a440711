package ton

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/xssnick/tonutils-go/address"
)

const (
	// TonProofPrefix is the fixed prefix of a TON Connect ton_proof message.
	// https://docs.ton.org/develop/dapps/ton-connect/sign#checking-ton_proof-on-server-side
	TonProofPrefix = "ton-proof-item-v2/"

	TonConnectPrefix = "ton-connect"

	DefaultMaxProofAge = 5 * time.Minute
	maxClockSkew       = time.Minute
)

type Proof struct {
	Timestamp int64       `json:"timestamp"`
	Domain    ProofDomain `json:"domain"`
	Payload   string      `json:"payload"`   // server issued nonce
	Signature string      `json:"signature"` // base64 (hex accepted)
}

type ProofDomain struct {
	LengthBytes int    `json:"lengthBytes"`
	Value       string `json:"value"`
}

// ProofVerifier checks ton_proof signatures produced by TON Connect wallets.
type ProofVerifier struct {
	AllowedDomains []string // empty allows any domain (dev mode)
	MaxAge         time.Duration
	Now            func() time.Time
}

func (v ProofVerifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Verify checks proof against the wallet at addr. The public key is read from the
// wallet's stateInit, never trusted from the client; claimedKeyHex, when set, must match it.
//
//	message = "ton-proof-item-v2/" ++ workchain(4 LE) ++ hash(32) ++ domain_len(4 LE) ++ domain ++ timestamp(8 LE) ++ payload
//	signed  = sha256(0xffff ++ "ton-connect" ++ sha256(message))
func (v ProofVerifier) Verify(addr *address.Address, stateInit, claimedKeyHex string, proof Proof) error {
	maxAge := v.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxProofAge
	}

	now := v.now()
	proofTime := time.Unix(proof.Timestamp, 0)
	if now.Sub(proofTime) > maxAge {
		return fmt.Errorf("proof expired: %s old", now.Sub(proofTime).Round(time.Second))
	}
	if proofTime.After(now.Add(maxClockSkew)) {
		return fmt.Errorf("proof timestamp is in the future")
	}

	if !isDomainAllowed(proof.Domain.Value, v.AllowedDomains) {
		return fmt.Errorf("domain %q not in allowed list", proof.Domain.Value)
	}
	if proof.Domain.LengthBytes != len(proof.Domain.Value) {
		return fmt.Errorf("domain length mismatch")
	}

	pubKey, err := WalletPublicKey(addr, stateInit)
	if err != nil {
		return err
	}
	if claimedKeyHex != "" {
		claimed, err := hex.DecodeString(claimedKeyHex)
		if err != nil {
			return fmt.Errorf("invalid public key hex: %w", err)
		}
		if !bytes.Equal(claimed, pubKey) {
			return fmt.Errorf("public key does not belong to wallet")
		}
	}

	sig, err := decodeSignature(proof.Signature)
	if err != nil {
		return err
	}

	finalHash := SigningHash(addr, proof)
	if !ed25519.Verify(pubKey, finalHash[:], sig) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

// SigningHash is the digest a wallet signs for proof.
func SigningHash(addr *address.Address, proof Proof) [32]byte {
	message := []byte(TonProofPrefix)
	message = binary.LittleEndian.AppendUint32(message, uint32(addr.Workchain()))
	message = append(message, addr.Data()...)
	message = binary.LittleEndian.AppendUint32(message, uint32(proof.Domain.LengthBytes))
	message = append(message, proof.Domain.Value...)
	message = binary.LittleEndian.AppendUint64(message, uint64(proof.Timestamp))
	message = append(message, proof.Payload...)

	msgHash := sha256.Sum256(message)

	signatureMessage := []byte{0xff, 0xff}
	signatureMessage = append(signatureMessage, TonConnectPrefix...)
	signatureMessage = append(signatureMessage, msgHash[:]...)

	return sha256.Sum256(signatureMessage)
}

func decodeSignature(s string) ([]byte, error) {
	sig, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(sig) != ed25519.SignatureSize {
		sig, err = hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("signature is neither base64 nor hex")
		}
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, fmt.Errorf("invalid signature size: %d", len(sig))
	}
	return sig, nil
}

func isDomainAllowed(domain string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, d := range allowed {
		if d == domain {
			return true
		}
	}
	return false
}
