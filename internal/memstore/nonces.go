package memstore

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/keeper-escrow/backend/internal/services"
)

// NonceStore holds ton_proof payloads until they are consumed or expire.
type NonceStore struct {
	nonces *xsync.Map[string, time.Time]
	now    func() time.Time
}

func NewNonceStore(now func() time.Time) *NonceStore {
	if now == nil {
		now = time.Now
	}
	return &NonceStore{nonces: xsync.NewMap[string, time.Time](), now: now}
}

var _ services.NonceStore = (*NonceStore)(nil)

func (s *NonceStore) SaveNonce(_ context.Context, nonce string, ttl time.Duration) error {
	s.nonces.Store(nonce, s.now().Add(ttl))
	return nil
}

func (s *NonceStore) ConsumeNonce(_ context.Context, nonce string) (bool, error) {
	expiresAt, ok := s.nonces.LoadAndDelete(nonce)
	if !ok {
		return false, nil
	}
	return s.now().Before(expiresAt), nil
}
