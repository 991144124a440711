package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNonceStoreConsumeOnce(t *testing.T) {
	ctx := context.Background()
	s := NewNonceStore(nil)
	require.NoError(t, s.SaveNonce(ctx, "n1", time.Minute))

	ok, err := s.ConsumeNonce(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ConsumeNonce(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, ok, "nonce must not be usable twice")

	ok, err = s.ConsumeNonce(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNonceStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	s := NewNonceStore(func() time.Time { return now })
	require.NoError(t, s.SaveNonce(ctx, "n1", time.Minute))

	now = now.Add(2 * time.Minute)
	ok, err := s.ConsumeNonce(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, ok)
}
