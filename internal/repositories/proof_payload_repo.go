package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keeper-escrow/backend/internal/services"
)

const proofPayloadPrefix = "ton_proof:"

// ProofPayloadRepo stores ton_proof nonces in Redis; expiry is the key TTL.
type ProofPayloadRepo struct {
	client *redis.Client
}

func NewProofPayloadRepo(client *redis.Client) *ProofPayloadRepo {
	return &ProofPayloadRepo{client: client}
}

var _ services.NonceStore = (*ProofPayloadRepo)(nil)

func (r *ProofPayloadRepo) SaveNonce(ctx context.Context, nonce string, ttl time.Duration) error {
	return r.client.Set(ctx, proofPayloadPrefix+nonce, 1, ttl).Err()
}

// ConsumeNonce uses GETDEL so concurrent logins cannot both consume the same payload.
func (r *ProofPayloadRepo) ConsumeNonce(ctx context.Context, nonce string) (bool, error) {
	if nonce == "" {
		return false, nil
	}
	err := r.client.GetDel(ctx, proofPayloadPrefix+nonce).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// NotificationDedupe marks keys with SET NX so several workers publish each expiry once.
type NotificationDedupe struct {
	client *redis.Client
}

func NewNotificationDedupe(client *redis.Client) *NotificationDedupe {
	return &NotificationDedupe{client: client}
}

var _ services.Deduper = (*NotificationDedupe)(nil)

func (d *NotificationDedupe) FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return d.client.SetNX(ctx, "dedupe:"+key, 1, ttl).Result()
}

func (d *NotificationDedupe) Forget(ctx context.Context, key string) error {
	return d.client.Del(ctx, "dedupe:"+key).Err()
}
