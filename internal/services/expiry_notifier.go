package services

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/keeper-escrow/backend/internal/events"
)

const (
	defaultExpiryBatch = 500
	// expired orders stay listed until cancelled, so the dedupe mark must outlive
	// the maximum order lifetime a notification could repeat over.
	defaultExpiryDedupeTTL = 31 * 24 * time.Hour
)

// Deduper reports whether key is seen for the first time within ttl. Forget drops the
// mark so the key counts as unseen again.
type Deduper interface {
	FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, key string) error
}

// ExpiryNotifier announces orders that passed their deadline. It only publishes
// events; expired orders keep their status until someone cancels them.
type ExpiryNotifier struct {
	store     Store
	publisher events.Publisher
	dedupe    Deduper
	clock     Clock
	pool      pond.Pool
	batch     int
	dedupeTTL time.Duration
	log       *zap.Logger
}

func NewExpiryNotifier(store Store, publisher events.Publisher, dedupe Deduper, clock Clock, pool pond.Pool, batch int, log *zap.Logger) *ExpiryNotifier {
	if clock == nil {
		clock = SystemClock{}
	}
	if dedupe == nil {
		dedupe = NewMemoryDeduper(clock)
	}
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &ExpiryNotifier{
		store:     store,
		publisher: publisher,
		dedupe:    dedupe,
		clock:     clock,
		pool:      pool,
		batch:     batch,
		dedupeTTL: defaultExpiryDedupeTTL,
		log:       log,
	}
}

// Scan publishes order_expired once per expired order and returns how many were sent.
func (n *ExpiryNotifier) Scan(ctx context.Context) (int, error) {
	now := n.clock.Now()
	orders, err := n.store.ListExpired(ctx, now.Unix(), n.batch)
	if err != nil {
		return 0, err
	}
	if len(orders) == 0 {
		return 0, nil
	}

	var sent atomic.Int64
	group := n.pool.NewGroupContext(ctx)
	for i := range orders {
		o := orders[i]
		group.Submit(func() {
			key := o.Key().String()
			mark := "order_expired:" + key
			first, err := n.dedupe.FirstSeen(ctx, mark, n.dedupeTTL)
			if err != nil {
				n.log.Warn("expiry dedupe failed", zap.String("order", key), zap.Error(err))
				return
			}
			if !first {
				return
			}

			payload := orderPayload(&o)
			payload["expires_at"] = o.ExpiresAt()
			event := events.Event{Type: events.EventOrderExpired, Payload: payload}
			if err := n.publisher.Publish(ctx, events.StreamOrders, event); err != nil {
				n.log.Warn("failed to publish expiry", zap.String("order", key), zap.Error(err))
				// the next scan retries it
				if err := n.dedupe.Forget(ctx, mark); err != nil {
					n.log.Error("failed to release expiry mark", zap.String("order", key), zap.Error(err))
				}
				return
			}
			sent.Add(1)
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		return int(sent.Load()), err
	}

	n.log.Info("expiry scan finished",
		zap.Int("expired", len(orders)),
		zap.Int64("notified", sent.Load()),
	)
	return int(sent.Load()), nil
}

// MemoryDeduper is a process-local Deduper.
type MemoryDeduper struct {
	seen  *xsync.Map[string, time.Time]
	clock Clock
}

func NewMemoryDeduper(clock Clock) *MemoryDeduper {
	if clock == nil {
		clock = SystemClock{}
	}
	return &MemoryDeduper{seen: xsync.NewMap[string, time.Time](), clock: clock}
}

func (d *MemoryDeduper) FirstSeen(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := d.clock.Now()
	first := false
	d.seen.Compute(key, func(until time.Time, loaded bool) (time.Time, xsync.ComputeOp) {
		if loaded && now.Before(until) {
			return until, xsync.CancelOp
		}
		first = true
		return now.Add(ttl), xsync.UpdateOp
	})
	return first, nil
}

func (d *MemoryDeduper) Forget(_ context.Context, key string) error {
	d.seen.Delete(key)
	return nil
}
