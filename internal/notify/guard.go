package notify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prestonbrown26/braselton-phone-water-sewage/pkg/logger"
	"github.com/prestonbrown26/braselton-phone-water-sewage/pkg/utils"
)

const (
	guardKeyPrefix = "notify:"
	capKey         = guardKeyPrefix + "inflight"
	capPollEvery   = 50 * time.Millisecond
)

var errCapExhausted = errors.New("send capacity exhausted")

type GuardOptions struct {
	// DedupeWindow is how long an identical send is suppressed. Zero disables dedupe.
	DedupeWindow time.Duration
	// MaxConcurrent caps in-flight sends across processes. Zero disables the cap.
	MaxConcurrent int
	// SlotTTL bounds how long a crashed sender holds a slot.
	SlotTTL time.Duration
}

// Guard coordinates outbound sends through Redis: SET NX dedupe of identical
// messages and a shared cap on concurrent deliveries.
type Guard struct {
	rdb  *redis.Client
	opts GuardOptions
}

func NewGuard(rdb *redis.Client, opts GuardOptions) *Guard {
	if opts.SlotTTL <= 0 {
		opts.SlotTTL = time.Minute
	}
	return &Guard{rdb: rdb, opts: opts}
}

func dedupeKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return guardKeyPrefix + "dedupe:" + hex.EncodeToString(sum[:])
}

// Claim returns false if the same key was claimed within the dedupe window.
func (g *Guard) Claim(ctx context.Context, key string) (bool, error) {
	if g.opts.DedupeWindow <= 0 {
		return true, nil
	}
	return utils.ClaimOnce(ctx, g.rdb, dedupeKey(key), g.opts.DedupeWindow)
}

// Forget releases a claim so a failed send can be retried.
func (g *Guard) Forget(ctx context.Context, key string) error {
	if g.opts.DedupeWindow <= 0 {
		return nil
	}
	return utils.Forget(ctx, g.rdb, dedupeKey(key))
}

// Acquire blocks until a send slot is free or ctx ends.
func (g *Guard) Acquire(ctx context.Context) (release func(), err error) {
	if g.opts.MaxConcurrent <= 0 {
		return func() {}, nil
	}
	for {
		ok, err := utils.AcquireConcurrencyCap(ctx, g.rdb, capKey, g.opts.MaxConcurrent, g.opts.SlotTTL)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				if err := utils.ReleaseConcurrencyCap(context.WithoutCancel(ctx), g.rdb, capKey); err != nil {
					logger.From(ctx).Warn("send slot release failed", "err", err)
				}
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, errCapExhausted
		case <-time.After(capPollEvery):
		}
	}
}
