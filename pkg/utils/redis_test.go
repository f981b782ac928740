package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestConcurrencyCap_LimitsSlots(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := AcquireConcurrencyCap(ctx, rdb, "cap:smtp", 2, time.Minute)
		if err != nil || !ok {
			t.Fatalf("slot %d: expected acquired, got ok=%v err=%v", i, ok, err)
		}
	}
	ok, err := AcquireConcurrencyCap(ctx, rdb, "cap:smtp", 2, time.Minute)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ok {
		t.Fatalf("expected third slot to be rejected")
	}

	if err := ReleaseConcurrencyCap(ctx, rdb, "cap:smtp"); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = AcquireConcurrencyCap(ctx, rdb, "cap:smtp", 2, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected slot after release, got ok=%v err=%v", ok, err)
	}
}

func TestClaimOnce(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	ok, err := ClaimOnce(ctx, rdb, "dedupe:a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err = ClaimOnce(ctx, rdb, "dedupe:a", time.Minute)
	if err != nil || ok {
		t.Fatalf("second claim should fail: ok=%v err=%v", ok, err)
	}
	if err := Forget(ctx, rdb, "dedupe:a"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	ok, err = ClaimOnce(ctx, rdb, "dedupe:a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("claim after forget: ok=%v err=%v", ok, err)
	}
}

func TestAcquireConcurrencyCap_ValidatesArgs(t *testing.T) {
	if _, err := AcquireConcurrencyCap(context.Background(), nil, "k", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
