package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := &Client{rdb: rdb, logger: zap.NewNop()}

	return client, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestDedupGuardReserve(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	guard := NewDedupGuard(client, zap.NewNop())
	ctx := context.Background()

	ok, err := guard.Reserve(ctx, "CUST-001", "birthday", "2026-08-31")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("first reservation should succeed")
	}

	// Batch re-run on the same day: the slot is already claimed.
	ok, err = guard.Reserve(ctx, "CUST-001", "birthday", "2026-08-31")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("duplicate reservation should be rejected")
	}
}

func TestDedupGuardIndependentKeys(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	guard := NewDedupGuard(client, zap.NewNop())
	ctx := context.Background()

	cases := []struct {
		customer, event, date string
	}{
		{"CUST-001", "birthday", "2026-08-31"},
		{"CUST-002", "birthday", "2026-08-31"},       // different customer
		{"CUST-001", "loyalty_upgrade", "2026-08-31"}, // different event
		{"CUST-001", "birthday", "2026-09-01"},       // different date
	}

	for _, c := range cases {
		ok, err := guard.Reserve(ctx, c.customer, c.event, c.date)
		if err != nil {
			t.Fatalf("Reserve(%s,%s,%s): %v", c.customer, c.event, c.date, err)
		}
		if !ok {
			t.Errorf("Reserve(%s,%s,%s) should not collide", c.customer, c.event, c.date)
		}
	}
}

func TestDedupGuardRelease(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	guard := NewDedupGuard(client, zap.NewNop())
	ctx := context.Background()

	if _, err := guard.Reserve(ctx, "CUST-001", "birthday", "2026-08-31"); err != nil {
		t.Fatal(err)
	}
	if err := guard.Release(ctx, "CUST-001", "birthday", "2026-08-31"); err != nil {
		t.Fatalf("Release: %v", err)
	}

	// Released slot is available again for the next run's retry.
	ok, err := guard.Reserve(ctx, "CUST-001", "birthday", "2026-08-31")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("reservation after release should succeed")
	}
}
