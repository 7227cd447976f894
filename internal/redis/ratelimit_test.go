package redis

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRateLimiterAllowsUnderLimit(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	limiter := NewRateLimiter(client, zap.NewNop(), RateLimitConfig{
		Limit:  5,
		Window: 1 * time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := limiter.Allow(ctx, "sms")
		if err != nil {
			t.Fatalf("Allow #%d: %v", i+1, err)
		}
		if !result.Allowed {
			t.Fatalf("send #%d should be allowed", i+1)
		}
	}
}

func TestRateLimiterRejectsOverLimit(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	limiter := NewRateLimiter(client, zap.NewNop(), RateLimitConfig{
		Limit:  3,
		Window: 1 * time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := limiter.Allow(ctx, "sms"); err != nil {
			t.Fatal(err)
		}
	}

	result, err := limiter.Allow(ctx, "sms")
	if err != nil {
		t.Fatal(err)
	}
	if result.Allowed {
		t.Fatal("4th send should be rejected")
	}
	if result.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", result.Remaining)
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	limiter := NewRateLimiter(client, zap.NewNop(), RateLimitConfig{
		Limit:  1,
		Window: 1 * time.Minute,
	})
	ctx := context.Background()

	if _, err := limiter.Allow(ctx, "sms"); err != nil {
		t.Fatal(err)
	}

	result, err := limiter.Allow(ctx, "ops-email")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Allowed {
		t.Error("different key should have its own window")
	}
}

func TestRateLimiterAllowN(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	limiter := NewRateLimiter(client, zap.NewNop(), RateLimitConfig{
		Limit:  10,
		Window: 1 * time.Minute,
	})
	ctx := context.Background()

	result, err := limiter.AllowN(ctx, "sms", 8)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Allowed {
		t.Fatal("8 of 10 should be allowed")
	}
	if result.Remaining != 2 {
		t.Errorf("Remaining = %d, want 2", result.Remaining)
	}

	result, err = limiter.AllowN(ctx, "sms", 3)
	if err != nil {
		t.Fatal(err)
	}
	if result.Allowed {
		t.Fatal("8+3 exceeds limit of 10")
	}
}
