package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DedupTTL is how long a (customer, event, date) reservation is retained.
// It must outlive the calendar day it guards so a same-day batch re-run
// cannot send the notification twice; 48h covers timezone skew between the
// batch host and the reference date.
const DedupTTL = 48 * time.Hour

// DedupGuard prevents duplicate notification sends when the daily batch is
// re-run. A key is reserved with SET NX before dispatch; a re-run sees the
// existing key and skips the customer without sending or logging again.
type DedupGuard struct {
	client *Client
	logger *zap.Logger
}

// NewDedupGuard creates a new dedup guard.
func NewDedupGuard(client *Client, logger *zap.Logger) *DedupGuard {
	return &DedupGuard{
		client: client,
		logger: logger,
	}
}

func (g *DedupGuard) buildKey(customerID, eventType, date string) string {
	return fmt.Sprintf("dedup:%s:%s:%s", customerID, eventType, date)
}

// Reserve atomically claims the (customer, event, date) slot. Returns true
// if this caller holds the slot, false if a prior run already claimed it.
func (g *DedupGuard) Reserve(ctx context.Context, customerID, eventType, date string) (bool, error) {
	key := g.buildKey(customerID, eventType, date)

	set, err := g.client.rdb.SetNX(ctx, key, "1", DedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}

	if !set {
		g.logger.Debug("dedup hit, skipping dispatch",
			zap.String("customer_id", customerID),
			zap.String("event_type", eventType),
			zap.String("date", date),
		)
	}

	return set, nil
}

// Release frees a reservation after a failed dispatch so the next run can
// retry the customer. Best effort: if the delete fails the reservation
// simply expires with its TTL.
func (g *DedupGuard) Release(ctx context.Context, customerID, eventType, date string) error {
	key := g.buildKey(customerID, eventType, date)

	if err := g.client.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
