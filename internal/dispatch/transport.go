// Package dispatch turns a (customer, event) pair into at most one outbound
// SMS and exactly one audit record.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/karvy-labs/loyaltypulse/internal/metrics"
	"github.com/karvy-labs/loyaltypulse/internal/redis"
)

// Transport delivers one rendered message to one recipient. Fire and forget:
// no delivery receipts are consumed.
type Transport interface {
	Send(ctx context.Context, recipient, text string) error
}

// LogTransport logs messages instead of sending them (development mode).
type LogTransport struct {
	logger *zap.Logger
}

func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(ctx context.Context, recipient, text string) error {
	t.logger.Info("sms logged (development mode)",
		zap.String("recipient", recipient),
		zap.String("text", text),
	)
	return nil
}

// ThrottledTransport wraps a Transport with the Redis sliding-window rate
// limiter so a large candidate day cannot blow through the gateway's sending
// quota. A rejected send surfaces as a transport error and is recorded like
// any other failure.
type ThrottledTransport struct {
	inner   Transport
	limiter *redis.RateLimiter
	key     string
	logger  *zap.Logger
}

func NewThrottledTransport(inner Transport, limiter *redis.RateLimiter, key string, logger *zap.Logger) *ThrottledTransport {
	return &ThrottledTransport{
		inner:   inner,
		limiter: limiter,
		key:     key,
		logger:  logger,
	}
}

func (t *ThrottledTransport) Send(ctx context.Context, recipient, text string) error {
	result, err := t.limiter.Allow(ctx, t.key)
	if err != nil {
		// Limiter outage should not stop the batch; send unthrottled.
		t.logger.Warn("rate limiter unavailable, sending unthrottled", zap.Error(err))
		return t.inner.Send(ctx, recipient, text)
	}

	if !result.Allowed {
		metrics.RecordThrottleRejection()
		return &ThrottleError{ResetAt: result.ResetAt}
	}

	return t.inner.Send(ctx, recipient, text)
}

// ThrottleError reports a send rejected by the outbound rate limiter.
type ThrottleError struct {
	ResetAt time.Time
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("send throttled until %s", e.ResetAt.Format(time.RFC3339))
}
