package dispatch

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/karvy-labs/loyaltypulse/internal/db"
	"github.com/karvy-labs/loyaltypulse/internal/metrics"
	"github.com/karvy-labs/loyaltypulse/internal/rules"
)

// Sink receives the dispatcher's write-intents: the append-only audit record
// and, for discount-bearing rules, the coupon intent. Implemented by
// db.Repository.
type Sink interface {
	AppendNotificationRecord(ctx context.Context, rec *db.NotificationRecord) error
	CreateCouponIntent(ctx context.Context, intent *db.CouponIntent) error
}

// Dedup guards against duplicate sends when the same day's batch is re-run.
// Implemented by redis.DedupGuard; nil disables the guard.
type Dedup interface {
	Reserve(ctx context.Context, customerID, eventType, date string) (bool, error)
	Release(ctx context.Context, customerID, eventType, date string) error
}

// Dispatcher validates, resolves, renders and sends one notification per
// invocation, always producing at most one audit record and at most one
// outbound message. Errors never escape a Dispatch call; they are folded
// into Failed records so the batch loop keeps going.
type Dispatcher struct {
	catalog   *rules.Catalog
	transport Transport
	sink      Sink
	dedup     Dedup
	logger    *zap.Logger

	// now is replaceable in tests; it anchors the dedup date and coupon
	// validity window.
	now func() time.Time
}

// New creates a dispatcher over an immutable rule catalog. dedup may be nil
// when Redis is unavailable; dispatch then runs unguarded, which matches the
// pre-guard behavior of a re-run sending twice.
func New(catalog *rules.Catalog, transport Transport, sink Sink, dedup Dedup, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		catalog:   catalog,
		transport: transport,
		sink:      sink,
		dedup:     dedup,
		logger:    logger,
		now:       time.Now,
	}
}

// Dispatch sends the notification for eventType to the customer.
// tierOverride carries a freshly detected tier (the tier-change pass passes
// the new tier); when empty the customer's cached tier is used.
//
// Returns nil when the dedup guard skipped the dispatch: no send happened
// and no record was written. Every other path returns the record that was
// appended.
func (d *Dispatcher) Dispatch(ctx context.Context, customer *db.Customer, eventType string, tierOverride string) *db.NotificationRecord {
	event := rules.NormalizeEventType(eventType)

	if !customer.HasContact() {
		return d.fail(ctx, customer, event, "", db.ReasonNoContactChannel)
	}

	rule, ok := d.catalog.Resolve(event)
	if !ok {
		return d.fail(ctx, customer, event, "", db.ReasonRuleNotFound)
	}

	tier := tierOverride
	if tier == "" {
		tier = customer.CachedTier
	}

	date := d.now().Format("2006-01-02")
	if d.dedup != nil {
		reserved, err := d.dedup.Reserve(ctx, customer.ID, event, date)
		if err != nil {
			// Guard outage degrades to unguarded dispatch rather than
			// blocking the batch.
			d.logger.Warn("dedup guard unavailable, dispatching unguarded",
				zap.Error(err),
				zap.String("customer_id", customer.ID),
			)
		} else if !reserved {
			metrics.RecordDedupSkip()
			d.logger.Info("dispatch skipped, already sent today",
				zap.String("customer_id", customer.ID),
				zap.String("event_type", event),
			)
			return nil
		}
	}

	discount := rule.DiscountForTier(tier)
	message := rules.Render(rule.MessageTemplate, rules.TierBindings(
		customer.Name,
		tier,
		formatDiscount(discount),
		strconv.Itoa(rule.ValidityDays),
	))

	if err := d.transport.Send(ctx, customer.MobileNo, message); err != nil {
		d.releaseDedup(ctx, customer.ID, event, date)
		return d.fail(ctx, customer, event, tier, err.Error())
	}

	couponRef := d.createCoupon(ctx, customer, rule, event, discount)

	rec := &db.NotificationRecord{
		CustomerID:       customer.ID,
		EventType:        event,
		Outcome:          db.OutcomeSuccess,
		Message:          message,
		LoyaltyProgramID: customer.LoyaltyProgramID,
		LoyaltyTier:      tier,
		CouponRef:        couponRef,
	}
	d.append(ctx, rec)

	metrics.RecordDispatch(event, db.OutcomeSuccess)
	d.logger.Info("notification sent",
		zap.String("customer_id", customer.ID),
		zap.String("event_type", event),
		zap.String("tier", tier),
	)

	return rec
}

// fail writes and returns a Failed record. The batch never aborts on these.
func (d *Dispatcher) fail(ctx context.Context, customer *db.Customer, event, tier, reason string) *db.NotificationRecord {
	rec := &db.NotificationRecord{
		CustomerID:       customer.ID,
		EventType:        event,
		Outcome:          db.OutcomeFailed,
		Message:          reason,
		LoyaltyProgramID: customer.LoyaltyProgramID,
		LoyaltyTier:      tier,
	}
	d.append(ctx, rec)

	metrics.RecordDispatch(event, db.OutcomeFailed)
	d.logger.Warn("notification failed",
		zap.String("customer_id", customer.ID),
		zap.String("event_type", event),
		zap.String("reason", reason),
	)

	return rec
}

func (d *Dispatcher) append(ctx context.Context, rec *db.NotificationRecord) {
	if err := d.sink.AppendNotificationRecord(ctx, rec); err != nil {
		// The send already happened; losing the audit row is logged but
		// cannot fail the dispatch.
		d.logger.Error("failed to append notification record",
			zap.Error(err),
			zap.String("customer_id", rec.CustomerID),
			zap.String("event_type", rec.EventType),
		)
	}
}

func (d *Dispatcher) createCoupon(ctx context.Context, customer *db.Customer, rule *rules.Rule, event string, discount float64) string {
	if !rule.HasDiscount() {
		return ""
	}

	today := d.now().Truncate(24 * time.Hour)
	intent := &db.CouponIntent{
		CustomerID:    customer.ID,
		EventType:     event,
		DiscountType:  rule.DiscountType,
		DiscountValue: discount,
		ValidFrom:     today,
		ValidUpto:     today.AddDate(0, 0, rule.ValidityDays),
		MaximumUse:    1,
	}

	if err := d.sink.CreateCouponIntent(ctx, intent); err != nil {
		d.logger.Warn("failed to create coupon intent",
			zap.Error(err),
			zap.String("customer_id", customer.ID),
		)
		return ""
	}

	return intent.ID.String()
}

func (d *Dispatcher) releaseDedup(ctx context.Context, customerID, event, date string) {
	if d.dedup == nil {
		return
	}
	// Frees the slot so the next run can retry the failed send.
	if err := d.dedup.Release(ctx, customerID, event, date); err != nil {
		d.logger.Warn("failed to release dedup reservation",
			zap.Error(err),
			zap.String("customer_id", customerID),
		)
	}
}

func formatDiscount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
