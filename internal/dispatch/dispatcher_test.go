package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/karvy-labs/loyaltypulse/internal/db"
	"github.com/karvy-labs/loyaltypulse/internal/rules"
)

type fakeSink struct {
	records []*db.NotificationRecord
	coupons []*db.CouponIntent

	appendErr error
	couponErr error
}

func (s *fakeSink) AppendNotificationRecord(ctx context.Context, rec *db.NotificationRecord) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeSink) CreateCouponIntent(ctx context.Context, intent *db.CouponIntent) error {
	if s.couponErr != nil {
		return s.couponErr
	}
	s.coupons = append(s.coupons, intent)
	return nil
}

type fakeTransport struct {
	sent []string
	err  error
}

func (t *fakeTransport) Send(ctx context.Context, recipient, text string) error {
	if t.err != nil {
		return t.err
	}
	t.sent = append(t.sent, text)
	return nil
}

type fakeDedup struct {
	reserved map[string]bool
	released []string
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{reserved: make(map[string]bool)}
}

func (d *fakeDedup) key(c, e, date string) string { return c + "|" + e + "|" + date }

func (d *fakeDedup) Reserve(ctx context.Context, customerID, eventType, date string) (bool, error) {
	k := d.key(customerID, eventType, date)
	if d.reserved[k] {
		return false, nil
	}
	d.reserved[k] = true
	return true, nil
}

func (d *fakeDedup) Release(ctx context.Context, customerID, eventType, date string) error {
	k := d.key(customerID, eventType, date)
	delete(d.reserved, k)
	d.released = append(d.released, k)
	return nil
}

func testCatalog() *rules.Catalog {
	return rules.NewCatalog([]rules.Rule{
		{
			ID:              "r-birthday",
			EventType:       "Birthday",
			MessageTemplate: "Happy birthday {customer_name}! {discount_value}% off as a {loyalty_tier} member, valid {validity_days} days.",
			DiscountType:    rules.DiscountPercentage,
			DiscountValue:   10,
			ValidityDays:    7,
			Enabled:         true,
			TierDiscounts: []rules.TierDiscount{
				{TierName: "Gold", DiscountValue: 20},
			},
		},
		{
			ID:              "r-welcome",
			EventType:       "New Registration",
			MessageTemplate: "Welcome {customer_name}!",
			DiscountType:    rules.DiscountNone,
			Enabled:         true,
		},
	})
}

func testCustomer() *db.Customer {
	return &db.Customer{
		ID:               "CUST-001",
		Name:             "Ana",
		MobileNo:         "+15550001",
		LoyaltyProgramID: "LP-01",
		CachedTier:       "Silver",
	}
}

func newTestDispatcher(transport Transport, sink Sink, dedup Dedup) *Dispatcher {
	d := New(testCatalog(), transport, sink, dedup, zap.NewNop())
	d.now = func() time.Time { return time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC) }
	return d
}

func TestDispatchSuccess(t *testing.T) {
	sink := &fakeSink{}
	transport := &fakeTransport{}
	d := newTestDispatcher(transport, sink, nil)

	rec := d.Dispatch(context.Background(), testCustomer(), "Birthday", "")

	if rec == nil {
		t.Fatal("expected a record")
	}
	if rec.Outcome != db.OutcomeSuccess {
		t.Fatalf("outcome = %s, want Success: %s", rec.Outcome, rec.Message)
	}

	want := "Happy birthday Ana! 10% off as a Silver member, valid 7 days."
	if rec.Message != want {
		t.Errorf("message = %q, want %q", rec.Message, want)
	}
	if len(transport.sent) != 1 || transport.sent[0] != want {
		t.Errorf("transport sent %v, want one message %q", transport.sent, want)
	}
	if len(sink.records) != 1 {
		t.Errorf("got %d records, want exactly 1", len(sink.records))
	}
}

func TestDispatchNoContactShortCircuits(t *testing.T) {
	sink := &fakeSink{}
	transport := &fakeTransport{}
	d := newTestDispatcher(transport, sink, nil)

	customer := testCustomer()
	customer.MobileNo = ""

	rec := d.Dispatch(context.Background(), customer, "Birthday", "")

	if rec.Outcome != db.OutcomeFailed || rec.Message != db.ReasonNoContactChannel {
		t.Fatalf("record = %+v, want Failed/no_contact_channel", rec)
	}
	if len(transport.sent) != 0 {
		t.Error("no send should happen without a contact channel")
	}
	if len(sink.records) != 1 {
		t.Errorf("got %d records, want exactly 1", len(sink.records))
	}
}

func TestDispatchRuleNotFound(t *testing.T) {
	sink := &fakeSink{}
	transport := &fakeTransport{}
	d := newTestDispatcher(transport, sink, nil)

	rec := d.Dispatch(context.Background(), testCustomer(), "Unknown Event", "")

	if rec.Outcome != db.OutcomeFailed || rec.Message != db.ReasonRuleNotFound {
		t.Fatalf("record = %+v, want Failed/rule_not_found", rec)
	}
	if len(transport.sent) != 0 {
		t.Error("no send should happen without a rule")
	}
}

func TestDispatchTransportErrorIsSwallowed(t *testing.T) {
	sink := &fakeSink{}
	transport := &fakeTransport{err: errors.New("sns publish failed: timeout")}
	d := newTestDispatcher(transport, sink, nil)

	rec := d.Dispatch(context.Background(), testCustomer(), "Birthday", "")

	if rec.Outcome != db.OutcomeFailed {
		t.Fatalf("outcome = %s, want Failed", rec.Outcome)
	}
	if rec.Message != "sns publish failed: timeout" {
		t.Errorf("record message = %q, want the transport error text", rec.Message)
	}
	if len(sink.records) != 1 {
		t.Errorf("got %d records, want exactly 1", len(sink.records))
	}
}

func TestDispatchTierOverridePrecedence(t *testing.T) {
	sink := &fakeSink{}
	transport := &fakeTransport{}
	d := newTestDispatcher(transport, sink, nil)

	// Cached tier is Silver; the tier-change pass supplies Gold.
	rec := d.Dispatch(context.Background(), testCustomer(), "Birthday", "Gold")

	if rec.LoyaltyTier != "Gold" {
		t.Errorf("record tier = %q, want Gold", rec.LoyaltyTier)
	}
	want := "Happy birthday Ana! 20% off as a Gold member, valid 7 days."
	if rec.Message != want {
		t.Errorf("message = %q, want Gold override applied: %q", rec.Message, want)
	}
}

func TestDispatchClassicFallbackInTemplate(t *testing.T) {
	sink := &fakeSink{}
	transport := &fakeTransport{}
	d := newTestDispatcher(transport, sink, nil)

	customer := testCustomer()
	customer.CachedTier = ""

	rec := d.Dispatch(context.Background(), customer, "Birthday", "")

	want := "Happy birthday Ana! 10% off as a Classic member, valid 7 days."
	if rec.Message != want {
		t.Errorf("message = %q, want %q", rec.Message, want)
	}
}

func TestDispatchCreatesCouponForDiscountRules(t *testing.T) {
	sink := &fakeSink{}
	transport := &fakeTransport{}
	d := newTestDispatcher(transport, sink, nil)

	rec := d.Dispatch(context.Background(), testCustomer(), "Birthday", "")

	if len(sink.coupons) != 1 {
		t.Fatalf("got %d coupon intents, want 1", len(sink.coupons))
	}
	coupon := sink.coupons[0]
	if coupon.DiscountValue != 10 || coupon.DiscountType != rules.DiscountPercentage {
		t.Errorf("coupon = %+v, want 10 Percentage", coupon)
	}
	if !coupon.ValidUpto.After(coupon.ValidFrom) {
		t.Errorf("coupon validity window inverted: %v - %v", coupon.ValidFrom, coupon.ValidUpto)
	}
	if rec.CouponRef == "" {
		t.Error("success record should carry the coupon reference")
	}
}

func TestDispatchNoCouponForRulesWithoutDiscount(t *testing.T) {
	sink := &fakeSink{}
	transport := &fakeTransport{}
	d := newTestDispatcher(transport, sink, nil)

	rec := d.Dispatch(context.Background(), testCustomer(), "New Registration", "")

	if rec.Outcome != db.OutcomeSuccess {
		t.Fatalf("outcome = %s, want Success", rec.Outcome)
	}
	if len(sink.coupons) != 0 {
		t.Errorf("got %d coupon intents, want none", len(sink.coupons))
	}
	if rec.CouponRef != "" {
		t.Errorf("coupon ref = %q, want empty", rec.CouponRef)
	}
}

func TestDispatchDedupSkipsSecondRun(t *testing.T) {
	sink := &fakeSink{}
	transport := &fakeTransport{}
	dedup := newFakeDedup()
	d := newTestDispatcher(transport, sink, dedup)

	first := d.Dispatch(context.Background(), testCustomer(), "Birthday", "")
	if first == nil || first.Outcome != db.OutcomeSuccess {
		t.Fatalf("first dispatch = %+v, want Success", first)
	}

	second := d.Dispatch(context.Background(), testCustomer(), "Birthday", "")
	if second != nil {
		t.Fatalf("re-run dispatch = %+v, want nil (skipped)", second)
	}
	if len(transport.sent) != 1 {
		t.Errorf("transport sent %d messages, want 1", len(transport.sent))
	}
	if len(sink.records) != 1 {
		t.Errorf("got %d records, want 1", len(sink.records))
	}
}

func TestDispatchReleasesDedupOnTransportFailure(t *testing.T) {
	sink := &fakeSink{}
	transport := &fakeTransport{err: errors.New("gateway down")}
	dedup := newFakeDedup()
	d := newTestDispatcher(transport, sink, dedup)

	d.Dispatch(context.Background(), testCustomer(), "Birthday", "")

	if len(dedup.released) != 1 {
		t.Fatalf("dedup released %d slots, want 1", len(dedup.released))
	}

	// The next run can retry the send.
	transport.err = nil
	rec := d.Dispatch(context.Background(), testCustomer(), "Birthday", "")
	if rec == nil || rec.Outcome != db.OutcomeSuccess {
		t.Fatalf("retry dispatch = %+v, want Success", rec)
	}
}

func TestDispatchAuditFailureDoesNotPanic(t *testing.T) {
	sink := &fakeSink{appendErr: errors.New("db down")}
	transport := &fakeTransport{}
	d := newTestDispatcher(transport, sink, nil)

	rec := d.Dispatch(context.Background(), testCustomer(), "Birthday", "")
	if rec == nil || rec.Outcome != db.OutcomeSuccess {
		t.Fatalf("dispatch = %+v, want Success despite audit failure", rec)
	}
}
