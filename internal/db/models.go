package db

import (
	"time"

	"github.com/google/uuid"
)

// Customer is a read-only snapshot from the customer registry. The batch
// treats it as immutable for the duration of a run; CachedTier may be stale
// until the tier-change pass reconciles it.
type Customer struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	MobileNo         string `json:"mobile_no"`
	LoyaltyProgramID string `json:"loyalty_program_id,omitempty"`
	CachedTier       string `json:"cached_tier,omitempty"`
}

// HasContact reports whether the customer can receive SMS notifications.
func (c *Customer) HasContact() bool {
	return c.MobileNo != ""
}

// SpendTotals carries the two windowed spend sums for one
// (customer, loyalty program) pair. Both are non-negative under the accrual
// model; the tier-change pass never assumes current >= previous.
type SpendTotals struct {
	CustomerID       string  `json:"customer_id"`
	LoyaltyProgramID string  `json:"loyalty_program_id"`
	PreviousTotal    float64 `json:"previous_total"`
	CurrentTotal     float64 `json:"current_total"`
}

// Outcome constants for notification records.
const (
	OutcomeSuccess = "Success"
	OutcomeFailed  = "Failed"
)

// Failure reasons recorded on dispatch.
const (
	ReasonNoContactChannel = "no_contact_channel"
	ReasonRuleNotFound     = "rule_not_found"
)

// NotificationRecord is the append-only audit row written once per dispatch
// attempt. Never mutated or deleted.
type NotificationRecord struct {
	ID               uuid.UUID `json:"id"`
	CustomerID       string    `json:"customer_id"`
	EventType        string    `json:"event_type"`
	Outcome          string    `json:"outcome"`
	Message          string    `json:"message"`
	LoyaltyProgramID string    `json:"loyalty_program_id,omitempty"`
	LoyaltyTier      string    `json:"loyalty_tier,omitempty"`
	CouponRef        string    `json:"coupon_ref,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// CouponIntent is the write-intent emitted when a successful dispatch carries
// a discount. The coupon code format itself is owned by the downstream
// commerce system.
type CouponIntent struct {
	ID            uuid.UUID `json:"id"`
	CustomerID    string    `json:"customer_id"`
	EventType     string    `json:"event_type"`
	DiscountType  string    `json:"discount_type"`
	DiscountValue float64   `json:"discount_value"`
	ValidFrom     time.Time `json:"valid_from"`
	ValidUpto     time.Time `json:"valid_upto"`
	MaximumUse    int       `json:"maximum_use"`
	CreatedAt     time.Time `json:"created_at"`
}
