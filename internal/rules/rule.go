// Package rules holds the notification rule catalog and message template
// rendering. A rule maps a lifecycle event type to an SMS template plus a
// discount policy, with optional per-tier discount overrides.
package rules

import "strings"

// Discount types carried by a rule.
const (
	DiscountPercentage = "Percentage"
	DiscountAmount     = "Amount"
	DiscountNone       = "None"
)

// Well-known event types, already in normalized form.
const (
	EventBirthday        = "birthday"
	EventAnniversary     = "membership_anniversary"
	EventNewRegistration = "new_registration"
	EventLoyaltyUpgrade  = "loyalty_upgrade"
)

// TierDiscount overrides a rule's default discount for one tier.
type TierDiscount struct {
	TierName      string  `json:"tier_name" yaml:"tier_name"`
	DiscountValue float64 `json:"discount_value" yaml:"discount_value"`
}

// Rule is one event-triggered notification rule.
type Rule struct {
	ID              string         `json:"id" yaml:"id"`
	EventType       string         `json:"event_type" yaml:"event_type"`
	MessageTemplate string         `json:"message_template" yaml:"message_template"`
	DiscountType    string         `json:"discount_type" yaml:"discount_type"`
	DiscountValue   float64        `json:"discount_value" yaml:"discount_value"`
	ValidityDays    int            `json:"validity_days" yaml:"validity_days"`
	Enabled         bool           `json:"enabled" yaml:"enabled"`
	TierDiscounts   []TierDiscount `json:"tier_discounts" yaml:"tier_discounts"`
}

// NormalizeEventType lower-cases and collapses whitespace to underscores so
// that "New Registration" and "new_registration" resolve the same rule.
func NormalizeEventType(eventType string) string {
	normalized := strings.ToLower(strings.TrimSpace(eventType))
	return strings.Join(strings.Fields(normalized), "_")
}

// DiscountForTier returns the override value for the given tier if the rule
// carries one, else the rule's default discount value. The first matching
// override wins; the loader guarantees at most one per tier.
func (r *Rule) DiscountForTier(tierName string) float64 {
	for _, td := range r.TierDiscounts {
		if td.TierName == tierName {
			return td.DiscountValue
		}
	}
	return r.DiscountValue
}

// HasDiscount reports whether dispatching this rule should produce a coupon.
func (r *Rule) HasDiscount() bool {
	return r.DiscountType == DiscountPercentage || r.DiscountType == DiscountAmount
}
