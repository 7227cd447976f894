// Package loyalty contains the pure tier classification logic: mapping a
// cumulative spend amount onto a loyalty program's tier ladder, and detecting
// tier transitions between two spend snapshots.
package loyalty

import (
	"errors"
	"fmt"
	"sort"
)

// BaseTier is the implicit bottom tier. It has an effective threshold of zero
// and is never stored in a program's threshold list.
const BaseTier = "Classic"

// ErrValidation wraps all malformed-input failures from classification.
var ErrValidation = errors.New("validation error")

// TierThreshold is one rung of a loyalty program's ladder: holding the tier
// requires cumulative spend of at least MinSpent.
type TierThreshold struct {
	TierName string  `json:"tier_name" yaml:"tier_name"`
	MinSpent float64 `json:"min_spent" yaml:"min_spent"`
}

// Classify returns the tier a customer holds at the given spend level.
//
// Thresholds are sorted ascending by MinSpent before evaluation; callers are
// not trusted to pre-sort. The result is the tier with the highest MinSpent
// not exceeding spend, or BaseTier when no threshold qualifies (including the
// empty ladder). For a fixed ladder the result is monotonic non-decreasing
// in spend.
func Classify(spend float64, thresholds []TierThreshold) (string, error) {
	if spend < 0 {
		return "", fmt.Errorf("%w: negative spend %.2f", ErrValidation, spend)
	}

	sorted := make([]TierThreshold, len(thresholds))
	copy(sorted, thresholds)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinSpent < sorted[j].MinSpent })

	seen := make(map[string]struct{}, len(sorted))
	for _, t := range sorted {
		if _, dup := seen[t.TierName]; dup {
			return "", fmt.Errorf("%w: duplicate tier name %q", ErrValidation, t.TierName)
		}
		seen[t.TierName] = struct{}{}
	}

	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i].MinSpent <= spend {
			return sorted[i].TierName, nil
		}
	}

	return BaseTier, nil
}

// thresholdOf returns the MinSpent gating the given tier, with BaseTier at 0.
// The tier is assumed to come from a prior Classify call over the same ladder.
func thresholdOf(tier string, thresholds []TierThreshold) float64 {
	for _, t := range thresholds {
		if t.TierName == tier {
			return t.MinSpent
		}
	}
	return 0
}
