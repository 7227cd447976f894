package loyalty

// Direction of a tier transition.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionUpgrade
	DirectionDowngrade
)

func (d Direction) String() string {
	switch d {
	case DirectionUpgrade:
		return "upgrade"
	case DirectionDowngrade:
		return "downgrade"
	default:
		return "none"
	}
}

// Transition is the result of comparing two spend snapshots against the same
// tier ladder.
type Transition struct {
	PreviousTier string
	NewTier      string
	Changed      bool
	Direction    Direction
}

// DetectTransition classifies both spend totals and reports whether the
// customer's tier changed between the two snapshots.
//
// Direction is derived by comparing the thresholds of the two resulting
// tiers, not by comparing the totals themselves: refunds and adjustments can
// make the current total smaller than the previous one.
// Pure and idempotent: identical inputs always yield identical output.
func DetectTransition(previousTotal, currentTotal float64, thresholds []TierThreshold) (Transition, error) {
	previousTier, err := Classify(previousTotal, thresholds)
	if err != nil {
		return Transition{}, err
	}
	newTier, err := Classify(currentTotal, thresholds)
	if err != nil {
		return Transition{}, err
	}

	tr := Transition{
		PreviousTier: previousTier,
		NewTier:      newTier,
		Changed:      previousTier != newTier,
	}
	if tr.Changed {
		if thresholdOf(newTier, thresholds) > thresholdOf(previousTier, thresholds) {
			tr.Direction = DirectionUpgrade
		} else {
			tr.Direction = DirectionDowngrade
		}
	}
	return tr, nil
}
