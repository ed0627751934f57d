package pipeline

import (
	"strings"

	"shadeqc/internal"
)

// Shade band upper bounds, inclusive.
const (
	bandA = 1.2
	bandB = 2.0
	bandC = 3.0
)

func ShadeForDeltaE(deltaE float64) internal.Shade {
	switch {
	case deltaE <= bandA:
		return internal.ShadeA
	case deltaE <= bandB:
		return internal.ShadeB
	case deltaE <= bandC:
		return internal.ShadeC
	default:
		return internal.ShadeD
	}
}

// DecisionForShade never accepts a shade it does not recognise.
func DecisionForShade(shade string) internal.Decision {
	switch internal.Shade(strings.ToUpper(strings.TrimSpace(shade))) {
	case internal.ShadeA, internal.ShadeB:
		return internal.DecisionAccept
	case internal.ShadeC:
		return internal.DecisionHold
	case internal.ShadeD, internal.ShadeReject:
		return internal.DecisionReject
	default:
		return internal.DecisionHold
	}
}

// NormalizeDecision folds an explicit verdict into one of the three canonical
// values. Anything unrecognised is held for review.
func NormalizeDecision(raw string) internal.Decision {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ACCEPT", "ACCEPTED":
		return internal.DecisionAccept
	case "REJECT", "REJECTED":
		return internal.DecisionReject
	default:
		return internal.DecisionHold
	}
}
