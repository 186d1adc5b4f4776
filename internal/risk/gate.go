package risk

import (
	"time"

	"github.com/ShreymShah/breakout-trading-bot/internal/session"
	"github.com/ShreymShah/breakout-trading-bot/internal/state"
)

// Decision is the outcome of a gate check, with the first failing rule.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

const (
	ReasonOutsideWindow = "OUTSIDE_WINDOW"
	ReasonNoCounter     = "NO_COUNTER"
	ReasonCapReached    = "CAP_REACHED"
	ReasonNotEligible   = "NOT_ELIGIBLE_YET"
	ReasonSameDirection = "SAME_DIRECTION"
)

// IsInSessionWindow is the half-open [start, end) hour test.
func IsInSessionWindow(w session.Window, hour int) bool {
	return w.Contains(hour)
}

// IsTradeEligible reports whether a new entry may be considered for the
// session now. A nil counter means the session has no counter today.
func IsTradeEligible(counter *state.Counter, now time.Time, eligibleAt *time.Time) bool {
	return Eligibility(counter, now, eligibleAt).Allowed
}

// Eligibility explains the IsTradeEligible decision.
func Eligibility(counter *state.Counter, now time.Time, eligibleAt *time.Time) Decision {
	if counter == nil {
		return Decision{Reason: ReasonNoCounter}
	}
	if counter.Count >= session.MaxTradesPerSession {
		return Decision{Reason: ReasonCapReached}
	}
	if eligibleAt == nil || now.Before(*eligibleAt) {
		return Decision{Reason: ReasonNotEligible}
	}
	return Decision{Allowed: true}
}

// CanTakeDirection allows any side first, then only the opposite of the
// first trade, then nothing.
func CanTakeDirection(side state.Side, counter state.Counter) bool {
	switch counter.Count {
	case 0:
		return true
	case 1:
		return len(counter.Directions) == 1 && counter.Directions[0] != side
	default:
		return false
	}
}

// Check runs window, eligibility and direction rules in order.
func Check(w session.Window, counter *state.Counter, now time.Time, eligibleAt *time.Time, side state.Side) Decision {
	if !IsInSessionWindow(w, now.Hour()) {
		return Decision{Reason: ReasonOutsideWindow}
	}
	if d := Eligibility(counter, now, eligibleAt); !d.Allowed {
		return d
	}
	if !CanTakeDirection(side, *counter) {
		return Decision{Reason: ReasonSameDirection}
	}
	return Decision{Allowed: true}
}
