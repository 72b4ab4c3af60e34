// Package hedge clamps the hedge-leg size to what the hedge venue's margin
// can support at the negotiated leverage.
package hedge

import "math"

// Sizing records the hedge-size computation for one execution.
type Sizing struct {
	Target        float64 `json:"target"`
	MaxAffordable float64 `json:"max_affordable"`
	Effective     float64 `json:"effective"`
}

// Compute derives the maximum hedge quantity affordable at the effective
// leverage and clamps target to it. A budget that is absent or not a number
// falls back to target*entry, so the clamp works off the notional actually
// being deployed rather than the sizer's view of another venue's book. The
// effective size is never negative.
func Compute(target, entry float64, lev int, budget float64) Sizing {
	if budget <= 0 || math.IsNaN(budget) {
		budget = target * entry
	}
	s := Sizing{Target: target}
	if entry > 0 {
		s.MaxAffordable = budget * float64(lev) / entry
	}
	s.Effective = math.Min(target, s.MaxAffordable)
	if s.Effective < 0 || math.IsNaN(s.Effective) {
		s.Effective = 0
	}
	return s
}
