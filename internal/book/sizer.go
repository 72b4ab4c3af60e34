// Package book sizes an executable contract quantity against order-book depth
// under a notional budget with a slippage tolerance.
package book

import (
	"math"

	"fundarb-go/internal/venue"
)

// DefaultSlippage is the tolerance added to the notional budget when walking
// depth (10 bps).
const DefaultSlippage = 0.001

// MaxContracts walks asks cheapest-first accumulating cost and returns the
// largest contract quantity whose cumulative notional stays within
// budget*(1+slippage). The level that would breach the budget is taken
// partially at its price, not dropped. The result is rounded to 2 decimals
// (contract-size granularity). An empty ask side or non-positive budget
// sizes to zero.
func MaxContracts(asks []venue.BookLevel, budget, slippage float64) float64 {
	if slippage < 0 {
		slippage = 0
	}
	limit := budget * (1 + slippage)
	if limit <= 0 {
		return 0
	}

	var totalCost, contracts float64
	for _, lvl := range asks {
		cost := lvl.Price * lvl.Amount
		if totalCost+cost > limit {
			if lvl.Price > 0 {
				contracts += (limit - totalCost) / lvl.Price
			}
			break
		}
		totalCost += cost
		contracts += lvl.Amount
	}
	return round2(contracts)
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }
