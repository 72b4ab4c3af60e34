// Package strategy derives the one-shot trade plan for the long leg from a
// depth snapshot: entry at the best ask, protective bands, and target size.
package strategy

import (
	"errors"
	"fmt"

	"fundarb-go/internal/book"
	"fundarb-go/internal/venue"
)

// Protective bands around entry. The ±1% bracket is part of the strategy
// definition, not a tunable.
const (
	stopBand = 0.99
	takeBand = 1.01
)

// ErrNoAsks reports an order book with an empty ask side; the entry price is
// undefined without one.
var ErrNoAsks = errors.New("order book has no ask levels")

// Plan is the sized long-entry plan. For a long entry
// StopLoss < Entry < TakeProfit always holds.
type Plan struct {
	Size       float64 `json:"size"`
	Entry      float64 `json:"entry"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}

// Build sizes the long leg against bk's asks under the default slippage
// tolerance and brackets the entry at ±1%.
func Build(bk *venue.OrderBook, budget float64) (Plan, error) {
	best, ok := bk.BestAsk()
	if !ok {
		if bk == nil || bk.Symbol == "" {
			return Plan{}, fmt.Errorf("plan: %w", ErrNoAsks)
		}
		return Plan{}, fmt.Errorf("plan %s: %w", bk.Symbol, ErrNoAsks)
	}
	return Plan{
		Size:       book.MaxContracts(bk.Asks, budget, book.DefaultSlippage),
		Entry:      best.Price,
		StopLoss:   best.Price * stopBand,
		TakeProfit: best.Price * takeBand,
	}, nil
}
