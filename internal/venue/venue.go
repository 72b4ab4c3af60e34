// Package venue defines the exchange connector surface the executor trades
// through, plus the order, position, and order-book types shared by every
// venue implementation. Connectors are plain values handed into each
// component; there is no process-wide session state.
package venue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Side is the direction of an order.
type Side string

const (
	// Buy opens or adds to long exposure.
	Buy Side = "BUY"
	// Sell opens or adds to short exposure.
	Sell Side = "SELL"
)

// PositionSide tags an order with the tracked position it acts on when the
// venue runs in hedge (dual-side) mode.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
	PositionBoth  PositionSide = "BOTH"
)

// BracketType selects the conditional flavor for protective orders. The zero
// value means a plain market order.
type BracketType string

const (
	BracketNone       BracketType = ""
	BracketStop       BracketType = "STOP_MARKET"
	BracketTakeProfit BracketType = "TAKE_PROFIT_MARKET"
)

// TriggerDirection tells the venue which way price must cross the stop price
// before a bracket order fires.
type TriggerDirection string

const (
	TriggerAbove TriggerDirection = "ABOVE"
	TriggerBelow TriggerDirection = "BELOW"
)

// BookLevel is one ask or bid rung.
type BookLevel struct {
	Price  float64
	Amount float64
}

// OrderBook is a depth snapshot, best price first on both sides. Snapshots
// are not mutated after the connector returns them.
type OrderBook struct {
	Symbol string
	Asks   []BookLevel
	Bids   []BookLevel
}

// BestAsk returns the cheapest ask, or false when the ask side is empty.
func (b *OrderBook) BestAsk() (BookLevel, bool) {
	if b == nil || len(b.Asks) == 0 {
		return BookLevel{}, false
	}
	return b.Asks[0], true
}

// MarketLimits carries the venue-reported trading limits for a symbol.
// MaxLeverage == 0 means the venue reported no tighter limit.
type MarketLimits struct {
	MaxLeverage int
}

// Position is a venue-reported open position. Quantity is always positive;
// Side carries the direction. Symbol is echoed in the caller's form.
type Position struct {
	Symbol   string
	Quantity float64
	Side     PositionSide
}

// OrderRef identifies an order accepted by a venue.
type OrderRef struct {
	ID            string    `json:"id"`
	ClientOrderID string    `json:"client_order_id,omitempty"`
	Venue         string    `json:"venue"`
	Symbol        string    `json:"symbol"`
	Side          Side      `json:"side"`
	Quantity      float64   `json:"quantity"`
	CreateTime    time.Time `json:"create_time"`
}

// OrderOptions carries the optional order attributes: the hedge position-side
// tag, bracket trigger parameters, and the close-entire-position flag.
type OrderOptions struct {
	PositionSide  PositionSide
	Bracket       BracketType
	StopPrice     float64
	Trigger       TriggerDirection
	ClosePosition bool
	ClientOrderID string
}

// RejectReason classifies a leverage rejection so callers never inspect
// venue error text. Connectors own the mapping from venue codes/messages.
type RejectReason int

const (
	// ReasonOther is any rejection the connector could not classify.
	ReasonOther RejectReason = iota
	// ReasonNotModified means the venue is already at the requested leverage.
	ReasonNotModified
	// ReasonInvalidValue means the venue considers the value unusable.
	ReasonInvalidValue
)

func (r RejectReason) String() string {
	switch r {
	case ReasonNotModified:
		return "not_modified"
	case ReasonInvalidValue:
		return "invalid_value"
	default:
		return "other"
	}
}

// LeverageError is the typed leverage rejection returned by SetLeverage.
type LeverageError struct {
	Venue  string
	Value  int
	Reason RejectReason
	Msg    string
}

func (e *LeverageError) Error() string {
	return fmt.Sprintf("%s: set leverage %d rejected (%s): %s", e.Venue, e.Value, e.Reason, e.Msg)
}

// AsLeverageError unwraps err into a LeverageError when possible.
func AsLeverageError(err error) (*LeverageError, bool) {
	var le *LeverageError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// Connector is the per-venue exchange capability consumed by the core.
type Connector interface {
	Name() string
	FundingRate(ctx context.Context, symbol string) (float64, error)
	FetchOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error)
	MarketLimits(ctx context.Context, symbol string) (MarketLimits, error)
	// SetLeverage applies value to the symbol. Venue rejections come back
	// as *LeverageError.
	SetLeverage(ctx context.Context, value int, symbol string) error
	PlaceMarketOrder(ctx context.Context, symbol string, side Side, qty float64, opts *OrderOptions) (*OrderRef, error)
	// OpenPositions reports the open positions for symbol only.
	OpenPositions(ctx context.Context, symbol string) ([]Position, error)
}
