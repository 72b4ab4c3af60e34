// Package paper provides an in-memory venue used by the paper binary and the
// orchestrator tests. Fills are tracked per position side the way a
// dual-side futures account does, and failures can be injected per order
// side.
package paper

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"fundarb-go/internal/venue"
)

type positionKey struct {
	symbol string
	side   venue.PositionSide
}

// Fill records an order the venue accepted, with the options it carried.
type Fill struct {
	Ref  venue.OrderRef
	Opts venue.OrderOptions
}

// Venue is an in-memory venue.Connector.
type Venue struct {
	name string

	mu        sync.Mutex
	book      *venue.OrderBook
	funding   float64
	limits    venue.MarketLimits
	leverage  int
	positions map[positionKey]float64
	orders    []Fill
	seq       int

	// FailOrders rejects the next N market/bracket orders per side; entries
	// are consumed as orders arrive.
	FailOrders map[venue.Side]int
	// LeverageReject is returned by the next SetLeverage call, once.
	LeverageReject *venue.LeverageError
	// FundingErr and BookErr, when set, fail every matching read call.
	FundingErr error
	BookErr    error
}

// New builds a paper venue serving the given depth snapshot, funding rate,
// and market limits.
func New(name string, book *venue.OrderBook, funding float64, limits venue.MarketLimits) *Venue {
	return &Venue{
		name:       name,
		book:       book,
		funding:    funding,
		limits:     limits,
		positions:  make(map[positionKey]float64),
		FailOrders: make(map[venue.Side]int),
	}
}

func (v *Venue) Name() string { return v.name }

func (v *Venue) FundingRate(_ context.Context, _ string) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.FundingErr != nil {
		return 0, v.FundingErr
	}
	return v.funding, nil
}

func (v *Venue) FetchOrderBook(_ context.Context, symbol string, depth int) (*venue.OrderBook, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.BookErr != nil {
		return nil, v.BookErr
	}
	if v.book == nil {
		return nil, fmt.Errorf("%s: no order book for %s", v.name, symbol)
	}
	bk := &venue.OrderBook{Symbol: symbol, Asks: v.book.Asks, Bids: v.book.Bids}
	if depth > 0 {
		if len(bk.Asks) > depth {
			bk.Asks = bk.Asks[:depth]
		}
		if len(bk.Bids) > depth {
			bk.Bids = bk.Bids[:depth]
		}
	}
	return bk, nil
}

func (v *Venue) MarketLimits(_ context.Context, _ string) (venue.MarketLimits, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.limits, nil
}

// SetLeverage mirrors the strict venue behavior: setting the value already
// in force is rejected with a not-modified reason.
func (v *Venue) SetLeverage(_ context.Context, value int, _ string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if le := v.LeverageReject; le != nil {
		v.LeverageReject = nil
		le.Venue = v.name
		le.Value = value
		return le
	}
	if v.leverage == value {
		return &venue.LeverageError{Venue: v.name, Value: value, Reason: venue.ReasonNotModified, Msg: "leverage not modified"}
	}
	v.leverage = value
	return nil
}

func (v *Venue) PlaceMarketOrder(_ context.Context, symbol string, side venue.Side, qty float64, opts *venue.OrderOptions) (*venue.OrderRef, error) {
	if opts == nil {
		opts = &venue.OrderOptions{}
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if n := v.FailOrders[side]; n > 0 {
		v.FailOrders[side] = n - 1
		return nil, fmt.Errorf("%s: %s order rejected (injected)", v.name, side)
	}
	if qty <= 0 && !opts.ClosePosition {
		return nil, fmt.Errorf("%s: quantity must be positive", v.name)
	}

	v.seq++
	ref := venue.OrderRef{
		ID:            fmt.Sprintf("%s-%d", v.name, v.seq),
		ClientOrderID: opts.ClientOrderID,
		Venue:         v.name,
		Symbol:        symbol,
		Side:          side,
		Quantity:      qty,
		CreateTime:    time.Now().UTC(),
	}
	v.orders = append(v.orders, Fill{Ref: ref, Opts: *opts})

	// Conditional orders rest on the venue; only plain market orders move
	// the position.
	if opts.Bracket == venue.BracketNone {
		key := positionKey{symbol: symbol, side: opts.PositionSide}
		if key.side == "" {
			key.side = venue.PositionBoth
		}
		delta := qty
		if side == venue.Sell {
			delta = -qty
		}
		v.positions[key] += delta
		if math.Abs(v.positions[key]) < 1e-12 {
			delete(v.positions, key)
		}
	}
	return &ref, nil
}

func (v *Venue) OpenPositions(_ context.Context, symbol string) ([]venue.Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []venue.Position
	for key, qty := range v.positions {
		if key.symbol != symbol || qty == 0 {
			continue
		}
		p := venue.Position{Symbol: symbol, Quantity: math.Abs(qty)}
		switch {
		case key.side == venue.PositionLong:
			p.Side = venue.PositionLong
		case key.side == venue.PositionShort:
			p.Side = venue.PositionShort
		case qty > 0:
			p.Side = venue.PositionLong
		default:
			p.Side = venue.PositionShort
		}
		out = append(out, p)
	}
	return out, nil
}

// SetPosition seeds a position outside the order path; qty is signed.
func (v *Venue) SetPosition(symbol string, side venue.PositionSide, qty float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.positions[positionKey{symbol: symbol, side: side}] = qty
}

// Position reports the signed net quantity tracked for a position side.
func (v *Venue) Position(symbol string, side venue.PositionSide) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.positions[positionKey{symbol: symbol, side: side}]
}

// Orders returns a copy of every accepted order in arrival sequence.
func (v *Venue) Orders() []Fill {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Fill, len(v.orders))
	copy(out, v.orders)
	return out
}

// Leverage reports the value last accepted by SetLeverage.
func (v *Venue) Leverage() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.leverage
}
