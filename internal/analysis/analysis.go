// Package analysis gathers the market data a trade decision needs from
// both venues: funding rates and order books.
package analysis

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"fundarb-go/internal/metrics"
	"fundarb-go/internal/venue"
)

const defaultDepth = 20

// VenueSnapshot holds one venue's view of the symbol.
type VenueSnapshot struct {
	Venue   string           `json:"venue"`
	Funding float64          `json:"funding"`
	Book    *venue.OrderBook `json:"-"`
}

// Snapshot pairs the primary and hedge venue views.
type Snapshot struct {
	Symbol  string        `json:"symbol"`
	Primary VenueSnapshot `json:"primary"`
	Hedge   VenueSnapshot `json:"hedge"`
}

// FundingSpread is primary funding minus hedge funding. A negative primary
// rate with a positive hedge rate widens the spread the strategy collects.
func (s Snapshot) FundingSpread() float64 {
	return s.Primary.Funding - s.Hedge.Funding
}

// Fetch collects funding and books from both venues. Order book failures
// are fatal since sizing depends on them; funding failures only lose the
// informational spread and log a warning.
func Fetch(ctx context.Context, log zerolog.Logger, primary, hedge venue.Connector, symbol string, depth int) (*Snapshot, error) {
	if depth <= 0 {
		depth = defaultDepth
	}
	snap := &Snapshot{Symbol: symbol}

	var err error
	snap.Primary, err = fetchVenue(ctx, log, primary, symbol, depth)
	if err != nil {
		return nil, err
	}
	snap.Hedge, err = fetchVenue(ctx, log, hedge, symbol, depth)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("symbol", symbol).
		Float64(snap.Primary.Venue+"_funding", snap.Primary.Funding).
		Float64(snap.Hedge.Venue+"_funding", snap.Hedge.Funding).
		Float64("spread", snap.FundingSpread()).
		Msg("funding snapshot")
	return snap, nil
}

func fetchVenue(ctx context.Context, log zerolog.Logger, conn venue.Connector, symbol string, depth int) (VenueSnapshot, error) {
	vs := VenueSnapshot{Venue: conn.Name()}

	funding, err := conn.FundingRate(ctx, symbol)
	if err != nil {
		log.Warn().Err(err).Str("venue", vs.Venue).Str("symbol", symbol).Msg("funding rate unavailable")
	} else {
		vs.Funding = funding
		metrics.FundingRate.WithLabelValues(vs.Venue, venue.PerpSymbol(symbol)).Set(funding)
	}

	vs.Book, err = conn.FetchOrderBook(ctx, symbol, depth)
	if err != nil {
		return vs, fmt.Errorf("%s order book: %w", vs.Venue, err)
	}
	return vs, nil
}
