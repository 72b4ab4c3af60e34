package paper

import (
	"context"
	"testing"

	"fundarb-go/internal/venue"
)

func newTestVenue() *Venue {
	book := &venue.OrderBook{
		Asks: []venue.BookLevel{{Price: 100, Amount: 5}, {Price: 101, Amount: 10}},
		Bids: []venue.BookLevel{{Price: 99.9, Amount: 4}},
	}
	return New("paper", book, 0.0001, venue.MarketLimits{MaxLeverage: 50})
}

func TestMarketOrdersMovePositions(t *testing.T) {
	v := newTestVenue()
	ctx := context.Background()

	if _, err := v.PlaceMarketOrder(ctx, "BTCUSDT", venue.Buy, 2, nil); err != nil {
		t.Fatalf("buy returned error: %v", err)
	}
	if got := v.Position("BTCUSDT", venue.PositionBoth); got != 2 {
		t.Fatalf("net position = %v, want 2", got)
	}

	short := &venue.OrderOptions{PositionSide: venue.PositionShort}
	if _, err := v.PlaceMarketOrder(ctx, "BTCUSDT", venue.Sell, 1.5, short); err != nil {
		t.Fatalf("short returned error: %v", err)
	}
	if got := v.Position("BTCUSDT", venue.PositionShort); got != -1.5 {
		t.Fatalf("short position = %v, want -1.5", got)
	}
	// The untagged long is untouched by the dual-side short.
	if got := v.Position("BTCUSDT", venue.PositionBoth); got != 2 {
		t.Fatalf("net position = %v, want 2", got)
	}
}

func TestBracketOrdersDoNotMovePositions(t *testing.T) {
	v := newTestVenue()
	opts := &venue.OrderOptions{
		Bracket:       venue.BracketStop,
		StopPrice:     99,
		Trigger:       venue.TriggerBelow,
		ClosePosition: true,
	}
	if _, err := v.PlaceMarketOrder(context.Background(), "BTCUSDT", venue.Sell, 2, opts); err != nil {
		t.Fatalf("bracket returned error: %v", err)
	}
	if got := v.Position("BTCUSDT", venue.PositionBoth); got != 0 {
		t.Fatalf("bracket moved the position: %v", got)
	}
	if orders := v.Orders(); len(orders) != 1 || orders[0].Opts.Bracket != venue.BracketStop {
		t.Fatalf("bracket order not recorded: %+v", orders)
	}
}

func TestInjectedOrderFailure(t *testing.T) {
	v := newTestVenue()
	v.FailOrders[venue.Sell] = 1

	if _, err := v.PlaceMarketOrder(context.Background(), "BTCUSDT", venue.Sell, 1, nil); err == nil {
		t.Fatalf("expected injected rejection")
	}
	if _, err := v.PlaceMarketOrder(context.Background(), "BTCUSDT", venue.Sell, 1, nil); err != nil {
		t.Fatalf("second sell should pass: %v", err)
	}
}

func TestSetLeverageNotModified(t *testing.T) {
	v := newTestVenue()
	ctx := context.Background()

	if err := v.SetLeverage(ctx, 20, "BTCUSDT"); err != nil {
		t.Fatalf("first set returned error: %v", err)
	}
	err := v.SetLeverage(ctx, 20, "BTCUSDT")
	le, ok := venue.AsLeverageError(err)
	if !ok || le.Reason != venue.ReasonNotModified {
		t.Fatalf("expected not-modified rejection, got %v", err)
	}
	if v.Leverage() != 20 {
		t.Fatalf("leverage = %d, want 20", v.Leverage())
	}
}

func TestOpenPositionsReportsSides(t *testing.T) {
	v := newTestVenue()
	v.SetPosition("BTCUSDT", venue.PositionBoth, 2.5)
	v.SetPosition("BTCUSDT", venue.PositionShort, -1)
	v.SetPosition("ETHUSDT", venue.PositionBoth, 9)

	positions, err := v.OpenPositions(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("OpenPositions returned error: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("expected 2 positions for BTCUSDT, got %+v", positions)
	}
	var sawLong, sawShort bool
	for _, p := range positions {
		switch p.Side {
		case venue.PositionLong:
			sawLong = true
			if p.Quantity != 2.5 {
				t.Fatalf("long quantity = %v, want 2.5", p.Quantity)
			}
		case venue.PositionShort:
			sawShort = true
			if p.Quantity != 1 {
				t.Fatalf("short quantity = %v, want 1", p.Quantity)
			}
		}
	}
	if !sawLong || !sawShort {
		t.Fatalf("missing side in %+v", positions)
	}
}

func TestFetchOrderBookDepthTrim(t *testing.T) {
	v := newTestVenue()
	bk, err := v.FetchOrderBook(context.Background(), "BTCUSDT", 1)
	if err != nil {
		t.Fatalf("FetchOrderBook returned error: %v", err)
	}
	if len(bk.Asks) != 1 || bk.Asks[0].Price != 100 {
		t.Fatalf("depth trim failed: %+v", bk.Asks)
	}
}
