package integration

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"fundarb-go/internal/analysis"
	"fundarb-go/internal/execution"
	"fundarb-go/internal/strategy"
	"fundarb-go/internal/venue"
	"fundarb-go/internal/venue/paper"
)

// Exercises the full pipeline on paper venues: fetch market data, size the
// position off the book, then open both legs with brackets.
func TestArbFlow(t *testing.T) {
	const symbol = "ALPACAUSDT"
	book := &venue.OrderBook{
		Symbol: symbol,
		Asks:   []venue.BookLevel{{Price: 100, Amount: 5}, {Price: 101, Amount: 10}},
		Bids:   []venue.BookLevel{{Price: 99.5, Amount: 8}},
	}
	primary := paper.New("bybit", book, -0.0042, venue.MarketLimits{MaxLeverage: 50})
	hedge := paper.New("binance", book, 0.0001, venue.MarketLimits{MaxLeverage: 25})
	log := zerolog.Nop()

	snap, err := analysis.Fetch(context.Background(), log, primary, hedge, symbol, 20)
	if err != nil {
		t.Fatalf("analysis.Fetch: %v", err)
	}
	if snap.FundingSpread() >= 0 {
		t.Fatalf("spread = %v, want negative for this fixture", snap.FundingSpread())
	}

	plan, err := strategy.Build(snap.Primary.Book, 1000)
	if err != nil {
		t.Fatalf("strategy.Build: %v", err)
	}
	if plan.Size != 9.96 || plan.Entry != 100 {
		t.Fatalf("plan = %+v", plan)
	}

	exec := execution.New(primary, hedge, execution.Options{Budget: 1000, Log: log})
	res, err := exec.Execute(context.Background(), symbol, plan, 50, 50)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got := primary.Position(symbol, venue.PositionBoth); got != plan.Size {
		t.Fatalf("primary position = %v, want %v", got, plan.Size)
	}
	if got := hedge.Position(symbol, venue.PositionShort); math.Abs(got+plan.Size) > 1e-9 {
		t.Fatalf("hedge position = %v, want %v", got, -plan.Size)
	}

	if primary.Leverage() != 50 {
		t.Fatalf("primary leverage = %d, want 50", primary.Leverage())
	}
	if hedge.Leverage() != 25 {
		t.Fatalf("hedge leverage = %d, want venue cap 25", hedge.Leverage())
	}
	if res.HedgeLeverage.Effective != 25 {
		t.Fatalf("hedge decision = %+v", res.HedgeLeverage)
	}

	if len(res.Brackets) != 4 {
		t.Fatalf("brackets = %d, want 4", len(res.Brackets))
	}
	for _, b := range res.Brackets {
		if b.Err != nil {
			t.Fatalf("bracket %s/%s failed: %v", b.Leg, b.Kind, b.Err)
		}
	}

	// Hedge brackets mirror the long's prices with inverted triggers.
	var hedgeTP *paper.Fill
	orders := hedge.Orders()
	for i := range orders {
		if orders[i].Opts.Bracket == venue.BracketTakeProfit {
			hedgeTP = &orders[i]
		}
	}
	if hedgeTP == nil {
		t.Fatal("hedge venue missing take-profit order")
	}
	if hedgeTP.Opts.StopPrice != plan.StopLoss || hedgeTP.Opts.Trigger != venue.TriggerBelow {
		t.Fatalf("hedge take-profit = %+v", hedgeTP.Opts)
	}
}

func TestArbFlowDryRun(t *testing.T) {
	const symbol = "ALPACAUSDT"
	book := &venue.OrderBook{
		Symbol: symbol,
		Asks:   []venue.BookLevel{{Price: 100, Amount: 5}, {Price: 101, Amount: 10}},
	}
	primary := paper.New("bybit", book, -0.0042, venue.MarketLimits{MaxLeverage: 50})
	hedge := paper.New("binance", book, 0.0001, venue.MarketLimits{MaxLeverage: 25})
	log := zerolog.Nop()

	snap, err := analysis.Fetch(context.Background(), log, primary, hedge, symbol, 20)
	if err != nil {
		t.Fatalf("analysis.Fetch: %v", err)
	}
	plan, err := strategy.Build(snap.Primary.Book, 1000)
	if err != nil {
		t.Fatalf("strategy.Build: %v", err)
	}

	exec := execution.New(primary, hedge, execution.Options{Budget: 1000, DryRun: true, Log: log})
	res, err := exec.Execute(context.Background(), symbol, plan, 50, 50)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.DryRun || res.PrimaryOrder != nil || res.HedgeOrder != nil {
		t.Fatalf("result = %+v", res)
	}
	if len(primary.Orders()) != 0 || len(hedge.Orders()) != 0 {
		t.Fatal("dry run placed orders")
	}
	if primary.Leverage() != 0 || hedge.Leverage() != 0 {
		t.Fatal("dry run set leverage")
	}
}
