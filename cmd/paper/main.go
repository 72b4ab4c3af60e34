// Command paper runs the full open-position pipeline against in-memory
// venues, useful for demoing the hedge soft-fail and recovery paths without
// exchange credentials.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"fundarb-go/internal/analysis"
	"fundarb-go/internal/execution"
	"fundarb-go/internal/strategy"
	"fundarb-go/internal/util"
	"fundarb-go/internal/venue"
	"fundarb-go/internal/venue/paper"
)

func main() {
	budget := flag.Float64("usdt_amount", 1000, "budget for the long leg in USDT")
	failHedge := flag.Int("fail_hedge", 0, "reject the first N hedge sells to demo recovery and soft-fail")
	conflict := flag.Float64("conflict_long", 0, "seed a pre-existing long on the hedge venue")
	logLevel := flag.String("log_level", "debug", "zerolog level")
	flag.Parse()

	log := util.NewLogger(*logLevel)
	ctx := context.Background()

	const symbol = "ALPACAUSDT"
	book := &venue.OrderBook{
		Symbol: symbol,
		Asks:   []venue.BookLevel{{Price: 100, Amount: 5}, {Price: 101, Amount: 10}},
		Bids:   []venue.BookLevel{{Price: 99.5, Amount: 8}},
	}
	primary := paper.New("bybit", book, -0.0042, venue.MarketLimits{MaxLeverage: 50})
	hedge := paper.New("binance", book, 0.0001, venue.MarketLimits{MaxLeverage: 25})
	if *failHedge > 0 {
		hedge.FailOrders[venue.Sell] = *failHedge
	}
	if *conflict > 0 {
		hedge.SetPosition(symbol, venue.PositionBoth, *conflict)
	}

	snap, err := analysis.Fetch(ctx, log, primary, hedge, symbol, 20)
	if err != nil {
		log.Fatal().Err(err).Msg("market data")
	}

	plan, err := strategy.Build(snap.Primary.Book, *budget)
	if err != nil {
		log.Fatal().Err(err).Msg("size position")
	}

	exec := execution.New(primary, hedge, execution.Options{Budget: *budget, Log: log})
	res, err := exec.Execute(ctx, symbol, plan, 50, 50)
	if err != nil {
		log.Fatal().Err(err).Msg("execute")
	}

	summary := map[string]any{
		"plan":             plan,
		"funding_spread":   snap.FundingSpread(),
		"primary_position": primary.Position(symbol, venue.PositionBoth),
		"hedge_short":      hedge.Position(symbol, venue.PositionShort),
		"hedge_placed":     res.HedgeOrder != nil,
		"brackets":         len(res.Brackets),
	}
	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))
	if res.HedgeOrder == nil {
		fmt.Fprintln(os.Stderr, "warning: running unhedged, short leg was not opened")
	}
}
