// Command trade opens a delta-neutral funding position: a long leg on Bybit
// hedged by an equal short on Binance futures, each protected by bracket
// orders. With --dry_run it reports the sized plan without touching either
// account.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"fundarb-go/internal/analysis"
	"fundarb-go/internal/config"
	"fundarb-go/internal/execution"
	"fundarb-go/internal/metrics"
	"fundarb-go/internal/strategy"
	"fundarb-go/internal/util"
	"fundarb-go/internal/venue/binance"
	"fundarb-go/internal/venue/bybit"
)

type bracketView struct {
	Leg     string `json:"leg"`
	Kind    string `json:"kind"`
	OrderID string `json:"order_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

type resultView struct {
	Symbol        string           `json:"symbol"`
	DryRun        bool             `json:"dry_run"`
	Plan          strategy.Plan    `json:"plan"`
	FundingSpread float64          `json:"funding_spread"`
	Primary       *resultOrderView `json:"primary_order,omitempty"`
	Hedge         *resultOrderView `json:"hedge_order,omitempty"`
	Leverage      map[string]int   `json:"leverage"`
	HedgeSize     float64          `json:"hedge_size"`
	Brackets      []bracketView    `json:"brackets,omitempty"`
}

type resultOrderView struct {
	ID       string  `json:"id"`
	Venue    string  `json:"venue"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
}

func main() {
	_ = godotenv.Load()

	cfg := config.Default()
	if path := configPath(); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	cfg.ApplyEnv()

	symbol := flag.String("symbol", cfg.Trade.Symbol, "perpetual contract symbol, e.g. ALPACA/USDT:USDT")
	usdt := flag.Float64("usdt_amount", cfg.Trade.USDTAmount, "budget for the long leg in USDT")
	bybitLev := flag.Int("bybit_leverage", cfg.Trade.BybitLeverage, "requested leverage on the long venue")
	binanceLev := flag.Int("binance_leverage", cfg.Trade.BinanceLeverage, "requested leverage on the hedge venue")
	depth := flag.Int("depth", cfg.Trade.BookDepth, "order book depth to size against")
	dryRun := flag.Bool("dry_run", cfg.Trade.DryRun, "compute and report without placing orders")
	flag.String("config", "", "path to a YAML config file (also CONFIG env)")
	flag.Parse()

	log := util.NewLogger(cfg.App.LogLevel)
	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	primary := bybit.New(cfg.Bybit.APIKey, cfg.Bybit.APISecret, cfg.Bybit.BaseURL)
	hedge := binance.New(cfg.Binance.APIKey, cfg.Binance.APISecret, cfg.Binance.BaseURL)

	if !*dryRun {
		if err := hedge.EnableHedgeMode(ctx); err != nil {
			log.Warn().Err(err).Msg("enable hedge mode")
		}
	}

	snap, err := analysis.Fetch(ctx, log, primary, hedge, *symbol, *depth)
	if err != nil {
		log.Fatal().Err(err).Msg("market data")
	}

	plan, err := strategy.Build(snap.Primary.Book, *usdt)
	if err != nil {
		log.Fatal().Err(err).Str("symbol", *symbol).Msg("size position")
	}
	log.Info().
		Float64("size", plan.Size).
		Float64("entry", plan.Entry).
		Float64("stop_loss", plan.StopLoss).
		Float64("take_profit", plan.TakeProfit).
		Msg("trade plan")

	exec := execution.New(primary, hedge, execution.Options{
		Budget: *usdt,
		DryRun: *dryRun,
		Log:    log,
	})
	res, err := exec.Execute(ctx, *symbol, plan, *bybitLev, *binanceLev)
	if err != nil {
		log.Fatal().Err(err).Msg("execute")
	}

	view := resultView{
		Symbol:        *symbol,
		DryRun:        res.DryRun,
		Plan:          plan,
		FundingSpread: snap.FundingSpread(),
		Leverage: map[string]int{
			primary.Name(): res.PrimaryLeverage.Effective,
			hedge.Name():   res.HedgeLeverage.Effective,
		},
		HedgeSize: res.HedgeSizing.Effective,
	}
	if res.PrimaryOrder != nil {
		view.Primary = &resultOrderView{
			ID:       res.PrimaryOrder.ID,
			Venue:    res.PrimaryOrder.Venue,
			Side:     string(res.PrimaryOrder.Side),
			Quantity: res.PrimaryOrder.Quantity,
		}
	}
	if res.HedgeOrder != nil {
		view.Hedge = &resultOrderView{
			ID:       res.HedgeOrder.ID,
			Venue:    res.HedgeOrder.Venue,
			Side:     string(res.HedgeOrder.Side),
			Quantity: res.HedgeOrder.Quantity,
		}
	}
	for _, b := range res.Brackets {
		bv := bracketView{Leg: string(b.Leg), Kind: string(b.Kind)}
		if b.Ref != nil {
			bv.OrderID = b.Ref.ID
		}
		if b.Err != nil {
			bv.Error = b.Err.Error()
		}
		view.Brackets = append(view.Brackets, bv)
	}

	out, _ := json.MarshalIndent(view, "", "  ")
	fmt.Println(string(out))
}

// configPath resolves -config ahead of flag.Parse so the file can seed the
// flag defaults.
func configPath() string {
	for i, arg := range os.Args[1:] {
		if arg == "-config" || arg == "--config" {
			rest := os.Args[i+2:]
			if len(rest) > 0 {
				return rest[0]
			}
			return ""
		}
		for _, prefix := range []string{"-config=", "--config="} {
			if strings.HasPrefix(arg, prefix) {
				return arg[len(prefix):]
			}
		}
	}
	if path := os.Getenv("CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}
