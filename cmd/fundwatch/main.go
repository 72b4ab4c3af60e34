// Command fundwatch tails mark price and funding updates for a set of
// symbols from the Binance futures stream and exports them as metrics.
package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"fundarb-go/internal/feed"
	"fundarb-go/internal/metrics"
	"fundarb-go/internal/util"
)

func main() {
	_ = godotenv.Load()

	symbols := flag.String("symbols", "ALPACA/USDT:USDT", "comma-separated perpetual symbols")
	metricsAddr := flag.String("metrics_addr", ":9110", "prometheus listen address")
	logLevel := flag.String("log_level", "info", "zerolog level")
	flag.Parse()

	log := util.NewLogger(*logLevel)
	if *metricsAddr != "" {
		_ = metrics.Serve(*metricsAddr)
		log.Info().Str("addr", *metricsAddr).Msg("metrics up")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	list := strings.Split(*symbols, ",")
	for i := range list {
		list[i] = strings.TrimSpace(list[i])
	}

	f := feed.New(list, log)
	ticks := make(chan feed.MarkTick, 256)
	go func() {
		if err := f.Run(ctx, ticks); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("feed stopped")
			cancel()
		}
	}()

	log.Info().Strs("symbols", list).Msg("funding watch started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return
		case tk := <-ticks:
			log.Info().
				Str("symbol", tk.Symbol).
				Float64("mark", tk.MarkPrice).
				Float64("funding", tk.FundingRate).
				Time("next_funding", tk.NextFundingTime).
				Msg("mark price update")
		}
	}
}
