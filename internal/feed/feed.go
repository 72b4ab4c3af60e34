// Package feed streams mark price and funding updates from the Binance
// futures websocket.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"fundarb-go/internal/metrics"
	"fundarb-go/internal/venue"
)

const defaultBaseURL = "wss://fstream.binance.com"

// MarkTick is one markPriceUpdate event.
type MarkTick struct {
	Symbol          string
	MarkPrice       float64
	IndexPrice      float64
	FundingRate     float64
	NextFundingTime time.Time
	Ts              time.Time
}

type markEnvelope struct {
	Stream string     `json:"stream"`
	Data   markUpdate `json:"data"`
}

type markUpdate struct {
	Symbol          string `json:"s"`
	MarkPrice       string `json:"p"`
	IndexPrice      string `json:"i"`
	FundingRate     string `json:"r"`
	NextFundingTime int64  `json:"T"`
	EventTime       int64  `json:"E"`
}

// Feed subscribes to the markPrice stream for a set of symbols and pushes
// decoded ticks to a channel until the context is cancelled.
type Feed struct {
	BaseURL string
	Symbols []string
	log     zerolog.Logger
}

func New(symbols []string, log zerolog.Logger) *Feed {
	return &Feed{BaseURL: defaultBaseURL, Symbols: symbols, log: log}
}

// Run blocks until ctx is done, reconnecting with capped backoff on errors.
func (f *Feed) Run(ctx context.Context, out chan<- MarkTick) error {
	if len(f.Symbols) == 0 {
		return fmt.Errorf("mark price feed requires at least one symbol")
	}

	streams := make([]string, len(f.Symbols))
	for i, sym := range f.Symbols {
		streams[i] = strings.ToLower(venue.PerpSymbol(sym)) + "@markPrice"
	}
	base := f.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	url := fmt.Sprintf("%s/stream?streams=%s", strings.TrimRight(base, "/"), strings.Join(streams, "/"))

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := f.consume(ctx, url, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn().Err(err).Msg("mark price feed disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

func (f *Feed) consume(ctx context.Context, url string, out chan<- MarkTick) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.log.Info().Strs("symbols", f.Symbols).Msg("connected mark price feed")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					f.log.Warn().Err(err).Msg("feed ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		tick, err := parseMarkTick(message)
		if err != nil {
			f.log.Warn().Err(err).Msg("failed to decode mark price message")
			continue
		}

		select {
		case out <- tick:
			metrics.FundingRate.WithLabelValues("binance", tick.Symbol).Set(tick.FundingRate)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func parseMarkTick(message []byte) (MarkTick, error) {
	var env markEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return MarkTick{}, err
	}
	data := env.Data
	if data.Symbol == "" {
		// Single-stream endpoints deliver the event without the envelope.
		if err := json.Unmarshal(message, &data); err != nil {
			return MarkTick{}, err
		}
	}
	mark, err := strconv.ParseFloat(data.MarkPrice, 64)
	if err != nil {
		return MarkTick{}, fmt.Errorf("mark price: %w", err)
	}
	index, _ := strconv.ParseFloat(data.IndexPrice, 64)
	funding, _ := strconv.ParseFloat(data.FundingRate, 64)
	return MarkTick{
		Symbol:          data.Symbol,
		MarkPrice:       mark,
		IndexPrice:      index,
		FundingRate:     funding,
		NextFundingTime: time.UnixMilli(data.NextFundingTime),
		Ts:              time.UnixMilli(data.EventTime),
	}, nil
}
