// Package execution sequences one hedged entry across two venues: leverage
// negotiation, the primary long, the hedge short with recovery, and the four
// protective bracket orders. Calls are strictly sequential: primary before
// hedge, both legs before any bracket.
package execution

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fundarb-go/internal/hedge"
	"fundarb-go/internal/leverage"
	"fundarb-go/internal/metrics"
	"fundarb-go/internal/strategy"
	"fundarb-go/internal/venue"
)

// Leg names which side of the trade a bracket protects.
type Leg string

const (
	LegPrimary Leg = "primary"
	LegHedge   Leg = "hedge"
)

// BracketKind names the protective order flavor from the leg's point of view.
type BracketKind string

const (
	KindStopLoss   BracketKind = "stop_loss"
	KindTakeProfit BracketKind = "take_profit"
)

// BracketOutcome is the per-order result of the best-effort bracket phase.
type BracketOutcome struct {
	Leg  Leg
	Kind BracketKind
	Ref  *venue.OrderRef
	Err  error
}

// Result aggregates one execution. A nil HedgeOrder means the hedge leg was
// not established and the primary leg stands unhedged.
type Result struct {
	PrimaryOrder    *venue.OrderRef
	HedgeOrder      *venue.OrderRef
	PrimaryLeverage leverage.Decision
	HedgeLeverage   leverage.Decision
	HedgeSizing     hedge.Sizing
	Brackets        []BracketOutcome
	DryRun          bool
}

// Options tunes an Executor.
type Options struct {
	// Budget is the quote notional intended for execution; when <= 0 the
	// hedge sizing falls back to plan size times entry.
	Budget float64
	// DryRun logs every intended action and places nothing.
	DryRun bool
	Log    zerolog.Logger
}

// Executor runs one hedged entry: long on the primary venue, short on the
// hedge venue.
type Executor struct {
	primary   venue.Connector
	hedgeConn venue.Connector
	neg       *leverage.Negotiator
	budget    float64
	dryRun    bool
	log       zerolog.Logger
}

// New wires an executor over the two venue connectors.
func New(primary, hedgeVenue venue.Connector, opts Options) *Executor {
	return &Executor{
		primary:   primary,
		hedgeConn: hedgeVenue,
		neg:       leverage.NewNegotiator(opts.Log),
		budget:    opts.Budget,
		dryRun:    opts.DryRun,
		log:       opts.Log,
	}
}

// Execute runs the full sequence for one plan. Only a primary-leg rejection
// is fatal; every later failure degrades the result instead of aborting.
func (e *Executor) Execute(ctx context.Context, symbol string, plan strategy.Plan, primaryLev, hedgeLev int) (*Result, error) {
	res := &Result{DryRun: e.dryRun}

	if e.dryRun {
		res.PrimaryLeverage = e.negotiateReadOnly(ctx, e.primary, symbol, primaryLev)
		res.HedgeLeverage = e.negotiateReadOnly(ctx, e.hedgeConn, symbol, hedgeLev)
	} else {
		res.PrimaryLeverage = e.neg.Apply(ctx, e.primary, symbol, primaryLev)
		res.HedgeLeverage = e.neg.Apply(ctx, e.hedgeConn, symbol, hedgeLev)
	}

	res.HedgeSizing = hedge.Compute(plan.Size, plan.Entry, res.HedgeLeverage.Effective, e.budget)
	e.log.Info().Str("venue", e.hedgeConn.Name()).Float64("target", res.HedgeSizing.Target).
		Float64("max_affordable", res.HedgeSizing.MaxAffordable).
		Float64("effective", res.HedgeSizing.Effective).Msg("hedge sizing")

	if e.dryRun {
		e.logDryRun(symbol, plan, res)
		return res, nil
	}

	// Primary leg. Nothing is open yet, so a rejection aborts the run.
	ref, err := e.marketOrder(ctx, e.primary, symbol, venue.Buy, plan.Size, &venue.OrderOptions{})
	if err != nil {
		return nil, fmt.Errorf("primary leg %s: %w", e.primary.Name(), err)
	}
	res.PrimaryOrder = ref

	res.HedgeOrder = e.placeHedge(ctx, symbol, res.HedgeSizing.Effective)
	res.Brackets = e.placeBrackets(ctx, symbol, plan, res)
	return res, nil
}

func (e *Executor) negotiateReadOnly(ctx context.Context, conn venue.Connector, symbol string, requested int) leverage.Decision {
	limits, err := conn.MarketLimits(ctx, symbol)
	if err != nil {
		e.log.Warn().Err(err).Str("venue", conn.Name()).Msg("market limits unavailable")
	}
	return leverage.Negotiate(requested, limits)
}

func (e *Executor) marketOrder(ctx context.Context, conn venue.Connector, symbol string, side venue.Side, qty float64, opts *venue.OrderOptions) (*venue.OrderRef, error) {
	if opts == nil {
		opts = &venue.OrderOptions{}
	}
	if opts.ClientOrderID == "" {
		opts.ClientOrderID = uuid.NewString()
	}
	ref, err := conn.PlaceMarketOrder(ctx, symbol, side, qty, opts)
	if err != nil {
		metrics.OrderFailures.WithLabelValues(conn.Name(), string(side)).Inc()
		return nil, err
	}
	metrics.OrdersTotal.WithLabelValues(conn.Name(), string(side)).Inc()
	e.log.Info().Str("venue", conn.Name()).Str("side", string(side)).
		Float64("qty", qty).Str("order_id", ref.ID).Msg("order placed")
	return ref, nil
}

// placeHedge submits the short and, on rejection, flattens any conflicting
// long exposure before one retry. The primary leg is left standing when the
// hedge cannot be established.
func (e *Executor) placeHedge(ctx context.Context, symbol string, qty float64) *venue.OrderRef {
	short := &venue.OrderOptions{PositionSide: venue.PositionShort}
	ref, err := e.marketOrder(ctx, e.hedgeConn, symbol, venue.Sell, qty, short)
	if err == nil {
		return ref
	}
	e.log.Warn().Err(err).Str("venue", e.hedgeConn.Name()).
		Msg("hedge order rejected, checking for conflicting exposure")

	positions, perr := e.hedgeConn.OpenPositions(ctx, symbol)
	if perr != nil {
		e.log.Warn().Err(perr).Str("venue", e.hedgeConn.Name()).
			Msg("position lookup failed, hedge leg abandoned")
		return nil
	}
	var longQty float64
	for _, p := range positions {
		if p.Symbol == symbol && p.Side == venue.PositionLong && p.Quantity > 0 {
			longQty = p.Quantity
			break
		}
	}
	if longQty <= 0 {
		e.log.Warn().Str("venue", e.hedgeConn.Name()).
			Msg("no conflicting long found, hedge leg abandoned")
		return nil
	}

	e.log.Info().Float64("qty", longQty).Str("venue", e.hedgeConn.Name()).
		Msg("closing conflicting long before hedge retry")
	if _, err := e.marketOrder(ctx, e.hedgeConn, symbol, venue.Sell, longQty, &venue.OrderOptions{PositionSide: venue.PositionBoth}); err != nil {
		e.log.Warn().Err(err).Msg("failed to close conflicting long, hedge leg abandoned")
		return nil
	}
	ref, err = e.marketOrder(ctx, e.hedgeConn, symbol, venue.Sell, qty, &venue.OrderOptions{PositionSide: venue.PositionShort})
	if err != nil {
		e.log.Warn().Err(err).Msg("hedge retry failed, hedge leg abandoned")
		return nil
	}
	return ref
}

// placeBrackets issues the four protective orders independently; a failure
// on one never blocks the others. Without a hedge position the hedge-venue
// brackets are skipped entirely.
func (e *Executor) placeBrackets(ctx context.Context, symbol string, plan strategy.Plan, res *Result) []BracketOutcome {
	out := make([]BracketOutcome, 0, 4)
	out = append(out, e.bracket(ctx, e.primary, LegPrimary, KindStopLoss, symbol, venue.Sell, plan.Size, &venue.OrderOptions{
		Bracket:       venue.BracketStop,
		StopPrice:     plan.StopLoss,
		Trigger:       venue.TriggerBelow,
		ClosePosition: true,
	}))
	out = append(out, e.bracket(ctx, e.primary, LegPrimary, KindTakeProfit, symbol, venue.Sell, plan.Size, &venue.OrderOptions{
		Bracket:       venue.BracketTakeProfit,
		StopPrice:     plan.TakeProfit,
		Trigger:       venue.TriggerAbove,
		ClosePosition: true,
	}))
	if res.HedgeOrder == nil {
		e.log.Warn().Str("venue", e.hedgeConn.Name()).Msg("no hedge position, skipping hedge brackets")
		return out
	}

	// The short's exits are buys with inverted triggers: its take-profit
	// sits at the long's stop price and its stop at the long's take price.
	qty := res.HedgeSizing.Effective
	out = append(out, e.bracket(ctx, e.hedgeConn, LegHedge, KindTakeProfit, symbol, venue.Buy, qty, &venue.OrderOptions{
		Bracket:       venue.BracketTakeProfit,
		StopPrice:     plan.StopLoss,
		Trigger:       venue.TriggerBelow,
		PositionSide:  venue.PositionShort,
		ClosePosition: true,
	}))
	out = append(out, e.bracket(ctx, e.hedgeConn, LegHedge, KindStopLoss, symbol, venue.Buy, qty, &venue.OrderOptions{
		Bracket:       venue.BracketStop,
		StopPrice:     plan.TakeProfit,
		Trigger:       venue.TriggerAbove,
		PositionSide:  venue.PositionShort,
		ClosePosition: true,
	}))
	return out
}

func (e *Executor) bracket(ctx context.Context, conn venue.Connector, leg Leg, kind BracketKind, symbol string, side venue.Side, qty float64, opts *venue.OrderOptions) BracketOutcome {
	opts.ClientOrderID = uuid.NewString()
	ref, err := conn.PlaceMarketOrder(ctx, symbol, side, qty, opts)
	outcome := BracketOutcome{Leg: leg, Kind: kind, Ref: ref, Err: err}
	if err != nil {
		metrics.BracketsTotal.WithLabelValues(conn.Name(), string(kind), "failure").Inc()
		e.log.Warn().Err(err).Str("venue", conn.Name()).Str("leg", string(leg)).
			Str("kind", string(kind)).Msg("bracket order failed")
		return outcome
	}
	metrics.BracketsTotal.WithLabelValues(conn.Name(), string(kind), "success").Inc()
	e.log.Info().Str("venue", conn.Name()).Str("leg", string(leg)).Str("kind", string(kind)).
		Float64("trigger", opts.StopPrice).Str("order_id", ref.ID).Msg("bracket order placed")
	return outcome
}

func (e *Executor) logDryRun(symbol string, plan strategy.Plan, res *Result) {
	e.log.Info().Str("symbol", symbol).Float64("size", plan.Size).
		Str("primary", e.primary.Name()).Str("hedge", e.hedgeConn.Name()).
		Msg("dry-run: would open long on primary and short on hedge")
	e.log.Info().Float64("entry", plan.Entry).Float64("stop_loss", plan.StopLoss).
		Float64("take_profit", plan.TakeProfit).Msg("dry-run: plan levels")
	e.log.Info().Float64("qty", res.HedgeSizing.Effective).
		Msg("dry-run: would short hedge venue at effective size")
	e.log.Info().Float64("trigger", plan.StopLoss).Msg("dry-run: would set primary stop-loss")
	e.log.Info().Float64("trigger", plan.TakeProfit).Msg("dry-run: would set primary take-profit")
	e.log.Info().Float64("trigger", plan.StopLoss).Msg("dry-run: would set hedge take-profit")
	e.log.Info().Float64("trigger", plan.TakeProfit).Msg("dry-run: would set hedge stop-loss")
}
