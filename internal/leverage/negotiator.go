// Package leverage reconciles a requested leverage with venue-imposed limits
// and applies it with non-fatal fallback handling.
package leverage

import (
	"context"

	"github.com/rs/zerolog"

	"fundarb-go/internal/metrics"
	"fundarb-go/internal/venue"
)

// Decision records a leverage negotiation for one venue.
type Decision struct {
	Requested  int `json:"requested"`
	MaxAllowed int `json:"max_allowed"`
	Effective  int `json:"effective"`
}

// Negotiate computes the effective leverage without touching the venue.
// MaxAllowed == 0 means the venue reported no tighter limit, so the request
// stands.
func Negotiate(requested int, limits venue.MarketLimits) Decision {
	d := Decision{Requested: requested, MaxAllowed: limits.MaxLeverage, Effective: requested}
	if limits.MaxLeverage > 0 && limits.MaxLeverage < requested {
		d.Effective = limits.MaxLeverage
	}
	return d
}

// Negotiator applies leverage decisions to venues. Rejections never abort a
// run: a benign no-op counts as success, an invalid value is retried once at
// the venue maximum, anything else is logged and the run continues degraded.
type Negotiator struct {
	log zerolog.Logger
}

func NewNegotiator(log zerolog.Logger) *Negotiator { return &Negotiator{log: log} }

// Apply fetches the venue's market limits, negotiates, and attempts to set
// the effective leverage. The returned decision reflects the last value
// attempted on the venue.
func (n *Negotiator) Apply(ctx context.Context, conn venue.Connector, symbol string, requested int) Decision {
	limits, err := conn.MarketLimits(ctx, symbol)
	if err != nil {
		n.log.Warn().Err(err).Str("venue", conn.Name()).Str("symbol", symbol).
			Msg("market limits unavailable, using requested leverage")
	}
	dec := Negotiate(requested, limits)
	n.log.Info().Str("venue", conn.Name()).Int("requested", dec.Requested).
		Int("max", dec.MaxAllowed).Int("effective", dec.Effective).Msg("setting leverage")

	err = conn.SetLeverage(ctx, dec.Effective, symbol)
	if err == nil {
		return dec
	}

	le, ok := venue.AsLeverageError(err)
	if !ok {
		metrics.LeverageRejections.WithLabelValues(conn.Name(), venue.ReasonOther.String()).Inc()
		n.log.Warn().Err(err).Str("venue", conn.Name()).Msg("set leverage failed")
		return dec
	}
	metrics.LeverageRejections.WithLabelValues(conn.Name(), le.Reason.String()).Inc()

	switch le.Reason {
	case venue.ReasonNotModified:
		n.log.Info().Str("venue", conn.Name()).Int("leverage", dec.Effective).Msg("leverage already set")
	case venue.ReasonInvalidValue:
		if dec.MaxAllowed <= 0 {
			n.log.Warn().Err(err).Str("venue", conn.Name()).Msg("leverage invalid with no venue maximum to fall back to")
			return dec
		}
		n.log.Warn().Str("venue", conn.Name()).Int("rejected", dec.Effective).
			Int("retry", dec.MaxAllowed).Msg("leverage invalid, retrying at venue maximum")
		dec.Effective = dec.MaxAllowed
		if rerr := conn.SetLeverage(ctx, dec.Effective, symbol); rerr != nil {
			if le2, ok := venue.AsLeverageError(rerr); !ok || le2.Reason != venue.ReasonNotModified {
				n.log.Warn().Err(rerr).Str("venue", conn.Name()).
					Int("leverage", dec.Effective).Msg("retry at venue maximum failed")
			}
		}
	default:
		n.log.Warn().Err(err).Str("venue", conn.Name()).Msg("set leverage rejected")
	}
	return dec
}
