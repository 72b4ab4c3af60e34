// Package metrics registers the process counters and serves /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Market orders accepted by a venue"},
		[]string{"venue", "side"},
	)
	OrderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "order_failures_total", Help: "Market orders rejected by a venue"},
		[]string{"venue", "side"},
	)
	BracketsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bracket_orders_total", Help: "Protective order placements by outcome"},
		[]string{"venue", "kind", "outcome"},
	)
	LeverageRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "leverage_rejections_total", Help: "Leverage calls rejected, by typed reason"},
		[]string{"venue", "reason"},
	)
	FundingRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "funding_rate", Help: "Last observed funding rate per venue and symbol"},
		[]string{"venue", "symbol"},
	)
)

func init() {
	prometheus.MustRegister(OrdersTotal, OrderFailures, BracketsTotal, LeverageRejections, FundingRate)
}

// Serve exposes /metrics plus a health probe on addr in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
