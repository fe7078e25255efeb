// Package metricsobs exposes Prometheus metrics for the execution core's
// hot paths: gateway call volume/latency, rate-limiter rejections,
// reconciliation divergence, and execution-strategy outcomes. It is
// grounded on metrics.go's package-level CounterVec/GaugeVec-plus-helper
// idiom, relabeled from that bot's paper/live trading metrics to this
// core's broker-gateway and strategy vocabulary.
package metricsobs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	gatewayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execcore_gateway_calls_total",
		Help: "Broker gateway calls by method and outcome.",
	}, []string{"method", "outcome"})

	gatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "execcore_gateway_call_duration_seconds",
		Help:    "Broker gateway call latency by method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	rateLimiterRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "execcore_rate_limited_total",
		Help: "Gateway calls that failed with RATE_LIMITED.",
	})

	reconciliationDivergence = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execcore_reconciliation_divergence_total",
		Help: "Reconciliation divergences by kind (size_mismatch, phantom_local, unknown_broker).",
	}, []string{"kind"})

	strategyOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execcore_strategy_outcomes_total",
		Help: "Execution strategy terminal outcomes by strategy and status.",
	}, []string{"strategy", "status"})

	openPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "execcore_open_positions",
		Help: "Current number of open positions.",
	})

	currentPhase = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "execcore_phase",
		Help: "Currently active phase number.",
	})
)

// ObserveGatewayCall records a broker gateway call's outcome and latency.
// Wire this via broker.Gateway.OnCall.
func ObserveGatewayCall(method string, err error, took time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	gatewayCalls.WithLabelValues(method, outcome).Inc()
	gatewayLatency.WithLabelValues(method).Observe(took.Seconds())
}

func IncRateLimited()                       { rateLimiterRejections.Inc() }
func IncReconciliationDivergence(kind string) { reconciliationDivergence.WithLabelValues(kind).Inc() }
func IncStrategyOutcome(strategy, status string) {
	strategyOutcomes.WithLabelValues(strategy, status).Inc()
}
func SetOpenPositions(n int) { openPositions.Set(float64(n)) }
func SetCurrentPhase(phase int) { currentPhase.Set(float64(phase)) }

// Handler returns the Prometheus scrape endpoint handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
