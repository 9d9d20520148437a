// Package metrics provides Prometheus instrumentation for the vault engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DepositsTotal counts accepted deposits.
	DepositsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vault_deposits_total",
		Help: "Total number of accepted deposits",
	})

	// RedeemsTotal counts accepted redemptions.
	RedeemsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vault_redeems_total",
		Help: "Total number of accepted redemptions",
	})

	// RejectionsTotal counts rejected operations, partitioned by reason.
	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_rejections_total",
		Help: "Operations rejected by validation or safety policy",
	}, []string{"op", "reason"})

	// HarvestsTotal counts fee harvests that minted shares.
	HarvestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vault_harvests_total",
		Help: "Total number of fee harvests that minted fee shares",
	})

	// RebalancesTotal counts completed rebalances.
	RebalancesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vault_rebalances_total",
		Help: "Total number of completed rebalances",
	})

	// TVL tracks total assets under management.
	TVL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vault_tvl",
		Help: "Total assets under management",
	})

	// SharePrice tracks the current share price.
	SharePrice = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vault_share_price",
		Help: "Current share price (total assets / total shares)",
	})

	// HealthFactorBps tracks the hedge position health factor.
	HealthFactorBps = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vault_health_factor_bps",
		Help: "Hedge position health factor in basis points",
	})

	// ReserveBalance tracks the reserve fund balance.
	ReserveBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vault_reserve_balance",
		Help: "Reserve fund balance",
	})

	// YieldBorrowed tracks the reserve fund's outstanding yield debt.
	YieldBorrowed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vault_yield_borrowed",
		Help: "Reserve fund outstanding yield debt",
	})

	// JournalErrors counts post-commit journal write failures.
	JournalErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vault_journal_errors_total",
		Help: "Post-commit store write failures (logged, not fatal)",
	})

	// OperationLatency tracks mutating operation latency by kind.
	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vault_operation_latency_seconds",
		Help:    "Mutating operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vault_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vault_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the API surface is small and
		// fixed, so cardinality stays bounded.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
