package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type gatewayMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// SettlementMetrics tracks settlement activity across the engines.
type SettlementMetrics struct {
	trades        *prometheus.CounterVec
	swaps         *prometheus.CounterVec
	venueCalls    *prometheus.CounterVec
	venueFailures *prometheus.CounterVec
}

var (
	gatewayMetricsOnce sync.Once
	gatewayRegistry    *gatewayMetrics

	settlementMetricsOnce sync.Once
	settlementRegistry    *SettlementMetrics
)

// GatewayMetrics returns the lazily-initialised metrics registry used to
// record HTTP gateway activity.
func GatewayMetrics() *gatewayMetrics {
	gatewayMetricsOnce.Do(func() {
		gatewayRegistry = &gatewayMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "settlenet",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total gateway requests segmented by route and outcome.",
			}, []string{"route", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "settlenet",
				Subsystem: "gateway",
				Name:      "errors_total",
				Help:      "Total gateway errors segmented by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "settlenet",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for gateway handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "settlenet",
				Subsystem: "gateway",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"route", "reason"}),
		}
		prometheus.MustRegister(
			gatewayRegistry.requests,
			gatewayRegistry.errors,
			gatewayRegistry.latency,
			gatewayRegistry.throttles,
		)
	})
	return gatewayRegistry
}

// Observe records the outcome of a gateway request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *gatewayMetrics) Observe(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied route and
// reason. Reasons should be stable strings such as "rate_limit" so dashboards
// and alerts remain consistent.
func (m *gatewayMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(route, reason).Inc()
}

// Settlement returns the lazily-initialised settlement metrics registry.
func Settlement() *SettlementMetrics {
	settlementMetricsOnce.Do(func() {
		settlementRegistry = &SettlementMetrics{
			trades: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "settlenet",
				Subsystem: "broker",
				Name:      "trades_total",
				Help:      "Settled trade batches segmented by kind and outcome.",
			}, []string{"kind", "outcome"}),
			swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "settlenet",
				Subsystem: "swap",
				Name:      "operations_total",
				Help:      "Swap state transitions segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			venueCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "settlenet",
				Subsystem: "broker",
				Name:      "venue_calls_total",
				Help:      "External venue executions segmented by venue.",
			}, []string{"venue"}),
			venueFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "settlenet",
				Subsystem: "broker",
				Name:      "venue_failures_total",
				Help:      "External venue failures segmented by venue and reason.",
			}, []string{"venue", "reason"}),
		}
		prometheus.MustRegister(
			settlementRegistry.trades,
			settlementRegistry.swaps,
			settlementRegistry.venueCalls,
			settlementRegistry.venueFailures,
		)
	})
	return settlementRegistry
}

// RecordTrade counts one settled or rejected trade batch.
func (m *SettlementMetrics) RecordTrade(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.trades.WithLabelValues(kind, outcome).Inc()
}

// RecordSwap counts one swap state transition attempt.
func (m *SettlementMetrics) RecordSwap(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.swaps.WithLabelValues(operation, outcome).Inc()
}

// RecordVenueCall counts one external venue execution.
func (m *SettlementMetrics) RecordVenueCall(venue string, err error) {
	if m == nil {
		return
	}
	if venue == "" {
		venue = "unknown"
	}
	m.venueCalls.WithLabelValues(venue).Inc()
	if err != nil {
		m.venueFailures.WithLabelValues(venue, "execute").Inc()
	}
}
