package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type promoMetrics struct {
	instructions *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	errors       *prometheus.CounterVec
	throttles    *prometheus.CounterVec
}

type rpcMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	promoMetricsOnce sync.Once
	promoRegistry    *promoMetrics

	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics
)

// PromoMetrics returns the lazily-initialised registry tracking applied
// ledger instructions.
func PromoMetrics() *promoMetrics {
	promoMetricsOnce.Do(func() {
		promoRegistry = &promoMetrics{
			instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "promo",
				Subsystem: "ledger",
				Name:      "instructions_total",
				Help:      "Total processed instructions segmented by kind and outcome.",
			}, []string{"kind", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "promo",
				Subsystem: "ledger",
				Name:      "instruction_duration_seconds",
				Help:      "Latency distribution for applying one instruction.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"kind"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "promo",
				Subsystem: "ledger",
				Name:      "instruction_errors_total",
				Help:      "Failed instructions segmented by kind and error name.",
			}, []string{"kind", "error"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "promo",
				Subsystem: "ledger",
				Name:      "throttles_total",
				Help:      "Instructions rejected by pause or quota policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			promoRegistry.instructions,
			promoRegistry.latency,
			promoRegistry.errors,
			promoRegistry.throttles,
		)
	})
	return promoRegistry
}

// ObserveInstruction records the outcome of one instruction. errName is the
// stable error name and is ignored on success.
func (m *promoMetrics) ObserveInstruction(kind string, success bool, errName string, duration time.Duration) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	outcome := "success"
	if !success {
		outcome = "error"
		if errName == "" {
			errName = "unknown"
		}
		m.errors.WithLabelValues(kind, errName).Inc()
	}
	m.instructions.WithLabelValues(kind, outcome).Inc()
	m.latency.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "paused" or "quota_exceeded".
func (m *promoMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// RPCMetrics returns the registry for JSON-RPC handler activity.
func RPCMetrics() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "promo",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "promo",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and status code.",
			}, []string{"method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "promo",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(rpcRegistry.requests, rpcRegistry.errors, rpcRegistry.latency)
	})
	return rpcRegistry
}

// Observe records the outcome of an RPC request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *rpcMetrics) Observe(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	method = strings.TrimSpace(method)
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(method, fmt.Sprintf("%d", status)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}
