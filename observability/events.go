package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	emitted   *prometheus.CounterVec
	transfers *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking committed ledger events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "promo",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of committed events segmented by type.",
			}, []string{"type"}),
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "promo",
				Subsystem: "events",
				Name:      "transfer_amount_total",
				Help:      "Native funds moved by committed transfers segmented by channel.",
			}, []string{"channel"}),
		}
		prometheus.MustRegister(eventRegistry.emitted, eventRegistry.transfers)
	})
	return eventRegistry
}

// RecordEvent increments the counter for eventType.
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.emitted.WithLabelValues(normalized).Inc()
}

// RecordTransfer adds amount to the moved-funds counter of channel.
func (m *eventMetrics) RecordTransfer(channel string, amount uint64) {
	if m == nil {
		return
	}
	normalized := strings.ToLower(strings.TrimSpace(channel))
	if normalized == "" {
		normalized = "unknown"
	}
	m.transfers.WithLabelValues(normalized).Add(float64(amount))
}
