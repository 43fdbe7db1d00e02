package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus counters for the bridge.
type Metrics struct {
	registry          *prometheus.Registry
	eventsTotal       *prometheus.CounterVec
	dispatchesTotal   *prometheus.CounterVec
	originationsTotal *prometheus.CounterVec
	reconnectsTotal   prometheus.Counter
}

// New constructs a metrics registry and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pbxbridge",
			Subsystem: "events",
			Name:      "normalized_total",
			Help:      "Normalized call and agent events by type.",
		},
		[]string{"type"},
	)
	dispatchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pbxbridge",
			Subsystem: "router",
			Name:      "dispatches_total",
			Help:      "Events fanned out to subscribers, by outcome.",
		},
		[]string{"outcome"},
	)
	originationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pbxbridge",
			Subsystem: "dial",
			Name:      "originations_total",
			Help:      "Call originations by adapter and result.",
		},
		[]string{"adapter", "result"},
	)
	reconnectsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pbxbridge",
			Subsystem: "ami",
			Name:      "reconnects_total",
			Help:      "Manager stream reconnection attempts.",
		},
	)

	registry.MustRegister(eventsTotal, dispatchesTotal, originationsTotal, reconnectsTotal)

	return &Metrics{
		registry:          registry,
		eventsTotal:       eventsTotal,
		dispatchesTotal:   dispatchesTotal,
		originationsTotal: originationsTotal,
		reconnectsTotal:   reconnectsTotal,
	}
}

// Handler serves the metrics registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncEvent(eventType string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncDispatch(outcome string) {
	if m == nil {
		return
	}
	m.dispatchesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncOrigination(adapter, result string) {
	if m == nil {
		return
	}
	m.originationsTotal.WithLabelValues(adapter, result).Inc()
}

func (m *Metrics) IncReconnect() {
	if m == nil {
		return
	}
	m.reconnectsTotal.Inc()
}
