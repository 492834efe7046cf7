// Package metrics exposes Prometheus collectors for the ingester and store.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bones"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Messages    *prometheus.CounterVec
	Reconnects  *prometheus.CounterVec
	StoreWrites *prometheus.CounterVec
	IngestState prometheus.Gauge
}

// NewRegistry creates a registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "messages_total",
			Help:      "Stream messages by kind and outcome.",
		}, []string{"kind", "outcome"}),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "reconnects_total",
			Help:      "Stream reconnect attempts by reason.",
		}, []string{"reason"}),
		StoreWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "writes_total",
			Help:      "Store writes by origin and classification.",
		}, []string{"origin", "classification"}),
		IngestState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "state",
			Help:      "Ingester state: 0 connecting, 1 streaming, 2 disconnected, 3 terminated, 4 failed.",
		}),
	}
	reg.MustRegister(m.Messages, m.Reconnects, m.StoreWrites, m.IngestState)
	return m
}

// Handler serves the registry in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Message counts one stream message.
func (m *Metrics) Message(kind, outcome string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(kind, outcome).Inc()
}

// Reconnect counts one reconnect attempt.
func (m *Metrics) Reconnect(reason string) {
	if m == nil {
		return
	}
	m.Reconnects.WithLabelValues(reason).Inc()
}

// StoreWrite counts one successful store write.
func (m *Metrics) StoreWrite(origin, classification string) {
	if m == nil {
		return
	}
	m.StoreWrites.WithLabelValues(origin, classification).Inc()
}

// SetIngestState records the ingester state.
func (m *Metrics) SetIngestState(state int) {
	if m == nil {
		return
	}
	m.IngestState.Set(float64(state))
}
