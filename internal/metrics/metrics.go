// Package metrics exposes reconciler and sync activity as prometheus series.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwrk-planet/room-sync/internal/reconcile"
)

const namespace = "roomsync"

type Metrics struct {
	reg *prometheus.Registry

	events    *prometheus.CounterVec
	depth     *prometheus.GaugeVec
	evicted   *prometheus.CounterVec
	flushed   *prometheus.CounterVec
	connected *prometheus.GaugeVec
	refreshes *prometheus.CounterVec
}

// New registers every collector on a private registry, plus the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Room events by type and reconciliation outcome.",
		}, []string{"room", "event", "outcome"}),
		depth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deferred_queue_depth",
			Help:      "Events waiting for their target entity.",
		}, []string{"room"}),
		evicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deferred_evicted_total",
			Help:      "Deferred events dropped by capacity or age.",
		}, []string{"room", "reason"}),
		flushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deferred_flushed_total",
			Help:      "Deferred events discarded by a snapshot refresh.",
		}, []string{"room"}),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_source_connected",
			Help:      "1 while the room event stream is connected.",
		}, []string{"room"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_refresh_total",
			Help:      "Full snapshot fetches by result.",
		}, []string{"room", "result"}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.events, m.depth, m.evicted, m.flushed, m.connected, m.refreshes,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Observe(roomID, eventName string, outcome reconcile.Outcome) {
	m.events.WithLabelValues(roomID, eventName, string(outcome)).Inc()
}

func (m *Metrics) QueueDepth(roomID string, n int) {
	m.depth.WithLabelValues(roomID).Set(float64(n))
}

func (m *Metrics) Flushed(roomID string, n int) {
	if n > 0 {
		m.flushed.WithLabelValues(roomID).Add(float64(n))
	}
}

func (m *Metrics) Evicted(roomID, reason string) {
	m.evicted.WithLabelValues(roomID, reason).Inc()
}

func (m *Metrics) SourceConnected(roomID string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.connected.WithLabelValues(roomID).Set(v)
}

func (m *Metrics) Refreshed(roomID string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.refreshes.WithLabelValues(roomID, result).Inc()
}

// Forget removes the per-room series once a room view closes.
func (m *Metrics) Forget(roomID string) {
	labels := prometheus.Labels{"room": roomID}
	m.events.DeletePartialMatch(labels)
	m.depth.DeletePartialMatch(labels)
	m.evicted.DeletePartialMatch(labels)
	m.flushed.DeletePartialMatch(labels)
	m.connected.DeletePartialMatch(labels)
	m.refreshes.DeletePartialMatch(labels)
}

var _ reconcile.Observer = (*Metrics)(nil)
