// Package metrics exposes sync and connectivity counters in the Prometheus
// text format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Push outcomes recorded per queue item.
const (
	OutcomeSynced  = "synced"
	OutcomeRetry   = "retry"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Metrics owns a private registry so tests can build as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	queueItems    *prometheus.GaugeVec
	pushes        *prometheus.CounterVec
	drainDuration prometheus.Histogram
	online        prometheus.Gauge
	probes        *prometheus.CounterVec
	busDrops      *prometheus.CounterVec
	rpcs          *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queueItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fieldsync",
			Name:      "queue_items",
			Help:      "Sync queue items by status.",
		}, []string{"status"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldsync",
			Name:      "push_attempts_total",
			Help:      "Remote push attempts by outcome.",
		}, []string{"outcome"}),
		drainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fieldsync",
			Name:      "drain_duration_seconds",
			Help:      "Duration of sync cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fieldsync",
			Name:      "network_online",
			Help:      "1 when the remote is reachable.",
		}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldsync",
			Name:      "probe_total",
			Help:      "Reachability probes by result.",
		}, []string{"result"}),
		busDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldsync",
			Name:      "bus_dropped_events_total",
			Help:      "Events a slow subscriber missed, by kind.",
		}, []string{"kind"}),
		rpcs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldsync",
			Name:      "rpc_total",
			Help:      "Control RPCs by method and status code.",
		}, []string{"method", "code"}),
	}
	m.registry.MustRegister(
		m.queueItems,
		m.pushes,
		m.drainDuration,
		m.online,
		m.probes,
		m.busDrops,
		m.rpcs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) SetQueueItems(pending, synced, failed int64) {
	m.queueItems.WithLabelValues("pending").Set(float64(pending))
	m.queueItems.WithLabelValues("synced").Set(float64(synced))
	m.queueItems.WithLabelValues("error").Set(float64(failed))
}

func (m *Metrics) ObservePush(outcome string) {
	m.pushes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDrain(d time.Duration) {
	m.drainDuration.Observe(d.Seconds())
}

func (m *Metrics) SetOnline(online bool) {
	if online {
		m.online.Set(1)
		return
	}
	m.online.Set(0)
}

func (m *Metrics) ObserveProbe(ok bool) {
	if ok {
		m.probes.WithLabelValues("ok").Inc()
		return
	}
	m.probes.WithLabelValues("fail").Inc()
}

func (m *Metrics) ObserveBusDrop(kind string) {
	m.busDrops.WithLabelValues(kind).Inc()
}

// ObserveRPC counts a finished control call; code is the gRPC code name.
func (m *Metrics) ObserveRPC(method, code string) {
	m.rpcs.WithLabelValues(method, code).Inc()
}
