// Package metrics holds the prometheus metrics of a helisync node.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "helisync"

// Metrics holds all prometheus metrics. Each node registers them in its own
// registry so that several nodes can live in one process. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	SessionsServed    *prometheus.CounterVec
	Deliveries        *prometheus.CounterVec
	RecordsReconciled *prometheus.CounterVec
	ReconcileTime     prometheus.Histogram
	Flights           prometheus.Counter
	InFlight          prometheus.Gauge
}

// NewMetrics creates new prometheus metrics in a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		SessionsServed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sessions_served_total",
			Help:      "The total number of inbound commands, by command and result",
		}, []string{"command", "result"}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "deliveries_total",
			Help:      "The total number of outbound sessions, by command and result",
		}, []string{"command", "result"}),
		RecordsReconciled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "records_reconciled_total",
			Help:      "The total number of records folded into the store, by table and outcome",
		}, []string{"table", "outcome"}),
		ReconcileTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "reconcile_time_seconds",
			Help:      "Time taken to reconcile a batch",
			Buckets:   prometheus.DefBuckets,
		}),
		Flights: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "flights_total",
			Help:      "The total number of take-offs",
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "in_flight",
			Help:      "1 while the helicopter is in flight",
		}),
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// SessionServed counts an inbound command.
func (m *Metrics) SessionServed(command string, err error) {
	if m == nil {
		return
	}
	m.SessionsServed.WithLabelValues(command, result(err)).Inc()
}

// Delivered counts an outbound session. kind classifies the error, for
// example "connection" or "protocol".
func (m *Metrics) Delivered(command string, kind string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(command, kind).Inc()
}

// Reconciled records the outcome of a batch.
func (m *Metrics) Reconciled(table string, inserted, updated, unchanged, rejected int, took time.Duration) {
	if m == nil {
		return
	}
	m.RecordsReconciled.WithLabelValues(table, "inserted").Add(float64(inserted))
	m.RecordsReconciled.WithLabelValues(table, "updated").Add(float64(updated))
	m.RecordsReconciled.WithLabelValues(table, "unchanged").Add(float64(unchanged))
	m.RecordsReconciled.WithLabelValues(table, "rejected").Add(float64(rejected))
	m.ReconcileTime.Observe(took.Seconds())
}

// TookOff records a take-off.
func (m *Metrics) TookOff() {
	if m == nil {
		return
	}
	m.Flights.Inc()
	m.InFlight.Set(1)
}

// Landed records a landing.
func (m *Metrics) Landed() {
	if m == nil {
		return
	}
	m.InFlight.Set(0)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
