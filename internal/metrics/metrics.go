// Package metrics exposes forager counters on a private Prometheus registry.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sandwich/internal/domain"
)

const namespace = "sandwich"

type Metrics struct {
	registry *prometheus.Registry

	cycles     *prometheus.CounterVec
	aggregate  prometheus.Histogram
	calls      *prometheus.HistogramVec
	callErrors *prometheus.CounterVec
	patience   prometheus.Gauge
	corpusSize prometheus.Gauge
	runs       *prometheus.CounterVec
	skipped    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cycles_total",
			Help: "Foraging cycles by outcome.",
		}, []string{"outcome"}),
		aggregate: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "aggregate_score",
			Help:    "Aggregate validation score of scored drafts.",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		calls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "collaborator_call_seconds",
			Help:    "Latency of collaborator calls.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"collaborator"}),
		callErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "collaborator_errors_total",
			Help: "Failed collaborator calls.",
		}, []string{"collaborator"}),
		patience: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "patience",
			Help: "Remaining patience of the running forager.",
		}),
		corpusSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "corpus_artifacts",
			Help: "Artifacts accepted into the corpus.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_total",
			Help: "Finished runs by termination reason.",
		}, []string{"reason"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "content_skipped_total",
			Help: "Content items dropped by preprocessing.",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(
		m.cycles, m.aggregate, m.calls, m.callErrors, m.patience, m.corpusSize, m.runs, m.skipped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveCycle(o domain.Outcome, aggregate *float64) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(string(o)).Inc()
	if aggregate != nil {
		m.aggregate.Observe(*aggregate)
	}
}

func (m *Metrics) ObserveCall(c domain.Collaborator, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(string(c)).Observe(d.Seconds())
	if err != nil {
		m.callErrors.WithLabelValues(string(c)).Inc()
	}
}

func (m *Metrics) SetPatience(p int) {
	if m == nil {
		return
	}
	m.patience.Set(float64(p))
}

func (m *Metrics) SetCorpusSize(n int) {
	if m == nil {
		return
	}
	m.corpusSize.Set(float64(n))
}

func (m *Metrics) ObserveRun(reason string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveSkip(reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(reason).Inc()
}
