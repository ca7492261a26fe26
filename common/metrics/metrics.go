package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so tests can build as many collectors as they like
// without tripping duplicate registration. All methods are nil-safe.
type Collector struct {
	registry *prometheus.Registry

	eventsPublished   *prometheus.CounterVec
	publishDegraded   prometheus.Counter
	projectorOutcomes *prometheus.CounterVec
	projectorLatency  *prometheus.HistogramVec
	deadLettered      prometheus.Counter
	reconcileDocs     *prometheus.CounterVec
	reconcileRuns     *prometheus.CounterVec
}

func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		eventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Domain events handed to the stream, by event type and result",
			},
			[]string{"event_type", "result"},
		),
		publishDegraded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publish_degraded_total",
				Help:      "Committed mutations whose events could not be published before responding",
			},
		),
		projectorOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "projector_events_total",
				Help:      "Events handled by the index projector, by event type and outcome",
			},
			[]string{"event_type", "outcome"},
		),
		projectorLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "projector_apply_duration_seconds",
				Help:      "Time spent applying one event to the search projection",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"event_type"},
		),
		deadLettered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "projector_dead_lettered_total",
				Help:      "Stream messages moved to the dead letter stream",
			},
		),
		reconcileDocs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_documents_total",
				Help:      "Projection documents touched by the consistency verifier, by kind",
			},
			[]string{"kind"},
		),
		reconcileRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_runs_total",
				Help:      "Consistency verifier cycles, by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.eventsPublished,
		c.publishDegraded,
		c.projectorOutcomes,
		c.projectorLatency,
		c.deadLettered,
		c.reconcileDocs,
		c.reconcileRuns,
	)

	return c
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) EventPublished(eventType string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.eventsPublished.WithLabelValues(eventType, result).Inc()
}

func (c *Collector) PublishDegraded() {
	if c == nil {
		return
	}
	c.publishDegraded.Inc()
}

func (c *Collector) ProjectorOutcome(eventType, outcome string, took time.Duration) {
	if c == nil {
		return
	}
	c.projectorOutcomes.WithLabelValues(eventType, outcome).Inc()
	c.projectorLatency.WithLabelValues(eventType).Observe(took.Seconds())
}

func (c *Collector) DeadLettered() {
	if c == nil {
		return
	}
	c.deadLettered.Inc()
}

func (c *Collector) Reconciled(repaired, missing, orphaned, drifted int, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.reconcileRuns.WithLabelValues("error").Inc()
		return
	}
	c.reconcileRuns.WithLabelValues("ok").Inc()
	c.reconcileDocs.WithLabelValues("repaired").Add(float64(repaired))
	c.reconcileDocs.WithLabelValues("missing").Add(float64(missing))
	c.reconcileDocs.WithLabelValues("orphaned").Add(float64(orphaned))
	c.reconcileDocs.WithLabelValues("drifted").Add(float64(drifted))
}
