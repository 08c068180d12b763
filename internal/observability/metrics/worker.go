package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
)

// Ingest outcomes as reported by the worker.
const (
	OutcomeProcessed = "processed"
	OutcomeFailed    = "failed"
	OutcomeNotFound  = "not_found"
	OutcomeTimeout   = "timeout"
)

// WorkerMetrics tracks the ingestion worker on its own registry, served on
// WORKER_METRICS_PORT.
type WorkerMetrics struct {
	registry *prometheus.Registry

	documents *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	inFlight  prometheus.Gauge
	queueLag  prometheus.Histogram
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}

	m := &WorkerMetrics{
		registry: registry,
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "ingest",
			Name:        "documents_total",
			Help:        "Documents taken off the queue, by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "ingest",
			Name:        "document_duration_seconds",
			Help:        "Time to extract, enrich, embed and index one document.",
			ConstLabels: labels,
			// enrichment makes one generator call per window
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "ingest",
			Name:        "documents_in_flight",
			Help:        "Documents currently being processed.",
			ConstLabels: labels,
		}),
		queueLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "ingest",
			Name:        "queue_lag_seconds",
			Help:        "Delay between upload and the start of processing.",
			ConstLabels: labels,
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}),
	}
	registry.MustRegister(m.documents, m.duration, m.inFlight, m.queueLag)
	return m
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.inFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(duration time.Duration, err error) {
	m.inFlight.Dec()
	outcome := IngestOutcome(err)
	m.documents.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveQueueLag ignores negative lag from clock skew between api and worker.
func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.Observe(lag.Seconds())
}

func IngestOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeProcessed
	case errors.Is(err, domain.ErrDocumentNotFound):
		return OutcomeNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	default:
		return OutcomeFailed
	}
}
