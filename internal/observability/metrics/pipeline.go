package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
)

// PipelineMetrics records query pipeline observations.
type PipelineMetrics struct {
	service string

	stageDuration *prometheus.HistogramVec
	verdictsTotal *prometheus.CounterVec
	modesTotal    *prometheus.CounterVec
	iterations    *prometheus.HistogramVec
	pathFailures  *prometheus.CounterVec
}

func NewPipelineMetrics(service string, registerer prometheus.Registerer) *PipelineMetrics {
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Query pipeline stage duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"service", "stage"},
	)
	verdictsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "verdicts_total",
			Help:      "Final evidence verdicts by colour.",
		},
		[]string{"service", "verdict"},
	)
	modesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "modes_total",
			Help:      "Answered queries by response mode.",
		},
		[]string{"service", "mode"},
	)
	iterations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "correction_iterations",
			Help:      "Corrective retrieval iterations per resolved query.",
			Buckets:   []float64{0, 1, 2, 3, 5},
		},
		[]string{"service"},
	)
	pathFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "path_failures_total",
			Help:      "Failed or timed-out retrieval paths.",
		},
		[]string{"service", "path"},
	)

	registerer.MustRegister(stageDuration, verdictsTotal, modesTotal, iterations, pathFailures)

	return &PipelineMetrics{
		service:       service,
		stageDuration: stageDuration,
		verdictsTotal: verdictsTotal,
		modesTotal:    modesTotal,
		iterations:    iterations,
		pathFailures:  pathFailures,
	}
}

func (m *PipelineMetrics) ObserveStage(stage domain.Stage, d time.Duration) {
	m.stageDuration.WithLabelValues(m.service, string(stage)).Observe(d.Seconds())
}

// RecordOutcome counts the mode of every answer. Verdict and iterations are
// only recorded for answers that went through retrieval.
func (m *PipelineMetrics) RecordOutcome(mode domain.ResponseMode, verdict domain.Verdict, iterations int) {
	if mode == "" {
		mode = "unknown"
	}
	m.modesTotal.WithLabelValues(m.service, string(mode)).Inc()
	if verdict == "" {
		return
	}
	m.verdictsTotal.WithLabelValues(m.service, string(verdict)).Inc()
	m.iterations.WithLabelValues(m.service).Observe(float64(iterations))
}

func (m *PipelineMetrics) RecordPathFailure(path domain.RetrievalPath) {
	m.pathFailures.WithLabelValues(m.service, string(path)).Inc()
}

