package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	SubmitAccepted   = prometheus.NewCounter(prometheus.CounterOpts{Name: "docs_submitted_total", Help: "Documents accepted for processing"})
	SubmitDuplicates = prometheus.NewCounter(prometheus.CounterOpts{Name: "docs_duplicate_total", Help: "Duplicate submissions suppressed by the idempotency gate"})
	SubmitRejected   = prometheus.NewCounter(prometheus.CounterOpts{Name: "docs_rejected_total", Help: "Submissions rejected by queue backpressure"})
	JobsCompleted    = prometheus.NewCounter(prometheus.CounterOpts{Name: "docs_completed_total", Help: "Jobs that reached the completed state"})
	JobsFailed       = prometheus.NewCounter(prometheus.CounterOpts{Name: "docs_failed_total", Help: "Jobs that reached the error state"})
	QueueDepthGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "docs_queue_depth", Help: "Worker pool backlog across both tiers"})
	ExtractDuration  = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "docs_extract_duration_seconds",
		Help:    "Wall time from pickup to terminal state",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			SubmitAccepted,
			SubmitDuplicates,
			SubmitRejected,
			JobsCompleted,
			JobsFailed,
			QueueDepthGauge,
			ExtractDuration,
		)
	})
	return promhttp.Handler()
}
