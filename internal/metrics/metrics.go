package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PipelineRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "resonate_pipeline_runs_total",
		Help: "Total pipeline runs",
	})
	PipelineFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "resonate_pipeline_failures_total",
		Help: "Total pipeline runs that ended in error",
	})
	PipelineDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "resonate_pipeline_duration_seconds",
		Help:    "Pipeline run duration in seconds",
		Buckets: prometheus.DefBuckets,
	})
	ArticlesResolved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "resonate_articles_resolved_total",
		Help: "Linked articles fetched and extracted",
	})
	ArticlesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "resonate_articles_dropped_total",
		Help: "Linked articles dropped after fetch or extraction failure",
	})
	ImagesResolved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "resonate_images_resolved_total",
		Help: "Post images fetched and encoded",
	})
	ImagesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "resonate_images_dropped_total",
		Help: "Post images dropped after fetch failure or size limit",
	})
	ReasoningRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resonate_reasoning_requests_total",
		Help: "Reasoning service calls by pass",
	}, []string{"pass"})
	InterpretRecoveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resonate_interpret_recoveries_total",
		Help: "Structured records recovered from reasoning output, by stage",
	}, []string{"stage"})
)

func init() {
	prometheus.MustRegister(
		PipelineRuns, PipelineFailures, PipelineDuration,
		ArticlesResolved, ArticlesDropped,
		ImagesResolved, ImagesDropped,
		ReasoningRequests, InterpretRecoveries,
	)
}

// ObservePipelineDuration records how long a pipeline run took.
func ObservePipelineDuration(start time.Time) {
	PipelineDuration.Observe(time.Since(start).Seconds())
}
