package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docmill_jobs_submitted_total",
		Help: "Total number of document jobs submitted",
	})

	JobsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docmill_jobs_completed_total",
		Help: "Total number of document jobs completed successfully",
	})

	JobsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docmill_jobs_failed_total",
		Help: "Total number of document jobs that failed",
	})

	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docmill_job_duration_seconds",
		Help:    "Wall time from pipeline start to terminal state",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docmill_stage_duration_seconds",
		Help:    "Time spent in each pipeline stage",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docmill_active_workers",
		Help: "Current number of pipeline workers",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docmill_dispatch_queue_depth",
		Help: "Jobs waiting in the in-process dispatch queue",
	})
)
