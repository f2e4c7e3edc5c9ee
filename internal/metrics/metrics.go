package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	jobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rezerva",
			Name:      "delivery_jobs_total",
			Help:      "Processed delivery jobs by result.",
		},
		[]string{"result"},
	)

	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rezerva",
			Name:      "channel_deliveries_total",
			Help:      "Channel delivery outcomes by channel and status.",
		},
		[]string{"channel", "status"},
	)

	artifactGenerations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rezerva",
			Name:      "artifact_generations_total",
			Help:      "Voucher generation results, including cache reuse.",
		},
		[]string{"result"},
	)

	jobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rezerva",
			Name:      "delivery_job_duration_seconds",
			Help:      "Wall time of one delivery job execution.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(jobsProcessed, deliveries, artifactGenerations, jobDuration)
	})
}

// IncJob increments the job counter for a result label
// (completed, retried, failed).
func IncJob(result string) {
	jobsProcessed.WithLabelValues(result).Inc()
}

// IncDelivery increments the delivery counter for a channel outcome.
func IncDelivery(channel, status string) {
	deliveries.WithLabelValues(channel, status).Inc()
}

// IncArtifact increments the generation counter for a result label
// (generated, reused, failed).
func IncArtifact(result string) {
	artifactGenerations.WithLabelValues(result).Inc()
}

// ObserveJobDuration records the duration of one job execution.
func ObserveJobDuration(seconds float64) {
	jobDuration.Observe(seconds)
}
