package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync passes by trigger and outcome.
	SyncPassCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_pass_count",
			Help: "Total number of history reconciliation passes",
		},
		[]string{"trigger", "outcome"}, // outcome: success, fallback, error
	)

	// Feed pages fetched per pass.
	FeedPagesFetched = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_feed_pages_per_pass",
			Help:    "Change-feed pages fetched in one reconciliation pass",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// Change records applied synchronously, by kind.
	ChangeRecordsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_change_records_applied",
			Help: "Change records applied during reconciliation",
		},
		[]string{"kind"}, // message_added, message_deleted, labels_added, labels_removed, skipped
	)

	// Full resyncs by reason.
	FullResyncCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_full_resync_count",
			Help: "Full resyncs triggered, by reason",
		},
		[]string{"reason"}, // cold_start, stale_cursor, manual
	)

	// Jobs published by name.
	JobPublishedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_published_count",
			Help: "Total number of jobs published to the dispatch queue",
		},
		[]string{"job"},
	)

	// Jobs processed by name and outcome.
	JobProcessedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_processed_count",
			Help: "Total number of jobs processed by workers",
		},
		[]string{"job", "outcome"}, // outcome: success, failed, dead
	)

	// Job processing latency (milliseconds).
	JobLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_latency_ms",
			Help:    "Job processing latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12), // 10ms to ~40s
		},
		[]string{"job"},
	)

	// Database query latency (seconds).
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation", "table"},
	)
)

// IncrementSyncPass records one reconciliation pass outcome.
func IncrementSyncPass(trigger, outcome string) {
	SyncPassCount.WithLabelValues(trigger, outcome).Inc()
}

// ObserveFeedPages records how many feed pages one pass consumed.
func ObserveFeedPages(pages int) {
	FeedPagesFetched.Observe(float64(pages))
}

// IncrementChangeApplied records one applied (or skipped) change record.
func IncrementChangeApplied(kind string) {
	ChangeRecordsApplied.WithLabelValues(kind).Inc()
}

// IncrementFullResync records one full-resync fallback.
func IncrementFullResync(reason string) {
	FullResyncCount.WithLabelValues(reason).Inc()
}

// IncrementJobPublished records one enqueued job.
func IncrementJobPublished(job string) {
	JobPublishedCount.WithLabelValues(job).Inc()
}

// IncrementJobProcessed records one consumed job outcome.
func IncrementJobProcessed(job, outcome string) {
	JobProcessedCount.WithLabelValues(job, outcome).Inc()
}

// RecordJobLatency records job processing latency.
func RecordJobLatency(job string, duration time.Duration) {
	JobLatency.WithLabelValues(job).Observe(float64(duration.Milliseconds()))
}

// RecordDBQueryDuration records database query latency.
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// TimeDBQuery starts timing one database query. The returned stop function
// records the elapsed duration; call it deferred at the top of a repository
// method.
func TimeDBQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		RecordDBQueryDuration(operation, table, time.Since(start))
	}
}
