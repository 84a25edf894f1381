package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UploadsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uploads_ingested_total",
			Help: "Total number of uploads ingested",
		},
		[]string{"year_group"},
	)

	StudentRecordsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "student_records_ingested_total",
			Help: "Total number of student choice records created",
		},
		[]string{"year_group"},
	)

	RecomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "totals_recompute_duration_seconds",
			Help:    "Duration of subject total recomputation in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	MappingLookupFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapping_lookup_failures_total",
			Help: "Mapping store lookups that failed and fell back to the built-in table",
		},
		[]string{"year_group"},
	)

	IngestionJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestion_jobs_total",
			Help: "Queued ingestion jobs by outcome",
		},
		[]string{"outcome"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)
)
