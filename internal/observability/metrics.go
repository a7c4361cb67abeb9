package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HashesComputed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plf",
		Name:      "hashes_computed_total",
		Help:      "Total number of perceptual hashes computed",
	}, []string{"hash_type"})

	ItemsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plf",
		Name:      "items_skipped_total",
		Help:      "Files excluded from hashing",
	}, []string{"reason"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plf",
		Name:      "cache_lookups_total",
		Help:      "Hash cache lookups by outcome",
	}, []string{"result"})

	Comparisons = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "plf",
		Name:      "hash_comparisons_total",
		Help:      "Total number of pairwise hash comparisons",
	})

	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "plf",
		Name:      "analysis_duration_seconds",
		Help:      "Duration of visual analysis phases",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"phase"})

	AnalysesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "plf",
		Name:      "analyses_in_flight",
		Help:      "Visual analyses currently running",
	})

	MonthGroupingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "plf",
		Name:      "month_grouping_duration_seconds",
		Help:      "Duration of calendar month grouping",
		Buckets:   prometheus.DefBuckets,
	}, []string{"mode"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "plf",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
