package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Record counts per sub-database, refreshed on demand by callers
	// that want current totals exposed without scanning on every
	// scrape (see cache.Cache.Count).
	EntriesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "geocache_entries_total",
			Help: "Total number of records stored, by sub-database",
		},
		[]string{"sub_db"},
	)

	// Compression pipeline.
	CompressDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geocache_compress_duration_seconds",
			Help:    "Time taken to zstd-compress a single document",
			Buckets: prometheus.DefBuckets,
		},
	)

	DecompressDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geocache_decompress_duration_seconds",
			Help:    "Time taken to zstd-decompress a single document",
			Buckets: prometheus.DefBuckets,
		},
	)

	BytesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocache_bytes_written_total",
			Help: "Compressed bytes written, by sub-database",
		},
		[]string{"sub_db"},
	)

	BytesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocache_bytes_read_total",
			Help: "Compressed bytes read, by sub-database",
		},
		[]string{"sub_db"},
	)

	CompressionRatio = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geocache_compression_ratio",
			Help:    "Ratio of uncompressed to compressed document size",
			Buckets: []float64{1, 1.5, 2, 3, 4, 6, 8, 12, 16, 24},
		},
	)

	// Write transactions.
	BatchCommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocache_batch_commits_total",
			Help: "Total write-transaction commits, by sub-database",
		},
		[]string{"sub_db"},
	)

	BatchCommitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geocache_batch_commit_duration_seconds",
			Help:    "Time taken to commit a write transaction, by sub-database",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sub_db"},
	)

	RecordsPersistedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocache_records_persisted_total",
			Help: "Total records written, by sub-database",
		},
		[]string{"sub_db"},
	)

	CatalogPersistFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "geocache_catalog_persist_failures_total",
			Help: "Total catalog persist attempts that failed and were discarded on close",
		},
	)
)

func init() {
	prometheus.MustRegister(EntriesTotal)
	prometheus.MustRegister(CompressDuration)
	prometheus.MustRegister(DecompressDuration)
	prometheus.MustRegister(BytesWrittenTotal)
	prometheus.MustRegister(BytesReadTotal)
	prometheus.MustRegister(CompressionRatio)
	prometheus.MustRegister(BatchCommitsTotal)
	prometheus.MustRegister(BatchCommitDuration)
	prometheus.MustRegister(RecordsPersistedTotal)
	prometheus.MustRegister(CatalogPersistFailuresTotal)
}

// Handler returns the Prometheus HTTP handler, for hosts that want to
// expose cache metrics alongside their own /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
