/*
Package metrics exposes the cache's Prometheus instrumentation:
record counts per sub-database, compression/decompression latency and
ratio, and write-transaction throughput. All metrics are registered at
package init against the default registry; Handler returns the
promhttp handler for hosts that want to mount /metrics themselves.

Metric names use the geocache_ prefix, e.g. geocache_entries_total,
geocache_compress_duration_seconds, geocache_batch_commits_total.

Timer is a small helper for recording an elapsed duration to a
histogram:

	timer := metrics.NewTimer()
	compressed, err := codec.Compress(doc)
	timer.ObserveDuration(metrics.CompressDuration)
*/
package metrics
