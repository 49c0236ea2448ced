/*
Package storage adapts go.etcd.io/bbolt into the engine contract the
dataset cache needs: four fixed sub-databases (info, ds, groups,
udata), a single write transaction scoped to one sub-database at a
time, prefix-scoped cursors, and entry-count stats.

bbolt itself has no notion of "sub-database" the way LMDB does — it
has buckets inside one file, opened under a single mmap. This package
treats each bucket as a sub-database and leans on bbolt's existing
single-writer/multi-reader discipline to satisfy spec.md's
concurrency model without adding any locking of its own.

# Open modes

Create opens a new file (or truncates one, if requested) and creates
all four buckets. OpenRW opens an existing file for read and write;
OpenRO opens an existing file read-only. Both existing-file modes
reject a file whose info bucket is missing.

# Transactions

BeginRead starts a read transaction whose lifetime is the caller's
responsibility to end via Rollback (bbolt read and write transactions
are both ended by calling Rollback or Commit; for reads, Rollback is
the conventional no-op release). BeginWrite starts a write transaction
scoped to a single bucket name; the returned *WriteTx exposes Put and
Get on that one bucket only, so every write transaction touches a
single sub-database.
*/
package storage
