package storage

import (
	"fmt"
	"os"
	"time"

	"github.com/cuemby/geocache/pkg/cacheerr"
	"github.com/cuemby/geocache/pkg/metrics"
	bolt "go.etcd.io/bbolt"
)

// Sub-database names. These are the only four buckets the engine ever
// creates; callers address them by these constants rather than raw
// strings.
const (
	Info   = "info"
	DS     = "ds"
	Groups = "groups"
	UData  = "udata"
)

var allBuckets = []string{Info, DS, Groups, UData}

// DefaultMapSize is the default mmap region bbolt preallocates for
// the database file, matching the original implementation's 10 GiB
// LMDB map size default. Unlike LMDB, bbolt grows its mmap on demand,
// so this is advisory sizing (InitialMmapSize) rather than a hard
// ceiling; it exists to avoid remap churn on a freshly created, large
// ingest.
const DefaultMapSize = 10 << 30

// CreateOptions configures Create.
type CreateOptions struct {
	// MapSize is the initial mmap size in bytes. Zero means
	// DefaultMapSize.
	MapSize int64
	// Truncate removes an existing file at path (via Destroy) before
	// creating.
	Truncate bool
}

// OpenOptions configures OpenRW and OpenRO.
type OpenOptions struct {
	// MapSize is the initial mmap size in bytes for OpenRW. Ignored
	// by OpenRO. Zero means DefaultMapSize.
	MapSize int64
	// ExternalLock signals that another process may mutate the file
	// concurrently with this read-only handle. The LMDB original this
	// format is based on exposes this as lock=True/False, disabling
	// file locking entirely when false; bbolt always takes a shared
	// flock for a readonly open, so here ExternalLock instead bounds
	// how long Open waits for that lock: a nonzero Timeout when true
	// (the file may be briefly exclusive-locked by a writer), and an
	// indefinite wait when false (the default; no writer is expected
	// to touch the file while this handle is open).
	ExternalLock bool
}

// Engine is the opened database: a bbolt file plus the four
// sub-database buckets guaranteed to exist within it.
type Engine struct {
	db       *bolt.DB
	readOnly bool
}

// Create opens path as a brand-new database, creating all four
// sub-databases. If a file already exists at path and opts.Truncate
// is set, it is removed first. If a file already exists and is
// non-empty, Create instead behaves like OpenRW against it (matching
// the original implementation's create_cache, which re-opens rather
// than errors on an existing non-empty store).
func Create(path string, opts CreateOptions) (*Engine, error) {
	if opts.Truncate {
		if err := Destroy(path); err != nil {
			return nil, fmt.Errorf("storage: truncate before create: %w", err)
		}
	}

	mapSize := opts.MapSize
	if mapSize == 0 {
		mapSize = DefaultMapSize
	}

	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return OpenRW(path, OpenOptions{MapSize: mapSize})
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		InitialMmapSize: int(mapSize),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("storage: create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Engine{db: db}, nil
}

// OpenRW opens an existing database for reading and writing.
func OpenRW(path string, opts OpenOptions) (*Engine, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, cacheerr.ErrNotFound)
	}

	mapSize := opts.MapSize
	if mapSize == 0 {
		mapSize = DefaultMapSize
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		InitialMmapSize: int(mapSize),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}

	e := &Engine{db: db}
	if err := e.requireInfoBucket(); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

// OpenRO opens an existing database read-only. No write transaction
// will ever succeed against the returned Engine.
func OpenRO(path string, opts OpenOptions) (*Engine, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, cacheerr.ErrNotFound)
	}

	timeout := time.Duration(0)
	if opts.ExternalLock {
		timeout = 5 * time.Second
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		ReadOnly: true,
		Timeout:  timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}

	e := &Engine{db: db, readOnly: true}
	if err := e.requireInfoBucket(); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) requireInfoBucket() error {
	return e.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(Info)) == nil {
			return fmt.Errorf("storage: missing info sub-database: %w", cacheerr.ErrNotFound)
		}
		return nil
	})
}

// ReadOnly reports whether this Engine was opened with OpenRO.
func (e *Engine) ReadOnly() bool {
	return e.readOnly
}

// Close closes the underlying file.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Path returns the path of the underlying database file.
func (e *Engine) Path() string {
	return e.db.Path()
}

// Count returns the number of entries in the named sub-database.
func (e *Engine) Count(bucket string) (int, error) {
	var n int
	err := e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("storage: no such sub-database %q", bucket)
		}
		n = b.Stats().KeyN
		return nil
	})
	if err == nil {
		metrics.EntriesTotal.WithLabelValues(bucket).Set(float64(n))
	}
	return n, err
}

// Destroy removes the data and lock files for path, matching the
// original implementation's maybe_delete_db. It is the only supported
// destructive operation: the core never exposes a per-record delete.
func Destroy(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: destroy %s: %w", path, err)
	}
	lockPath := path + ".lock"
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: destroy %s: %w", lockPath, err)
	}
	return nil
}
