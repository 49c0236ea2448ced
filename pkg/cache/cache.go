// Package cache is the public entry point of the dataset cache: it
// ties together pkg/key, pkg/compress, pkg/storage, and pkg/catalog
// into the typed Get/Put/BulkSave/Tee/Group operations described in
// spec.md §4.5.
package cache

import (
	"bytes"
	"fmt"

	"github.com/cuemby/geocache/pkg/cacheerr"
	"github.com/cuemby/geocache/pkg/catalog"
	"github.com/cuemby/geocache/pkg/compress"
	"github.com/cuemby/geocache/pkg/log"
	"github.com/cuemby/geocache/pkg/metrics"
	"github.com/cuemby/geocache/pkg/storage"
	"github.com/rs/zerolog"
)

// FormatVersion is the on-disk version tag every database must carry
// under info/version. A mismatch, or its absence, rejects the open.
var FormatVersion = []byte("0001")

// DefaultBatchSize is Tee's default commit granularity, matching the
// original implementation's max_transaction_size default of 10000.
const DefaultBatchSize = 10000

const zdictKey = "zdict"
const versionKey = "version"

// Cache is an opened dataset cache handle. It exclusively owns the
// underlying storage engine and compression contexts: closing it
// flushes catalog state (for writable handles) and releases the
// engine, per spec.md §5's resource-ownership model.
type Cache struct {
	engine  *storage.Engine
	comp    *compress.Codec // nil on a read-only handle
	decomp  *compress.Codec
	catalog *catalog.Catalog
	logger  zerolog.Logger
}

// CreateOptions configures Create.
type CreateOptions struct {
	// MapSize is the initial mmap size; zero means storage.DefaultMapSize.
	MapSize int64
	// Truncate wipes an existing file at the path before creating.
	Truncate bool
	// Level is the zstd compression level; zero means compress.DefaultLevel.
	Level compress.Level
	// Dict is an optional pre-trained dictionary blob, persisted as
	// info/zdict. Dictionaries are immutable for the life of the
	// database: there is no supported way to rotate one later.
	Dict []byte
}

// OpenOptions configures OpenRW and OpenRO.
type OpenOptions struct {
	// MapSize is the initial mmap size for OpenRW; ignored by OpenRO.
	MapSize int64
	// Level is the zstd compression level for OpenRW; ignored by OpenRO.
	Level compress.Level
	// Catalog overrides the on-disk product/metadata-type catalog for
	// the lifetime of this handle — the escape hatch from spec.md
	// §4.4 for callers that want to reinterpret records against their
	// own schema registry.
	Catalog *catalog.Catalog
	// ExternalLock signals a concurrently-mutating external process;
	// see storage.OpenOptions.ExternalLock. Only meaningful for OpenRO.
	ExternalLock bool
}

// Create opens path as a new dataset cache, or reopens it unchanged
// if a non-empty file already exists there and Truncate was not
// requested (matching the original create_cache's auto-detect
// behavior).
func Create(path string, opts CreateOptions) (*Cache, error) {
	engine, err := storage.Create(path, storage.CreateOptions{
		MapSize:  opts.MapSize,
		Truncate: opts.Truncate,
	})
	if err != nil {
		return nil, err
	}

	level := opts.Level
	if level == 0 {
		level = compress.DefaultLevel
	}

	rtx, err := engine.BeginRead()
	if err != nil {
		engine.Close()
		return nil, err
	}
	existingVersion := get(rtx.Bucket(storage.Info), versionKey)
	rtx.Rollback()

	if existingVersion == nil {
		return initEmpty(engine, level, opts.Dict)
	}
	return reopen(engine, level, existingVersion, nil)
}

// OpenRW opens an existing cache for reading and writing.
func OpenRW(path string, opts OpenOptions) (*Cache, error) {
	engine, err := storage.OpenRW(path, storage.OpenOptions{MapSize: opts.MapSize})
	if err != nil {
		return nil, err
	}

	level := opts.Level
	if level == 0 {
		level = compress.DefaultLevel
	}

	rtx, err := engine.BeginRead()
	if err != nil {
		engine.Close()
		return nil, err
	}
	version := get(rtx.Bucket(storage.Info), versionKey)
	rtx.Rollback()

	return reopen(engine, level, version, opts.Catalog)
}

// OpenRO opens an existing cache read-only. The returned Cache has no
// compressor; any attempt to write through it fails with
// cacheerr.ErrMisuse.
func OpenRO(path string, opts OpenOptions) (*Cache, error) {
	engine, err := storage.OpenRO(path, storage.OpenOptions{ExternalLock: opts.ExternalLock})
	if err != nil {
		return nil, err
	}

	rtx, err := engine.BeginRead()
	if err != nil {
		engine.Close()
		return nil, err
	}
	version := get(rtx.Bucket(storage.Info), versionKey)
	rtx.Rollback()

	if version == nil {
		engine.Close()
		return nil, fmt.Errorf("cache: missing format version: %w", cacheerr.ErrFormat)
	}
	if !bytes.Equal(version, FormatVersion) {
		engine.Close()
		return nil, fmt.Errorf("cache: unsupported on-disk version %q: %w", version, cacheerr.ErrFormat)
	}

	zdict, cat, err := loadZdictAndCatalog(engine, nil, opts.Catalog)
	if err != nil {
		engine.Close()
		return nil, err
	}

	decomp, err := compress.NewDecodeOnlyCodec(zdict)
	if err != nil {
		engine.Close()
		return nil, err
	}

	log.WithDBPath(engine.Path()).Info().Msg("cache opened read-only")
	return &Cache{engine: engine, decomp: decomp, catalog: cat, logger: log.WithComponent("cache")}, nil
}

func initEmpty(engine *storage.Engine, level compress.Level, dict []byte) (*Cache, error) {
	wtx, err := engine.BeginWrite(storage.Info)
	if err != nil {
		engine.Close()
		return nil, err
	}
	if err := wtx.Put([]byte(versionKey), FormatVersion); err != nil {
		wtx.Rollback()
		engine.Close()
		return nil, err
	}
	if dict != nil {
		if err := wtx.Put([]byte(zdictKey), dict); err != nil {
			wtx.Rollback()
			engine.Close()
			return nil, err
		}
	}
	if err := wtx.Commit(); err != nil {
		engine.Close()
		return nil, err
	}

	comp, err := compress.NewCodec(level, dict)
	if err != nil {
		engine.Close()
		return nil, err
	}
	decomp, err := compress.NewDecodeOnlyCodec(dict)
	if err != nil {
		comp.Close()
		engine.Close()
		return nil, err
	}

	log.WithDBPath(engine.Path()).Info().Msg("cache created")
	return &Cache{
		engine:  engine,
		comp:    comp,
		decomp:  decomp,
		catalog: catalog.Empty(),
		logger:  log.WithComponent("cache"),
	}, nil
}

func reopen(engine *storage.Engine, level compress.Level, version []byte, override *catalog.Catalog) (*Cache, error) {
	if version == nil {
		engine.Close()
		return nil, fmt.Errorf("cache: missing format version: %w", cacheerr.ErrFormat)
	}
	if !bytes.Equal(version, FormatVersion) {
		engine.Close()
		return nil, fmt.Errorf("cache: unsupported on-disk version %q: %w", version, cacheerr.ErrFormat)
	}

	zdict, cat, err := loadZdictAndCatalog(engine, nil, override)
	if err != nil {
		engine.Close()
		return nil, err
	}

	comp, err := compress.NewCodec(level, zdict)
	if err != nil {
		engine.Close()
		return nil, err
	}
	decomp, err := compress.NewDecodeOnlyCodec(zdict)
	if err != nil {
		comp.Close()
		engine.Close()
		return nil, err
	}

	log.WithDBPath(engine.Path()).Info().Msg("cache opened read-write")
	return &Cache{
		engine:  engine,
		comp:    comp,
		decomp:  decomp,
		catalog: cat,
		logger:  log.WithComponent("cache"),
	}, nil
}

// loadZdictAndCatalog reads info/zdict and, unless override is
// supplied, loads the on-disk catalog using a throwaway decode-only
// codec bound to that dictionary.
func loadZdictAndCatalog(engine *storage.Engine, _ *compress.Codec, override *catalog.Catalog) ([]byte, *catalog.Catalog, error) {
	rtx, err := engine.BeginRead()
	if err != nil {
		return nil, nil, err
	}
	defer rtx.Rollback()

	zdict := get(rtx.Bucket(storage.Info), zdictKey)

	if override != nil {
		return zdict, override, nil
	}

	decomp, err := compress.NewDecodeOnlyCodec(zdict)
	if err != nil {
		return nil, nil, err
	}
	defer decomp.Close()

	cat, err := catalog.Load(rtx, decomp)
	if err != nil {
		return nil, nil, err
	}
	return zdict, cat, nil
}

func get(b bucketGetter, key string) []byte {
	if b == nil {
		return nil
	}
	v := b.Get([]byte(key))
	if v == nil {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

// bucketGetter narrows *bolt.Bucket to the one method used above, so
// this file does not need to import bbolt directly.
type bucketGetter interface {
	Get(key []byte) []byte
}

// ReadOnly reports whether this handle was opened with OpenRO.
func (c *Cache) ReadOnly() bool {
	return c.engine.ReadOnly()
}

// requireWritable rejects any write path on a handle opened with
// OpenRO, before it ever reaches the nil compressor such a handle
// carries.
func (c *Cache) requireWritable() error {
	if c.ReadOnly() {
		return fmt.Errorf("cache: write attempted on a read-only handle: %w", cacheerr.ErrMisuse)
	}
	return nil
}

// Catalog exposes the in-memory product/metadata-type registry.
func (c *Cache) Catalog() *catalog.Catalog {
	return c.catalog
}

// Count returns the number of datasets stored, per spec.md §4.5.
func (c *Cache) Count() (int, error) {
	return c.engine.Count(storage.DS)
}

// Sync persists any catalog updates accumulated since the last sync.
// It is a no-op on a read-only handle, per spec.md invariant 5.
func (c *Cache) Sync() error {
	if c.ReadOnly() {
		return nil
	}
	if !c.catalog.Dirty() {
		return nil
	}
	c.logger.Debug().Msg("syncing catalog")
	return c.catalog.Persist(c.engine, c.comp, false)
}

// Close flushes the catalog one final time (for writable handles) and
// closes the underlying engine. Per spec.md §7, a catalog persist
// failure on close is logged and swallowed rather than returned:
// losing the last batch of catalog updates must not crash the
// caller's shutdown path, since data records already committed remain
// intact independent of catalog state.
func (c *Cache) Close() error {
	if err := c.Sync(); err != nil {
		metrics.CatalogPersistFailuresTotal.Inc()
		c.logger.Warn().Err(err).Msg("catalog persist on close failed, discarding")
	}
	if c.comp != nil {
		c.comp.Close()
	}
	c.decomp.Close()
	return c.engine.Close()
}

// Destroy removes the cache file (and any lock file) at path. It is
// the only supported destructive operation; the core never exposes a
// per-record delete.
func Destroy(path string) error {
	return storage.Destroy(path)
}
