// Package catalog manages the versioned, on-disk metadata-type and
// product definitions that datasets reference by name. The catalog is
// loaded once into memory when a cache handle is opened and persisted
// back to the info sub-database on sync and on close.
package catalog

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cuemby/geocache/pkg/cacheerr"
	"github.com/cuemby/geocache/pkg/compress"
	"github.com/cuemby/geocache/pkg/storage"
	"github.com/cuemby/geocache/pkg/types"
)

const (
	metadataPrefix = "metadata/"
	productPrefix  = "product/"
)

// Catalog is the in-memory, mutable registry of metadata-types and
// products described in spec.md §4.4 as "catalog-as-global-state". A
// writable cache handle owns one Catalog behind a mutex; a read-only
// handle's Catalog is a snapshot taken at open and never mutated
// again.
type Catalog struct {
	mu            sync.Mutex
	metadataTypes map[string]types.MetadataType
	products      map[string]types.Product
	dirty         bool
}

// Empty returns a Catalog with no definitions, used when creating a
// brand-new database.
func Empty() *Catalog {
	return &Catalog{
		metadataTypes: make(map[string]types.MetadataType),
		products:      make(map[string]types.Product),
	}
}

// Load reads the metadata/ and product/ prefixes out of the info
// sub-database within an already-open read transaction, decompressing
// each value with decomp. Every product's metadata_type must resolve
// to a loaded metadata-type, or Load fails with cacheerr.ErrFormat.
func Load(rtx *storage.ReadTx, decomp *compress.Codec) (*Catalog, error) {
	info := rtx.Bucket(storage.Info)
	if info == nil {
		return nil, fmt.Errorf("catalog: missing info sub-database: %w", cacheerr.ErrNotFound)
	}

	metadataTypes := make(map[string]types.MetadataType)
	err := storage.PrefixScan(info, []byte(metadataPrefix), storage.Info, func(k, v []byte) error {
		name := string(k[len(metadataPrefix):])
		def, err := decodeDoc(v, decomp)
		if err != nil {
			return fmt.Errorf("catalog: decode metadata type %q: %w", name, err)
		}
		metadataTypes[name] = types.MetadataType{Name: name, Definition: def}
		return nil
	})
	if err != nil {
		return nil, err
	}

	products := make(map[string]types.Product)
	err = storage.PrefixScan(info, []byte(productPrefix), storage.Info, func(k, v []byte) error {
		name := string(k[len(productPrefix):])
		def, err := decodeDoc(v, decomp)
		if err != nil {
			return fmt.Errorf("catalog: decode product %q: %w", name, err)
		}
		mtName, _ := def["metadata_type"].(string)
		if mtName == "" {
			return fmt.Errorf("catalog: product %q missing metadata_type: %w", name, cacheerr.ErrFormat)
		}
		if _, ok := metadataTypes[mtName]; !ok {
			return fmt.Errorf("catalog: product %q references unknown metadata type %q: %w", name, mtName, cacheerr.ErrFormat)
		}
		products[name] = types.Product{Name: name, MetadataType: mtName, Definition: def}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Catalog{metadataTypes: metadataTypes, products: products}, nil
}

func decodeDoc(raw []byte, decomp *compress.Codec) (map[string]any, error) {
	plain := raw
	if decomp != nil {
		var err error
		plain, err = decomp.Decompress(raw)
		if err != nil {
			return nil, err
		}
	}
	var doc map[string]any
	if err := json.Unmarshal(plain, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Product looks up a product definition by name.
func (c *Catalog) Product(name string) (types.Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[name]
	return p, ok
}

// MetadataType looks up a metadata-type definition by name.
func (c *Catalog) MetadataType(name string) (types.MetadataType, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mt, ok := c.metadataTypes[name]
	return mt, ok
}

// RegisterProduct adds product to the catalog if its name is new,
// marking the catalog dirty so the next Persist writes it out. The
// product itself is left unchanged if its name is already known,
// matching spec.md §4.4:
// "whenever a dataset is stored whose product name is new to the
// in-memory catalog, the product definition is captured... and
// marked dirty."
//
// If product.MetadataTypeDef is set, its metadata-type is registered
// in the same call (even when the product name is already known),
// grounded on the original
// implementation's save_products/get_metadata_definitions, which
// derives the set of metadata-type definitions to persist from the
// products being persisted rather than tracking them separately. A
// product registered with MetadataTypeDef set is therefore persisted
// together with its metadata-type. A product registered without it is
// persisted on its own; its metadata-type must be registered some
// other way, or Load rejects the product.
func (c *Catalog) RegisterProduct(p types.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.MetadataTypeDef.Name != "" {
		c.registerMetadataTypeLocked(p.MetadataTypeDef)
	}
	if _, ok := c.products[p.Name]; ok {
		return
	}
	c.products[p.Name] = p
	c.dirty = true
}

// RegisterMetadataType adds a metadata-type definition if its name is
// new, marking the catalog dirty. Most callers register a metadata
// type implicitly through RegisterProduct's MetadataTypeDef; this
// entry point exists for registering one ahead of any product that
// references it.
func (c *Catalog) RegisterMetadataType(mt types.MetadataType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registerMetadataTypeLocked(mt)
}

func (c *Catalog) registerMetadataTypeLocked(mt types.MetadataType) {
	if _, ok := c.metadataTypes[mt.Name]; ok {
		return
	}
	c.metadataTypes[mt.Name] = mt
	c.dirty = true
}

// Dirty reports whether any definitions were registered since the
// last Persist.
func (c *Catalog) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// Snapshot returns copies of the current metadata-type and product
// maps, for building a read-only handle's override catalog or for
// inspection. It does not clear the dirty flag.
func (c *Catalog) Snapshot() (map[string]types.MetadataType, map[string]types.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mm := make(map[string]types.MetadataType, len(c.metadataTypes))
	for k, v := range c.metadataTypes {
		mm[k] = v
	}
	pp := make(map[string]types.Product, len(c.products))
	for k, v := range c.products {
		pp[k] = v
	}
	return mm, pp
}

// FromOverride builds a Catalog from externally supplied definitions,
// used by the "escape hatch" in spec.md §4.4: callers that want to
// reinterpret records against their own schema registry supply a
// Catalog at open time instead of loading the on-disk one.
func FromOverride(metadataTypes map[string]types.MetadataType, products map[string]types.Product) *Catalog {
	mm := make(map[string]types.MetadataType, len(metadataTypes))
	for k, v := range metadataTypes {
		mm[k] = v
	}
	pp := make(map[string]types.Product, len(products))
	for k, v := range products {
		pp[k] = v
	}
	return &Catalog{metadataTypes: mm, products: pp}
}

// Persist writes every metadata-type and product definition under
// metadata/<name> and product/<name> in the info sub-database, using
// no-overwrite-no-dupdata semantics unless overwrite is requested, and
// clears the dirty flag on success. Per spec.md §7, Persist failures
// during close are expected to be logged and swallowed by the caller,
// not propagated as a fatal error — Persist itself always reports
// them so the caller can decide.
func (c *Catalog) Persist(e *storage.Engine, comp *compress.Codec, overwrite bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	wtx, err := e.BeginWrite(storage.Info)
	if err != nil {
		return fmt.Errorf("catalog: persist: %w", err)
	}

	commit := false
	defer func() {
		if !commit {
			wtx.Rollback()
		}
	}()

	put := func(key string, def map[string]any) error {
		raw, err := json.Marshal(def)
		if err != nil {
			return err
		}
		if comp != nil {
			raw, err = comp.Compress(raw)
			if err != nil {
				return err
			}
		}
		if !overwrite && wtx.Get([]byte(key)) != nil {
			return nil
		}
		return wtx.Put([]byte(key), raw)
	}

	for name, mt := range c.metadataTypes {
		if err := put(metadataPrefix+name, mt.Definition); err != nil {
			return fmt.Errorf("catalog: persist metadata type %q: %w", name, err)
		}
	}
	for name, p := range c.products {
		if err := put(productPrefix+name, p.Definition); err != nil {
			return fmt.Errorf("catalog: persist product %q: %w", name, err)
		}
	}

	if err := wtx.Commit(); err != nil {
		return fmt.Errorf("catalog: persist commit: %w", err)
	}
	commit = true
	c.dirty = false
	return nil
}
