package cache

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/geocache/pkg/cacheerr"
	"github.com/cuemby/geocache/pkg/key"
	"github.com/cuemby/geocache/pkg/log"
	"github.com/cuemby/geocache/pkg/storage"
	"github.com/cuemby/geocache/pkg/types"
	"github.com/google/uuid"
)

// DatasetRecord pairs a dataset value with the product definition it
// references, the shape the structured write path needs to
// auto-register a new product per spec.md §4.4.
type DatasetRecord struct {
	Dataset types.Dataset
	Product types.Product
}

func (c *Cache) encodeDataset(product string, uris []string, metadata map[string]any) ([]byte, error) {
	raw, err := json.Marshal(types.RawDocument{Product: product, URIs: uris, Metadata: metadata})
	if err != nil {
		return nil, fmt.Errorf("cache: marshal dataset: %w", err)
	}
	return c.comp.Compress(raw)
}

func (c *Cache) decodeDataset(raw []byte) (types.RawDocument, error) {
	plain, err := c.decomp.Decompress(raw)
	if err != nil {
		return types.RawDocument{}, fmt.Errorf("cache: decode dataset: %w", err)
	}
	var doc types.RawDocument
	if err := json.Unmarshal(plain, &doc); err != nil {
		return types.RawDocument{}, fmt.Errorf("cache: unmarshal dataset: %w", err)
	}
	return doc, nil
}

// idFromMetadata extracts and parses the metadata.id field required
// by the raw-document ingestion path.
func idFromMetadata(metadata map[string]any) (uuid.UUID, error) {
	raw, ok := metadata["id"]
	if !ok {
		return uuid.UUID{}, fmt.Errorf("cache: raw document missing metadata.id: %w", cacheerr.ErrFormat)
	}
	s, ok := raw.(string)
	if !ok {
		return uuid.UUID{}, fmt.Errorf("cache: metadata.id is not a string: %w", cacheerr.ErrFormat)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("cache: metadata.id %q is not a UUID: %w", s, cacheerr.ErrFormat)
	}
	return id, nil
}

func (c *Cache) putDatasetTx(wtx *storage.WriteTx, rec DatasetRecord) error {
	if rec.Product.Name != "" {
		if _, known := c.catalog.Product(rec.Product.Name); !known {
			log.WithProduct(rec.Product.Name).Debug().Msg("auto-registering product")
		}
		c.catalog.RegisterProduct(rec.Product)
	}
	v, err := c.encodeDataset(rec.Dataset.Product, rec.Dataset.URIs, rec.Dataset.Metadata)
	if err != nil {
		return err
	}
	k, err := key.Encode(rec.Dataset.ID)
	if err != nil {
		return fmt.Errorf("cache: encode dataset id: %w", err)
	}
	return wtx.Put(k, v)
}

func (c *Cache) putRawTx(wtx *storage.WriteTx, raw types.RawDocument) error {
	id, err := idFromMetadata(raw.Metadata)
	if err != nil {
		return err
	}
	v, err := c.encodeDataset(raw.Product, raw.URIs, raw.Metadata)
	if err != nil {
		return err
	}
	k, err := key.Encode(id)
	if err != nil {
		return fmt.Errorf("cache: encode dataset id: %w", err)
	}
	return wtx.Put(k, v)
}

// PutDataset stores a single dataset, auto-registering its product in
// the in-memory catalog if the name is new. The product is not
// persisted to disk until the next Sync or Close.
func (c *Cache) PutDataset(ds types.Dataset, product types.Product) error {
	return c.BulkSave([]DatasetRecord{{Dataset: ds, Product: product}})
}

// PutRawDocument stores a single already-assembled {product, uris,
// metadata} triple, extracting its id from metadata.id. It does not
// touch the catalog: raw documents carry only a product name, not a
// product definition to register.
func (c *Cache) PutRawDocument(raw types.RawDocument) error {
	return c.BulkSaveRaw([]types.RawDocument{raw})
}

// BulkSave opens one write transaction on ds, stores every record,
// and commits, per spec.md §4.5.
func (c *Cache) BulkSave(records []DatasetRecord) error {
	if err := c.requireWritable(); err != nil {
		return err
	}
	wtx, err := c.engine.BeginWrite(storage.DS)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := c.putDatasetTx(wtx, rec); err != nil {
			wtx.Rollback()
			return err
		}
	}
	if err := wtx.Commit(); err != nil {
		return err
	}
	c.logger.Debug().Str("sub_db", storage.DS).Int("count", len(records)).Msg("bulk_save committed")
	return nil
}

// BulkSaveRaw is BulkSave's counterpart for the raw-document
// ingestion path (spec.md §11 supplemented feature): one write
// transaction over a batch of already-assembled triples.
func (c *Cache) BulkSaveRaw(raws []types.RawDocument) error {
	if err := c.requireWritable(); err != nil {
		return err
	}
	wtx, err := c.engine.BeginWrite(storage.DS)
	if err != nil {
		return err
	}
	for _, raw := range raws {
		if err := c.putRawTx(wtx, raw); err != nil {
			wtx.Rollback()
			return err
		}
	}
	if err := wtx.Commit(); err != nil {
		return err
	}
	c.logger.Debug().Str("sub_db", storage.DS).Int("count", len(raws)).Msg("bulk_save_raw committed")
	return nil
}

// Get performs a point read by UUID. A missing key returns a nil
// dataset and a nil error, per spec.md §4.5 and §7 ("point reads on
// absent keys return a nothing sentinel rather than raising").
func (c *Cache) Get(id uuid.UUID) (*types.MaterializedDataset, error) {
	rtx, err := c.engine.BeginRead()
	if err != nil {
		return nil, err
	}
	defer rtx.Rollback()

	k, err := key.Encode(id)
	if err != nil {
		return nil, fmt.Errorf("cache: encode dataset id: %w", err)
	}
	raw := rtx.Bucket(storage.DS).Get(k)
	if raw == nil {
		return nil, nil
	}

	doc, err := c.decodeDataset(raw)
	if err != nil {
		return nil, err
	}
	return c.materialize(id, doc)
}

func (c *Cache) materialize(id uuid.UUID, doc types.RawDocument) (*types.MaterializedDataset, error) {
	product, ok := c.catalog.Product(doc.Product)
	if !ok {
		return nil, fmt.Errorf("cache: dataset %s references unknown product %q: %w", id, doc.Product, cacheerr.ErrUnknownProduct)
	}
	return &types.MaterializedDataset{
		Dataset: types.Dataset{
			ID:       id,
			Product:  doc.Product,
			URIs:     doc.URIs,
			Metadata: doc.Metadata,
		},
		ProductDef: &product,
	}, nil
}

// GetAll walks every dataset in UUID lex order under a single read
// transaction, calling fn for each. It stops and returns fn's error
// immediately if fn returns one, per spec.md §5's "iterator errors
// terminate the iterator with the error" rule.
func (c *Cache) GetAll(fn func(types.MaterializedDataset) error) error {
	rtx, err := c.engine.BeginRead()
	if err != nil {
		return err
	}
	defer rtx.Rollback()

	b := rtx.Bucket(storage.DS)
	cur := b.Cursor()
	for k, v := cur.First(); k != nil; k, v = cur.Next() {
		id, err := uuid.FromBytes(k)
		if err != nil {
			return fmt.Errorf("cache: corrupt dataset key: %w", err)
		}
		doc, err := c.decodeDataset(v)
		if err != nil {
			return err
		}
		mds, err := c.materialize(id, doc)
		if err != nil {
			return err
		}
		if err := fn(*mds); err != nil {
			return err
		}
	}
	return nil
}
