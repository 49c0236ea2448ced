package types

import (
	"github.com/google/uuid"
)

// MetadataType describes the shape of a product's metadata fields.
// Products reference a MetadataType by name; the definition itself is
// opaque to the cache and is carried only to be persisted and handed
// back to callers unchanged.
type MetadataType struct {
	Name       string
	Definition map[string]any
}

// Product is a named schema that datasets reference. A product links
// to exactly one MetadataType by name, resolved at catalog load time.
// MetadataTypeDef carries that metadata-type's own definition alongside
// the product, so a structured write that auto-registers a new product
// can auto-register its metadata-type in the same step, matching the
// original implementation's products carrying a full metadata_type
// object rather than a bare name. It is persisted under
// metadata/<name>, never as part of the product's own persisted
// definition; leave it zero-valued when the metadata-type is already
// known to the catalog.
type Product struct {
	Name            string
	MetadataType    string
	MetadataTypeDef MetadataType
	Definition      map[string]any
}

// Dataset is a single catalogued item: a UUID, the name of the product
// it belongs to, a list of storage locations, and an arbitrary
// metadata document. Metadata is opaque JSON; the cache never
// interprets its fields beyond extracting "id" on raw ingest.
type Dataset struct {
	ID       uuid.UUID
	Product  string
	URIs     []string
	Metadata map[string]any
}

// RawDocument is the already-assembled on-wire triple used by the
// raw-document ingestion path. Its shape matches what is stored under
// ds/<uuid> once serialized: {"product": ..., "uris": [...], "metadata": {...}}.
type RawDocument struct {
	Product  string         `json:"product"`
	URIs     []string       `json:"uris"`
	Metadata map[string]any `json:"metadata"`
}

// MaterializedDataset is a Dataset bound to the Product definition it
// referenced at the time it was read back. Readers should treat
// ProductDef as a snapshot: it reflects the catalog state at open
// time, not necessarily the state at write time.
type MaterializedDataset struct {
	Dataset
	ProductDef *Product
}

// GroupEntry is one (name, size) pair reported by a prefix scan over
// the groups sub-database. Size is the number of UUIDs packed into
// the group's value, not a byte length.
type GroupEntry struct {
	Name string
	Size int
}
