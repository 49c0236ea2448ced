// Package cacheerr defines the sentinel error kinds surfaced by the
// dataset cache, usable with errors.Is. Engine-level failures are not
// a distinct kind here: they are propagated by wrapping the
// underlying bbolt error with %w, matching the contextual-wrapping
// idiom used throughout the storage package this module is grounded
// on, rather than being re-boxed into a cache-specific type.
package cacheerr

import "errors"

var (
	// ErrFormat covers version mismatches, missing version fields,
	// corrupt group value lengths, and a missing metadata.id on raw
	// ingest.
	ErrFormat = errors.New("cacheerr: format error")

	// ErrNotFound covers opening a non-existent database when create
	// was not requested, or an existing database missing its info
	// sub-database.
	ErrNotFound = errors.New("cacheerr: not found")

	// ErrUnknownProduct means a dataset record's product name is not
	// present in the active catalog.
	ErrUnknownProduct = errors.New("cacheerr: unknown product")

	// ErrMissingDataset means a group references a UUID absent from
	// the ds sub-database.
	ErrMissingDataset = errors.New("cacheerr: missing dataset")

	// ErrMisuse covers a write attempted through a read-only handle,
	// or an invalid logical-key variant.
	ErrMisuse = errors.New("cacheerr: misuse")
)
