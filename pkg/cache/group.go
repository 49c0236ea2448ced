package cache

import (
	"fmt"

	"github.com/cuemby/geocache/pkg/cacheerr"
	"github.com/cuemby/geocache/pkg/key"
	"github.com/cuemby/geocache/pkg/log"
	"github.com/cuemby/geocache/pkg/storage"
	"github.com/cuemby/geocache/pkg/types"
	"github.com/google/uuid"
)

const uuidSize = 16

// Group is the unpacked form of a groups/<name> value: the UUID list
// plus the raw stored length, so a caller can tell a well-formed
// empty-looking group from one corrupted to a non-multiple-of-16
// length without a second lookup.
type Group struct {
	UUIDs  []uuid.UUID
	RawLen int
}

// Malformed reports whether the stored value's length isn't a
// multiple of 16, per spec.md §8 scenario S6.
func (g Group) Malformed() bool {
	return g.RawLen%uuidSize != 0
}

func packUUIDs(ids []uuid.UUID) []byte {
	out := make([]byte, 0, len(ids)*uuidSize)
	for _, id := range ids {
		out = append(out, id[:]...)
	}
	return out
}

func unpackUUIDs(raw []byte) []uuid.UUID {
	n := len(raw) / uuidSize
	out := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		var id uuid.UUID
		copy(id[:], raw[i*uuidSize:(i+1)*uuidSize])
		out = append(out, id)
	}
	return out
}

// PutGroup packs uuids into 16 bytes apiece, concatenates them, and
// writes the result under the encoded name in a single write
// transaction, per spec.md §4.5.
func (c *Cache) PutGroup(name any, uuids []uuid.UUID) error {
	if err := c.requireWritable(); err != nil {
		return err
	}
	k, err := key.Encode(name)
	if err != nil {
		return fmt.Errorf("cache: encode group name: %w", err)
	}

	wtx, err := c.engine.BeginWrite(storage.Groups)
	if err != nil {
		return err
	}
	if err := wtx.Put(k, packUUIDs(uuids)); err != nil {
		wtx.Rollback()
		return err
	}
	if err := wtx.Commit(); err != nil {
		return err
	}
	log.WithGroup(fmt.Sprint(name)).Debug().Int("count", len(uuids)).Msg("put_group committed")
	return nil
}

// GetGroup returns the unpacked UUID list for name, or nil if the
// group does not exist. It never raises on a malformed stored value;
// callers that need to detect corruption check Group.Malformed.
func (c *Cache) GetGroup(name any) (*Group, error) {
	k, err := key.Encode(name)
	if err != nil {
		return nil, fmt.Errorf("cache: encode group name: %w", err)
	}

	rtx, err := c.engine.BeginRead()
	if err != nil {
		return nil, err
	}
	defer rtx.Rollback()

	raw := rtx.Bucket(storage.Groups).Get(k)
	if raw == nil {
		return nil, nil
	}
	return &Group{UUIDs: unpackUUIDs(raw), RawLen: len(raw)}, nil
}

// Groups returns (name, count) pairs for every group whose name has
// the given prefix, where count = len(value) / 16. A nil prefix
// scans every group.
func (c *Cache) Groups(prefix any) ([]types.GroupEntry, error) {
	var prefixBytes []byte
	if prefix != nil {
		var err error
		prefixBytes, err = key.Encode(prefix)
		if err != nil {
			return nil, fmt.Errorf("cache: encode group prefix: %w", err)
		}
	}

	rtx, err := c.engine.BeginRead()
	if err != nil {
		return nil, err
	}
	defer rtx.Rollback()

	var entries []types.GroupEntry
	err = storage.PrefixScan(rtx.Bucket(storage.Groups), prefixBytes, storage.Groups, func(k, v []byte) error {
		entries = append(entries, types.GroupEntry{Name: string(k), Size: len(v) / uuidSize})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// StreamGroup yields each dataset in the group's stored order under a
// single read transaction, calling fn for each. A missing group
// returns cacheerr.ErrNotFound; a malformed stored value returns
// cacheerr.ErrFormat; a UUID in the group with no matching dataset
// aborts with cacheerr.ErrMissingDataset, per spec.md §4.5.
func (c *Cache) StreamGroup(name any, fn func(types.MaterializedDataset) error) error {
	k, err := key.Encode(name)
	if err != nil {
		return fmt.Errorf("cache: encode group name: %w", err)
	}

	rtx, err := c.engine.BeginRead()
	if err != nil {
		return err
	}
	defer rtx.Rollback()

	raw := rtx.Bucket(storage.Groups).Get(k)
	if raw == nil {
		return fmt.Errorf("cache: no such group: %w", cacheerr.ErrNotFound)
	}
	if len(raw)%uuidSize != 0 {
		return fmt.Errorf("cache: group value length %d not a multiple of %d: %w", len(raw), uuidSize, cacheerr.ErrFormat)
	}

	ds := rtx.Bucket(storage.DS)
	for _, id := range unpackUUIDs(raw) {
		idKey, err := key.Encode(id)
		if err != nil {
			return fmt.Errorf("cache: encode dataset id: %w", err)
		}
		dv := ds.Get(idKey)
		if dv == nil {
			return fmt.Errorf("cache: group %q references missing dataset %s: %w", name, id, cacheerr.ErrMissingDataset)
		}
		doc, err := c.decodeDataset(dv)
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
