package catalog

import (
	"path/filepath"
	"testing"

	"github.com/cuemby/geocache/pkg/compress"
	"github.com/cuemby/geocache/pkg/storage"
	"github.com/cuemby/geocache/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestEngine(t *testing.T) *storage.Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	e, err := storage.Create(path, storage.CreateOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestCatalog_RegisterAndPersistRoundTrip(t *testing.T) {
	e := openTestEngine(t)
	comp, err := compress.NewCodec(compress.DefaultLevel, nil)
	require.NoError(t, err)
	defer comp.Close()

	cat := Empty()
	cat.RegisterMetadataType(types.MetadataType{Name: "eo3", Definition: map[string]any{"name": "eo3"}})
	cat.RegisterProduct(types.Product{
		Name:         "s2_l2a",
		MetadataType: "eo3",
		Definition:   map[string]any{"name": "s2_l2a", "metadata_type": "eo3"},
	})
	require.True(t, cat.Dirty())
	require.NoError(t, cat.Persist(e, comp, false))
	assert.False(t, cat.Dirty())

	rtx, err := e.BeginRead()
	require.NoError(t, err)
	defer rtx.Rollback()

	loaded, err := Load(rtx, comp)
	require.NoError(t, err)

	p, ok := loaded.Product("s2_l2a")
	require.True(t, ok)
	assert.Equal(t, "eo3", p.MetadataType)

	mt, ok := loaded.MetadataType("eo3")
	require.True(t, ok)
	assert.Equal(t, "eo3", mt.Name)
}

func TestCatalog_RegisterProductCarriesMetadataType(t *testing.T) {
	e := openTestEngine(t)
	comp, err := compress.NewCodec(compress.DefaultLevel, nil)
	require.NoError(t, err)
	defer comp.Close()

	cat := Empty()
	cat.RegisterProduct(types.Product{
		Name:            "s2_l2a",
		MetadataType:    "eo3",
		MetadataTypeDef: types.MetadataType{Name: "eo3", Definition: map[string]any{"name": "eo3"}},
		Definition:      map[string]any{"name": "s2_l2a", "metadata_type": "eo3"},
	})
	require.NoError(t, cat.Persist(e, comp, false))

	rtx, err := e.BeginRead()
	require.NoError(t, err)
	defer rtx.Rollback()

	loaded, err := Load(rtx, comp)
	require.NoError(t, err)

	_, ok := loaded.Product("s2_l2a")
	require.True(t, ok)
	_, ok = loaded.MetadataType("eo3")
	require.True(t, ok)
}

func TestCatalog_LoadRejectsUnknownMetadataType(t *testing.T) {
	e := openTestEngine(t)
	comp, err := compress.NewCodec(compress.DefaultLevel, nil)
	require.NoError(t, err)
	defer comp.Close()

	cat := Empty()
	cat.RegisterProduct(types.Product{
		Name:       "orphan",
		Definition: map[string]any{"name": "orphan", "metadata_type": "does-not-exist"},
	})
	require.NoError(t, cat.Persist(e, comp, false))

	rtx, err := e.BeginRead()
	require.NoError(t, err)
	defer rtx.Rollback()

	_, err = Load(rtx, comp)
	assert.Error(t, err)
}

func TestCatalog_RegisterProductIsIdempotent(t *testing.T) {
	cat := Empty()
	cat.RegisterProduct(types.Product{Name: "p", Definition: map[string]any{"version": 1}})
	cat.mu.Lock()
	cat.dirty = false
	cat.mu.Unlock()

	cat.RegisterProduct(types.Product{Name: "p", Definition: map[string]any{"version": 2}})
	assert.False(t, cat.Dirty())

	p, _ := cat.Product("p")
	assert.Equal(t, 1, p.Definition["version"])
}

func TestCatalog_PersistNoOverwriteKeepsExisting(t *testing.T) {
	e := openTestEngine(t)
	comp, err := compress.NewCodec(compress.DefaultLevel, nil)
	require.NoError(t, err)
	defer comp.Close()

	cat := Empty()
	cat.RegisterMetadataType(types.MetadataType{Name: "eo3", Definition: map[string]any{"v": 1}})
	require.NoError(t, cat.Persist(e, comp, false))

	cat2 := Empty()
	cat2.RegisterMetadataType(types.MetadataType{Name: "eo3", Definition: map[string]any{"v": 2}})
	require.NoError(t, cat2.Persist(e, comp, false))

	rtx, err := e.BeginRead()
	require.NoError(t, err)
	defer rtx.Rollback()
	loaded, err := Load(rtx, comp)
	require.NoError(t, err)
	mt, _ := loaded.MetadataType("eo3")
	assert.Equal(t, float64(1), mt.Definition["v"])
}

func TestCatalog_FromOverride(t *testing.T) {
	cat := FromOverride(
		map[string]types.MetadataType{"eo3": {Name: "eo3"}},
		map[string]types.Product{"p": {Name: "p", MetadataType: "eo3"}},
	)
	_, ok := cat.Product("p")
	assert.True(t, ok)
	_, ok = cat.Product("missing")
	assert.False(t, ok)
}
