package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/reftrack/pkg/types"
)

func testManifest(t *testing.T, root string) *Manifest {
	t.Helper()
	m, err := NewManifest(root,
		[]types.Element{
			{ID: 1, Kind: types.KindShot, Name: "sh010", Assets: []int{3, 2}},
			{ID: 2, Kind: types.KindAsset, Name: "smurf"},
			{ID: 3, Kind: types.KindAsset, Name: "hat"},
		},
		[]FileRecord{
			{ID: 11, Element: 2, Task: "rig", Version: 2, ReleaseType: types.ReleaseTypeRelease, FileType: types.FileTypeScene},
			{ID: 10, Element: 2, Task: "rig", Version: 1, ReleaseType: types.ReleaseTypeRelease, FileType: types.FileTypeScene},
			{ID: 12, Element: 2, Task: "rig", Version: 1, ReleaseType: types.ReleaseTypeWork, FileType: types.FileTypeScene},
			{ID: 20, Element: 3, Task: "model", Descriptor: "lod1", Version: 4, ReleaseType: types.ReleaseTypeRelease, FileType: types.FileTypeScene},
		},
	)
	require.NoError(t, err)
	return m
}

func TestLayoutPath(t *testing.T) {
	l := Layout{Root: "/proj"}

	p, err := l.Path(types.ContentItem{
		Element:     types.Element{Kind: types.KindAsset, Name: "hat"},
		Task:        "model",
		Descriptor:  "lod1",
		Version:     4,
		ReleaseType: types.ReleaseTypeRelease,
		FileType:    types.FileTypeScene,
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/proj", "assets", "hat", "model", "release", "hat_model_lod1_v004.yaml"), p)

	p, err = l.Path(types.ContentItem{
		Element:     types.Element{Kind: types.KindShot, Name: "sh010"},
		Task:        "anim",
		Version:     12,
		ReleaseType: types.ReleaseTypeWork,
		FileType:    "abc",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/proj", "shots", "sh010", "anim", "work", "sh010_anim_v012.abc"), p)

	_, err = l.Path(types.ContentItem{Element: types.Element{Kind: types.KindAsset, Name: "hat"}, Task: "model", ReleaseType: "release"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestManifest_Lookups(t *testing.T) {
	m := testManifest(t, "/proj")
	ctx := context.Background()

	item, err := m.Item(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, "smurf", item.Element.Name)
	assert.Equal(t, 2, item.Version)

	id, err := m.FileID(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, 11, id)

	_, err = m.Item(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)

	item.Version = 9
	_, err = m.FileID(ctx, item)
	assert.ErrorIs(t, err, ErrNotFound)

	e, err := m.FindElement(ctx, types.KindAsset, "hat")
	require.NoError(t, err)
	assert.Equal(t, 3, e.ID)

	_, err = m.FindElement(ctx, types.KindShot, "hat")
	assert.ErrorIs(t, err, ErrNotFound)

	shot, err := m.Element(ctx, 1)
	require.NoError(t, err)
	assets, err := m.LinkedAssets(ctx, shot)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "smurf", assets[0].Name)
	assert.Equal(t, "hat", assets[1].Name)
}

func TestManifest_Options(t *testing.T) {
	m := testManifest(t, "/proj")
	ctx := context.Background()

	smurf, err := m.Element(ctx, 2)
	require.NoError(t, err)

	items, err := m.Options(ctx, smurf, types.ReleaseTypeRelease, types.FileTypeScene)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].Version)
	assert.Equal(t, 2, items[1].Version)

	all, err := m.Options(ctx, smurf, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = m.Options(ctx, types.Element{ID: 42}, "", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewManifest_Invalid(t *testing.T) {
	_, err := NewManifest("/proj", []types.Element{{ID: 1, Kind: types.KindAsset, Name: "a"}, {ID: 1, Kind: types.KindAsset, Name: "b"}}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewManifest("/proj", []types.Element{{ID: 1, Kind: types.KindShot, Name: "sh010", Assets: []int{5}}}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewManifest("/proj", nil, []FileRecord{{ID: 1, Element: 7, Task: "rig", Version: 1, ReleaseType: "release"}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestManifest_WriteAndLoad(t *testing.T) {
	dir := t.TempDir()
	m := testManifest(t, "project")

	path := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, m.WriteFile(path))

	loaded, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "project"), loaded.Root(), "relative roots resolve against the manifest directory")
	assert.Equal(t, m.Elements(), loaded.Elements())
	assert.Equal(t, m.Files(), loaded.Files())

	_, err = LoadManifest(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, ErrNotFound)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("elements: {"), 0o644))
	_, err = LoadManifest(bad)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
