// Package reftracktest provides an on-disk project for tests: a manifest
// registry with a shot, two assets and released scene files for them.
package reftracktest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scrypster/reftrack/internal/document/sqlite"
	"github.com/scrypster/reftrack/internal/registry"
	"github.com/scrypster/reftrack/pkg/types"
)

// Element IDs of the project.
const (
	ShotID  = 1
	SmurfID = 2
	HatID   = 3
)

// File IDs of the project.
const (
	ShotAnimV1      = 10
	SmurfRigV1      = 20
	SmurfRigV2      = 21
	SmurfModelingV1 = 22
	HatRigV1        = 30
)

// Elements returns the elements of the project: shot sh010 links both
// assets, smurf links hat.
func Elements() []types.Element {
	return []types.Element{
		{ID: ShotID, Kind: types.KindShot, Name: "sh010", Assets: []int{SmurfID, HatID}},
		{ID: SmurfID, Kind: types.KindAsset, Name: "smurf", Assets: []int{HatID}},
		{ID: HatID, Kind: types.KindAsset, Name: "hat"},
	}
}

// Files returns the file records of the project.
func Files() []registry.FileRecord {
	return []registry.FileRecord{
		{ID: ShotAnimV1, Element: ShotID, Task: "anim", Version: 1, ReleaseType: types.ReleaseTypeRelease, FileType: types.FileTypeScene},
		{ID: SmurfRigV1, Element: SmurfID, Task: "rig", Version: 1, ReleaseType: types.ReleaseTypeRelease, FileType: types.FileTypeScene},
		{ID: SmurfRigV2, Element: SmurfID, Task: "rig", Version: 2, ReleaseType: types.ReleaseTypeRelease, FileType: types.FileTypeScene},
		{ID: SmurfModelingV1, Element: SmurfID, Task: "modeling", Version: 1, ReleaseType: types.ReleaseTypeWork, FileType: types.FileTypeScene},
		{ID: HatRigV1, Element: HatID, Task: "rig", Version: 1, ReleaseType: types.ReleaseTypeRelease, FileType: types.FileTypeScene},
	}
}

// Project is a project directory with a written manifest and one scene
// file per file record.
type Project struct {
	Root         string
	ManifestPath string
	Manifest     *registry.Manifest
}

// NewProject writes the project to a temporary directory.
func NewProject(t testing.TB) *Project {
	t.Helper()

	root := t.TempDir()
	m, err := registry.NewManifest(root, Elements(), Files())
	require.NoError(t, err)

	p := &Project{
		Root:         root,
		ManifestPath: filepath.Join(root, "manifest.yaml"),
		Manifest:     m,
	}
	require.NoError(t, m.WriteFile(p.ManifestPath))

	for _, f := range m.Files() {
		item := p.Item(t, f.ID)
		if item.Element.IsAsset() {
			p.WriteScene(t, f.ID, AssetScene(item.Element.Name, f.ID))
		} else {
			p.WriteScene(t, f.ID, ShotScene(f.ID))
		}
	}
	return p
}

// Item returns the content item of fileID.
func (p *Project) Item(t testing.TB, fileID int) types.ContentItem {
	t.Helper()
	item, err := p.Manifest.Item(context.Background(), fileID)
	require.NoError(t, err)
	return item
}

// Path returns the scene file path of fileID.
func (p *Project) Path(t testing.TB, fileID int) string {
	t.Helper()
	path, err := p.Manifest.Path(context.Background(), p.Item(t, fileID))
	require.NoError(t, err)
	return path
}

// WriteScene replaces the scene file of fileID.
func (p *Project) WriteScene(t testing.TB, fileID int, sf *sqlite.SceneFile) {
	t.Helper()
	require.NoError(t, sqlite.WriteSceneFile(p.Path(t, fileID), sf))
}

// AssetScene returns an asset scene: a top level transform with a mesh
// below it and the scene marker of fileID.
func AssetScene(element string, fileID int) *sqlite.SceneFile {
	return &sqlite.SceneFile{
		Nodes: []sqlite.SceneNode{
			{Name: element + "_geo", Type: "transform", Dag: true},
			{Name: element + "_mesh", Type: "mesh", Dag: true, Parent: element + "_geo"},
			{Name: "jb_sceneNode1", Type: "jb_sceneNode", Ints: map[string]int{"taskfile_id": fileID}},
		},
	}
}

// ShotScene returns a shot scene with a camera and the scene marker of fileID.
func ShotScene(fileID int) *sqlite.SceneFile {
	return &sqlite.SceneFile{
		Nodes: []sqlite.SceneNode{
			{Name: "shotcam", Type: "camera", Dag: true},
			{Name: "jb_sceneNode1", Type: "jb_sceneNode", Ints: map[string]int{"taskfile_id": fileID}},
		},
	}
}

// NewDocument opens an in-memory document that is closed with the test.
func NewDocument(t testing.TB) *sqlite.Document {
	t.Helper()
	doc, err := sqlite.NewDocument(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { doc.Close() })
	return doc
}
