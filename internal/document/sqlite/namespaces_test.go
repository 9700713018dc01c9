package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/reftrack/internal/document"
)

func TestNamespaces(t *testing.T) {
	doc := newTestDocument(t)
	ctx := context.Background()

	ns, err := doc.CurrentNamespace(ctx)
	require.NoError(t, err)
	assert.Equal(t, document.RootNamespace, ns)

	err = doc.SetNamespace(ctx, "missing")
	assert.ErrorIs(t, err, document.ErrNotFound)

	created, err := doc.allocateNamespace(ctx, "smurf_1")
	require.NoError(t, err)
	require.NoError(t, doc.SetNamespace(ctx, ":"+created))

	nested, err := doc.allocateNamespace(ctx, "hat_1")
	require.NoError(t, err)
	assert.Equal(t, "smurf_1:hat_1", nested)

	_, err = doc.CreateNode(ctx, "transform", "geo")
	require.NoError(t, err)

	err = doc.RemoveNamespace(ctx, "smurf_1")
	assert.ErrorIs(t, err, document.ErrNamespaceNotEmpty)

	err = doc.RemoveNamespace(ctx, document.RootNamespace)
	assert.ErrorIs(t, err, document.ErrInvalidInput)

	require.NoError(t, doc.SetNamespace(ctx, nested))
	_, err = doc.CreateNode(ctx, "transform", "brim")
	require.NoError(t, err)

	content, err := doc.NamespaceContent(ctx, "smurf_1")
	require.NoError(t, err)
	assert.Len(t, content, 2, "content includes child namespaces")

	root, err := doc.NamespaceContent(ctx, document.RootNamespace)
	require.NoError(t, err)
	assert.Empty(t, root)
}

func TestRemoveNamespace_ResetsCurrent(t *testing.T) {
	doc := newTestDocument(t)
	ctx := context.Background()

	ns, err := doc.allocateNamespace(ctx, "smurf_1")
	require.NoError(t, err)
	require.NoError(t, doc.SetNamespace(ctx, ns))
	require.NoError(t, doc.RemoveNamespace(ctx, ns))

	current, err := doc.CurrentNamespace(ctx)
	require.NoError(t, err)
	assert.Equal(t, document.RootNamespace, current)
}

func TestNamespaceContent_EscapesLike(t *testing.T) {
	doc := newTestDocument(t)
	ctx := context.Background()

	a, err := doc.allocateNamespace(ctx, "a_1")
	require.NoError(t, err)
	b, err := doc.allocateNamespace(ctx, "ab1")
	require.NoError(t, err)

	require.NoError(t, doc.addNamespace(ctx, b+":x"))
	require.NoError(t, doc.SetNamespace(ctx, b+":x"))
	_, err = doc.CreateNode(ctx, "transform", "")
	require.NoError(t, err)

	content, err := doc.NamespaceContent(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestReadSceneFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadSceneFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, document.ErrFileNotFound)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("nodes: [[["), 0o644))
	_, err = ReadSceneFile(bad)
	assert.ErrorIs(t, err, document.ErrInvalidInput)
}

func TestSceneFileValidate(t *testing.T) {
	tests := []struct {
		name string
		sf   SceneFile
		ok   bool
	}{
		{
			name: "valid",
			sf: SceneFile{
				Nodes:       []SceneNode{{Name: "a", Type: "transform"}, {Name: "b", Type: "mesh", Parent: "a"}},
				Connections: []SceneConnection{{Src: "a.message", Dst: "b.scene"}},
			},
			ok: true,
		},
		{
			name: "duplicate node",
			sf:   SceneFile{Nodes: []SceneNode{{Name: "a", Type: "transform"}, {Name: "a", Type: "mesh"}}},
		},
		{
			name: "unknown parent",
			sf:   SceneFile{Nodes: []SceneNode{{Name: "a", Type: "transform", Parent: "b"}}},
		},
		{
			name: "unknown connection node",
			sf: SceneFile{
				Nodes:       []SceneNode{{Name: "a", Type: "transform"}},
				Connections: []SceneConnection{{Src: "a.message", Dst: "b.scene"}},
			},
		},
		{
			name: "malformed plug",
			sf: SceneFile{
				Nodes:       []SceneNode{{Name: "a", Type: "transform"}},
				Connections: []SceneConnection{{Src: "a", Dst: "a.scene"}},
			},
		},
		{
			name: "reference without namespace",
			sf:   SceneFile{References: []SceneReference{{Node: "hatRN", Path: "hat.yaml"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sf.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, document.ErrInvalidInput)
		})
	}
}
