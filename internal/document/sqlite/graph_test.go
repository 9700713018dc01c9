package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/reftrack/internal/document"
)

// newTestDocument creates an in-memory document for testing.
func newTestDocument(t *testing.T) *Document {
	t.Helper()
	doc, err := NewDocument(":memory:")
	if err != nil {
		t.Fatalf("failed to create test document: %v", err)
	}
	t.Cleanup(func() { _ = doc.Close() })
	return doc
}

func TestCreateNode_UniqueNames(t *testing.T) {
	doc := newTestDocument(t)
	ctx := context.Background()

	a, err := doc.CreateNode(ctx, "jb_reftrack", "")
	require.NoError(t, err)
	b, err := doc.CreateNode(ctx, "jb_reftrack", "")
	require.NoError(t, err)

	assert.Equal(t, "jb_reftrack1", a.Name)
	assert.Equal(t, "jb_reftrack2", b.Name)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Less(t, a.Seq, b.Seq)
	assert.Equal(t, document.RootNamespace, a.Namespace)
}

func TestCreateNode_RejectsQualifiedNames(t *testing.T) {
	doc := newTestDocument(t)
	ctx := context.Background()

	_, err := doc.CreateNode(ctx, "transform", "a:b")
	assert.ErrorIs(t, err, document.ErrInvalidInput)

	_, err = doc.CreateNode(ctx, "", "a")
	assert.ErrorIs(t, err, document.ErrInvalidInput)
}

func TestCreateNode_InCurrentNamespace(t *testing.T) {
	doc := newTestDocument(t)
	ctx := context.Background()

	ns, err := doc.allocateNamespace(ctx, "smurf_1")
	require.NoError(t, err)
	require.NoError(t, doc.SetNamespace(ctx, ns))

	node, err := doc.CreateNode(ctx, "transform", "geo")
	require.NoError(t, err)
	assert.Equal(t, "smurf_1:geo", node.Name)
	assert.Equal(t, "smurf_1", node.Namespace)
	assert.Equal(t, "geo", node.ShortName())
}

func TestDeleteNode_Locked(t *testing.T) {
	doc := newTestDocument(t)
	ctx := context.Background()

	node, err := doc.CreateNode(ctx, "jb_reftrack", "")
	require.NoError(t, err)
	require.NoError(t, doc.LockNode(ctx, node.ID, true))

	err = doc.DeleteNode(ctx, node.ID)
	assert.ErrorIs(t, err, document.ErrLocked)

	require.NoError(t, doc.LockNode(ctx, node.ID, false))
	require.NoError(t, doc.DeleteNode(ctx, node.ID))

	exists, err := doc.Exists(ctx, node.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = doc.Node(ctx, node.ID)
	assert.ErrorIs(t, err, document.ErrNotFound)
}

func TestAttributes(t *testing.T) {
	doc := newTestDocument(t)
	ctx := context.Background()

	node, err := doc.CreateNode(ctx, "jb_reftrack", "")
	require.NoError(t, err)

	v, err := doc.GetInt(ctx, document.P(node.ID, "identifier"))
	require.NoError(t, err)
	assert.Equal(t, 0, v, "unset attributes read as zero")

	require.NoError(t, doc.SetInt(ctx, document.P(node.ID, "identifier"), 3))
	require.NoError(t, doc.SetString(ctx, document.P(node.ID, "namespace"), "smurf_1"))
	require.NoError(t, doc.SetEnum(ctx, document.P(node.ID, "type"), 1))

	v, err = doc.GetInt(ctx, document.P(node.ID, "identifier"))
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	s, err := doc.GetString(ctx, document.P(node.ID, "namespace"))
	require.NoError(t, err)
	assert.Equal(t, "smurf_1", s)

	e, err := doc.GetEnum(ctx, document.P(node.ID, "type"))
	require.NoError(t, err)
	assert.Equal(t, 1, e)

	_, err = doc.GetString(ctx, document.P(node.ID, "identifier"))
	assert.ErrorIs(t, err, document.ErrInvalidInput)

	assert.ErrorIs(t, doc.SetEnum(ctx, document.P(node.ID, "type"), -1), document.ErrInvalidInput)
	assert.ErrorIs(t, doc.SetInt(ctx, document.P("missing", "identifier"), 1), document.ErrNotFound)
}

func TestConnections_DriveAndKeepValue(t *testing.T) {
	doc := newTestDocument(t)
	ctx := context.Background()

	marker, err := doc.CreateNode(ctx, "jb_sceneNode", "")
	require.NoError(t, err)
	entity, err := doc.CreateNode(ctx, "jb_reftrack", "")
	require.NoError(t, err)

	src := document.P(marker.ID, "taskfile_id")
	dst := document.P(entity.ID, "taskfile_id")

	require.NoError(t, doc.SetInt(ctx, src, 12))
	require.NoError(t, doc.SetInt(ctx, dst, -1))
	require.NoError(t, doc.Connect(ctx, src, dst))
	require.NoError(t, doc.Connect(ctx, src, dst), "connecting twice is a no-op")

	v, err := doc.GetInt(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, 12, v, "driven attribute reads the source")

	connected, err := doc.IsConnected(ctx, src, dst)
	require.NoError(t, err)
	assert.True(t, connected)

	in, err := doc.Connections(ctx, dst, document.Incoming)
	require.NoError(t, err)
	assert.Equal(t, []document.Plug{src}, in)

	out, err := doc.Connections(ctx, src, document.Outgoing)
	require.NoError(t, err)
	assert.Equal(t, []document.Plug{dst}, out)

	require.NoError(t, doc.DeleteNode(ctx, marker.ID))

	v, err = doc.GetInt(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, 12, v, "deleting the source keeps the last value")

	in, err = doc.Connections(ctx, dst, document.Incoming)
	require.NoError(t, err)
	assert.Empty(t, in)
}

func TestDisconnect(t *testing.T) {
	doc := newTestDocument(t)
	ctx := context.Background()

	a, err := doc.CreateNode(ctx, "transform", "a")
	require.NoError(t, err)
	b, err := doc.CreateNode(ctx, "transform", "b")
	require.NoError(t, err)

	err = doc.Disconnect(ctx, document.P(a.ID, "message"), document.P(b.ID, "scene"))
	assert.ErrorIs(t, err, document.ErrNotFound)

	require.NoError(t, doc.Connect(ctx, document.P(a.ID, "message"), document.P(b.ID, "scene")))
	require.NoError(t, doc.Disconnect(ctx, document.P(a.ID, "message"), document.P(b.ID, "scene")))

	connected, err := doc.IsConnected(ctx, document.P(a.ID, "message"), document.P(b.ID, "scene"))
	require.NoError(t, err)
	assert.False(t, connected)
}

func TestAtomic_RollsBack(t *testing.T) {
	doc := newTestDocument(t)
	ctx := context.Background()

	var created string
	err := doc.Atomic(ctx, func(g document.Graph) error {
		node, err := g.CreateNode(ctx, "transform", "tmp")
		if err != nil {
			return err
		}
		created = node.ID
		return document.ErrInvalidInput
	})
	require.ErrorIs(t, err, document.ErrInvalidInput)

	exists, err := doc.Exists(ctx, created)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestNodesByTypeAndReferencedBy(t *testing.T) {
	doc := newTestDocument(t)
	ctx := context.Background()

	first, err := doc.CreateNode(ctx, "jb_sceneNode", "")
	require.NoError(t, err)
	_, err = doc.CreateNode(ctx, "transform", "")
	require.NoError(t, err)
	second, err := doc.CreateNode(ctx, "jb_sceneNode", "")
	require.NoError(t, err)

	nodes, err := doc.NodesByType(ctx, "jb_sceneNode")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, first.ID, nodes[0].ID)
	assert.Equal(t, second.ID, nodes[1].ID)

	ref, err := doc.ReferencedBy(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, ref)

	_, err = doc.ReferencedBy(ctx, "missing")
	assert.ErrorIs(t, err, document.ErrNotFound)
}
