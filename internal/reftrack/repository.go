package reftrack

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/scrypster/reftrack/internal/document"
	"github.com/scrypster/reftrack/internal/registry"
	"github.com/scrypster/reftrack/pkg/types"
)

// Node types and attributes of tracked entities and scene markers.
const (
	EntityNodeType = "jb_reftrack"
	SceneNodeType  = "jb_sceneNode"
	GroupNodeType  = "jb_asset"

	AttrType          = "type"
	AttrNamespace     = "namespace"
	AttrReferenceNode = "referencenode"
	AttrParent        = "parent"
	AttrChildren      = "children"
	AttrSceneNode     = "scenenode"
	AttrTaskfileID    = "taskfile_id"
	AttrIdentifier    = "identifier"

	// AttrReftrack is the attribute of a scene marker an entity links to.
	AttrReftrack = "reftrack"
)

// NoFileID is the taskfile_id of entities without known content.
const NoFileID = -1

// Repository owns every tracked entity record of a host document. Entities
// are jb_reftrack nodes; parent and child links, the reference handle and
// the content link are connections between nodes.
type Repository struct {
	doc   document.Document
	types *TypeRegistry
	log   zerolog.Logger
}

// NewRepository creates a repository over doc.
func NewRepository(doc document.Document, typeRegistry *TypeRegistry, logger zerolog.Logger) *Repository {
	return &Repository{
		doc:   doc,
		types: typeRegistry,
		log:   logger.With().Str("component", "repository").Logger(),
	}
}

// Types returns the type registry of the repository.
func (r *Repository) Types() *TypeRegistry {
	return r.types
}

// Create allocates a root level entity of the given type.
func (r *Repository) Create(ctx context.Context, typeTag string, identifier int) (string, error) {
	return r.CreateUnder(ctx, typeTag, "", identifier)
}

// CreateUnder allocates an entity below parent, or at the root level when
// parent is empty. A negative identifier picks the next free one among the
// siblings of the same type. The node is locked.
func (r *Repository) CreateUnder(ctx context.Context, typeTag, parent string, identifier int) (string, error) {
	if !r.types.IsRegistered(typeTag) {
		return "", fmt.Errorf("%w: %q has no registered strategy", ErrInvalidType, typeTag)
	}
	typeIndex, err := r.types.Index(typeTag)
	if err != nil {
		return "", err
	}

	if parent != "" {
		if err := r.requireEntity(ctx, parent); err != nil {
			return "", err
		}
	}

	if identifier < 0 {
		identifier, err = r.NextIdentifier(ctx, parent, typeTag)
		if err != nil {
			return "", err
		}
	} else if err := r.checkIdentifier(ctx, "", parent, typeTag, identifier); err != nil {
		return "", err
	}

	var id string
	err = document.PreserveNamespace(ctx, r.doc, document.RootNamespace, func() error {
		return r.doc.Atomic(ctx, func(g document.Graph) error {
			node, err := g.CreateNode(ctx, EntityNodeType, "")
			if err != nil {
				return err
			}
			if err := g.SetEnum(ctx, document.P(node.ID, AttrType), typeIndex); err != nil {
				return err
			}
			if err := g.SetInt(ctx, document.P(node.ID, AttrIdentifier), identifier); err != nil {
				return err
			}
			if err := g.SetInt(ctx, document.P(node.ID, AttrTaskfileID), NoFileID); err != nil {
				return err
			}
			if err := g.SetString(ctx, document.P(node.ID, AttrNamespace), ""); err != nil {
				return err
			}
			if parent != "" {
				if err := g.Connect(ctx, document.P(node.ID, AttrParent), document.P(parent, AttrChildren)); err != nil {
					return err
				}
			}
			if err := g.LockNode(ctx, node.ID, true); err != nil {
				return err
			}
			id = node.ID
			return nil
		})
	})
	if err != nil {
		return "", HostError(err)
	}

	r.log.Debug().Str("entity", id).Str("type", typeTag).Int("identifier", identifier).Msg("created entity")
	return id, nil
}

// Exists reports whether id is an entity of the document.
func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	node, err := r.doc.Node(ctx, id)
	if errors.Is(err, document.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, HostError(err)
	}
	return node.Type == EntityNodeType, nil
}

func (r *Repository) requireEntity(ctx context.Context, id string) error {
	ok, err := r.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Parent returns the parent of an entity, or "" for root entities.
func (r *Repository) Parent(ctx context.Context, id string) (string, error) {
	if err := r.requireEntity(ctx, id); err != nil {
		return "", err
	}
	plugs, err := r.doc.Connections(ctx, document.P(id, AttrParent), document.Outgoing)
	if err != nil {
		return "", HostError(err)
	}
	if len(plugs) > 1 {
		return "", fmt.Errorf("%w: entity %s has %d parents", ErrCorruptState, id, len(plugs))
	}
	if len(plugs) == 0 {
		return "", nil
	}
	return plugs[0].Node, nil
}

// SetParent moves child below parent in one transaction. An empty parent
// detaches the child. Cycles and identifier collisions are rejected.
func (r *Repository) SetParent(ctx context.Context, child, parent string) error {
	if err := r.requireEntity(ctx, child); err != nil {
		return err
	}
	if parent != "" {
		if err := r.requireEntity(ctx, parent); err != nil {
			return err
		}
		if err := r.checkCycle(ctx, child, parent); err != nil {
			return err
		}
	}

	typeTag, err := r.Type(ctx, child)
	if err != nil {
		return err
	}
	identifier, err := r.Identifier(ctx, child)
	if err != nil {
		return err
	}
	if err := r.checkIdentifier(ctx, child, parent, typeTag, identifier); err != nil {
		return err
	}

	err = r.doc.Atomic(ctx, func(g document.Graph) error {
		current, err := g.Connections(ctx, document.P(child, AttrParent), document.Outgoing)
		if err != nil {
			return err
		}
		for _, p := range current {
			if err := g.Disconnect(ctx, document.P(child, AttrParent), p); err != nil {
				return err
			}
		}
		if parent == "" {
			return nil
		}
		return g.Connect(ctx, document.P(child, AttrParent), document.P(parent, AttrChildren))
	})
	if err != nil {
		return HostError(err)
	}

	r.log.Debug().Str("entity", child).Str("parent", parent).Msg("set parent")
	return nil
}

// checkCycle walks up from parent and fails if it reaches child.
func (r *Repository) checkCycle(ctx context.Context, child, parent string) error {
	seen := map[string]bool{}
	for p := parent; p != ""; {
		if p == child {
			return fmt.Errorf("%w: %s cannot be parented below itself", ErrCycle, child)
		}
		if seen[p] {
			return fmt.Errorf("%w: existing cycle through %s", ErrCorruptState, p)
		}
		seen[p] = true

		next, err := r.Parent(ctx, p)
		if err != nil {
			return err
		}
		p = next
	}
	return nil
}

// Children lists the children of an entity in link order.
func (r *Repository) Children(ctx context.Context, id string) ([]string, error) {
	if err := r.requireEntity(ctx, id); err != nil {
		return nil, err
	}
	plugs, err := r.doc.Connections(ctx, document.P(id, AttrChildren), document.Incoming)
	if err != nil {
		return nil, HostError(err)
	}
	var children []string
	for _, p := range plugs {
		children = append(children, p.Node)
	}
	return children, nil
}

// siblings lists the entities directly below parent. For the root level
// these are the parentless entities that are local to the document.
func (r *Repository) siblings(ctx context.Context, parent string) ([]string, error) {
	if parent != "" {
		return r.Children(ctx, parent)
	}

	all, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	var roots []string
	for _, id := range all {
		p, err := r.Parent(ctx, id)
		if err != nil {
			return nil, err
		}
		nested, err := r.ReferencedBy(ctx, id)
		if err != nil {
			return nil, err
		}
		if p == "" && nested == "" {
			roots = append(roots, id)
		}
	}
	return roots, nil
}

// checkIdentifier fails if a sibling other than self already uses identifier
// for typeTag below parent.
func (r *Repository) checkIdentifier(ctx context.Context, self, parent, typeTag string, identifier int) error {
	siblings, err := r.siblings(ctx, parent)
	if err != nil {
		return err
	}
	for _, s := range siblings {
		if s == self {
			continue
		}
		t, err := r.Type(ctx, s)
		if err != nil {
			return err
		}
		id, err := r.Identifier(ctx, s)
		if err != nil {
			return err
		}
		if t == typeTag && id == identifier {
			return fmt.Errorf("%w: %s %d is already used by %s", ErrDuplicateIdentifier, typeTag, identifier, s)
		}
	}
	return nil
}

// NextIdentifier returns the lowest identifier not used by a sibling of the
// given type below parent.
func (r *Repository) NextIdentifier(ctx context.Context, parent, typeTag string) (int, error) {
	siblings, err := r.siblings(ctx, parent)
	if err != nil {
		return 0, err
	}
	used := map[int]bool{}
	for _, s := range siblings {
		t, err := r.Type(ctx, s)
		if err != nil {
			return 0, err
		}
		if t != typeTag {
			continue
		}
		id, err := r.Identifier(ctx, s)
		if err != nil {
			return 0, err
		}
		used[id] = true
	}

	next := 0
	for used[next] {
		next++
	}
	return next, nil
}

// Type returns the type tag of an entity.
func (r *Repository) Type(ctx context.Context, id string) (string, error) {
	if err := r.requireEntity(ctx, id); err != nil {
		return "", err
	}
	index, err := r.doc.GetEnum(ctx, document.P(id, AttrType))
	if err != nil {
		return "", HostError(err)
	}
	return r.types.TagAt(index)
}

// SetType changes the type of an entity that has no content attached.
func (r *Repository) SetType(ctx context.Context, id, typeTag string) error {
	index, err := r.types.Index(typeTag)
	if err != nil {
		return err
	}
	if err := r.requireNoContent(ctx, id); err != nil {
		return err
	}
	if err := r.doc.SetEnum(ctx, document.P(id, AttrType), index); err != nil {
		return HostError(err)
	}
	return nil
}

// Identifier returns the sibling identifier of an entity.
func (r *Repository) Identifier(ctx context.Context, id string) (int, error) {
	if err := r.requireEntity(ctx, id); err != nil {
		return 0, err
	}
	v, err := r.doc.GetInt(ctx, document.P(id, AttrIdentifier))
	if err != nil {
		return 0, HostError(err)
	}
	return v, nil
}

// ReferencedBy returns the reference the entity node itself was loaded
// from, or "" if the node is local to the document.
func (r *Repository) ReferencedBy(ctx context.Context, id string) (string, error) {
	ref, err := r.doc.ReferencedBy(ctx, id)
	if err != nil {
		return "", notFound(err, id)
	}
	return ref, nil
}

// DeleteEntity removes the node of an entity without content. Children are
// detached, not deleted.
func (r *Repository) DeleteEntity(ctx context.Context, id string) error {
	if err := r.requireNoContent(ctx, id); err != nil {
		return err
	}

	err := document.WithUnlocked(ctx, r.doc, id, func() error {
		return r.doc.DeleteNode(ctx, id)
	})
	if err != nil {
		return HostError(err)
	}

	r.log.Debug().Str("entity", id).Msg("deleted entity")
	return nil
}

func (r *Repository) requireNoContent(ctx context.Context, id string) error {
	ref, err := r.Reference(ctx, id)
	if err != nil {
		return err
	}
	link, err := r.ContentLink(ctx, id)
	if err != nil {
		return err
	}
	if ref != "" || link != "" {
		return fmt.Errorf("%w: entity %s", ErrContentAttached, id)
	}
	return nil
}

// All lists every entity in creation order.
func (r *Repository) All(ctx context.Context) ([]string, error) {
	nodes, err := r.doc.NodesByType(ctx, EntityNodeType)
	if err != nil {
		return nil, HostError(err)
	}
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids, nil
}

// ConnectContent links an entity to the scene marker of its content and
// mirrors the marker's taskfile_id onto the entity. Any previous link is
// replaced.
func (r *Repository) ConnectContent(ctx context.Context, id, marker string) error {
	if err := r.requireEntity(ctx, id); err != nil {
		return err
	}
	node, err := r.doc.Node(ctx, marker)
	if err != nil {
		return notFound(err, marker)
	}
	if node.Type != SceneNodeType {
		return fmt.Errorf("%w: %s is a %s, not a scene marker", ErrCorruptState, node.Name, node.Type)
	}

	err = r.doc.Atomic(ctx, func(g document.Graph) error {
		if err := disconnectAll(ctx, g, document.P(id, AttrSceneNode), document.Outgoing); err != nil {
			return err
		}
		if err := disconnectAll(ctx, g, document.P(id, AttrTaskfileID), document.Incoming); err != nil {
			return err
		}
		if err := g.Connect(ctx, document.P(id, AttrSceneNode), document.P(marker, AttrReftrack)); err != nil {
			return err
		}
		return g.Connect(ctx, document.P(marker, AttrTaskfileID), document.P(id, AttrTaskfileID))
	})
	if err != nil {
		return HostError(err)
	}

	r.log.Debug().Str("entity", id).Str("marker", node.Name).Msg("connected content")
	return nil
}

// ContentLink returns the scene marker an entity is linked to, or "".
func (r *Repository) ContentLink(ctx context.Context, id string) (string, error) {
	if err := r.requireEntity(ctx, id); err != nil {
		return "", err
	}
	plugs, err := r.doc.Connections(ctx, document.P(id, AttrSceneNode), document.Outgoing)
	if err != nil {
		return "", HostError(err)
	}
	if len(plugs) > 1 {
		return "", fmt.Errorf("%w: entity %s links %d scene markers", ErrCorruptState, id, len(plugs))
	}
	if len(plugs) == 0 {
		return "", nil
	}
	return plugs[0].Node, nil
}

// SetReference attaches ref to an entity and records the reference
// namespace on it. An empty ref detaches the current reference; the
// namespace is kept because the content stays in it.
func (r *Repository) SetReference(ctx context.Context, id, ref string) error {
	if err := r.requireEntity(ctx, id); err != nil {
		return err
	}

	var ns string
	if ref != "" {
		var err error
		if ns, err = r.doc.ReferenceNamespace(ctx, ref); err != nil {
			return notFound(err, ref)
		}
	}

	err := r.doc.Atomic(ctx, func(g document.Graph) error {
		if err := disconnectAll(ctx, g, document.P(id, AttrReferenceNode), document.Incoming); err != nil {
			return err
		}
		if ref == "" {
			return nil
		}
		if err := g.Connect(ctx, document.P(ref, document.MessageAttr), document.P(id, AttrReferenceNode)); err != nil {
			return err
		}
		return g.SetString(ctx, document.P(id, AttrNamespace), ns)
	})
	if err != nil {
		return HostError(err)
	}
	return nil
}

// Reference returns the reference attached to an entity, or "" if the
// content is imported or absent.
func (r *Repository) Reference(ctx context.Context, id string) (string, error) {
	if err := r.requireEntity(ctx, id); err != nil {
		return "", err
	}
	plugs, err := r.doc.Connections(ctx, document.P(id, AttrReferenceNode), document.Incoming)
	if err != nil {
		return "", HostError(err)
	}
	if len(plugs) > 1 {
		return "", fmt.Errorf("%w: entity %s has %d references", ErrCorruptState, id, len(plugs))
	}
	if len(plugs) == 0 {
		return "", nil
	}
	return plugs[0].Node, nil
}

// Namespace returns the namespace of the entity's content.
func (r *Repository) Namespace(ctx context.Context, id string) (string, error) {
	if err := r.requireEntity(ctx, id); err != nil {
		return "", err
	}
	ns, err := r.doc.GetString(ctx, document.P(id, AttrNamespace))
	if err != nil {
		return "", HostError(err)
	}
	return ns, nil
}

// SetNamespace records the namespace of imported content.
func (r *Repository) SetNamespace(ctx context.Context, id, ns string) error {
	if err := r.requireEntity(ctx, id); err != nil {
		return err
	}
	return HostError(r.doc.SetString(ctx, document.P(id, AttrNamespace), ns))
}

// FileID returns the identifier of the loaded content item, NoFileID if no
// content was ever attached.
func (r *Repository) FileID(ctx context.Context, id string) (int, error) {
	if err := r.requireEntity(ctx, id); err != nil {
		return 0, err
	}
	v, err := r.doc.GetInt(ctx, document.P(id, AttrTaskfileID))
	if err != nil {
		return 0, HostError(err)
	}
	return v, nil
}

// ContentItem resolves the content item loaded for an entity through files.
func (r *Repository) ContentItem(ctx context.Context, id string, files registry.Registry) (types.ContentItem, error) {
	fileID, err := r.FileID(ctx, id)
	if err != nil {
		return types.ContentItem{}, err
	}
	if fileID == NoFileID {
		return types.ContentItem{}, fmt.Errorf("%w: entity %s has no content item", ErrMissingContent, id)
	}
	return files.Item(ctx, fileID)
}

// SetFileID stores a content item identifier directly on an entity, for
// imported content without a traceable scene marker.
func (r *Repository) SetFileID(ctx context.Context, id string, fileID int) error {
	if err := r.requireEntity(ctx, id); err != nil {
		return err
	}
	err := r.doc.Atomic(ctx, func(g document.Graph) error {
		if err := disconnectAll(ctx, g, document.P(id, AttrTaskfileID), document.Incoming); err != nil {
			return err
		}
		return g.SetInt(ctx, document.P(id, AttrTaskfileID), fileID)
	})
	return HostError(err)
}

// ClearContent resets the content links of an entity after its content
// was deleted.
func (r *Repository) ClearContent(ctx context.Context, id string) error {
	if err := r.requireEntity(ctx, id); err != nil {
		return err
	}
	err := r.doc.Atomic(ctx, func(g document.Graph) error {
		for _, c := range []struct {
			plug document.Plug
			dir  document.Direction
		}{
			{document.P(id, AttrReferenceNode), document.Incoming},
			{document.P(id, AttrSceneNode), document.Outgoing},
			{document.P(id, AttrTaskfileID), document.Incoming},
		} {
			if err := disconnectAll(ctx, g, c.plug, c.dir); err != nil {
				return err
			}
		}
		if err := g.SetString(ctx, document.P(id, AttrNamespace), ""); err != nil {
			return err
		}
		return g.SetInt(ctx, document.P(id, AttrTaskfileID), NoFileID)
	})
	return HostError(err)
}

// Status derives the lifecycle status of an entity from the document.
func (r *Repository) Status(ctx context.Context, id string) (types.Status, error) {
	ref, err := r.Reference(ctx, id)
	if err != nil {
		return types.StatusNone, err
	}
	if ref != "" {
		loaded, err := r.doc.IsLoaded(ctx, ref)
		if err != nil {
			return types.StatusNone, HostError(err)
		}
		if loaded {
			return types.StatusLoaded, nil
		}
		return types.StatusUnloaded, nil
	}

	link, err := r.ContentLink(ctx, id)
	if err != nil {
		return types.StatusNone, err
	}
	if link != "" {
		return types.StatusImported, nil
	}

	ns, err := r.Namespace(ctx, id)
	if err != nil {
		return types.StatusNone, err
	}
	if ns == "" {
		return types.StatusNone, nil
	}
	exists, err := r.doc.NamespaceExists(ctx, ns)
	if err != nil {
		return types.StatusNone, HostError(err)
	}
	if exists {
		return types.StatusImported, nil
	}
	return types.StatusNone, nil
}

// Info assembles a snapshot of an entity.
func (r *Repository) Info(ctx context.Context, id string) (types.EntityInfo, error) {
	info := types.EntityInfo{ID: id}
	var err error

	if info.Type, err = r.Type(ctx, id); err != nil {
		return info, err
	}
	if info.Identifier, err = r.Identifier(ctx, id); err != nil {
		return info, err
	}
	if info.Namespace, err = r.Namespace(ctx, id); err != nil {
		return info, err
	}
	if info.Parent, err = r.Parent(ctx, id); err != nil {
		return info, err
	}
	if info.Children, err = r.Children(ctx, id); err != nil {
		return info, err
	}
	if info.Reference, err = r.Reference(ctx, id); err != nil {
		return info, err
	}
	if info.NestedIn, err = r.ReferencedBy(ctx, id); err != nil {
		return info, err
	}
	fileID, err := r.FileID(ctx, id)
	if err != nil {
		return info, err
	}
	if fileID != NoFileID {
		info.FileID = fileID
	}
	if info.Status, err = r.Status(ctx, id); err != nil {
		return info, err
	}
	return info, nil
}

// CreateSceneMarker creates the marker that identifies the content item the
// document represents.
func (r *Repository) CreateSceneMarker(ctx context.Context, fileID int) (string, error) {
	var id string
	err := document.PreserveNamespace(ctx, r.doc, document.RootNamespace, func() error {
		return r.doc.Atomic(ctx, func(g document.Graph) error {
			node, err := g.CreateNode(ctx, SceneNodeType, "")
			if err != nil {
				return err
			}
			id = node.ID
			return g.SetInt(ctx, document.P(node.ID, AttrTaskfileID), fileID)
		})
	})
	if err != nil {
		return "", HostError(err)
	}
	return id, nil
}

// SceneMarkers lists the scene markers directly in ns, not in its child
// namespaces.
func (r *Repository) SceneMarkers(ctx context.Context, ns string) ([]*document.Node, error) {
	ns = document.NormalizeNamespace(ns)
	nodes, err := r.doc.NodesByType(ctx, SceneNodeType)
	if err != nil {
		return nil, HostError(err)
	}
	var markers []*document.Node
	for _, n := range nodes {
		if n.Namespace == ns {
			markers = append(markers, n)
		}
	}
	return markers, nil
}

// ResolveCurrentContentOwner returns the scene marker of the document
// itself: the marker in the root namespace that no entity links to. With
// several candidates the one created first wins. Returns "" if there is none.
func (r *Repository) ResolveCurrentContentOwner(ctx context.Context, root string) (string, error) {
	markers, err := r.SceneMarkers(ctx, root)
	if err != nil {
		return "", err
	}

	var candidates []*document.Node
	for _, m := range markers {
		linked, err := r.doc.Connections(ctx, document.P(m.ID, AttrReftrack), document.Incoming)
		if err != nil {
			return "", HostError(err)
		}
		if len(linked) == 0 {
			candidates = append(candidates, m)
		}
	}

	if len(candidates) == 0 {
		return "", nil
	}
	if len(candidates) > 1 {
		r.log.Warn().Int("markers", len(candidates)).Str("chosen", candidates[0].Name).
			Msg("multiple scene markers in the root namespace")
	}
	// NodesByType lists in creation order.
	return candidates[0].ID, nil
}

func disconnectAll(ctx context.Context, g document.Graph, plug document.Plug, dir document.Direction) error {
	others, err := g.Connections(ctx, plug, dir)
	if err != nil {
		return err
	}
	for _, o := range others {
		src, dst := plug, o
		if dir == document.Incoming {
			src, dst = o, plug
		}
		if err := g.Disconnect(ctx, src, dst); err != nil {
			return err
		}
	}
	return nil
}
