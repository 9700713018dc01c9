// Package asset implements the type strategy for released assets.
package asset

import (
	"context"
	"fmt"

	"github.com/scrypster/reftrack/internal/document"
	"github.com/scrypster/reftrack/internal/reftrack"
	"github.com/scrypster/reftrack/pkg/types"
)

// Tag is the type tag of asset entities.
const Tag = "Asset"

// Strategy references and imports released asset scenes. The top level
// DAG nodes of the content are grouped under a jb_asset node.
type Strategy struct {
	reftrack.BaseStrategy
}

var _ reftrack.Strategy = (*Strategy)(nil)

// New is the reftrack.Factory of the asset strategy.
func New(deps reftrack.Deps) reftrack.Strategy {
	return &Strategy{BaseStrategy: reftrack.BaseStrategy{Deps: deps}}
}

// Register registers the asset strategy under Tag.
func Register(r *reftrack.TypeRegistry) error {
	return r.Register(Tag, New)
}

// NamespaceSuggestion returns the namespace content of item is loaded into
// unless the document picks a free variant of it.
func NamespaceSuggestion(item types.ContentItem) string {
	return item.Element.Name + "_1"
}

// GroupName returns the name of the group node of item.
func GroupName(item types.ContentItem) string {
	return item.Element.Name + "_grp"
}

// IsReplaceable returns true: references can swap their file.
func (s *Strategy) IsReplaceable(ctx context.Context, entity string) bool {
	return true
}

// Reference references the scene file of item in the root namespace, links
// entity to its scene marker and groups its DAG nodes.
func (s *Strategy) Reference(ctx context.Context, entity string, item types.ContentItem) (string, error) {
	path, err := s.Files.Path(ctx, item)
	if err != nil {
		return "", err
	}

	var ref string
	err = document.PreserveNamespace(ctx, s.Doc, document.RootNamespace, func() error {
		before, err := s.Doc.References(ctx)
		if err != nil {
			return reftrack.HostError(err)
		}
		if _, err := s.Doc.ReferenceFile(ctx, path, NamespaceSuggestion(item)); err != nil {
			return reftrack.HostError(err)
		}
		if ref, err = s.newReference(ctx, before); err != nil {
			return err
		}

		ns, err := s.Doc.ReferenceNamespace(ctx, ref)
		if err != nil {
			return reftrack.HostError(err)
		}
		if err := s.linkContent(ctx, entity, ns); err != nil {
			return err
		}
		return s.group(ctx, ns, item)
	})
	if err != nil {
		return "", err
	}

	s.Log.Debug().Str("entity", entity).Str("reference", ref).Str("item", item.String()).Msg("referenced content")
	return ref, nil
}

// newReference finds the reference created since before. The filename the
// document returns is ambiguous for duplicate paths, so the new reference is
// the one that is neither nested nor attached to an entity yet.
func (s *Strategy) newReference(ctx context.Context, before []string) (string, error) {
	known := make(map[string]bool, len(before))
	for _, ref := range before {
		known[ref] = true
	}

	after, err := s.Doc.References(ctx)
	if err != nil {
		return "", reftrack.HostError(err)
	}

	var candidates []string
	for _, ref := range after {
		if known[ref] {
			continue
		}
		nested, err := s.Doc.ReferencedBy(ctx, ref)
		if err != nil {
			return "", reftrack.HostError(err)
		}
		if nested != "" {
			continue
		}
		attached, err := s.Doc.Connections(ctx, document.P(ref, document.MessageAttr), document.Outgoing)
		if err != nil {
			return "", reftrack.HostError(err)
		}
		if len(attached) == 0 {
			candidates = append(candidates, ref)
		}
	}

	if len(candidates) != 1 {
		return "", fmt.Errorf("%w: expected one new reference, found %d", reftrack.ErrCorruptState, len(candidates))
	}
	return candidates[0], nil
}

// ImportContent imports the scene file of item and records the namespace of
// the new nodes on entity.
func (s *Strategy) ImportContent(ctx context.Context, entity string, item types.ContentItem) error {
	path, err := s.Files.Path(ctx, item)
	if err != nil {
		return err
	}

	err = document.PreserveNamespace(ctx, s.Doc, document.RootNamespace, func() error {
		nodes, err := s.Doc.ImportFile(ctx, path, NamespaceSuggestion(item))
		if err != nil {
			return reftrack.HostError(err)
		}
		if len(nodes) == 0 {
			return fmt.Errorf("%w: nothing was imported from %s", reftrack.ErrCorruptState, path)
		}

		ns := document.TopNamespace(nodes[0].Name)
		if err := s.Repo.SetNamespace(ctx, entity, ns); err != nil {
			return err
		}
		if err := s.linkContent(ctx, entity, ns); err != nil {
			return err
		}
		return s.group(ctx, ns, item)
	})
	if err != nil {
		return err
	}

	s.Log.Debug().Str("entity", entity).Str("item", item.String()).Msg("imported content")
	return nil
}

// Load loads the reference, relinks the scene marker if the link did not
// survive the unload and groups top level nodes the replayed edits left
// loose, such as content swapped in while the reference was unloaded.
func (s *Strategy) Load(ctx context.Context, entity, ref string) error {
	if err := s.BaseStrategy.Load(ctx, entity, ref); err != nil {
		return err
	}
	ns, err := s.Doc.ReferenceNamespace(ctx, ref)
	if err != nil {
		return reftrack.HostError(err)
	}

	link, err := s.Repo.ContentLink(ctx, entity)
	if err != nil {
		return err
	}
	if link == "" {
		if err := s.linkContent(ctx, entity, ns); err != nil {
			return err
		}
	}

	item, err := s.Repo.ContentItem(ctx, entity, s.Files)
	if err != nil {
		return err
	}
	return s.group(ctx, ns, item)
}

// Replace swaps the file of ref for the scene file of item. A loaded
// reference is linked to the scene marker of the new content; an unloaded
// one gets the new file ID until it is loaded.
func (s *Strategy) Replace(ctx context.Context, entity, ref string, item types.ContentItem) error {
	path, err := s.Files.Path(ctx, item)
	if err != nil {
		return err
	}
	if _, err := s.Doc.ReplaceReference(ctx, ref, path); err != nil {
		return reftrack.HostError(err)
	}

	loaded, err := s.Doc.IsLoaded(ctx, ref)
	if err != nil {
		return reftrack.HostError(err)
	}
	if !loaded {
		fileID, err := s.Files.FileID(ctx, item)
		if err != nil {
			return err
		}
		return s.Repo.SetFileID(ctx, entity, fileID)
	}

	ns, err := s.Doc.ReferenceNamespace(ctx, ref)
	if err != nil {
		return reftrack.HostError(err)
	}
	if err := s.linkContent(ctx, entity, ns); err != nil {
		return err
	}
	if err := s.group(ctx, ns, item); err != nil {
		return err
	}

	s.Log.Debug().Str("entity", entity).Str("reference", ref).Str("item", item.String()).Msg("replaced content")
	return nil
}

// GetSceneSuggestions suggests the current element if it is an asset and
// every asset linked to it.
func (s *Strategy) GetSceneSuggestions(ctx context.Context, current types.Element) ([]types.Element, error) {
	var suggestions []types.Element
	if current.IsAsset() {
		suggestions = append(suggestions, current)
	}
	linked, err := s.Files.LinkedAssets(ctx, current)
	if err != nil {
		return nil, err
	}
	return append(suggestions, linked...), nil
}

// linkContent connects entity to the single scene marker in ns.
func (s *Strategy) linkContent(ctx context.Context, entity, ns string) error {
	markers, err := s.Repo.SceneMarkers(ctx, ns)
	if err != nil {
		return err
	}
	if len(markers) != 1 {
		return fmt.Errorf("%w: expected one scene marker in %s, found %d", reftrack.ErrCorruptState, ns, len(markers))
	}
	return s.Repo.ConnectContent(ctx, entity, markers[0].ID)
}

// group parents the top level DAG nodes of ns under the group node of the
// namespace, creating it if needed.
func (s *Strategy) group(ctx context.Context, ns string, item types.ContentItem) error {
	content, err := s.Doc.NamespaceContent(ctx, ns)
	if err != nil {
		return reftrack.HostError(err)
	}

	var group string
	var loose []string
	for _, n := range content {
		if n.Namespace != ns || !n.Dag || n.DagParent != "" {
			continue
		}
		if n.Type == reftrack.GroupNodeType && n.ReferencedBy == "" {
			if group == "" {
				group = n.ID
			}
			continue
		}
		loose = append(loose, n.ID)
	}
	if len(loose) == 0 {
		return nil
	}

	if group == "" {
		return document.PreserveNamespace(ctx, s.Doc, ns, func() error {
			_, err := s.Doc.CreateGroup(ctx, reftrack.GroupNodeType, GroupName(item), loose)
			return reftrack.HostError(err)
		})
	}
	for _, id := range loose {
		if err := s.Doc.SetDagParent(ctx, id, group); err != nil {
			return reftrack.HostError(err)
		}
	}
	return nil
}
