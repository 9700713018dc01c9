package reftrack

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/scrypster/reftrack/internal/document"
	"github.com/scrypster/reftrack/internal/registry"
	"github.com/scrypster/reftrack/pkg/types"
)

// Deps are the collaborators handed to a strategy factory.
type Deps struct {
	Repo  *Repository
	Doc   document.Document
	Files registry.Registry
	Log   zerolog.Logger
}

// Factory builds the strategy of one type tag.
type Factory func(deps Deps) Strategy

// Strategy implements the content handling of one entity type. Entities are
// passed as node IDs. Strategies mutate the host document; the controller
// updates the entity links afterwards.
type Strategy interface {
	// IsReplaceable reports whether Replace is supported. If not, replace
	// is carried out as delete followed by reference or import.
	IsReplaceable(ctx context.Context, entity string) bool

	// Reference attaches item by reference and returns the reference node.
	Reference(ctx context.Context, entity string, item types.ContentItem) (string, error)

	// ImportContent attaches item as owned content and records its namespace
	// on the entity.
	ImportContent(ctx context.Context, entity string, item types.ContentItem) error

	Load(ctx context.Context, entity, ref string) error
	Unload(ctx context.Context, entity, ref string) error

	// Replace swaps the content behind ref for item and relinks the entity
	// to the scene marker of the new content.
	Replace(ctx context.Context, entity, ref string, item types.ContentItem) error

	// ImportReference turns the content of ref into owned content.
	ImportReference(ctx context.Context, entity, ref string) error

	// Delete removes the content of the entity. The entity node stays.
	Delete(ctx context.Context, entity string) error

	// FetchOptionContentItems lists the content items that can be loaded
	// for element.
	FetchOptionContentItems(ctx context.Context, element types.Element) ([]types.ContentItem, error)

	// GetSceneSuggestions lists the elements that should be tracked with
	// this type in a document representing current.
	GetSceneSuggestions(ctx context.Context, current types.Element) ([]types.Element, error)

	// GetSuggestions lists child entities the given entity wants.
	GetSuggestions(ctx context.Context, entity string) ([]types.Suggestion, error)
}

// BaseStrategy provides the behaviour shared by most reference based types.
// Embed it and override what differs.
type BaseStrategy struct {
	Deps
}

// IsReplaceable returns false.
func (s *BaseStrategy) IsReplaceable(ctx context.Context, entity string) bool {
	return false
}

// Reference is not supported by the base strategy.
func (s *BaseStrategy) Reference(ctx context.Context, entity string, item types.ContentItem) (string, error) {
	return "", fmt.Errorf("%w: reference", ErrUnsupported)
}

// ImportContent is not supported by the base strategy.
func (s *BaseStrategy) ImportContent(ctx context.Context, entity string, item types.ContentItem) error {
	return fmt.Errorf("%w: import_content", ErrUnsupported)
}

// Load loads the reference.
func (s *BaseStrategy) Load(ctx context.Context, entity, ref string) error {
	return HostError(s.Doc.LoadReference(ctx, ref))
}

// Unload unloads the reference.
func (s *BaseStrategy) Unload(ctx context.Context, entity, ref string) error {
	return HostError(s.Doc.UnloadReference(ctx, ref))
}

// Replace is not supported by the base strategy.
func (s *BaseStrategy) Replace(ctx context.Context, entity, ref string, item types.ContentItem) error {
	return fmt.Errorf("%w: replace", ErrUnsupported)
}

// ImportReference imports the content of the reference.
func (s *BaseStrategy) ImportReference(ctx context.Context, entity, ref string) error {
	return HostError(s.Doc.ImportReference(ctx, ref))
}

// Delete removes the attached reference with its content, or the namespace
// of imported content with everything in it.
func (s *BaseStrategy) Delete(ctx context.Context, entity string) error {
	ref, err := s.Repo.Reference(ctx, entity)
	if err != nil {
		return err
	}
	ns, err := s.Repo.Namespace(ctx, entity)
	if err != nil {
		return err
	}

	if ref != "" {
		if ns, err = s.Doc.ReferenceNamespace(ctx, ref); err != nil {
			return HostError(err)
		}
		if err := s.Doc.RemoveReference(ctx, ref); err != nil {
			return HostError(err)
		}
		// Local nodes created in the reference namespace, such as the
		// content group, outlive the reference.
	}
	if ns == "" {
		return nil
	}
	return s.DeleteNamespace(ctx, ns)
}

// DeleteNamespace removes every reference and node below ns and the
// namespace itself. Locked nodes are unlocked first.
func (s *BaseStrategy) DeleteNamespace(ctx context.Context, ns string) error {
	ns = document.NormalizeNamespace(ns)
	if ns == document.RootNamespace {
		return fmt.Errorf("%w: refusing to delete the root namespace", ErrCorruptState)
	}

	exists, err := s.Doc.NamespaceExists(ctx, ns)
	if err != nil || !exists {
		return HostError(err)
	}

	refs, err := s.Doc.References(ctx)
	if err != nil {
		return HostError(err)
	}
	for _, ref := range refs {
		node, err := s.Doc.Node(ctx, ref)
		if err != nil || !document.InNamespace(node.Namespace, ns) || node.ReferencedBy != "" {
			continue
		}
		if err := s.Doc.RemoveReference(ctx, ref); err != nil {
			return HostError(err)
		}
	}

	content, err := s.Doc.NamespaceContent(ctx, ns)
	if err != nil {
		return HostError(err)
	}
	for _, n := range content {
		exists, err := s.Doc.Exists(ctx, n.ID)
		if err != nil {
			return HostError(err)
		}
		if !exists {
			continue
		}
		err = document.WithUnlocked(ctx, s.Doc, n.ID, func() error {
			return s.Doc.DeleteNode(ctx, n.ID)
		})
		if err != nil {
			return HostError(err)
		}
	}

	return HostError(s.Doc.RemoveNamespace(ctx, ns))
}

// FetchOptionContentItems lists the released scene files of element.
func (s *BaseStrategy) FetchOptionContentItems(ctx context.Context, element types.Element) ([]types.ContentItem, error) {
	return s.Files.Options(ctx, element, types.ReleaseTypeRelease, types.FileTypeScene)
}

// GetSceneSuggestions returns no suggestions.
func (s *BaseStrategy) GetSceneSuggestions(ctx context.Context, current types.Element) ([]types.Element, error) {
	return nil, nil
}

// GetSuggestions returns no suggestions.
func (s *BaseStrategy) GetSuggestions(ctx context.Context, entity string) ([]types.Suggestion, error) {
	return nil, nil
}
