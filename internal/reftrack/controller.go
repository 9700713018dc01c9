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

// Change event types sent to the Notifier.
const (
	EventEntityCreated  = "entity_created"
	EventEntityChanged  = "entity_changed"
	EventEntityRemoved  = "entity_removed"
	EventResyncRequired = "resync_required"
)

// Notifier receives a change event after every controller mutation.
type Notifier interface {
	Notify(eventType, entityID string) error
}

// Result describes the outcome of a lifecycle action.
type Result struct {
	Entity     string       `json:"entity"`
	Action     types.Action `json:"action"`
	Restricted bool         `json:"restricted"`
	Status     types.Status `json:"status"`
	Reference  string       `json:"reference,omitempty"`
}

// Controller runs the lifecycle state machine of tracked entities. Status is
// derived from the document on every call and never cached.
type Controller struct {
	doc      document.Document
	files    registry.Registry
	types    *TypeRegistry
	repo     *Repository
	notifier Notifier
	log      zerolog.Logger
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the logger of the controller and its repository.
func WithLogger(logger zerolog.Logger) ControllerOption {
	return func(c *Controller) {
		c.log = logger
	}
}

// WithNotifier sets the receiver of change events.
func WithNotifier(n Notifier) ControllerOption {
	return func(c *Controller) {
		c.notifier = n
	}
}

// NewController creates a controller over doc. Content items are resolved
// through files and strategies come from typeRegistry.
func NewController(doc document.Document, files registry.Registry, typeRegistry *TypeRegistry, opts ...ControllerOption) *Controller {
	c := &Controller{
		doc:   doc,
		files: files,
		types: typeRegistry,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.repo = NewRepository(doc, typeRegistry, c.log)
	c.log = c.log.With().Str("component", "controller").Logger()
	return c
}

// Repository returns the entity repository of the controller.
func (c *Controller) Repository() *Repository {
	return c.repo
}

// Strategy builds the strategy for the type of entity.
func (c *Controller) Strategy(ctx context.Context, entity string) (Strategy, error) {
	tag, err := c.repo.Type(ctx, entity)
	if err != nil {
		return nil, err
	}
	return c.strategyFor(tag)
}

func (c *Controller) strategyFor(tag string) (Strategy, error) {
	factory, err := c.types.Resolve(tag)
	if err != nil {
		return nil, err
	}
	return factory(Deps{
		Repo:  c.repo,
		Doc:   c.doc,
		Files: c.files,
		Log:   c.log.With().Str("type", tag).Logger(),
	}), nil
}

// CreateEntity creates an entity of typeTag below parent ("" for the root
// level). A negative identifier picks the next free one.
func (c *Controller) CreateEntity(ctx context.Context, typeTag, parent string, identifier int) (string, error) {
	id, err := c.repo.CreateUnder(ctx, typeTag, parent, identifier)
	if err != nil {
		return "", err
	}
	c.notify(EventEntityCreated, id)
	c.log.Info().Str("entity", id).Str("type", typeTag).Str("parent", parent).Msg("entity created")
	return id, nil
}

// ListEntities lists every tracked entity.
func (c *Controller) ListEntities(ctx context.Context) ([]string, error) {
	return c.repo.All(ctx)
}

// Status derives the current status of an entity.
func (c *Controller) Status(ctx context.Context, entity string) (types.Status, error) {
	return c.repo.Status(ctx, entity)
}

// Info returns a snapshot of an entity.
func (c *Controller) Info(ctx context.Context, entity string) (types.EntityInfo, error) {
	return c.repo.Info(ctx, entity)
}

// ContentItem resolves the content item loaded for an entity.
func (c *Controller) ContentItem(ctx context.Context, entity string) (types.ContentItem, error) {
	return c.repo.ContentItem(ctx, entity, c.files)
}

// IsRestricted reports whether action is refused for entity. Unknown
// actions are always restricted.
func (c *Controller) IsRestricted(ctx context.Context, entity string, action types.Action) (bool, error) {
	if err := c.repo.requireEntity(ctx, entity); err != nil {
		return false, err
	}
	if !types.IsKnownAction(action) {
		return true, nil
	}

	status, err := c.repo.Status(ctx, entity)
	if err != nil {
		return false, err
	}
	if action == types.ActionImportReference && status == types.StatusUnloaded {
		return true, nil
	}

	switch action {
	case types.ActionReplace, types.ActionDelete, types.ActionImportReference:
		nested, err := c.repo.ReferencedBy(ctx, entity)
		if err != nil {
			return false, err
		}
		return nested != "", nil
	}
	return false, nil
}

// Perform runs action on entity. Restricted actions return a Result with
// Restricted set and no error. Actions that are not valid for the current
// status fail with ErrInvalidTransition. item is required by reference,
// import_content and replace.
func (c *Controller) Perform(ctx context.Context, entity string, action types.Action, item *types.ContentItem) (Result, error) {
	result := Result{Entity: entity, Action: action}
	log := c.log.With().Str("entity", entity).Str("action", string(action)).Logger()

	restricted, err := c.IsRestricted(ctx, entity, action)
	if err != nil {
		return result, err
	}
	if restricted {
		log.Info().Msg("action restricted")
		result.Restricted = true
		result.Status, err = c.repo.Status(ctx, entity)
		return result, err
	}

	status, err := c.repo.Status(ctx, entity)
	if err != nil {
		return result, err
	}
	if !types.IsValidTransition(status, action) {
		return result, fmt.Errorf("%w: cannot %s an entity with status %s", ErrInvalidTransition, action, status)
	}
	if action.NeedsContentItem() && item == nil {
		return result, fmt.Errorf("%w: %s", ErrMissingContent, action)
	}

	strategy, err := c.Strategy(ctx, entity)
	if err != nil {
		return result, err
	}

	if err := c.dispatch(ctx, strategy, entity, status, action, item); err != nil {
		if errors.Is(err, ErrHostDocument) {
			c.notify(EventResyncRequired, entity)
		}
		log.Error().Err(err).Str("status", status.String()).Msg("action failed")
		return result, err
	}

	if result.Status, err = c.repo.Status(ctx, entity); err != nil {
		return result, err
	}
	if result.Reference, err = c.repo.Reference(ctx, entity); err != nil {
		return result, err
	}

	c.notify(EventEntityChanged, entity)
	log.Info().Str("from", status.String()).Str("to", result.Status.String()).Msg("action performed")
	return result, nil
}

func (c *Controller) dispatch(ctx context.Context, s Strategy, entity string, status types.Status, action types.Action, item *types.ContentItem) error {
	switch action {
	case types.ActionReference:
		return c.reference(ctx, s, entity, *item)

	case types.ActionImportContent:
		return s.ImportContent(ctx, entity, *item)

	case types.ActionLoad:
		ref, err := c.requireReference(ctx, entity)
		if err != nil {
			return err
		}
		return s.Load(ctx, entity, ref)

	case types.ActionUnload:
		ref, err := c.requireReference(ctx, entity)
		if err != nil {
			return err
		}
		return s.Unload(ctx, entity, ref)

	case types.ActionReplace:
		return c.replace(ctx, s, entity, status, *item)

	case types.ActionImportReference:
		ref, err := c.requireReference(ctx, entity)
		if err != nil {
			return err
		}
		if err := s.ImportReference(ctx, entity, ref); err != nil {
			return err
		}
		return c.repo.SetReference(ctx, entity, "")

	case types.ActionDelete:
		return c.deleteContent(ctx, s, entity)

	default:
		return fmt.Errorf("%w: %s", ErrUnsupported, action)
	}
}

func (c *Controller) requireReference(ctx context.Context, entity string) (string, error) {
	ref, err := c.repo.Reference(ctx, entity)
	if err != nil {
		return "", err
	}
	if ref == "" {
		return "", fmt.Errorf("%w: entity %s has no reference", ErrCorruptState, entity)
	}
	return ref, nil
}

func (c *Controller) reference(ctx context.Context, s Strategy, entity string, item types.ContentItem) error {
	ref, err := s.Reference(ctx, entity, item)
	if err != nil {
		return err
	}
	return c.repo.SetReference(ctx, entity, ref)
}

// replace swaps the content of entity for item. Strategies that cannot
// replace get the content deleted and attached again, with the unloaded
// state restored.
func (c *Controller) replace(ctx context.Context, s Strategy, entity string, status types.Status, item types.ContentItem) error {
	if status == types.StatusImported {
		if err := c.clearContent(ctx, s, entity); err != nil {
			return err
		}
		return s.ImportContent(ctx, entity, item)
	}

	if s.IsReplaceable(ctx, entity) {
		ref, err := c.requireReference(ctx, entity)
		if err != nil {
			return err
		}
		return s.Replace(ctx, entity, ref, item)
	}

	if err := c.clearContent(ctx, s, entity); err != nil {
		return err
	}
	if err := c.reference(ctx, s, entity, item); err != nil {
		return err
	}
	if status != types.StatusUnloaded {
		return nil
	}
	ref, err := c.requireReference(ctx, entity)
	if err != nil {
		return err
	}
	return s.Unload(ctx, entity, ref)
}

// clearContent deletes the content of entity and resets its links.
func (c *Controller) clearContent(ctx context.Context, s Strategy, entity string) error {
	if err := s.Delete(ctx, entity); err != nil {
		return err
	}
	return c.repo.ClearContent(ctx, entity)
}

// deleteContent removes the local children of entity and then its content.
// Children nested in the content go away with it.
func (c *Controller) deleteContent(ctx context.Context, s Strategy, entity string) error {
	if err := c.removeChildren(ctx, entity); err != nil {
		return err
	}
	return c.clearContent(ctx, s, entity)
}

func (c *Controller) removeChildren(ctx context.Context, entity string) error {
	children, err := c.repo.Children(ctx, entity)
	if err != nil {
		return err
	}
	for _, child := range children {
		nested, err := c.repo.ReferencedBy(ctx, child)
		if err != nil {
			return err
		}
		if nested != "" {
			continue
		}
		if err := c.remove(ctx, child); err != nil {
			return fmt.Errorf("remove child %s: %w", child, err)
		}
	}
	return nil
}

// Remove deletes the content of entity, its children and the entity itself.
// Entities nested in a reference are restricted.
func (c *Controller) Remove(ctx context.Context, entity string) (Result, error) {
	result := Result{Entity: entity, Action: types.ActionDelete}

	restricted, err := c.IsRestricted(ctx, entity, types.ActionDelete)
	if err != nil {
		return result, err
	}
	if restricted {
		c.log.Info().Str("entity", entity).Msg("remove restricted")
		result.Restricted = true
		result.Status, err = c.repo.Status(ctx, entity)
		return result, err
	}

	if err := c.remove(ctx, entity); err != nil {
		if errors.Is(err, ErrHostDocument) {
			c.notify(EventResyncRequired, entity)
		}
		return result, err
	}

	c.log.Info().Str("entity", entity).Msg("entity removed")
	return result, nil
}

func (c *Controller) remove(ctx context.Context, entity string) error {
	status, err := c.repo.Status(ctx, entity)
	if err != nil {
		return err
	}

	if status != types.StatusNone {
		s, err := c.Strategy(ctx, entity)
		if err != nil {
			return err
		}
		if err := c.deleteContent(ctx, s, entity); err != nil {
			return err
		}
	} else if err := c.removeChildren(ctx, entity); err != nil {
		return err
	}

	// The content may have taken the entity with it.
	exists, err := c.repo.Exists(ctx, entity)
	if err != nil || !exists {
		return err
	}
	if err := c.repo.DeleteEntity(ctx, entity); err != nil {
		return err
	}
	c.notify(EventEntityRemoved, entity)
	return nil
}

// CurrentElement returns the element the document itself represents, found
// through its scene marker.
func (c *Controller) CurrentElement(ctx context.Context) (types.Element, error) {
	marker, err := c.repo.ResolveCurrentContentOwner(ctx, document.RootNamespace)
	if err != nil {
		return types.Element{}, err
	}
	if marker == "" {
		return types.Element{}, fmt.Errorf("%w: document has no scene marker", ErrNotFound)
	}

	fileID, err := c.doc.GetInt(ctx, document.P(marker, AttrTaskfileID))
	if err != nil {
		return types.Element{}, HostError(err)
	}
	item, err := c.files.Item(ctx, fileID)
	if err != nil {
		return types.Element{}, err
	}
	return item.Element, nil
}

// SceneSuggestions asks every registered strategy which elements should be
// tracked in the current document and returns those without a root level
// entity of that type yet.
func (c *Controller) SceneSuggestions(ctx context.Context) ([]types.Suggestion, error) {
	current, err := c.CurrentElement(ctx)
	if err != nil {
		return nil, err
	}

	roots, err := c.repo.siblings(ctx, "")
	if err != nil {
		return nil, err
	}
	tracked, err := c.trackedElements(ctx, roots)
	if err != nil {
		return nil, err
	}

	var suggestions []types.Suggestion
	for _, tag := range c.types.Registered() {
		s, err := c.strategyFor(tag)
		if err != nil {
			return nil, err
		}
		elements, err := s.GetSceneSuggestions(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("scene suggestions of %s: %w", tag, err)
		}
		for _, e := range elements {
			if tracked[trackedKey(tag, e.ID)] {
				continue
			}
			suggestions = append(suggestions, types.Suggestion{Type: tag, Element: e})
		}
	}
	return suggestions, nil
}

// ChildSuggestions returns the children the strategy of entity wants and
// that are not among its children yet.
func (c *Controller) ChildSuggestions(ctx context.Context, entity string) ([]types.Suggestion, error) {
	s, err := c.Strategy(ctx, entity)
	if err != nil {
		return nil, err
	}
	wanted, err := s.GetSuggestions(ctx, entity)
	if err != nil {
		return nil, err
	}

	children, err := c.repo.Children(ctx, entity)
	if err != nil {
		return nil, err
	}
	tracked, err := c.trackedElements(ctx, children)
	if err != nil {
		return nil, err
	}

	var suggestions []types.Suggestion
	for _, w := range wanted {
		if !tracked[trackedKey(w.Type, w.Element.ID)] {
			suggestions = append(suggestions, w)
		}
	}
	return suggestions, nil
}

// trackedElements maps type and element of the loaded content of entities.
// Entities without content are skipped.
func (c *Controller) trackedElements(ctx context.Context, entities []string) (map[string]bool, error) {
	tracked := make(map[string]bool)
	for _, id := range entities {
		tag, err := c.repo.Type(ctx, id)
		if err != nil {
			return nil, err
		}
		item, err := c.repo.ContentItem(ctx, id, c.files)
		if errors.Is(err, ErrMissingContent) {
			continue
		}
		if err != nil {
			return nil, err
		}
		tracked[trackedKey(tag, item.Element.ID)] = true
	}
	return tracked, nil
}

func trackedKey(tag string, elementID int) string {
	return fmt.Sprintf("%s/%d", tag, elementID)
}

// Options lists the content items the strategy of entity offers for element.
func (c *Controller) Options(ctx context.Context, entity string, element types.Element) ([]types.ContentItem, error) {
	s, err := c.Strategy(ctx, entity)
	if err != nil {
		return nil, err
	}
	return s.FetchOptionContentItems(ctx, element)
}

// notify sends a change event. Failures are logged, the action already
// happened.
func (c *Controller) notify(eventType, entity string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(eventType, entity); err != nil {
		c.log.Warn().Err(err).Str("event", eventType).Str("entity", entity).Msg("failed to send change event")
	}
}
