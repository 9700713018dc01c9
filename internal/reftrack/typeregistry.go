package reftrack

import "fmt"

// DefaultTypes is the initial type enumeration of entity nodes. Index 0 is
// the unset type.
var DefaultTypes = []string{"None", "Asset", "Alembic", "Shader", "Camera", "Lightrig"}

// NoneType is the type tag of entities whose type was never set.
const NoneType = "None"

// TypeRegistry maps type tags to strategy factories. The tag enumeration
// stored on entity nodes is append-only so documents written with older
// type lists keep their meaning. A registry is filled during start up and
// is not safe for concurrent registration.
type TypeRegistry struct {
	tags      []string
	factories map[string]Factory
}

// NewTypeRegistry creates a registry with DefaultTypes and no strategies.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		tags:      append([]string(nil), DefaultTypes...),
		factories: make(map[string]Factory),
	}
}

// Register adds a strategy factory for tag. Tags missing from the
// enumeration are appended to it.
func (r *TypeRegistry) Register(tag string, factory Factory) error {
	if tag == "" || tag == NoneType {
		return fmt.Errorf("%w: cannot register %q", ErrInvalidType, tag)
	}
	if factory == nil {
		return fmt.Errorf("%w: nil factory for %s", ErrInvalidType, tag)
	}

	if _, ok := r.factories[tag]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, tag)
	}
	if r.index(tag) < 0 {
		r.tags = append(r.tags, tag)
	}
	r.factories[tag] = factory
	return nil
}

// Resolve returns the factory registered for tag.
func (r *TypeRegistry) Resolve(tag string) (Factory, error) {
	f, ok := r.factories[tag]
	if !ok {
		return nil, fmt.Errorf("%w: no strategy registered for %q", ErrUnknownType, tag)
	}
	return f, nil
}

// IsRegistered reports whether a strategy is registered for tag.
func (r *TypeRegistry) IsRegistered(tag string) bool {
	_, ok := r.factories[tag]
	return ok
}

// Registered lists the tags with a strategy in enumeration order.
func (r *TypeRegistry) Registered() []string {
	var tags []string
	for _, tag := range r.tags {
		if _, ok := r.factories[tag]; ok {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Tags returns a copy of the type enumeration.
func (r *TypeRegistry) Tags() []string {
	return append([]string(nil), r.tags...)
}

// Index returns the enumeration index of tag.
func (r *TypeRegistry) Index(tag string) (int, error) {
	i := r.index(tag)
	if i < 0 {
		return 0, fmt.Errorf("%w: %q is not one of %v", ErrUnknownType, tag, r.tags)
	}
	return i, nil
}

// TagAt returns the tag stored at enumeration index i.
func (r *TypeRegistry) TagAt(i int) (string, error) {
	if i < 0 || i >= len(r.tags) {
		return "", fmt.Errorf("%w: type index %d out of range of %v", ErrCorruptState, i, r.tags)
	}
	return r.tags[i], nil
}

func (r *TypeRegistry) index(tag string) int {
	for i, t := range r.tags {
		if t == tag {
			return i
		}
	}
	return -1
}
