package reftrack

import (
	"errors"
	"fmt"

	"github.com/scrypster/reftrack/internal/document"
)

var (
	// ErrInvalidType indicates that an entity was created with a type tag
	// that has no registered strategy.
	ErrInvalidType = errors.New("invalid type")

	// ErrDuplicateType indicates that a strategy is already registered for a type tag.
	ErrDuplicateType = errors.New("duplicate type")

	// ErrUnknownType indicates that a type tag is not part of the type enumeration.
	ErrUnknownType = errors.New("unknown type")

	// ErrNotFound indicates that the requested entity or reference was not found.
	ErrNotFound = errors.New("entity not found")

	// ErrCorruptState indicates that document data contradicts the tracking invariants.
	ErrCorruptState = errors.New("corrupt state")

	// ErrHostDocument indicates that an operation of the host document failed.
	ErrHostDocument = errors.New("host document error")

	// ErrCycle indicates that a parent assignment would make the entity graph cyclic.
	ErrCycle = errors.New("parent cycle")

	// ErrDuplicateIdentifier indicates that a sibling of the same type already
	// uses the identifier.
	ErrDuplicateIdentifier = errors.New("duplicate identifier")

	// ErrContentAttached indicates that an operation needs an entity without content.
	ErrContentAttached = errors.New("content attached")

	// ErrInvalidTransition indicates that an action is not possible in the
	// current status of an entity.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrMissingContent indicates that an action needs a content item argument.
	ErrMissingContent = errors.New("missing content item")

	// ErrUnsupported indicates that a strategy does not implement an action.
	ErrUnsupported = errors.New("unsupported by strategy")
)

// HostError wraps an error of the host document with ErrHostDocument. The
// cause stays inspectable with errors.Is. Errors that already carry a
// tracking error kind are returned unchanged.
func HostError(err error) error {
	if err == nil || isTrackingError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrHostDocument, err)
}

func isTrackingError(err error) bool {
	for _, kind := range []error{
		ErrHostDocument, ErrCorruptState, ErrNotFound, ErrInvalidType, ErrUnknownType,
		ErrContentAttached, ErrMissingContent, ErrUnsupported, ErrInvalidTransition,
		ErrCycle, ErrDuplicateIdentifier, ErrDuplicateType,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// notFound maps a missing document node to ErrNotFound and wraps every
// other document error as a host error.
func notFound(err error, id string) error {
	if errors.Is(err, document.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return HostError(err)
}
