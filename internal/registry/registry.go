// Package registry resolves content items of the project to files on disk and
// to the persisted integer identifiers stored in host documents.
package registry

import (
	"context"
	"errors"

	"github.com/scrypster/reftrack/pkg/types"
)

var (
	// ErrNotFound indicates that the requested element or content item was not found.
	ErrNotFound = errors.New("registry entry not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCircuitOpen is returned when the registry breaker is open and
	// rejects calls to a failing backend.
	ErrCircuitOpen = errors.New("registry circuit breaker is open")
)

// Registry is the file/version record system of a project.
type Registry interface {
	// Path resolves a content item to the file that holds it.
	Path(ctx context.Context, item types.ContentItem) (string, error)

	// FileID resolves a content item to its persisted identifier.
	// Returns ErrNotFound if the item is not registered.
	FileID(ctx context.Context, item types.ContentItem) (int, error)

	// Item is the reverse lookup of FileID.
	Item(ctx context.Context, fileID int) (types.ContentItem, error)

	// Element retrieves an element by ID.
	Element(ctx context.Context, id int) (types.Element, error)

	// FindElement retrieves an element by kind and name.
	FindElement(ctx context.Context, kind types.ElementKind, name string) (types.Element, error)

	// LinkedAssets lists the assets an element depends on, in ID order.
	LinkedAssets(ctx context.Context, element types.Element) ([]types.Element, error)

	// Options lists the content items of an element that match releaseType
	// and fileType, ordered by task, descriptor and version. Empty filters
	// match everything.
	Options(ctx context.Context, element types.Element, releaseType, fileType string) ([]types.ContentItem, error)
}
