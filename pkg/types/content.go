package types

import "fmt"

// ElementKind distinguishes assets from shots in the project registry.
type ElementKind string

// Element kinds
const (
	KindAsset ElementKind = "asset"
	KindShot  ElementKind = "shot"
)

// Release types and file types used when looking up content items.
const (
	ReleaseTypeWork    = "work"
	ReleaseTypeRelease = "release"
	ReleaseTypeHandoff = "handoff"

	FileTypeScene = "scene"
)

// Element is a logical unit of the project (an asset or a shot) that owns
// versioned content items.
type Element struct {
	ID     int         `json:"id" yaml:"id"`
	Kind   ElementKind `json:"kind" yaml:"kind"`
	Name   string      `json:"name" yaml:"name"`
	Assets []int       `json:"assets,omitempty" yaml:"assets,omitempty"` // IDs of linked assets
}

// IsAsset reports whether the element is an asset.
func (e Element) IsAsset() bool {
	return e.Kind == KindAsset
}

// ContentItem is a resolvable, versioned unit of external content: one
// specific file of one task of an element.
type ContentItem struct {
	Element     Element `json:"element"`
	Task        string  `json:"task"`
	Descriptor  string  `json:"descriptor,omitempty"`
	Version     int     `json:"version"`
	ReleaseType string  `json:"release_type"`
	FileType    string  `json:"file_type"`
}

// Key returns a string uniquely identifying the item within a project.
func (c ContentItem) Key() string {
	return fmt.Sprintf("%d/%s/%s/%d/%s/%s", c.Element.ID, c.Task, c.Descriptor, c.Version, c.ReleaseType, c.FileType)
}

// String returns a human readable label like "smurf/modeling v003 release".
func (c ContentItem) String() string {
	label := c.Element.Name + "/" + c.Task
	if c.Descriptor != "" {
		label += "_" + c.Descriptor
	}
	return fmt.Sprintf("%s v%03d %s", label, c.Version, c.ReleaseType)
}
