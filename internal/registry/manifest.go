package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/reftrack/pkg/types"
)

var _ Registry = (*Manifest)(nil)

// FileRecord is one registered content item of a manifest.
type FileRecord struct {
	ID          int    `yaml:"id"`
	Element     int    `yaml:"element"`
	Task        string `yaml:"task"`
	Descriptor  string `yaml:"descriptor,omitempty"`
	Version     int    `yaml:"version"`
	ReleaseType string `yaml:"release_type"`
	FileType    string `yaml:"file_type"`
}

// manifestFile is the on-disk form of a Manifest.
type manifestFile struct {
	Root     string          `yaml:"root"`
	Elements []types.Element `yaml:"elements"`
	Files    []FileRecord    `yaml:"files"`
}

// Manifest is a Registry read from a YAML project file.
//
//	root: /projects/smurfs
//	elements:
//	  - {id: 1, kind: shot, name: sh010, assets: [2]}
//	  - {id: 2, kind: asset, name: smurf}
//	files:
//	  - {id: 12, element: 2, task: rig, version: 3, release_type: release, file_type: scene}
type Manifest struct {
	layout   Layout
	elements map[int]types.Element
	files    map[int]FileRecord
	byKey    map[string]int
}

// NewManifest builds a manifest from elements and file records.
func NewManifest(root string, elements []types.Element, files []FileRecord) (*Manifest, error) {
	m := &Manifest{
		layout:   Layout{Root: root},
		elements: make(map[int]types.Element, len(elements)),
		files:    make(map[int]FileRecord, len(files)),
		byKey:    make(map[string]int, len(files)),
	}

	for _, e := range elements {
		if _, dup := m.elements[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate element id %d", ErrInvalidInput, e.ID)
		}
		m.elements[e.ID] = e
	}

	for _, e := range elements {
		for _, id := range e.Assets {
			linked, ok := m.elements[id]
			if !ok || !linked.IsAsset() {
				return nil, fmt.Errorf("%w: element %s links unknown asset %d", ErrInvalidInput, e.Name, id)
			}
		}
	}

	for _, f := range files {
		if f.ID <= 0 {
			return nil, fmt.Errorf("%w: file id must be positive, got %d", ErrInvalidInput, f.ID)
		}
		if _, dup := m.files[f.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate file id %d", ErrInvalidInput, f.ID)
		}
		item, err := m.itemOf(f)
		if err != nil {
			return nil, err
		}
		if err := validateItem(item); err != nil {
			return nil, fmt.Errorf("file %d: %w", f.ID, err)
		}
		m.files[f.ID] = f
		m.byKey[item.Key()] = f.ID
	}

	return m, nil
}

// LoadManifest reads a manifest file. A relative root is resolved against
// the directory of the manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: manifest %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("registry: failed to read manifest: %w", err)
	}

	var mf manifestFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("%w: manifest %s: %v", ErrInvalidInput, path, err)
	}

	root := mf.Root
	if root == "" || !filepath.IsAbs(root) {
		root = filepath.Join(filepath.Dir(path), root)
	}
	return NewManifest(root, mf.Elements, mf.Files)
}

// WriteFile writes the manifest to path.
func (m *Manifest) WriteFile(path string) error {
	mf := manifestFile{Root: m.layout.Root}
	for _, id := range sortedIDs(m.elements) {
		mf.Elements = append(mf.Elements, m.elements[id])
	}
	for _, id := range sortedIDs(m.files) {
		mf.Files = append(mf.Files, m.files[id])
	}

	data, err := yaml.Marshal(&mf)
	if err != nil {
		return fmt.Errorf("registry: failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("registry: failed to write manifest: %w", err)
	}
	return nil
}

// Root returns the project root directory.
func (m *Manifest) Root() string {
	return m.layout.Root
}

// Elements lists every element in ID order.
func (m *Manifest) Elements() []types.Element {
	out := make([]types.Element, 0, len(m.elements))
	for _, id := range sortedIDs(m.elements) {
		out = append(out, m.elements[id])
	}
	return out
}

// Files lists every file record in ID order.
func (m *Manifest) Files() []FileRecord {
	out := make([]FileRecord, 0, len(m.files))
	for _, id := range sortedIDs(m.files) {
		out = append(out, m.files[id])
	}
	return out
}

// Path resolves a content item to its file path.
func (m *Manifest) Path(ctx context.Context, item types.ContentItem) (string, error) {
	return m.layout.Path(item)
}

// FileID resolves a content item to its identifier.
func (m *Manifest) FileID(ctx context.Context, item types.ContentItem) (int, error) {
	id, ok := m.byKey[item.Key()]
	if !ok {
		return 0, fmt.Errorf("%w: content item %s", ErrNotFound, item)
	}
	return id, nil
}

// Item resolves a file identifier to its content item.
func (m *Manifest) Item(ctx context.Context, fileID int) (types.ContentItem, error) {
	f, ok := m.files[fileID]
	if !ok {
		return types.ContentItem{}, fmt.Errorf("%w: file id %d", ErrNotFound, fileID)
	}
	return m.itemOf(f)
}

// Element retrieves an element by ID.
func (m *Manifest) Element(ctx context.Context, id int) (types.Element, error) {
	e, ok := m.elements[id]
	if !ok {
		return types.Element{}, fmt.Errorf("%w: element %d", ErrNotFound, id)
	}
	return e, nil
}

// FindElement retrieves an element by kind and name.
func (m *Manifest) FindElement(ctx context.Context, kind types.ElementKind, name string) (types.Element, error) {
	for _, id := range sortedIDs(m.elements) {
		if e := m.elements[id]; e.Kind == kind && e.Name == name {
			return e, nil
		}
	}
	return types.Element{}, fmt.Errorf("%w: %s %s", ErrNotFound, kind, name)
}

// LinkedAssets lists the assets linked to element.
func (m *Manifest) LinkedAssets(ctx context.Context, element types.Element) ([]types.Element, error) {
	e, ok := m.elements[element.ID]
	if !ok {
		return nil, fmt.Errorf("%w: element %d", ErrNotFound, element.ID)
	}

	ids := append([]int(nil), e.Assets...)
	sort.Ints(ids)

	assets := make([]types.Element, 0, len(ids))
	for _, id := range ids {
		assets = append(assets, m.elements[id])
	}
	return assets, nil
}

// Options lists the content items of element matching the filters.
func (m *Manifest) Options(ctx context.Context, element types.Element, releaseType, fileType string) ([]types.ContentItem, error) {
	if _, ok := m.elements[element.ID]; !ok {
		return nil, fmt.Errorf("%w: element %d", ErrNotFound, element.ID)
	}

	var items []types.ContentItem
	for _, id := range sortedIDs(m.files) {
		f := m.files[id]
		if f.Element != element.ID {
			continue
		}
		if releaseType != "" && f.ReleaseType != releaseType {
			continue
		}
		if fileType != "" && f.FileType != fileType {
			continue
		}
		item, err := m.itemOf(f)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	SortItems(items)
	return items, nil
}

func (m *Manifest) itemOf(f FileRecord) (types.ContentItem, error) {
	e, ok := m.elements[f.Element]
	if !ok {
		return types.ContentItem{}, fmt.Errorf("%w: file %d refers to unknown element %d", ErrInvalidInput, f.ID, f.Element)
	}
	return types.ContentItem{
		Element:     e,
		Task:        f.Task,
		Descriptor:  f.Descriptor,
		Version:     f.Version,
		ReleaseType: f.ReleaseType,
		FileType:    f.FileType,
	}, nil
}

// SortItems orders content items by task, descriptor and version.
func SortItems(items []types.ContentItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Task != b.Task {
			return a.Task < b.Task
		}
		if a.Descriptor != b.Descriptor {
			return a.Descriptor < b.Descriptor
		}
		return a.Version < b.Version
	})
}

func sortedIDs[V any](m map[int]V) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
