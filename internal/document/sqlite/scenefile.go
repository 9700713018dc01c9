package sqlite

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/reftrack/internal/document"
)

// SceneFile is the on-disk format of referenced and imported files.
//
// Example:
//
//	nodes:
//	  - name: smurf_geo
//	    type: transform
//	    dag: true
//	  - name: jb_sceneNode1
//	    type: jb_sceneNode
//	    ints: {taskfile_id: 12}
//	references:
//	  - {node: hat_1RN, path: /proj/assets/hat/rig/release/hat_rig_v003.yaml, namespace: hat_1}
//	connections:
//	  - {src: jb_sceneNode1.message, dst: smurf_geo.scene}
type SceneFile struct {
	Nodes       []SceneNode       `yaml:"nodes"`
	References  []SceneReference  `yaml:"references,omitempty"`
	Connections []SceneConnection `yaml:"connections,omitempty"`
}

// SceneNode is one node of a scene file. Names are relative to the
// namespace the file is loaded into.
type SceneNode struct {
	Name    string            `yaml:"name"`
	Type    string            `yaml:"type"`
	Dag     bool              `yaml:"dag,omitempty"`
	Parent  string            `yaml:"parent,omitempty"` // DAG parent name
	Locked  bool              `yaml:"locked,omitempty"`
	Ints    map[string]int    `yaml:"ints,omitempty"`
	Strings map[string]string `yaml:"strings,omitempty"`
	Enums   map[string]int    `yaml:"enums,omitempty"`
}

// SceneReference is a reference nested in a scene file. Its reference node
// is named Node and its content goes to Namespace, both relative to the
// namespace the file is loaded into.
type SceneReference struct {
	Node      string `yaml:"node"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
	Unloaded  bool   `yaml:"unloaded,omitempty"`
}

// SceneConnection connects two plugs given as "node.attr".
type SceneConnection struct {
	Src string `yaml:"src"`
	Dst string `yaml:"dst"`
}

// ReadSceneFile loads and validates a scene file.
func ReadSceneFile(path string) (*SceneFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", document.ErrFileNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to read scene file %s: %w", path, err)
	}

	var sf SceneFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("%w: scene file %s: %v", document.ErrInvalidInput, path, err)
	}

	if err := sf.Validate(); err != nil {
		return nil, fmt.Errorf("scene file %s: %w", path, err)
	}
	return &sf, nil
}

// WriteSceneFile writes sf to path, creating parent directories.
func WriteSceneFile(path string, sf *SceneFile) error {
	if err := sf.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(sf)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal scene file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("sqlite: failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("sqlite: failed to write scene file %s: %w", path, err)
	}
	return nil
}

// Validate checks that node names are unique and every connection and
// parent refers to a node of the file.
func (sf *SceneFile) Validate() error {
	names := make(map[string]bool, len(sf.Nodes))
	for _, n := range sf.Nodes {
		if n.Name == "" || n.Type == "" {
			return fmt.Errorf("%w: node name and type are required", document.ErrInvalidInput)
		}
		if strings.Contains(n.Name, ".") {
			return fmt.Errorf("%w: node name %q must not contain '.'", document.ErrInvalidInput, n.Name)
		}
		if names[n.Name] {
			return fmt.Errorf("%w: duplicate node %q", document.ErrInvalidInput, n.Name)
		}
		names[n.Name] = true
	}

	for _, r := range sf.References {
		if r.Node == "" || r.Path == "" || strings.Trim(r.Namespace, ":") == "" {
			return fmt.Errorf("%w: reference node, path and namespace are required", document.ErrInvalidInput)
		}
		if names[r.Node] {
			return fmt.Errorf("%w: duplicate node %q", document.ErrInvalidInput, r.Node)
		}
		names[r.Node] = true
	}

	for _, n := range sf.Nodes {
		if n.Parent != "" && !names[n.Parent] {
			return fmt.Errorf("%w: parent %q of %q is not in the file", document.ErrInvalidInput, n.Parent, n.Name)
		}
	}

	for _, c := range sf.Connections {
		for _, p := range []string{c.Src, c.Dst} {
			node, _, err := splitPlug(p)
			if err != nil {
				return err
			}
			if !names[node] {
				return fmt.Errorf("%w: connection %q refers to unknown node", document.ErrInvalidInput, p)
			}
		}
	}
	return nil
}

// splitPlug splits "node.attr" at the last dot.
func splitPlug(p string) (string, string, error) {
	i := strings.LastIndex(p, ".")
	if i <= 0 || i == len(p)-1 {
		return "", "", fmt.Errorf("%w: plug %q must be node.attr", document.ErrInvalidInput, p)
	}
	return p[:i], p[i+1:], nil
}
