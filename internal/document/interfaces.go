// Package document defines the host document contract the reference tracker
// is built on.
//
// The host document is the single mutable store of the system: tracked
// entities, scene markers, references and imported content all live in it as
// nodes with typed attributes and directed connections. The interfaces are
// small and composable so a backend can be swapped without touching the
// tracking engine. Every mutation of the document goes through one of these
// interfaces; nothing above this package edits host state directly.
package document

import "context"

// Graph provides the persistent node, attribute and connection primitives.
type Graph interface {
	// CreateNode creates a node of the given type in the current namespace.
	// If name is empty the node type is used as base name. Names are made
	// unique by incrementing a trailing number. Returns the created node.
	CreateNode(ctx context.Context, nodeType, name string) (*Node, error)

	// DeleteNode removes a node and all of its connections.
	// Returns ErrLocked if the node is locked, ErrNotFound if it doesn't exist.
	DeleteNode(ctx context.Context, id string) error

	// Exists reports whether the node is still in the document.
	Exists(ctx context.Context, id string) (bool, error)

	// Node retrieves a node by ID.
	// Returns ErrNotFound if the node doesn't exist.
	Node(ctx context.Context, id string) (*Node, error)

	// LockNode sets or clears the lock flag of a node.
	LockNode(ctx context.Context, id string, locked bool) error

	// GetInt returns an int attribute, following an incoming connection if
	// the attribute is driven by another node. Unset attributes return the
	// default registered with SetInt or 0.
	GetInt(ctx context.Context, plug Plug) (int, error)
	SetInt(ctx context.Context, plug Plug, value int) error

	GetString(ctx context.Context, plug Plug) (string, error)
	SetString(ctx context.Context, plug Plug, value string) error

	// GetEnum and SetEnum store the index of an enumeration field.
	GetEnum(ctx context.Context, plug Plug) (int, error)
	SetEnum(ctx context.Context, plug Plug, index int) error

	// Connect creates a directed connection from src to dst.
	// Connecting an already connected pair is a no-op.
	Connect(ctx context.Context, src, dst Plug) error

	// Disconnect removes the connection from src to dst. The last value of a
	// driven attribute is kept on dst. Returns ErrNotFound if not connected.
	Disconnect(ctx context.Context, src, dst Plug) error

	// IsConnected reports whether src is connected to dst.
	IsConnected(ctx context.Context, src, dst Plug) (bool, error)

	// Connections lists the plugs on the other side of the connections of
	// plug in the given direction, in connection order.
	Connections(ctx context.Context, plug Plug, dir Direction) ([]Plug, error)

	// NodesByType lists all nodes of the given type in creation order.
	NodesByType(ctx context.Context, nodeType string) ([]*Node, error)

	// ReferencedBy returns the reference node the given node was loaded
	// from, or "" if the node is local to the document.
	// Returns ErrNotFound if the node doesn't exist.
	ReferencedBy(ctx context.Context, id string) (string, error)

	// Atomic runs fn inside a single transaction. fn must use the Graph it is
	// given. If fn returns an error every change is rolled back.
	Atomic(ctx context.Context, fn func(g Graph) error) error
}

// Namespaces manages the isolation scopes of the document.
type Namespaces interface {
	// CurrentNamespace returns the namespace new nodes are created in.
	CurrentNamespace(ctx context.Context) (string, error)

	// SetNamespace switches the current namespace. The namespace must exist.
	SetNamespace(ctx context.Context, ns string) error

	// NamespaceExists reports whether the namespace is in the document.
	NamespaceExists(ctx context.Context, ns string) (bool, error)

	// NamespaceContent lists every node in ns and its child namespaces.
	NamespaceContent(ctx context.Context, ns string) ([]*Node, error)

	// RemoveNamespace deletes an empty namespace.
	RemoveNamespace(ctx context.Context, ns string) error
}

// References manages file references.
type References interface {
	// ReferenceFile references the file at path into a namespace derived
	// from nsSuggestion and returns the reference filename. The filename of
	// a duplicate reference to the same path carries a copy suffix ("{1}")
	// and must not be used to locate the reference node.
	ReferenceFile(ctx context.Context, path, nsSuggestion string) (string, error)

	// References lists all reference nodes in creation order.
	References(ctx context.Context) ([]string, error)

	ReferenceNamespace(ctx context.Context, ref string) (string, error)
	ReferenceFilename(ctx context.Context, ref string) (string, error)
	ReferencePath(ctx context.Context, ref string) (string, error)
	IsLoaded(ctx context.Context, ref string) (bool, error)

	LoadReference(ctx context.Context, ref string) error
	UnloadReference(ctx context.Context, ref string) error

	// ReplaceReference swaps the file behind ref, keeping its namespace.
	ReplaceReference(ctx context.Context, ref, path string) (string, error)

	// RemoveReference deletes the reference node and all referenced nodes.
	RemoveReference(ctx context.Context, ref string) error

	// ImportReference turns all referenced nodes into local nodes and
	// deletes the reference node. The reference must be loaded.
	ImportReference(ctx context.Context, ref string) error
}

// Files imports and saves scene files.
type Files interface {
	// ImportFile copies the nodes of the file at path into a namespace
	// derived from nsSuggestion and returns the new nodes.
	ImportFile(ctx context.Context, path, nsSuggestion string) ([]*Node, error)

	// Save writes every local node of the document to a scene file.
	Save(ctx context.Context, path string) error
}

// Dag manages the structural hierarchy of DAG nodes.
type Dag interface {
	// CreateGroup creates a DAG node in the current namespace and reparents
	// children under it.
	CreateGroup(ctx context.Context, nodeType, name string, children []string) (*Node, error)

	// DagParent returns the DAG parent of a node or "" for top level nodes.
	DagParent(ctx context.Context, id string) (string, error)

	// SetDagParent parents a DAG node under parent, or moves it to the top
	// level when parent is "".
	SetDagParent(ctx context.Context, child, parent string) error
}

// Document is the full host document.
type Document interface {
	Graph
	Namespaces
	References
	Files
	Dag

	// Close releases any resources held by the document.
	Close() error
}
