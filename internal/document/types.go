package document

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates that the requested node, attribute or connection was not found.
	ErrNotFound = errors.New("node not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrLocked indicates that a locked node was about to be deleted.
	ErrLocked = errors.New("node is locked")

	// ErrFileNotFound indicates that a referenced or imported file does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrNotReference indicates that a node is not a reference node.
	ErrNotReference = errors.New("not a reference node")

	// ErrNotLoaded indicates that an operation needs a loaded reference.
	ErrNotLoaded = errors.New("reference is not loaded")

	// ErrNamespaceNotEmpty indicates that a namespace still has content.
	ErrNamespaceNotEmpty = errors.New("namespace is not empty")
)

// RootNamespace is the namespace of the document itself.
const RootNamespace = ":"

// ReferenceNodeType is the node type of reference nodes.
const ReferenceNodeType = "reference"

// MessageAttr is the implicit attribute every node has for message connections.
const MessageAttr = "message"

// Direction selects which side of a plug's connections to list.
type Direction int

const (
	// Incoming lists the sources driving a plug.
	Incoming Direction = iota
	// Outgoing lists the destinations a plug drives.
	Outgoing
)

// Plug addresses one attribute of one node.
type Plug struct {
	Node string // Node ID
	Attr string // Attribute name
}

// P is shorthand for building a Plug.
func P(node, attr string) Plug {
	return Plug{Node: node, Attr: attr}
}

// String returns the plug as "node.attr".
func (p Plug) String() string {
	return p.Node + "." + p.Attr
}

// Node is a node of the host document.
type Node struct {
	ID           string // Opaque handle, never reused
	Seq          int64  // Creation order
	Name         string // Unique full name, "ns:short" or "short" in the root namespace
	Type         string
	Namespace    string // Full namespace, RootNamespace for root nodes
	Dag          bool   // Structural node that can be grouped
	DagParent    string // DAG parent node ID, empty for top level
	Locked       bool
	ReferencedBy string // Reference node the node was loaded from, empty if local
}

// ShortName returns the node name without its namespace.
func (n *Node) ShortName() string {
	return ShortName(n.Name)
}

// JoinName prefixes name with the namespace ns.
func JoinName(ns, name string) string {
	ns = strings.Trim(ns, ":")
	if ns == "" {
		return name
	}
	return ns + ":" + name
}

// ShortName strips every namespace from a node name.
func ShortName(name string) string {
	if i := strings.LastIndex(name, ":"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// NamespaceOf returns the full namespace of a node name, RootNamespace for
// names without a namespace.
func NamespaceOf(name string) string {
	name = strings.TrimPrefix(name, ":")
	i := strings.LastIndex(name, ":")
	if i <= 0 {
		return RootNamespace
	}
	return name[:i]
}

// TopNamespace returns the first namespace segment of a node name, or
// RootNamespace if the name has no namespace.
func TopNamespace(name string) string {
	name = strings.TrimPrefix(name, ":")
	i := strings.Index(name, ":")
	if i <= 0 {
		return RootNamespace
	}
	return name[:i]
}

// NormalizeNamespace converts ":ns" and "ns:" spellings to "ns" and empty
// strings to RootNamespace.
func NormalizeNamespace(ns string) string {
	ns = strings.Trim(ns, ":")
	if ns == "" {
		return RootNamespace
	}
	return ns
}

// InNamespace reports whether the namespace of a node is ns or one of its
// child namespaces.
func InNamespace(nodeNamespace, ns string) bool {
	ns = NormalizeNamespace(ns)
	if ns == RootNamespace {
		return true
	}
	nodeNamespace = NormalizeNamespace(nodeNamespace)
	return nodeNamespace == ns || strings.HasPrefix(nodeNamespace, ns+":")
}

// IncrementName bumps the trailing number of name, appending "1" when there
// is none: "smurf_1" -> "smurf_2", "transform" -> "transform1".
func IncrementName(name string) string {
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	if i == len(name) {
		return name + "1"
	}
	n := 0
	for _, c := range name[i:] {
		n = n*10 + int(c-'0')
	}
	return fmt.Sprintf("%s%d", name[:i], n+1)
}
