package types

// EntityInfo is a read-only snapshot of a tracked entity, assembled from the
// host document at query time. It is never persisted.
type EntityInfo struct {
	ID         string   `json:"id"`                  // Opaque handle into the document graph
	Type       string   `json:"type"`                // Type tag (see TypeRegistry)
	Identifier int      `json:"identifier"`          // Sibling ordering identifier
	Namespace  string   `json:"namespace,omitempty"` // Namespace of the attached content
	Parent     string   `json:"parent,omitempty"`    // Parent entity ID, empty for roots
	Children   []string `json:"children,omitempty"`  // Child entity IDs
	Reference  string   `json:"reference,omitempty"` // Attached reference node, empty if imported
	NestedIn   string   `json:"nested_in,omitempty"` // Outer reference holding the entity node itself
	FileID     int      `json:"file_id,omitempty"`   // Loaded content item identifier, 0 if none
	Status     Status   `json:"status"`              // Derived lifecycle status
}

// Suggestion is an element a type strategy proposes to track in the current
// document.
type Suggestion struct {
	Type    string  `json:"type"`
	Element Element `json:"element"`
}
