package types

// Status is the lifecycle state of a tracked entity. It is always derived
// from the host document and never stored.
type Status string

// Lifecycle status constants for tracked entities
const (
	StatusNone     Status = ""         // No content attached
	StatusImported Status = "imported" // Content is owned by the document, no reference
	StatusLoaded   Status = "loaded"   // Content is referenced and the reference is loaded
	StatusUnloaded Status = "unloaded" // Content is referenced but the reference is unloaded
)

// String returns a printable name for the status.
func (s Status) String() string {
	if s == StatusNone {
		return "none"
	}
	return string(s)
}

// Action is a lifecycle operation that can be performed on a tracked entity.
type Action string

// Lifecycle actions
const (
	ActionReference       Action = "reference"
	ActionImportContent   Action = "import_content"
	ActionLoad            Action = "load"
	ActionUnload          Action = "unload"
	ActionReplace         Action = "replace"
	ActionImportReference Action = "import_reference"
	ActionDelete          Action = "delete"
)

// KnownActions contains every action the controller can dispatch.
var KnownActions = []Action{
	ActionReference,
	ActionImportContent,
	ActionLoad,
	ActionUnload,
	ActionReplace,
	ActionImportReference,
	ActionDelete,
}

// IsKnownAction checks if the given action is part of KnownActions.
func IsKnownAction(action Action) bool {
	for _, known := range KnownActions {
		if action == known {
			return true
		}
	}
	return false
}

// NeedsContentItem reports whether the action requires a content item argument.
func (a Action) NeedsContentItem() bool {
	return a == ActionReference || a == ActionImportContent || a == ActionReplace
}

// IsValidTransition reports whether action may be performed on an entity in
// the current status.
//
// Valid transitions:
//
//	none -> reference (loaded) | import_content (imported)
//	loaded -> unload | replace | import_reference | delete
//	unloaded -> load | replace | delete
//	imported -> replace | delete
//
// import_reference from unloaded is a restriction, not a transition error, so
// it is accepted here and refused by the restriction rule.
func IsValidTransition(current Status, action Action) bool {
	switch current {
	case StatusNone:
		return action == ActionReference || action == ActionImportContent

	case StatusLoaded:
		return action == ActionUnload || action == ActionReplace ||
			action == ActionImportReference || action == ActionDelete

	case StatusUnloaded:
		return action == ActionLoad || action == ActionReplace ||
			action == ActionImportReference || action == ActionDelete

	case StatusImported:
		return action == ActionReplace || action == ActionDelete

	default:
		return false
	}
}

// TargetStatus returns the status an entity ends up in after action succeeds.
// Replace keeps the current status.
func TargetStatus(current Status, action Action) Status {
	switch action {
	case ActionReference, ActionLoad:
		return StatusLoaded
	case ActionImportContent, ActionImportReference:
		return StatusImported
	case ActionUnload:
		return StatusUnloaded
	case ActionDelete:
		return StatusNone
	default:
		return current
	}
}
