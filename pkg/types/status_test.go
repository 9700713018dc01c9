package types_test

import (
	"testing"

	"github.com/scrypster/reftrack/pkg/types"
)

func TestKnownActions(t *testing.T) {
	for _, action := range []string{
		"reference", "import_content", "load", "unload",
		"replace", "import_reference", "delete",
	} {
		if !types.IsKnownAction(types.Action(action)) {
			t.Errorf("Expected %s to be a known action", action)
		}
	}

	for _, action := range []string{"", "open", "Reference"} {
		if types.IsKnownAction(types.Action(action)) {
			t.Errorf("Expected %q to be an unknown action", action)
		}
	}
}

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		status types.Status
		valid  []types.Action
	}{
		{types.StatusNone, []types.Action{types.ActionReference, types.ActionImportContent}},
		{types.StatusLoaded, []types.Action{types.ActionUnload, types.ActionReplace, types.ActionImportReference, types.ActionDelete}},
		{types.StatusUnloaded, []types.Action{types.ActionLoad, types.ActionReplace, types.ActionImportReference, types.ActionDelete}},
		{types.StatusImported, []types.Action{types.ActionReplace, types.ActionDelete}},
	}

	for _, tt := range tests {
		valid := map[types.Action]bool{}
		for _, a := range tt.valid {
			valid[a] = true
		}
		for _, action := range types.KnownActions {
			if got := types.IsValidTransition(tt.status, action); got != valid[action] {
				t.Errorf("IsValidTransition(%s, %s) = %v, want %v", tt.status, action, got, valid[action])
			}
		}
	}

	if types.IsValidTransition(types.Status("broken"), types.ActionDelete) {
		t.Error("Unknown status should accept no action")
	}
}

func TestTargetStatus(t *testing.T) {
	tests := []struct {
		current types.Status
		action  types.Action
		want    types.Status
	}{
		{types.StatusNone, types.ActionReference, types.StatusLoaded},
		{types.StatusNone, types.ActionImportContent, types.StatusImported},
		{types.StatusUnloaded, types.ActionLoad, types.StatusLoaded},
		{types.StatusLoaded, types.ActionUnload, types.StatusUnloaded},
		{types.StatusLoaded, types.ActionImportReference, types.StatusImported},
		{types.StatusUnloaded, types.ActionReplace, types.StatusUnloaded},
		{types.StatusImported, types.ActionReplace, types.StatusImported},
		{types.StatusLoaded, types.ActionDelete, types.StatusNone},
	}

	for _, tt := range tests {
		if got := types.TargetStatus(tt.current, tt.action); got != tt.want {
			t.Errorf("TargetStatus(%s, %s) = %s, want %s", tt.current, tt.action, got, tt.want)
		}
	}
}

func TestStatusString(t *testing.T) {
	if types.StatusNone.String() != "none" {
		t.Errorf("Expected none, got %s", types.StatusNone.String())
	}
	if types.StatusLoaded.String() != "loaded" {
		t.Errorf("Expected loaded, got %s", types.StatusLoaded.String())
	}
}

func TestNeedsContentItem(t *testing.T) {
	for _, action := range types.KnownActions {
		want := action == types.ActionReference || action == types.ActionImportContent || action == types.ActionReplace
		if action.NeedsContentItem() != want {
			t.Errorf("NeedsContentItem(%s) = %v, want %v", action, !want, want)
		}
	}
}
