package types_test

import (
	"testing"

	"github.com/scrypster/reftrack/pkg/types"
)

func TestContentItemLabels(t *testing.T) {
	smurf := types.Element{ID: 2, Kind: types.KindAsset, Name: "smurf"}
	item := types.ContentItem{
		Element:     smurf,
		Task:        "rig",
		Version:     3,
		ReleaseType: types.ReleaseTypeRelease,
		FileType:    types.FileTypeScene,
	}

	if got := item.String(); got != "smurf/rig v003 release" {
		t.Errorf("Expected smurf/rig v003 release, got %s", got)
	}
	if got := item.Key(); got != "2/rig//3/release/scene" {
		t.Errorf("Expected 2/rig//3/release/scene, got %s", got)
	}

	item.Descriptor = "lowres"
	if got := item.String(); got != "smurf/rig_lowres v003 release" {
		t.Errorf("Expected smurf/rig_lowres v003 release, got %s", got)
	}

	other := item
	other.Version = 4
	if item.Key() == other.Key() {
		t.Error("Different versions must have different keys")
	}
}

func TestElementIsAsset(t *testing.T) {
	if !(types.Element{Kind: types.KindAsset}).IsAsset() {
		t.Error("Asset element should report IsAsset")
	}
	if (types.Element{Kind: types.KindShot}).IsAsset() {
		t.Error("Shot element should not report IsAsset")
	}
}
