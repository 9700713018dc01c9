package reftrack

import (
	"errors"
	"testing"
)

func nopFactory(deps Deps) Strategy {
	return &BaseStrategy{Deps: deps}
}

func TestTypeRegistry_Register(t *testing.T) {
	r := NewTypeRegistry()

	if err := r.Register("Asset", nopFactory); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !r.IsRegistered("Asset") {
		t.Error("Asset should be registered")
	}
	if _, err := r.Resolve("Asset"); err != nil {
		t.Errorf("Resolve failed: %v", err)
	}

	// Existing tags keep their index.
	i, err := r.Index("Asset")
	if err != nil || i != 1 {
		t.Errorf("Index(Asset) = %d, %v; want 1", i, err)
	}
}

func TestTypeRegistry_RegisterTwice(t *testing.T) {
	r := NewTypeRegistry()
	if err := r.Register("Asset", nopFactory); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	err := r.Register("Asset", nopFactory)
	if !errors.Is(err, ErrDuplicateType) {
		t.Errorf("expected ErrDuplicateType, got %v", err)
	}
}

func TestTypeRegistry_RegisterInvalid(t *testing.T) {
	r := NewTypeRegistry()
	for _, tag := range []string{"", NoneType} {
		if err := r.Register(tag, nopFactory); !errors.Is(err, ErrInvalidType) {
			t.Errorf("Register(%q): expected ErrInvalidType, got %v", tag, err)
		}
	}
	if err := r.Register("Asset", nil); !errors.Is(err, ErrInvalidType) {
		t.Errorf("nil factory: expected ErrInvalidType, got %v", err)
	}
}

func TestTypeRegistry_AppendsNewTags(t *testing.T) {
	r := NewTypeRegistry()
	if err := r.Register("Groom", nopFactory); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	tags := r.Tags()
	if len(tags) != len(DefaultTypes)+1 || tags[len(tags)-1] != "Groom" {
		t.Errorf("Groom should be appended to the enumeration, got %v", tags)
	}

	tag, err := r.TagAt(len(DefaultTypes))
	if err != nil || tag != "Groom" {
		t.Errorf("TagAt = %q, %v; want Groom", tag, err)
	}
}

func TestTypeRegistry_Unknown(t *testing.T) {
	r := NewTypeRegistry()

	if _, err := r.Resolve("Camera"); !errors.Is(err, ErrUnknownType) {
		t.Errorf("Resolve of an unregistered tag: expected ErrUnknownType, got %v", err)
	}
	if _, err := r.Index("Groom"); !errors.Is(err, ErrUnknownType) {
		t.Errorf("Index of a missing tag: expected ErrUnknownType, got %v", err)
	}
	if _, err := r.TagAt(99); !errors.Is(err, ErrCorruptState) {
		t.Errorf("TagAt out of range: expected ErrCorruptState, got %v", err)
	}
}

func TestTypeRegistry_RegisteredOrder(t *testing.T) {
	r := NewTypeRegistry()
	for _, tag := range []string{"Camera", "Asset"} {
		if err := r.Register(tag, nopFactory); err != nil {
			t.Fatalf("Register(%s) failed: %v", tag, err)
		}
	}

	got := r.Registered()
	if len(got) != 2 || got[0] != "Asset" || got[1] != "Camera" {
		t.Errorf("Registered() = %v; want enumeration order [Asset Camera]", got)
	}
}

func TestTypeRegistry_TagsIsACopy(t *testing.T) {
	r := NewTypeRegistry()
	tags := r.Tags()
	tags[1] = "Prop"

	if got, err := r.TagAt(1); err != nil || got != "Asset" {
		t.Errorf("TagAt(1) = %q, %v; want Asset", got, err)
	}
	if _, err := r.TagAt(len(tags)); !errors.Is(err, ErrCorruptState) {
		t.Errorf("expected ErrCorruptState, got %v", err)
	}
}
