package callable_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/alexpearce/distribute-challenge/internal/callable"
)

func TestRegistryDefineAndLookup(t *testing.T) {
	reg := callable.NewRegistry()
	square := reg.MustDefine("square", func(x int) int { return x * x }, callable.Required("x"))

	got, err := reg.Lookup("square")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got != square {
		t.Error("Lookup returned a different function")
	}
	if square.Registry() != reg {
		t.Error("Registry() should return the owning registry")
	}
}

func TestRegistryLookupUnknown(t *testing.T) {
	reg := callable.NewRegistry()

	_, err := reg.Lookup("missing")
	if !errors.Is(err, callable.ErrUnknownFunction) {
		t.Errorf("Lookup error = %v, want ErrUnknownFunction", err)
	}
}

func TestRegistryDuplicateName(t *testing.T) {
	reg := callable.NewRegistry()
	reg.MustDefine("noop", func() {})

	if _, err := reg.Define("noop", func() {}); err == nil {
		t.Error("expected error registering a duplicate name, got nil")
	}
}

func TestRegistryRejectsForeignFunction(t *testing.T) {
	first := callable.NewRegistry()
	f := first.MustDefine("noop", func() {})

	second := callable.NewRegistry()
	if err := second.Register(f); err == nil {
		t.Error("expected error registering a function owned by another registry")
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	reg := callable.NewRegistry()
	reg.MustDefine("zeta", func() {})
	reg.MustDefine("alpha", func() {})
	reg.MustDefine("mid", func() {})

	if diff := cmp.Diff([]string{"alpha", "mid", "zeta"}, reg.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}

func TestMustDefinePanicsOnInvalidFunction(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustDefine should panic for an invalid definition")
		}
	}()
	callable.NewRegistry().MustDefine("bad", "not a func")
}
