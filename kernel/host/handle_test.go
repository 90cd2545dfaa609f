package host

import (
	"reflect"
	"testing"
)

func TestHandle_PointerKindsCompareByIdentity(t *testing.T) {
	a := []int{1, 2, 3}
	b := []int{1, 2, 3}
	if !HandleOf(a).Same(HandleOf(a)) {
		t.Fatal("expected same slice to match itself")
	}
	if HandleOf(a).Same(HandleOf(b)) {
		t.Fatal("expected distinct slices with equal contents to differ")
	}
	m := map[string]int{"x": 1}
	if !HandleOf(m).Same(HandleOf(m)) {
		t.Fatal("expected same map to match itself")
	}
}

func TestHandle_ComparableValuesCompareByValue(t *testing.T) {
	if !HandleOf(42).Same(HandleOf(42)) {
		t.Fatal("expected equal ints to match")
	}
	if HandleOf(42).Same(HandleOf(43)) {
		t.Fatal("expected unequal ints to differ")
	}
	if HandleOf("a").Same(HandleOf(1)) {
		t.Fatal("expected different types to differ")
	}
}

func TestHandle_NilBinding(t *testing.T) {
	if !HandleOf(nil).Same(HandleOf(nil)) {
		t.Fatal("expected nil bindings to match")
	}
	if HandleOf(nil).Same(HandleOf(0)) {
		t.Fatal("expected nil and zero int to differ")
	}
}

func TestDiffNamespaces(t *testing.T) {
	shared := []int{1}
	before := map[string]Handle{
		"kept":    HandleOf(7),
		"rebound": HandleOf(1),
		"shared":  HandleOf(shared),
		"dropped": HandleOf("gone"),
	}
	after := map[string]Handle{
		"kept":    HandleOf(7),
		"rebound": HandleOf(2),
		"shared":  HandleOf(shared),
		"fresh":   HandleOf("hi"),
	}
	newNames, changed := DiffNamespaces(before, after)
	if !reflect.DeepEqual(newNames, []string{"fresh"}) {
		t.Fatalf("unexpected new names: %v", newNames)
	}
	if !reflect.DeepEqual(changed, []string{"rebound"}) {
		t.Fatalf("unexpected changed names: %v", changed)
	}
}

func TestDiffNamespaces_EmptyBefore(t *testing.T) {
	newNames, changed := DiffNamespaces(nil, map[string]Handle{"x": HandleOf(1)})
	if !reflect.DeepEqual(newNames, []string{"x"}) {
		t.Fatalf("unexpected new names: %v", newNames)
	}
	if len(changed) != 0 {
		t.Fatalf("expected no changed names, got %v", changed)
	}
}
