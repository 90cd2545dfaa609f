package host

import (
	"fmt"
	"reflect"
	"sort"
)

const fingerprintLimit = 256

// Handle is an opaque fingerprint of one namespace binding, captured at
// snapshot time. Two handles compare equal when the binding they were
// taken from is, as far as the host can tell, the same value.
//
// Go has no universal reference identity, so Same is an approximation:
// pointer-carrying kinds compare by pointer, comparable values by value,
// everything else by a formatted fingerprint. Mutation through a shared
// pointer is therefore invisible, matching rebinding-only diff semantics.
type Handle struct {
	TypeName string

	kind        reflect.Kind
	pointer     uintptr
	hasPointer  bool
	value       any
	comparable  bool
	fingerprint string
}

// HandleOf captures the identity fingerprint of one value.
func HandleOf(v any) Handle {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return Handle{TypeName: "nil"}
	}
	h := Handle{
		TypeName: rv.Type().String(),
		kind:     rv.Kind(),
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		h.pointer = rv.Pointer()
		h.hasPointer = true
	default:
		if rv.Type().Comparable() {
			h.value = v
			h.comparable = true
		} else {
			h.fingerprint = truncateFingerprint(fmt.Sprintf("%#v", v))
		}
	}
	return h
}

// Same reports whether both handles fingerprint the same binding.
func (h Handle) Same(other Handle) bool {
	if h.TypeName != other.TypeName || h.kind != other.kind {
		return false
	}
	if h.hasPointer || other.hasPointer {
		return h.hasPointer == other.hasPointer && h.pointer == other.pointer
	}
	if h.comparable && other.comparable {
		return h.value == other.value
	}
	return h.fingerprint == other.fingerprint
}

// DiffNamespaces compares two snapshots. New names are bindings absent
// before; changed names were present before and rebound since. Deleted
// bindings are not reported. Both lists are sorted.
func DiffNamespaces(before, after map[string]Handle) (newNames, changedNames []string) {
	for name, h := range after {
		prev, ok := before[name]
		if !ok {
			newNames = append(newNames, name)
			continue
		}
		if !prev.Same(h) {
			changedNames = append(changedNames, name)
		}
	}
	sort.Strings(newNames)
	sort.Strings(changedNames)
	return newNames, changedNames
}

func truncateFingerprint(s string) string {
	if len(s) <= fingerprintLimit {
		return s
	}
	return s[:fingerprintLimit]
}
