// Package host defines the execution host contract: a live, mutable
// namespace that code can be evaluated against, with structured outcomes
// instead of propagated faults.
package host

import "context"

// ErrorInfo is the structured form of a host-side evaluation failure.
// Kind is a stable classifier (for example "CompileError", "RuntimeError",
// "Panic"); Trace carries host-formatted frames when available.
type ErrorInfo struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	Trace   []string `json:"trace,omitempty"`
}

// RunResult is the outcome of one evaluation. A failed run is still a
// valid result: Err is set and the captured streams are preserved.
type RunResult struct {
	// Value is the representation of the final expression, empty when the
	// code produced no value.
	Value  string
	Stdout string
	Stderr string
	Err    *ErrorInfo
}

// Host is a live execution environment holding a mutable namespace.
//
// Run evaluates code against the namespace and must honor ctx
// cancellation. Host-side failures (compile errors, runtime panics) are
// reported inside RunResult; the error return is reserved for the host
// itself being unable to serve (unreachable, shut down).
type Host interface {
	Available() bool
	SnapshotNamespace() map[string]Handle
	Run(ctx context.Context, code string) (RunResult, error)
}

// Description reports static facts about a host for status surfaces.
type Description struct {
	Language        string
	LanguageVersion string
	ExecutionCount  int
}

// Describer is an optional Host extension for status reporting.
type Describer interface {
	Describe() Description
}

// Inspection is a detailed view of one namespace binding.
type Inspection struct {
	Name     string
	TypeName string
	Kind     string
	// Size is the element count for collections, -1 when not applicable.
	Size     int
	Preview  string
	Callable bool
	// Fields and Methods are populated only for deep inspections.
	Fields  []string
	Methods []string
}

// Inspector is an optional Host extension for per-binding inspection.
// The bool result reports whether the name is bound.
type Inspector interface {
	Inspect(name string, deep bool) (Inspection, bool)
}
