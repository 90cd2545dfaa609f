package tool

import (
	"fmt"
	"sort"

	"github.com/basnijholt/kernelchat/kernel/model"
	"github.com/basnijholt/kernelchat/kernel/toolcap"
)

// Entry is one registered tool with its routing tier, derived once at
// registration and immutable afterwards.
type Entry struct {
	Tool       Tool
	Capability toolcap.Capability
	Tier       toolcap.RiskTier
}

// Registry is the static tool table consulted during routing. It is
// assembled at startup and read-only from then on, so lookups need no
// locking.
type Registry struct {
	entries map[string]*Entry
}

// NewRegistry registers every tool, deriving each entry's tier from its
// capability declaration. Tools declaring the exec operation land on the
// approval tier no matter what risk they claim.
func NewRegistry(tools ...Tool) (*Registry, error) {
	byName, err := BuildMap(tools)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]*Entry, len(byName))
	for name, t := range byName {
		entries[name] = &Entry{
			Tool:       t,
			Capability: toolcap.Of(t),
			Tier:       toolcap.TierOf(t),
		}
	}
	return &Registry{entries: entries}, nil
}

// Get looks up one tool entry by name.
func (r *Registry) Get(name string) (*Entry, bool) {
	if r == nil {
		return nil, false
	}
	e, ok := r.entries[name]
	return e, ok
}

// Names returns registered tool names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Declarations returns model-visible declarations in name order.
func (r *Registry) Declarations() []model.ToolDefinition {
	if r == nil {
		return nil
	}
	names := r.Names()
	out := make([]model.ToolDefinition, 0, len(names))
	for _, name := range names {
		out = append(out, r.entries[name].Tool.Declaration())
	}
	return out
}

// Validate checks that the registry is non-empty and every entry landed
// on a concrete tier.
func (r *Registry) Validate() error {
	if r == nil || len(r.entries) == 0 {
		return fmt.Errorf("tool: registry is empty")
	}
	for name, e := range r.entries {
		if e.Tier != toolcap.RiskTierSafe && e.Tier != toolcap.RiskTierRequiresApproval {
			return fmt.Errorf("tool: %q has no routing tier", name)
		}
	}
	return nil
}
