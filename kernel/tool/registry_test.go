package tool

import (
	"context"
	"testing"

	"github.com/basnijholt/kernelchat/kernel/model"
	"github.com/basnijholt/kernelchat/kernel/toolcap"
)

type declaredTool struct {
	name string
	cap  toolcap.Capability
}

func (t declaredTool) Name() string        { return t.name }
func (t declaredTool) Description() string { return "test tool" }
func (t declaredTool) Declaration() model.ToolDefinition {
	return model.ToolDefinition{Name: t.name, Description: "test tool"}
}
func (t declaredTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	return map[string]any{"ok": true}, nil
}
func (t declaredTool) Capability() toolcap.Capability { return t.cap }

func TestRegistry_TierDerivation(t *testing.T) {
	safe := declaredTool{name: "lookup", cap: toolcap.Capability{
		Operations: []toolcap.Operation{toolcap.OperationNamespaceRead},
		Risk:       toolcap.RiskTierSafe,
	}}
	gated := declaredTool{name: "run_code", cap: toolcap.Capability{
		Operations: []toolcap.Operation{toolcap.OperationExec},
		Risk:       toolcap.RiskTierSafe,
	}}
	reg, err := NewRegistry(safe, gated)
	if err != nil {
		t.Fatal(err)
	}
	entry, ok := reg.Get("lookup")
	if !ok || entry.Tier != toolcap.RiskTierSafe {
		t.Fatalf("expected safe tier for lookup, got %+v", entry)
	}
	entry, ok = reg.Get("run_code")
	if !ok || entry.Tier != toolcap.RiskTierRequiresApproval {
		t.Fatalf("expected exec declaration to force approval tier, got %+v", entry)
	}
}

func TestRegistry_UnknownName(t *testing.T) {
	reg, err := NewRegistry(declaredTool{name: "only", cap: toolcap.Capability{Risk: toolcap.RiskTierSafe}})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := reg.Get("missing"); ok {
		t.Fatal("expected lookup miss for unregistered name")
	}
}

func TestRegistry_DuplicateNamesRejected(t *testing.T) {
	a := declaredTool{name: "dup"}
	b := declaredTool{name: "dup"}
	if _, err := NewRegistry(a, b); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestRegistry_DeclarationsSorted(t *testing.T) {
	reg, err := NewRegistry(
		declaredTool{name: "zeta"},
		declaredTool{name: "alpha"},
	)
	if err != nil {
		t.Fatal(err)
	}
	decls := reg.Declarations()
	if len(decls) != 2 || decls[0].Name != "alpha" || decls[1].Name != "zeta" {
		t.Fatalf("unexpected declaration order: %v", decls)
	}
}
