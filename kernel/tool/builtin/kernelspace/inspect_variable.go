package kernelspace

import (
	"context"
	"fmt"

	"github.com/basnijholt/kernelchat/kernel/host"
	"github.com/basnijholt/kernelchat/kernel/model"
	"github.com/basnijholt/kernelchat/kernel/tool/builtin/internal/argparse"
	"github.com/basnijholt/kernelchat/kernel/toolcap"
)

const (
	InspectVariableToolName = "inspect_variable"
)

// InspectVariableTool reports details about one namespace binding.
type InspectVariableTool struct {
	host host.Host
}

func NewInspectVariable(h host.Host) *InspectVariableTool {
	return &InspectVariableTool{host: h}
}

func (t *InspectVariableTool) Name() string {
	return InspectVariableToolName
}

func (t *InspectVariableTool) Description() string {
	return "Inspect one variable: type, size, preview, and optionally fields and methods."
}

func (t *InspectVariableTool) Capability() toolcap.Capability {
	return toolcap.Capability{
		Operations: []toolcap.Operation{toolcap.OperationNamespaceRead},
		Risk:       toolcap.RiskTierSafe,
	}
}

func (t *InspectVariableTool) Declaration() model.ToolDefinition {
	return model.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"variable_name": map[string]any{"type": "string", "description": "name of the variable"},
				"deep":          map[string]any{"type": "boolean", "description": "include fields and methods"},
			},
			"required": []string{"variable_name"},
		},
	}
}

func (t *InspectVariableTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	name, err := argparse.String(args, "variable_name", true)
	if err != nil {
		return nil, err
	}
	deep, err := argparse.Bool(args, "deep", false)
	if err != nil {
		return nil, err
	}
	if t.host == nil || !t.host.Available() {
		return nil, host.NewCodedError(host.ErrorCodeHostUnavailable, "execution host is not available")
	}

	inspector, ok := t.host.(host.Inspector)
	if !ok {
		h, bound := t.host.SnapshotNamespace()[name]
		if !bound {
			return notBound(name), nil
		}
		return map[string]any{
			"found": true,
			"name":  name,
			"type":  h.TypeName,
		}, nil
	}

	ins, bound := inspector.Inspect(name, deep)
	if !bound {
		return notBound(name), nil
	}
	out := map[string]any{
		"found":    true,
		"name":     ins.Name,
		"type":     ins.TypeName,
		"kind":     ins.Kind,
		"preview":  ins.Preview,
		"callable": ins.Callable,
	}
	if ins.Size >= 0 {
		out["size"] = ins.Size
	}
	if deep {
		if len(ins.Fields) > 0 {
			out["fields"] = ins.Fields
		}
		if len(ins.Methods) > 0 {
			out["methods"] = ins.Methods
		}
	}
	return out, nil
}

func notBound(name string) map[string]any {
	return map[string]any{
		"found":   false,
		"name":    name,
		"message": fmt.Sprintf("variable %q is not bound", name),
	}
}
