// Package kernelspace holds the built-in tools operating on the live
// execution host: read-only namespace views plus the gated code runner.
package kernelspace

import (
	"context"

	"github.com/basnijholt/kernelchat/kernel/host"
	"github.com/basnijholt/kernelchat/kernel/model"
	"github.com/basnijholt/kernelchat/kernel/tool/builtin/internal/argparse"
	"github.com/basnijholt/kernelchat/kernel/toolcap"
)

const (
	ExecuteCodeToolName = "execute_code"
)

// ExecuteCodeTool evaluates code on the host and reports the namespace
// delta. It declares the exec operation, which pins it to the approval
// tier at registration time.
type ExecuteCodeTool struct {
	host host.Host
}

func NewExecuteCode(h host.Host) *ExecuteCodeTool {
	return &ExecuteCodeTool{host: h}
}

func (t *ExecuteCodeTool) Name() string {
	return ExecuteCodeToolName
}

func (t *ExecuteCodeTool) Description() string {
	return "Execute code in the live namespace. Bindings persist across calls; output and namespace changes are reported."
}

func (t *ExecuteCodeTool) Capability() toolcap.Capability {
	return toolcap.Capability{
		Operations: []toolcap.Operation{toolcap.OperationExec},
		Risk:       toolcap.RiskTierRequiresApproval,
	}
}

func (t *ExecuteCodeTool) Declaration() model.ToolDefinition {
	return model.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code":   map[string]any{"type": "string", "description": "code to evaluate"},
				"silent": map[string]any{"type": "boolean", "description": "suppress the result value"},
			},
			"required": []string{"code"},
		},
	}
}

func (t *ExecuteCodeTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	code, err := argparse.String(args, "code", false)
	if err != nil {
		return nil, err
	}
	silent, err := argparse.Bool(args, "silent", false)
	if err != nil {
		return nil, err
	}
	if t.host == nil || !t.host.Available() {
		return nil, host.NewCodedError(host.ErrorCodeHostUnavailable, "execution host is not available")
	}

	before := t.host.SnapshotNamespace()
	res, err := t.host.Run(ctx, code)
	if err != nil {
		return nil, err
	}
	after := t.host.SnapshotNamespace()
	// changed_names covers every binding the run touched, new and rebound
	// alike; new_names is the new-only subset.
	newNames, reboundNames := host.DiffNamespaces(before, after)
	changedNames := append(append([]string(nil), newNames...), reboundNames...)

	out := map[string]any{
		"success": res.Err == nil,
		"stdout":  res.Stdout,
		"stderr":  res.Stderr,
	}
	if !silent && res.Value != "" {
		out["value"] = res.Value
	}
	if len(newNames) > 0 {
		out["new_names"] = newNames
	}
	if len(changedNames) > 0 {
		out["changed_names"] = changedNames
	}
	if res.Err != nil {
		errInfo := map[string]any{
			"kind":    res.Err.Kind,
			"message": res.Err.Message,
		}
		if len(res.Err.Trace) > 0 {
			errInfo["trace"] = res.Err.Trace
		}
		out["error"] = errInfo
	}
	return out, nil
}
