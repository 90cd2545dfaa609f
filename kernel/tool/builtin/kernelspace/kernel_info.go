package kernelspace

import (
	"context"

	"github.com/basnijholt/kernelchat/kernel/host"
	"github.com/basnijholt/kernelchat/kernel/model"
	"github.com/basnijholt/kernelchat/kernel/toolcap"
)

const (
	KernelInfoToolName = "kernel_info"
)

// KernelInfoTool reports host availability and namespace facts.
type KernelInfoTool struct {
	host host.Host
}

func NewKernelInfo(h host.Host) *KernelInfoTool {
	return &KernelInfoTool{host: h}
}

func (t *KernelInfoTool) Name() string {
	return KernelInfoToolName
}

func (t *KernelInfoTool) Description() string {
	return "Report execution host status: availability, language, namespace size, execution count."
}

func (t *KernelInfoTool) Capability() toolcap.Capability {
	return toolcap.Capability{
		Operations: []toolcap.Operation{toolcap.OperationHostStatus},
		Risk:       toolcap.RiskTierSafe,
	}
}

func (t *KernelInfoTool) Declaration() model.ToolDefinition {
	return model.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

func (t *KernelInfoTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	_ = args
	if t.host == nil {
		return map[string]any{"available": false}, nil
	}
	out := map[string]any{
		"available": t.host.Available(),
	}
	if t.host.Available() {
		out["namespace_size"] = len(t.host.SnapshotNamespace())
	}
	if describer, ok := t.host.(host.Describer); ok {
		d := describer.Describe()
		out["language"] = d.Language
		out["language_version"] = d.LanguageVersion
		out["execution_count"] = d.ExecutionCount
	}
	return out, nil
}
