package tool

import (
	"fmt"

	"github.com/basnijholt/kernelchat/kernel/host"
	"github.com/basnijholt/kernelchat/kernel/tool/builtin/kernelspace"
)

// CoreToolsConfig configures the mandatory namespace tools.
type CoreToolsConfig struct {
	Host host.Host
}

// EnsureCoreTools injects the namespace toolset ahead of user tools and
// returns a new tool list. The namespace tool names are reserved.
func EnsureCoreTools(userTools []Tool, cfg CoreToolsConfig) ([]Tool, error) {
	if cfg.Host == nil {
		return nil, fmt.Errorf("tool: host is required for core tools")
	}
	reserved := map[string]struct{}{
		kernelspace.ExecuteCodeToolName:     {},
		kernelspace.GetVariablesToolName:    {},
		kernelspace.InspectVariableToolName: {},
		kernelspace.KernelInfoToolName:      {},
	}
	for _, t := range userTools {
		if t == nil {
			continue
		}
		if _, taken := reserved[t.Name()]; taken {
			return nil, fmt.Errorf("tool: %q is reserved as a core namespace tool", t.Name())
		}
	}
	out := make([]Tool, 0, len(userTools)+4)
	out = append(out,
		kernelspace.NewGetVariables(cfg.Host),
		kernelspace.NewInspectVariable(cfg.Host),
		kernelspace.NewKernelInfo(cfg.Host),
		kernelspace.NewExecuteCode(cfg.Host),
	)
	out = append(out, userTools...)
	return out, nil
}
