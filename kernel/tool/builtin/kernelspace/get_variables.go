package kernelspace

import (
	"context"
	"sort"
	"strings"

	"github.com/basnijholt/kernelchat/kernel/host"
	"github.com/basnijholt/kernelchat/kernel/model"
	"github.com/basnijholt/kernelchat/kernel/tool/builtin/internal/argparse"
	"github.com/basnijholt/kernelchat/kernel/toolcap"
)

const (
	GetVariablesToolName = "get_variables"

	// namesPerType caps how many names each type group lists.
	namesPerType = 20
)

// GetVariablesTool lists the namespace grouped by type.
type GetVariablesTool struct {
	host host.Host
}

func NewGetVariables(h host.Host) *GetVariablesTool {
	return &GetVariablesTool{host: h}
}

func (t *GetVariablesTool) Name() string {
	return GetVariablesToolName
}

func (t *GetVariablesTool) Description() string {
	return "List variables in the live namespace, grouped by type."
}

func (t *GetVariablesTool) Capability() toolcap.Capability {
	return toolcap.Capability{
		Operations: []toolcap.Operation{toolcap.OperationNamespaceRead},
		Risk:       toolcap.RiskTierSafe,
	}
}

func (t *GetVariablesTool) Declaration() model.ToolDefinition {
	return model.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"include_private": map[string]any{"type": "boolean", "description": "include names starting with underscore"},
				"type_filter":     map[string]any{"type": "string", "description": "only list variables of this type"},
			},
		},
	}
}

func (t *GetVariablesTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	includePrivate, err := argparse.Bool(args, "include_private", false)
	if err != nil {
		return nil, err
	}
	typeFilter, err := argparse.String(args, "type_filter", false)
	if err != nil {
		return nil, err
	}
	if t.host == nil || !t.host.Available() {
		return nil, host.NewCodedError(host.ErrorCodeHostUnavailable, "execution host is not available")
	}

	byType := map[string][]string{}
	total := 0
	for name, h := range t.host.SnapshotNamespace() {
		if !includePrivate && strings.HasPrefix(name, "_") {
			continue
		}
		if typeFilter != "" && h.TypeName != typeFilter {
			continue
		}
		byType[h.TypeName] = append(byType[h.TypeName], name)
		total++
	}

	groups := make(map[string]any, len(byType))
	for typeName, names := range byType {
		sort.Strings(names)
		group := map[string]any{"count": len(names)}
		if len(names) > namesPerType {
			group["names"] = names[:namesPerType]
			group["omitted"] = len(names) - namesPerType
		} else {
			group["names"] = names
		}
		groups[typeName] = group
	}
	return map[string]any{
		"count":     total,
		"variables": groups,
	}, nil
}
