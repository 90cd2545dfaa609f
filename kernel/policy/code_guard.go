package policy

import (
	"context"
	"fmt"
	"strings"
)

const defaultCodeExecutionToolName = "execute_code"

// CodeGuardConfig configures the code-execution guard hook.
type CodeGuardConfig struct {
	// ToolName is the gated code tool, execute_code when empty.
	ToolName string
	// DenyPatterns reject matching code outright.
	DenyPatterns []string
	// EscalatePatterns force the approval path even for code a later
	// hook might have allowed.
	EscalatePatterns []string
}

type codeGuardHook struct {
	name     string
	tool     string
	deny     []string
	escalate []string
}

// GuardCode denies or escalates code submissions by substring match.
// It inspects only the code argument; anything else passes through.
func GuardCode(cfg CodeGuardConfig) Hook {
	toolName := strings.TrimSpace(cfg.ToolName)
	if toolName == "" {
		toolName = defaultCodeExecutionToolName
	}
	return codeGuardHook{
		name:     "guard_code",
		tool:     toolName,
		deny:     cfg.DenyPatterns,
		escalate: cfg.EscalatePatterns,
	}
}

func (h codeGuardHook) Name() string {
	return h.name
}

func (h codeGuardHook) BeforeModel(ctx context.Context, in ModelInput) (ModelInput, error) {
	_ = ctx
	return in, nil
}

func (h codeGuardHook) BeforeTool(ctx context.Context, in ToolInput) (ToolInput, error) {
	_ = ctx
	if strings.TrimSpace(in.Call.Name) != h.tool {
		return in, nil
	}
	codeRaw, _ := in.Call.Args["code"].(string)
	code := strings.TrimSpace(codeRaw)
	if code == "" {
		return in, nil
	}
	for _, pattern := range h.deny {
		if pattern != "" && strings.Contains(code, pattern) {
			in.Decision = Decision{
				Effect: DecisionEffectDeny,
				Reason: fmt.Sprintf("code matches blocked pattern %q", pattern),
			}
			return in, nil
		}
	}
	for _, pattern := range h.escalate {
		if pattern != "" && strings.Contains(code, pattern) {
			in.Decision = Decision{
				Effect: DecisionEffectRequireApproval,
				Reason: fmt.Sprintf("code matches escalated pattern %q", pattern),
			}
			return in, nil
		}
	}
	return in, nil
}

func (h codeGuardHook) AfterTool(ctx context.Context, out ToolOutput) (ToolOutput, error) {
	_ = ctx
	return out, nil
}

func (h codeGuardHook) BeforeOutput(ctx context.Context, out Output) (Output, error) {
	_ = ctx
	return out, nil
}
