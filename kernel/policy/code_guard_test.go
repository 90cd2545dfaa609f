package policy

import (
	"context"
	"testing"

	"github.com/basnijholt/kernelchat/kernel/model"
)

func guardInput(code string) ToolInput {
	return ToolInput{
		Call: model.ToolCall{
			ID:   "call-1",
			Name: "execute_code",
			Args: map[string]any{"code": code},
		},
	}
}

func TestGuardCode_DeniesBlockedPattern(t *testing.T) {
	hook := GuardCode(CodeGuardConfig{DenyPatterns: []string{"os.RemoveAll"}})
	out, err := hook.BeforeTool(context.Background(), guardInput(`os.RemoveAll("/")`))
	if err != nil {
		t.Fatal(err)
	}
	if out.Decision.Effect != DecisionEffectDeny {
		t.Fatalf("expected deny, got %q", out.Decision.Effect)
	}
	if out.Decision.Reason == "" {
		t.Fatal("expected a reason on denial")
	}
}

func TestGuardCode_EscalatesPattern(t *testing.T) {
	hook := GuardCode(CodeGuardConfig{EscalatePatterns: []string{"net/http"}})
	out, err := hook.BeforeTool(context.Background(), guardInput(`import "net/http"`))
	if err != nil {
		t.Fatal(err)
	}
	if out.Decision.Effect != DecisionEffectRequireApproval {
		t.Fatalf("expected require_approval, got %q", out.Decision.Effect)
	}
}

func TestGuardCode_PassesCleanCode(t *testing.T) {
	hook := GuardCode(CodeGuardConfig{DenyPatterns: []string{"os.RemoveAll"}})
	out, err := hook.BeforeTool(context.Background(), guardInput("x := 1"))
	if err != nil {
		t.Fatal(err)
	}
	if out.Decision.Effect != "" {
		t.Fatalf("expected untouched decision, got %q", out.Decision.Effect)
	}
}

func TestGuardCode_IgnoresOtherTools(t *testing.T) {
	hook := GuardCode(CodeGuardConfig{DenyPatterns: []string{"x"}})
	in := ToolInput{Call: model.ToolCall{Name: "get_variables", Args: map[string]any{"code": "x"}}}
	out, err := hook.BeforeTool(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if out.Decision.Effect != "" {
		t.Fatalf("expected untouched decision for other tool, got %q", out.Decision.Effect)
	}
}
