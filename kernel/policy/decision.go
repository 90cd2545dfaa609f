package policy

import (
	"context"
	"strings"
)

// DecisionEffect describes policy decision outcome.
type DecisionEffect string

const (
	DecisionEffectAllow           DecisionEffect = "allow"
	DecisionEffectDeny            DecisionEffect = "deny"
	DecisionEffectRequireApproval DecisionEffect = "require_approval"
)

// Decision is the mutable policy decision payload propagated across hooks.
type Decision struct {
	Effect   DecisionEffect
	Reason   string
	Metadata map[string]any
}

type decisionContextKey struct{}

// NormalizeDecision normalizes one decision and defaults to allow.
func NormalizeDecision(decision Decision) Decision {
	effect := DecisionEffect(strings.TrimSpace(strings.ToLower(string(decision.Effect))))
	switch effect {
	case DecisionEffectAllow, DecisionEffectDeny, DecisionEffectRequireApproval:
		decision.Effect = effect
	default:
		decision.Effect = DecisionEffectAllow
	}
	decision.Reason = strings.TrimSpace(decision.Reason)
	return decision
}

// WithToolDecision attaches one policy decision for downstream tool execution.
func WithToolDecision(ctx context.Context, decision Decision) context.Context {
	if ctx == nil {
		return nil
	}
	return context.WithValue(ctx, decisionContextKey{}, NormalizeDecision(decision))
}

// ToolDecisionFromContext returns one policy decision from tool context.
func ToolDecisionFromContext(ctx context.Context) (Decision, bool) {
	if ctx == nil {
		return Decision{}, false
	}
	decision, ok := ctx.Value(decisionContextKey{}).(Decision)
	if !ok {
		return Decision{}, false
	}
	return NormalizeDecision(decision), true
}
