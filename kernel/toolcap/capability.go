package toolcap

import "slices"

// Operation is one normalized tool operation class.
type Operation string

const (
	// OperationNamespaceRead covers read-only views of the host namespace.
	OperationNamespaceRead Operation = "namespace_read"
	// OperationHostStatus covers host availability and metadata queries.
	OperationHostStatus Operation = "host_status"
	// OperationExec covers evaluation of arbitrary code on the host.
	// Declaring it pins a tool to the approval tier regardless of the
	// risk the tool claims for itself.
	OperationExec Operation = "exec"
)

// RiskTier is the routing signal: safe tools run immediately, everything
// else suspends for approval.
type RiskTier string

const (
	RiskTierUnknown          RiskTier = "unknown"
	RiskTierSafe             RiskTier = "safe"
	RiskTierRequiresApproval RiskTier = "requires_approval"
)

// Capability describes one tool's side-effect profile.
type Capability struct {
	Operations []Operation `json:"operations,omitempty"`
	Risk       RiskTier    `json:"risk,omitempty"`
}

// HasOperation reports whether one operation is declared.
func (c Capability) HasOperation(op Operation) bool {
	return slices.Contains(c.Operations, op)
}

// Provider allows a value to declare capabilities.
type Provider interface {
	Capability() Capability
}

// Of returns declared capability, or a default unknown profile.
func Of(value any) Capability {
	if value == nil {
		return Capability{Risk: RiskTierUnknown}
	}
	withCap, ok := value.(Provider)
	if !ok {
		return Capability{Risk: RiskTierUnknown}
	}
	cap := withCap.Capability()
	if cap.Risk == "" {
		cap.Risk = RiskTierUnknown
	}
	if len(cap.Operations) == 0 {
		return cap
	}
	seen := map[Operation]struct{}{}
	out := make([]Operation, 0, len(cap.Operations))
	for _, one := range cap.Operations {
		if one == "" {
			continue
		}
		if _, exists := seen[one]; exists {
			continue
		}
		seen[one] = struct{}{}
		out = append(out, one)
	}
	cap.Operations = out
	return cap
}

// TierOf derives the effective routing tier for a tool. Anything that
// declares exec is escalated, and an unknown profile is never safe.
func TierOf(value any) RiskTier {
	cap := Of(value)
	if cap.HasOperation(OperationExec) {
		return RiskTierRequiresApproval
	}
	switch cap.Risk {
	case RiskTierSafe:
		return RiskTierSafe
	default:
		return RiskTierRequiresApproval
	}
}
