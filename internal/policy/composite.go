package policy

import (
	"context"

	"github.com/ChrisB0-2/purge/internal/core"
)

// CompositePolicy requires every member policy to allow (logical AND).
// Members are evaluated in order and evaluation stops at the first deny,
// so ordering decides which deny reason is reported.
type CompositePolicy struct {
	Policies []core.Policy
}

func NewCompositePolicy(policies ...core.Policy) *CompositePolicy {
	return &CompositePolicy{Policies: policies}
}

func (p *CompositePolicy) Evaluate(ctx context.Context, c core.Candidate, env core.EnvSnapshot) core.Decision {
	if len(p.Policies) == 0 {
		return core.Decision{Allow: false, Reason: "no_policies"}
	}

	for _, pol := range p.Policies {
		dec := pol.Evaluate(ctx, c, env)
		if !dec.Allow {
			return core.Decision{Allow: false, Reason: "and_deny:" + dec.Reason}
		}
	}
	return core.Decision{Allow: true, Reason: "and_allow"}
}
