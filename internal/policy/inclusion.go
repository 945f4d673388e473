package policy

import (
	"context"

	"github.com/ChrisB0-2/purge/internal/core"
)

// InclusionPolicy is an allow-list: when patterns are configured, a candidate
// must match at least one of them. An empty list admits everything.
type InclusionPolicy struct {
	matchers []globMatcher
}

func NewInclusionPolicy(patterns []string) *InclusionPolicy {
	return &InclusionPolicy{matchers: compileMatchers(patterns)}
}

func (p *InclusionPolicy) Evaluate(_ context.Context, c core.Candidate, _ core.EnvSnapshot) core.Decision {
	if len(p.matchers) == 0 {
		return core.Decision{Allow: true, Reason: "no_inclusions"}
	}

	for _, m := range p.matchers {
		if m.match(c.Path) {
			return core.Decision{Allow: true, Reason: "included:" + m.pattern}
		}
	}
	return core.Decision{Allow: false, Reason: "not_included"}
}
