package policy

import (
	"context"

	"github.com/ChrisB0-2/purge/internal/core"
)

// ExclusionPolicy denies candidates matching any exclusion pattern.
// Patterns use filepath.Match syntax (e.g., "*.important", "keep-*", "backup/**").
type ExclusionPolicy struct {
	matchers []globMatcher
}

// NewExclusionPolicy creates a policy that blocks files matching any pattern.
// Empty patterns slice means nothing is excluded (all files allowed).
func NewExclusionPolicy(patterns []string) *ExclusionPolicy {
	return &ExclusionPolicy{matchers: compileMatchers(patterns)}
}

func (p *ExclusionPolicy) Evaluate(_ context.Context, c core.Candidate, _ core.EnvSnapshot) core.Decision {
	if len(p.matchers) == 0 {
		return core.Decision{Allow: true, Reason: "no_exclusions"}
	}

	for _, m := range p.matchers {
		if m.match(c.Path) {
			return core.Decision{Allow: false, Reason: "excluded:" + m.pattern}
		}
	}
	return core.Decision{Allow: true, Reason: "not_excluded"}
}
