package policy

import (
	"context"
	"time"

	"github.com/ChrisB0-2/purge/internal/core"
)

// AgePolicy protects recently touched files.
type AgePolicy struct {
	MinAge time.Duration
}

func NewAgePolicy(minAgeDays int) *AgePolicy {
	if minAgeDays < 0 {
		minAgeDays = 0
	}
	return &AgePolicy{MinAge: time.Duration(minAgeDays) * 24 * time.Hour}
}

// Evaluate denies a candidate whose last modification is younger than MinAge.
// Candidates without a modification time pass: there is nothing to compare.
func (p *AgePolicy) Evaluate(_ context.Context, c core.Candidate, env core.EnvSnapshot) core.Decision {
	if c.LastModified == nil {
		return core.Decision{Allow: true, Reason: "age_unknown"}
	}

	age := env.Now.Sub(*c.LastModified)
	if age < p.MinAge {
		return core.Decision{Allow: false, Reason: "too_new"}
	}
	return core.Decision{Allow: true, Reason: "age_ok"}
}
