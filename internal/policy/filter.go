package policy

import (
	"context"
	"time"

	"github.com/ChrisB0-2/purge/internal/core"
)

// FromConfig builds the inclusion pipeline for one scanner:
// age gate, size gate, exclusion gate, inclusion gate, in that order.
// Exclusion runs before inclusion, so an excluded path is never rescued
// by an inclusion pattern.
func FromConfig(cfg core.ScannerConfig) core.Policy {
	return NewCompositePolicy(
		NewAgePolicy(cfg.MinFileAgeDays),
		NewMaxSizePolicy(cfg.MaxFileSize),
		NewExclusionPolicy(cfg.ExcludePatterns),
		NewInclusionPolicy(cfg.IncludePatterns),
	)
}

// ShouldInclude reports whether c is reportable under cfg at time now.
// It has no side effects.
func ShouldInclude(c core.Candidate, cfg core.ScannerConfig, now time.Time) bool {
	return FromConfig(cfg).Evaluate(context.Background(), c, core.EnvSnapshot{Now: now}).Allow
}
