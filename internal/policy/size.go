package policy

import (
	"context"

	"github.com/ChrisB0-2/purge/internal/core"
)

// MaxSizePolicy denies candidates larger than MaxBytes. Zero disables the gate.
type MaxSizePolicy struct {
	MaxBytes int64
}

func NewMaxSizePolicy(maxBytes int64) *MaxSizePolicy {
	return &MaxSizePolicy{MaxBytes: maxBytes}
}

func (p *MaxSizePolicy) Evaluate(_ context.Context, c core.Candidate, _ core.EnvSnapshot) core.Decision {
	if p.MaxBytes > 0 && c.Size > p.MaxBytes {
		return core.Decision{Allow: false, Reason: "too_large"}
	}
	return core.Decision{Allow: true, Reason: "size_ok"}
}
