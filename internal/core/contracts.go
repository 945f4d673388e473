package core

import (
	"context"
	"errors"
	"path/filepath"
	"time"
)

var (
	ErrRelativePath        = errors.New("path must be absolute")
	ErrUnknownCategory     = errors.New("unknown category")
	ErrUnknownSafetyTier   = errors.New("unknown safety tier")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrUnknownScanner      = errors.New("unknown scanner")
)

// Source is a pluggable producer of raw candidates for one category or origin.
//
// Discover returns a finite, non-restartable stream. Each call re-walks the
// filesystem. The candidate channel is closed when discovery ends; at most one
// error is delivered on the error channel, which is closed afterwards.
type Source interface {
	Name() string
	SupportedPlatforms() []Platform
	Category() Category
	Description() string
	Discover(ctx context.Context) (<-chan Candidate, <-chan error)
}

type Decision struct {
	Allow  bool
	Reason string
}

type EnvSnapshot struct {
	Now time.Time
}

type Policy interface {
	Evaluate(ctx context.Context, cand Candidate, env EnvSnapshot) Decision
}

// HandleSnapshot is a point-in-time view of the paths held open by running processes.
type HandleSnapshot interface {
	IsOpen(path string) bool
	HasOpenUnder(dir string) bool
}

// HandleProvider captures a HandleSnapshot. Callers take one per cleanup batch.
type HandleProvider interface {
	Snapshot(ctx context.Context) (HandleSnapshot, error)
}

type Auditor interface {
	Record(ctx context.Context, evt AuditEvent)
}

type AuditEvent struct {
	Time   time.Time
	Level  string
	Action string
	Path   string
	Fields map[string]any
	Err    error
}

// Metrics defines the interface for collecting operational metrics.
type Metrics interface {
	// Scanning metrics
	IncCandidatesDiscovered(scanner string)
	IncPolicyDecision(reason string, allowed bool)
	ObserveScanDuration(scanner string, duration time.Duration)
	IncScannerErrors(scanner string)
	SetBytesReclaimable(bytes int64)
	SetItemsReclaimable(count int)

	// Cleanup metrics
	IncItemsRemoved(scanner string)
	AddBytesFreed(bytes int64)
	IncRemoveErrors(reason string)
	ObserveHandleSnapshot(duration time.Duration, handles int)
}

func Normalize(p string) string {
	return filepath.Clean(p)
}
