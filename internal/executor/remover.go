package executor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/ChrisB0-2/purge/internal/core"
	"github.com/ChrisB0-2/purge/internal/logger"
	"github.com/ChrisB0-2/purge/internal/metrics"
	"github.com/ChrisB0-2/purge/internal/safety"
)

// Remover deletes one path at a time, best-effort.
//
// Gates in order:
//  1. the path must exist (Lstat, symlinks are not followed)
//  2. the path must not be protected (filesystem root, home, configured paths)
//  3. no running process may hold the path, or anything under it, open
//  4. files and symlinks are unlinked; directories are emptied depth-first
//
// Failures are returned as outcomes, never as panics or errors.
type Remover struct {
	guard   *safety.Guard
	handles core.HandleProvider
	aud     core.Auditor
	now     func() time.Time
	log     logger.Logger
	metrics core.Metrics
}

// NewRemover creates a remover with no-op logging and metrics.
// A nil guard protects only the filesystem root and home directory;
// a nil provider takes live process snapshots.
func NewRemover(guard *safety.Guard, handles core.HandleProvider) *Remover {
	return NewRemoverWithMetrics(guard, handles, nil, nil)
}

// NewRemoverWithLogger creates a remover with the given logger.
func NewRemoverWithLogger(guard *safety.Guard, handles core.HandleProvider, log logger.Logger) *Remover {
	return NewRemoverWithMetrics(guard, handles, log, nil)
}

// NewRemoverWithMetrics creates a remover with logger and metrics.
func NewRemoverWithMetrics(guard *safety.Guard, handles core.HandleProvider, log logger.Logger, m core.Metrics) *Remover {
	if log == nil {
		log = logger.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	if guard == nil {
		guard = safety.NewWithLogger(nil, log)
	}
	if handles == nil {
		handles = safety.NewProcessHandlesWithMetrics(log, m)
	}
	return &Remover{
		guard:   guard,
		handles: handles,
		now:     time.Now,
		log:     log,
		metrics: m,
	}
}

// WithAuditor attaches an auditor (optional). Safe to pass nil.
func (r *Remover) WithAuditor(aud core.Auditor) *Remover {
	r.aud = aud
	return r
}

// Snapshot captures the open-handle set for one cleanup batch.
func (r *Remover) Snapshot(ctx context.Context) (core.HandleSnapshot, error) {
	return r.handles.Snapshot(ctx)
}

// RemovePath takes its own handle snapshot and removes path.
// It reports whether path was actually removed.
func (r *Remover) RemovePath(ctx context.Context, path string) bool {
	snap, err := r.Snapshot(ctx)
	if err != nil {
		r.log.Warn("handle snapshot failed", logger.F("path", path), logger.F("error", err.Error()))
		return false
	}
	return r.Remove(ctx, path, snap).Removed
}

// RemoveItem removes one admitted candidate on behalf of scanner and records
// the outcome in metrics and the audit trail.
func (r *Remover) RemoveItem(ctx context.Context, scanner string, c core.Candidate, snap core.HandleSnapshot) core.RemovalOutcome {
	out := r.Remove(ctx, c.Path, snap)
	if out.Removed {
		r.metrics.IncItemsRemoved(scanner)
		r.metrics.AddBytesFreed(out.BytesFreed)
	} else {
		r.metrics.IncRemoveErrors(string(out.Reason))
	}
	r.record(ctx, scanner, c, out)
	return out
}

// Remove deletes path if it is safe to do so. snap is the batch's handle
// snapshot; nil means no handles are known to be open.
func (r *Remover) Remove(ctx context.Context, path string, snap core.HandleSnapshot) (out core.RemovalOutcome) {
	out.Path = path

	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic during removal", logger.F("path", path), logger.F("panic", fmt.Sprint(p)))
			out = core.RemovalOutcome{
				Path:   path,
				Reason: core.ReasonOSError,
				Err:    fmt.Errorf("panic during removal: %v", p),
			}
		}
	}()

	if err := ctx.Err(); err != nil {
		out.Reason = core.ReasonCanceled
		out.Err = err
		return out
	}

	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.log.Debug("already gone", logger.F("path", path))
			out.Reason = core.ReasonNotFound
			return out
		}
		return r.fail(out, err)
	}

	if denied, why := r.guard.Protected(path); denied {
		r.log.Warn("refusing to remove protected path", logger.F("path", path), logger.F("guard", why))
		out.Reason = core.ReasonProtectedPath
		out.Err = fmt.Errorf("%s: %s", why, path)
		return out
	}

	if snap == nil {
		snap = safety.NewHandleSet()
	}
	isDir := info.IsDir()
	if (isDir && snap.HasOpenUnder(path)) || (!isDir && snap.IsOpen(path)) {
		r.log.Warn("path is locked by a running process", logger.F("path", path))
		out.Reason = core.ReasonLocked
		return out
	}

	r.log.Debug("removing", logger.F("path", path), logger.F("dir", isDir))

	if !isDir {
		if err := os.Remove(path); err != nil {
			return r.fail(out, err)
		}
		out.Removed = true
		out.Reason = core.ReasonRemoved
		out.BytesFreed = info.Size()
		r.log.Info("removed", logger.F("path", path), logger.F("bytes_freed", out.BytesFreed))
		return out
	}

	freed, err := removeTree(ctx, path)
	out.BytesFreed = freed
	if err != nil {
		return r.fail(out, err)
	}
	out.Removed = true
	out.Reason = core.ReasonRemoved
	r.log.Info("removed", logger.F("path", path), logger.F("bytes_freed", freed), logger.F("type", "dir"))
	return out
}

func (r *Remover) fail(out core.RemovalOutcome, err error) core.RemovalOutcome {
	out.Removed = false
	out.Err = err
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		out.Reason = core.ReasonCanceled
	case errors.Is(err, fs.ErrPermission):
		out.Reason = core.ReasonPermissionDenied
	default:
		out.Reason = core.ReasonOSError
	}
	r.log.Warn("remove failed",
		logger.F("path", out.Path),
		logger.F("reason", string(out.Reason)),
		logger.F("error", err.Error()),
	)
	return out
}

// removeTree deletes dir's contents depth-first, then dir itself.
// Symlinks are unlinked, never followed. The first failure stops the walk
// and leaves dir in place. It returns the bytes of regular files removed.
func removeTree(ctx context.Context, dir string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	var freed int64
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return freed, err
		}
		child := filepath.Join(dir, e.Name())

		if e.IsDir() {
			n, err := removeTree(ctx, child)
			freed += n
			if err != nil {
				return freed, err
			}
			continue
		}

		var size int64
		if e.Type().IsRegular() {
			if info, err := e.Info(); err == nil {
				size = info.Size()
			}
		}
		if err := os.Remove(child); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return freed, err
		}
		freed += size
	}

	if err := os.Remove(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return freed, err
	}
	return freed, nil
}

// record writes one audit event if an auditor is configured.
// It never panics and never blocks removals if auditing fails.
func (r *Remover) record(ctx context.Context, scanner string, c core.Candidate, out core.RemovalOutcome) {
	if r.aud == nil {
		return
	}

	evt := core.NewRemoveAuditEvent(scanner, c, out)
	evt.Time = r.now()

	// Best-effort: auditing must never break removal.
	defer func() { _ = recover() }()
	r.aud.Record(ctx, evt)
}
