// Package orchestrator runs the registered scanners as one system scan and
// routes cleanup requests back to the scanners that own the items.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ChrisB0-2/purge/internal/core"
	"github.com/ChrisB0-2/purge/internal/logger"
	"github.com/ChrisB0-2/purge/internal/metrics"
	"github.com/ChrisB0-2/purge/internal/safety"
	"github.com/ChrisB0-2/purge/internal/scanner"
)

const defaultWorkers = 4

// Scanner is what the orchestrator needs from a registered unit.
// *scanner.Unit implements it.
type Scanner interface {
	Name() string
	Category() core.Category
	Enabled() bool
	Supported() bool
	Info() core.ScannerInfo
	Scan(ctx context.Context) scanner.ScanResult
	Cleanup(ctx context.Context, items []core.Candidate, snap core.HandleSnapshot) []core.RemovalOutcome
}

type Orchestrator struct {
	platform    core.Platform
	handles     core.HandleProvider
	aud         core.Auditor
	log         logger.Logger
	metrics     core.Metrics
	workers     int
	scanTimeout time.Duration
	now         func() time.Time
	newID       func() string

	mu     sync.RWMutex
	units  []Scanner
	byName map[string]Scanner
}

type Option func(*Orchestrator)

func WithLogger(log logger.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

func WithMetrics(m core.Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

func WithAuditor(aud core.Auditor) Option {
	return func(o *Orchestrator) { o.aud = aud }
}

// WithHandles sets the provider used for the per-batch open-handle snapshot.
func WithHandles(h core.HandleProvider) Option {
	return func(o *Orchestrator) {
		if h != nil {
			o.handles = h
		}
	}
}

// WithWorkers bounds how many scanners run at once. n <= 0 keeps the default.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) { o.workers = n }
}

// WithScanTimeout caps the wall time of one ScanSystem call. 0 disables it.
func WithScanTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.scanTimeout = d }
}

func New(platform core.Platform, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		platform: platform,
		log:      logger.NewNop(),
		metrics:  metrics.NewNoop(),
		now:      time.Now,
		newID:    shortID,
		byName:   make(map[string]Scanner),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.handles == nil {
		o.handles = safety.NewProcessHandlesWithMetrics(o.log, o.metrics)
	}
	return o
}

func shortID() string {
	return uuid.NewString()[:8]
}

// Register adds s. Scanners that do not support the current platform are
// skipped and logged; duplicate names are rejected.
func (o *Orchestrator) Register(s Scanner) error {
	if !s.Supported() {
		o.log.Info("skipping scanner not supported on this platform",
			logger.F("scanner", s.Name()), logger.F("platform", string(o.platform)))
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, dup := o.byName[s.Name()]; dup {
		return fmt.Errorf("scanner %q already registered", s.Name())
	}
	o.units = append(o.units, s)
	o.byName[s.Name()] = s
	o.log.Debug("scanner registered", logger.F("scanner", s.Name()), logger.F("category", string(s.Category())))
	return nil
}

// RegisterUnits registers every unit, stopping at the first error.
func (o *Orchestrator) RegisterUnits(units []*scanner.Unit) error {
	for _, u := range units {
		if err := o.Register(u); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) registered() []Scanner {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.units)
}

// Names lists registered scanners in registration order.
func (o *Orchestrator) Names() []string {
	units := o.registered()
	names := make([]string, len(units))
	for i, u := range units {
		names[i] = u.Name()
	}
	return names
}

// ScannerInfo describes every registered scanner, in registration order.
func (o *Orchestrator) ScannerInfo() []core.ScannerInfo {
	units := o.registered()
	out := make([]core.ScannerInfo, 0, len(units))
	for _, u := range units {
		out = append(out, u.Info())
	}
	return out
}

// selected returns the enabled units, restricted to names when given.
func (o *Orchestrator) selected(names []string) []Scanner {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var out []Scanner
	for _, u := range o.registered() {
		if !u.Enabled() {
			continue
		}
		if len(names) > 0 && !want[u.Name()] {
			continue
		}
		delete(want, u.Name())
		out = append(out, u)
	}
	for n := range want {
		if _, known := o.lookup(n); !known {
			o.log.Warn("unknown scanner requested", logger.F("scanner", n))
		}
	}
	return out
}

func (o *Orchestrator) lookup(name string) (Scanner, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.byName[name]
	return s, ok
}

func (o *Orchestrator) workerCount(n int) int {
	w := o.workers
	if w <= 0 {
		w = defaultWorkers
	}
	return max(1, min(w, n))
}

// ScanSystem runs the selected scanners concurrently and aggregates their
// results. Items appear grouped by scanner in registration order, each
// group in emission order. A failing scanner contributes one error string
// and whatever it found before failing; the others are unaffected.
func (o *Orchestrator) ScanSystem(ctx context.Context, names []string) core.ScanReport {
	start := o.now()
	report := core.ScanReport{
		ID:        o.newID(),
		Timestamp: start,
		Platform:  o.platform,
		Items:     []core.Candidate{},
		Errors:    []string{},
	}

	if o.scanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.scanTimeout)
		defer cancel()
	}

	units := o.selected(names)
	log := o.log.WithFields(logger.F("scan_id", report.ID))
	log.Info("scan starting", logger.F("scanners", len(units)))

	results := make([]scanner.ScanResult, len(units))
	if len(units) > 0 {
		var g errgroup.Group
		g.SetLimit(o.workerCount(len(units)))
		for i, u := range units {
			g.Go(func() error {
				if ctx.Err() != nil {
					results[i].Err = ctx.Err()
					return nil
				}
				results[i] = runScan(ctx, u)
				return nil
			})
		}
		_ = g.Wait()
	}

	canceled := ctx.Err() != nil
	seen := make(map[string]struct{})
	dupes := 0
	for i, u := range units {
		res := results[i]
		// A path reported by two scanners belongs to the first registered.
		for _, it := range res.Items {
			key := filepath.Clean(it.Path)
			if _, dup := seen[key]; dup {
				dupes++
				continue
			}
			seen[key] = struct{}{}
			report.Items = append(report.Items, it)
		}
		if res.Err == nil {
			continue
		}
		if canceled && isContextErr(res.Err) {
			continue
		}
		report.Errors = append(report.Errors, fmt.Sprintf("scanner %s failed: %v", u.Name(), res.Err))
	}
	if canceled {
		report.Canceled = true
		report.Errors = append(report.Errors, "scan canceled")
	}

	if dupes > 0 {
		log.Debug("dropped duplicate items", logger.F("count", dupes))
	}
	for _, it := range report.Items {
		report.TotalSize += it.Size
	}
	report.TotalFound = len(report.Items)
	report.Duration = core.Seconds(o.now().Sub(start))

	o.metrics.SetBytesReclaimable(report.TotalSize)
	o.metrics.SetItemsReclaimable(report.TotalFound)
	o.record(ctx, core.NewScanAuditEvent(report))

	log.Info("scan complete",
		logger.F("items", report.TotalFound),
		logger.F("bytes", report.TotalSize),
		logger.F("errors", len(report.Errors)),
		logger.F("canceled", report.Canceled),
		logger.F("duration_ms", time.Duration(report.Duration).Milliseconds()),
	)
	return report
}

func runScan(ctx context.Context, s Scanner) (res scanner.ScanResult) {
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("panic: %v", p)
		}
	}()
	return s.Scan(ctx)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// partition is the slice of a cleanup batch owned by one scanner.
type partition struct {
	owner Scanner
	items []core.Candidate
}

// Cleanup removes items, routing each to the scanner that owns it. With
// dryRun set nothing touches the filesystem and every item is reported as
// removed.
func (o *Orchestrator) Cleanup(ctx context.Context, items []core.Candidate, dryRun bool) core.CleanupReport {
	start := o.now()
	report := core.CleanupReport{
		ID:        o.newID(),
		Timestamp: start,
		DryRun:    dryRun,
		Removed:   []core.Candidate{},
		Failed:    []core.FailedItem{},
		Errors:    []string{},
	}
	log := o.log.WithFields(logger.F("cleanup_id", report.ID), logger.F("dry_run", dryRun))
	log.Info("cleanup starting", logger.F("items", len(items)))

	if dryRun {
		for _, it := range items {
			report.Removed = append(report.Removed, it)
			report.TotalFreed += it.Size
		}
	} else {
		o.cleanup(ctx, items, &report)
	}

	report.TotalRemoved = len(report.Removed)
	report.Duration = core.Seconds(o.now().Sub(start))
	o.record(ctx, core.NewCleanupAuditEvent(report))

	log.Info("cleanup complete",
		logger.F("removed", report.TotalRemoved),
		logger.F("failed", len(report.Failed)),
		logger.F("bytes_freed", report.TotalFreed),
		logger.F("duration_ms", time.Duration(report.Duration).Milliseconds()),
	)
	return report
}

func (o *Orchestrator) cleanup(ctx context.Context, items []core.Candidate, report *core.CleanupReport) {
	parts := o.route(items, report)
	if len(parts) == 0 {
		return
	}

	snap, err := o.handles.Snapshot(ctx)
	if err != nil {
		// The remover reports each item as canceled or treats nil as empty.
		report.Errors = append(report.Errors, fmt.Sprintf("handle snapshot failed: %v", err))
		snap = nil
	}

	for _, p := range parts {
		outcomes, err := runCleanup(ctx, p.owner, p.items, snap)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("scanner %s cleanup failed: %v", p.owner.Name(), err))
		}
		for i, it := range p.items {
			var out core.RemovalOutcome
			if i < len(outcomes) {
				out = outcomes[i]
			}
			if out.Removed {
				report.Removed = append(report.Removed, it)
				report.TotalFreed += it.Size
				continue
			}
			reason := string(out.Reason)
			if reason == "" {
				reason = "cleanup failed"
			}
			report.Failed = append(report.Failed, core.FailedItem{
				Path:          it.Path,
				Reason:        reason,
				Scanner:       p.owner.Name(),
				ProcessLocked: out.Locked(),
			})
		}
	}
}

func runCleanup(ctx context.Context, s Scanner, items []core.Candidate, snap core.HandleSnapshot) (out []core.RemovalOutcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	return s.Cleanup(ctx, items, snap), nil
}

// route groups items by owning scanner, in registration order. Items with
// no owner, or with more than one candidate owner, are recorded as failures.
func (o *Orchestrator) route(items []core.Candidate, report *core.CleanupReport) []partition {
	units := o.registered()
	byName := make(map[string]int, len(units))
	byCategory := make(map[core.Category][]int)
	for i, u := range units {
		byName[u.Name()] = i
		byCategory[u.Category()] = append(byCategory[u.Category()], i)
	}

	grouped := make([][]core.Candidate, len(units))
	flagged := make(map[core.Category]bool)

	for _, it := range items {
		if idx, ok := byName[it.ScannerName()]; ok {
			grouped[idx] = append(grouped[idx], it)
			continue
		}

		owners := byCategory[it.Category]
		switch len(owners) {
		case 1:
			grouped[owners[0]] = append(grouped[owners[0]], it)
		case 0:
			report.Failed = append(report.Failed, core.FailedItem{
				Path:   it.Path,
				Reason: fmt.Sprintf("no scanner owns category %s", it.Category),
			})
		default:
			names := make([]string, len(owners))
			for i, idx := range owners {
				names[i] = units[idx].Name()
			}
			msg := "ambiguous category owner: " + strings.Join(names, ", ")
			report.Failed = append(report.Failed, core.FailedItem{Path: it.Path, Reason: msg})
			if !flagged[it.Category] {
				flagged[it.Category] = true
				report.Errors = append(report.Errors, fmt.Sprintf("category %s: %s", it.Category, msg))
				o.log.Warn("ambiguous category owner", logger.F("category", string(it.Category)), logger.F("scanners", names))
			}
		}
	}

	var parts []partition
	for i, g := range grouped {
		if len(g) > 0 {
			parts = append(parts, partition{owner: units[i], items: g})
		}
	}
	return parts
}

func (o *Orchestrator) record(ctx context.Context, evt core.AuditEvent) {
	if o.aud == nil {
		return
	}
	// Audit must outlive a canceled request.
	o.aud.Record(context.WithoutCancel(ctx), evt)
}
