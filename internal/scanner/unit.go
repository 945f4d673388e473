package scanner

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ChrisB0-2/purge/internal/core"
	"github.com/ChrisB0-2/purge/internal/executor"
	"github.com/ChrisB0-2/purge/internal/logger"
	"github.com/ChrisB0-2/purge/internal/metrics"
	"github.com/ChrisB0-2/purge/internal/planner"
	"github.com/ChrisB0-2/purge/internal/policy"
)

// ScanResult is one unit's contribution to a scan: the admitted items in
// emission order plus the error that ended discovery early, if any.
type ScanResult struct {
	Items    []core.Candidate
	Err      error
	Duration time.Duration
}

// Unit wraps a Source with its configuration and runtime dependencies.
// It applies the platform and enabled gates, filters discovery through the
// configured policy, and removes items on cleanup.
type Unit struct {
	src       core.Source
	cfg       core.ScannerConfig
	platform  core.Platform
	policy    core.Policy
	collector *planner.Collector
	remover   *executor.Remover
	log       logger.Logger
	metrics   core.Metrics
	now       func() time.Time

	// Serializes Discover: a Source is not required to be reentrant.
	mu sync.Mutex
}

// Deps carries what a Unit and its Source need at runtime.
type Deps struct {
	Platform core.Platform
	Remover  *executor.Remover
	Walker   *WalkDirScanner
	Log      logger.Logger
	Metrics  core.Metrics
}

func (d Deps) withDefaults() Deps {
	if d.Platform == "" {
		d.Platform, _ = core.CurrentPlatform()
	}
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewNoop()
	}
	if d.Remover == nil {
		d.Remover = executor.NewRemoverWithMetrics(nil, nil, d.Log, d.Metrics)
	}
	if d.Walker == nil {
		d.Walker = NewWalkDirWithLogger(d.Log)
	}
	return d
}

// NewUnit binds src to cfg. cfg is copied; later changes by the caller
// do not affect the unit.
func NewUnit(src core.Source, cfg core.ScannerConfig, deps Deps) *Unit {
	deps = deps.withDefaults()
	cfg = cfg.Clone()
	log := deps.Log.WithFields(logger.F("scanner", src.Name()))
	return &Unit{
		src:       src,
		cfg:       cfg,
		platform:  deps.Platform,
		policy:    policy.FromConfig(cfg),
		collector: planner.NewCollectorWithMetrics(log, deps.Metrics),
		remover:   deps.Remover,
		log:       log,
		metrics:   deps.Metrics,
		now:       time.Now,
	}
}

func (u *Unit) Name() string               { return u.src.Name() }
func (u *Unit) Category() core.Category    { return u.src.Category() }
func (u *Unit) Description() string        { return u.src.Description() }
func (u *Unit) Enabled() bool              { return u.cfg.Enabled }
func (u *Unit) Config() core.ScannerConfig { return u.cfg.Clone() }
func (u *Unit) Platforms() []core.Platform { return slices.Clone(u.src.SupportedPlatforms()) }
func (u *Unit) Supported() bool            { return u.platform.Supports(u.src.SupportedPlatforms()) }

// Info describes the unit for listings.
func (u *Unit) Info() core.ScannerInfo {
	return core.ScannerInfo{
		Name:        u.Name(),
		Category:    u.Category(),
		Description: u.Description(),
		Enabled:     u.Enabled(),
		Supported:   u.Supported(),
		Platforms:   u.Platforms(),
		Priority:    u.cfg.Priority,
	}
}

// Scan runs discovery and returns the admitted items. Unsupported or
// disabled units return an empty result. A panicking source is reported
// through ScanResult.Err along with any items collected before it.
func (u *Unit) Scan(ctx context.Context) (res ScanResult) {
	if !u.Supported() {
		u.log.Debug("scanner not supported", logger.F("platform", string(u.platform)))
		return res
	}
	if !u.cfg.Enabled {
		u.log.Debug("scanner disabled")
		return res
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	start := u.now()
	u.log.Info("scanner starting")

	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("panic: %v", p)
		}
		res.Duration = u.now().Sub(start)
		u.metrics.ObserveScanDuration(u.Name(), res.Duration)
		if res.Err != nil {
			u.metrics.IncScannerErrors(u.Name())
			u.log.Error("scanner failed", logger.F("error", res.Err.Error()), logger.F("items", len(res.Items)))
			return
		}
		u.log.Info("scanner finished", logger.F("items", len(res.Items)), logger.F("duration_ms", res.Duration.Milliseconds()))
	}()

	// Child context: returning early must stop the source's goroutines.
	dctx, cancel := context.WithCancel(ctx)
	defer cancel()

	in, errc := u.src.Discover(dctx)
	res.Items, res.Err = u.collector.Collect(dctx, u.Name(), in, errc, u.policy, core.EnvSnapshot{Now: start})
	return res
}

// Cleanup removes items one at a time and returns one outcome per item, in
// order. A failure never stops the batch. Unsupported units do nothing.
func (u *Unit) Cleanup(ctx context.Context, items []core.Candidate, snap core.HandleSnapshot) []core.RemovalOutcome {
	if !u.Supported() {
		u.log.Debug("cleanup skipped, scanner not supported")
		return nil
	}

	outcomes := make([]core.RemovalOutcome, 0, len(items))
	for _, item := range items {
		outcomes = append(outcomes, u.remover.RemoveItem(ctx, u.Name(), item, snap))
	}

	removed := len(RemovedPaths(outcomes))
	u.log.Info("cleanup finished", logger.F("removed", removed), logger.F("failed", len(items)-removed))
	return outcomes
}

// RemovedPaths returns the paths that were actually removed.
func RemovedPaths(outcomes []core.RemovalOutcome) []string {
	var paths []string
	for _, o := range outcomes {
		if o.Removed {
			paths = append(paths, o.Path)
		}
	}
	return paths
}
