package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ChrisB0-2/purge/internal/auditor"
	"github.com/ChrisB0-2/purge/internal/config"
	"github.com/ChrisB0-2/purge/internal/core"
	"github.com/ChrisB0-2/purge/internal/executor"
	"github.com/ChrisB0-2/purge/internal/logger"
	"github.com/ChrisB0-2/purge/internal/metrics"
	"github.com/ChrisB0-2/purge/internal/orchestrator"
	"github.com/ChrisB0-2/purge/internal/safety"
	"github.com/ChrisB0-2/purge/internal/scanner"
	"github.com/ChrisB0-2/purge/internal/sources"
)

// app is the wired runtime shared by the scan, clean and serve commands.
type app struct {
	cfg      *config.Config
	platform core.Platform
	log      logger.Logger
	metrics  core.Metrics
	audit    auditor.Sink
	orch     *orchestrator.Orchestrator

	closers []func() error
}

// Swapped in tests.
var (
	platformFunc    = core.CurrentPlatform
	registerSources = sources.RegisterDefaults
)

func newApp(cfg *config.Config) (a *app, err error) {
	platform, err := platformFunc()
	if err != nil {
		return nil, setupError(err)
	}

	a = &app{cfg: cfg, platform: platform}
	defer func() {
		if err != nil {
			a.close()
			a = nil
		}
	}()

	log, logCloser, err := logger.Open(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		return a, setupError(fmt.Errorf("init logger: %w", err))
	}
	a.log = log.WithFields(logger.F("platform", string(platform)))
	a.closers = append(a.closers, logCloser.Close)

	a.metrics = metrics.NewNoop()
	if cfg.Metrics.Enabled {
		if err := a.startMetrics(cfg.Metrics.Addr); err != nil {
			return a, setupError(err)
		}
	}

	if err := a.openAudit(); err != nil {
		return a, err
	}

	guard := safety.NewWithLogger(cfg.Safety.ProtectedPaths, a.log)
	handles := safety.NewProcessHandlesWithMetrics(a.log, a.metrics)
	remover := executor.NewRemoverWithMetrics(guard, handles, a.log, a.metrics)
	if a.audit != nil {
		remover.WithAuditor(a.audit)
	}

	reg := scanner.NewRegistry()
	if err := registerSources(reg); err != nil {
		return a, err
	}
	units := reg.BuildAll(cfg.ScannerConfig, scanner.Deps{
		Platform: platform,
		Remover:  remover,
		Walker:   scanner.NewWalkDirWithLogger(a.log),
		Log:      a.log,
		Metrics:  a.metrics,
	})

	opts := []orchestrator.Option{
		orchestrator.WithLogger(a.log),
		orchestrator.WithMetrics(a.metrics),
		orchestrator.WithHandles(handles),
		orchestrator.WithWorkers(cfg.Orchestrator.Workers),
		orchestrator.WithScanTimeout(cfg.Orchestrator.ScanTimeout),
	}
	if a.audit != nil {
		opts = append(opts, orchestrator.WithAuditor(a.audit))
	}
	a.orch = orchestrator.New(platform, opts...)
	if err := a.orch.RegisterUnits(units); err != nil {
		return a, err
	}

	a.log.Debug("purge ready", logger.F("scanners", a.orch.Names()), logger.F("version", version))
	return a, nil
}

func (a *app) startMetrics(addr string) error {
	reg := prometheus.NewRegistry()
	srv := metrics.NewServer(addr, reg)
	if err := srv.Listen(); err != nil {
		return err
	}
	a.metrics = metrics.NewPrometheus(reg)

	go func() {
		a.log.Info("metrics server listening", logger.F("addr", srv.Addr()))
		if err := srv.Serve(); err != nil {
			a.log.Error("metrics server error", logger.F("error", err.Error()))
		}
	}()

	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	return nil
}

// openAudit opens the primary audit backend and the optional SQLite mirror.
func (a *app) openAudit() error {
	ac := a.cfg.Audit
	if !ac.Enabled {
		return nil
	}

	primary, err := auditor.Open(ac.Backend, ac.Path, ac.Retention, a.log)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	a.audit = primary

	if ac.DBPath != "" && !(ac.Backend == auditor.BackendSQLite && ac.DBPath == ac.Path) {
		mirror, err := auditor.NewSQLite(auditor.SQLiteConfig{Path: ac.DBPath, Retention: ac.Retention, Log: a.log})
		if err != nil {
			_ = primary.Close()
			a.audit = nil
			return fmt.Errorf("open audit database: %w", err)
		}
		a.audit = auditor.NewMulti(primary, mirror)
	}

	a.closers = append(a.closers, func() error {
		if e, ok := a.audit.(interface{ Err() error }); ok {
			if err := e.Err(); err != nil {
				a.log.Warn("audit write error", logger.F("error", err.Error()))
			}
		}
		return a.audit.Close()
	})
	return nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
