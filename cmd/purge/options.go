package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/ChrisB0-2/purge/internal/config"
)

// options holds the persistent flags shared by every command.
// Flags override the config file only when explicitly set.
type options struct {
	configPath string

	logLevel  string
	logFormat string
	logOutput string

	auditPath    string
	auditBackend string
	auditDB      string
	noAudit      bool

	metrics     bool
	metricsAddr string

	workers     int
	scanTimeout time.Duration

	minAgeDays  int
	maxFileSize int64
	exclude     []string
	protected   []string

	json bool

	flags *pflag.FlagSet
}

func (o *options) bindPersistent(fs *pflag.FlagSet) {
	o.flags = fs

	fs.StringVarP(&o.configPath, "config", "c", "", "path to YAML configuration file")

	fs.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&o.logFormat, "log-format", "", "log format: text or json")
	fs.StringVar(&o.logOutput, "log-output", "", "log destination: stderr, stdout or a file path")

	fs.StringVar(&o.auditPath, "audit", "", "audit log path")
	fs.StringVar(&o.auditBackend, "audit-backend", "", "audit backend: jsonl or sqlite")
	fs.StringVar(&o.auditDB, "audit-db", "", "also mirror audit events into this SQLite database")
	fs.BoolVar(&o.noAudit, "no-audit", false, "disable the audit log")

	fs.BoolVar(&o.metrics, "metrics", false, "serve Prometheus metrics")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "metrics listen address")

	fs.IntVar(&o.workers, "workers", 0, "scanners run in parallel")
	fs.DurationVar(&o.scanTimeout, "scan-timeout", 0, "abort a scan after this long (0 = no limit)")

	fs.IntVar(&o.minAgeDays, "min-age-days", 0, "only report files older than this many days (all scanners)")
	fs.Int64Var(&o.maxFileSize, "max-file-size", 0, "only report files up to this many bytes (0 = unlimited)")
	fs.StringSliceVar(&o.exclude, "exclude", nil, "additional exclude patterns matched against file names")
	fs.StringSliceVar(&o.protected, "protected", nil, "additional protected paths")

	fs.BoolVar(&o.json, "json", false, "print results as JSON")
}

func (o *options) changed(name string) bool {
	return o.flags != nil && o.flags.Changed(name)
}

// loadConfig reads the config file (explicit, discovered, or defaults),
// applies flag overrides and validates the result. Failures are setup
// errors.
func (o *options) loadConfig() (*config.Config, error) {
	path := o.configPath
	if path == "" {
		path = config.FindConfigFile()
	}

	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, setupError(fmt.Errorf("load config: %w", err))
	}

	o.apply(cfg)

	if err := config.Validate(cfg); err != nil {
		return nil, setupError(err)
	}
	return cfg, nil
}

func (o *options) apply(cfg *config.Config) {
	if o.changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if o.changed("log-format") {
		cfg.Logging.Format = o.logFormat
	}
	if o.changed("log-output") {
		cfg.Logging.Output = o.logOutput
	}

	if o.changed("audit") {
		cfg.Audit.Path = o.auditPath
		cfg.Audit.Enabled = o.auditPath != ""
	}
	if o.changed("audit-backend") {
		cfg.Audit.Backend = o.auditBackend
	}
	if o.changed("audit-db") {
		cfg.Audit.DBPath = o.auditDB
	}
	if o.noAudit {
		cfg.Audit.Enabled = false
		cfg.Audit.DBPath = ""
	}

	if o.changed("metrics") {
		cfg.Metrics.Enabled = o.metrics
	}
	if o.changed("metrics-addr") {
		cfg.Metrics.Addr = o.metricsAddr
	}

	if o.changed("workers") {
		cfg.Orchestrator.Workers = o.workers
	}
	if o.changed("scan-timeout") {
		cfg.Orchestrator.ScanTimeout = o.scanTimeout
	}

	// Defaults flow into every scanner that does not override them.
	if o.changed("min-age-days") {
		cfg.Defaults.MinFileAgeDays = o.minAgeDays
		for name, ov := range cfg.Scanners {
			ov.MinFileAgeDays = nil
			cfg.Scanners[name] = ov
		}
	}
	if o.changed("max-file-size") {
		cfg.Defaults.MaxFileSize = o.maxFileSize
		for name, ov := range cfg.Scanners {
			ov.MaxFileSize = nil
			cfg.Scanners[name] = ov
		}
	}
	for _, p := range o.exclude {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		cfg.Defaults.ExcludePatterns = append(cfg.Defaults.ExcludePatterns, p)
		for name, ov := range cfg.Scanners {
			if ov.ExcludePatterns != nil {
				ov.ExcludePatterns = append(ov.ExcludePatterns, p)
				cfg.Scanners[name] = ov
			}
		}
	}

	// Protected paths are appended, never replaced.
	for _, p := range o.protected {
		if p = strings.TrimSpace(p); p != "" {
			if abs, err := filepath.Abs(p); err == nil {
				p = abs
			}
			cfg.Safety.ProtectedPaths = append(cfg.Safety.ProtectedPaths, p)
		}
	}
}
