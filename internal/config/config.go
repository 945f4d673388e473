// Package config loads the YAML configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ChrisB0-2/purge/internal/core"
)

// Config represents the complete configuration for purge.
type Config struct {
	Version      int                         `yaml:"version"`
	Defaults     core.ScannerConfig          `yaml:"defaults"`
	Scanners     map[string]ScannerOverrides `yaml:"scanners"`
	Orchestrator OrchestratorConfig          `yaml:"orchestrator"`
	Safety       SafetyConfig                `yaml:"safety"`
	Audit        AuditConfig                 `yaml:"audit"`
	Logging      LoggingConfig               `yaml:"logging"`
	Metrics      MetricsConfig               `yaml:"metrics"`
	Server       ServerConfig                `yaml:"server"`
}

// ScannerOverrides replaces individual defaults for one scanner.
// Unset fields inherit from Config.Defaults.
type ScannerOverrides struct {
	Enabled         *bool    `yaml:"enabled"`
	Priority        *int     `yaml:"priority"`
	MaxFileSize     *int64   `yaml:"max_file_size"`
	MinFileAgeDays  *int     `yaml:"min_file_age_days"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
	IncludePatterns []string `yaml:"include_patterns"`
}

// OrchestratorConfig bounds a system scan.
type OrchestratorConfig struct {
	Workers     int           `yaml:"workers"`      // 0 = min(4, scanners)
	ScanTimeout time.Duration `yaml:"scan_timeout"` // 0 = no limit
}

// SafetyConfig configures paths that are never removed.
type SafetyConfig struct {
	ProtectedPaths []string `yaml:"protected_paths"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Backend   string        `yaml:"backend"`   // "jsonl" or "sqlite"
	Retention time.Duration `yaml:"retention"` // sqlite only; 0 = forever
	// DBPath mirrors every event into a queryable SQLite database in
	// addition to the primary backend. Empty disables the mirror.
	DBPath string `yaml:"db_path"`
}

// SQLitePath returns the database that audit queries read: the mirror if
// configured, else the primary path when it is itself SQLite.
func (a AuditConfig) SQLitePath() string {
	if a.DBPath != "" {
		return a.DBPath
	}
	if a.Backend == "sqlite" {
		return a.Path
	}
	return ""
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
	Output string `yaml:"output"` // "stderr", "stdout", or file path
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// ServerConfig configures serve mode.
type ServerConfig struct {
	HealthAddr string `yaml:"health_addr"` // empty disables the health endpoints
	PIDFile    string `yaml:"pid_file"`    // empty disables the single-instance lock
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Version:  1,
		Defaults: core.DefaultScannerConfig(),
		Scanners: map[string]ScannerOverrides{},
		Orchestrator: OrchestratorConfig{
			Workers:     4,
			ScanTimeout: 0,
		},
		Safety: SafetyConfig{
			ProtectedPaths: DefaultProtectedPaths(),
		},
		Audit: AuditConfig{
			Enabled: true,
			Path:    DefaultAuditPath(),
			Backend: "jsonl",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9090",
		},
		Server: ServerConfig{
			HealthAddr: "",
		},
	}
}

// DefaultProtectedPaths lists operating system directories for the current platform.
func DefaultProtectedPaths() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{`C:\Windows\System32`, `C:\Program Files`, `C:\Program Files (x86)`}
	case "darwin":
		return []string{"/System", "/bin", "/sbin", "/usr", "/etc", "/Applications"}
	default:
		return []string{"/boot", "/etc", "/usr", "/bin", "/sbin", "/lib", "/sys", "/proc", "/dev"}
	}
}

// DefaultAuditPath is the audit file under the user's config directory.
func DefaultAuditPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "purge", "audit.jsonl")
}

// ScannerConfig returns the effective configuration for the named scanner.
func (c *Config) ScannerConfig(name string) core.ScannerConfig {
	cfg := c.Defaults.Clone()
	o, ok := c.Scanners[name]
	if !ok {
		return cfg
	}
	if o.Enabled != nil {
		cfg.Enabled = *o.Enabled
	}
	if o.Priority != nil {
		cfg.Priority = *o.Priority
	}
	if o.MaxFileSize != nil {
		cfg.MaxFileSize = *o.MaxFileSize
	}
	if o.MinFileAgeDays != nil {
		cfg.MinFileAgeDays = *o.MinFileAgeDays
	}
	if o.ExcludePatterns != nil {
		cfg.ExcludePatterns = append([]string(nil), o.ExcludePatterns...)
	}
	if o.IncludePatterns != nil {
		cfg.IncludePatterns = append([]string(nil), o.IncludePatterns...)
	}
	return cfg
}

// Load reads a config file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.Scanners == nil {
		cfg.Scanners = map[string]ScannerOverrides{}
	}

	return cfg, nil
}

// LoadOrDefault loads config from path if it exists, otherwise returns defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	return Load(path)
}

// FindConfigFile searches for a config file in standard locations.
func FindConfigFile() string {
	candidates := []string{"purge.yaml", "purge.yml"}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "purge", "config.yaml"))
	}
	if runtime.GOOS != "windows" {
		candidates = append(candidates, "/etc/purge/config.yaml")
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
