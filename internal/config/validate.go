package config

import (
	"fmt"
	"net"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/ChrisB0-2/purge/internal/core"
)

// ValidationError contains details about a single validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("config validation failed:\n")
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  - %s: %s\n", err.Field, err.Message))
	}
	return sb.String()
}

// ValidLogLevels are the allowed log levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// ValidLogFormats are the allowed log formats.
var ValidLogFormats = []string{"json", "text"}

// ValidAuditBackends are the allowed audit backends.
var ValidAuditBackends = []string{"jsonl", "sqlite"}

// RequiredProtectedPaths returns the paths every unix configuration must
// protect. Windows has none beyond the guard's built-in roots.
func RequiredProtectedPaths() []string {
	if runtime.GOOS == "windows" {
		return nil
	}
	return []string{"/etc", "/usr", "/bin", "/sbin"}
}

// Validate performs comprehensive validation of the configuration.
// It returns all validation errors found (not just the first).
// Returns nil if the configuration is valid.
func Validate(cfg *Config) error {
	var errs ValidationErrors

	if cfg.Version != 1 {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (want 1)", cfg.Version),
		})
	}
	errs = append(errs, ValidateScannerConfig("defaults", cfg.Defaults)...)
	for name := range cfg.Scanners {
		errs = append(errs, ValidateScannerConfig("scanners."+name, cfg.ScannerConfig(name))...)
	}
	errs = append(errs, ValidateOrchestrator(cfg.Orchestrator)...)
	errs = append(errs, ValidateSafety(cfg.Safety)...)
	errs = append(errs, ValidateAudit(cfg.Audit)...)
	errs = append(errs, ValidateLogging(cfg.Logging)...)
	errs = append(errs, ValidateAddr("metrics.addr", cfg.Metrics.Addr, cfg.Metrics.Enabled)...)
	errs = append(errs, ValidateAddr("server.health_addr", cfg.Server.HealthAddr, false)...)
	if cfg.Server.PIDFile != "" && !filepath.IsAbs(cfg.Server.PIDFile) {
		errs = append(errs, ValidationError{
			Field:   "server.pid_file",
			Message: fmt.Sprintf("path must be absolute: %q", cfg.Server.PIDFile),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateScannerConfig checks one effective scanner configuration.
func ValidateScannerConfig(field string, sc core.ScannerConfig) []ValidationError {
	var errs []ValidationError

	if sc.MinFileAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   field + ".min_file_age_days",
			Message: "must be >= 0",
		})
	}
	if sc.MaxFileSize < 0 {
		errs = append(errs, ValidationError{
			Field:   field + ".max_file_size",
			Message: "must be >= 0 (0 = unlimited)",
		})
	}
	errs = append(errs, validatePatterns(field+".exclude_patterns", sc.ExcludePatterns)...)
	errs = append(errs, validatePatterns(field+".include_patterns", sc.IncludePatterns)...)

	return errs
}

func validatePatterns(field string, patterns []string) []ValidationError {
	var errs []ValidationError
	for i, p := range patterns {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: "pattern must not be empty",
			})
			continue
		}
		if _, err := filepath.Match(p, ""); err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: fmt.Sprintf("invalid pattern %q: %v", p, err),
			})
		}
	}
	return errs
}

// ValidateOrchestrator checks worker and timeout bounds.
func ValidateOrchestrator(o OrchestratorConfig) []ValidationError {
	var errs []ValidationError

	if o.Workers < 0 {
		errs = append(errs, ValidationError{
			Field:   "orchestrator.workers",
			Message: "must be >= 0",
		})
	}
	if o.ScanTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "orchestrator.scan_timeout",
			Message: "must be >= 0",
		})
	}

	return errs
}

// ValidateSafety checks that protected paths are absolute and clean, and
// that the required system paths are present.
func ValidateSafety(safe SafetyConfig) []ValidationError {
	var errs []ValidationError

	protectedSet := make(map[string]bool)
	for i, p := range safe.ProtectedPaths {
		field := fmt.Sprintf("safety.protected_paths[%d]", i)
		switch {
		case p == "":
			errs = append(errs, ValidationError{Field: field, Message: "path must not be empty"})
			continue
		case !filepath.IsAbs(p):
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("path must be absolute: %q", p)})
			continue
		}
		protectedSet[filepath.Clean(p)] = true
	}

	for _, required := range RequiredProtectedPaths() {
		if !protectedSet[required] {
			errs = append(errs, ValidationError{
				Field:   "safety.protected_paths",
				Message: fmt.Sprintf("must include required path: %s", required),
			})
		}
	}

	return errs
}

// ValidateAudit checks the audit backend settings.
func ValidateAudit(a AuditConfig) []ValidationError {
	var errs []ValidationError

	if a.Backend != "" && !contains(ValidAuditBackends, a.Backend) {
		errs = append(errs, ValidationError{
			Field:   "audit.backend",
			Message: fmt.Sprintf("must be one of %v, got %q", ValidAuditBackends, a.Backend),
		})
	}
	if a.Enabled && a.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "audit.path",
			Message: "path is required when audit is enabled",
		})
	}
	if a.Retention < 0 {
		errs = append(errs, ValidationError{
			Field:   "audit.retention",
			Message: "must be >= 0",
		})
	}

	return errs
}

// ValidateLogging checks logging configuration.
func ValidateLogging(log LoggingConfig) []ValidationError {
	var errs []ValidationError

	if log.Level != "" && !contains(ValidLogLevels, log.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", ValidLogLevels, log.Level),
		})
	}

	if log.Format != "" && !contains(ValidLogFormats, log.Format) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("must be one of %v, got %q", ValidLogFormats, log.Format),
		})
	}

	return errs
}

// ValidateAddr checks a host:port listen address. An empty address is an
// error only when required is set.
func ValidateAddr(field, addr string, required bool) []ValidationError {
	if addr == "" {
		if required {
			return []ValidationError{{Field: field, Message: "address is required"}}
		}
		return nil
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return []ValidationError{{
			Field:   field,
			Message: fmt.Sprintf("invalid address %q: %v", addr, err),
		}}
	}
	return nil
}

// contains checks if a string slice contains a value.
func contains(slice []string, val string) bool {
	for _, s := range slice {
		if s == val {
			return true
		}
	}
	return false
}
