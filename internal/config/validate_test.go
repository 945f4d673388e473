package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ChrisB0-2/purge/internal/core"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	return Default()
}

func TestValidate_DefaultIsValid(t *testing.T) {
	if err := Validate(validConfig(t)); err != nil {
		t.Fatalf("expected default config to be valid, got: %v", err)
	}
}

func TestValidateScannerConfig(t *testing.T) {
	tests := []struct {
		name      string
		cfg       core.ScannerConfig
		wantField string
	}{
		{"valid", core.ScannerConfig{MinFileAgeDays: 3, ExcludePatterns: []string{"*.keep"}}, ""},
		{"negative age", core.ScannerConfig{MinFileAgeDays: -1}, "defaults.min_file_age_days"},
		{"negative size", core.ScannerConfig{MaxFileSize: -5}, "defaults.max_file_size"},
		{"empty pattern", core.ScannerConfig{ExcludePatterns: []string{"  "}}, "defaults.exclude_patterns[0]"},
		{"bad pattern", core.ScannerConfig{IncludePatterns: []string{"*.log", "[abc"}}, "defaults.include_patterns[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateScannerConfig("defaults", tt.cfg)
			if tt.wantField == "" {
				if len(errs) > 0 {
					t.Fatalf("expected no errors, got %v", errs)
				}
				return
			}
			if len(errs) != 1 {
				t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
			}
			if errs[0].Field != tt.wantField {
				t.Errorf("expected field %q, got %q", tt.wantField, errs[0].Field)
			}
		})
	}
}

func TestValidate_ScannerOverridesChecked(t *testing.T) {
	cfg := validConfig(t)
	bad := -2
	cfg.Scanners["chrome"] = ScannerOverrides{MinFileAgeDays: &bad}

	err := Validate(cfg)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if verrs[0].Field != "scanners.chrome.min_file_age_days" {
		t.Errorf("unexpected field %q", verrs[0].Field)
	}
}

func TestValidateOrchestrator(t *testing.T) {
	if errs := ValidateOrchestrator(OrchestratorConfig{Workers: 0}); len(errs) != 0 {
		t.Errorf("zero workers means default, got %v", errs)
	}
	errs := ValidateOrchestrator(OrchestratorConfig{Workers: -1, ScanTimeout: -time.Second})
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
}

func TestValidateSafety_MissingRequiredPaths(t *testing.T) {
	required := RequiredProtectedPaths()
	if len(required) == 0 {
		t.Skip("no required protected paths on this platform")
	}
	errs := ValidateSafety(SafetyConfig{ProtectedPaths: []string{"/data"}})
	if len(errs) != len(required) {
		t.Fatalf("expected %d errors, got %d: %v", len(required), len(errs), errs)
	}
	for _, err := range errs {
		if !strings.Contains(err.Message, "required path") {
			t.Errorf("unexpected message %q", err.Message)
		}
	}
}

func TestValidateSafety_NormalizedAndRelativePaths(t *testing.T) {
	paths := []string{"relative/dir", ""}
	for _, p := range RequiredProtectedPaths() {
		paths = append(paths, p+"/")
	}

	errs := ValidateSafety(SafetyConfig{ProtectedPaths: paths})
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors (relative, empty), got %d: %v", len(errs), errs)
	}
	if !strings.Contains(errs[0].Message, "absolute") {
		t.Errorf("expected absolute path error, got %q", errs[0].Message)
	}
	if !strings.Contains(errs[1].Message, "empty") {
		t.Errorf("expected empty path error, got %q", errs[1].Message)
	}
}

func TestValidateAudit(t *testing.T) {
	tests := []struct {
		name  string
		audit AuditConfig
		want  int
	}{
		{"jsonl", AuditConfig{Enabled: true, Path: "/var/lib/purge/audit.jsonl", Backend: "jsonl"}, 0},
		{"sqlite with retention", AuditConfig{Enabled: true, Path: "/x.db", Backend: "sqlite", Retention: time.Hour}, 0},
		{"disabled without path", AuditConfig{Enabled: false}, 0},
		{"enabled without path", AuditConfig{Enabled: true}, 1},
		{"unknown backend", AuditConfig{Path: "/x", Backend: "syslog"}, 1},
		{"negative retention", AuditConfig{Retention: -time.Hour}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if errs := ValidateAudit(tt.audit); len(errs) != tt.want {
				t.Errorf("expected %d errors, got %v", tt.want, errs)
			}
		})
	}
}

func TestValidateLogging(t *testing.T) {
	for _, level := range append(ValidLogLevels, "") {
		if errs := ValidateLogging(LoggingConfig{Level: level}); len(errs) != 0 {
			t.Errorf("level %q: unexpected errors %v", level, errs)
		}
	}
	for _, format := range ValidLogFormats {
		if errs := ValidateLogging(LoggingConfig{Format: format}); len(errs) != 0 {
			t.Errorf("format %q: unexpected errors %v", format, errs)
		}
	}
	errs := ValidateLogging(LoggingConfig{Level: "verbose", Format: "xml"})
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
}

func TestValidateAddr(t *testing.T) {
	tests := []struct {
		addr     string
		required bool
		want     int
	}{
		{"", false, 0},
		{"", true, 1},
		{":9090", true, 0},
		{"127.0.0.1:8080", false, 0},
		{"localhost", false, 1},
	}
	for _, tt := range tests {
		if errs := ValidateAddr("metrics.addr", tt.addr, tt.required); len(errs) != tt.want {
			t.Errorf("ValidateAddr(%q, %v): expected %d errors, got %v", tt.addr, tt.required, tt.want, errs)
		}
	}
}

func TestValidate_PIDFileMustBeAbsolute(t *testing.T) {
	cfg := validConfig(t)
	cfg.Server.PIDFile = "purge.pid"

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "server.pid_file") {
		t.Fatalf("expected server.pid_file error, got %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := validConfig(t)
	cfg.Version = 2
	cfg.Defaults.MinFileAgeDays = -1
	cfg.Logging.Level = "loud"
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = "nope"

	err := Validate(cfg)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(verrs) != 4 {
		t.Fatalf("expected 4 errors, got %d: %v", len(verrs), verrs)
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "test.field", Message: "test message"}
	expected := "config validation failed: test.field: test message"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "field1", Message: "msg1"},
		{Field: "field2", Message: "msg2"},
	}
	s := errs.Error()
	if !strings.Contains(s, "field1: msg1") || !strings.Contains(s, "field2: msg2") {
		t.Errorf("expected both errors in output, got %q", s)
	}
	if (ValidationErrors{}).Error() != "" {
		t.Error("expected empty string for empty errors")
	}
}
