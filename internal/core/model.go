package core

import (
	"encoding/json"
	"fmt"
	"maps"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Category is the closed classification of what kind of waste a candidate is.
type Category string

const (
	CategoryTempFiles       Category = "temp_files"
	CategoryBrowserCache    Category = "browser_cache"
	CategoryBrowserCookies  Category = "browser_cookies"
	CategoryBrowserHistory  Category = "browser_history"
	CategorySystemLogs      Category = "system_logs"
	CategoryApplicationLogs Category = "application_logs"
	CategoryRecycleBin      Category = "recycle_bin"
	CategoryMemoryDumps     Category = "memory_dumps"
	CategorySoftwareCache   Category = "software_cache"
	CategoryPackageCache    Category = "package_cache"
	CategoryThumbnails      Category = "thumbnails"
	CategoryDownloads       Category = "downloads"
	CategoryOther           Category = "other"
)

// Categories lists every valid Category in declaration order.
var Categories = []Category{
	CategoryTempFiles, CategoryBrowserCache, CategoryBrowserCookies,
	CategoryBrowserHistory, CategorySystemLogs, CategoryApplicationLogs,
	CategoryRecycleBin, CategoryMemoryDumps, CategorySoftwareCache,
	CategoryPackageCache, CategoryThumbnails, CategoryDownloads, CategoryOther,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

// ParseCategory converts a string into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.TrimSpace(s))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// SafetyTier is the caution level required before deleting a candidate.
type SafetyTier string

const (
	SafetySafe      SafetyTier = "safe"
	SafetyWarning   SafetyTier = "warning"
	SafetyDangerous SafetyTier = "dangerous"
	SafetyCritical  SafetyTier = "critical"
)

// Rank orders tiers from least (0) to most (3) cautious. Unknown tiers rank -1.
func (s SafetyTier) Rank() int {
	switch s {
	case SafetySafe:
		return 0
	case SafetyWarning:
		return 1
	case SafetyDangerous:
		return 2
	case SafetyCritical:
		return 3
	default:
		return -1
	}
}

// ParseSafetyTier converts a string into a SafetyTier.
func ParseSafetyTier(s string) (SafetyTier, error) {
	t := SafetyTier(strings.ToLower(strings.TrimSpace(s)))
	if t.Rank() < 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownSafetyTier, s)
	}
	return t, nil
}

// MetaScanner is the metadata key carrying the name of the scanner that found a candidate.
const MetaScanner = "scanner"

// Candidate is a single discovered filesystem object eligible for cleanup.
// It is treated as immutable once created; use WithMetadata to derive a copy.
type Candidate struct {
	Path          string         `json:"path"`
	Size          int64          `json:"size"`
	Category      Category       `json:"category"`
	Description   string         `json:"description"`
	Safety        SafetyTier     `json:"safety_level"`
	LastAccessed  *time.Time     `json:"last_accessed"`
	LastModified  *time.Time     `json:"last_modified"`
	Owner         string         `json:"owner,omitempty"`
	ProcessLocked bool           `json:"process_locked"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// NewCandidate builds and validates a Candidate.
func NewCandidate(path string, size int64, cat Category, desc string, tier SafetyTier) (Candidate, error) {
	c := Candidate{
		Path:        path,
		Size:        size,
		Category:    cat,
		Description: desc,
		Safety:      tier,
	}
	if err := c.Validate(); err != nil {
		return Candidate{}, err
	}
	return c, nil
}

// Validate checks the Candidate invariants. Relative paths are rejected, never coerced.
func (c Candidate) Validate() error {
	if c.Path == "" || !filepath.IsAbs(c.Path) {
		return fmt.Errorf("%w: %q", ErrRelativePath, c.Path)
	}
	if !c.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, c.Category)
	}
	if c.Safety.Rank() < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownSafetyTier, c.Safety)
	}
	if c.Size < 0 {
		return fmt.Errorf("negative size %d for %s", c.Size, c.Path)
	}
	return nil
}

// UnmarshalJSON reconstructs a Candidate from its plain record form and validates it.
func (c *Candidate) UnmarshalJSON(data []byte) error {
	type plain Candidate
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Safety == "" {
		p.Safety = SafetyWarning
	}
	cand := Candidate(p)
	if err := cand.Validate(); err != nil {
		return err
	}
	*c = cand
	return nil
}

// WithMetadata returns a copy of c with key set, leaving c untouched.
func (c Candidate) WithMetadata(key string, value any) Candidate {
	md := make(map[string]any, len(c.Metadata)+1)
	maps.Copy(md, c.Metadata)
	md[key] = value
	c.Metadata = md
	return c
}

// ScannerName returns the scanner recorded in the metadata, if any.
func (c Candidate) ScannerName() string {
	if s, ok := c.Metadata[MetaScanner].(string); ok {
		return s
	}
	return ""
}

// HumanSize renders Size like "10 kB".
func (c Candidate) HumanSize() string {
	return humanize.Bytes(uint64(max(c.Size, 0)))
}

// Extension returns the lower-cased file extension including the dot.
func (c Candidate) Extension() string {
	return strings.ToLower(filepath.Ext(c.Path))
}

// ScannerConfig controls how a single scanner filters what it reports.
type ScannerConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Priority is advisory; lower runs first. Nothing currently enforces it.
	Priority        int      `yaml:"priority" json:"priority"`
	MaxFileSize     int64    `yaml:"max_file_size" json:"max_file_size"` // 0 = unlimited
	MinFileAgeDays  int      `yaml:"min_file_age_days" json:"min_file_age_days"`
	ExcludePatterns []string `yaml:"exclude_patterns" json:"exclude_patterns"`
	IncludePatterns []string `yaml:"include_patterns" json:"include_patterns"`
}

// DefaultScannerConfig mirrors the defaults every scanner starts with.
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		Enabled:        true,
		Priority:       10,
		MinFileAgeDays: 1,
	}
}

// Clone returns a deep copy so callers cannot mutate a running scanner's config.
func (c ScannerConfig) Clone() ScannerConfig {
	c.ExcludePatterns = append([]string(nil), c.ExcludePatterns...)
	c.IncludePatterns = append([]string(nil), c.IncludePatterns...)
	return c
}

// Seconds is a duration that serializes as floating-point seconds.
type Seconds time.Duration

func (s Seconds) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(s).Seconds())
}

func (s *Seconds) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*s = Seconds(time.Duration(f * float64(time.Second)))
	return nil
}

// ScanReport is the aggregated result of one orchestration run.
type ScanReport struct {
	ID         string      `json:"scan_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Platform   Platform    `json:"platform"`
	Items      []Candidate `json:"items"`
	TotalFound int         `json:"total_found"`
	TotalSize  int64       `json:"total_size"`
	Errors     []string    `json:"errors"`
	Duration   Seconds     `json:"duration"`
	Canceled   bool        `json:"canceled,omitempty"`
}

// ByCategory groups the report items by category, preserving item order.
func (r *ScanReport) ByCategory() map[Category][]Candidate {
	out := make(map[Category][]Candidate)
	for _, it := range r.Items {
		out[it.Category] = append(out[it.Category], it)
	}
	return out
}

// HumanTotalSize renders TotalSize for display.
func (r *ScanReport) HumanTotalSize() string {
	return humanize.Bytes(uint64(max(r.TotalSize, 0)))
}

// FailedItem records one candidate that could not be removed.
type FailedItem struct {
	Path          string `json:"path"`
	Reason        string `json:"error"`
	Scanner       string `json:"scanner"`
	ProcessLocked bool   `json:"process_locked,omitempty"`
}

// CleanupReport is the aggregated result of one cleanup invocation.
type CleanupReport struct {
	ID           string       `json:"cleanup_id"`
	Timestamp    time.Time    `json:"timestamp"`
	DryRun       bool         `json:"dry_run"`
	Removed      []Candidate  `json:"removed_items"`
	Failed       []FailedItem `json:"failed_items"`
	Errors       []string     `json:"errors"`
	TotalRemoved int          `json:"total_removed"`
	TotalFreed   int64        `json:"total_freed"`
	Duration     Seconds      `json:"duration"`
}

// HumanFreed renders TotalFreed for display.
func (r *CleanupReport) HumanFreed() string {
	return humanize.Bytes(uint64(max(r.TotalFreed, 0)))
}

// ScannerInfo is a read-only description of a registered scanner.
type ScannerInfo struct {
	Name        string     `json:"name"`
	Category    Category   `json:"category"`
	Description string     `json:"description"`
	Enabled     bool       `json:"enabled"`
	Supported   bool       `json:"supported"`
	Platforms   []Platform `json:"platforms"`
	Priority    int        `json:"priority"`
}

// RemovalReason classifies the outcome of a single removal attempt.
type RemovalReason string

const (
	ReasonRemoved          RemovalReason = "removed"
	ReasonNotFound         RemovalReason = "not_found"
	ReasonLocked           RemovalReason = "locked"
	ReasonPermissionDenied RemovalReason = "permission_denied"
	ReasonOSError          RemovalReason = "os_error"
	ReasonProtectedPath    RemovalReason = "protected_path"
	ReasonCanceled         RemovalReason = "canceled"
)

// RemovalOutcome is the tagged result of removing one path.
type RemovalOutcome struct {
	Path       string
	Removed    bool
	Reason     RemovalReason
	BytesFreed int64
	Err        error
}

// Locked reports whether the path was held open by a running process.
func (o RemovalOutcome) Locked() bool {
	return o.Reason == ReasonLocked
}
