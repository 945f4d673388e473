package sources

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/ChrisB0-2/purge/internal/core"
	"github.com/ChrisB0-2/purge/internal/scanner"
)

const SystemLogsName = "system_logs"

// staleLogDays is the number of whole days a log file must exceed before
// it is considered safe to delete.
const staleLogDays = 30

// ageDays returns the whole days elapsed between mod and now.
func ageDays(now, mod time.Time) int {
	return int(now.Sub(mod).Hours() / 24)
}

// SystemLogs sweeps system and per-user log directories for *.log files.
type SystemLogs struct {
	walker *scanner.WalkDirScanner
	env    Env
	now    func() time.Time
}

func NewSystemLogs(walker *scanner.WalkDirScanner, env Env) *SystemLogs {
	if walker == nil {
		walker = scanner.NewWalkDir()
	}
	return &SystemLogs{walker: walker, env: env, now: time.Now}
}

func (s *SystemLogs) Name() string                        { return SystemLogsName }
func (s *SystemLogs) Category() core.Category             { return core.CategorySystemLogs }
func (s *SystemLogs) Description() string                 { return "System and application log files" }
func (s *SystemLogs) SupportedPlatforms() []core.Platform { return []core.Platform{core.PlatformAll} }

// Roots lists the log directories swept on the configured platform.
func (s *SystemLogs) Roots() []string {
	e := s.env
	var roots []string
	switch e.Platform {
	case core.PlatformWindows:
		roots = append(roots, e.local("Logs"), `C:\Windows\Logs`, `C:\Windows\System32\winevt\Logs`)
	case core.PlatformLinux:
		roots = append(roots, e.home(".local", "state"), "/var/log", e.home(".local", "share", "applications", "logs"))
	case core.PlatformMacOS:
		roots = append(roots, e.home("Library", "Logs"), "/Library/Logs", "/var/log")
	}
	return nonEmpty(roots...)
}

func (s *SystemLogs) Discover(ctx context.Context) (<-chan core.Candidate, <-chan error) {
	now := s.now()
	return s.walker.Walk(ctx, scanner.WalkRequest{
		Roots: s.Roots(),
		Match: func(path string) bool { return strings.EqualFold(filepath.Ext(path), ".log") },
		Classify: func(f scanner.FileInfo) (core.Candidate, bool) {
			tier := core.SafetyWarning
			if ageDays(now, f.LastModified) > staleLogDays {
				tier = core.SafetySafe
			}
			desc := f.Path
			if rel, err := filepath.Rel(filepath.Dir(f.Root), f.Path); err == nil {
				desc = rel
			}
			c := core.Candidate{
				Path:        f.Path,
				Size:        f.Size,
				Category:    core.CategorySystemLogs,
				Description: "Log file: " + desc,
				Safety:      tier,
			}
			return f.Timestamps(c), true
		},
	})
}
