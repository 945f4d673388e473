package sources

import (
	"context"
	"path/filepath"

	"github.com/ChrisB0-2/purge/internal/core"
	"github.com/ChrisB0-2/purge/internal/scanner"
)

const SystemTempName = "system_temp"

// SystemTemp sweeps the OS and per-user temporary and cache directories.
type SystemTemp struct {
	walker *scanner.WalkDirScanner
	env    Env
}

func NewSystemTemp(walker *scanner.WalkDirScanner, env Env) *SystemTemp {
	if walker == nil {
		walker = scanner.NewWalkDir()
	}
	return &SystemTemp{walker: walker, env: env}
}

func (s *SystemTemp) Name() string                        { return SystemTempName }
func (s *SystemTemp) Category() core.Category             { return core.CategoryTempFiles }
func (s *SystemTemp) Description() string                 { return "System temporary files and cache" }
func (s *SystemTemp) SupportedPlatforms() []core.Platform { return []core.Platform{core.PlatformAll} }

// Roots lists the directories swept on the configured platform.
func (s *SystemTemp) Roots() []string {
	e := s.env
	roots := []string{e.TempDir, e.CacheDir}
	switch e.Platform {
	case core.PlatformWindows:
		roots = append(roots, `C:\Windows\Temp`, `C:\Windows\Prefetch`)
	case core.PlatformLinux:
		roots = append(roots, "/var/tmp", "/var/cache", e.home(".cache"))
	case core.PlatformMacOS:
		roots = append(roots, e.home("Library", "Caches"), "/Library/Caches", "/System/Library/Caches")
	}
	return nonEmpty(roots...)
}

func (s *SystemTemp) Discover(ctx context.Context) (<-chan core.Candidate, <-chan error) {
	return s.walker.Walk(ctx, scanner.WalkRequest{
		Roots:         s.Roots(),
		OneFilesystem: true,
		Classify: func(f scanner.FileInfo) (core.Candidate, bool) {
			c := core.Candidate{
				Path:        f.Path,
				Size:        f.Size,
				Category:    core.CategoryTempFiles,
				Description: "System temporary files: " + filepath.Base(f.Path),
				Safety:      core.SafetySafe,
			}
			return f.Timestamps(c), true
		},
	})
}
