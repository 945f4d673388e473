package policy

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/ChrisB0-2/purge/internal/core"
)

func TestShouldInclude_Gates(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	old := timePtr(now.Add(-40 * 24 * time.Hour))

	tests := []struct {
		name string
		cand core.Candidate
		cfg  core.ScannerConfig
		want bool
	}{
		{
			name: "defaults admit old file",
			cand: core.Candidate{Path: "/tmp/a.tmp", Size: 10, LastModified: old},
			cfg:  core.DefaultScannerConfig(),
			want: true,
		},
		{
			name: "young file rejected",
			cand: core.Candidate{Path: "/tmp/a.tmp", LastModified: timePtr(now.Add(-time.Hour))},
			cfg:  core.ScannerConfig{MinFileAgeDays: 1},
			want: false,
		},
		{
			name: "oversized file rejected",
			cand: core.Candidate{Path: "/tmp/a.tmp", Size: 2048, LastModified: old},
			cfg:  core.ScannerConfig{MaxFileSize: 1024},
			want: false,
		},
		{
			name: "excluded file rejected",
			cand: core.Candidate{Path: "/tmp/keep.me", LastModified: old},
			cfg:  core.ScannerConfig{ExcludePatterns: []string{"*.me"}},
			want: false,
		},
		{
			name: "inclusion list rejects non-matching",
			cand: core.Candidate{Path: "/tmp/a.bin", LastModified: old},
			cfg:  core.ScannerConfig{IncludePatterns: []string{"*.tmp"}},
			want: false,
		},
		{
			name: "inclusion list admits matching",
			cand: core.Candidate{Path: "/tmp/a.tmp", LastModified: old},
			cfg:  core.ScannerConfig{IncludePatterns: []string{"*.tmp"}},
			want: true,
		},
		{
			name: "exclusion beats inclusion",
			cand: core.Candidate{Path: "/tmp/a.tmp", LastModified: old},
			cfg: core.ScannerConfig{
				IncludePatterns: []string{"*.tmp"},
				ExcludePatterns: []string{"a.*"},
			},
			want: false,
		},
		{
			name: "absent timestamp passes age gate",
			cand: core.Candidate{Path: "/tmp/a.tmp"},
			cfg:  core.ScannerConfig{MinFileAgeDays: 3650},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldInclude(tt.cand, tt.cfg, now); got != tt.want {
				t.Errorf("ShouldInclude = %v, want %v", got, tt.want)
			}
		})
	}
}

func randomCandidate(r *rand.Rand, now time.Time) core.Candidate {
	names := []string{"a.tmp", "b.log", "keep.me", "cache.bin", "c.tmp"}
	dirs := []string{"/tmp", "/var/log", "/home/u/.cache", "/home/u/cache/x"}
	c := core.Candidate{
		Path: fmt.Sprintf("%s/%s", dirs[r.Intn(len(dirs))], names[r.Intn(len(names))]),
		Size: r.Int63n(1 << 20),
	}
	if r.Intn(4) > 0 {
		c.LastModified = timePtr(now.Add(-time.Duration(r.Int63n(int64(90 * 24 * time.Hour)))))
	}
	return c
}

func randomConfig(r *rand.Rand) core.ScannerConfig {
	patterns := []string{"*.tmp", "*.log", "keep.*", "/home/*/cache/*", ".cache/**"}
	cfg := core.ScannerConfig{
		MinFileAgeDays: r.Intn(60),
		MaxFileSize:    r.Int63n(1 << 20),
	}
	for i := r.Intn(3); i > 0; i-- {
		cfg.ExcludePatterns = append(cfg.ExcludePatterns, patterns[r.Intn(len(patterns))])
	}
	for i := r.Intn(3); i > 0; i-- {
		cfg.IncludePatterns = append(cfg.IncludePatterns, patterns[r.Intn(len(patterns))])
	}
	return cfg
}

func TestShouldInclude_Deterministic(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 500; i++ {
		c := randomCandidate(r, now)
		cfg := randomConfig(r)
		first := ShouldInclude(c, cfg, now)
		for j := 0; j < 3; j++ {
			if got := ShouldInclude(c, cfg, now); got != first {
				t.Fatalf("verdict changed for %+v under %+v", c, cfg)
			}
		}
	}
}

func TestShouldInclude_RecentFilesAlwaysRejected(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 500; i++ {
		cfg := randomConfig(r)
		cfg.MinFileAgeDays = 1 + r.Intn(30)
		minAge := time.Duration(cfg.MinFileAgeDays) * 24 * time.Hour

		c := randomCandidate(r, now)
		c.LastModified = timePtr(now.Add(-time.Duration(r.Int63n(int64(minAge)))))

		if ShouldInclude(c, cfg, now) {
			t.Fatalf("recent file admitted: %+v under %+v", c, cfg)
		}
	}
}

func TestShouldInclude_ExcludedAlwaysRejected(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 500; i++ {
		c := randomCandidate(r, now)
		cfg := randomConfig(r)
		// The exact path is both excluded and included.
		cfg.ExcludePatterns = append(cfg.ExcludePatterns, c.Path)
		cfg.IncludePatterns = append(cfg.IncludePatterns, c.Path)

		if ShouldInclude(c, cfg, now) {
			t.Fatalf("excluded file admitted: %+v under %+v", c, cfg)
		}
	}
}

func TestShouldInclude_EndToEndScenario(t *testing.T) {
	now := time.Now()
	cfg := core.ScannerConfig{Enabled: true, MinFileAgeDays: 1}

	cands := []core.Candidate{
		{Path: "/home/u/.cache/chrome/blob", Size: 10 * 1024, Category: core.CategoryBrowserCache, Safety: core.SafetySafe},
		{Path: "/home/u/.config/chrome/Cookies", Size: 2 * 1024, Category: core.CategoryBrowserCookies, Safety: core.SafetyDangerous},
		{Path: "/var/log/app.log", Size: 500, Category: core.CategorySystemLogs, Safety: core.SafetyWarning,
			LastModified: timePtr(now.Add(-40 * 24 * time.Hour))},
	}

	for _, c := range cands {
		if !ShouldInclude(c, cfg, now) {
			t.Errorf("expected %s to be admitted", c.Path)
		}
	}
}
