package sources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ChrisB0-2/purge/internal/core"
	"github.com/ChrisB0-2/purge/internal/scanner"
)

const (
	ChromeName  = "chrome"
	FirefoxName = "firefox"
)

// Metadata keys set on browser candidates.
const (
	MetaBrowser = "browser"
	MetaType    = "type"
)

var (
	browserCacheDirs = []string{"Cache", "Code Cache", "GPUCache", "ShaderCache", "Service Worker", "cache2"}
	cookieFiles      = []string{"Cookies", filepath.Join("Network", "Cookies"), "cookies.sqlite"}
	historyFiles     = []string{"History", "places.sqlite"}
)

// Browser sweeps one browser's profile directories for cache, cookies
// and history.
type Browser struct {
	name     string
	browser  string
	walker   *scanner.WalkDirScanner
	profiles func() []string
}

// NewChrome covers Google Chrome and Chromium profiles ("Default", "Profile *").
func NewChrome(walker *scanner.WalkDirScanner, env Env) *Browser {
	var bases []string
	switch env.Platform {
	case core.PlatformWindows:
		bases = []string{
			env.local("Google", "Chrome", "User Data"),
			env.local("Chromium", "User Data"),
		}
	case core.PlatformLinux:
		bases = []string{
			env.home(".config", "google-chrome"),
			env.home(".config", "chromium"),
		}
	case core.PlatformMacOS:
		bases = []string{
			env.home("Library", "Application Support", "Google", "Chrome"),
		}
	}
	bases = nonEmpty(bases...)
	return newBrowser(ChromeName, "Chrome", walker, func() []string {
		return globProfiles(bases, "Default", "Profile *")
	})
}

// NewFirefox covers Firefox profiles whose directory name contains ".default".
func NewFirefox(walker *scanner.WalkDirScanner, env Env) *Browser {
	var bases []string
	switch env.Platform {
	case core.PlatformWindows:
		bases = []string{
			env.roaming("Mozilla", "Firefox", "Profiles"),
			env.local("Mozilla", "Firefox", "Profiles"),
		}
	case core.PlatformLinux:
		bases = []string{
			env.home(".mozilla", "firefox"),
		}
	case core.PlatformMacOS:
		bases = []string{
			env.home("Library", "Application Support", "Firefox", "Profiles"),
		}
	}
	bases = nonEmpty(bases...)
	return newBrowser(FirefoxName, "Firefox", walker, func() []string {
		return globProfiles(bases, "*.default*")
	})
}

func newBrowser(name, browser string, walker *scanner.WalkDirScanner, profiles func() []string) *Browser {
	if walker == nil {
		walker = scanner.NewWalkDir()
	}
	return &Browser{name: name, browser: browser, walker: walker, profiles: profiles}
}

func (b *Browser) Name() string            { return b.name }
func (b *Browser) Category() core.Category { return core.CategoryBrowserCache }
func (b *Browser) Description() string     { return b.browser + " browser data" }
func (b *Browser) SupportedPlatforms() []core.Platform {
	return []core.Platform{core.PlatformWindows, core.PlatformLinux, core.PlatformMacOS}
}

// Profiles lists the profile directories present right now.
func (b *Browser) Profiles() []string {
	return b.profiles()
}

func (b *Browser) Discover(ctx context.Context) (<-chan core.Candidate, <-chan error) {
	out := make(chan core.Candidate, 64)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)
		defer func() {
			if p := recover(); p != nil {
				errc <- fmt.Errorf("%s discovery panicked: %v", b.name, p)
			}
		}()

		for _, profile := range b.Profiles() {
			if err := b.discoverProfile(ctx, profile, out); err != nil {
				errc <- err
				return
			}
		}
	}()

	return out, errc
}

func (b *Browser) discoverProfile(ctx context.Context, profile string, out chan<- core.Candidate) error {
	var roots []string
	for _, d := range browserCacheDirs {
		roots = append(roots, filepath.Join(profile, d))
	}

	cache, cacheErr := b.walker.Walk(ctx, scanner.WalkRequest{
		Roots: roots,
		Classify: func(f scanner.FileInfo) (core.Candidate, bool) {
			c := b.candidate(f, core.CategoryBrowserCache, core.SafetySafe, "cache file", "cache")
			return c, true
		},
	})
	for c := range cache {
		if err := send(ctx, out, c); err != nil {
			// Unblock the walker before returning.
			for range cache {
			}
			return err
		}
	}
	if err := <-cacheErr; err != nil {
		return err
	}

	for _, name := range cookieFiles {
		if err := b.emitFile(ctx, out, filepath.Join(profile, name),
			core.CategoryBrowserCookies, core.SafetyDangerous, "cookies database", "cookies"); err != nil {
			return err
		}
	}
	for _, name := range historyFiles {
		if err := b.emitFile(ctx, out, filepath.Join(profile, name),
			core.CategoryBrowserHistory, core.SafetyWarning, "history database", "history"); err != nil {
			return err
		}
	}
	return nil
}

func (b *Browser) emitFile(ctx context.Context, out chan<- core.Candidate, path string,
	cat core.Category, tier core.SafetyTier, what, kind string) error {
	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}
	f := scanner.Describe(filepath.Dir(path), path, info)
	return send(ctx, out, b.candidate(f, cat, tier, what, kind))
}

func (b *Browser) candidate(f scanner.FileInfo, cat core.Category, tier core.SafetyTier, what, kind string) core.Candidate {
	c := core.Candidate{
		Path:        f.Path,
		Size:        f.Size,
		Category:    cat,
		Description: b.browser + " " + what,
		Safety:      tier,
		Metadata: map[string]any{
			MetaBrowser: b.browser,
			MetaType:    kind,
		},
	}
	return f.Timestamps(c)
}

func send(ctx context.Context, out chan<- core.Candidate, c core.Candidate) error {
	select {
	case out <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// globProfiles expands each pattern under each base and returns existing
// directories, sorted and de-duplicated.
func globProfiles(bases []string, patterns ...string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, base := range bases {
		for _, pat := range patterns {
			matches, err := filepath.Glob(filepath.Join(base, pat))
			if err != nil {
				continue
			}
			for _, m := range matches {
				if info, err := os.Stat(m); err != nil || !info.IsDir() {
					continue
				}
				if _, dup := seen[m]; dup {
					continue
				}
				seen[m] = struct{}{}
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out
}
