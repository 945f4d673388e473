package sources

import (
	"os"
	"path/filepath"

	"github.com/ChrisB0-2/purge/internal/core"
)

// Env holds the per-user directories the path tables are built from.
// Tests point it at a temporary tree.
type Env struct {
	Platform core.Platform
	Home     string
	TempDir  string
	CacheDir string
	// LocalData and RoamingData are %LOCALAPPDATA% and %APPDATA% on Windows.
	LocalData   string
	RoamingData string
}

// DetectEnv reads the current user's directories.
func DetectEnv(p core.Platform) Env {
	e := Env{Platform: p, TempDir: os.TempDir()}
	if home, err := os.UserHomeDir(); err == nil {
		e.Home = home
	}
	if cache, err := os.UserCacheDir(); err == nil {
		e.CacheDir = cache
	}
	if p == core.PlatformWindows {
		e.LocalData = envOr("LOCALAPPDATA", filepath.Join(e.Home, "AppData", "Local"))
		e.RoamingData = envOr("APPDATA", filepath.Join(e.Home, "AppData", "Roaming"))
	}
	return e
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// home joins elem onto the home directory, or returns "" when it is unknown.
func (e Env) home(elem ...string) string {
	if e.Home == "" {
		return ""
	}
	return filepath.Join(append([]string{e.Home}, elem...)...)
}

func (e Env) local(elem ...string) string {
	if e.LocalData == "" {
		return ""
	}
	return filepath.Join(append([]string{e.LocalData}, elem...)...)
}

func (e Env) roaming(elem ...string) string {
	if e.RoamingData == "" {
		return ""
	}
	return filepath.Join(append([]string{e.RoamingData}, elem...)...)
}

func nonEmpty(paths ...string) []string {
	out := paths[:0]
	for _, p := range paths {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
