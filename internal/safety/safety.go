package safety

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ChrisB0-2/purge/internal/logger"
)

// Guard refuses removal of paths whose loss would be catastrophic:
// the filesystem root, the user's home directory itself, and any
// configured protected path or its descendants. Paths are compared both
// as given and with symlinked ancestors resolved, so a protected tree
// cannot be reached through an alias.
type Guard struct {
	log       logger.Logger
	roots     []string
	home      []string
	protected []string
}

// New creates a guard with no-op logging.
func New(protected []string) *Guard {
	return NewWithLogger(protected, nil)
}

// NewWithLogger creates a guard with the given logger.
func NewWithLogger(protected []string, log logger.Logger) *Guard {
	if log == nil {
		log = logger.NewNop()
	}
	g := &Guard{log: log, roots: filesystemRoots()}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		g.home = resolveRoot(filepath.Clean(home))
	}
	for _, p := range protected {
		if p = strings.TrimSpace(p); p != "" {
			g.protected = append(g.protected, resolveRoot(filepath.Clean(p))...)
		}
	}
	return g
}

// Protected reports whether path must never be removed, and why.
func (g *Guard) Protected(path string) (bool, string) {
	for _, p := range variants(path) {
		for _, r := range g.roots {
			if p == r {
				return g.denyWithLog(p, "filesystem_root")
			}
		}
		for _, h := range g.home {
			if p == h {
				return g.denyWithLog(p, "home_directory")
			}
		}
		for _, pp := range g.protected {
			if isPathOrChild(p, pp) {
				return g.denyWithLog(p, "protected_path")
			}
		}
	}
	return false, ""
}

func (g *Guard) denyWithLog(path, reason string) (bool, string) {
	g.log.Debug("safety denied", logger.F("path", path), logger.F("reason", reason))
	return true, reason
}

func filesystemRoots() []string {
	roots := []string{string(filepath.Separator)}
	if vol := filepath.VolumeName(os.TempDir()); vol != "" {
		roots = append(roots, vol, vol+string(filepath.Separator))
	}
	return roots
}

// isPathOrChild returns true if path == base OR path is a child of base.
// This avoids prefix bugs like "/data/a" matching "/data/abc".
func isPathOrChild(path, base string) bool {
	path = filepath.Clean(path)
	base = filepath.Clean(base)

	// Special case: "/" should only match "/" exactly.
	if base == string(filepath.Separator) {
		return path == base
	}

	if path == base {
		return true
	}

	baseWithSep := base
	if !strings.HasSuffix(baseWithSep, string(filepath.Separator)) {
		baseWithSep += string(filepath.Separator)
	}
	return strings.HasPrefix(path, baseWithSep)
}
