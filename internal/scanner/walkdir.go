package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ChrisB0-2/purge/internal/core"
	"github.com/ChrisB0-2/purge/internal/logger"
)

// FileInfo is what the walker learned about one regular file.
type FileInfo struct {
	Root         string
	Path         string
	Size         int64
	LastModified time.Time
	LastAccessed *time.Time
	Owner        string
}

// Classifier turns a discovered file into a candidate. Returning false skips the file.
type Classifier func(f FileInfo) (core.Candidate, bool)

// WalkRequest describes one walk over a set of roots.
type WalkRequest struct {
	Roots []string
	// MaxDepth limits descent below each root; 0 means unlimited.
	MaxDepth int
	// OneFilesystem stops the walk at mount points below a root.
	OneFilesystem bool
	// Match, when set, filters regular files before they are stat'ed.
	Match func(path string) bool
	Classify Classifier
}

type WalkDirScanner struct {
	log logger.Logger
}

// NewWalkDir creates a walker with no-op logging.
func NewWalkDir() *WalkDirScanner {
	return &WalkDirScanner{log: logger.NewNop()}
}

// NewWalkDirWithLogger creates a walker with the given logger.
func NewWalkDirWithLogger(log logger.Logger) *WalkDirScanner {
	if log == nil {
		log = logger.NewNop()
	}
	return &WalkDirScanner{log: log}
}

// Walk visits each root and emits one Candidate per regular file the
// classifier accepts. It never deletes.
//
// Missing roots and unreadable subtrees are skipped. Symlinks are never
// followed or emitted. The only error delivered is ctx's, on cancellation.
func (s *WalkDirScanner) Walk(ctx context.Context, req WalkRequest) (<-chan core.Candidate, <-chan error) {
	out := make(chan core.Candidate, 128)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)
		defer func() {
			if p := recover(); p != nil {
				errc <- fmt.Errorf("walk panicked: %v", p)
			}
		}()

		s.log.Debug("walk starting", logger.F("roots", req.Roots), logger.F("max_depth", req.MaxDepth))

		seen := make(map[string]struct{}, len(req.Roots))
		for _, root := range req.Roots {
			if strings.TrimSpace(root) == "" {
				continue
			}
			root = filepath.Clean(root)
			if absRoot, err := filepath.Abs(root); err == nil {
				root = absRoot
			}
			if _, dup := seen[root]; dup {
				continue
			}
			seen[root] = struct{}{}

			if err := s.walkRoot(ctx, root, req, out); err != nil {
				s.log.Debug("walk stopped", logger.F("root", root), logger.F("error", err.Error()))
				errc <- err
				return
			}
			s.log.Debug("root walk complete", logger.F("root", root))
		}
		s.log.Debug("walk complete")
	}()

	return out, errc
}

func (s *WalkDirScanner) walkRoot(ctx context.Context, root string, req WalkRequest, out chan<- core.Candidate) error {
	rootInfo, err := os.Stat(root)
	if err != nil || !rootInfo.IsDir() {
		s.log.Debug("skipping root", logger.F("root", root))
		return nil
	}
	rootDev, haveDev := getDeviceID(rootInfo)

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Unreadable entries are skipped, never fatal.
			s.log.Debug("skipping unreadable path", logger.F("path", path), logger.F("error", err.Error()))
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			if req.MaxDepth > 0 && depthBelow(root, path) >= req.MaxDepth {
				return fs.SkipDir
			}
			if req.OneFilesystem && haveDev {
				if info, err := d.Info(); err == nil {
					if dev, ok := getDeviceID(info); ok && dev != rootDev {
						s.log.Debug("not crossing mount point", logger.F("path", path))
						return fs.SkipDir
					}
				}
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if req.Match != nil && !req.Match(path) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			if errors.Is(infoErr, fs.ErrNotExist) {
				return nil
			}
			s.log.Debug("stat failed", logger.F("path", path), logger.F("error", infoErr.Error()))
			return nil
		}

		f := Describe(root, path, info)

		c, ok := classify(req.Classify, f)
		if !ok {
			return nil
		}

		select {
		case out <- c:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func classify(fn Classifier, f FileInfo) (core.Candidate, bool) {
	if fn != nil {
		return fn(f)
	}
	mod := f.LastModified
	return core.Candidate{
		Path:         f.Path,
		Size:         f.Size,
		Category:     core.CategoryOther,
		Safety:       core.SafetyWarning,
		LastModified: &mod,
		LastAccessed: f.LastAccessed,
		Owner:        f.Owner,
	}, true
}

// depthBelow counts path elements between root and path.
func depthBelow(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

// Describe builds the FileInfo the walker would report for path, whose
// Lstat result is info. Sources that stat individual files use it so
// their candidates carry the same metadata as walked ones.
func Describe(root, path string, info os.FileInfo) FileInfo {
	f := FileInfo{
		Root:         root,
		Path:         filepath.Clean(path),
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}
	f.LastAccessed, f.Owner = fileMeta(f.Path, info)
	return f
}

// Timestamps copies the walker's timestamps and owner onto c.
func (f FileInfo) Timestamps(c core.Candidate) core.Candidate {
	mod := f.LastModified
	c.LastModified = &mod
	c.LastAccessed = f.LastAccessed
	c.Owner = f.Owner
	return c
}
