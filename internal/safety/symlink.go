package safety

import "path/filepath"

// Canonical returns path with every symlinked ancestor resolved. The
// final component is left alone: a symlink named directly is unlinked,
// never followed, so its own target is irrelevant to the checks.
// If the parent cannot be resolved the cleaned path is returned.
func Canonical(path string) string {
	clean := filepath.Clean(path)
	abs, err := filepath.Abs(clean)
	if err != nil {
		return clean
	}
	dir, base := filepath.Split(abs)
	if base == "" {
		return abs
	}
	parent, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return abs
	}
	return filepath.Join(parent, base)
}

// variants returns the distinct forms of path a lookup must consider:
// the cleaned input and its canonical form.
func variants(path string) []string {
	clean := filepath.Clean(path)
	canon := Canonical(path)
	if canon == clean {
		return []string{clean}
	}
	return []string{clean, canon}
}

// resolveRoot returns base and, when it differs, base with all symlinks
// resolved. Protected roots are themselves often reached through links
// (for example /var on macOS).
func resolveRoot(base string) []string {
	out := []string{base}
	if resolved, err := filepath.EvalSymlinks(base); err == nil && resolved != base {
		out = append(out, resolved)
	}
	return out
}
