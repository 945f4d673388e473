package policy

import (
	"path/filepath"
	"regexp"
	"strings"
)

// globMatcher matches a path against one pattern.
//
// A pattern matches when any of these hold:
//   - filepath.Match against the base name ("*.tmp", "keep-*")
//   - filepath.Match against the full path
//   - a "**" pattern matches recursively ("backup/**", "node_modules/**")
//   - shell-style matching on the whole path where "*" also crosses
//     separators ("/home/*/cache/*")
type globMatcher struct {
	pattern string
	whole   *regexp.Regexp
}

func newGlobMatcher(pattern string) globMatcher {
	return globMatcher{pattern: pattern, whole: compileWholePath(pattern)}
}

func (g globMatcher) match(path string) bool {
	if matched, err := filepath.Match(g.pattern, filepath.Base(path)); err == nil && matched {
		return true
	}
	if matched, err := filepath.Match(g.pattern, path); err == nil && matched {
		return true
	}
	if matchRecursive(g.pattern, path) {
		return true
	}
	return g.whole != nil && g.whole.MatchString(path)
}

func compileMatchers(patterns []string) []globMatcher {
	out := make([]globMatcher, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, newGlobMatcher(p))
		}
	}
	return out
}

// compileWholePath translates a shell pattern into an anchored regexp.
// Only patterns containing a separator are compiled; plain name patterns
// are already covered by the base-name match.
func compileWholePath(pattern string) *regexp.Regexp {
	if !strings.ContainsAny(pattern, `/\`) {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		switch ch {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		case '[':
			j := strings.IndexByte(pattern[i+1:], ']')
			if j < 0 {
				sb.WriteString(`\[`)
				continue
			}
			class := pattern[i+1 : i+1+j]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			sb.WriteString("[" + strings.ReplaceAll(class, `\`, `\\`) + "]")
			i += j + 1
		default:
			sb.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil
	}
	return re
}

// matchRecursive handles ** patterns for recursive directory matching.
// Pattern "backup/**" matches any file under a "backup" directory.
func matchRecursive(pattern, path string) bool {
	prefix, suffix, ok := strings.Cut(pattern, "**")
	if !ok {
		return false
	}

	prefix = filepath.Clean(prefix)
	if prefix == "." {
		prefix = ""
	}

	if prefix != "" && !hasPathPrefix(path, prefix) {
		return false
	}

	// If suffix is empty or just "/", any file under prefix matches
	if suffix == "" || suffix == "/" {
		return true
	}

	suffix = strings.TrimLeft(suffix, `/\`)
	matched, _ := filepath.Match(suffix, filepath.Base(path))
	return matched
}

// hasPathPrefix checks if path contains prefix as a directory component.
func hasPathPrefix(path, prefix string) bool {
	pathParts := splitPath(filepath.Clean(path))
	prefixParts := splitPath(filepath.Clean(prefix))

	// The last path element is the file itself, not a directory.
	if len(pathParts) > 0 {
		pathParts = pathParts[:len(pathParts)-1]
	}
	if len(prefixParts) == 0 || len(prefixParts) > len(pathParts) {
		return false
	}

	for i := 0; i <= len(pathParts)-len(prefixParts); i++ {
		match := true
		for j, pp := range prefixParts {
			if pathParts[i+j] != pp {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func splitPath(path string) []string {
	var parts []string
	for path != "" && path != "/" && path != "." {
		dir, file := filepath.Split(path)
		if file != "" {
			parts = append([]string{file}, parts...)
		}
		path = filepath.Clean(dir)
		if path == "/" || path == "." || path == dir {
			break
		}
	}
	return parts
}
