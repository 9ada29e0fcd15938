package scanner

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultExcludes are directory names never descended into
var DefaultExcludes = []string{
	".git",
	".hg",
	".svn",
	".codeindex",
	"node_modules",
	"vendor",
	"__pycache__",
	"dist",
	"build",
	".next",
	"target",
	".venv",
	".idea",
	".vscode",
}

type ignoreRule struct {
	pattern  string
	negate   bool
	dirOnly  bool
	anchored bool
}

// Filter decides which paths under a root are indexable. Paths are relative
// to the root and slash separated.
type Filter struct {
	include []string
	exclude []string
	ignore  []ignoreRule
}

// NewFilter builds a filter for root, loading root/.gitignore when present
func NewFilter(root string, include, exclude []string) *Filter {
	f := &Filter{include: normalizePatterns(include), exclude: normalizePatterns(exclude)}
	if data, err := os.ReadFile(filepath.Join(root, ".gitignore")); err == nil {
		f.ignore = parseGitignore(string(data))
	}
	return f
}

func normalizePatterns(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, filepath.ToSlash(p))
		}
	}
	return out
}

func parseGitignore(data string) []ignoreRule {
	var rules []ignoreRule
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var r ignoreRule
		if strings.HasPrefix(line, "!") {
			r.negate = true
			line = line[1:]
		}
		if strings.HasSuffix(line, "/") {
			r.dirOnly = true
			line = strings.TrimSuffix(line, "/")
		}
		// A slash anywhere but the end anchors the pattern to the root.
		if strings.Contains(line, "/") {
			r.anchored = true
			line = strings.TrimPrefix(line, "/")
		}
		if line == "" || !doublestar.ValidatePattern(line) {
			continue
		}
		r.pattern = line
		rules = append(rules, r)
	}
	return rules
}

func (r ignoreRule) matches(rel string, isDir bool) bool {
	if r.dirOnly && !isDir {
		return false
	}
	if r.anchored {
		ok, _ := doublestar.Match(r.pattern, rel)
		return ok
	}
	ok, _ := doublestar.Match(r.pattern, path.Base(rel))
	return ok
}

// gitignored applies the rules in order; the last matching rule wins. A path
// is also ignored when any of its parent directories is.
func (f *Filter) gitignored(rel string, isDir bool) bool {
	if len(f.ignore) == 0 {
		return false
	}
	if dir := path.Dir(rel); dir != "." && f.gitignored(dir, true) {
		return true
	}

	ignored := false
	for _, r := range f.ignore {
		if r.matches(rel, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

// SkipDir reports whether the directory at rel should not be walked
func (f *Filter) SkipDir(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, part := range strings.Split(rel, "/") {
		for _, excl := range DefaultExcludes {
			if strings.EqualFold(part, excl) {
				return true
			}
		}
	}
	return f.gitignored(rel, true) || matchesAny(rel, f.exclude)
}

// Accept reports whether the file at rel should be indexed. It does not look
// at the file itself; size and binary checks happen during the walk.
func (f *Filter) Accept(rel string) bool {
	rel = filepath.ToSlash(rel)
	if dir := path.Dir(rel); dir != "." && f.SkipDir(dir) {
		return false
	}
	if DetectLanguage(rel) == "" {
		return false
	}
	if f.gitignored(rel, false) {
		return false
	}
	if len(f.include) > 0 && !matchesAny(rel, f.include) {
		return false
	}
	return !matchesAny(rel, f.exclude)
}

// matchesAny checks rel and its base name against doublestar patterns
func matchesAny(rel string, patterns []string) bool {
	base := path.Base(rel)
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
		if ok, err := doublestar.Match(p, base); err == nil && ok {
			return true
		}
	}
	return false
}
