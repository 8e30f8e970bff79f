package workspace

import (
	"slices"
	"strings"

	"github.com/gobwas/glob"
	"go.trai.ch/knot/internal/core/domain"
)

// IgnoreFileNames are read in every directory, later files overriding earlier ones.
var IgnoreFileNames = []string{".gitignore", ".ignore"}

// skippedDirectories are never part of a package.
var skippedDirectories = []string{".git", ".jj", "node_modules", "__pycache__"}

func isSkippedDirectory(name string) bool {
	return slices.Contains(skippedDirectories, name)
}

func isPythonFile(name string) bool {
	return strings.HasSuffix(name, ".py") || strings.HasSuffix(name, ".pyi")
}

// ignoreRule is one line of an ignore file. It supports the commonly used subset
// of gitignore: negation, directory-only patterns, anchoring and globs with **.
type ignoreRule struct {
	source   string
	negate   bool
	dirOnly  bool
	anchored bool
	matcher  glob.Glob
}

func (r ignoreRule) matches(rel string, isDir bool) bool {
	if r.dirOnly && !isDir {
		return false
	}
	if r.anchored {
		return r.matcher.Match(rel)
	}
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		rel = rel[i+1:]
	}
	return r.matcher.Match(rel)
}

// parseIgnoreRules parses ignore file content. Lines that do not compile are skipped.
func parseIgnoreRules(content string) []ignoreRule {
	var rules []ignoreRule
	for line := range strings.Lines(content) {
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimRight(line, " ")

		rule := ignoreRule{source: line}
		pattern := line
		if rest, ok := strings.CutPrefix(pattern, "!"); ok {
			rule.negate = true
			pattern = rest
		}
		pattern = strings.TrimPrefix(pattern, `\`)
		if rest, ok := strings.CutSuffix(pattern, "/"); ok {
			rule.dirOnly = true
			pattern = rest
		}
		if rest, ok := strings.CutPrefix(pattern, "**/"); ok && !strings.Contains(rest, "/") {
			pattern = rest
		}
		if rest, ok := strings.CutPrefix(pattern, "/"); ok {
			rule.anchored = true
			pattern = rest
		} else if strings.Contains(pattern, "/") {
			rule.anchored = true
		}
		if pattern == "" {
			continue
		}

		matcher, err := glob.Compile(pattern, '/')
		if err != nil {
			continue
		}
		rule.matcher = matcher
		rules = append(rules, rule)
	}
	return rules
}

func equalRules(a, b []ignoreRule) bool {
	return slices.EqualFunc(a, b, func(x, y ignoreRule) bool {
		return x.source == y.source
	})
}

// ignoreLevel holds the rules of the ignore files in one directory.
type ignoreLevel struct {
	base  domain.FilePath
	rules []ignoreRule
}

// ignoreMatcher evaluates the rules of a directory and all its ancestors up to
// the workspace root. Inner directories and later rules take precedence.
type ignoreMatcher struct {
	levels []ignoreLevel
}

func (m ignoreMatcher) with(base domain.FilePath, rules []ignoreRule) ignoreMatcher {
	if len(rules) == 0 {
		return m
	}
	levels := make([]ignoreLevel, len(m.levels), len(m.levels)+1)
	copy(levels, m.levels)
	return ignoreMatcher{levels: append(levels, ignoreLevel{base: base, rules: rules})}
}

func (m ignoreMatcher) ignored(path domain.FilePath, isDir bool) bool {
	ignored := false
	for _, level := range m.levels {
		components, ok := path.RelativeTo(level.base)
		if !ok || len(components) == 0 {
			continue
		}
		rel := strings.Join(components, "/")
		for _, rule := range level.rules {
			if rule.matches(rel, isDir) {
				ignored = !rule.negate
			}
		}
	}
	return ignored
}
