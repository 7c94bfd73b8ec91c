package scanner

import (
	"path"
	"strings"
)

// IgnorePattern is one gitignore-style line: globs per path segment, "**"
// for any number of segments, a trailing "/" for directories only, a
// leading "!" to re-include. A pattern with a leading or inner "/" is
// anchored at the directory holding the ignore file.
type IgnorePattern struct {
	raw      string
	negate   bool
	dirOnly  bool
	anchored bool
	segments []string
}

// ParseIgnorePattern parses a single ignore line.
func ParseIgnorePattern(line string) IgnorePattern {
	p := IgnorePattern{raw: line}
	if strings.HasPrefix(line, "!") {
		p.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.anchored = true
		line = line[1:]
	} else if strings.Contains(line, "/") && !strings.HasPrefix(line, "**/") {
		p.anchored = true
	}
	p.segments = strings.Split(line, "/")
	return p
}

// IsNegation reports whether the pattern re-includes what it matches.
func (p IgnorePattern) IsNegation() bool { return p.negate }

func (p IgnorePattern) String() string { return p.raw }

// Match reports whether the file at relPath (slash separated) is matched,
// either directly or through one of its parent directories.
func (p IgnorePattern) Match(relPath string) bool { return p.match(relPath, false) }

// MatchDir is Match for a directory path.
func (p IgnorePattern) MatchDir(relPath string) bool { return p.match(relPath, true) }

func (p IgnorePattern) match(relPath string, isDir bool) bool {
	parts := strings.Split(strings.Trim(relPath, "/"), "/")
	for k := 1; k <= len(parts); k++ {
		// a prefix shorter than the path is a parent directory
		if p.dirOnly && k == len(parts) && !isDir {
			continue
		}
		prefix := parts[:k]
		if p.anchored {
			if matchSegments(p.segments, prefix) {
				return true
			}
			continue
		}
		for start := 0; start < len(prefix); start++ {
			if matchSegments(p.segments, prefix[start:]) {
				return true
			}
		}
	}
	return false
}

func matchSegments(pattern, parts []string) bool {
	if len(pattern) == 0 {
		return len(parts) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(parts); i++ {
			if matchSegments(pattern[1:], parts[i:]) {
				return true
			}
		}
		return false
	}
	if len(parts) == 0 {
		return false
	}
	ok, err := path.Match(pattern[0], parts[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], parts[1:])
}
