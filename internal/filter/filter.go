// Package filter implements the three-layer exclude pipeline from spec.md
// §4.1: a multi-pattern substring pass (name-only when safe, full-path
// otherwise), a single-pass regex-set alternation, and a doublestar
// glob-set, evaluated in that order so the cheapest check runs first.
//
// Grounded on original_source/hyperdu-core/src/filters.rs's
// path_excluded/should_fast_exclude split: substring patterns are matched
// against the bare entry name unless any pattern contains a path
// separator, in which case the full path must be built and checked
// instead.
package filter

import (
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Pipeline evaluates a compiled set of exclude rules against scan entries.
type Pipeline struct {
	nameFast bool // true when no substring pattern needs the full path
	substr   *matcher
	regex    *regexp.Regexp // nil if no regex patterns were configured
	globs    []string
}

// Config is the raw, uncompiled exclude configuration.
type Config struct {
	Contains []string // plain substrings, matched against name or full path
	Regexes  []string // alternated into a single regexp.Regexp
	Globs    []string // doublestar patterns, matched against the full path
}

// DefaultContains is the baseline substring exclude list: the teacher's
// `.snapshot` NFS guard generalized with original_source's VCS/build
// directory defaults.
var DefaultContains = []string{".snapshot", ".git", "node_modules", "target"}

// Compile builds a Pipeline from a Config. An empty Config yields a
// Pipeline that excludes nothing.
func Compile(cfg Config) (*Pipeline, error) {
	p := &Pipeline{
		substr:   buildMatcher(cfg.Contains),
		globs:    append([]string(nil), cfg.Globs...),
		nameFast: true,
	}
	for _, c := range cfg.Contains {
		if strings.ContainsAny(c, "/\\") {
			p.nameFast = false
			break
		}
	}
	if len(cfg.Regexes) > 0 {
		combined := "(?:" + strings.Join(cfg.Regexes, ")|(?:") + ")"
		re, err := regexp.Compile(combined)
		if err != nil {
			return nil, err
		}
		p.regex = re
	}
	return p, nil
}

// Excluded reports whether the entry should be skipped. name is the bare
// directory-entry name; fullPath is computed lazily by the caller — pass
// an empty string and rely on NeedsFullPath to know whether it must be
// built, to avoid the path-join allocation on the common fast path.
func (p *Pipeline) Excluded(name, fullPath string) bool {
	if p.nameFast {
		if p.substr.MatchAny(name) {
			return true
		}
	} else if p.substr.MatchAny(fullPath) {
		return true
	}

	if p.regex != nil && p.regex.MatchString(fullPath) {
		return true
	}

	for _, g := range p.globs {
		if ok, _ := doublestar.Match(g, fullPath); ok {
			return true
		}
	}
	return false
}

// NeedsFullPath reports whether the caller must build the full path before
// calling Excluded — true whenever anything beyond the name-only substring
// fast path is configured.
func (p *Pipeline) NeedsFullPath() bool {
	return !p.nameFast || p.regex != nil || len(p.globs) > 0
}
