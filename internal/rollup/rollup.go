// Package rollup implements the bottom-up propagation of directory stats
// from spec.md §4.7: every directory's own (non-recursive) file totals get
// folded into its parent, grandparent, and so on, processed deepest-first
// so each directory only has to absorb contributions from its direct
// children.
//
// Grounded on original_source/hyperdu-core/src/rollup.rs's
// rollup_child_to_parent: group entries by path depth (path component
// count), then walk depths from deepest to shallowest folding each entry
// into filepath.Dir(entry). The teacher's own rollup
// (internal/rollup/builder.go, internal/rollup/stream.go) persisted this
// incrementally into SQLite as directories completed; this is the same
// additive propagation with no persistence layer, since spec.md's Non-goals
// rule out storing scan results.
package rollup

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/michaelscutari/hyperdu/internal/statmap"
)

// Rollup takes own-stats (each directory's directly-contained files only,
// never including subdirectories) and returns a new Map where every
// directory's Stat also includes everything beneath it. The input is
// never mutated.
func Rollup(own statmap.Map) statmap.Map {
	merged := statmap.New()
	for path, s := range own {
		merged.AddTo(path, s)
	}

	byDepth := make(map[int][]string, len(own))
	seen := make(map[string]bool, len(own))
	maxDepth := 0
	for path := range own {
		d := depth(path)
		byDepth[d] = append(byDepth[d], path)
		seen[path] = true
		if d > maxDepth {
			maxDepth = d
		}
	}

	// A directory with no direct files of its own (e.g. root in
	// root/x/y/file) is absent from own and therefore from byDepth at
	// its own depth. merged.AddTo below synthesizes it as a brand-new
	// key the first time a child folds into it; register that key into
	// byDepth at its depth too so it gets walked in its own turn and its
	// accumulated total keeps propagating upward instead of stopping
	// dead at the first ancestor that happened to have no files.
	for d := maxDepth; d > 0; d-- {
		paths := byDepth[d]
		sort.Strings(paths) // deterministic order; propagation is additive so order never affects the result, only reproducibility of logs
		for _, path := range paths {
			parent := filepath.Dir(path)
			if parent == path {
				continue // filesystem root: nothing above it to roll up into
			}
			merged.AddTo(parent, merged[path])
			if !seen[parent] {
				seen[parent] = true
				pd := depth(parent)
				byDepth[pd] = append(byDepth[pd], parent)
			}
		}
	}
	return merged
}

// depth counts path separators, matching rollup.rs's use of
// Path::components().count() as the grouping key.
func depth(path string) int {
	clean := filepath.Clean(path)
	if clean == string(filepath.Separator) || clean == "." {
		return 0
	}
	return strings.Count(clean, string(filepath.Separator)) + 1
}
