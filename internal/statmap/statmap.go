// Package statmap defines the scanner's output type and the additive
// merge operation every layer of the pipeline (workers, rollup, multi-root
// scans) uses to combine partial results.
package statmap

// Stat is the aggregated size/count data attributed to one directory.
type Stat struct {
	Logical  uint64 // sum of apparent (logical) file sizes
	Physical uint64 // sum of on-disk (allocated block) sizes
	Files    uint64 // count of regular files counted under this directory
}

// Add returns the element-wise sum of s and o.
func (s Stat) Add(o Stat) Stat {
	return Stat{
		Logical:  s.Logical + o.Logical,
		Physical: s.Physical + o.Physical,
		Files:    s.Files + o.Files,
	}
}

// Map is keyed by absolute, cleaned directory path.
type Map map[string]Stat

// New returns an empty Map.
func New() Map {
	return make(Map)
}

// AddTo merges s into m[path], creating the entry if absent. It is the
// single point every producer (backends, worker merges, rollup)
// goes through, so callers never race on map-internal bookkeeping beyond
// whatever external synchronization guards the Map itself.
func (m Map) AddTo(path string, s Stat) {
	m[path] = m[path].Add(s)
}

// Merge folds every entry of o into m and returns m.
func (m Map) Merge(o Map) Map {
	for path, s := range o {
		m.AddTo(path, s)
	}
	return m
}
