// Package hyperdu implements an ultra-fast, concurrent disk-usage scanning
// engine: given a root directory, it walks the tree with a work-stealing
// scheduler, a platform-specific fast-stat backend, and adaptive tuning,
// and returns a StatMap of per-directory cumulative size and file counts.
package hyperdu

import "github.com/michaelscutari/hyperdu/internal/statmap"

// Stat is the aggregated size/count data attributed to one directory,
// including everything beneath it once Scan returns.
type Stat = statmap.Stat

// StatMap is the scanner's result: absolute, cleaned directory path to its
// cumulative Stat.
type StatMap = statmap.Map
