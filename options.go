package hyperdu

import (
	"io"
	"os"
	"runtime"
	"time"

	"github.com/michaelscutari/hyperdu/internal/filter"
)

// CompatMode selects which reference tool's on-disk semantics the core
// mimics where that choice affects actual syscall behavior (as opposed to
// pure output formatting, which stays a CLI concern). Carried over from
// original_source/hyperdu-core/src/lib.rs's CompatMode.
type CompatMode int

const (
	// CompatHyperDU is the scanner's own native behavior. On Linux every
	// mode adds AT_STATX_DONT_SYNC to statx calls; this mode adds nothing
	// else.
	CompatHyperDU CompatMode = iota
	// CompatGnuBasic is the `du`-style mode. It changes no statx flag:
	// Linux statx flags are the same as under CompatHyperDU.
	CompatGnuBasic
	// CompatGnuStrict is the strict `du`-style mode. It changes no statx
	// flag (AT_STATX_DONT_SYNC stays set) and does not turn on
	// FilterConfig.OneFileSystem.
	CompatGnuStrict
	// CompatPosixStrict adds AT_NO_AUTOMOUNT so automount points are
	// never triggered by a stat; AT_STATX_DONT_SYNC stays set. It is the
	// only mode that changes a statx flag.
	CompatPosixStrict
)

// FilterConfig groups every knob that controls which entries are
// skipped, mirroring original_source/hyperdu-core/src/options.rs's
// FilterConfig.
type FilterConfig struct {
	Contains       []string
	Regexes        []string
	Globs          []string
	FollowSymlinks bool
	OneFileSystem  bool
	// MaxDepth caps how many levels below the scan root are recursed
	// into; 0 means unlimited. spec.md §3's "depth cap" knob.
	MaxDepth uint32
	// MinFileSize excludes regular files smaller than this many bytes
	// from both the size totals and the file count. spec.md §3's
	// "minimum file size" knob.
	MinFileSize uint64
}

// PerformanceConfig groups concurrency and I/O shape knobs.
type PerformanceConfig struct {
	Workers         int
	ComputePhysical bool
	CountHardlinks  bool
	URingSQDepthInit uint64
	URingBatchInit   uint64
	DirYieldInit     uint64
	UseIOUring       bool
	// Approximate enables spec.md §3's "approximate" flag: regular files
	// are counted as a fixed 4 KiB of logical/physical size instead of
	// being individually statted, trading accuracy for syscall count.
	Approximate bool
}

// OutputConfig groups knobs about what gets reported, independent of how
// the CLI eventually formats it.
type OutputConfig struct {
	MaxErrors uint64
}

// CompatConfig groups the compatibility-mode selection.
type CompatConfig struct {
	Mode CompatMode
}

// TuningConfig groups the adaptive tuner's enablement and cadence.
type TuningConfig struct {
	Auto     bool
	Interval time.Duration
}

// WindowsConfig groups Windows-backend-specific knobs; inert on other
// platforms.
type WindowsConfig struct {
	UseNtQueryDirectoryFile bool
}

// Options is the full, immutable-after-Build configuration for a Scan.
// Construct one with NewOptionsBuilder, or use DefaultOptions for
// reasonable out-of-the-box behavior.
type Options struct {
	Filter     FilterConfig
	Perf       PerformanceConfig
	Output     OutputConfig
	Compat     CompatConfig
	Tuning     TuningConfig
	Windows    WindowsConfig
	Verbose    bool
	VerboseOut io.Writer

	filters *filter.Pipeline // compiled lazily by Build
}

// DefaultOptions returns the scanner's out-of-the-box configuration:
// one worker per CPU, physical-size accounting on, hardlink counting on
// (every link counted, no hardlink dedup), the baseline exclude list, and auto-tuning
// enabled at the default 800ms cadence.
func DefaultOptions() *Options {
	return &Options{
		Filter: FilterConfig{
			Contains: append([]string(nil), filter.DefaultContains...),
		},
		Perf: PerformanceConfig{
			Workers:          runtime.NumCPU(),
			ComputePhysical:  true,
			CountHardlinks:   true,
			URingSQDepthInit: 256,
			URingBatchInit:   256,
			DirYieldInit:     0,
			UseIOUring:       true,
		},
		Output: OutputConfig{MaxErrors: 10000},
		Compat: CompatConfig{Mode: CompatHyperDU},
		Tuning: TuningConfig{Auto: true, Interval: 800 * time.Millisecond},
		VerboseOut: os.Stderr,
	}
}

// OptionsBuilder is a fluent builder over Options, following the style of
// the teacher's internal/scan/options.go (WithWorkers, WithXdev, ...)
// generalized to the full knob set.
type OptionsBuilder struct {
	opts *Options
}

// NewOptionsBuilder starts from DefaultOptions.
func NewOptionsBuilder() *OptionsBuilder {
	return &OptionsBuilder{opts: DefaultOptions()}
}

func (b *OptionsBuilder) WithWorkers(n int) *OptionsBuilder {
	if n > 0 {
		b.opts.Perf.Workers = n
	}
	return b
}

func (b *OptionsBuilder) WithOneFileSystem(v bool) *OptionsBuilder {
	b.opts.Filter.OneFileSystem = v
	return b
}

func (b *OptionsBuilder) WithFollowSymlinks(v bool) *OptionsBuilder {
	b.opts.Filter.FollowSymlinks = v
	return b
}

// WithMaxDepth caps recursion to n levels below the scan root; 0 (the
// default) means unlimited.
func (b *OptionsBuilder) WithMaxDepth(n uint32) *OptionsBuilder {
	b.opts.Filter.MaxDepth = n
	return b
}

// WithMinFileSize excludes regular files smaller than n bytes from the
// scan's totals and file count.
func (b *OptionsBuilder) WithMinFileSize(n uint64) *OptionsBuilder {
	b.opts.Filter.MinFileSize = n
	return b
}

// WithApproximate enables the fixed-4KiB-per-file fast path described in
// spec.md §3/§4.3, skipping per-entry size syscalls entirely as long as no
// MinFileSize threshold is also configured.
func (b *OptionsBuilder) WithApproximate(v bool) *OptionsBuilder {
	b.opts.Perf.Approximate = v
	return b
}

func (b *OptionsBuilder) WithMaxErrors(n uint64) *OptionsBuilder {
	b.opts.Output.MaxErrors = n
	return b
}

func (b *OptionsBuilder) AddExcludeContains(patterns ...string) *OptionsBuilder {
	b.opts.Filter.Contains = append(b.opts.Filter.Contains, patterns...)
	return b
}

func (b *OptionsBuilder) AddExcludeRegex(patterns ...string) *OptionsBuilder {
	b.opts.Filter.Regexes = append(b.opts.Filter.Regexes, patterns...)
	return b
}

func (b *OptionsBuilder) AddExcludeGlob(patterns ...string) *OptionsBuilder {
	b.opts.Filter.Globs = append(b.opts.Filter.Globs, patterns...)
	return b
}

func (b *OptionsBuilder) WithCompatMode(m CompatMode) *OptionsBuilder {
	b.opts.Compat.Mode = m
	return b
}

func (b *OptionsBuilder) WithComputePhysical(v bool) *OptionsBuilder {
	b.opts.Perf.ComputePhysical = v
	return b
}

func (b *OptionsBuilder) WithCountHardlinks(v bool) *OptionsBuilder {
	b.opts.Perf.CountHardlinks = v
	return b
}

func (b *OptionsBuilder) WithIOUring(v bool) *OptionsBuilder {
	b.opts.Perf.UseIOUring = v
	return b
}

func (b *OptionsBuilder) WithAutoTune(v bool, interval time.Duration) *OptionsBuilder {
	b.opts.Tuning.Auto = v
	if interval > 0 {
		b.opts.Tuning.Interval = interval
	}
	return b
}

func (b *OptionsBuilder) WithVerbose(w io.Writer) *OptionsBuilder {
	b.opts.Verbose = w != nil
	if w != nil {
		b.opts.VerboseOut = w
	}
	return b
}

// Build compiles the filter configuration and returns the finished
// Options. It is safe to call Build more than once on the same builder;
// each call produces an independent Options.
func (b *OptionsBuilder) Build() (*Options, error) {
	o := *b.opts
	compiled, err := filter.Compile(filter.Config{
		Contains: o.Filter.Contains,
		Regexes:  o.Filter.Regexes,
		Globs:    o.Filter.Globs,
	})
	if err != nil {
		return nil, err
	}
	o.filters = compiled
	return &o, nil
}

// compiledFilters returns the Options' compiled exclude pipeline,
// compiling it on first use if the Options wasn't produced via
// OptionsBuilder.Build (e.g. a caller that constructed Options by hand).
func (o *Options) compiledFilters() (*filter.Pipeline, error) {
	if o.filters != nil {
		return o.filters, nil
	}
	return filter.Compile(filter.Config{
		Contains: o.Filter.Contains,
		Regexes:  o.Filter.Regexes,
		Globs:    o.Filter.Globs,
	})
}
