package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/michaelscutari/hyperdu"
	"github.com/michaelscutari/hyperdu/internal/pathutil"
)

var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Scan a directory and print per-directory size totals",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScan,
}

var (
	scanWorkers        int
	scanOneFileSystem  bool
	scanFollowSymlinks bool
	scanExcludeGlobs   []string
	scanExcludeRegex   []string
	scanMaxErrors      uint64
	scanVerbose        bool
	scanCompat         string
	scanNoIOUring      bool
	scanTop            int
)

func init() {
	flags := scanCmd.Flags()
	flags.IntVarP(&scanWorkers, "workers", "w", 0, "worker goroutines (0 = one per CPU)")
	flags.BoolVarP(&scanOneFileSystem, "one-file-system", "x", false, "don't cross filesystem boundaries")
	flags.BoolVarP(&scanFollowSymlinks, "follow-symlinks", "L", false, "follow symlinks instead of skipping them")
	flags.StringSliceVar(&scanExcludeGlobs, "exclude-glob", nil, "doublestar glob pattern to exclude (repeatable)")
	flags.StringSliceVar(&scanExcludeRegex, "exclude-regex", nil, "regex pattern to exclude (repeatable)")
	flags.Uint64Var(&scanMaxErrors, "max-errors", 10000, "abort after this many per-entry errors")
	flags.BoolVarP(&scanVerbose, "verbose", "v", false, "trace hot-path scan events to stderr")
	flags.StringVar(&scanCompat, "compat", "hyperdu", "compatibility mode: hyperdu|gnu-basic|gnu-strict|posix-strict")
	flags.BoolVar(&scanNoIOUring, "no-io-uring", false, "disable the io_uring backend on Linux")
	flags.IntVar(&scanTop, "top", 20, "number of largest directories to print (0 = none, negative = all)")
}

func runScan(cmd *cobra.Command, args []string) error {
	rootArg := "."
	if len(args) == 1 {
		rootArg = args[0]
	}
	root, err := filepath.Abs(rootArg)
	if err != nil {
		return fmt.Errorf("resolve root path: %w", err)
	}
	root = pathutil.Normalize(root)

	compat, err := parseCompatMode(scanCompat)
	if err != nil {
		return err
	}

	builder := hyperdu.NewOptionsBuilder().
		WithOneFileSystem(scanOneFileSystem).
		WithFollowSymlinks(scanFollowSymlinks).
		WithMaxErrors(scanMaxErrors).
		WithCompatMode(compat).
		WithIOUring(!scanNoIOUring).
		AddExcludeGlob(scanExcludeGlobs...).
		AddExcludeRegex(scanExcludeRegex...)
	if scanWorkers > 0 {
		builder = builder.WithWorkers(scanWorkers)
	}
	if scanVerbose {
		builder = builder.WithVerbose(os.Stderr)
	}
	opts, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build scan options: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		slog.Warn("received interrupt, canceling scan")
		cancel()
	}()

	slog.Info("scan starting", "root", root, "workers", opts.Perf.Workers)
	start := time.Now()

	result, err := hyperdu.Scan(ctx, root, opts)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Warn("scan canceled", "elapsed", elapsed)
			return nil
		}
		slog.Error("scan finished with errors", "err", err, "elapsed", elapsed)
	} else {
		slog.Info("scan completed", "elapsed", elapsed, "directories", len(result))
	}

	printSummary(root, result, scanTop)
	return err
}

func parseCompatMode(s string) (hyperdu.CompatMode, error) {
	switch s {
	case "hyperdu":
		return hyperdu.CompatHyperDU, nil
	case "gnu-basic":
		return hyperdu.CompatGnuBasic, nil
	case "gnu-strict":
		return hyperdu.CompatGnuStrict, nil
	case "posix-strict":
		return hyperdu.CompatPosixStrict, nil
	default:
		return 0, fmt.Errorf("invalid compat mode %q (expected hyperdu|gnu-basic|gnu-strict|posix-strict)", s)
	}
}

func printSummary(root string, result hyperdu.StatMap, top int) {
	total, ok := result[root]
	if ok {
		fmt.Printf("%s\n", root)
		fmt.Printf("  apparent size: %s\n", humanize.Bytes(total.Logical))
		fmt.Printf("  disk usage:    %s\n", humanize.Bytes(total.Physical))
		fmt.Printf("  files:         %d\n", total.Files)
	}
	if top == 0 {
		return
	}

	rows := make([]summaryRow, 0, len(result))
	for path, stat := range result {
		if path == root {
			continue
		}
		rows = append(rows, summaryRow{path, stat})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].stat.Physical > rows[j].stat.Physical })
	if top > 0 && len(rows) > top {
		rows = rows[:top]
	}

	fmt.Printf("\ntop %d subdirectories by disk usage:\n", len(rows))
	for _, r := range rows {
		fmt.Printf("  %-12s %s\n", humanize.Bytes(r.stat.Physical), r.path)
	}
}

type summaryRow struct {
	path string
	stat hyperdu.Stat
}
