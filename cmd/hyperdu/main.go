package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hyperdu",
	Short: "An ultra-fast concurrent disk-usage scanning engine",
	Long: `hyperdu walks a directory tree with a work-stealing scheduler and a
platform-specific fast-stat backend (getdents64+statx and io_uring on
Linux, FindFirstFile on Windows), returning per-directory logical and
physical size totals.`,
}

func init() {
	rootCmd.Version = version
	rootCmd.AddCommand(scanCmd)
}
