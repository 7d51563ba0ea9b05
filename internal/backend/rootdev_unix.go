//go:build !windows

package backend

import (
	"fmt"
	"os"
	"syscall"
)

// RootDevice returns the device ID of path, used to seed Context.RootDev
// for OneFileSystem comparisons.
func RootDevice(path string) (uint64, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return 0, fmt.Errorf("lstat %q: %w", path, err)
	}
	sys, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, fmt.Errorf("unsupported stat_t for %q", path)
	}
	return uint64(sys.Dev), nil
}
