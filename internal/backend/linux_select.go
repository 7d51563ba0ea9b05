//go:build linux

package backend

// New returns the Linux backend: the io_uring STATX pipeline when
// useURing is requested and the kernel supports it, falling back to the
// synchronous getdents64+statx backend otherwise — a kernel too old for
// io_uring_setup (pre-5.1) is not a hard failure, since §4.3's plain
// getdents64 path covers exactly the same ground, just without batching.
func New(useURing bool, initialSQDepth uint32) Backend {
	if !useURing {
		return linuxFast{}
	}
	ur, err := newLinuxURing(initialSQDepth)
	if err != nil {
		return linuxFast{}
	}
	return ur
}
