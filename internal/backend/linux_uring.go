//go:build linux

package backend

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/michaelscutari/hyperdu/internal/job"
	"github.com/michaelscutari/hyperdu/internal/statmap"
)

// linuxURing is the io_uring STATX pipeline from spec.md §4.4: entries are
// discovered with the same getdents64 loop as linuxFast, but statx calls
// are batched as SQEs and harvested as CQEs instead of issued
// synchronously one at a time, so the kernel can service many lookups per
// io_uring_enter trap.
//
// No third-party io_uring wrapper is used: none of the retrieved example
// repos imports one, and this repo's adaptive window-growth logic
// (growWindowHint) needs direct access to per-submission SQE failure counts
// that boxed wrappers don't expose, so the ring is built directly on
// golang.org/x/sys/unix's raw IORING_* constants and a manual mmap of the
// submission/completion queues — the same approach real Go io_uring
// libraries use internally.
type linuxURing struct {
	ring *uringRing
}

// newLinuxURing sets up a ring sized for sqDepth in-flight statx requests.
func newLinuxURing(sqDepth uint32) (*linuxURing, error) {
	ring, err := newURingRing(sqDepth)
	if err != nil {
		return nil, err
	}
	return &linuxURing{ring: ring}, nil
}

// Close releases the ring's file descriptor and mappings. Safe to call
// once, after the backend will no longer be used.
func (lr *linuxURing) Close() {
	lr.ring.close()
}

const (
	ioringOpStatx = 21

	sqeSize = 64
	cqeSize = 16

	consecSaturatedGrowThreshold = 3
)

// uringRing owns one io_uring instance: the fd plus the mmap'd submission
// and completion queues.
type uringRing struct {
	fd int

	sqRing   []byte
	cqRing   []byte
	sqes     []byte
	sqEntries uint32
	cqEntries uint32

	sqHead, sqTail, sqMask *uint32
	sqArrayOff             uint32
	cqHead, cqTail, cqMask *uint32
	cqesOff                uint32
}

// newURingRing sets up a ring with the given submission queue depth.
func newURingRing(depth uint32) (*uringRing, error) {
	params := unix.IOUringParams{}
	fd, _, errno := unix.Syscall(unix.SYS_IO_URING_SETUP, uintptr(depth), uintptr(unsafe.Pointer(&params)), 0)
	if errno != 0 {
		return nil, fmt.Errorf("io_uring_setup: %w", errno)
	}

	sqRingSize := params.Sq_off.Array + params.Sq_entries*4
	cqRingSize := params.Cq_off.Cqes + params.Cq_entries*cqeSize

	sqRing, err := unix.Mmap(int(fd), unix.IORING_OFF_SQ_RING, int(sqRingSize),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Close(int(fd))
		return nil, fmt.Errorf("mmap sq ring: %w", err)
	}

	cqRing := sqRing
	sameRing := params.Features&unix.IORING_FEAT_SINGLE_MMAP != 0
	if !sameRing {
		cqRing, err = unix.Mmap(int(fd), unix.IORING_OFF_CQ_RING, int(cqRingSize),
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
		if err != nil {
			unix.Munmap(sqRing)
			unix.Close(int(fd))
			return nil, fmt.Errorf("mmap cq ring: %w", err)
		}
	}

	sqes, err := unix.Mmap(int(fd), unix.IORING_OFF_SQES, int(params.Sq_entries)*sqeSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Munmap(sqRing)
		if !sameRing {
			unix.Munmap(cqRing)
		}
		unix.Close(int(fd))
		return nil, fmt.Errorf("mmap sqes: %w", err)
	}

	r := &uringRing{
		fd: int(fd), sqRing: sqRing, cqRing: cqRing, sqes: sqes,
		sqEntries: params.Sq_entries, cqEntries: params.Cq_entries,
	}
	r.sqHead = ptrAt(sqRing, params.Sq_off.Head)
	r.sqTail = ptrAt(sqRing, params.Sq_off.Tail)
	r.sqMask = ptrAt(sqRing, params.Sq_off.Ring_mask)
	r.sqArrayOff = params.Sq_off.Array
	r.cqHead = ptrAt(cqRing, params.Cq_off.Head)
	r.cqTail = ptrAt(cqRing, params.Cq_off.Tail)
	r.cqMask = ptrAt(cqRing, params.Cq_off.Ring_mask)
	r.cqesOff = params.Cq_off.Cqes
	return r, nil
}

func ptrAt(buf []byte, off uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(&buf[off]))
}

func (r *uringRing) close() {
	unix.Munmap(r.sqes)
	unix.Munmap(r.sqRing)
	if &r.cqRing[0] != &r.sqRing[0] {
		unix.Munmap(r.cqRing)
	}
	unix.Close(r.fd)
}

// statxRequest is one in-flight lookup. cPath is a NUL-terminated copy of
// name kept alive for the submission's lifetime, since the kernel reads it
// asynchronously via the raw pointer placed in the SQE's addr field; stat
// is written to directly by the kernel via the SQE's addr2 field.
type statxRequest struct {
	name  string
	cPath []byte
	stat  unix.Statx_t
}

func (lr *linuxURing) ExpandDir(ctx *Context, j job.Job, out statmap.Map, enqueueDir func(job.Job), recordErr func(string, error)) error {
	fd, err := unix.Open(j.Dir, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %q: %w", j.Dir, err)
	}
	defer unix.Close(fd)

	if j.Resume != nil {
		if _, err := unix.Seek(fd, int64(*j.Resume), unix.SEEK_SET); err != nil {
			return fmt.Errorf("resume seek %q: %w", j.Dir, err)
		}
	}

	// Seed a zero Stat for j.Dir so directories with no direct files of
	// their own still appear as a rollup key (internal/rollup.Rollup
	// folds children up through whatever ancestor entries already
	// exist; a directory never visited here would never get one).
	out.AddTo(j.Dir, statmap.Stat{})

	mask := buildStatxMask(ctx.Cfg)
	flags := unix.AT_STATX_DONT_SYNC
	if ctx.Cfg.NoAutomount {
		flags |= unix.AT_NO_AUTOMOUNT
	}
	if !ctx.Cfg.FollowSymlinks {
		flags |= unix.AT_SYMLINK_NOFOLLOW
	}

	names, dtypes, offs, err := readAllDirents(fd, j.Dir)
	if err != nil {
		return err
	}

	yieldEvery := ctx.Knobs.DirYieldEvery.Load()
	consecNoFail := 0
	i := 0
	for i < len(names) {
		// Large-directory fairness (spec.md §4.3/§4.9): once this call has
		// consumed dir_yield_every entries, save the d_off of the entry
		// just processed (offs[names[i-1]] — its d_off points to where the
		// next getdents64 read would resume; offs[names[i]] would point
		// past entry i and skip it entirely) as a resume cookie and hand
		// the continuation to the scheduler as a high-priority job instead
		// of draining the rest of a huge directory in one go.
		if yieldEvery != 0 && i != 0 && uint64(i) >= yieldEvery {
			cookie := uint64(offs[names[i-1]])
			enqueueDir(job.Job{Dir: j.Dir, Depth: j.Depth, Resume: &cookie})
			return nil
		}

		batch := int(ctx.Knobs.URingBatch.Load())
		if batch <= 0 {
			batch = 64
		}
		end := i + batch
		if end > len(names) {
			end = len(names)
		}
		slice := names[i:end]

		// Apply the exclude pipeline and the approximate-mode fast path
		// the same way linuxFast does, so only the remaining names are
		// submitted as statx SQEs.
		toStat := make([]string, 0, len(slice))
		for _, name := range slice {
			checkPath := name
			if ctx.Filters.NeedsFullPath() {
				checkPath = filepath.Join(j.Dir, name)
			}
			if ctx.Filters.Excluded(name, checkPath) {
				continue
			}
			if ctx.Cfg.Approximate && ctx.Cfg.MinFileSize == 0 && dtypes[name] == dtReg {
				out.AddTo(j.Dir, statmap.Stat{Logical: 4096, Physical: 4096, Files: 1})
				ctx.Knobs.TotalFiles.Add(1)
				continue
			}
			toStat = append(toStat, name)
		}

		requests, fails := lr.submitAndHarvest(fd, toStat, mask, flags)
		ctx.Knobs.URingSQEFail.Add(uint64(fails))
		ctx.Knobs.URingSQEEnq.Add(uint64(len(toStat)))
		ctx.Knobs.URingCQEComp.Add(uint64(len(requests)))

		if fails > 0 || len(requests) < len(toStat) {
			// Some statx completions failed or never arrived: process this
			// batch with linuxFast's synchronous per-entry path instead.
			for _, name := range toStat {
				processFastEntry(ctx, j, fd, name, dtypes[name], mask, flags, out, enqueueDir, recordErr)
			}
		} else {
			for _, req := range requests {
				handleStatxResult(ctx, j, req, dtypes[req.name], out, enqueueDir, recordErr)
			}
		}

		if fails == 0 {
			consecNoFail++
			if consecNoFail >= consecSaturatedGrowThreshold {
				lr.growWindowHint(ctx)
				consecNoFail = 0
			}
		} else {
			consecNoFail = 0
		}

		i = end
	}
	return nil
}

// growWindowHint grows the submission window (uring_batch) by one entry
// after several consecutive failure-free batches, capped at
// uring_sq_depth (the ring's allocated capacity) — the window-growth rule
// in linux_uring_impl.rs: grow by 1 up to sq_depth, reset on any failure.
// Reading URingSQDepth here is what makes the tuner's sq_depth knob (and
// any future ring-resize) observable; previously this wrote to the wrong
// counter entirely and had no effect on batching.
func (lr *linuxURing) growWindowHint(ctx *Context) {
	cur := ctx.Knobs.URingBatch.Load()
	cap := ctx.Knobs.URingSQDepth.Load()
	if cap == 0 || cur >= cap {
		return
	}
	ctx.Knobs.URingBatch.Store(cur + 1)
}

// submitAndHarvest issues one statx SQE per name, submits the batch, and
// blocks for all matching CQEs (with a liveness timeout fallback so a
// stuck kernel ring can never wedge the worker forever).
func (lr *linuxURing) submitAndHarvest(dirfd int, names []string, mask uint32, flags int) ([]statxRequest, int) {
	reqs := make([]statxRequest, len(names))
	for idx, name := range names {
		cPath := make([]byte, len(name)+1)
		copy(cPath, name)
		reqs[idx] = statxRequest{name: name, cPath: cPath}
	}

	submitted := lr.submitBatch(dirfd, reqs, mask, flags)
	start := time.Now()
	fails := 0
	completed := 0
	const livenessTimeout = 2 * time.Second

	for completed < submitted {
		n := lr.harvestCQEs(reqs, &fails)
		completed += n
		if completed >= submitted {
			break
		}
		if time.Since(start) > livenessTimeout {
			// Kernel ring produced no completions within the liveness
			// window: fall back to treating the remainder as failed so
			// the caller can retry them synchronously via linuxFast.
			fails += submitted - completed
			break
		}
		if _, _, errno := unix.Syscall6(unix.SYS_IO_URING_ENTER, uintptr(lr.ring.fd), 0, uintptr(submitted-completed), unix.IORING_ENTER_GETEVENTS, 0, 0); errno != 0 {
			break
		}
	}
	return reqs[:completed], fails
}

func (lr *linuxURing) submitBatch(dirfd int, reqs []statxRequest, mask uint32, flags int) int {
	r := lr.ring
	tail := atomic.LoadUint32(r.sqTail)
	mask32 := atomic.LoadUint32(r.sqMask)
	n := 0
	for idx := range reqs {
		if uint32(idx) >= r.sqEntries {
			break
		}
		slot := (tail + uint32(idx)) & mask32
		sqe := r.sqes[slot*sqeSize : slot*sqeSize+sqeSize]
		writeStatxSQE(sqe, dirfd, reqs[idx].cPath, &reqs[idx].stat, uint32(flags), mask, uint64(idx))
		*ptrAt(r.sqRing, r.sqArrayOff+uint32(idx)*4) = slot
		n++
	}
	atomic.StoreUint32(r.sqTail, tail+uint32(n))
	unix.Syscall6(unix.SYS_IO_URING_ENTER, uintptr(r.fd), uintptr(n), 0, unix.IORING_ENTER_GETEVENTS, 0, 0)
	return n
}

func (lr *linuxURing) harvestCQEs(reqs []statxRequest, fails *int) int {
	r := lr.ring
	head := atomic.LoadUint32(r.cqHead)
	tail := atomic.LoadUint32(r.cqTail)
	mask := atomic.LoadUint32(r.cqMask)
	n := 0
	for head != tail {
		slot := head & mask
		userData, res := readCQE(r.cqRing, r.cqesOff, slot)
		idx := int(userData)
		if idx >= 0 && idx < len(reqs) {
			if res < 0 {
				*fails++
			}
		}
		head++
		n++
	}
	atomic.StoreUint32(r.cqHead, head)
	return n
}

// writeStatxSQE fills one 64-byte submission queue entry for
// IORING_OP_STATX, per the kernel's struct io_uring_sqe layout: opcode(1)
// flags(1) ioprio(2) fd(4) [off|addr2](8) addr(8) len(4) statx_flags(4)
// user_data(8) ... addr carries the path pointer, addr2 the output
// struct statx buffer, and len the statx mask (STATX_OP_STATX reuses the
// generic "len" slot for it).
func writeStatxSQE(sqe []byte, dirfd int, cPath []byte, out *unix.Statx_t, flags, mask uint32, userData uint64) {
	for i := range sqe {
		sqe[i] = 0
	}
	sqe[0] = ioringOpStatx
	binary.LittleEndian.PutUint32(sqe[4:], uint32(dirfd))
	binary.LittleEndian.PutUint64(sqe[8:], uint64(uintptr(unsafe.Pointer(out))))
	binary.LittleEndian.PutUint64(sqe[16:], uint64(uintptr(unsafe.Pointer(&cPath[0]))))
	binary.LittleEndian.PutUint32(sqe[24:], mask)
	binary.LittleEndian.PutUint32(sqe[28:], flags)
	binary.LittleEndian.PutUint64(sqe[32:], userData)
}

func readCQE(buf []byte, cqesOff, slot uint32) (userData uint64, res int32) {
	off := cqesOff + slot*cqeSize
	if int(off)+cqeSize > len(buf) {
		return 0, -1
	}
	userData = binary.LittleEndian.Uint64(buf[off:])
	res = int32(binary.LittleEndian.Uint32(buf[off+8:]))
	return
}

func handleStatxResult(ctx *Context, j job.Job, req statxRequest, dtype byte, out statmap.Map, enqueueDir func(job.Job), recordErr func(string, error)) {
	stx := req.stat
	dev := devFromStatx(&stx)
	ino := stx.Ino
	isDir := dtype == dtDir || (dtype == dtUnknown && stx.Mode&unix.S_IFMT == unix.S_IFDIR)
	isSymlink := dtype == dtLnk || (dtype == dtUnknown && stx.Mode&unix.S_IFMT == unix.S_IFLNK)

	if isDir {
		if ctx.Cfg.OneFileSystem && dev != ctx.RootDev {
			return
		}
		if ctx.Visited.CheckAndInsert(dev, ino) {
			return
		}
		if ctx.Cfg.MaxDepth != 0 && j.Depth >= ctx.Cfg.MaxDepth {
			return // depth budget exhausted: don't recurse any further
		}
		enqueueDir(job.Job{Dir: filepath.Join(j.Dir, req.name), Depth: j.Depth + 1})
		return
	}
	if isSymlink && !ctx.Cfg.FollowSymlinks {
		return
	}
	if stx.Size < ctx.Cfg.MinFileSize {
		return
	}
	if !ctx.Cfg.CountHardlinks && stx.Nlink > 1 {
		if ctx.Dedup.CheckAndInsert(dev, ino) {
			return
		}
	}
	physical := uint64(0)
	if ctx.Cfg.ComputePhysical {
		physical = stx.Blocks * 512
	}
	out.AddTo(j.Dir, statmap.Stat{Logical: stx.Size, Physical: physical, Files: 1})
	ctx.Knobs.TotalFiles.Add(1)
}

// readAllDirents drains getdents64 into plain name/type slices up front,
// so the uring pipeline can pick arbitrary-size batches from it instead of
// interleaving directory reads with statx submission. offs records each
// entry's d_off (the kernel-defined seek cookie for the entry that
// follows it), used to build a resume cookie when a directory is too
// large to drain in one ExpandDir call.
func readAllDirents(fd int, dir string) (names []string, dtypes map[string]byte, offs map[string]int64, err error) {
	dtypes = make(map[string]byte)
	offs = make(map[string]int64)
	buf := make([]byte, getdentsBufSize)
	for {
		n, gerr := unix.Getdents(fd, buf)
		if gerr != nil {
			return nil, nil, nil, fmt.Errorf("getdents64 %q: %w", dir, gerr)
		}
		if n <= 0 {
			break
		}
		for off := 0; off < n; {
			reclen := direntReclen(buf, off)
			if reclen <= 0 {
				break
			}
			name := direntName(buf, off, reclen)
			dtype := direntType(buf, off)
			doff := direntOffField(buf, off)
			off += reclen
			if name == "." || name == ".." {
				continue
			}
			names = append(names, name)
			dtypes[name] = dtype
			offs[name] = doff
		}
	}
	return names, dtypes, offs, nil
}
