// Package job defines the unit of scheduling work: one directory to expand.
package job

// Job is one directory awaiting expansion by a worker. Resume carries an
// opaque backend cookie (a getdents64 d_off on Linux, or an index into
// the sorted entry list in the generic Unix backend) when a directory's expansion was interrupted and re-queued rather
// than completed in one pass.
type Job struct {
	Dir    string
	Depth  uint32
	Resume *uint64
}

// High reports whether this job should be serviced ahead of normal-priority
// work — resumed jobs jump the queue so in-progress directories drain before
// new ones are opened, bounding the number of concurrently open directory
// file descriptors.
func (j Job) High() bool {
	return j.Resume != nil
}
