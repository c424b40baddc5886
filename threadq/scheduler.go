package threadq

// SchedulerInstance describes one scheduler instance of a multiprocessor
// configuration. The queue core consumes only the instance index (to pick
// the per-instance priority sub-queue) and the numeric priority mapping the
// scheduler layer assigns to threads; the ordering policy itself lives in
// the scheduler layer.
type SchedulerInstance struct {
	Index uint32
	Name  string
}

// InstanceWaiters reports how many threads of one scheduler instance are
// enqueued, for per-instance wakeup budgeting in the scheduler layer.
// Meaningful for priority disciplines, where every instance has its own
// sub-queue; FIFO queues keep no per-instance accounting and report zero.
func (tq *ThreadQueue) InstanceWaiters(inst SchedulerInstance) int {
	if inst.Index >= MaxSchedulers {
		fatal("scheduler index out of range")
	}
	q := &tq.Queue
	q.Acquire()
	n := 0
	if q.heads != nil {
		n = q.heads.priority[inst.Index].Len()
	}
	q.Release()
	return n
}

// JobOperations is the sporadic-server style release/cancel interface the
// scheduler layer may provide. Schedulers without deadline handling use the
// defaults below.
type JobOperations interface {
	// ReleaseJob releases a job with the given deadline and returns the
	// thread whose priority must be updated as a result, or nil.
	ReleaseJob(t *Thread, deadline uint64) *Thread

	// CancelJob cancels the current job and returns the thread whose
	// priority must be updated as a result, or nil.
	CancelJob(t *Thread) *Thread
}

// DefaultJobOperations is the pass-through for schedulers without deadline
// support: no thread is ever affected.
type DefaultJobOperations struct{}

func (DefaultJobOperations) ReleaseJob(t *Thread, deadline uint64) *Thread {
	return nil
}

func (DefaultJobOperations) CancelJob(t *Thread) *Thread {
	return nil
}
