// ============================================================================
// THREADQ: BLOCKING/WAKEUP CORE FOR KERNEL SYNCHRONIZATION OBJECTS
// ============================================================================
//
// Every synchronization primitive built on this core wraps one Queue plus a
// discipline-selected Operations table. Blocking a thread acquires the
// queue lock, runs the discipline enqueue (which may walk the ownership
// path for priority propagation and deadlock detection), registers a
// hand-off gate, and suspends only after the gate protocol has made the
// transition visible to other processors. Waking hands the queue's
// ownership to the discipline-selected first waiter.
//
// Concurrency model:
//   - The queue lock (ticket lock on SMP, no-op on UP) is the only lock
//     protecting queue and heads state
//   - The pending-operations gate chain serializes actors against
//     in-flight blocking transitions, FIFO-fair, without nested lock
//     acquisition
//   - The link registry has its own leaf lock; ownership paths take owner
//     wait locks strictly owner→target and release them strictly in
//     reverse
//
// Allocation model:
//   - The blocking path never allocates: waiting sets live in the Heads
//     blocks donated by the waiters themselves
package threadq

import (
	"time"

	"github.com/johan718/rtems/ticketlock"
)

// Discipline selects the waiter ordering policy of a queue at construction
// time. It is immutable thereafter.
type Discipline uint32

const (
	// DisciplineFIFO orders strictly by arrival; no ownership.
	DisciplineFIFO Discipline = iota

	// DisciplinePriority orders by numeric priority, FIFO at ties; no
	// inheritance.
	DisciplinePriority

	// DisciplinePriorityInherit adds ownership, priority propagation
	// along ownership chains and deadlock detection.
	DisciplinePriorityInherit
)

func (d Discipline) String() string {
	switch d {
	case DisciplineFIFO:
		return "fifo"
	case DisciplinePriority:
		return "priority"
	case DisciplinePriorityInherit:
		return "priority-inherit"
	}
	return "unknown"
}

// ThreadQueue is the control block a synchronization object embeds: the
// queue itself plus its immutable discipline table.
type ThreadQueue struct {
	Queue Queue

	ops       Operations
	ownership bool

	// objectID identifies the containing object for cross-node unblock
	// callouts.
	objectID uint32
}

// New constructs an empty thread queue with the given discipline. SMP
// configurations get the ticket lock; pass uniprocessor=true where
// interrupt disable already serializes queue access.
func New(d Discipline, name string) *ThreadQueue {
	return newThreadQueue(d, name, ticketlock.New())
}

// NewUniprocessor constructs a queue whose lock is the no-op Null lock.
func NewUniprocessor(d Discipline, name string) *ThreadQueue {
	return newThreadQueue(d, name, ticketlock.Null{})
}

func newThreadQueue(d Discipline, name string, lock ticketlock.Locker) *ThreadQueue {
	tq := &ThreadQueue{}
	tq.Queue.initialize(name, lock)
	switch d {
	case DisciplineFIFO:
		tq.ops = fifoOps{}
	case DisciplinePriority:
		tq.ops = priorityOps{}
	case DisciplinePriorityInherit:
		tq.ops = priorityInheritOps{}
		tq.ownership = true
	default:
		fatal("unknown discipline")
	}
	return tq
}

// SetObjectID records the containing object's identifier for MP callouts.
func (tq *ThreadQueue) SetObjectID(id uint32) {
	tq.objectID = id
}

// SetOwner installs the controlling thread, e.g. after an uncontended
// mutex acquire by the object layer.
func (tq *ThreadQueue) SetOwner(t *Thread) {
	tq.Queue.Acquire()
	tq.Queue.setOwner(t)
	tq.Queue.Release()
}

// Owner returns the controlling thread, or nil.
func (tq *ThreadQueue) Owner() *Thread {
	return tq.Queue.Owner()
}

// LockStats snapshots the queue lock contention counters. Zero-valued on
// uniprocessor queues.
func (tq *ThreadQueue) LockStats() ticketlock.Stats {
	if l, ok := tq.Queue.lock.(*ticketlock.Lock); ok {
		return l.Snapshot()
	}
	return ticketlock.Stats{}
}

// Occupancy returns the number of enqueued threads. heads is nil exactly
// when this is zero.
func (tq *ThreadQueue) Occupancy() int {
	q := &tq.Queue
	q.Acquire()
	n := 0
	if q.heads != nil {
		n = q.heads.waiters
	}
	q.Release()
	return n
}

// Enqueue blocks the calling thread on the queue until a surrender, an
// extraction, a timeout or a detected deadlock. The context supplies the
// timeout, the deadlock callout for ownership-bearing objects and, on
// multiprocessor configurations, the cross-node unblock callout.
func (tq *ThreadQueue) Enqueue(ctx *Context, t *Thread) Status {
	q := &tq.Queue
	q.Acquire()

	if ctx.ExpectedDisableLevel != 0 &&
		DispatchDisableLevel() != ctx.ExpectedDisableLevel {
		fatal("dispatch disable level mismatch at blocking point")
	}
	if tq.ownership && ctx.Deadlock == nil {
		fatal("ownership discipline requires a deadlock callout")
	}

	// Publish the wait intention before walking the ownership path, so a
	// concurrent walk observes this edge too and a cycle forming across
	// racing enqueues is caught by at least one of the walks involved.
	t.waitClaim(q, tq.ops)
	generation := t.wait.generation.Add(1)

	var path Path
	path.initialize()
	if !tq.ops.Enqueue(q, t, &path) {
		// Deadlock: the thread was never inserted, so occupancy and
		// heads donation are untouched. Unwind the partially acquired
		// path in reverse order, unclaim, report, resume immediately.
		pathRelease(&path)
		t.waitRestore()
		t.wait.tranquilizer.Open()
		q.Release()
		t.wait.status = StatusDeadlock
		ctx.Deadlock(t)
		return StatusDeadlock
	}
	pathRelease(&path)

	t.wait.status = StatusSuccessful
	t.wait.flags.Store(waitIntendToBlock)
	ctx.Wait.Gate.Add(&q.requests)
	ctx.Wait.Queue = q
	q.Release()

	// Out of the critical section: apply the priority propagation the
	// discipline reported, then arm the timeout.
	if path.update != nil {
		inheritPriority(path.update, path.updateTo)
	}
	var timer *time.Timer
	switch ctx.TimeoutDiscipline {
	case TimeoutRelative:
		timer = time.AfterFunc(ctx.Interval, func() {
			tq.timeoutExtract(t, generation)
		})
	case TimeoutAbsolute:
		timer = time.AfterFunc(time.Until(ctx.Deadline), func() {
			tq.timeoutExtract(t, generation)
		})
	}
	t.wait.timer = timer

	// Commit point: the gate opens, making the registration visible to
	// serialized actors, then the thread suspends unless an actor
	// already intervened.
	ctx.Wait.Gate.Open()
	if t.proxy {
		// A proxy never sleeps locally; the outcome reaches the remote
		// node through the MP callout of the dequeueing actor.
		ctx.Wait.Queue = nil
		return StatusSuccessful
	}
	if t.wait.flags.CompareAndSwap(waitIntendToBlock, waitBlocked) {
		t.park()
	}
	if timer != nil {
		timer.Stop()
	}
	t.waitTranquilize()
	ctx.Wait.Queue = nil
	return t.wait.status
}

// Surrender dequeues the discipline's first waiter, installs it as the new
// owner where ownership applies, resumes it and returns it. Returns nil if
// the queue was empty; ownership is then cleared.
func (tq *ThreadQueue) Surrender(ctx *Context) *Thread {
	q := &tq.Queue
	q.Acquire()
	q.finishPending()

	previous := q.Owner()
	if q.heads == nil {
		if tq.ownership {
			q.setOwner(nil)
			restoreRealPriority(previous)
		}
		q.Release()
		return nil
	}

	first := tq.ops.Surrender(q, q.heads, previous)
	if tq.ownership {
		q.setOwner(first)
		restoreRealPriority(previous)
	}
	tq.resumeLocked(ctx, first, StatusSuccessful)
	q.Release()
	return first
}

// Extract removes a specific thread, used for explicit release, deletion
// or requeueing. Idempotent: a thread no longer enqueued here is simply
// not found and the call reports false.
func (tq *ThreadQueue) Extract(ctx *Context, t *Thread) bool {
	return tq.extractWithStatus(ctx, t, StatusUnavailable)
}

func (tq *ThreadQueue) extractWithStatus(ctx *Context, t *Thread, s Status) bool {
	q := &tq.Queue
	q.Acquire()
	q.finishPending()
	if t.wait.queue != q {
		q.Release()
		return false
	}
	tq.ops.Extract(q, t)
	tq.resumeLocked(ctx, t, s)
	q.Release()
	return true
}

// timeoutExtract is the watchdog action: it removes t only if the wait it
// was armed for is still the current one. A watchdog that lost its race to
// a surrender and fired anyway must not resolve a later wait of the same
// thread on the same queue.
func (tq *ThreadQueue) timeoutExtract(t *Thread, generation uint64) {
	q := &tq.Queue
	q.Acquire()
	q.finishPending()
	if t.wait.queue != q || t.wait.generation.Load() != generation {
		q.Release()
		return
	}
	tq.ops.Extract(q, t)
	tq.resumeLocked(nil, t, StatusTimeout)
	q.Release()
}

// Flush extracts and resumes every waiter, oldest first per discipline.
// Used by object deletion. Returns the number of threads flushed.
func (tq *ThreadQueue) Flush(ctx *Context) int {
	q := &tq.Queue
	q.Acquire()
	q.finishPending()
	n := 0
	for q.heads != nil {
		t := tq.ops.First(q.heads)
		tq.ops.Extract(q, t)
		tq.resumeLocked(ctx, t, StatusUnavailable)
		n++
	}
	q.Release()
	return n
}

// First peeks at the discipline's first waiter without dequeueing, or nil.
func (tq *ThreadQueue) First() *Thread {
	q := &tq.Queue
	q.Acquire()
	var t *Thread
	if q.heads != nil {
		t = tq.ops.First(q.heads)
	}
	q.Release()
	return t
}

// PriorityChange notifies the queue that a waiting thread's effective
// priority changed, repositioning it per discipline. A no-op if the thread
// is no longer waiting here. The new value becomes the thread's real and
// current priority (external priority set, not inheritance).
func (tq *ThreadQueue) PriorityChange(t *Thread, newPriority uint64) {
	if newPriority > PriorityMax {
		fatal("thread priority out of domain")
	}
	q := &tq.Queue
	q.Acquire()
	q.finishPending()
	t.realPriority.Store(newPriority)
	t.currentPriority.Store(newPriority)
	if t.wait.queue == q {
		tq.ops.PriorityChange(q, t, newPriority)
	}
	q.Release()
}

// resumeLocked completes a dequeue: it clears the thread's wait
// association, publishes the outcome and drives the wait-flag hand-off.
// If the dequeued entity is a remote-node proxy the MP callout fires
// instead of a local unpark. Caller holds the queue lock.
func (tq *ThreadQueue) resumeLocked(ctx *Context, t *Thread, s Status) {
	t.wait.status = s
	t.waitRestore()
	if t.wait.timer != nil {
		t.wait.timer.Stop()
		t.wait.timer = nil
	}
	if t.proxy {
		t.wait.flags.Store(waitReadyAgain)
		t.wait.tranquilizer.Open()
		if ctx != nil && ctx.MP != nil {
			ctx.MP(t, tq.objectID)
		}
		return
	}
	if !t.wait.flags.CompareAndSwap(waitIntendToBlock, waitReadyAgain) {
		// The thread committed to suspend; wake it.
		t.wait.flags.Store(waitReadyAgain)
		t.unpark()
	}
	t.wait.tranquilizer.Open()
}

// inheritPriority propagates an inherited priority along the ownership
// chain: each boosted owner is repositioned in the queue it waits on, and
// the boost continues to that queue's owner. Chains longer than the path
// bound indicate corrupted state.
func inheritPriority(t *Thread, priority uint64) {
	depth := 0
	for t != nil {
		if depth > maxPathDepth {
			fatal("priority propagation exceeded path bound")
		}
		t.wait.lock.Acquire()
		if t.CurrentPriority() <= priority {
			t.wait.lock.Release()
			return
		}
		t.currentPriority.Store(priority)
		q := t.wait.queue
		ops := t.wait.operations
		t.wait.lock.Release()
		if q == nil {
			return
		}
		q.Acquire()
		var next *Thread
		if t.wait.queue == q {
			ops.PriorityChange(q, t, priority)
			owner := q.Owner()
			if owner != nil && owner.CurrentPriority() > priority {
				next = owner
			}
		}
		q.Release()
		t = next
		depth++
	}
}

// restoreRealPriority drops an inheritance boost when a thread gives up a
// queue. Recomputing across other still-held resources is the object
// layer's job.
func restoreRealPriority(t *Thread) {
	if t == nil {
		return
	}
	t.currentPriority.Store(t.RealPriority())
}
