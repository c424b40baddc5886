package threadq

import (
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/johan718/rtems/chain"
	"github.com/johan718/rtems/debug"
	"github.com/johan718/rtems/ticketlock"
)

// MaxSchedulers is the configured scheduler-instance capacity. Every Heads
// block carries one priority sub-queue per instance, sized here once so no
// per-block allocation arithmetic is ever needed.
const MaxSchedulers = 8

// PriorityMax is the largest valid priority value. Numerically lower values
// are more urgent.
const PriorityMax = 255

func fatal(msg string) {
	debug.Fatal("threadq", msg)
}

// Wait flag states for the blocking transition. Exactly one suspension
// point exists: the intendToBlock→blocked transition. An actor that wins
// the race instead drives intendToBlock→readyAgain and the thread never
// sleeps.
const (
	waitReady uint32 = iota
	waitIntendToBlock
	waitBlocked
	waitReadyAgain
)

// waitInfo is the per-thread blocking state shared with remote processors.
type waitInfo struct {
	// lock protects queue and operations against concurrent path
	// traversal and extraction.
	lock ticketlock.Lock

	// node links the thread into its queue's waiting set: directly on
	// the FIFO chain under FIFO discipline, on a priority level chain
	// under priority discipline. Only one use is active at a time.
	node chain.Node

	// queuePriority is the priority the thread was inserted with, needed
	// to find its level chain again on extract.
	queuePriority uint64

	queue      *Queue
	operations Operations

	flags atomic.Uint32

	// tranquilizer is closed while the thread's wait state may still be
	// touched by a remote actor; the woken thread waits on it before
	// returning so its stack context is never reused early.
	tranquilizer Gate

	// timer is the armed timeout watchdog, stopped by whichever side
	// finishes the wait first.
	timer *time.Timer

	// generation counts blocking calls. A timeout watchdog captures the
	// value it was armed for and stands down when a later wait has
	// superseded it.
	generation atomic.Uint64

	// link is the storage for the ownership edge followed through this
	// thread during a path walk. The walk holds this thread's wait lock
	// for as long as the link is on its path, so use is exclusive.
	link Link

	status Status
}

// Thread is the control surface this core needs from a thread. Lifetime is
// owned entirely by the higher object layer; the queue core keeps only
// non-owning references. Each thread statically owns one spare Heads block
// at all times except while that block is the one in service on a queue.
type Thread struct {
	name           string
	proxy          bool
	schedulerIndex uint32

	// realPriority is the thread's own priority; currentPriority is the
	// effective one, possibly boosted by inheritance.
	realPriority    atomic.Uint64
	currentPriority atomic.Uint64

	spareHeads *Heads
	wake       chan struct{}

	wait waitInfo
}

// NewThread creates a thread control with its statically owned spare Heads
// block. This is the only allocation the queue core ever depends on, and it
// happens at thread creation, never while anything is blocked.
func NewThread(name string, priority uint64, schedulerIndex uint32) *Thread {
	if priority > PriorityMax {
		fatal("thread priority out of domain")
	}
	if schedulerIndex >= MaxSchedulers {
		fatal("scheduler index out of range")
	}
	t := &Thread{
		name:           name,
		schedulerIndex: schedulerIndex,
		spareHeads:     newHeads(),
		wake:           make(chan struct{}, 1),
	}
	t.realPriority.Store(priority)
	t.currentPriority.Store(priority)
	t.wait.node.SetData(unsafe.Pointer(t))
	t.wait.tranquilizer.Open()
	return t
}

// NewProxy creates the thread control for a remote-node proxy. A proxy
// occupies queue slots like a local thread but is never parked locally;
// dequeueing one goes through the context's MP callout instead.
func NewProxy(name string, priority uint64, schedulerIndex uint32) *Thread {
	t := NewThread(name, priority, schedulerIndex)
	t.proxy = true
	return t
}

// Name returns the thread name.
func (t *Thread) Name() string { return t.name }

// IsProxy reports whether t represents a remote-node entity.
func (t *Thread) IsProxy() bool { return t.proxy }

// SchedulerIndex returns the owning scheduler instance index.
func (t *Thread) SchedulerIndex() uint32 { return t.schedulerIndex }

// CurrentPriority returns the effective priority, including any boost
// inherited from higher-priority waiters.
//
//go:nosplit
//go:inline
func (t *Thread) CurrentPriority() uint64 {
	return t.currentPriority.Load()
}

// RealPriority returns the thread's own priority, ignoring inheritance.
//
//go:nosplit
//go:inline
func (t *Thread) RealPriority() uint64 {
	return t.realPriority.Load()
}

// WaitStatus returns the outcome of the most recent blocking call.
func (t *Thread) WaitStatus() Status {
	return t.wait.status
}

// park suspends the calling thread until an actor resumes it. Called only
// after winning the intendToBlock→blocked transition.
func (t *Thread) park() {
	<-t.wake
}

// unpark resumes a parked thread. The wait-flag protocol guarantees at
// most one pending wake per blocking cycle, so the buffered send never
// blocks the actor.
//
//go:nosplit
//go:inline
func (t *Thread) unpark() {
	t.wake <- struct{}{}
}

// waitClaim records the queue the thread is transitioning onto and closes
// the tranquilizer. Caller holds the queue lock.
func (t *Thread) waitClaim(q *Queue, ops Operations) {
	t.wait.lock.Acquire()
	t.wait.queue = q
	t.wait.operations = ops
	t.wait.lock.Release()
	t.wait.tranquilizer.Close()
}

// waitRestore clears the wait association after dequeue. Caller holds the
// queue lock.
func (t *Thread) waitRestore() {
	t.wait.lock.Acquire()
	t.wait.queue = nil
	t.wait.operations = nil
	t.wait.lock.Release()
}

// waitTranquilize waits until any remote actor has finished with the
// thread's wait state. Last step of every blocking call.
//
//go:nosplit
func (t *Thread) waitTranquilize() {
	t.wait.tranquilizer.Wait()
}

//go:nosplit
//go:inline
//go:registerparams
func threadFromNode(n *chain.Node) *Thread {
	return (*Thread)(n.Data())
}
