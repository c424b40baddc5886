package threadq

import (
	"sync/atomic"
	"unsafe"

	"github.com/johan718/rtems/chain"
	"github.com/johan718/rtems/priorityq"
	"github.com/johan718/rtems/ticketlock"
)

// Heads is the deferred-allocation backing store of one queue's waiting
// set. Each thread statically owns one spare Heads block; the first thread
// to enqueue on an otherwise idle queue donates its block to the queue,
// every later arrival contributes its block to the free chain instead, and
// every dequeued thread reclaims one block from the free chain. The free
// chain is never empty while waiters remain, because the queue itself keeps
// the donor's block until it goes idle, at which point the last thread
// takes that final block back. Donation and reclamation are serialized
// entirely by the queue lock, so no allocator and no allocator lock exist
// on the blocking path.
type Heads struct {
	// fifo is the discipline body: thread wait nodes under FIFO
	// discipline, active per-scheduler priority sub-queues under
	// priority discipline. The sub-queue FIFO preserves fairness across
	// scheduler instances at equal highest priority.
	fifo chain.Control

	// freeChain holds the spare Heads blocks contributed by waiters
	// after the first.
	freeChain chain.Control

	// freeNode links this block into another block's free chain while
	// this block's owner is enqueued but not the donor.
	freeNode chain.Node

	// waiters is the queue occupancy while this block is in service.
	waiters int

	// priority holds one sub-queue per scheduler instance. Unused
	// instances stay empty and cost nothing at runtime.
	priority [MaxSchedulers]priorityq.Queue
}

func newHeads() *Heads {
	h := &Heads{}
	h.freeNode.SetData(unsafe.Pointer(h))
	h.fifo.Initialize()
	h.freeChain.Initialize()
	for i := range h.priority {
		h.priority[i].Initialize()
	}
	return h
}

// reset prepares a block for service on a queue. The priority sub-queues
// are empty by invariant whenever a block is free, so only the chains need
// reinitialization.
//
//go:nosplit
//go:inline
func (h *Heads) reset() {
	h.fifo.Initialize()
	h.freeChain.Initialize()
	h.waiters = 0
}

//go:nosplit
//go:inline
//go:registerparams
func headsFromNode(n *chain.Node) *Heads {
	return (*Heads)(n.Data())
}

// queueSerial issues queue identities for the link registry. Serial 0 is
// reserved as the registry's empty-slot sentinel.
var queueSerial atomic.Uint32

// Queue is the lock-protected header identifying a set of blocked threads
// and, for ownership-bearing objects, an owner. heads is nil if and only if
// no thread is enqueued.
type Queue struct {
	lock  ticketlock.Locker
	heads *Heads
	owner atomic.Pointer[Thread]

	// serial identifies this queue in the global link registry.
	serial uint32
	name   string

	// requests is the pending-operations gate chain: one closed gate per
	// enqueue between waiting-set insertion and suspend commit.
	requests chain.Control
}

func (q *Queue) initialize(name string, lock ticketlock.Locker) {
	q.lock = lock
	q.name = name
	q.serial = queueSerial.Add(1)
	q.requests.Initialize()
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Acquire takes the queue lock. On multiprocessor configurations this is
// the ticket lock; on uniprocessor ones the Null lock.
//
//go:nosplit
//go:inline
func (q *Queue) Acquire() {
	q.lock.Acquire()
}

// Release drops the queue lock.
//
//go:nosplit
//go:inline
func (q *Queue) Release() {
	q.lock.Release()
}

// Owner returns the controlling thread, or nil. Meaningful only for
// ownership-bearing objects; FIFO-only objects never read it.
//
//go:nosplit
//go:inline
func (q *Queue) Owner() *Thread {
	return q.owner.Load()
}

func (q *Queue) setOwner(t *Thread) {
	q.owner.Store(t)
}

// finishPending waits, in registration order, for every in-flight blocking
// transition on this queue to reach its commit point, unlinking each opened
// gate. Caller holds the queue lock. Gate G3 can therefore never be
// processed before G2, nor G2 before G1.
func (q *Queue) finishPending() {
	for {
		n := q.requests.First()
		if n == nil {
			return
		}
		g := gateFromNode(n)
		g.Wait()
		chain.Extract(n)
	}
}

// claimHeads makes the waiting set storage available for enqueueing t,
// donating t's spare block to the queue or to the free chain. Caller holds
// the queue lock.
func (q *Queue) claimHeads(t *Thread) *Heads {
	spare := t.spareHeads
	if spare == nil {
		fatal("enqueue without a spare heads block")
	}
	t.spareHeads = nil
	heads := q.heads
	if heads == nil {
		spare.reset()
		q.heads = spare
		heads = spare
	} else {
		heads.freeChain.Append(&spare.freeNode)
	}
	heads.waiters++
	return heads
}

// releaseHeads hands a Heads block back to the dequeued thread t: the final
// donor block if the queue went idle, otherwise one block off the free
// chain. Caller holds the queue lock; the discipline has already removed t
// from the waiting set.
func (q *Queue) releaseHeads(t *Thread) {
	heads := q.heads
	heads.waiters--
	if heads.waiters == 0 {
		q.heads = nil
		t.spareHeads = heads
		return
	}
	n := heads.freeChain.PopFirst()
	if n == nil {
		fatal("free chain empty with waiters outstanding")
	}
	t.spareHeads = headsFromNode(n)
}
