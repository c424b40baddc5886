// ============================================================================
// PRIORITYQ: BITMAP PRIORITY SUB-QUEUE FOR BLOCKED THREADS
// ============================================================================
//
// Fixed 256-level priority queue holding intrusive chain nodes. One instance
// exists per scheduler instance on multiprocessor configurations so every
// scheduler tracks its own best waiter independently; a single instance
// serves uniprocessor priority queues.
//
// Architecture overview:
//   - 2-level bitmap summary: [summary (4 used bits)] → [group word (64)]
//   - One FIFO chain per priority level keeps arrival order at equal
//     priority
//   - Minimum extraction via LeadingZeros64 over the summary hierarchy
//
// Performance characteristics:
//   - O(1) insert, arbitrary extract, reposition and minimum peek
//   - Zero allocation: nodes are embedded in their threads, level chains
//     are initialized lazily on first touch
//
// Ordering contract:
//   - Numerically lower priority value is served first
//   - Equal priority values are served strictly in arrival order
//   - Reposition places the node at the tail of its new level, as if it
//     had just arrived there
package priorityq

import (
	"math/bits"
	"unsafe"

	"github.com/johan718/rtems/chain"
	"github.com/johan718/rtems/debug"
)

const (
	// LevelCount is the priority domain size: valid priorities are
	// 0..LevelCount-1, lower is more urgent.
	LevelCount = 256

	groupSize = 64
	numGroups = LevelCount / groupSize
)

// Queue is one priority sub-queue. The embedded Node chains the sub-queue
// itself into the FIFO of scheduler instances owned by the queue heads on
// multiprocessor configurations.
//
//go:align 64
type Queue struct {
	Node chain.Node // Linkage in the heads FIFO of sub-queues

	summary uint64                     // Active group bitmask (bit 63-g)
	bits    [numGroups]uint64          // Per-group level bitmask (bit 63-b)
	levels  [LevelCount]chain.Control  // Per-level FIFO of waiter nodes
	size    int
}

// Initialize prepares an empty sub-queue and points the linkage node back at
// it. Level chains are initialized lazily when their bitmap bit is first
// set, so this is O(1) regardless of LevelCount.
//
//go:nosplit
//go:inline
//go:registerparams
func (q *Queue) Initialize() {
	q.Node.SetData(unsafe.Pointer(q))
	q.summary = 0
	for g := range q.bits {
		q.bits[g] = 0
	}
	q.size = 0
}

// IsEmpty reports whether no waiter is enqueued.
//
//go:nosplit
//go:inline
//go:registerparams
func (q *Queue) IsEmpty() bool {
	return q.summary == 0
}

// Len returns the number of enqueued waiters.
//
//go:nosplit
//go:inline
//go:registerparams
func (q *Queue) Len() int {
	return q.size
}

// Insert appends n at the tail of its priority level. Arrival order within
// a level is preserved, so equal priorities drain FIFO.
//
//go:nosplit
//go:registerparams
func (q *Queue) Insert(n *chain.Node, priority uint64) {
	if priority >= LevelCount {
		debug.Fatal("priorityq", "priority out of domain")
	}
	g := priority >> 6
	b := priority & (groupSize - 1)
	if q.bits[g]&(1<<(63-b)) == 0 {
		// First waiter at this level since the chain went idle.
		q.levels[priority].Initialize()
		q.bits[g] |= 1 << (63 - b)
		q.summary |= 1 << (63 - g)
	}
	q.levels[priority].Append(n)
	q.size++
}

// Extract removes n, which must currently be enqueued at the given
// priority, regardless of its position within the level.
//
//go:nosplit
//go:registerparams
func (q *Queue) Extract(n *chain.Node, priority uint64) {
	if priority >= LevelCount {
		debug.Fatal("priorityq", "priority out of domain")
	}
	chain.Extract(n)
	q.size--
	if q.levels[priority].IsEmpty() {
		g := priority >> 6
		b := priority & (groupSize - 1)
		q.bits[g] &^= 1 << (63 - b)
		if q.bits[g] == 0 {
			q.summary &^= 1 << (63 - g)
		}
	}
}

// Reposition moves n from its old priority level to the tail of the new
// one. The node forfeits its arrival slot: a repositioned waiter queues
// behind existing waiters of its new priority.
//
//go:nosplit
//go:registerparams
func (q *Queue) Reposition(n *chain.Node, oldPriority, newPriority uint64) {
	if oldPriority == newPriority {
		return
	}
	q.Extract(n, oldPriority)
	q.Insert(n, newPriority)
}

// Min returns the head node of the lowest-value occupied priority level
// without removing it, plus that priority. ok is false on an empty queue.
//
//go:nosplit
//go:registerparams
func (q *Queue) Min() (n *chain.Node, priority uint64, ok bool) {
	if q.summary == 0 {
		return nil, 0, false
	}
	g := uint64(bits.LeadingZeros64(q.summary))
	b := uint64(bits.LeadingZeros64(q.bits[g]))
	priority = g<<6 | b
	return q.levels[priority].First(), priority, true
}

// PopMin removes and returns the head node of the lowest-value occupied
// priority level. ok is false on an empty queue.
//
//go:nosplit
//go:registerparams
func (q *Queue) PopMin() (n *chain.Node, priority uint64, ok bool) {
	n, priority, ok = q.Min()
	if !ok {
		return nil, 0, false
	}
	q.Extract(n, priority)
	return n, priority, true
}
