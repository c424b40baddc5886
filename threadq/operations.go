package threadq

import (
	"github.com/johan718/rtems/chain"
	"github.com/johan718/rtems/priorityq"
)

// Operations is the per-object-instance discipline table, selected once at
// object creation and immutable thereafter. Every operation is called with
// the queue lock held.
type Operations interface {
	// PriorityChange repositions a waiting thread after its effective
	// priority changed, e.g. by inheritance elsewhere. FIFO discipline
	// ignores it: arrival order is not priority-sensitive.
	PriorityChange(q *Queue, t *Thread, newPriority uint64)

	// Enqueue inserts t into the waiting set. For ownership-capable
	// disciplines it first walks the ownership path, filling path with
	// the acquired links and the thread whose priority the caller must
	// subsequently recompute. A false return means a deadlock was
	// detected and t was NOT inserted; the caller unwinds the path and
	// reports through the deadlock callout.
	Enqueue(q *Queue, t *Thread, path *Path) bool

	// Extract removes the specific thread t regardless of position. Used
	// for explicit release, deletion and timeout.
	Extract(q *Queue, t *Thread)

	// Surrender dequeues and returns the first waiter per discipline.
	// heads is never nil. The caller installs the result as new owner
	// where ownership applies and resumes it.
	Surrender(q *Queue, heads *Heads, previousOwner *Thread) *Thread

	// First peeks at the first waiter without removing it, or returns
	// nil. Used to recompute inherited priority without dequeueing.
	First(heads *Heads) *Thread
}

// ============================================================================
// FIFO DISCIPLINE
// ============================================================================

// fifoOps orders strictly by arrival. FIFO objects carry no ownership, so
// enqueue never walks a path and priority changes are ignored.
type fifoOps struct{}

func (fifoOps) PriorityChange(q *Queue, t *Thread, newPriority uint64) {}

func (fifoOps) Enqueue(q *Queue, t *Thread, path *Path) bool {
	heads := q.claimHeads(t)
	heads.fifo.Append(&t.wait.node)
	return true
}

func (fifoOps) Extract(q *Queue, t *Thread) {
	chain.Extract(&t.wait.node)
	q.releaseHeads(t)
}

func (fifoOps) Surrender(q *Queue, heads *Heads, previousOwner *Thread) *Thread {
	n := heads.fifo.PopFirst()
	if n == nil {
		return nil
	}
	t := threadFromNode(n)
	q.releaseHeads(t)
	return t
}

func (fifoOps) First(heads *Heads) *Thread {
	n := heads.fifo.First()
	if n == nil {
		return nil
	}
	return threadFromNode(n)
}

// ============================================================================
// PRIORITY DISCIPLINE
// ============================================================================

// priorityOps orders by numeric priority, FIFO at equal values. Each
// scheduler instance gets its own sub-queue; active sub-queues chain on the
// heads FIFO so equal highest priorities drain FIFO-fair across instances.
type priorityOps struct{}

func (priorityOps) PriorityChange(q *Queue, t *Thread, newPriority uint64) {
	pq := &q.heads.priority[t.schedulerIndex]
	pq.Reposition(&t.wait.node, t.wait.queuePriority, newPriority)
	t.wait.queuePriority = newPriority
}

func (priorityOps) Enqueue(q *Queue, t *Thread, path *Path) bool {
	priorityInsert(q, t)
	return true
}

func (priorityOps) Extract(q *Queue, t *Thread) {
	priorityExtract(q, t)
}

func (priorityOps) Surrender(q *Queue, heads *Heads, previousOwner *Thread) *Thread {
	return prioritySurrender(q, heads)
}

func (priorityOps) First(heads *Heads) *Thread {
	return priorityFirst(heads)
}

func priorityInsert(q *Queue, t *Thread) {
	heads := q.claimHeads(t)
	pq := &heads.priority[t.schedulerIndex]
	if pq.IsEmpty() {
		heads.fifo.Append(&pq.Node)
	}
	prio := t.CurrentPriority()
	t.wait.queuePriority = prio
	pq.Insert(&t.wait.node, prio)
}

func priorityExtract(q *Queue, t *Thread) {
	heads := q.heads
	pq := &heads.priority[t.schedulerIndex]
	pq.Extract(&t.wait.node, t.wait.queuePriority)
	if pq.IsEmpty() {
		chain.Extract(&pq.Node)
	}
	q.releaseHeads(t)
}

// priorityBest selects the sub-queue holding the next thread to serve: the
// minimum priority value over all active instances, ties resolved in favor
// of the sub-queue longest in the FIFO. The scan is bounded by the
// scheduler-instance capacity.
func priorityBest(heads *Heads) (*priorityq.Queue, *chain.Node) {
	var best *priorityq.Queue
	var bestNode *chain.Node
	bestPrio := uint64(priorityq.LevelCount)
	for n := heads.fifo.First(); n != nil; n = heads.fifo.Next(n) {
		pq := (*priorityq.Queue)(n.Data())
		tn, prio, ok := pq.Min()
		if !ok {
			fatal("empty sub-queue on heads fifo")
		}
		if prio < bestPrio {
			best, bestNode, bestPrio = pq, tn, prio
		}
	}
	return best, bestNode
}

func prioritySurrender(q *Queue, heads *Heads) *Thread {
	pq, n := priorityBest(heads)
	if pq == nil {
		return nil
	}
	t := threadFromNode(n)
	pq.Extract(n, t.wait.queuePriority)
	// Rotate the served instance to the FIFO tail so equal highest
	// priorities keep draining round-robin across instances.
	chain.Extract(&pq.Node)
	if !pq.IsEmpty() {
		heads.fifo.Append(&pq.Node)
	}
	q.releaseHeads(t)
	return t
}

func priorityFirst(heads *Heads) *Thread {
	_, n := priorityBest(heads)
	if n == nil {
		return nil
	}
	return threadFromNode(n)
}

// ============================================================================
// PRIORITY DISCIPLINE WITH INHERITANCE
// ============================================================================

// priorityInheritOps extends the priority discipline with ownership-path
// traversal: enqueueing first validates the ownership graph for cycles and
// reports the owner whose effective priority must be boosted.
type priorityInheritOps struct {
	priorityOps
}

func (priorityInheritOps) Enqueue(q *Queue, t *Thread, path *Path) bool {
	if !pathAcquire(q, t, path) {
		return false
	}
	priorityInsert(q, t)
	owner := q.Owner()
	if owner != nil {
		prio := t.CurrentPriority()
		if prio < owner.CurrentPriority() {
			path.update = owner
			path.updateTo = prio
		}
	}
	return true
}
