package threadq

import (
	"unsafe"

	"github.com/johan718/rtems/chain"
)

// maxPathDepth bounds ownership-path traversal. A fixed constant keeps the
// blocking-path latency independent of the configured thread count; chains
// deeper than this are reported as deadlock.
const maxPathDepth = 32

// Link is one directed edge of the system-wide ownership graph: the source
// queue points at the target queue that the source's owner is itself
// blocked on. Storage lives in the owner thread the edge was followed
// through; a walk holds that owner's wait lock for every link on its path,
// so the storage is exclusive while linked. Links are registered in the
// global registry keyed by source queue identity while a path holds them.
type Link struct {
	// pathNode adds this link to the in-progress path.
	pathNode chain.Node

	source *Queue
	target *Queue

	// owner is the thread this edge was followed through; its wait lock
	// is held while the link is on a path.
	owner *Thread

	// walker is the enqueuing thread whose path holds the registration.
	// An insert conflict against one's own walker is the cycle signal; a
	// conflict against a foreign walker is a crossing walk that must be
	// waited out, never a deadlock.
	walker *Thread

	// ctx carries the nested hand-off state: its gate is closed while the
	// link is registered and opened at deregistration, releasing any
	// crossing walk waiting to follow the same edge.
	ctx Context

	registered bool
}

//go:nosplit
//go:inline
//go:registerparams
func linkFromNode(n *chain.Node) *Link {
	return (*Link)(n.Data())
}

// Path is the transitively-followed chain of links from a newly-blocking
// thread through successive owners. It exists only for the duration of one
// enqueue operation, on the enqueueing caller's stack.
type Path struct {
	links chain.Control

	// update names the thread whose effective priority the enqueueing
	// caller must recompute once the queue lock is dropped, with the
	// value to propagate.
	update   *Thread
	updateTo uint64

	depth int
}

func (p *Path) initialize() {
	p.links.Initialize()
	p.update = nil
	p.updateTo = 0
	p.depth = 0
}

// pathAcquire walks the ownership graph from q: each step takes the
// current owner's wait lock, registers the edge the walk leaves through,
// and follows it to the queue that owner is itself blocked on. Traversal
// stops at an owner that is not blocked (priority propagates to it) and
// reports deadlock when the blocking thread, an owner already on the path
// or a queue the walk already left reappears, or when the depth bound is
// exceeded. Caller holds q's lock.
//
// Concurrent walks serialize on the owner wait locks: overlapping acyclic
// paths wait for each other at the first shared owner and then proceed;
// they never fail. A registration conflict against the walk's own entries
// is a genuine cycle; one against a foreign walker means the edge was
// re-registered after an ownership hand-off and the walk waits on the
// holder's gate and retries. Walk direction is always owner to target,
// never the reverse, so racing traversals acquire shared ancestors in the
// same relative order.
func pathAcquire(q *Queue, t *Thread, path *Path) bool {
	source := q
	owner := source.Owner()
	for owner != nil {
		if owner == t {
			// The new waiter already owns a queue on this chain.
			return false
		}
		if path.depth >= maxPathDepth {
			return false
		}
		for n := path.links.First(); n != nil; n = path.links.Next(n) {
			if linkFromNode(n).owner == owner {
				// The chain led back to an owner already on the path.
				return false
			}
		}
		if linkRegistryOwnedBy(source.serial, t) {
			// The walk left this queue once already.
			return false
		}
		owner.wait.lock.Acquire()
		if source.Owner() != owner {
			// Ownership moved while we waited for the wait lock; redo
			// the step against the new owner.
			owner.wait.lock.Release()
			owner = source.Owner()
			continue
		}
		link := &owner.wait.link
		link.source = source
		link.owner = owner
		link.walker = t
		link.registered = false
		link.pathNode.SetData(unsafe.Pointer(link))
		link.ctx.Wait.Queue = source
		path.links.Append(&link.pathNode)
		path.depth++
		target := owner.wait.queue
		link.target = target
		if target == nil {
			// Chain ends: the final owner is ready or running.
			break
		}
		for {
			added, own, busy := linkRegistryAdd(link)
			if added {
				break
			}
			if own {
				// Own registration for this source: cycle.
				return false
			}
			// A crossing walk still holds the edge leaving this queue
			// after an ownership hand-off; wait for its hand-off.
			busy.ctx.Wait.Gate.Wait()
		}
		source = target
		owner = source.Owner()
	}
	return true
}

// pathRelease unwinds the path in strictly reverse acquisition order. Each
// link's storage is detached before its registration is dropped and its
// owner wait lock is released, because either of those hands the step over
// to a crossing walk. Called on success and on deadlock alike.
func pathRelease(path *Path) {
	for {
		n := path.links.Last()
		if n == nil {
			return
		}
		link := linkFromNode(n)
		chain.Extract(n)
		path.depth--
		link.ctx.Wait.Queue = nil
		owner := link.owner
		if link.registered {
			linkRegistryRemove(link)
		}
		owner.wait.lock.Release()
	}
}
