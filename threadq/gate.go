package threadq

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/johan718/rtems/chain"
)

// gateSpinYield bounds busy spinning on a closed gate before yielding the
// processor. Every predecessor critical section is itself bounded, so the
// overall wait is bounded as well.
const gateSpinYield = 64

// Gate is the sequential hand-off token serializing multiprocessor access
// to a thread's blocking transition. Gates are registered closed on a
// pending-request chain while the registrant is between "visible in the
// waiting set" and "committed to suspend"; a party that wants to act on the
// registrant first waits for every predecessor gate, in registration order,
// to open. This models a FIFO hand-off queue, not a counting semaphore: a
// gate opens exactly once per registration.
type Gate struct {
	node    chain.Node
	goAhead atomic.Uint32
}

// Add registers g closed at the tail of the pending chain. The caller must
// hold the lock protecting the chain.
//
//go:nosplit
//go:inline
//go:registerparams
func (g *Gate) Add(pending *chain.Control) {
	g.node.SetData(unsafe.Pointer(g))
	g.goAhead.Store(0)
	pending.Append(&g.node)
}

// Open marks g ready, releasing exactly one waiter. No lock is required:
// the single writer is the registrant (or its unique successor hand-off).
//
//go:nosplit
//go:inline
//go:registerparams
func (g *Gate) Open() {
	g.goAhead.Store(1)
}

// Close marks g not ready again, for reuse outside a pending chain.
//
//go:nosplit
//go:inline
//go:registerparams
func (g *Gate) Close() {
	g.goAhead.Store(0)
}

// Wait busy-waits until g opens. The spin is bounded because the opener is
// inside a bounded critical section; the waiter still yields periodically
// so an opener sharing the processor can run.
//
//go:nosplit
func (g *Gate) Wait() {
	var spins uint32
	for g.goAhead.Load() == 0 {
		spins++
		if spins%gateSpinYield == 0 {
			runtime.Gosched()
		}
	}
}

// IsOpen reports whether g has been opened since registration.
//
//go:nosplit
//go:inline
//go:registerparams
func (g *Gate) IsOpen() bool {
	return g.goAhead.Load() != 0
}

//go:nosplit
//go:inline
//go:registerparams
func gateFromNode(n *chain.Node) *Gate {
	return (*Gate)(n.Data())
}
