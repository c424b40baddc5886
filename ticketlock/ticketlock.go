// ============================================================================
// TICKETLOCK: FIFO-FAIR SPIN LOCK FOR QUEUE PROTECTION
// ============================================================================
//
// Ticket-based spin lock protecting thread queue state on multiprocessor
// configurations. FIFO ticket hand-off guarantees that waiters acquire in
// strict arrival order, so no processor can be starved by a faster peer.
//
// Architecture overview:
//   - next ticket counter: fetch-add issues one ticket per waiter
//   - now serving counter: released holder admits exactly one successor
//   - adaptive spin with runtime.Gosched backoff under contention
//
// Profiling and debug support:
//   - Stats counts total and contended acquisitions plus the worst spin
//     count observed; mutated only while the lock is held
//   - Owner records the index of the holding processor for consistency
//     checks; NoOwner when the lock is free
//
// Uniprocessor configurations substitute the Null lock: interrupt disable
// already serializes queue access there, so the lock compiles down to
// nothing but the shared interface.
package ticketlock

import (
	"runtime"
	"sync/atomic"
)

// NoOwner marks a lock that is currently not owned by any processor.
const NoOwner = ^uint32(0)

// spinYield bounds busy spinning before the waiter yields its processor.
const spinYield = 64

// Stats accumulates contention statistics for one lock. All fields are
// written only while the lock is held, so plain loads taken between a
// matching acquire/release pair are exact; snapshots taken elsewhere are
// advisory.
type Stats struct {
	Acquisitions uint64 // Total successful acquisitions
	Contended    uint64 // Acquisitions that had to spin at least once
	MaxSpin      uint64 // Worst spin iteration count observed
}

// Locker is the protection contract the thread queue layer programs
// against: the real ticket lock on multiprocessor configurations, the Null
// lock on uniprocessor ones.
type Locker interface {
	Acquire()
	TryAcquire() bool
	Release()
}

// Lock is the multiprocessor ticket lock.
type Lock struct {
	nowServing atomic.Uint32
	nextTicket atomic.Uint32
	owner      atomic.Uint32 // Debug owner, NoOwner when free
	stats      Stats
}

// New returns an initialized, free ticket lock.
func New() *Lock {
	l := &Lock{}
	l.owner.Store(NoOwner)
	return l
}

// Acquire takes the lock, spinning until the holder count reaches this
// caller's ticket. Spin is bounded per iteration: every spinYield failed
// polls the waiter yields, so predecessors holding short critical sections
// always make progress.
//
//go:nosplit
func (l *Lock) Acquire() {
	ticket := l.nextTicket.Add(1) - 1
	var spins uint64
	for l.nowServing.Load() != ticket {
		spins++
		if spins%spinYield == 0 {
			runtime.Gosched()
		}
	}
	l.stats.Acquisitions++
	if spins != 0 {
		l.stats.Contended++
		if spins > l.stats.MaxSpin {
			l.stats.MaxSpin = spins
		}
	}
}

// TryAcquire takes the lock only if no other waiter holds or awaits it.
//
//go:nosplit
func (l *Lock) TryAcquire() bool {
	serving := l.nowServing.Load()
	if !l.nextTicket.CompareAndSwap(serving, serving+1) {
		return false
	}
	l.stats.Acquisitions++
	return true
}

// Release admits the next ticket holder. Must be called by the current
// holder with any debug owner cleared first.
//
//go:nosplit
func (l *Lock) Release() {
	l.owner.Store(NoOwner)
	l.nowServing.Add(1)
}

// SetOwner records the acquiring processor index for debug consistency
// checks. Call only while holding the lock.
//
//go:nosplit
//go:inline
func (l *Lock) SetOwner(cpu uint32) {
	l.owner.Store(cpu)
}

// Owner returns the recorded holding processor index, or NoOwner.
//
//go:nosplit
//go:inline
func (l *Lock) Owner() uint32 {
	return l.owner.Load()
}

// Snapshot copies the accumulated statistics. Exact only while the lock is
// held by the caller.
//
//go:nosplit
//go:inline
func (l *Lock) Snapshot() Stats {
	return l.stats
}

// Null is the uniprocessor lock: every operation is a no-op because
// interrupt disable already provides mutual exclusion there.
type Null struct{}

//go:nosplit
//go:inline
func (Null) Acquire() {}

//go:nosplit
//go:inline
func (Null) TryAcquire() bool { return true }

//go:nosplit
//go:inline
func (Null) Release() {}
