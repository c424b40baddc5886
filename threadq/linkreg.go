// ============================================================================
// LINK REGISTRY: GLOBAL OWNERSHIP-EDGE LOOKUP
// ============================================================================
//
// Process-wide index mapping queue identity to its active ownership Link.
// Path traversal registers every followed edge here. A registration
// conflict against the walker's own path means the walk left the same
// queue twice, which is the cycle signal; a conflict against another
// walker's entry means a crossing path re-registered the edge after an
// ownership hand-off, and the caller waits on the holder's gate instead of
// reporting deadlock.
//
// Structure: fixed-capacity Robin Hood hash keyed by queue serial. Robin
// Hood displacement bounds probe distances, giving the constant-ish lookup
// the blocking path needs without dynamic hashing; deletion uses backward
// shifting so the displacement invariant survives the transient
// register/deregister churn of path traversal.
//
// Locking: the registry lock is a leaf. No queue lock and no thread wait
// lock is ever acquired while holding it, so it can never participate in a
// lock cycle with individual queues.
package threadq

import (
	"github.com/johan718/rtems/ticketlock"
)

// registryCapacity bounds concurrently registered ownership edges. Each
// edge corresponds to one blocked owner inside an in-progress path, so the
// bound is generous; exhausting it means runaway lock nesting and is fatal.
const registryCapacity = 1024

var linkRegistry = newLinkTable(registryCapacity)

type linkTable struct {
	lock ticketlock.Lock
	keys []uint32 // Queue serials (0 = empty sentinel)
	vals []*Link
	mask uint32
	used int
}

//go:nosplit
//go:inline
//go:registerparams
func nextPow2(n int) uint32 {
	s := uint32(1)
	for s < uint32(n) {
		s <<= 1
	}
	return s
}

func newLinkTable(capacity int) *linkTable {
	// Double capacity for displacement headroom at peak load.
	sz := nextPow2(capacity * 2)
	return &linkTable{
		keys: make([]uint32, sz),
		vals: make([]*Link, sz),
		mask: sz - 1,
	}
}

// add registers link under its source queue's serial. The caller has
// filled source and walker and holds the source owner's wait lock. A
// conflict against an entry of the caller's own walker reports own=true
// (cycle); a conflict against a foreign walker hands back the holding link
// so the caller can wait on its hand-off gate and retry. On success the
// hand-off gate closes until deregistration.
func linkRegistryAdd(link *Link) (added bool, own bool, busy *Link) {
	r := linkRegistry
	r.lock.Acquire()
	if prior, ok := r.get(link.source.serial); ok {
		own = prior.walker == link.walker
		r.lock.Release()
		if own {
			return false, true, nil
		}
		return false, false, prior
	}
	r.insert(link.source.serial, link)
	link.registered = true
	link.ctx.Wait.Gate.Close()
	r.lock.Release()
	return true, false, nil
}

// remove deregisters link and opens its hand-off gate, releasing any
// crossing walk waiting to follow the same edge.
func linkRegistryRemove(link *Link) {
	r := linkRegistry
	r.lock.Acquire()
	r.delete(link.source.serial)
	link.registered = false
	r.lock.Release()
	link.ctx.Wait.Gate.Open()
}

// ownedBy reports whether the edge leaving the queue with the given serial
// is registered by walker's own path. The compare runs under the registry
// lock because the storage is rewritten on every registration.
func linkRegistryOwnedBy(serial uint32, walker *Thread) bool {
	r := linkRegistry
	r.lock.Acquire()
	link, ok := r.get(serial)
	own := ok && link.walker == walker
	r.lock.Release()
	return own
}

// lookup returns the active link whose source queue has the given serial.
func linkRegistryLookup(serial uint32) (*Link, bool) {
	r := linkRegistry
	r.lock.Acquire()
	link, ok := r.get(serial)
	r.lock.Release()
	return link, ok
}

//go:nosplit
//go:registerparams
func (r *linkTable) insert(key uint32, val *Link) bool {
	if r.used >= registryCapacity {
		fatal("link registry exhausted")
	}
	i := key & r.mask
	dist := uint32(0)
	for {
		k := r.keys[i]
		if k == 0 {
			r.keys[i], r.vals[i] = key, val
			r.used++
			return true
		}
		if k == key {
			return false
		}
		// Robin Hood displacement: evict occupants closer to home.
		kDist := (i + r.mask + 1 - (k & r.mask)) & r.mask
		if kDist < dist {
			key, r.keys[i] = r.keys[i], key
			val, r.vals[i] = r.vals[i], val
			dist = kDist
		}
		i = (i + 1) & r.mask
		dist++
	}
}

//go:nosplit
//go:registerparams
func (r *linkTable) get(key uint32) (*Link, bool) {
	i := key & r.mask
	dist := uint32(0)
	for {
		k := r.keys[i]
		if k == 0 {
			return nil, false
		}
		if k == key {
			return r.vals[i], true
		}
		kDist := (i + r.mask + 1 - (k & r.mask)) & r.mask
		if kDist < dist {
			// Occupant is closer to home than our probe: key absent.
			return nil, false
		}
		i = (i + 1) & r.mask
		dist++
	}
}

//go:nosplit
//go:registerparams
func (r *linkTable) delete(key uint32) {
	i := key & r.mask
	dist := uint32(0)
	for {
		k := r.keys[i]
		if k == 0 {
			fatal("deregistering an unregistered link")
		}
		if k == key {
			break
		}
		kDist := (i + r.mask + 1 - (k & r.mask)) & r.mask
		if kDist < dist {
			fatal("deregistering an unregistered link")
		}
		i = (i + 1) & r.mask
		dist++
	}
	// Backward shift: pull successors home until a hole or an entry
	// already in its ideal slot.
	for {
		next := (i + 1) & r.mask
		k := r.keys[next]
		if k == 0 || k&r.mask == next {
			break
		}
		r.keys[i], r.vals[i] = k, r.vals[next]
		i = next
	}
	r.keys[i] = 0
	r.vals[i] = nil
	r.used--
}
