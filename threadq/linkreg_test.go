package threadq

import (
	"encoding/binary"
	"testing"

	"golang.org/x/crypto/sha3"
)

// serialFromSeed fabricates well-distributed nonzero queue serials.
func serialFromSeed(seed byte) uint32 {
	h := sha3.Sum256([]byte{seed})
	s := binary.LittleEndian.Uint32(h[:4])
	if s == 0 {
		s = 1
	}
	return s
}

func TestLinkTableInsertGet(t *testing.T) {
	r := newLinkTable(64)
	links := make(map[uint32]*Link)
	for i := 0; i < 48; i++ {
		key := serialFromSeed(byte(i))
		link := &Link{}
		if !r.insert(key, link) {
			t.Fatalf("insert %d (key %d) failed", i, key)
		}
		links[key] = link
	}
	for key, link := range links {
		got, ok := r.get(key)
		if !ok || got != link {
			t.Fatalf("get(%d) = (%p, %v), want %p", key, got, ok, link)
		}
	}
	if _, ok := r.get(0xdeadbeef); ok {
		t.Fatal("get of absent key succeeded")
	}
}

func TestLinkTableConflict(t *testing.T) {
	r := newLinkTable(8)
	key := serialFromSeed(1)
	if !r.insert(key, &Link{}) {
		t.Fatal("first insert failed")
	}
	if r.insert(key, &Link{}) {
		t.Fatal("duplicate insert succeeded; conflicts must surface to the caller")
	}
}

func TestLinkTableDeleteBackwardShift(t *testing.T) {
	r := newLinkTable(64)
	keys := make([]uint32, 0, 32)
	for i := 0; i < 32; i++ {
		key := serialFromSeed(byte(100 + i))
		if !r.insert(key, &Link{}) {
			t.Fatalf("insert key %d failed", key)
		}
		keys = append(keys, key)
	}
	// Delete every other key, then verify the rest survive displacement
	// repair and the deleted ones are gone.
	for i := 0; i < len(keys); i += 2 {
		r.delete(keys[i])
	}
	for i, key := range keys {
		_, ok := r.get(key)
		if i%2 == 0 && ok {
			t.Fatalf("deleted key %d still present", key)
		}
		if i%2 == 1 && !ok {
			t.Fatalf("surviving key %d lost after deletes", key)
		}
	}
	// Slots must be reusable.
	for i := 0; i < len(keys); i += 2 {
		if !r.insert(keys[i], &Link{}) {
			t.Fatalf("reinsert of key %d failed", keys[i])
		}
	}
}

func TestLinkRegistryGlobal(t *testing.T) {
	q1 := New(DisciplinePriorityInherit, "reg-q1")
	q2 := New(DisciplinePriorityInherit, "reg-q2")
	walker := NewThread("walker", 10, 0)
	crosser := NewThread("crosser", 10, 0)
	holder := NewThread("holder", 10, 0)

	link := &holder.wait.link
	link.source = &q1.Queue
	link.target = &q2.Queue
	link.owner = holder
	link.walker = walker
	added, own, busy := linkRegistryAdd(link)
	if !added || own || busy != nil {
		t.Fatal("registering a fresh link failed")
	}
	if !link.registered {
		t.Fatal("link not marked registered")
	}
	if link.ctx.Wait.Gate.IsOpen() {
		t.Fatal("hand-off gate open while registered")
	}
	got, ok := linkRegistryLookup(q1.Queue.serial)
	if !ok || got != link {
		t.Fatalf("lookup = (%p, %v), want %p", got, ok, link)
	}
	if !linkRegistryOwnedBy(q1.Queue.serial, walker) {
		t.Fatal("registered edge not attributed to its walker")
	}
	if linkRegistryOwnedBy(q1.Queue.serial, crosser) {
		t.Fatal("registered edge attributed to a foreign walker")
	}

	// The same walker leaving the same source again is the cycle signal; a
	// foreign walker gets the holding link to wait on instead.
	second := &crosser.wait.link
	second.source = &q1.Queue
	second.walker = walker
	added, own, busy = linkRegistryAdd(second)
	if added || !own || busy != nil {
		t.Fatal("own re-registration not reported as a cycle")
	}
	second.walker = crosser
	added, own, busy = linkRegistryAdd(second)
	if added || own || busy != link {
		t.Fatal("foreign conflict did not hand back the holding link")
	}

	linkRegistryRemove(link)
	if !link.ctx.Wait.Gate.IsOpen() {
		t.Fatal("hand-off gate not opened by removal")
	}
	if _, ok := linkRegistryLookup(q1.Queue.serial); ok {
		t.Fatal("link still registered after removal")
	}
	if linkRegistryOwnedBy(q1.Queue.serial, walker) {
		t.Fatal("removed edge still attributed to a walker")
	}
}
