package chain

import (
	"testing"
	"unsafe"
)

type elem struct {
	node Node
	id   int
}

func newElem(id int) *elem {
	e := &elem{id: id}
	e.node.SetData(unsafe.Pointer(e))
	return e
}

func fromNode(n *Node) *elem {
	return (*elem)(n.Data())
}

func TestEmptyChain(t *testing.T) {
	var c Control
	c.Initialize()
	if !c.IsEmpty() {
		t.Fatal("fresh chain not empty")
	}
	if c.First() != nil || c.Last() != nil || c.PopFirst() != nil {
		t.Fatal("empty chain returned a node")
	}
}

func TestAppendOrder(t *testing.T) {
	var c Control
	c.Initialize()
	e1, e2, e3 := newElem(1), newElem(2), newElem(3)
	c.Append(&e1.node)
	c.Append(&e2.node)
	c.Append(&e3.node)
	want := []int{1, 2, 3}
	for i, w := range want {
		n := c.PopFirst()
		if n == nil {
			t.Fatalf("PopFirst %d = nil", i)
		}
		if got := fromNode(n).id; got != w {
			t.Fatalf("PopFirst %d = %d, want %d", i, got, w)
		}
	}
	if !c.IsEmpty() {
		t.Fatal("chain not empty after draining")
	}
}

func TestPrepend(t *testing.T) {
	var c Control
	c.Initialize()
	e1, e2 := newElem(1), newElem(2)
	c.Append(&e1.node)
	c.Prepend(&e2.node)
	if got := fromNode(c.First()).id; got != 2 {
		t.Fatalf("First = %d, want 2", got)
	}
	if got := fromNode(c.Last()).id; got != 1 {
		t.Fatalf("Last = %d, want 1", got)
	}
}

func TestExtractMiddle(t *testing.T) {
	var c Control
	c.Initialize()
	e1, e2, e3 := newElem(1), newElem(2), newElem(3)
	c.Append(&e1.node)
	c.Append(&e2.node)
	c.Append(&e3.node)
	Extract(&e2.node)
	if IsLinked(&e2.node) {
		t.Fatal("extracted node still linked")
	}
	if fromNode(c.First()).id != 1 || fromNode(c.Last()).id != 3 {
		t.Fatal("chain ends wrong after middle extract")
	}
	if got := fromNode(c.Next(&e1.node)).id; got != 3 {
		t.Fatalf("Next after extract = %d, want 3", got)
	}
}

func TestNextTerminates(t *testing.T) {
	var c Control
	c.Initialize()
	e1, e2 := newElem(1), newElem(2)
	c.Append(&e1.node)
	c.Append(&e2.node)
	var ids []int
	for n := c.First(); n != nil; n = c.Next(n) {
		ids = append(ids, fromNode(n).id)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("iteration = %v, want [1 2]", ids)
	}
}

func TestReuseAfterExtract(t *testing.T) {
	var c Control
	c.Initialize()
	e := newElem(7)
	for i := 0; i < 3; i++ {
		c.Append(&e.node)
		if !IsLinked(&e.node) {
			t.Fatal("appended node not linked")
		}
		Extract(&e.node)
		if !c.IsEmpty() {
			t.Fatal("chain not empty after extract")
		}
	}
}
