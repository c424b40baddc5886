// Package chain is a zero-alloc intrusive doubly-linked chain. Nodes are
// embedded in their containing objects and carry an opaque back reference, so
// the chain never owns storage and every operation is O(1) with no heap use.
// A permanent sentinel makes empty/append/extract branch-free at the ends.
package chain

import "unsafe"

// Node is one link of a chain. Embed it in the containing object and set the
// back reference once at initialization time.
type Node struct {
	next *Node
	prev *Node
	data unsafe.Pointer // containing object, set once, never cleared
}

// SetData records the containing object of this node.
//
//go:nosplit
//go:inline
//go:registerparams
func (n *Node) SetData(p unsafe.Pointer) {
	n.data = p
}

// Data returns the containing object of this node.
//
//go:nosplit
//go:inline
//go:registerparams
func (n *Node) Data() unsafe.Pointer {
	return n.data
}

// Control is the chain anchor. The sentinel is part of the ring: an empty
// chain is the sentinel linked to itself. A Control must be initialized
// before first use and may be reinitialized only when empty.
type Control struct {
	sentinel Node
}

// Initialize resets the chain to empty. Any nodes still linked are abandoned
// in place, so callers drain the chain first.
//
//go:nosplit
//go:inline
//go:registerparams
func (c *Control) Initialize() {
	c.sentinel.next = &c.sentinel
	c.sentinel.prev = &c.sentinel
}

// IsEmpty reports whether no node is linked.
//
//go:nosplit
//go:inline
//go:registerparams
func (c *Control) IsEmpty() bool {
	return c.sentinel.next == &c.sentinel
}

// First returns the head node, or nil on an empty chain.
//
//go:nosplit
//go:inline
//go:registerparams
func (c *Control) First() *Node {
	if c.IsEmpty() {
		return nil
	}
	return c.sentinel.next
}

// Last returns the tail node, or nil on an empty chain.
//
//go:nosplit
//go:inline
//go:registerparams
func (c *Control) Last() *Node {
	if c.IsEmpty() {
		return nil
	}
	return c.sentinel.prev
}

// Next returns the successor of n within this chain, or nil if n is the
// tail. n must be linked on c.
//
//go:nosplit
//go:inline
//go:registerparams
func (c *Control) Next(n *Node) *Node {
	if n.next == &c.sentinel {
		return nil
	}
	return n.next
}

// Prev returns the predecessor of n within this chain, or nil if n is the
// head. n must be linked on c.
//
//go:nosplit
//go:inline
//go:registerparams
func (c *Control) Prev(n *Node) *Node {
	if n.prev == &c.sentinel {
		return nil
	}
	return n.prev
}

// Append links n as the new tail.
//
//go:nosplit
//go:inline
//go:registerparams
func (c *Control) Append(n *Node) {
	tail := c.sentinel.prev
	n.prev = tail
	n.next = &c.sentinel
	tail.next = n
	c.sentinel.prev = n
}

// Prepend links n as the new head.
//
//go:nosplit
//go:inline
//go:registerparams
func (c *Control) Prepend(n *Node) {
	head := c.sentinel.next
	n.next = head
	n.prev = &c.sentinel
	head.prev = n
	c.sentinel.next = n
}

// PopFirst unlinks and returns the head node, or nil on an empty chain.
//
//go:nosplit
//go:inline
//go:registerparams
func (c *Control) PopFirst() *Node {
	if c.IsEmpty() {
		return nil
	}
	n := c.sentinel.next
	Extract(n)
	return n
}

// Extract unlinks n from whatever chain currently holds it. n must be
// linked; extracting an unlinked node corrupts the ring.
//
//go:nosplit
//go:inline
//go:registerparams
func Extract(n *Node) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.next = nil
	n.prev = nil
}

// IsLinked reports whether n is currently on some chain.
//
//go:nosplit
//go:inline
//go:registerparams
func IsLinked(n *Node) bool {
	return n.next != nil
}
