package threadq

import (
	"sync/atomic"
	"time"
)

// TimeoutDiscipline selects how the Context timeout is interpreted.
type TimeoutDiscipline uint32

const (
	// NoTimeout blocks forever.
	NoTimeout TimeoutDiscipline = iota

	// TimeoutRelative bounds the wait by Interval from the enqueue.
	TimeoutRelative

	// TimeoutAbsolute bounds the wait by the Deadline wall-clock instant.
	TimeoutAbsolute
)

// DeadlockCallout is invoked on the enqueuing thread when Path traversal
// detects an ownership cycle, before the thread joins the waiting set. It
// must be configured whenever the queue's object type supports ownership;
// objects without ownership semantics must not supply one and never reach
// this path.
type DeadlockCallout func(t *Thread)

// MPCallout unblocks a remote-node proxy instead of a local unpark. id is
// the object identifier of the object containing the queue.
type MPCallout func(proxy *Thread, id uint32)

// Context is the transient, per-blocking-call bundle. It lives on the
// caller's stack for exactly one Enqueue and is never persisted; the Wait
// sub-record stays reachable by other processors only until the actor that
// dequeues the thread finishes with it.
type Context struct {
	// ExpectedDisableLevel is the thread dispatch disable nesting level
	// the caller expects to hold at the blocking point. A non-zero value
	// is verified against the actual level; a mismatch is a fatal
	// kernel-invariant violation. Zero skips the check.
	ExpectedDisableLevel uint32

	// Timeout configuration. Interval is used by TimeoutRelative,
	// Deadline by TimeoutAbsolute.
	TimeoutDiscipline TimeoutDiscipline
	Interval          time.Duration
	Deadline          time.Time

	// Deadlock is required whenever the object type supports ownership.
	Deadlock DeadlockCallout

	// MP is consulted when the dequeued entity is a remote-node proxy.
	MP MPCallout

	// Wait supports in-flight enqueue operations: the thread's hand-off
	// gate plus the queue the thread is currently transitioning onto,
	// consulted by cross-processor extraction.
	Wait struct {
		Gate  Gate
		Queue *Queue
	}
}

// Initialize resets the context for one blocking call. The zero value is
// equivalent; explicit initialization allows stack reuse across calls.
//
//go:nosplit
//go:inline
func (ctx *Context) Initialize() {
	*ctx = Context{}
}

// SetTimeoutRelative arms a relative interval timeout.
//
//go:nosplit
//go:inline
func (ctx *Context) SetTimeoutRelative(d time.Duration) {
	ctx.TimeoutDiscipline = TimeoutRelative
	ctx.Interval = d
}

// SetTimeoutAbsolute arms an absolute deadline timeout.
//
//go:nosplit
//go:inline
func (ctx *Context) SetTimeoutAbsolute(at time.Time) {
	ctx.TimeoutDiscipline = TimeoutAbsolute
	ctx.Deadline = at
}

// SetNoTimeout selects the wait-forever sentinel.
//
//go:nosplit
//go:inline
func (ctx *Context) SetNoTimeout() {
	ctx.TimeoutDiscipline = NoTimeout
}

// SetDeadlockCallout configures the deadlock report path.
//
//go:nosplit
//go:inline
func (ctx *Context) SetDeadlockCallout(cb DeadlockCallout) {
	ctx.Deadlock = cb
}

// SetMPCallout configures the cross-node unblock path.
//
//go:nosplit
//go:inline
func (ctx *Context) SetMPCallout(cb MPCallout) {
	ctx.MP = cb
}

// DeadlockFatal is the callout for object types that consider an ownership
// cycle a programming error beyond recovery.
func DeadlockFatal(t *Thread) {
	fatal("deadlock involving thread " + t.Name())
}

// DeadlockStatus is the callout for object types that report deadlock to
// the caller: Enqueue already returns StatusDeadlock, so nothing else is
// needed here.
func DeadlockStatus(t *Thread) {}

// dispatchDisableLevel models the per-processor thread dispatch disable
// nesting that the surrounding kernel maintains around blocking calls.
var dispatchDisableLevel atomic.Uint32

// DispatchDisable raises the dispatch disable nesting level and returns
// the new level.
//
//go:nosplit
//go:inline
func DispatchDisable() uint32 {
	return dispatchDisableLevel.Add(1)
}

// DispatchEnable lowers the dispatch disable nesting level.
//
//go:nosplit
//go:inline
func DispatchEnable() {
	dispatchDisableLevel.Add(^uint32(0))
}

// DispatchDisableLevel returns the current nesting level.
//
//go:nosplit
//go:inline
func DispatchDisableLevel() uint32 {
	return dispatchDisableLevel.Load()
}
