package threadq

// Status is the outcome of a blocking or dequeue operation. Kernel paths
// report outcomes as plain codes: no error value is ever allocated while a
// thread is blocked.
type Status uint32

const (
	// StatusSuccessful: the wait was satisfied by a surrender.
	StatusSuccessful Status = iota

	// StatusTimeout: the wait interval elapsed before a surrender; the
	// thread was extracted and resumed. Not a fatal condition.
	StatusTimeout

	// StatusDeadlock: enqueueing would have closed an ownership cycle;
	// the thread was never added to the waiting set.
	StatusDeadlock

	// StatusUnavailable: the thread was extracted explicitly (object
	// deletion, flush) before a surrender.
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusSuccessful:
		return "successful"
	case StatusTimeout:
		return "timeout"
	case StatusDeadlock:
		return "deadlock"
	case StatusUnavailable:
		return "unavailable"
	}
	return "unknown"
}
