package sched

// Handle is a borrowed, reference-counted reference to a TCB. Handles may
// be copied freely and cross goroutine boundaries; two handles are equal
// iff they refer to the same TCB (pointer identity). Dropping the last
// handle to a TCB that is also off every collection makes it eligible for
// reuse by the thread manager.
type Handle struct {
	tcb *TCB
}

// NewHandle wraps t in a Handle, incrementing its reference count.
func NewHandle(t *TCB) Handle {
	t.refcount.Add(1)
	return Handle{tcb: t}
}

// TCB returns the underlying thread control block.
func (h Handle) TCB() *TCB { return h.tcb }

// Clone returns a second handle to the same TCB, incrementing its
// reference count.
func (h Handle) Clone() Handle {
	h.tcb.refcount.Add(1)
	return Handle{tcb: h.tcb}
}

// Equal reports whether h and other refer to the same TCB.
func (h Handle) Equal(other Handle) bool { return h.tcb == other.tcb }

// Drop decrements the TCB's reference count. It does not reclaim the TCB
// itself — that happens when the thread manager observes the count has
// reached zero and the TCB is off every collection — it only reports
// whether this was the handle that brought the count to zero, so the
// caller can hand the TCB back to the free collection.
func (h Handle) Drop() (reachedZero bool) {
	return h.tcb.refcount.Add(-1) == 0
}

// RefCount reports the TCB's current outstanding handle count. Exposed
// for tests and diagnostics; not meant to drive control flow since it can
// change the instant it is observed.
func (h Handle) RefCount() int32 { return h.tcb.refcount.Load() }
