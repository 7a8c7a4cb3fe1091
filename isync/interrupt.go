// Package isync provides the synchronization primitives the scheduler and
// the rest of the kernel core build on: a scoped interrupt-disable guard,
// an owner-tracking spin lock, a FIFO mutex, a condition variable, and a
// writer-preferring reader/writer lock. Each blocking call creates its own
// waiter node, and that node stays queued only until the call returns.
package isync

import (
	"sync"
	"sync/atomic"
)

// nestingCount is the single global count of outstanding interrupt-disable
// guards, regardless of which goroutine holds them. On real single-CPU
// hardware "current TCB's nesting count" and "the one true nesting count"
// are the same number, because only one thread is ever actually running
// at a time; a context switch just relocates which TCB's counter is being
// read and written next, with no concurrent access to race over. A
// goroutine-hosted simulation has genuine parallelism, and a context
// switch can hand the CPU token to a different goroutine while a guard
// taken on the outbound one is still outstanding — so the decision of
// "is the exclusion currently active" has to live in one place shared by
// everybody, not bounced between per-thread counters that a handoff could
// leave stuck non-zero forever. Per-TCB nesting depth is still tracked
// (see NestingObserver) purely as bookkeeping on each TCB; it never
// drives runQueueMu itself.
var nestingCount atomic.Int32

// NestingObserver, when installed, is notified with the new nesting depth
// every time a guard is acquired (positive delta) or released (negative
// delta), so the scheduler package can mirror it onto whichever TCB is
// current for diagnostic purposes. isync itself has no notion of threads
// or TCBs, to avoid an isync<->sched import cycle.
var NestingObserver func(delta int32)

func notifyNesting(delta int32) {
	if NestingObserver != nil {
		NestingObserver(delta)
	}
}

// runQueueMu is the stand-in for "the CPU's interrupts are masked". Real
// hardware interrupt-disabling only ever needs to exclude that one core's
// own ISR; a goroutine-hosted simulation has genuine parallelism between
// goroutines, so a mutex is what actually keeps concurrent mutators of
// schedule-shaped state from interleaving. Taken only on the 0->1 guard
// transition and released only on the 1->0 transition, matching the
// "physically re-enabled only when the count transitions 1 -> 0" rule.
var runQueueMu sync.Mutex

// InterruptGuard is a scoped, reference-counted "interrupts disabled"
// token. Nested guards just bump the global count; the underlying
// exclusion is only released when the outermost guard anywhere is
// released. A zero-value InterruptGuard is not valid; obtain one from
// DisableInterrupts.
type InterruptGuard struct {
	released bool
}

// DisableInterrupts begins (or extends) an interrupt-disabled region.
// Every schedule-queue access must happen under one of these.
func DisableInterrupts() *InterruptGuard {
	if nestingCount.Add(1) == 1 {
		runQueueMu.Lock()
	}
	notifyNesting(1)
	return &InterruptGuard{}
}

// Release ends this guard's contribution to the nesting count, physically
// re-enabling interrupts only if this was the outermost guard anywhere.
// Calling Release more than once on the same guard is a no-op.
func (g *InterruptGuard) Release() {
	if g == nil || g.released {
		return
	}
	g.released = true
	notifyNesting(-1)
	if nestingCount.Add(-1) == 0 {
		runQueueMu.Unlock()
	}
}
