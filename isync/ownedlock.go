package isync

import (
	"runtime"
	"sync/atomic"
	"time"

	"kcore/diag"
)

// ThreadID identifies whoever is calling into a lock. Go has no built-in
// notion of "current thread" the way a TLS slot would provide (there is
// no stable, cheap way to ask a goroutine who it is), so every operation
// here takes it explicitly instead of discovering it
// implicitly. Anything that wants to act as a kernel thread — a bare
// goroutine in a test, or a sched.TCB — picks a nonzero ThreadID for
// itself and passes it consistently. Zero means "no owner".
type ThreadID uint64

const (
	startingBackoff = 50 * time.Microsecond
	maxBackoff      = 500 * time.Millisecond
	backoffFactor   = 2
)

// Yielder is called by WaitForLock between failed acquisition attempts.
// owner is the thread currently holding the lock, or 0 if the lock is
// momentarily unowned (a race the caller lost). Implementations are free
// to busy-spin, back off, or actually deschedule the caller.
type Yielder func(owner ThreadID)

// defaultYielder backs off exponentially, grounded in the constants a
// plain spin/yield lock in this codebase has always used. It does not
// attempt to target owner specifically — Go cannot yield the processor to
// one particular goroutine — so owner is informational only here.
func defaultYielder(backoffState *atomic.Int64) Yielder {
	return func(owner ThreadID) {
		cur := time.Duration(backoffState.Load())
		if cur == 0 {
			cur = startingBackoff
		}
		time.Sleep(cur)
		next := cur * backoffFactor
		if next > maxBackoff {
			next = maxBackoff
		}
		backoffState.Store(int64(next))
	}
}

// SpinYielder never sleeps; it just gives the Go scheduler a chance to
// run someone else. Used for locks that protect the run queue itself,
// which cannot yield back into the scheduler — it simply spins.
func SpinYielder(owner ThreadID) {
	runtime.Gosched()
}

// OwnedLock is a spin lock that remembers who holds it. Unlike a bare
// atomic flag, a thread can ask "who has this locked right now" (useful
// for Mutex's FIFO handoff, and for diagnosing reentrant deadlocks), and
// ownership can be handed directly to another thread without ever
// releasing the underlying flag (TransferTo).
type OwnedLock[T any] struct {
	status       atomic.Bool
	owner        atomic.Uint64
	guardCreated atomic.Bool
	yield        Yielder
	backoff      atomic.Int64
	data         T
}

// OwnedLockGuard is proof of exclusive access to an OwnedLock's data,
// obtained from TryLock or WaitForLock.
type OwnedLockGuard[T any] struct {
	lock     *OwnedLock[T]
	released bool
}

// NewOwnedLock wraps data in a fresh, unlocked OwnedLock. A nil yield uses
// the default exponential-backoff strategy.
func NewOwnedLock[T any](data T, yield Yielder) *OwnedLock[T] {
	l := &OwnedLock[T]{data: data}
	if yield != nil {
		l.yield = yield
	} else {
		l.yield = defaultYielder(&l.backoff)
	}
	return l
}

// TryLock attempts to acquire the lock without blocking. On success it
// returns a guard and true. On failure it returns the current owner (0 if
// the lock happened to be unowned in the instant observed) and false.
func (l *OwnedLock[T]) TryLock(self ThreadID) (*OwnedLockGuard[T], ThreadID, bool) {
	if !l.status.Swap(true) {
		// We just transitioned the flag from unlocked to locked: we are
		// the new owner.
		l.owner.Store(uint64(self))
	}

	owner := ThreadID(l.owner.Load())
	if owner == self && !l.guardCreated.Swap(true) {
		return &OwnedLockGuard[T]{lock: l}, 0, true
	}
	return nil, owner, false
}

// WaitForLock blocks, using this lock's configured Yielder between
// attempts, until self acquires the lock.
func (l *OwnedLock[T]) WaitForLock(self ThreadID) *OwnedLockGuard[T] {
	return l.WaitForLockWith(self, l.yield)
}

// WaitForLockWith is WaitForLock with an explicitly supplied wait
// strategy, overriding the lock's configured Yielder for this call.
func (l *OwnedLock[T]) WaitForLockWith(self ThreadID, wait Yielder) *OwnedLockGuard[T] {
	for {
		guard, owner, ok := l.TryLock(self)
		if ok {
			return guard
		}
		if owner == self {
			// The calling thread already holds this lock and is trying
			// to take it again through a second call path. That is not
			// supported — it is not a reentrant lock — so the only way
			// forward is to wait for whichever path holds the existing
			// guard to release it.
			diag.Warn("isync.OwnedLock", "thread re-entered wait_for_lock while already holding the guard")
			for l.guardCreated.Load() {
				wait(self)
			}
			continue
		}
		wait(owner)
	}
}

// Value returns a pointer to the protected data. Valid only while the
// guard has not been released.
func (g *OwnedLockGuard[T]) Value() *T {
	return &g.lock.data
}

// Unlock releases the lock. Safe to call more than once; only the first
// call has an effect.
func (g *OwnedLockGuard[T]) Unlock() {
	if g == nil || g.released {
		return
	}
	g.released = true
	g.lock.owner.Store(0)
	g.lock.guardCreated.Store(false)
	g.lock.status.Store(false)
}

// TransferTo hands ownership of the still-locked lock directly to
// newOwner without ever releasing the status flag, and forgets this
// guard (further calls to Unlock on it do nothing). Used by Mutex's
// unlock protocol to pass the lock straight to the next waiter instead of
// releasing it to be raced over. The guard-created latch is cleared
// before the new owner is published, so the new owner's own TryLock can
// mint its guard; the status flag stays locked throughout, so no third
// thread can slip in between.
func (g *OwnedLockGuard[T]) TransferTo(newOwner ThreadID) {
	if g == nil || g.released {
		return
	}
	g.released = true
	g.lock.guardCreated.Store(false)
	g.lock.owner.Store(uint64(newOwner))
}
