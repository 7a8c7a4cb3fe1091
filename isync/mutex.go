package isync

import (
	"kcore/diag"
	"kcore/queue"
)

// mutexWaiter is the intrusive queue node a blocked thread contributes
// while waiting on a Mutex. Lock creates one per call, and it is off the
// waitlist again before Lock returns.
type mutexWaiter struct {
	link    queue.Link[mutexWaiter]
	thread  ThreadID
	hasLock bool
}

func mutexWaiterLink(w *mutexWaiter) *queue.Link[mutexWaiter] { return &w.link }

// Mutex is a FIFO mutual-exclusion lock: the first thread to find the
// waitlist empty takes the lock directly; everyone else queues and is
// handed the lock, in order, by whoever currently holds it. It is built
// out of two OwnedLocks — one guarding the waitlist, one guarding the
// protected data — rather than a single primitive, so that the handoff on
// unlock can use OwnedLock.TransferTo instead of releasing the lock to be
// raced over by a thread that never queued.
type Mutex[T any] struct {
	waitList *OwnedLock[queue.Head[mutexWaiter]]
	lock     *OwnedLock[T]
}

// MutexGuard is proof of exclusive access to a Mutex's data.
type MutexGuard[T any] struct {
	mutex    *Mutex[T]
	self     ThreadID
	inner    *OwnedLockGuard[T]
	released bool
}

// NewMutex wraps data in a fresh, unlocked Mutex.
func NewMutex[T any](data T) *Mutex[T] {
	return &Mutex[T]{
		waitList: NewOwnedLock(queue.Head[mutexWaiter]{}, nil),
		lock:     NewOwnedLock(data, nil),
	}
}

// TryLock attempts to acquire the mutex without blocking or queueing.
func (m *Mutex[T]) TryLock(self ThreadID) (*MutexGuard[T], bool) {
	wl := m.waitList.WaitForLock(self)
	defer wl.Unlock()

	if wl.Value().Back() != nil {
		return nil, false
	}
	inner, _, ok := m.lock.TryLock(self)
	if !ok {
		return nil, false
	}
	return &MutexGuard[T]{mutex: m, self: self, inner: inner}, true
}

// Lock blocks until self holds the mutex.
func (m *Mutex[T]) Lock(self ThreadID) *MutexGuard[T] {
	waiter := &mutexWaiter{thread: self}

	wl := m.waitList.WaitForLock(self)
	if wl.Value().Back() == nil {
		if inner, _, ok := m.lock.TryLock(self); ok {
			wl.Unlock()
			return &MutexGuard[T]{mutex: m, self: self, inner: inner}
		}
	}

	wl.Value().InsertTail(waiter, mutexWaiterLink)
	wl.Unlock()

	inner := m.lock.WaitForLock(self)

	// hasLock is written and read only under the waitlist lock, whose
	// release is what makes an unlocker's handoff visible. False here
	// means we won the underlying OwnedLock ourselves rather than being
	// handed it via TransferTo, so our now-stale waitlist entry must go;
	// true means the unlocker already removed it during its release.
	wl2 := m.waitList.WaitForLock(self)
	if !waiter.hasLock {
		wl2.Value().Remove(waiter, mutexWaiterLink)
	}
	wl2.Unlock()

	return &MutexGuard[T]{mutex: m, self: self, inner: inner}
}

// Value returns a pointer to the protected data. Valid only while the
// guard has not been released.
func (g *MutexGuard[T]) Value() *T {
	return g.inner.Value()
}

// Unlock releases the mutex, handing it directly to the next queued
// waiter (if any) rather than simply releasing the flag for the next
// TryLock to race over. Safe to call more than once.
func (g *MutexGuard[T]) Unlock() {
	if g == nil || g.released {
		return
	}
	g.released = true

	wl := g.mutex.waitList.WaitForLock(g.self)
	next := wl.Value().Front()
	if next == nil {
		g.inner.Unlock()
		wl.Unlock()
		return
	}
	// Pop the head waiter, transfer ownership to it, then set its
	// has-lock flag — in that order. Everything happens under the
	// waitlist lock; releasing it is what publishes the handoff.
	wl.Value().Remove(next, mutexWaiterLink)
	g.inner.TransferTo(next.thread)
	next.hasLock = true
	wl.Unlock()
}

// Destroy checks that nobody is waiting on the mutex. Go has no
// destructors, but tearing down a lock with waiters still queued on it
// is still worth flagging.
func (m *Mutex[T]) Destroy(self ThreadID) {
	wl := m.waitList.WaitForLock(self)
	defer wl.Unlock()
	if wl.Value().Front() != nil {
		diag.Illegal("isync.Mutex", "destroyed while threads are still queued on its waitlist")
	}
}
