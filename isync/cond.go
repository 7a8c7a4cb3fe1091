package isync

import (
	"sync/atomic"
	"time"

	"kcore/diag"
	"kcore/queue"
)

// condWaiter is the intrusive queue node a thread blocked in Wait
// contributes. doNotDeschedule is the atomicity trick:
// it starts false, and a concurrent Signal/Broadcast between the waiter
// unlocking its user mutex and actually blocking will flip it true,
// making the subsequent block a no-op instead of a lost wakeup.
type condWaiter struct {
	link            queue.Link[condWaiter]
	thread          ThreadID
	doNotDeschedule atomic.Bool
}

func condWaiterLink(w *condWaiter) *queue.Link[condWaiter] { return &w.link }

// Blocker actually parks the calling thread until flag becomes true. The
// default implementation polls with backoff; a scheduler-integrated
// caller supplies one that really deschedules the thread and is woken by
// Signal/Broadcast's wake hook instead of polling.
type Blocker func(flag *atomic.Bool)

func defaultBlocker(flag *atomic.Bool) {
	backoff := startingBackoff
	for !flag.Load() {
		time.Sleep(backoff)
		backoff *= backoffFactor
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// CondVar is a condition variable: threads call Wait while holding some
// Mutex they share, are woken by another thread's Signal or Broadcast, and
// reacquire that same mutex before Wait returns. Its own waiter queue is
// itself protected by a Mutex, so signalling never has to disable
// interrupts or otherwise special-case concurrent access.
type CondVar struct {
	waiters *Mutex[queue.Head[condWaiter]]
	block   Blocker
	wake    func(ThreadID)
}

// CondVarOption configures optional scheduler integration.
type CondVarOption func(*CondVar)

// WithBlocker overrides the default poll-with-backoff park strategy.
func WithBlocker(b Blocker) CondVarOption { return func(c *CondVar) { c.block = b } }

// WithWake registers a hook invoked with a waiter's ThreadID whenever it
// is signalled, letting a scheduler actually make that thread runnable
// instead of relying on the blocker to notice the flag flip on its own.
func WithWake(w func(ThreadID)) CondVarOption { return func(c *CondVar) { c.wake = w } }

// NewCondVar creates an empty condition variable.
func NewCondVar(opts ...CondVarOption) *CondVar {
	c := &CondVar{
		waiters: NewMutex(queue.Head[condWaiter]{}),
		block:   defaultBlocker,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Wait releases guard's mutex, blocks until signalled, and reacquires
// that mutex before returning a fresh guard for it. Go methods cannot
// introduce their own type parameters, so this has to be a package-level
// function rather than a method on CondVar.
func Wait[U any](c *CondVar, self ThreadID, guard *MutexGuard[U]) *MutexGuard[U] {
	waiter := &condWaiter{thread: self}

	wg := c.waiters.Lock(self)
	wg.Value().InsertTail(waiter, condWaiterLink)

	userMutex := guard.mutex
	guard.Unlock()
	wg.Unlock()

	c.block(&waiter.doNotDeschedule)

	return userMutex.Lock(self)
}

func (c *CondVar) wakeOne(wg *MutexGuard[queue.Head[condWaiter]], w *condWaiter) {
	wg.Value().Remove(w, condWaiterLink)
	w.doNotDeschedule.Store(true)
	if c.wake != nil {
		c.wake(w.thread)
	}
}

// Signal wakes the longest-waiting thread blocked in Wait, if any.
func (c *CondVar) Signal(self ThreadID) {
	wg := c.waiters.Lock(self)
	defer wg.Unlock()
	if front := wg.Value().Front(); front != nil {
		c.wakeOne(wg, front)
	}
}

// Broadcast wakes every thread currently blocked in Wait.
func (c *CondVar) Broadcast(self ThreadID) {
	wg := c.waiters.Lock(self)
	defer wg.Unlock()
	for {
		front := wg.Value().Front()
		if front == nil {
			return
		}
		c.wakeOne(wg, front)
	}
}

// Destroy flags, via the diagnostic channel, an attempt to tear down a
// condition variable with threads still waiting on it.
func (c *CondVar) Destroy(self ThreadID) {
	wg := c.waiters.Lock(self)
	defer wg.Unlock()
	if wg.Value().Front() != nil {
		diag.Illegal("isync.CondVar", "destroyed while threads are still waiting on it")
	}
}
