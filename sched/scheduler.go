package sched

import (
	"errors"
	"runtime"
	"sync/atomic"

	"kcore/isync"
	"kcore/queue"
)

// ErrAlreadyScheduled is returned by ScheduleThread when the handle is
// already on the run queue.
var ErrAlreadyScheduled = errors.New("sched: thread already scheduled")

// ErrNotScheduled is returned by DescheduleThread or YieldThread when the
// given handle is not currently on the run queue.
var ErrNotScheduled = errors.New("sched: thread not scheduled")

// ErrNoSuchThread is returned by MakeRunnableByTID when the tid does not
// name any thread in the active collection.
var ErrNoSuchThread = errors.New("sched: no thread with that tid")

// schedState is the run queue plus the sweep cursor, both protected by a
// single OwnedLock that spins rather than yielding — the scheduler's own
// lock cannot yield back into the scheduler.
type schedState struct {
	queue queue.Head[TCB]
	next  *TCB
}

// Scheduler holds the single intrusive run queue for one (simulated) CPU.
type Scheduler struct {
	state *isync.OwnedLock[schedState]
}

// currentTCB tracks whichever TCB currently "holds the CPU". There is
// exactly one CPU in this kernel model, so one package-level pointer is
// enough: exactly one TCB is current at any time.
var currentTCB atomic.Pointer[TCB]

func init() {
	// Mirror the global interrupt-nesting depth onto whichever TCB is
	// current, purely as per-thread bookkeeping; the real exclusion
	// decision lives entirely in isync's own global counter (see
	// isync/interrupt.go), since a context switch can hand the CPU to a
	// different goroutine while a guard taken on the outbound one is
	// still outstanding.
	isync.NestingObserver = func(delta int32) {
		if t := currentTCB.Load(); t != nil {
			t.irqDepth.Add(delta)
		}
	}
}

// NewScheduler creates an empty scheduler with no runnable threads.
func NewScheduler() *Scheduler {
	return &Scheduler{
		state: isync.NewOwnedLock(schedState{}, isync.SpinYielder),
	}
}

// Next implements get_next_thread: it returns the thread the sweep cursor
// is on and moves the cursor to the following thread (wrapping to the
// front), or returns nil if the ring is empty.
func (s *Scheduler) Next(guard *isync.InterruptGuard, self isync.ThreadID) *TCB {
	g := s.state.WaitForLock(self)
	defer g.Unlock()
	st := g.Value()

	if st.next == nil {
		st.next = st.queue.Front()
		return nil
	}
	curr := st.next
	nxt := scheduleLink(curr).Next()
	if nxt == nil {
		nxt = st.queue.Front()
	}
	st.next = nxt
	return curr
}

// ScheduleThread inserts t into the run queue immediately after the
// sweep cursor (so it runs right after the thread the cursor is on), or
// becomes the cursor itself if the queue was empty.
func (s *Scheduler) ScheduleThread(guard *isync.InterruptGuard, self isync.ThreadID, t *TCB) error {
	g := s.state.WaitForLock(self)
	defer g.Unlock()

	if t.scheduled.Load() {
		return ErrAlreadyScheduled
	}
	t.scheduled.Store(true)
	// The run queue holds its own reference: a TCB's count is live
	// handles plus one while it is scheduled.
	t.refcount.Add(1)

	st := g.Value()
	if st.next == nil {
		st.queue.InsertTail(t, scheduleLink)
		st.next = t
	} else {
		st.queue.InsertAfter(st.next, t, scheduleLink)
	}
	return nil
}

// DescheduleThread removes t from the run queue, advancing the sweep
// cursor first if t was it.
func (s *Scheduler) DescheduleThread(guard *isync.InterruptGuard, self isync.ThreadID, t *TCB) error {
	g := s.state.WaitForLock(self)
	defer g.Unlock()

	if !t.scheduled.Load() {
		return ErrNotScheduled
	}

	st := g.Value()
	wasNext := st.next == t
	var advance *TCB
	if wasNext {
		advance = scheduleLink(t).Next()
	}

	t.scheduled.Store(false)
	st.queue.Remove(t, scheduleLink)
	t.refcount.Add(-1)

	if wasNext {
		if advance == nil {
			advance = st.queue.Front()
		}
		st.next = advance
	}
	return nil
}

// ByTID linearly scans the run queue for the scheduled thread with the
// given id, the lookup a syscall dispatcher uses to resolve a
// caller-supplied tid into a thread it may yield to.
func (s *Scheduler) ByTID(guard *isync.InterruptGuard, self isync.ThreadID, id isync.ThreadID) (*TCB, bool) {
	g := s.state.WaitForLock(self)
	defer g.Unlock()

	it := g.Value().queue.Iter(scheduleLink)
	for t, ok := it.Next(); ok; t, ok = it.Next() {
		if t.id == id {
			return t, true
		}
	}
	return nil, false
}

// switchTo performs the actual handoff: target is marked current and
// handed the CPU token, while self blocks until it is handed the token
// back by some future switch. This is the stand-in for a two-step
// save-frame-pointer/resume-frame-pointer context switch in assembly —
// there is no register file to save here, only a rendezvous between two
// goroutines.
func (s *Scheduler) switchTo(self, target *TCB) {
	currentTCB.Store(target)
	target.wake <- struct{}{}
	<-self.wake
	currentTCB.Store(self)
}

// YieldThread switches away from self. If target is non-nil it must
// already be scheduled; otherwise the next runnable thread from the run
// queue is chosen. If nothing else is runnable, self simply keeps the
// CPU — there is nothing to switch to — and YieldThread returns
// immediately, the same way a single-CPU kernel with no idle thread
// scheduled would just fall through and keep running whatever called it.
func (s *Scheduler) YieldThread(guard *isync.InterruptGuard, self *TCB, target *TCB) error {
	if target != nil {
		if !target.scheduled.Load() {
			return ErrNotScheduled
		}
		s.switchTo(self, target)
		return nil
	}

	if next := s.Next(guard, self.id); next != nil {
		s.switchTo(self, next)
	}
	return nil
}

// BlockUntil deschedules self and yields, repeatedly, until flag becomes
// true. Interrupts must already be disabled by guard. Per the condition
// variable protocol, something else is expected to both flip flag and
// reschedule self (see CondVar.Signal/Broadcast and SchedulerWake) — if
// nothing ever does, this blocks forever.
func (s *Scheduler) BlockUntil(guard *isync.InterruptGuard, self *TCB, flag *atomic.Bool) {
	for !flag.Load() {
		_ = s.DescheduleThread(guard, self.id, self)
		_ = s.YieldThread(guard, self, nil)
		runtime.Gosched()
	}
}

// Spawn creates a TCB backed by a fresh goroutine running fn. The
// goroutine blocks immediately, waiting to be handed the CPU for the
// first time by a future YieldThread/ScheduleThread pair — it does not
// start running fn until then.
func (s *Scheduler) Spawn(id isync.ThreadID, task *Task, fn func(*TCB)) *TCB {
	t := NewTCB(id, task)
	go func() {
		<-t.wake
		fn(t)
	}()
	return t
}

// Current returns whichever TCB currently holds the CPU, or nil before
// the scheduler has switched to anything.
func Current() *TCB {
	return currentTCB.Load()
}

// Root returns a synthetic TCB representing the bootstrap context that
// kicks off the first real thread — kernel-main before any thread has
// run, or a test harness driving the scheduler directly. It runs on
// whichever goroutine calls YieldThread with it, rather than a spawned
// one, and is never itself scheduled.
func (s *Scheduler) Root(id isync.ThreadID) *TCB {
	t := &TCB{id: id, wake: make(chan struct{}, 1)}
	// Root never goes through ScheduleThread/the ring, but it must always
	// be a valid YieldThread target: it is the bootstrap context that
	// kicked everything else off and is always there to hand control
	// back to.
	t.scheduled.Store(true)
	return t
}
