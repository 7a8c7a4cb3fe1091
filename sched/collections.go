package sched

import (
	"kcore/isync"
	"kcore/queue"
)

// Manager owns the active and free thread collections and the scheduler
// they feed: Spawn creates each TCB fresh in the active collection, it is
// optionally scheduled, and Retire moves it to the free collection. No
// TCB is taken back out of the free collection.
type Manager struct {
	Scheduler *Scheduler

	active *isync.RWLock[queue.Head[TCB]]
	free   *isync.RWLock[queue.Head[TCB]]

	nextID uint64
}

// NewManager creates a manager with empty active and free collections.
func NewManager() *Manager {
	return &Manager{
		Scheduler: NewScheduler(),
		active:    isync.NewRWLock(queue.Head[TCB]{}),
		free:      isync.NewRWLock(queue.Head[TCB]{}),
	}
}

// Spawn creates a new TCB for task, runs fn on its own goroutine, adds it
// to the active collection, and returns a Handle to it. The thread is not
// scheduled; call ScheduleThread/MakeRunnable to put it on the run queue.
func (m *Manager) Spawn(self isync.ThreadID, task *Task, fn func(*TCB)) Handle {
	m.nextID++
	id := isync.ThreadID(m.nextID)
	t := m.Scheduler.Spawn(id, task, fn)

	ag := m.active.Lock(self)
	ag.Value().InsertTail(t, generalLink)
	ag.Unlock()

	return NewHandle(t)
}

// MakeRunnable schedules h's thread, the supplemented syscall-level
// convenience wrapping DisableInterrupts + ScheduleThread the way a
// make-runnable syscall would from the caller's point of view.
func (m *Manager) MakeRunnable(self isync.ThreadID, h Handle) error {
	guard := isync.DisableInterrupts()
	defer guard.Release()
	return m.Scheduler.ScheduleThread(guard, self, h.tcb)
}

// MakeRunnableByTID is the syscall-shaped variant of MakeRunnable: the
// tid comes from an untrusted caller and is validated against the active
// collection before the thread is scheduled.
func (m *Manager) MakeRunnableByTID(self isync.ThreadID, tid isync.ThreadID) error {
	h, ok := m.ByTID(self, tid)
	if !ok {
		return ErrNoSuchThread
	}
	err := m.MakeRunnable(self, h)
	h.Drop()
	return err
}

// ByTID linearly scans the active collection for a thread with the given
// ID, the supplemented lookup operation a debugger or syscall dispatcher
// needs.
func (m *Manager) ByTID(self isync.ThreadID, id isync.ThreadID) (Handle, bool) {
	ag := m.active.RLock(self)
	defer ag.Unlock()

	it := ag.Value().Iter(generalLink)
	for t, ok := it.Next(); ok; t, ok = it.Next() {
		if t.id == id {
			return NewHandle(t), true
		}
	}
	return Handle{}, false
}

// Retire moves h's thread from the active collection to the free
// collection. The caller must have already ensured the thread is off the
// run queue and its refcount has reached zero (Handle.Drop reports this).
func (m *Manager) Retire(self isync.ThreadID, h Handle) {
	ag := m.active.Lock(self)
	ag.Value().Remove(h.tcb, generalLink)
	ag.Unlock()

	fg := m.free.Lock(self)
	fg.Value().InsertTail(h.tcb, generalLink)
	fg.Unlock()
}
