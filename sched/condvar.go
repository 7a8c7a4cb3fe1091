package sched

import (
	"sync/atomic"

	"kcore/isync"
)

// SchedulerBlocker returns an isync.Blocker that actually deschedules and
// yields the calling thread instead of polling, wiring a plain CondVar
// into this scheduler. It relies on Current() correctly identifying
// whichever TCB is presently running — true by construction, since the
// goroutine calling Wait is the one that currently holds the CPU token.
func SchedulerBlocker(m *Manager) isync.Blocker {
	return func(flag *atomic.Bool) {
		self := Current()
		guard := isync.DisableInterrupts()
		m.Scheduler.BlockUntil(guard, self, flag)
		guard.Release()
	}
}

// SchedulerWake returns the wake hook that makes a signalled thread
// runnable again, the scheduler-integrated counterpart to
// SchedulerBlocker. Use the waking thread's own ThreadID as self for the
// active-collection lookup; any live ThreadID is sufficient.
func SchedulerWake(m *Manager) func(isync.ThreadID) {
	return func(id isync.ThreadID) {
		if h, ok := m.ByTID(id, id); ok {
			_ = m.MakeRunnable(id, h)
			h.Drop()
		}
	}
}

// NewCondVar creates a condition variable whose waiters are actually
// descheduled and whose signals actually reschedule them, rather than
// spin-polling a flag — the scheduler-integrated counterpart to a bare
// isync.NewCondVar() used outside of any scheduler.
func NewCondVar(m *Manager) *isync.CondVar {
	return isync.NewCondVar(
		isync.WithBlocker(SchedulerBlocker(m)),
		isync.WithWake(SchedulerWake(m)),
	)
}
