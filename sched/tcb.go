// Package sched implements the kernel's thread control blocks and its
// single-CPU preemptive-in-name, cooperative-in-practice scheduler. Go
// gives us no hardware interrupt line and no way to literally save one
// goroutine's register file and resume another's, so "context switch"
// here means a real channel rendezvous between two goroutines: the
// outbound thread hands a token to the inbound one and blocks on its own
// channel until it is handed back. The observable scheduling behavior —
// who runs next, FIFO/ring order, blocking until woken — is unchanged by
// this; only the mechanism by which one goroutine stops and another
// starts differs from a hardware context switch.
package sched

import (
	"sync/atomic"

	"kcore/isync"
	"kcore/queue"
)

// Task is a minimal stand-in for the enclosing process/address-space a
// TCB belongs to. Page directories live in package vm, which has no task
// type of its own; sched only needs enough of a handle to satisfy the TCB's
// "pointer to the enclosing task" field and the inKernelDirectory flag.
type Task struct {
	ID   uint64
	Name string
}

// TCB is a thread control block. It does not carry a saved kernel-stack
// offset or a suspended user-mode register-state pointer — there is no
// real register file to save when a "context switch" is a channel
// handoff between live goroutines, and actually emulating x86 context
// switch assembly has no idiomatic Go expression.
type TCB struct {
	id isync.ThreadID

	task              *Task
	inKernelDirectory atomic.Bool
	scheduled         atomic.Bool
	userDescheduled   atomic.Bool
	refcount          atomic.Int32
	irqDepth          atomic.Int32

	scheduleLink queue.Link[TCB] // membership in the run queue
	generalLink  queue.Link[TCB] // membership in the active/free collection
	taskLink     queue.Link[TCB] // membership in the owning task's thread list

	exceptionHandler func(*TCB, any)

	wake chan struct{} // buffered(1): "you have the CPU now"
}

// ID is the ThreadID this TCB presents to every isync primitive it calls
// into — lock ownership, condvar waiter identity, and so on.
func (t *TCB) ID() isync.ThreadID { return t.id }

// Task returns the task this thread belongs to.
func (t *TCB) Task() *Task { return t.task }

func scheduleLink(t *TCB) *queue.Link[TCB] { return &t.scheduleLink }
func generalLink(t *TCB) *queue.Link[TCB]  { return &t.generalLink }
func taskLink(t *TCB) *queue.Link[TCB]     { return &t.taskLink }

// NewTCB allocates a thread control block for task, loaded with an
// initial refcount of zero (the caller is expected to immediately wrap it
// in a Handle, per the thread manager's lifecycle: created, then handed
// out).
func NewTCB(id isync.ThreadID, task *Task) *TCB {
	return &TCB{
		id:   id,
		task: task,
		wake: make(chan struct{}, 1),
	}
}

// SetExceptionHandler registers the handler invoked if this thread raises
// an unhandled exception while running.
func (t *TCB) SetExceptionHandler(h func(*TCB, any)) {
	t.exceptionHandler = h
}
