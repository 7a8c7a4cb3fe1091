package isync

// rwState is the bookkeeping RWLock keeps under its own internal Mutex;
// it is not the protected data itself, just the reader/writer counts and
// the flag that decides who gets to go next.
type rwState struct {
	readers       int
	writerWaiting int
	writerActive  bool
}

// RWLock is a writer-preferring reader/writer lock: once a writer is
// waiting, no new reader is admitted ahead of it, even if readers are
// already active. Built from a Mutex guarding rwState plus two condition
// variables (one readers wait on, one writers wait on) rather than a
// single primitive — the same Mutex/CondVar this package hands to
// ordinary callers.
type RWLock[T any] struct {
	state    *Mutex[rwState]
	canRead  *CondVar
	canWrite *CondVar
	data     T
}

// RWReadGuard is proof of shared read access.
type RWReadGuard[T any] struct {
	rw       *RWLock[T]
	self     ThreadID
	released bool
}

// RWWriteGuard is proof of exclusive write access.
type RWWriteGuard[T any] struct {
	rw       *RWLock[T]
	self     ThreadID
	released bool
}

// NewRWLock wraps data in a fresh, unlocked RWLock.
func NewRWLock[T any](data T) *RWLock[T] {
	return &RWLock[T]{
		state:    NewMutex(rwState{}),
		canRead:  NewCondVar(),
		canWrite: NewCondVar(),
		data:     data,
	}
}

// RLock blocks until self holds the lock for reading.
func (rw *RWLock[T]) RLock(self ThreadID) *RWReadGuard[T] {
	g := rw.state.Lock(self)
	for g.Value().writerActive || g.Value().writerWaiting > 0 {
		g = Wait(rw.canRead, self, g)
	}
	g.Value().readers++
	g.Unlock()
	return &RWReadGuard[T]{rw: rw, self: self}
}

// Lock blocks until self holds the lock for writing.
func (rw *RWLock[T]) Lock(self ThreadID) *RWWriteGuard[T] {
	g := rw.state.Lock(self)
	g.Value().writerWaiting++
	for g.Value().writerActive || g.Value().readers > 0 {
		g = Wait(rw.canWrite, self, g)
	}
	g.Value().writerWaiting--
	g.Value().writerActive = true
	g.Unlock()
	return &RWWriteGuard[T]{rw: rw, self: self}
}

// Value returns a pointer to the protected data.
func (g *RWReadGuard[T]) Value() *T { return &g.rw.data }

// Value returns a pointer to the protected data.
func (g *RWWriteGuard[T]) Value() *T { return &g.rw.data }

// Unlock releases read access. If this was the last active reader, a
// waiting writer (if any) is signalled while the internal state lock is
// still held, so the wakeup and the count it depended on never race.
func (g *RWReadGuard[T]) Unlock() {
	if g == nil || g.released {
		return
	}
	g.released = true
	st := g.rw.state.Lock(g.self)
	st.Value().readers--
	if st.Value().readers == 0 {
		g.rw.canWrite.Signal(g.self)
	}
	st.Unlock()
}

// Unlock releases write access. Waiting writers are preferred over
// waiting readers, matching Lock's admission check.
func (g *RWWriteGuard[T]) Unlock() {
	if g == nil || g.released {
		return
	}
	g.released = true
	st := g.rw.state.Lock(g.self)
	st.Value().writerActive = false
	if st.Value().writerWaiting > 0 {
		g.rw.canWrite.Signal(g.self)
	} else {
		g.rw.canRead.Broadcast(g.self)
	}
	st.Unlock()
}

// Downgrade atomically converts write access into read access without
// ever releasing access to the data in between: no other writer can
// observe the lock as free during the conversion.
func (g *RWWriteGuard[T]) Downgrade() *RWReadGuard[T] {
	if g.released {
		return &RWReadGuard[T]{rw: g.rw, self: g.self, released: true}
	}
	g.released = true

	st := g.rw.state.Lock(g.self)
	st.Value().writerActive = false
	st.Value().readers = 1
	st.Unlock()

	return &RWReadGuard[T]{rw: g.rw, self: g.self}
}
