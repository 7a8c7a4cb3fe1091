package vm

import (
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"kcore/diag"
	"kcore/isync"
)

// ThreadID identifies whoever is calling into FrameAllocator's mutex, the
// same explicit-caller-identity convention isync uses throughout (see
// isync.ThreadID's doc comment) — vm has no threads of its own, so it
// borrows the identity its caller already has.
type ThreadID = isync.ThreadID

// frameAllocState is the bitmap FrameAllocator scans for free frames:
// one PageEntry per managed frame, used purely for its FREE bit. Keeping
// the allocator's own entry array, rather than scanning the kernel
// directory's entries in place, keeps allocation independent of
// directory state. currIdx is an index into entries, not a physical
// address, advanced on every successful scan.
type frameAllocState struct {
	entries []PageEntry
	currIdx int
}

// FrameAllocator manages a contiguous region of physical memory
// [regionStart, regionEnd), one PageSize frame at a time. Reservation
// counting lives in a golang.org/x/sync/semaphore.Weighted —
// TryAcquire/Release carry exactly Reserve/Unreserve's semantics —
// while the frame-scanning bitmap sits behind its own isync.Mutex:
// "is frame X free" and "how many frames are reserved but not yet
// fulfilled" are independent pieces of state.
type FrameAllocator struct {
	regionStart PhysicalAddress
	regionEnd   PhysicalAddress

	reservations *semaphore.Weighted
	bytesFree    atomic.Int64

	state *isync.Mutex[frameAllocState]
}

// NewFrameAllocator builds an allocator over [start, end), marking every
// frame in the region free. end must not be less than start (an empty
// region is allowed) and both must be page aligned.
func NewFrameAllocator(start, end PhysicalAddress) *FrameAllocator {
	n := (int(end) - int(start)) / PageSize
	entries := make([]PageEntry, n)
	for i := range entries {
		entries[i] = noPageEntry.withFlags(FlagFree)
	}

	fa := &FrameAllocator{
		regionStart:  start,
		regionEnd:    end,
		reservations: semaphore.NewWeighted(int64(n) * PageSize),
		state:        isync.NewMutex(frameAllocState{entries: entries}),
	}
	fa.bytesFree.Store(int64(n) * PageSize)
	return fa
}

// BytesFree reports the number of free, unreserved bytes remaining in the
// region: frames with the FREE bit set, minus outstanding reservations.
func (fa *FrameAllocator) BytesFree() int64 { return fa.bytesFree.Load() }

// Reserve reserves count frames' worth of space without allocating any of
// them yet. Reports whether the reservation succeeded.
func (fa *FrameAllocator) Reserve(self ThreadID, count uint32) bool {
	n := int64(count) * PageSize
	if !fa.reservations.TryAcquire(n) {
		return false
	}
	fa.bytesFree.Add(-n)
	return true
}

// Unreserve releases a reservation made by Reserve.
func (fa *FrameAllocator) Unreserve(self ThreadID, count uint32) {
	n := int64(count) * PageSize
	fa.reservations.Release(n)
	fa.bytesFree.Add(n)
}

// Fulfill allocates the physical address for a previously reserved frame:
// it scans entries starting at the current cursor, wrapping at the end of
// the region, for the first frame with the FREE bit set, clears it, and
// returns that frame's address. Returns false only if the scan completes
// emptyhanded — only possible if a reservation was made without a
// matching free frame actually existing, an invariant violation.
func (fa *FrameAllocator) Fulfill(self ThreadID) (PhysicalAddress, bool) {
	g := fa.state.Lock(self)
	defer g.Unlock()
	st := g.Value()

	n := len(st.entries)
	for i := 0; i < n; i++ {
		idx := (st.currIdx + i) % n
		if st.entries[idx].Free() {
			st.entries[idx] = st.entries[idx] &^ PageEntry(FlagFree)
			st.currIdx = idx
			return fa.regionStart + PhysicalAddress(idx*PageSize), true
		}
	}

	diag.Illegal("vm.FrameAllocator", "fulfill found no free frame despite an honored reservation")
	return 0, false
}

// AllocFrame reserves and fulfills a single frame in one call.
func (fa *FrameAllocator) AllocFrame(self ThreadID) (PhysicalAddress, bool) {
	if !fa.Reserve(self, 1) {
		return 0, false
	}
	addr, ok := fa.Fulfill(self)
	if !ok {
		fa.Unreserve(self, 1)
		return 0, false
	}
	return addr, true
}

// FreeFrame returns frame to the pool. Has no effect, besides a
// diagnostic, if frame is outside the managed region.
func (fa *FrameAllocator) FreeFrame(self ThreadID, frame PhysicalAddress) {
	if frame < fa.regionStart || frame >= fa.regionEnd {
		diag.Illegal("vm.FrameAllocator", "trying to free a frame outside the managed region")
		return
	}

	g := fa.state.Lock(self)
	idx := int(frame-fa.regionStart) / PageSize
	st := g.Value()
	st.entries[idx] = st.entries[idx].withFlags(FlagFree)
	g.Unlock()

	fa.reservations.Release(PageSize)
	fa.bytesFree.Add(PageSize)
}
