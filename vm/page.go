// Package vm implements the two-level page-table virtual memory manager:
// page directories and tables, the frame allocator that backs them, the
// Direct/Alloc mapping strategies, and the address-validation helpers a
// syscall layer would use to check a user pointer before touching it.
//
// It is independent of sched's scheduling substrate; the one tie to
// package isync is that FrameAllocator state sits behind an isync.Mutex,
// valid because frame allocation never runs from interrupt context.
package vm

// PageSize is the size in bytes of one page/frame. On hardware a page is
// a 4096-byte, natively-aligned block of physical memory; here a Page is
// the Go value that stands in for that block's contents.
const PageSize = 4096

// NumPageEntries is the number of entries in one page table or page
// directory: a 4096-byte table of 4-byte entries.
const NumPageEntries = PageSize / 4

// Page is the backing storage for one physical frame.
type Page [PageSize]byte

// Zero overwrites every byte of the page with zero. Freshly materialized
// pages in the live directory and the copy-on-write reference page must
// never leak prior contents.
func (p *Page) Zero() {
	for i := range p {
		p[i] = 0
	}
}

// PageFlags packs the OS- and hardware-visible bits of a page directory
// or page table entry, wire-exact for 32-bit x86: bit 0 PRESENT, bit 1
// WRITABLE, bit 2 USER, bit 5 accessed (HW), bit 6 dirty (HW), bit 8
// GLOBAL, bit 9 COPY_ON_WRITE (OS), bit 10 FREE (OS). Bits [12,32) carry
// the physical frame address when this value is read out of a PageEntry
// rather than passed around loose as a flag set.
type PageFlags uint32

const (
	FlagPresent      PageFlags = 1 << 0
	FlagWritable     PageFlags = 1 << 1
	FlagUser         PageFlags = 1 << 2
	FlagAccessed     PageFlags = 1 << 5
	FlagDirty        PageFlags = 1 << 6
	FlagGlobal       PageFlags = 1 << 8
	FlagCopyOnWrite  PageFlags = 1 << 9
	FlagFree         PageFlags = 1 << 10
	flagsMask        PageFlags = 1<<12 - 1
	frameAddressMask uint32    = ^(uint32(1)<<12 - 1)
)

// PageEntry is one 32-bit directory or table entry: a physical frame
// address packed with PageFlags in its low 12 bits.
type PageEntry uint32

// NewPageEntry builds an entry pointing at addr with the given flags.
// addr's low 12 bits are discarded; the frame-address field only has
// room for a page-aligned physical address.
func NewPageEntry(addr PhysicalAddress, flags PageFlags) PageEntry {
	return PageEntry(uint32(addr)&frameAddressMask | uint32(flags&flagsMask))
}

// Address returns the physical frame address packed into this entry.
func (e PageEntry) Address() PhysicalAddress {
	return PhysicalAddress(uint32(e) & frameAddressMask)
}

// Flags returns the flag bits packed into this entry.
func (e PageEntry) Flags() PageFlags {
	return PageFlags(uint32(e) & uint32(flagsMask))
}

// Has reports whether every bit set in want is also set in this entry's
// flags.
func (e PageEntry) Has(want PageFlags) bool {
	return uint32(e)&uint32(want) == uint32(want)
}

func (e PageEntry) Present() bool     { return e.Has(FlagPresent) }
func (e PageEntry) Writable() bool    { return e.Has(FlagWritable) }
func (e PageEntry) User() bool        { return e.Has(FlagUser) }
func (e PageEntry) Accessed() bool    { return e.Has(FlagAccessed) }
func (e PageEntry) Dirty() bool       { return e.Has(FlagDirty) }
func (e PageEntry) Global() bool      { return e.Has(FlagGlobal) }
func (e PageEntry) CopyOnWrite() bool { return e.Has(FlagCopyOnWrite) }
func (e PageEntry) Free() bool        { return e.Has(FlagFree) }

// withFlags returns a copy of e with flags OR-ed into the flag bits,
// preserving the existing frame address.
func (e PageEntry) withFlags(flags PageFlags) PageEntry {
	return PageEntry(uint32(e) | uint32(flags&flagsMask))
}

// upgradeFlags raises e's writable bit if flags asks for WRITABLE and e
// doesn't already have it — writable is monotonic-up: an existing
// mapping's permissions only ever widen.
func (e PageEntry) upgradeFlags(flags PageFlags) PageEntry {
	if !e.Writable() && flags&FlagWritable != 0 {
		return e.withFlags(FlagWritable)
	}
	return e
}

// noPageEntry is the empty/absent entry: zero flags, zero frame address.
const noPageEntry PageEntry = 0
