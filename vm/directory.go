package vm

// PageTable is one level-2 table of NumPageEntries page entries, plus the
// backing Page for each slot that has actually been materialized.
type PageTable struct {
	entries [NumPageEntries]PageEntry
	pages   [NumPageEntries]*Page
}

// PageDirectory is the top-level, page-aligned array of NumPageEntries
// directory entries, one per task (or the single shared kernel
// directory), plus the tables each present entry points at.
type PageDirectory struct {
	entries [NumPageEntries]PageEntry
	tables  [NumPageEntries]*PageTable
}

// NewPageDirectory allocates an empty (all-absent) page directory.
func NewPageDirectory() *PageDirectory {
	return &PageDirectory{}
}

// IsLive reports whether d is the directory currently "loaded" — the Go
// stand-in for comparing against the cr3 register. See cr3.go.
func (d *PageDirectory) IsLive() bool { return GetCR3() == d }

// TryGetPageEntry returns the page table entry for addr, if its table
// exists.
func (d *PageDirectory) TryGetPageEntry(addr LogicalAddress) (PageEntry, bool) {
	t := d.tables[addr.DirIndex()]
	if t == nil {
		return noPageEntry, false
	}
	return t.entries[addr.TableIndex()], true
}

// TryGetPage returns the Page backing addr, if both its table and its
// page are present.
func (d *PageDirectory) TryGetPage(addr LogicalAddress) (*Page, bool) {
	t := d.tables[addr.DirIndex()]
	if t == nil {
		return nil, false
	}
	p := t.pages[addr.TableIndex()]
	if p == nil || !t.entries[addr.TableIndex()].Present() {
		return nil, false
	}
	return p, true
}

// GetPageTable returns the page table covering addr, allocating a fresh
// zeroed one if none exists yet. If one already exists, its flags are
// upgraded (writable is monotonic-up) and, if that changed the entry and
// d is live, the TLB entry for addr is invalidated.
func (d *PageDirectory) GetPageTable(addr LogicalAddress, flags PageFlags) *PageTable {
	i := addr.DirIndex()
	if d.tables[i] == nil {
		d.tables[i] = &PageTable{}
		d.entries[i] = NewPageEntry(0, flags|FlagPresent)
		return d.tables[i]
	}

	upgraded := d.entries[i].upgradeFlags(flags)
	if upgraded != d.entries[i] {
		d.entries[i] = upgraded
		if d.IsLive() {
			InvalidatePage(addr)
		}
	}
	return d.tables[i]
}

// InsertPage places a specific physical page at addr with the given
// flags, invalidating the TLB entry if d is live and a present entry is
// being replaced.
func (d *PageDirectory) InsertPage(page *Page, physAddr PhysicalAddress, addr LogicalAddress, flags PageFlags) {
	t := d.GetPageTable(addr, flags)
	j := addr.TableIndex()
	if t.entries[j].Present() && d.IsLive() {
		InvalidatePage(addr)
	}
	t.entries[j] = NewPageEntry(physAddr, flags|FlagPresent)
	t.pages[j] = page
}

// GetPage locates (materializing if necessary) the physical address
// backing addr: if the entry is already present, it is returned as-is;
// if it is reserved-but-not-materialized (the FREE bit), it is marked
// present; otherwise m.Alloc is asked for a fresh frame, which is zeroed
// if d is live.
func (d *PageDirectory) GetPage(m AddressMapping, addr LogicalAddress, flags PageFlags) (PhysicalAddress, bool) {
	t := d.GetPageTable(addr, flags)
	j := addr.TableIndex()
	entry := t.entries[j]

	switch {
	case entry.Present():
		return entry.Address(), true
	case entry.Free():
		t.entries[j] = entry &^ PageEntry(FlagFree) | PageEntry(FlagPresent)
		return t.entries[j].Address(), true
	default:
		physAddr, ok := m.Alloc(addr.PageAlign())
		if !ok {
			return 0, false
		}
		page := &Page{}
		if d.IsLive() {
			page.Zero()
		}
		d.InsertPage(page, physAddr, addr, flags)
		return physAddr, true
	}
}

// GetPhysicalAddress returns the physical address addr currently
// translates to, materializing a mapping for it first if necessary.
func (d *PageDirectory) GetPhysicalAddress(m AddressMapping, addr LogicalAddress, flags PageFlags) (PhysicalAddress, bool) {
	base, ok := d.GetPage(m, addr, flags)
	if !ok {
		return 0, false
	}
	return base + PhysicalAddress(addr.Offset()), true
}

// MapMemoryRange maps every page-aligned address whose page falls in
// [start, end) via m, applying flags to each. On success it returns the
// physical address corresponding to start. On failure it returns, as an
// error, the last address successfully mapped, or start - 1 if none was.
func (d *PageDirectory) MapMemoryRange(m AddressMapping, start, end LogicalAddress, flags PageFlags) (PhysicalAddress, error) {
	lastOK := start.Add(^uint32(0)) // start - 1, the "nothing mapped yet" sentinel
	ok := true
	eachPage(start, end, func(addr LogicalAddress) bool {
		if _, mapped := d.GetPage(m, addr, flags); !mapped {
			ok = false
			return false
		}
		lastOK = addr
		return true
	})
	if !ok {
		return 0, &MapRangeError{LastMapped: lastOK}
	}
	physAddr, _ := d.GetPhysicalAddress(m, start, flags)
	return physAddr, nil
}

// MapRangeError reports a partial MapMemoryRange failure: the last
// logical address successfully mapped before the strategy ran out of
// frames.
type MapRangeError struct{ LastMapped LogicalAddress }

func (e *MapRangeError) Error() string { return "vm: map_memory_range failed partway through" }

// FreeMappedPage releases the page mapped at addr, if any: a
// copy-on-write entry's reservation is simply given back (the frame was
// never really its own), otherwise m.Free reclaims the underlying frame.
// The TLB entry is invalidated if d is live, and the entry is cleared.
func (d *PageDirectory) FreeMappedPage(m AddressMapping, addr LogicalAddress) {
	t := d.tables[addr.DirIndex()]
	if t == nil {
		return
	}
	j := addr.TableIndex()
	entry := t.entries[j]
	if !entry.Present() {
		return
	}

	if entry.CopyOnWrite() {
		m.Unreserve(1)
	} else {
		m.Free(entry.Address())
	}

	if d.IsLive() {
		InvalidatePage(addr)
	}
	t.entries[j] = noPageEntry
	t.pages[j] = nil
}

// FreeMemoryRange frees every mapped page whose logical address falls in
// [start, end).
func (d *PageDirectory) FreeMemoryRange(m AddressMapping, start, end LogicalAddress) {
	eachPage(start, end, func(addr LogicalAddress) bool {
		d.FreeMappedPage(m, addr)
		return true
	})
}

// SetRangeFlags ORs flags into every present entry covering [start, end),
// preserving PRESENT and rewriting copy-on-write entries to stay
// non-writable-in-hardware.
func (d *PageDirectory) SetRangeFlags(start, end LogicalAddress, flags PageFlags) {
	eachPage(start, end, func(addr LogicalAddress) bool {
		t := d.tables[addr.DirIndex()]
		if t == nil {
			return true
		}
		j := addr.TableIndex()
		entry := t.entries[j]
		if !entry.Present() {
			return true
		}
		if entry.CopyOnWrite() {
			t.entries[j] = NewPageEntry(entry.Address(), (entry.Flags()|flags|FlagPresent)&^FlagWritable|FlagCopyOnWrite)
		} else {
			t.entries[j] = NewPageEntry(entry.Address(), entry.Flags()|flags|FlagPresent)
		}
		return true
	})
}

// Destroy frees every table in d (but not the user pages those tables'
// entries pointed at, which the owning task reclaims itself through the
// frame allocator). It refuses to run against the live directory:
// destroying the address space the CPU is executing out of is a fatal
// structural error, not something to diagnose and limp past.
func (d *PageDirectory) Destroy() {
	if d.IsLive() {
		panic("vm: attempted to destroy the live page directory")
	}
	for i := range d.tables {
		d.tables[i] = nil
		d.entries[i] = noPageEntry
	}
}
