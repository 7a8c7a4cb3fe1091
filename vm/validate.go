package vm

// Validation helpers check user-supplied pointers against the live page
// directory before the kernel dereferences them on a syscall path. They
// all consult GetCR3 directly: validity is a property of whatever address
// space is currently loaded, not of any particular directory object.

// IsUnmapped reports whether every page in [addr, addr+length) is either
// absent from the live directory or has never been touched (its hardware
// accessed bit is clear). Used to check that a region a task is about to
// claim isn't secretly in use.
func IsUnmapped(addr LogicalAddress, length uint32) bool {
	d := GetCR3()
	if d == nil {
		return true
	}
	ok := true
	eachPage(addr, addr.Add(length), func(a LogicalAddress) bool {
		e, present := d.TryGetPageEntry(a)
		if present && e.Present() && e.Accessed() {
			ok = false
			return false
		}
		return true
	})
	return ok
}

// IsUserReadable reports whether every page in [addr, addr+length) is
// present in the live directory with the USER bit set.
func IsUserReadable(addr LogicalAddress, length uint32) bool {
	return checkSpan(addr, length, FlagPresent|FlagUser)
}

// IsUserWritable reports whether every page in [addr, addr+length) is
// present in the live directory with both the USER and WRITABLE bits set.
func IsUserWritable(addr LogicalAddress, length uint32) bool {
	return checkSpan(addr, length, FlagPresent|FlagUser|FlagWritable)
}

func checkSpan(addr LogicalAddress, length uint32, want PageFlags) bool {
	d := GetCR3()
	if d == nil {
		return false
	}
	ok := true
	eachPage(addr, addr.Add(length), func(a LogicalAddress) bool {
		e, present := d.TryGetPageEntry(a)
		if !present || !e.Has(want) {
			ok = false
			return false
		}
		return true
	})
	return ok
}

// ReadableStringLen walks byte-by-byte from addr through user-readable
// pages of the live directory until it finds a NUL terminator, returning
// the string's length (excluding the NUL). It fails if it would have to
// read a byte outside user-readable memory first.
func ReadableStringLen(addr LogicalAddress) (uint32, bool) {
	d := GetCR3()
	if d == nil {
		return 0, false
	}
	n := uint32(0)
	for a := addr; ; a = a.Add(1) {
		e, present := d.TryGetPageEntry(a)
		if !present || !e.Has(FlagPresent|FlagUser) {
			return 0, false
		}
		p, ok := d.TryGetPage(a)
		if !ok {
			return 0, false
		}
		if p[a.Offset()] == 0 {
			return n, true
		}
		n++
	}
}
