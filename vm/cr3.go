package vm

import "sync/atomic"

// cr3 models the CPU's page-directory base register: whichever directory
// is stored here is "live", and TLB invalidations only matter against it.
// Hardware compares physical addresses read out of the register; a Go
// simulation has no register, so the live directory is a package-level
// pointer and comparison is pointer identity.
var cr3 atomic.Pointer[PageDirectory]

// tlbFlushes counts InvalidatePage calls. A simulated TLB has no entries
// to drop, but the directory operations are still required to invalidate
// at exactly the points real hardware would need, and tests assert on
// the count to pin those points down.
var tlbFlushes atomic.Uint64

// GetCR3 returns the live page directory, or nil before any directory has
// been loaded.
func GetCR3() *PageDirectory { return cr3.Load() }

// SetCR3 loads d as the live page directory, the stand-in for writing the
// cr3 register on an address-space switch.
func SetCR3(d *PageDirectory) { cr3.Store(d) }

// InvalidatePage drops the TLB entry for addr, the stand-in for invlpg.
func InvalidatePage(addr LogicalAddress) {
	tlbFlushes.Add(1)
}

// TLBInvalidations reports how many page invalidations have been issued
// since startup.
func TLBInvalidations() uint64 { return tlbFlushes.Load() }
