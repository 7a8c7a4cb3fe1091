package vm

// VirtualMemory ties the pieces of the memory subsystem together: the
// kernel's own page directory (direct-mapped over the machine's physical
// memory), the frame allocator that backs user mappings, and the shared
// zero page copy-on-write reads resolve to until a write fault
// materializes a private copy.
type VirtualMemory struct {
	kernel       *PageDirectory
	frames       *FrameAllocator
	userMemStart LogicalAddress
	cowReference *Page
}

// InitVirtualMemory builds and publishes the kernel address space:
// every page table covering [0, machineMemoryBytes) is allocated up
// front and every page inside is direct-mapped writable, with kernel
// pages below userMemStart additionally marked GLOBAL so the TLB keeps
// them across address-space switches. The directory is loaded as the
// live one before returning.
func InitVirtualMemory(self ThreadID, machineMemoryBytes uint32, userMemStart LogicalAddress, frames *FrameAllocator) *VirtualMemory {
	d := NewPageDirectory()
	direct := DirectMapping{}

	for base := uint32(0); base < machineMemoryBytes; base += tableSize {
		flags := FlagWritable
		if LogicalAddress(base) < userMemStart {
			flags |= FlagGlobal
		}
		d.GetPageTable(LogicalAddress(base), flags)

		end := base + tableSize
		if end > machineMemoryBytes {
			end = machineMemoryBytes
		}
		eachPage(LogicalAddress(base), LogicalAddress(end), func(addr LogicalAddress) bool {
			f := FlagWritable
			if addr < userMemStart {
				f |= FlagGlobal
			}
			d.GetPage(direct, addr, f)
			return true
		})
	}

	SetCR3(d)

	ref := &Page{}
	ref.Zero()

	return &VirtualMemory{
		kernel:       d,
		frames:       frames,
		userMemStart: userMemStart,
		cowReference: ref,
	}
}

// Kernel returns the kernel page directory.
func (v *VirtualMemory) Kernel() *PageDirectory { return v.kernel }

// Frames returns the frame allocator backing user mappings.
func (v *VirtualMemory) Frames() *FrameAllocator { return v.frames }

// UserMemStart returns the lowest logical address belonging to user
// space; everything below it is kernel memory, direct-mapped and global.
func (v *VirtualMemory) UserMemStart() LogicalAddress { return v.userMemStart }

// CowReferencePage returns the shared all-zero page copy-on-write
// mappings read through until first write.
func (v *VirtualMemory) CowReferencePage() *Page { return v.cowReference }
