package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMachineMemory = uint32(tableSize) // one page table's worth, 4 MiB
	testUserMemStart  = LogicalAddress(0x100000)
)

// initTestVM builds and publishes a kernel address space small enough for
// tests, restoring whatever directory was live before when the test ends.
func initTestVM(t *testing.T, frames int) *VirtualMemory {
	t.Helper()
	prev := GetCR3()
	t.Cleanup(func() { SetCR3(prev) })
	return InitVirtualMemory(1, testMachineMemory, testUserMemStart, newTestAllocator(frames))
}

func TestInitVirtualMemoryDirectMapsMachineMemory(t *testing.T) {
	v := initTestVM(t, 0)

	assert.Same(t, v.Kernel(), GetCR3(), "the kernel directory is published as live")

	// Below userMemStart: present, writable, global, identity-mapped.
	low := LogicalAddress(0x3000)
	e, found := v.Kernel().TryGetPageEntry(low)
	require.True(t, found)
	assert.True(t, e.Present())
	assert.True(t, e.Writable())
	assert.True(t, e.Global())
	assert.Equal(t, PhysicalAddress(low), e.Address())

	// At and above userMemStart: still direct-mapped writable, not global.
	e, found = v.Kernel().TryGetPageEntry(testUserMemStart)
	require.True(t, found)
	assert.True(t, e.Present())
	assert.True(t, e.Writable())
	assert.False(t, e.Global())

	// The last page of machine memory made it in; nothing beyond it did.
	e, found = v.Kernel().TryGetPageEntry(LogicalAddress(testMachineMemory - PageSize))
	require.True(t, found)
	assert.True(t, e.Present())
	_, found = v.Kernel().TryGetPageEntry(LogicalAddress(testMachineMemory))
	assert.False(t, found)
}

func TestInitVirtualMemoryZeroesTheCowReferencePage(t *testing.T) {
	v := initTestVM(t, 0)
	for _, i := range []int{0, 1, PageSize - 1} {
		assert.Equal(t, byte(0), v.CowReferencePage()[i])
	}
}

// The map/unmap scenario: a kernel-writable user range is not
// user-writable until mapped with USER, and freeing it restores every
// entry to absent.
func TestMapUnmapUserRange(t *testing.T) {
	v := initTestVM(t, 4)
	m := NewAllocMapping(v.Frames(), 1)
	start, end := LogicalAddress(0x10000000), LogicalAddress(0x10002000)

	_, err := v.Kernel().MapMemoryRange(m, start, end, FlagWritable)
	require.NoError(t, err)
	assert.False(t, IsUserWritable(start, 0x2000), "USER bit was never set")
	assert.False(t, IsUserReadable(start, 0x2000))

	v.Kernel().FreeMemoryRange(m, start, end)

	_, err = v.Kernel().MapMemoryRange(m, start, end, FlagWritable|FlagUser)
	require.NoError(t, err)
	assert.True(t, IsUserReadable(start, 0x2000))
	assert.True(t, IsUserWritable(start, 0x2000))

	v.Kernel().FreeMemoryRange(m, start, end)
	eachPage(start, end, func(a LogicalAddress) bool {
		e, found := v.Kernel().TryGetPageEntry(a)
		require.True(t, found)
		assert.False(t, e.Present(), "page %#x still mapped after free", uint32(a))
		return true
	})
	assert.Equal(t, int64(4*PageSize), v.Frames().BytesFree())
}

func TestIsUserWritableRejectsSpansCrossingOutOfTheMapping(t *testing.T) {
	v := initTestVM(t, 1)
	m := NewAllocMapping(v.Frames(), 1)
	start := LogicalAddress(0x10000000)

	_, err := v.Kernel().MapMemoryRange(m, start, start.Add(PageSize), FlagWritable|FlagUser)
	require.NoError(t, err)

	assert.True(t, IsUserWritable(start, PageSize))
	assert.False(t, IsUserWritable(start, PageSize+1), "the span leaks one byte into an unmapped page")
}

func TestIsUnmappedTracksTheAccessedBit(t *testing.T) {
	v := initTestVM(t, 2)
	m := NewAllocMapping(v.Frames(), 1)
	addr := LogicalAddress(0x20000000)

	assert.True(t, IsUnmapped(addr, PageSize), "never mapped at all")

	_, err := v.Kernel().MapMemoryRange(m, addr, addr.Add(PageSize), FlagWritable)
	require.NoError(t, err)
	assert.True(t, IsUnmapped(addr, PageSize), "mapped but never touched by hardware")

	v.Kernel().SetRangeFlags(addr, addr.Add(PageSize), FlagAccessed)
	assert.False(t, IsUnmapped(addr, PageSize))
}

func TestReadableStringLen(t *testing.T) {
	v := initTestVM(t, 2)
	m := NewAllocMapping(v.Frames(), 1)
	base := LogicalAddress(0x30000000)

	_, err := v.Kernel().MapMemoryRange(m, base, base.Add(PageSize), FlagUser)
	require.NoError(t, err)

	p, ok := v.Kernel().TryGetPage(base)
	require.True(t, ok)
	copy(p[:], "hello\x00")

	n, ok := ReadableStringLen(base)
	require.True(t, ok)
	assert.Equal(t, uint32(5), n)

	// An empty string is a NUL at the pointer itself.
	n, ok = ReadableStringLen(base.Add(5))
	require.True(t, ok)
	assert.Equal(t, uint32(0), n)

	// A string that runs off the end of readable memory without a NUL
	// fails rather than walking into the unmapped page.
	for i := 100; i < PageSize; i++ {
		p[i] = 'x'
	}
	_, ok = ReadableStringLen(base.Add(100))
	assert.False(t, ok)

	// And a pointer into kernel-only memory is not user readable at all.
	_, ok = ReadableStringLen(0x1000)
	assert.False(t, ok)
}
