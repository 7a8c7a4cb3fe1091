package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// The entry layout is wire-exact: bit 0 PRESENT, bit 1 WRITABLE, bit 2
// USER, bit 5 accessed, bit 6 dirty, bit 8 GLOBAL, bit 9 COPY_ON_WRITE,
// bit 10 FREE, frame address in bits [12,32).
func TestPageEntryBitLayout(t *testing.T) {
	assert.Equal(t, PageFlags(1<<0), FlagPresent)
	assert.Equal(t, PageFlags(1<<1), FlagWritable)
	assert.Equal(t, PageFlags(1<<2), FlagUser)
	assert.Equal(t, PageFlags(1<<5), FlagAccessed)
	assert.Equal(t, PageFlags(1<<6), FlagDirty)
	assert.Equal(t, PageFlags(1<<8), FlagGlobal)
	assert.Equal(t, PageFlags(1<<9), FlagCopyOnWrite)
	assert.Equal(t, PageFlags(1<<10), FlagFree)

	e := NewPageEntry(0x12345FFF, FlagPresent|FlagWritable)
	assert.Equal(t, PageEntry(0x12345003), e, "frame bits keep only [12,32), flags only [0,12)")
	assert.Equal(t, PhysicalAddress(0x12345000), e.Address())
	assert.Equal(t, FlagPresent|FlagWritable, e.Flags())
	assert.True(t, e.Present())
	assert.True(t, e.Writable())
	assert.False(t, e.User())
}

func TestPageEntryUpgradeFlagsIsMonotonicUp(t *testing.T) {
	e := NewPageEntry(0x1000, FlagPresent)
	up := e.upgradeFlags(FlagWritable)
	assert.True(t, up.Writable())
	assert.Equal(t, e.Address(), up.Address())

	// Asking for fewer permissions never takes any away.
	assert.Equal(t, up, up.upgradeFlags(0))
	assert.Equal(t, up, up.upgradeFlags(FlagPresent))
}

func TestPageZeroClearsEveryByte(t *testing.T) {
	p := &Page{}
	p[0] = 0xFF
	p[PageSize-1] = 0xFF
	p.Zero()
	assert.Equal(t, byte(0), p[0])
	assert.Equal(t, byte(0), p[PageSize-1])
}
