// memory_test.go - committed memory, cache, and store-buffer tests
package main

/*
Saturnis - deterministic dual-SH-2 bus arbitration and execution core

License: GPLv3 or later
*/

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommittedMemory_ReadWriteRoundTrip(t *testing.T) {
	mem := newCommittedMemory(1024)
	mem.Write(100, 4, 0xDEADBEEF)
	require.Equal(t, uint32(0xDEADBEEF), mem.Read(100, 4))
	require.Equal(t, uint8(0xEF), byte(mem.Read(100, 1)))
}

func TestCommittedMemory_WrapsAroundSize(t *testing.T) {
	mem := newCommittedMemory(16)
	mem.Write(14, 4, 0x11223344)
	// Bytes at 14, 15, 0, 1 (wrapped).
	require.Equal(t, uint8(0x44), mem.bytes[14])
	require.Equal(t, uint8(0x33), mem.bytes[15])
	require.Equal(t, uint8(0x22), mem.bytes[0])
	require.Equal(t, uint8(0x11), mem.bytes[1])
}

func TestCommittedMemory_ReadBlockForFill(t *testing.T) {
	mem := newCommittedMemory(64)
	for i := uint32(0); i < 16; i++ {
		mem.Write(i, 1, i)
	}
	block := mem.ReadBlock(0, 16)
	require.Len(t, block, 16)
	require.Equal(t, byte(5), block[5])
}

func TestTinyCache_MissThenFillThenHit(t *testing.T) {
	mem := newCommittedMemory(256)
	mem.Write(0, 4, 0xCAFEF00D)
	cache := newTinyCache(16, 4)

	_, ok := cache.Read(0, 4)
	require.False(t, ok, "an empty cache line must miss")

	require.NoError(t, cache.FillLine(0, mem.ReadBlock(0, 16)))

	v, ok := cache.Read(0, 4)
	require.True(t, ok)
	require.Equal(t, uint32(0xCAFEF00D), v)
}

func TestTinyCache_WriteIsHitOnly(t *testing.T) {
	cache := newTinyCache(16, 4)
	// No line filled yet: a write must be a silent no-op, not a fill.
	cache.Write(0, 4, 0x12345678)
	_, ok := cache.Read(0, 4)
	require.False(t, ok)

	require.NoError(t, cache.FillLine(0, make([]byte, 16)))
	cache.Write(0, 4, 0x12345678)
	v, ok := cache.Read(0, 4)
	require.True(t, ok)
	require.Equal(t, uint32(0x12345678), v)
}

func TestStoreBuffer_MostRecentForwardWins(t *testing.T) {
	sb := newStoreBuffer(4)
	sb.Push(storeEntry{Phys: 0x100, Size: 4, Value: 1})
	sb.Push(storeEntry{Phys: 0x100, Size: 4, Value: 2})

	v, ok := sb.Forward(0x100, 4)
	require.True(t, ok)
	require.Equal(t, uint32(2), v, "the most recently pushed matching entry must win")
}

func TestStoreBuffer_EvictsOldestWhenFull(t *testing.T) {
	sb := newStoreBuffer(2)
	sb.Push(storeEntry{Phys: 0x200, Size: 4, Value: 0xAA})
	sb.Push(storeEntry{Phys: 0x300, Size: 4, Value: 0xBB})
	sb.Push(storeEntry{Phys: 0x400, Size: 4, Value: 0xCC})

	_, ok := sb.Forward(0x200, 4)
	require.False(t, ok, "the oldest entry must have been evicted once the buffer is full")

	v, ok := sb.Forward(0x300, 4)
	require.True(t, ok)
	require.Equal(t, uint32(0xBB), v)
}

func TestDeviceHub_DisplayStatusIsReadOnly(t *testing.T) {
	devs := newDeviceHub()
	devs.Write(0, 0, 0x05F00010, 4, 0xFFFFFFFF)
	require.Equal(t, uint32(1), devs.Read(0x05F00010, 4), "writes to the display-status register must be ignored")
}

func TestDeviceHub_SCUMaskTruncatesTo16Bits(t *testing.T) {
	devs := newDeviceHub()
	devs.Write(0, 0, 0x05FE00A0, 4, 0xFFFFFFFF)
	require.Equal(t, uint32(0xFFFF), devs.Read(0x05FE00A0, 4), "the SCU interrupt mask write must truncate to 16 bits")
}

func TestDeviceHub_LaneShiftMergeWrite(t *testing.T) {
	devs := newDeviceHub()
	devs.Write(0, 0, 0x05F10000, 2, 0x00AA)
	devs.Write(0, 0, 0x05F10002, 2, 0x00BB)
	require.Equal(t, uint32(0x00BB00AA), devs.Read(0x05F10000, 4))
}
