// regions.go - Saturn address-region access latency table

/*
Saturnis - deterministic dual-SH-2 bus arbitration and execution core

License: GPLv3 or later
*/

package main

// regionTiming is one row of the Saturn-preset access-latency table: a
// physical address range and its read/write cost in bus cycles.
type regionTiming struct {
	Low, High   uint32
	ReadCycles  uint32
	WriteCycles uint32
}

// Saturn memory map, linear-scanned in order. Unmapped addresses fall
// through to the default at the bottom of satAccessCycles.
var saturnRegionTimings = [...]regionTiming{
	{0x00000000, 0x00FFFFFF, 2, 2},   // BIOS ROM
	{0x01000000, 0x017FFFFF, 4, 2},   // SMPC
	{0x01800000, 0x01FFFFFF, 2, 2},   // Backup RAM
	{0x02000000, 0x02FFFFFF, 2, 2},   // Low WRAM
	{0x10000000, 0x1FFFFFFF, 4, 2},   // MINIT/SINIT
	{0x20000000, 0x4FFFFFFF, 2, 2},   // A-Bus CS0/CS1
	{0x50000000, 0x57FFFFFF, 8, 2},   // A-Bus dummy
	{0x58000000, 0x58FFFFFF, 40, 40}, // CD Block CS2
	{0x5A000000, 0x5BFFFFFF, 40, 2},  // SCSP
	{0x5C000000, 0x5C7FFFFF, 22, 2},  // VDP1 VRAM
	{0x5C800000, 0x5CFFFFFF, 22, 2},  // VDP1 framebuffer
	{0x5D000000, 0x5D7FFFFF, 14, 2},  // VDP1 registers
	{0x5E000000, 0x5FBFFFFF, 20, 2},  // VDP2
	{0x5FE00000, 0x5FEFFFFF, 4, 2},   // SCU registers
	{0x60000000, 0x7FFFFFFF, 2, 2},   // High WRAM
}

// satAccessCycles is the ymir-derived timing callback: a linear scan over
// the Saturn region table, falling back to the unmapped default.
func satAccessCycles(addr uint32, isWrite bool, _ uint8) int {
	for _, r := range saturnRegionTimings {
		if addr >= r.Low && addr <= r.High {
			if isWrite {
				return int(r.WriteCycles)
			}
			return int(r.ReadCycles)
		}
	}
	if isWrite {
		return 2
	}
	return 4
}
