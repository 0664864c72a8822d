// addrspace.go - Saturn-preset address space translation for Saturnis

/*
Saturnis - deterministic dual-SH-2 bus arbitration and execution core

License: GPLv3 or later
*/

package main

// Physical address mask: 29 bits of real address space, regardless of
// whichever alias/cache bits the CPU set on the virtual address.
const physAddrMask = 0x1FFFFFFF

// Bit 29 of the virtual address selects the uncached mirror of a region:
// reads/writes through this alias bypass the store buffer and tiny cache
// entirely and never trigger a cache-line fill.
const uncachedAliasBit = 0x20000000

// mmioRegion is a closed [Low, High] inclusive range of physical
// addresses routed to the device hub instead of committed memory.
type mmioRegion struct {
	Low, High uint32
}

var mmioRegions = [...]mmioRegion{
	{0x05C00000, 0x05CFFFFF},
	{0x05D00000, 0x05DFFFFF},
	{0x05F00000, 0x05FFFFFF},
}

// toPhys strips the cache/alias control bits off a virtual address,
// leaving the 29-bit physical address.
func toPhys(v uint32) uint32 {
	return v & physAddrMask
}

// isUncachedAlias reports whether v addresses the uncached mirror.
func isUncachedAlias(v uint32) bool {
	return v&uncachedAliasBit != 0
}

// isMMIO reports whether a physical address falls in one of the three
// device-hub windows.
func isMMIO(phys uint32) bool {
	for _, r := range mmioRegions {
		if phys >= r.Low && phys <= r.High {
			return true
		}
	}
	return false
}
