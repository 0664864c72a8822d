// demo.go - built-in deterministic dual-CPU demo program
package main

/*
Saturnis - deterministic dual-SH-2 bus arbitration and execution core

License: GPLv3 or later
*/

// demoBaseA/demoBaseB are the reset PCs for the two cores in the built-in
// dual-CPU demo; demoStackA/demoStackB give each its own stack region so
// TRAPA/exception pushes in one core never collide with the other's.
const (
	demoBaseA  = 0x00001000
	demoBaseB  = 0x00002000
	demoStackA = 0x00100000
	demoStackB = 0x00180000
)

// demoProgramA: R1=0x10; R0=0x2A; store long R0 at @R1; load it back into
// R2; branch to top (delay slot NOP). Exercises a read/write round trip
// plus the delay-slot branch rule every step of the demo.
var demoProgramA = []uint16{
	0xE110, // MOV #0x10,R1
	0xE02A, // MOV #0x2A,R0
	0x2102, // MOV.L R0,@R1
	0x6212, // MOV.L @R1,R2
	0xAFFA, // BRA demoBaseA (delay slot below)
	0x0009, // NOP
}

// demoProgramB: same shape as demoProgramA but touching a byte at a
// different address with different register values, so the two cores'
// traffic interleaves on genuinely distinct addresses.
var demoProgramB = []uint16{
	0xE120, // MOV #0x20,R1
	0xE007, // MOV #0x07,R0
	0x2100, // MOV.B R0,@R1
	0x6210, // MOV.B @R1,R2
	0xAFFA, // BRA demoBaseB (delay slot below)
	0x0009, // NOP
}

// loadDemoProgram writes a little-endian instruction stream starting at
// base, two bytes per word.
func loadDemoProgram(mem *committedMemory, base uint32, words []uint16) {
	for i, w := range words {
		mem.Write(base+uint32(i)*2, 2, uint32(w))
	}
}
