// cpu_decode.go - SH-2 subset opcode decode and execute

/*
Saturnis - deterministic dual-SH-2 bus arbitration and execution core

License: GPLv3 or later
*/

package main

func fieldN(instr uint16) int      { return int((instr >> 8) & 0xF) }
func fieldM(instr uint16) int      { return int((instr >> 4) & 0xF) }
func fieldImm8(instr uint16) uint8 { return uint8(instr & 0xFF) }
func fieldDisp4(instr uint16) int  { return int(instr & 0xF) }
func fieldDisp8(instr uint16) int  { return int(instr & 0xFF) }
func fieldDisp12(instr uint16) int { return int(instr & 0xFFF) }

func addOverflow(a, b, result uint32) bool {
	return (^(a^b))&(a^result)&0x80000000 != 0
}

func subOverflow(a, b, result uint32) bool {
	return (a^b)&(a^result)&0x80000000 != 0
}

// decodeMemoryInstruction recognizes the subset of opcodes that touch
// memory. It returns the pendingMemOp to install plus the data-access
// parameters for the bus request the caller builds; matched is false for
// every instruction with no memory side effect, which the caller instead
// sends to executeInstruction directly.
func (c *sh2Core) decodeMemoryInstruction(instr uint16) (op *pendingMemOp, phys uint32, size uint8, isWrite bool, value uint32, matched bool) {
	n, m := fieldN(instr), fieldM(instr)

	switch {
	case instr&0xF00F == 0x6000: // MOV.B @Rm,Rn
		return &pendingMemOp{Kind: opReadByte, DstReg: n, PostIncReg: -1}, toPhys(c.r[m]), 1, false, 0, true
	case instr&0xF00F == 0x6001: // MOV.W @Rm,Rn
		return &pendingMemOp{Kind: opReadWord, DstReg: n, PostIncReg: -1}, toPhys(c.r[m]), 2, false, 0, true
	case instr&0xF00F == 0x6002: // MOV.L @Rm,Rn
		return &pendingMemOp{Kind: opReadLong, DstReg: n, PostIncReg: -1}, toPhys(c.r[m]), 4, false, 0, true
	case instr&0xF00F == 0x2000: // MOV.B Rm,@Rn
		return &pendingMemOp{Kind: opWriteByte, PostIncReg: -1}, toPhys(c.r[n]), 1, true, c.r[m] & 0xFF, true
	case instr&0xF00F == 0x2001: // MOV.W Rm,@Rn
		return &pendingMemOp{Kind: opWriteWord, PostIncReg: -1}, toPhys(c.r[n]), 2, true, c.r[m] & 0xFFFF, true
	case instr&0xF00F == 0x2002: // MOV.L Rm,@Rn
		return &pendingMemOp{Kind: opWriteLong, PostIncReg: -1}, toPhys(c.r[n]), 4, true, c.r[m], true
	case instr&0xF000 == 0x5000: // MOV.L @(disp,Rm),Rn
		disp := fieldDisp4(instr)
		return &pendingMemOp{Kind: opReadLong, DstReg: n, PostIncReg: -1}, toPhys(c.r[m] + uint32(disp)*4), 4, false, 0, true
	case instr&0xF000 == 0x1000: // MOV.L Rm,@(disp,Rn)
		disp := fieldDisp4(instr)
		return &pendingMemOp{Kind: opWriteLong, PostIncReg: -1}, toPhys(c.r[n] + uint32(disp)*4), 4, true, c.r[m], true
	case instr&0xF00F == 0x6004: // MOV.B @Rm+,Rn
		return &pendingMemOp{Kind: opReadByte, DstReg: n, PostIncReg: m, PostIncSize: 1}, toPhys(c.r[m]), 1, false, 0, true
	case instr&0xF00F == 0x6005: // MOV.W @Rm+,Rn
		return &pendingMemOp{Kind: opReadWord, DstReg: n, PostIncReg: m, PostIncSize: 2}, toPhys(c.r[m]), 2, false, 0, true
	case instr&0xF00F == 0x6006: // MOV.L @Rm+,Rn
		return &pendingMemOp{Kind: opReadLong, DstReg: n, PostIncReg: m, PostIncSize: 4}, toPhys(c.r[m]), 4, false, 0, true
	case instr&0xF0FF == 0x4026: // LDS.L @Rm+,PR
		return &pendingMemOp{Kind: opReadLong, ToPR: true, PostIncReg: n, PostIncSize: 4}, toPhys(c.r[n]), 4, false, 0, true
	case instr&0xF0FF == 0x4022: // STS.L PR,@-Rn
		c.r[n] -= 4
		return &pendingMemOp{Kind: opWriteLong, PostIncReg: -1}, toPhys(c.r[n]), 4, true, c.pr, true
	case instr&0xF00F == 0x2004: // MOV.B Rm,@-Rn
		c.r[n] -= 1
		return &pendingMemOp{Kind: opWriteByte, PostIncReg: -1}, toPhys(c.r[n]), 1, true, c.r[m] & 0xFF, true
	case instr&0xF00F == 0x2005: // MOV.W Rm,@-Rn
		c.r[n] -= 2
		return &pendingMemOp{Kind: opWriteWord, PostIncReg: -1}, toPhys(c.r[n]), 2, true, c.r[m] & 0xFFFF, true
	case instr&0xF00F == 0x2006: // MOV.L Rm,@-Rn
		c.r[n] -= 4
		return &pendingMemOp{Kind: opWriteLong, PostIncReg: -1}, toPhys(c.r[n]), 4, true, c.r[m], true
	case instr&0xFF00 == 0x8400: // MOV.B @(disp,Rm),R0
		disp := fieldDisp4(instr)
		return &pendingMemOp{Kind: opReadByte, DstReg: 0, PostIncReg: -1}, toPhys(c.r[m] + uint32(disp)), 1, false, 0, true
	case instr&0xFF00 == 0x8500: // MOV.W @(disp,Rm),R0
		disp := fieldDisp4(instr)
		return &pendingMemOp{Kind: opReadWord, DstReg: 0, PostIncReg: -1}, toPhys(c.r[m] + uint32(disp)*2), 2, false, 0, true
	case instr&0xF000 == 0x9000: // MOV.W @(disp,PC),Rn
		disp := fieldDisp8(instr)
		return &pendingMemOp{Kind: opReadWord, DstReg: n, PostIncReg: -1}, toPhys(c.pc + 4 + uint32(disp)*2), 2, false, 0, true
	case instr&0xF000 == 0xD000: // MOV.L @(disp,PC),Rn
		disp := fieldDisp8(instr)
		base := (c.pc &^ 3) + 4
		return &pendingMemOp{Kind: opReadLong, DstReg: n, PostIncReg: -1}, toPhys(base + uint32(disp)*4), 4, false, 0, true
	case instr&0xFF00 == 0xC400: // MOV.B @(disp,GBR),R0
		disp := fieldDisp8(instr)
		return &pendingMemOp{Kind: opReadByte, DstReg: 0, PostIncReg: -1}, toPhys(c.gbr + uint32(disp)), 1, false, 0, true
	case instr&0xFF00 == 0xC500: // MOV.W @(disp,GBR),R0
		disp := fieldDisp8(instr)
		return &pendingMemOp{Kind: opReadWord, DstReg: 0, PostIncReg: -1}, toPhys(c.gbr + uint32(disp)*2), 2, false, 0, true
	case instr&0xFF00 == 0xC600: // MOV.L @(disp,GBR),R0
		disp := fieldDisp8(instr)
		return &pendingMemOp{Kind: opReadLong, DstReg: 0, PostIncReg: -1}, toPhys(c.gbr + uint32(disp)*4), 4, false, 0, true
	case instr&0xFF00 == 0xC000: // MOV.B R0,@(disp,GBR)
		disp := fieldDisp8(instr)
		return &pendingMemOp{Kind: opWriteByte, PostIncReg: -1}, toPhys(c.gbr + uint32(disp)), 1, true, c.r[0] & 0xFF, true
	case instr&0xFF00 == 0xC100: // MOV.W R0,@(disp,GBR)
		disp := fieldDisp8(instr)
		return &pendingMemOp{Kind: opWriteWord, PostIncReg: -1}, toPhys(c.gbr + uint32(disp)*2), 2, true, c.r[0] & 0xFFFF, true
	case instr&0xFF00 == 0xC200: // MOV.L R0,@(disp,GBR)
		disp := fieldDisp8(instr)
		return &pendingMemOp{Kind: opWriteLong, PostIncReg: -1}, toPhys(c.gbr + uint32(disp)*4), 4, true, c.r[0], true

	// Two encodings exist for each of the byte/word R0 stores. The narrow
	// 0xF00F mask (Rn in bits 8-11, disp in bits 4-7) is tried before the
	// wide 0xFF00 mask (Rn in bits 4-7, disp in bits 0-3); inspection order
	// is the disambiguator.
	case instr&0xF00F == 0x8001: // MOV.W R0,@(disp,Rn) -- narrow form
		disp := fieldM(instr)
		return &pendingMemOp{Kind: opWriteWord, PostIncReg: -1}, toPhys(c.r[n] + uint32(disp)*2), 2, true, c.r[0] & 0xFFFF, true
	case instr&0xFF00 == 0x8100: // MOV.W R0,@(disp,Rn) -- wide form
		disp := fieldDisp4(instr)
		return &pendingMemOp{Kind: opWriteWord, PostIncReg: -1}, toPhys(c.r[m] + uint32(disp)*2), 2, true, c.r[0] & 0xFFFF, true
	case instr&0xF00F == 0x8000: // MOV.B R0,@(disp,Rn) -- narrow form
		disp := fieldM(instr)
		return &pendingMemOp{Kind: opWriteByte, PostIncReg: -1}, toPhys(c.r[n] + uint32(disp)), 1, true, c.r[0] & 0xFF, true
	case instr&0xFF00 == 0x8000: // MOV.B R0,@(disp,Rn) -- wide form
		disp := fieldDisp4(instr)
		return &pendingMemOp{Kind: opWriteByte, PostIncReg: -1}, toPhys(c.r[m] + uint32(disp)), 1, true, c.r[0] & 0xFF, true

	case instr&0xFF00 == 0xCC00: // AND.B #imm,@(R0,GBR)
		imm := fieldImm8(instr)
		return &pendingMemOp{Kind: opRmwAndByteRead, Aux: uint32(imm), PostIncReg: -1}, toPhys(c.gbr + c.r[0]), 1, false, 0, true
	case instr&0xFF00 == 0xCE00: // XOR.B #imm,@(R0,GBR)
		imm := fieldImm8(instr)
		return &pendingMemOp{Kind: opRmwXorByteRead, Aux: uint32(imm), PostIncReg: -1}, toPhys(c.gbr + c.r[0]), 1, false, 0, true
	case instr&0xFF00 == 0xCF00: // OR.B #imm,@(R0,GBR)
		imm := fieldImm8(instr)
		return &pendingMemOp{Kind: opRmwOrByteRead, Aux: uint32(imm), PostIncReg: -1}, toPhys(c.gbr + c.r[0]), 1, false, 0, true
	}
	return nil, 0, 0, false, 0, false
}

// executeInstruction decodes and runs one non-memory-touching instruction
// (or the non-memory portion of a memory instruction already routed
// through the pending-op path), then resolves delay-slot branching.
func (c *sh2Core) executeInstruction(instr uint16, trace *traceLog) {
	n, m := fieldN(instr), fieldM(instr)
	var nextBranchTarget *uint32
	setBranch := func(target uint32) { nextBranchTarget = &target }

	// Capture the delay-slot target decided by the PREVIOUS instruction
	// before this dispatch can overwrite pendingBranchTarget: if this
	// instruction is itself sitting in a delay slot, any branch it decodes
	// is ignored in favor of the already-pending target (first-branch-wins).
	delaySlotTarget := c.pendingBranchTarget
	c.pendingBranchTarget = nil

	switch {
	case instr == 0x0009: // NOP
		c.pc += 2
	case instr == 0x0018: // SETT
		c.setTFlag(true)
		c.pc += 2
	case instr == 0x0008: // CLRT
		c.setTFlag(false)
		c.pc += 2
	case instr&0xF0FF == 0x0029: // MOVT Rn
		if c.tFlag() {
			c.r[n] = 1
		} else {
			c.r[n] = 0
		}
		c.pc += 2
	case instr&0xF00F == 0x3000: // CMP/EQ Rm,Rn
		c.setTFlag(c.r[n] == c.r[m])
		c.pc += 2
	case instr&0xFF00 == 0x8800: // CMP/EQ #imm,R0
		c.setTFlag(c.r[0] == signExtend8(fieldImm8(instr)))
		c.pc += 2
	case instr&0xF00F == 0x2008: // TST Rm,Rn
		c.setTFlag(c.r[n]&c.r[m] == 0)
		c.pc += 2
	case instr&0xF000 == 0xE000: // MOV #imm,Rn
		c.r[n] = signExtend8(fieldImm8(instr))
		c.pc += 2
	case instr&0xF000 == 0x7000: // ADD #imm,Rn
		c.r[n] += signExtend8(fieldImm8(instr))
		c.pc += 2
	case instr&0xF00F == 0x300C: // ADD Rm,Rn
		c.r[n] += c.r[m]
		c.pc += 2
	case instr&0xF00F == 0x6003: // MOV Rm,Rn
		c.r[n] = c.r[m]
		c.pc += 2
	case instr&0xF00F == 0x2009: // AND Rm,Rn
		c.r[n] &= c.r[m]
		c.pc += 2
	case instr&0xF00F == 0x200A: // XOR Rm,Rn
		c.r[n] ^= c.r[m]
		c.pc += 2
	case instr&0xF00F == 0x200B: // OR Rm,Rn
		c.r[n] |= c.r[m]
		c.pc += 2
	case instr&0xF00F == 0x6007: // NOT Rm,Rn
		c.r[n] = ^c.r[m]
		c.pc += 2
	case instr&0xF00F == 0x600B: // NEG Rm,Rn
		c.r[n] = -c.r[m]
		c.pc += 2
	case instr&0xF00F == 0x600C: // EXTU.B Rm,Rn
		c.r[n] = c.r[m] & 0xFF
		c.pc += 2
	case instr&0xF00F == 0x600D: // EXTU.W Rm,Rn
		c.r[n] = c.r[m] & 0xFFFF
		c.pc += 2
	case instr&0xF00F == 0x600E: // EXTS.B Rm,Rn
		c.r[n] = signExtend8(uint8(c.r[m]))
		c.pc += 2
	case instr&0xF00F == 0x600F: // EXTS.W Rm,Rn
		c.r[n] = signExtend16(c.r[m])
		c.pc += 2
	case instr&0xF00F == 0x3008: // SUB Rm,Rn
		c.r[n] -= c.r[m]
		c.pc += 2
	case instr&0xF00F == 0x300A: // SUBC Rm,Rn
		borrowIn := uint32(0)
		if c.tFlag() {
			borrowIn = 1
		}
		rhs := c.r[m] + borrowIn
		c.setTFlag(c.r[n] < rhs)
		c.r[n] -= rhs
		c.pc += 2
	case instr&0xF00F == 0x300B: // SUBV Rm,Rn
		result := c.r[n] - c.r[m]
		c.setTFlag(subOverflow(c.r[n], c.r[m], result))
		c.r[n] = result
		c.pc += 2
	case instr&0xF00F == 0x3002: // CMP/HS Rm,Rn
		c.setTFlag(c.r[n] >= c.r[m])
		c.pc += 2
	case instr&0xF00F == 0x3003: // CMP/GE Rm,Rn
		c.setTFlag(int32(c.r[n]) >= int32(c.r[m]))
		c.pc += 2
	case instr&0xF00F == 0x3006: // CMP/HI Rm,Rn
		c.setTFlag(c.r[n] > c.r[m])
		c.pc += 2
	case instr&0xF00F == 0x3007: // CMP/GT Rm,Rn
		c.setTFlag(int32(c.r[n]) > int32(c.r[m]))
		c.pc += 2
	case instr&0xF0FF == 0x4015: // CMP/PL Rn
		c.setTFlag(int32(c.r[n]) > 0)
		c.pc += 2
	case instr&0xF0FF == 0x4011: // CMP/PZ Rn
		c.setTFlag(int32(c.r[n]) >= 0)
		c.pc += 2
	case instr&0xF00F == 0x200C: // CMP/STR Rm,Rn
		x := c.r[n] ^ c.r[m]
		allNonZero := (x&0xFF) != 0 && ((x>>8)&0xFF) != 0 && ((x>>16)&0xFF) != 0 && ((x>>24)&0xFF) != 0
		c.setTFlag(!allNonZero)
		c.pc += 2
	case instr&0xFF00 == 0xC900: // AND #imm,R0
		c.r[0] &= uint32(fieldImm8(instr))
		c.pc += 2
	case instr&0xFF00 == 0xCA00: // XOR #imm,R0
		c.r[0] ^= uint32(fieldImm8(instr))
		c.pc += 2
	case instr&0xFF00 == 0xCB00: // OR #imm,R0
		c.r[0] |= uint32(fieldImm8(instr))
		c.pc += 2
	case instr&0xFF00 == 0x8900: // BT label
		if c.tFlag() {
			c.pc = c.pc + 4 + uint32(int32(int8(fieldImm8(instr))))*2
		} else {
			c.pc += 2
		}
	case instr&0xFF00 == 0x8B00: // BF label
		if !c.tFlag() {
			c.pc = c.pc + 4 + uint32(int32(int8(fieldImm8(instr))))*2
		} else {
			c.pc += 2
		}
	case instr&0xFF00 == 0x8D00: // BT/S label
		if c.tFlag() {
			setBranch(c.pc + 4 + uint32(int32(int8(fieldImm8(instr))))*2)
		}
		c.pc += 2
	case instr&0xFF00 == 0x8F00: // BF/S label
		if !c.tFlag() {
			setBranch(c.pc + 4 + uint32(int32(int8(fieldImm8(instr))))*2)
		}
		c.pc += 2
	case instr&0xF0FF == 0x0012: // STC GBR,Rn
		c.r[n] = c.gbr
		c.pc += 2
	case instr&0xF0FF == 0x0022: // STC VBR,Rn
		c.r[n] = c.vbr
		c.pc += 2
	case instr&0xF0FF == 0x401E: // LDC Rm,GBR
		c.gbr = c.r[n]
		c.pc += 2
	case instr&0xF0FF == 0x400E: // LDC Rm,SR
		c.sr = c.r[n]
		c.pc += 2
	case instr&0xF0FF == 0x0002: // STC SR,Rn
		c.r[n] = c.sr
		c.pc += 2
	case instr&0xF0FF == 0x402E: // LDC Rm,VBR
		c.vbr = c.r[n]
		c.pc += 2
	case instr&0xF0FF == 0x001A: // STS MACL,Rn
		c.r[n] = c.macl
		c.pc += 2
	case instr&0xF0FF == 0x000A: // STS MACH,Rn
		c.r[n] = c.mach
		c.pc += 2
	case instr&0xF0FF == 0x401A: // LDS Rm,MACL
		c.macl = c.r[n]
		c.pc += 2
	case instr&0xF0FF == 0x400A: // LDS Rm,MACH
		c.mach = c.r[n]
		c.pc += 2
	case instr&0xF00F == 0x0007: // MUL.L Rm,Rn
		product := int64(int32(c.r[n])) * int64(int32(c.r[m]))
		c.macl = uint32(product)
		c.t++
		c.pc += 2
	case instr&0xFF00 == 0xC700: // MOVA @(disp,PC),R0
		disp := fieldDisp8(instr)
		c.r[0] = (c.pc &^ 3) + 4 + uint32(disp)*4
		c.pc += 2
	case instr&0xF0FF == 0x4000: // SHLL Rn
		c.setTFlag(c.r[n]&0x80000000 != 0)
		c.r[n] <<= 1
		c.pc += 2
	case instr&0xF0FF == 0x4001: // SHLR Rn
		c.setTFlag(c.r[n]&1 != 0)
		c.r[n] >>= 1
		c.pc += 2
	case instr&0xF0FF == 0x4004: // ROTL Rn
		bit := c.r[n] & 0x80000000
		c.r[n] = (c.r[n] << 1) | (bit >> 31)
		c.setTFlag(bit != 0)
		c.pc += 2
	case instr&0xF0FF == 0x4005: // ROTR Rn
		bit := c.r[n] & 1
		c.r[n] = (c.r[n] >> 1) | (bit << 31)
		c.setTFlag(bit != 0)
		c.pc += 2
	case instr&0xF000 == 0xA000: // BRA label
		disp := signext12(uint32(fieldDisp12(instr)))
		origPC := c.pc
		c.pc += 2
		setBranch(origPC + 4 + disp*2)
	case instr&0xF000 == 0xB000: // BSR label
		disp := signext12(uint32(fieldDisp12(instr)))
		origPC := c.pc
		c.pr = origPC + 4
		c.pc += 2
		setBranch(origPC + 4 + disp*2)
	case instr&0xF0FF == 0x400B: // JSR @Rm
		c.pr = c.pc + 4
		c.pc += 2
		setBranch(c.r[n])
	case instr == 0x000B: // RTS
		c.pc += 2
		setBranch(c.pr)
	case instr&0xF0FF == 0x402B: // JMP @Rm
		c.pc += 2
		setBranch(c.r[n])
	case instr == 0x002B: // synthetic RTE
		if !c.hasExceptionReturnContext {
			trace.AddFault(faultEvent{T: c.t, CPU: c.cpuID, PC: c.pc, Reason: "SYNTHETIC_RTE_WITHOUT_CONTEXT"})
			c.pc += 2
		} else {
			c.pendingMemOp = &pendingMemOp{Kind: opRtePopPc, Phys: toPhys(c.r[15]), Size: 4, PostIncReg: -1}
			c.pc += 2
			trace.AddFault(faultEvent{T: c.t, CPU: c.cpuID, PC: c.pc, Reason: "EXCEPTION_RETURN"})
		}
	case instr&0xFF00 == 0xC300: // TRAPA #imm
		imm := uint32(fieldImm8(instr))
		c.pendingTrapaImm = &imm
		c.r[15] -= 4
		c.pendingMemOp = &pendingMemOp{Kind: opTrapaPushSr, Phys: toPhys(c.r[15]), Size: 4, WriteValue: c.sr, PostIncReg: -1}
	default:
		trace.AddFault(faultEvent{T: c.t, CPU: c.cpuID, PC: c.pc, Detail: uint32(instr), Reason: "ILLEGAL_OP"})
		c.pc += 2
	}

	if delaySlotTarget != nil {
		if c.pendingRteRestore {
			c.sr = c.pendingNewSR
			c.pendingRteRestore = false
		}
		c.pc = *delaySlotTarget
	} else if nextBranchTarget != nil {
		c.pendingBranchTarget = nextBranchTarget
	}

	c.t++
	c.executed++
	trace.AddState(c.snapshot())
}

func signext12(v uint32) uint32 {
	v &= 0x0FFF
	if v&0x0800 != 0 {
		v |= 0xFFFFF000
	}
	return v
}
