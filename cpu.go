// cpu.go - in-order SH-2 subset CPU core

/*
Saturnis - deterministic dual-SH-2 bus arbitration and execution core

License: GPLv3 or later
*/

package main

const (
	srTBit             = 0x00000001
	defaultICacheLine  = 16
	defaultICacheLines = 64
	defaultRunahead    = 16
)

// pendingMemOpKind tags the multi-step memory sequences a single
// instruction can kick off: exception entry/return, TRAPA, and the RMW
// byte read-modify-write pair all resolve over more than one bus
// round-trip.
type pendingMemOpKind int

const (
	opReadByte pendingMemOpKind = iota
	opReadWord
	opReadLong
	opWriteByte
	opWriteWord
	opWriteLong
	opExceptionPushSr
	opExceptionPushPc
	opExceptionVectorRead
	opTrapaPushSr
	opTrapaPushPc
	opTrapaVectorRead
	opRtePopPc
	opRtePopSr
	opRmwAndByteRead
	opRmwOrByteRead
	opRmwXorByteRead
	opRmwWriteByte
)

// pendingMemOp is the CPU's single in-flight memory operation. aux holds
// either an exception vector number or an RMW immediate, depending on
// Kind; the TRAPA immediate is kept in sh2Core.pendingTrapaImm instead.
type pendingMemOp struct {
	Kind        pendingMemOpKind
	Phys        uint32
	Size        uint8
	DstReg      int
	ToPR        bool
	Aux         uint32
	WriteValue  uint32
	PostIncReg  int // -1 if none
	PostIncSize uint32
}

func isWriteKind(k pendingMemOpKind) bool {
	switch k {
	case opWriteByte, opWriteWord, opWriteLong,
		opExceptionPushSr, opExceptionPushPc, opTrapaPushSr, opTrapaPushPc, opRmwWriteByte:
		return true
	default:
		return false
	}
}

func sizeOfKind(k pendingMemOpKind) uint8 {
	switch k {
	case opReadByte, opWriteByte, opRmwAndByteRead, opRmwOrByteRead, opRmwXorByteRead, opRmwWriteByte:
		return 1
	case opReadWord, opWriteWord:
		return 2
	default:
		return 4
	}
}

// sh2Core is a documented subset of an SH-2 in-order core: 16 general
// registers, the control registers TRAPA/exceptions touch, a run-ahead
// instruction cache, and exactly one in-flight memory operation at a
// time.
type sh2Core struct {
	cpuID int32

	r    [16]uint32
	pc   uint32
	sr   uint32
	pr   uint32
	gbr  uint32
	vbr  uint32
	mach uint32
	macl uint32

	t        uint64
	executed uint64

	icache *tinyCache

	pendingMemOp           *pendingMemOp
	pendingBranchTarget    *uint32
	pendingExceptionVector *uint32
	pendingTrapaImm        *uint32

	hasExceptionReturnContext bool
	pendingNewPC              uint32
	pendingNewSR              uint32
	pendingRteRestore         bool
}

func newSH2Core(cpuID int32) *sh2Core {
	return &sh2Core{cpuID: cpuID, icache: newTinyCache(defaultICacheLine, defaultICacheLines)}
}

// Reset puts the core in its known startup state: PC/SP as given, SR=0xF0,
// every other control register zeroed, all pending state cleared.
func (c *sh2Core) Reset(pc, sp uint32) {
	c.pc = pc
	c.r[15] = sp
	c.sr = 0xF0
	c.pr, c.gbr, c.vbr, c.mach, c.macl = 0, 0, 0, 0, 0
	c.t = 0
	c.executed = 0
	c.pendingMemOp = nil
	c.pendingBranchTarget = nil
	c.pendingExceptionVector = nil
	c.pendingTrapaImm = nil
	c.hasExceptionReturnContext = false
	c.pendingRteRestore = false
}

func (c *sh2Core) PC() uint32                   { return c.pc }
func (c *sh2Core) LocalTime() uint64            { return c.t }
func (c *sh2Core) ExecutedInstructions() uint64 { return c.executed }
func (c *sh2Core) Reg(i int) uint32             { return c.r[i&0xF] }
func (c *sh2Core) SR() uint32                   { return c.sr }
func (c *sh2Core) PR() uint32                   { return c.pr }
func (c *sh2Core) GBR() uint32                  { return c.gbr }
func (c *sh2Core) VBR() uint32                  { return c.vbr }
func (c *sh2Core) MACH() uint32                 { return c.mach }
func (c *sh2Core) MACL() uint32                 { return c.macl }
func (c *sh2Core) SetPR(v uint32)               { c.pr = v }

func (c *sh2Core) tFlag() bool { return c.sr&srTBit != 0 }
func (c *sh2Core) setTFlag(v bool) {
	if v {
		c.sr |= srTBit
	} else {
		c.sr &^= srTBit
	}
}

// RequestExceptionVector arms a hardware exception entry for the next
// ProduceUntilBus call.
func (c *sh2Core) RequestExceptionVector(vector uint32) {
	c.pendingExceptionVector = &vector
}

func (c *sh2Core) snapshot() cpuSnapshot {
	return cpuSnapshot{T: c.t, CPU: c.cpuID, PC: c.pc, SR: c.sr, Regs: c.r}
}

// sh2ProduceResult is what one ProduceUntilBus call yields: an optional
// bus request to carry to the arbiter, and how many instructions retired
// purely in-core along the way (non-memory instructions decoded and
// executed without touching the bus).
type sh2ProduceResult struct {
	Op       *busRequest
	Executed uint64
}

func (c *sh2Core) ifetchReq(seq uint64, phys uint32) busRequest {
	return busRequest{Master: cpuMaster(c.cpuID), Addr: phys, Size: 2, IsWrite: false,
		ReqTick: c.t, Seq: seq, Kind: kindIFetch, CPUID: c.cpuID}
}

func cpuMaster(cpuID int32) busMasterID {
	if cpuID == 1 {
		return masterCPUB
	}
	return masterCPUA
}

func dataReq(cpuID int32, seq uint64, tick uint64, phys uint32, size uint8, isWrite bool, value uint32) busRequest {
	kind := kindRead
	if isWrite {
		kind = kindWrite
	}
	if isMMIO(phys) {
		if isWrite {
			kind = kindMmioWrite
		} else {
			kind = kindMmioRead
		}
	}
	return busRequest{Master: cpuMaster(cpuID), Addr: phys, Size: size, IsWrite: isWrite,
		ReqTick: tick, Seq: seq, Kind: kind, WriteValue: value, CPUID: cpuID}
}

// ProduceUntilBus advances the core until it has a bus request to hand to
// the arbiter, or runs out of run-ahead budget. Priority order: a pending
// exception vector, then a pending memory op, then the fetch-decode loop.
func (c *sh2Core) ProduceUntilBus(seq uint64, trace *traceLog, runaheadBudget int) sh2ProduceResult {
	if c.pendingExceptionVector != nil {
		vector := *c.pendingExceptionVector
		trace.AddFault(faultEvent{T: c.t, CPU: c.cpuID, PC: c.pc, Detail: vector, Reason: "EXCEPTION_ENTRY"})
		c.pendingExceptionVector = nil
		c.r[15] -= 4
		c.pendingMemOp = &pendingMemOp{Kind: opExceptionPushSr, Phys: toPhys(c.r[15]), Size: 4, Aux: vector, WriteValue: c.sr, PostIncReg: -1}
		req := dataReq(c.cpuID, seq, c.t, c.pendingMemOp.Phys, 4, true, c.sr)
		return sh2ProduceResult{Op: &req}
	}

	if c.pendingMemOp != nil {
		op := c.pendingMemOp
		req := dataReq(c.cpuID, seq, c.t, op.Phys, op.Size, isWriteKind(op.Kind), op.WriteValue)
		return sh2ProduceResult{Op: &req}
	}

	if runaheadBudget <= 0 {
		runaheadBudget = defaultRunahead
	}
	var executed uint64
	for i := 0; i < runaheadBudget; i++ {
		phys := toPhys(c.pc)
		if isUncachedAlias(c.pc) || isMMIO(phys) {
			req := c.ifetchReq(seq, phys)
			return sh2ProduceResult{Op: &req, Executed: executed}
		}
		val, hit := c.icache.Read(phys, 2)
		if !hit {
			req := c.ifetchReq(seq, phys)
			req.FillCacheLine = true
			req.CacheLineSize = c.icache.LineSize()
			return sh2ProduceResult{Op: &req, Executed: executed}
		}
		instr := uint16(val)
		if op, dataPhys, dataSize, dataWrite, dataValue, matched := c.decodeMemoryInstruction(instr); matched {
			op.Phys, op.Size = dataPhys, dataSize
			if dataWrite {
				op.WriteValue = dataValue
			}
			c.pendingMemOp = op
			req := dataReq(c.cpuID, seq, c.t, dataPhys, dataSize, dataWrite, dataValue)
			return sh2ProduceResult{Op: &req, Executed: executed}
		}
		c.executeInstruction(instr, trace)
		executed++
		if c.pendingMemOp != nil {
			// TRAPA and RTE install their first push/pop here; the sequence
			// must reach the bus before any further run-ahead retirement.
			op := c.pendingMemOp
			req := dataReq(c.cpuID, seq, c.t, op.Phys, op.Size, isWriteKind(op.Kind), op.WriteValue)
			return sh2ProduceResult{Op: &req, Executed: executed}
		}
	}
	return sh2ProduceResult{Executed: executed}
}

// ApplyIfetchAndStep feeds a committed bus response back into the core:
// either it resolves one step of a pending multi-step memory sequence,
// or (if there was no pending op) it was an instruction fetch, which gets
// decoded and executed.
func (c *sh2Core) ApplyIfetchAndStep(resp busResponse, trace *traceLog) {
	c.t += resp.Stall

	if c.pendingMemOp != nil {
		op := c.pendingMemOp
		c.pendingMemOp = nil

		switch op.Kind {
		case opExceptionPushSr:
			c.r[15] -= 4
			c.pendingMemOp = &pendingMemOp{Kind: opExceptionPushPc, Phys: toPhys(c.r[15]), Size: 4, Aux: op.Aux, WriteValue: c.pc, PostIncReg: -1}
			c.t++
			c.executed++
			trace.AddState(c.snapshot())
			return
		case opExceptionPushPc:
			vecPhys := toPhys(c.vbr + op.Aux*4)
			c.pendingMemOp = &pendingMemOp{Kind: opExceptionVectorRead, Phys: vecPhys, Size: 4, PostIncReg: -1}
			c.t++
			c.executed++
			trace.AddState(c.snapshot())
			return
		case opExceptionVectorRead:
			c.pc = resp.Value
			c.hasExceptionReturnContext = true
			c.t++
			c.executed++
			trace.AddState(c.snapshot())
			return
		case opTrapaPushSr:
			c.r[15] -= 4
			c.pendingMemOp = &pendingMemOp{Kind: opTrapaPushPc, Phys: toPhys(c.r[15]), Size: 4, WriteValue: c.pc + 2, PostIncReg: -1}
			c.t++
			c.executed++
			trace.AddState(c.snapshot())
			return
		case opTrapaPushPc:
			vecPhys := toPhys(c.vbr + (*c.pendingTrapaImm)*4)
			c.pendingMemOp = &pendingMemOp{Kind: opTrapaVectorRead, Phys: vecPhys, Size: 4, PostIncReg: -1}
			c.t++
			c.executed++
			trace.AddState(c.snapshot())
			return
		case opTrapaVectorRead:
			c.pc = resp.Value
			c.hasExceptionReturnContext = true
			c.pendingTrapaImm = nil
			c.t++
			c.executed++
			trace.AddState(c.snapshot())
			return
		case opRtePopPc:
			c.pendingNewPC = resp.Value
			c.r[15] += 4
			c.pendingMemOp = &pendingMemOp{Kind: opRtePopSr, Phys: toPhys(c.r[15]), Size: 4, PostIncReg: -1}
			c.t++
			c.executed++
			trace.AddState(c.snapshot())
			return
		case opRtePopSr:
			c.pendingNewSR = resp.Value
			c.r[15] += 4
			c.pendingRteRestore = true
			pbt := c.pendingNewPC
			c.pendingBranchTarget = &pbt
			c.hasExceptionReturnContext = false
			c.t++
			c.executed++
			trace.AddState(c.snapshot())
			return
		case opRmwAndByteRead, opRmwOrByteRead, opRmwXorByteRead:
			in := uint8(resp.Value)
			var out uint8
			switch op.Kind {
			case opRmwAndByteRead:
				out = in & uint8(op.Aux)
			case opRmwOrByteRead:
				out = in | uint8(op.Aux)
			default:
				out = in ^ uint8(op.Aux)
			}
			c.pendingMemOp = &pendingMemOp{Kind: opRmwWriteByte, Phys: op.Phys, Size: 1, WriteValue: uint32(out), PostIncReg: -1}
			c.t++
			c.executed++
			trace.AddState(c.snapshot())
			return
		}

		// Final-retiring kinds: reads land in a register, writes and the RMW
		// write-back need no further action here beyond the common tail.
		switch op.Kind {
		case opReadLong:
			if op.ToPR {
				c.pr = resp.Value
			} else {
				c.r[op.DstReg] = resp.Value
			}
		case opReadWord:
			c.r[op.DstReg] = signExtend16(resp.Value)
		case opReadByte:
			c.r[op.DstReg] = signExtend8(uint8(resp.Value))
		}

		if op.PostIncReg >= 0 && op.PostIncReg != op.DstReg {
			c.r[op.PostIncReg] += op.PostIncSize
		}

		if c.pendingBranchTarget != nil {
			if c.pendingRteRestore {
				c.sr = c.pendingNewSR
				c.pendingRteRestore = false
			}
			c.pc = *c.pendingBranchTarget
			c.pendingBranchTarget = nil
		} else {
			c.pc += 2
		}
		c.t++
		c.executed++
		trace.AddState(c.snapshot())
		return
	}

	// No pending op: this response was an instruction fetch.
	if len(resp.LineData) > 0 {
		lineSize := c.icache.LineSize()
		expectedBase := toPhys(c.pc) / lineSize
		if uint32(len(resp.LineData)) != lineSize || resp.LineBase != expectedBase {
			trace.AddFault(faultEvent{T: c.t, CPU: c.cpuID, PC: c.pc, Detail: resp.LineBase, Reason: "CACHE_FILL_MISMATCH"})
		} else if err := c.icache.FillLine(resp.LineBase, resp.LineData); err != nil {
			trace.AddFault(faultEvent{T: c.t, CPU: c.cpuID, PC: c.pc, Detail: resp.LineBase, Reason: "CACHE_FILL_MISMATCH"})
		}
	}
	instr := uint16(resp.Value)
	if op, phys, size, isWrite, value, matched := c.decodeMemoryInstruction(instr); matched {
		op.Phys, op.Size = phys, size
		if isWrite {
			op.WriteValue = value
		}
		// The data request for this op is produced by the next
		// ProduceUntilBus call, which sees pendingMemOp set and emits it.
		c.pendingMemOp = op
		return
	}
	c.executeInstruction(instr, trace)
}

// Step is a convenience single-request-at-a-time driver over a
// SimpleArbiter, useful for tests and tools that do not need the batch
// scheduler.
func (c *sh2Core) Step(a *simpleArbiter, mem *committedMemory, devs *deviceHub, trace *traceLog, seq uint64) bool {
	produced := c.ProduceUntilBus(seq, trace, 1)
	if produced.Op == nil {
		return false
	}
	resp := a.CommitGrant(mem, devs, trace, *produced.Op, c.t, false)
	c.ApplyIfetchAndStep(resp, trace)
	return true
}

func signExtend16(v uint32) uint32 {
	return uint32(int32(int16(uint16(v))))
}

func signExtend8(v uint8) uint32 {
	return uint32(int32(int8(v)))
}
