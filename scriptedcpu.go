// scriptedcpu.go - deterministic test-script CPU driver
package main

/*
Saturnis - deterministic dual-SH-2 bus arbitration and execution core

License: GPLv3 or later
*/

// scriptOpKind tags one entry of a scripted CPU's program.
type scriptOpKind int

const (
	scriptRead scriptOpKind = iota
	scriptWrite
	scriptCompute
	scriptBarrier
)

// scriptOp is one typed entry of a scriptedCPU's program. N is only
// meaningful for scriptCompute.
type scriptOp struct {
	Kind  scriptOpKind
	Addr  uint32
	Size  uint8
	Value uint32
	N     uint64
}

func readOp(addr uint32, size uint8) scriptOp { return scriptOp{Kind: scriptRead, Addr: addr, Size: size} }
func writeOp(addr uint32, size uint8, v uint32) scriptOp {
	return scriptOp{Kind: scriptWrite, Addr: addr, Size: size, Value: v}
}
func computeOp(n uint64) scriptOp { return scriptOp{Kind: scriptCompute, N: n} }
func barrierOp() scriptOp         { return scriptOp{Kind: scriptBarrier} }

// scriptedCPU is a deterministic bus client with no instruction stream:
// it runs a fixed script of Read/Write/Compute/Barrier entries over the
// same store-buffer-plus-tiny-cache path the real core would use,
// issuing bus requests one at a time (no run-ahead, no decode).
type scriptedCPU struct {
	cpuID int32
	t     uint64
	seq   uint64

	sb    *storeBuffer
	cache *tinyCache

	lastRead uint32
	script   []scriptOp
}

func newScriptedCPU(cpuID int32, script []scriptOp) *scriptedCPU {
	return &scriptedCPU{
		cpuID:  cpuID,
		sb:     newStoreBuffer(defaultStoreBufferDepth),
		cache:  newTinyCache(defaultICacheLine, defaultICacheLines),
		script: script,
	}
}

func (s *scriptedCPU) LastRead() uint32  { return s.lastRead }
func (s *scriptedCPU) LocalTime() uint64 { return s.t }

func (s *scriptedCPU) nextSeq() uint64 {
	s.seq++
	return s.seq
}

// Run executes every scripted entry in order against arb/mem/devs,
// recording COMMIT/trace activity for every bus-visible access.
func (s *scriptedCPU) Run(arb *simpleArbiter, mem *committedMemory, devs *deviceHub, trace *traceLog) {
	for _, op := range s.script {
		switch op.Kind {
		case scriptCompute:
			s.t += op.N
		case scriptBarrier:
			req := busRequest{Master: cpuMaster(s.cpuID), Kind: kindBarrier, ReqTick: s.t, Seq: s.nextSeq(), CPUID: s.cpuID}
			resp := arb.CommitGrant(mem, devs, trace, req, s.t, false)
			s.t = resp.FinishTick
		case scriptRead:
			s.runRead(arb, mem, devs, trace, op)
		case scriptWrite:
			s.runWrite(arb, mem, devs, trace, op)
		}
	}
}

func (s *scriptedCPU) bypassesLocalState(addr uint32) bool {
	return isUncachedAlias(addr) || isMMIO(toPhys(addr))
}

func (s *scriptedCPU) runRead(arb *simpleArbiter, mem *committedMemory, devs *deviceHub, trace *traceLog, op scriptOp) {
	phys := toPhys(op.Addr)
	bypass := s.bypassesLocalState(op.Addr)
	if !bypass {
		if v, ok := s.sb.Forward(phys, op.Size); ok {
			s.lastRead = v
			return
		}
		if v, ok := s.cache.Read(phys, op.Size); ok {
			s.lastRead = v
			return
		}
	}
	req := dataReq(s.cpuID, s.nextSeq(), s.t, phys, op.Size, false, 0)
	if !bypass && req.Kind == kindRead {
		req.FillCacheLine = true
		req.CacheLineSize = s.cache.LineSize()
	}
	resp := arb.CommitGrant(mem, devs, trace, req, s.t, false)
	s.t = resp.FinishTick
	s.lastRead = resp.Value
	if !bypass && req.Kind == kindRead {
		if len(resp.LineData) > 0 {
			_ = s.cache.FillLine(resp.LineBase, resp.LineData)
		} else {
			// No line came back; install an empty line and patch the
			// read value in.
			_ = s.cache.FillLine(phys/s.cache.LineSize(), make([]byte, s.cache.LineSize()))
			s.cache.Write(phys, op.Size, resp.Value)
		}
	}
}

func (s *scriptedCPU) runWrite(arb *simpleArbiter, mem *committedMemory, devs *deviceHub, trace *traceLog, op scriptOp) {
	phys := toPhys(op.Addr)
	bypass := s.bypassesLocalState(op.Addr)
	if !bypass {
		s.sb.Push(storeEntry{Phys: phys, Size: op.Size, Value: op.Value})
		s.cache.Write(phys, op.Size, op.Value)
	}
	req := dataReq(s.cpuID, s.nextSeq(), s.t, phys, op.Size, true, op.Value)
	resp := arb.CommitGrant(mem, devs, trace, req, s.t, false)
	s.t = resp.FinishTick
}
