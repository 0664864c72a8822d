// machine.go - driver loop tying CPUs, DMA, and the bus arbiter together
package main

/*
Saturnis - deterministic dual-SH-2 bus arbitration and execution core

License: GPLv3 or later
*/

import "sync"

// RunConfig parameterises one run of the core. The core itself never
// parses flags or loads files (that is main's job), it only consumes the
// resolved configuration.
type RunConfig struct {
	BiosImage   []byte
	MaxSteps    int
	DualDemo    bool
	HaltOnFault bool
	DMAOps      []dmaOp
}

const defaultMaxSteps = 20000

// Machine owns every subsystem and drives the per-round control flow:
// ask each CPU for up to one bus request, hand the batch to the
// arbiter, apply responses.
type Machine struct {
	mem     *committedMemory
	devices *deviceHub
	trace   *traceLog
	arb     *busArbiter
	cpus    [2]*sh2Core
	dma     *dmaEngine

	seq   uint64
	steps uint64
}

// NewMachine builds a Machine from cfg. With no BIOS image, it loads the
// built-in deterministic dual-CPU demo program.
func NewMachine(cfg RunConfig) *Machine {
	mem := newCommittedMemory(defaultMemorySize)
	devices := newDeviceHub()
	trace := newTraceLog()
	trace.SetHaltOnFault(cfg.HaltOnFault)
	arb := newBusArbiter(mem, devices, trace, satAccessCycles)

	m := &Machine{
		mem: mem, devices: devices, trace: trace, arb: arb,
		cpus: [2]*sh2Core{newSH2Core(0), newSH2Core(1)},
	}

	if len(cfg.BiosImage) > 0 && !cfg.DualDemo {
		mem.LoadImage(cfg.BiosImage)
		m.cpus[0].Reset(0, demoStackA)
		m.cpus[1].Reset(0, demoStackB)
	} else {
		loadDemoProgram(mem, demoBaseA, demoProgramA)
		loadDemoProgram(mem, demoBaseB, demoProgramB)
		m.cpus[0].Reset(demoBaseA, demoStackA)
		m.cpus[1].Reset(demoBaseB, demoStackB)
	}

	if len(cfg.DMAOps) > 0 {
		m.dma = newDMAEngine(cfg.DMAOps)
	}

	return m
}

func (m *Machine) Trace() *traceLog         { return m.trace }
func (m *Machine) Memory() *committedMemory { return m.mem }
func (m *Machine) Devices() *deviceHub      { return m.devices }
func (m *Machine) Steps() uint64            { return m.steps }

func (m *Machine) nextSeq() uint64 {
	m.seq++
	return m.seq
}

// Step runs one arbiter round: both CPUs (and the DMA engine, if armed)
// each try to produce a single bus request, the arbiter commits whatever
// was produced as one batch, and every producer applies its response.
// Returns false once the machine is idle (nothing produced and nothing
// retired in-cache) or a halt is latched.
func (m *Machine) Step() bool {
	var batch []busRequest
	var origin []int // 0/1 = cpu index, -1 = dma

	r0 := m.cpus[0].ProduceUntilBus(m.nextSeq(), m.trace, defaultRunahead)
	if r0.Op != nil {
		batch = append(batch, *r0.Op)
		origin = append(origin, 0)
	}
	r1 := m.cpus[1].ProduceUntilBus(m.nextSeq(), m.trace, defaultRunahead)
	if r1.Op != nil {
		batch = append(batch, *r1.Op)
		origin = append(origin, 1)
	}
	if m.dma != nil && !m.dma.Done() {
		if dreq := m.dma.ProduceUntilBus(m.nextSeq()); dreq != nil {
			batch = append(batch, *dreq)
			origin = append(origin, -1)
		}
	}

	if len(batch) == 0 {
		if r0.Executed == 0 && r1.Executed == 0 {
			return false
		}
		// Both cores retired purely in-cache this round; no bus traffic,
		// but the machine is not idle.
		m.steps++
		return !(m.trace.HaltOnFault() && m.trace.ShouldHalt())
	}

	results := m.arb.CommitBatch(batch)
	for _, res := range results {
		switch origin[res.InputIndex] {
		case 0:
			m.cpus[0].ApplyIfetchAndStep(res.Resp, m.trace)
		case 1:
			m.cpus[1].ApplyIfetchAndStep(res.Resp, m.trace)
		case -1:
			m.dma.ApplyResponse(res.Resp)
		}
	}

	m.steps++
	return !(m.trace.HaltOnFault() && m.trace.ShouldHalt())
}

// Run drives Step until it returns false or maxSteps rounds have run
// (maxSteps <= 0 means unbounded, bounded only by idle/halt).
func (m *Machine) Run(maxSteps int) {
	for i := 0; maxSteps <= 0 || i < maxSteps; i++ {
		if !m.Step() {
			return
		}
	}
}

// StepConcurrent is the multithreaded counterpart of Step: each CPU's
// produce step runs on its own goroutine. A CPU's fetch-decode loop can
// itself append STATE/FAULT records for non-memory-touching instructions
// it retires inline, so each goroutine writes into a private scratch
// trace log rather than the shared one.
// The two scratches are appended to the shared trace in a fixed order
// (CPU-A before CPU-B) after the join, and sequence numbers are assigned
// before the goroutines start, so output is byte-identical to Step's
// single-threaded ordering regardless of goroutine scheduling.
func (m *Machine) StepConcurrent() bool {
	seq0 := m.nextSeq()
	seq1 := m.nextSeq()

	scratch0 := newTraceLog()
	scratch1 := newTraceLog()
	var r0, r1 sh2ProduceResult

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r0 = m.cpus[0].ProduceUntilBus(seq0, scratch0, defaultRunahead)
	}()
	go func() {
		defer wg.Done()
		r1 = m.cpus[1].ProduceUntilBus(seq1, scratch1, defaultRunahead)
	}()
	wg.Wait()

	m.trace.Append(scratch0.Lines()...)
	m.trace.Append(scratch1.Lines()...)
	if m.trace.HaltOnFault() && (scratch0.FaultCount() > 0 || scratch1.FaultCount() > 0) {
		m.trace.LatchHalt()
	}

	var batch []busRequest
	var origin []int
	if r0.Op != nil {
		batch = append(batch, *r0.Op)
		origin = append(origin, 0)
	}
	if r1.Op != nil {
		batch = append(batch, *r1.Op)
		origin = append(origin, 1)
	}
	if m.dma != nil && !m.dma.Done() {
		if dreq := m.dma.ProduceUntilBus(m.nextSeq()); dreq != nil {
			batch = append(batch, *dreq)
			origin = append(origin, -1)
		}
	}

	if len(batch) == 0 {
		if r0.Executed == 0 && r1.Executed == 0 {
			return false
		}
		m.steps++
		return !(m.trace.HaltOnFault() && m.trace.ShouldHalt())
	}

	results := m.arb.CommitBatch(batch)
	for _, res := range results {
		switch origin[res.InputIndex] {
		case 0:
			m.cpus[0].ApplyIfetchAndStep(res.Resp, m.trace)
		case 1:
			m.cpus[1].ApplyIfetchAndStep(res.Resp, m.trace)
		case -1:
			m.dma.ApplyResponse(res.Resp)
		}
	}

	m.steps++
	return !(m.trace.HaltOnFault() && m.trace.ShouldHalt())
}

// RunConcurrent is Run's multithreaded counterpart.
func (m *Machine) RunConcurrent(maxSteps int) {
	for i := 0; maxSteps <= 0 || i < maxSteps; i++ {
		if !m.StepConcurrent() {
			return
		}
	}
}
