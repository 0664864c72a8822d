// arbiter_test.go - bus arbitration tests
package main

/*
Saturnis - deterministic dual-SH-2 bus arbitration and execution core

License: GPLv3 or later
*/

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEnv() (*committedMemory, *deviceHub, *traceLog) {
	return newCommittedMemory(defaultMemorySize), newDeviceHub(), newTraceLog()
}

func TestSimpleArbiter_FixedPriorityDMABeatsCPU(t *testing.T) {
	mem, devs, trace := newTestEnv()
	arb := newSimpleArbiter(satAccessCycles)

	reqB := busRequest{Master: masterCPUB, Addr: 0x2000, Size: 4, ReqTick: 0, Seq: 1, Kind: kindRead, CPUID: 1}
	reqA := busRequest{Master: masterCPUA, Addr: 0x1000, Size: 4, ReqTick: 0, Seq: 2, Kind: kindRead, CPUID: 0}
	dmaReq := busRequest{Master: masterDMA, Addr: 0x3000, Size: 4, IsWrite: true, ReqTick: 0, Seq: 3, Kind: kindWrite, CPUID: -1}

	winner, tie := arb.PickWinner([]busRequest{reqB, reqA, dmaReq})
	require.False(t, tie, "a CPU-vs-CPU tie at a lower priority class must not taint the DMA winner")
	require.Equal(t, 2, winner, "DMA has the highest priority class and must win when all requests arrive at the same tick")

	resp := arb.CommitGrant(mem, devs, trace, dmaReq, 0, false)
	require.Equal(t, uint64(0), resp.StartTick)
}

func TestSimpleArbiter_CommitAdvancesBusFreeTick(t *testing.T) {
	mem, devs, trace := newTestEnv()
	arb := newSimpleArbiter(satAccessCycles)

	req := busRequest{Master: masterCPUA, Addr: 0x00000010, Size: 4, ReqTick: 0, Seq: 1, Kind: kindRead, CPUID: 0}
	resp1 := arb.CommitGrant(mem, devs, trace, req, 0, false)
	require.Equal(t, arb.BusFreeTick(), resp1.FinishTick)
	require.Greater(t, resp1.FinishTick, uint64(0))

	shouldWait, wait := arb.QueryWait(0)
	require.True(t, shouldWait)
	require.Equal(t, resp1.FinishTick, wait)

	req2 := busRequest{Master: masterCPUB, Addr: 0x00000020, Size: 4, ReqTick: 0, Seq: 2, Kind: kindRead, CPUID: 1}
	resp2 := arb.CommitGrant(mem, devs, trace, req2, 0, false)
	require.Equal(t, resp1.FinishTick, resp2.StartTick, "second commit must start exactly when the bus frees, never earlier")
}

func TestSimpleArbiter_WaitCyclesAgainstCustomCallback(t *testing.T) {
	mem, devs, trace := newTestEnv()
	arb := newSimpleArbiter(func(_ uint32, _ bool, size uint8) int { return 3 + int(size) })

	req := busRequest{Master: masterCPUA, Addr: 0x00000100, Size: 4, ReqTick: 0, Seq: 1, Kind: kindRead, CPUID: 0}
	resp := arb.CommitGrant(mem, devs, trace, req, 0, false)
	require.Equal(t, uint64(7), resp.FinishTick)
	require.Equal(t, uint64(7), arb.BusFreeTick())

	shouldWait, wait := arb.QueryWait(2)
	require.True(t, shouldWait)
	require.Equal(t, uint64(5), wait)
}

func TestSimpleArbiter_ContentionOrderingBetweenTwoCPUWrites(t *testing.T) {
	mem, devs, trace := newTestEnv()
	arb := newSimpleArbiter(satAccessCycles)

	reqA := busRequest{Master: masterCPUA, Addr: 0x00000040, Size: 4, IsWrite: true, WriteValue: 0xAA, ReqTick: 0, Seq: 1, Kind: kindWrite, CPUID: 0}
	reqB := busRequest{Master: masterCPUB, Addr: 0x00000040, Size: 4, IsWrite: true, WriteValue: 0xBB, ReqTick: 0, Seq: 2, Kind: kindWrite, CPUID: 1}

	winner, tie := arb.PickWinner([]busRequest{reqA, reqB})
	require.True(t, tie, "same start tick and priority class must be detected as a tie")
	require.Equal(t, 0, winner, "CPU-A is the initial preferred CPU")

	respA := arb.CommitGrant(mem, devs, trace, reqA, 0, tie)
	require.Equal(t, uint32(0xAA), mem.Read(0x00000040, 4))

	respB := arb.CommitGrant(mem, devs, trace, reqB, 0, false)
	require.Equal(t, respA.FinishTick, respB.StartTick)
	require.Equal(t, uint32(0xBB), mem.Read(0x00000040, 4), "second write to the same address must overwrite the first")
	require.Greater(t, respB.FinishTick-respB.StartTick, respA.FinishTick-respA.StartTick, "same-address contention surcharge must apply to the second access")
}

func TestSimpleArbiter_BarrierNeverTouchesLastGrantedAddr(t *testing.T) {
	mem, devs, trace := newTestEnv()
	arb := newSimpleArbiter(satAccessCycles)

	readReq := busRequest{Master: masterCPUA, Addr: 0x00000080, Size: 4, ReqTick: 0, Seq: 1, Kind: kindRead, CPUID: 0}
	arb.CommitGrant(mem, devs, trace, readReq, 0, false)

	barrier := busRequest{Master: masterCPUB, Kind: kindBarrier, ReqTick: 0, Seq: 2, CPUID: 1}
	resp := arb.CommitGrant(mem, devs, trace, barrier, arb.BusFreeTick(), false)
	require.Equal(t, uint32(0), resp.Value)

	// A follow-up access to the same address as the pre-barrier read must
	// still see the same-address contention surcharge: the barrier must not
	// have cleared last_granted_addr.
	readReq2 := busRequest{Master: masterCPUA, Addr: 0x00000080, Size: 4, ReqTick: resp.FinishTick, Seq: 3, Kind: kindRead, CPUID: 0}
	resp2 := arb.CommitGrant(mem, devs, trace, readReq2, resp.FinishTick, false)
	require.Greater(t, resp2.FinishTick-resp2.StartTick, uint64(satAccessCycles(0x00000080, false, 4)))
}

func TestBusArbiter_CommitBatchHorizonGating(t *testing.T) {
	mem, devs, trace := newTestEnv()
	arb := newBusArbiter(mem, devs, trace, satAccessCycles)

	reqA := busRequest{Master: masterCPUA, Addr: 0x00000100, Size: 4, ReqTick: 10, Seq: 1, Kind: kindRead, CPUID: 0}
	reqB := busRequest{Master: masterCPUB, Addr: 0x00000200, Size: 4, ReqTick: 0, Seq: 2, Kind: kindRead, CPUID: 1}

	// Only CPU-B has published progress, and only up to tick 5: CPU-A's
	// request at tick 10 is beyond the horizon and must not commit yet.
	arb.UpdateProgress(1, 5)
	results := arb.CommitBatch([]busRequest{reqA, reqB})
	require.Len(t, results, 1, "CPU-A's request is beyond the horizon and must be deferred")
	require.Equal(t, 1, results[0].InputIndex)

	arb.UpdateProgress(0, 20)
	arb.UpdateProgress(1, 20)
	results2 := arb.CommitBatch([]busRequest{reqA})
	require.Len(t, results2, 1)
	require.Equal(t, 0, results2[0].InputIndex)
}

func TestBusArbiter_CommitBatchNoHorizonWhenNoProgress(t *testing.T) {
	mem, devs, trace := newTestEnv()
	arb := newBusArbiter(mem, devs, trace, satAccessCycles)

	reqA := busRequest{Master: masterCPUA, Addr: 0x00000300, Size: 4, ReqTick: 1000, Seq: 1, Kind: kindRead, CPUID: 0}
	results := arb.CommitBatch([]busRequest{reqA})
	require.Len(t, results, 1, "with no published progress from either CPU the horizon is +inf and everything commits")
}

func TestBusArbiter_PreferredCPURotatesAfterTie(t *testing.T) {
	mem, devs, trace := newTestEnv()
	arb := newBusArbiter(mem, devs, trace, satAccessCycles)

	reqA := busRequest{Master: masterCPUA, Addr: 0x00000400, Size: 4, ReqTick: 0, Seq: 1, Kind: kindRead, CPUID: 0}
	reqB := busRequest{Master: masterCPUB, Addr: 0x00000500, Size: 4, ReqTick: 0, Seq: 2, Kind: kindRead, CPUID: 1}

	results := arb.CommitBatch([]busRequest{reqA, reqB})
	require.Len(t, results, 2)
	require.Equal(t, 0, results[0].InputIndex, "CPU-A is preferred on a same-tick tie before any grant has been made")

	require.Equal(t, masterCPUB, arb.preferredCPU(), "after granting CPU-A on a tie, CPU-B must become preferred")
}
