// trace_test.go - trace record formatting tests
package main

/*
Saturnis - deterministic dual-SH-2 bus arbitration and execution core

License: GPLv3 or later
*/

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTraceLog_CommitRecordIsByteExact(t *testing.T) {
	trace := newTraceLog()
	trace.AddCommit(commitEvent{
		TStart: 4, TEnd: 6, Stall: 2, CPU: 1, Kind: kindMmioWrite,
		Phys: 0x05F00020, Size: 4, Value: 0x1234, Src: "MMIO_WRITE", CacheHit: false,
	})

	lines := trace.Lines()
	require.Len(t, lines, 1)
	require.Equal(t,
		`COMMIT {"t_start":4,"t_end":6,"stall":2,"cpu":1,"kind":"MMIO_WRITE","phys":99614752,"size":4,"val":4660,"src":"MMIO_WRITE","cache_hit":false}`,
		lines[0], "key order and decimal formatting are part of the determinism envelope")
}

func TestTraceLog_StateRecordListsAllSixteenRegisters(t *testing.T) {
	trace := newTraceLog()
	var regs [16]uint32
	regs[0] = 7
	regs[15] = 0x2000
	trace.AddState(cpuSnapshot{T: 3, CPU: 0, PC: 0x1000, SR: 0xF0, Regs: regs})

	lines := trace.Lines()
	require.Len(t, lines, 1)
	require.Equal(t,
		`STATE {"t":3,"cpu":0,"pc":4096,"sr":240,"r":[7,0,0,0,0,0,0,0,0,0,0,0,0,0,0,8192]}`,
		lines[0])
}

func TestTraceLog_FaultRecordAndHaltLatch(t *testing.T) {
	trace := newTraceLog()
	trace.SetHaltOnFault(true)
	require.False(t, trace.ShouldHalt())

	trace.AddFault(faultEvent{T: 9, CPU: 1, PC: 0x1002, Detail: 0xFFFF, Reason: "ILLEGAL_OP"})
	lines := trace.Lines()
	require.Len(t, lines, 1)
	require.Equal(t,
		`FAULT {"t":9,"cpu":1,"pc":4098,"detail":65535,"reason":"ILLEGAL_OP"}`,
		lines[0])
	require.True(t, trace.ShouldHalt())
	require.Equal(t, 1, trace.FaultCount())
}

func TestTraceLog_WriteJSONLIsNewlineDelimited(t *testing.T) {
	trace := newTraceLog()
	trace.AddFault(faultEvent{T: 1, CPU: 0, PC: 0, Reason: "EXCEPTION_ENTRY"})
	trace.AddFault(faultEvent{T: 2, CPU: 0, PC: 0, Reason: "EXCEPTION_RETURN"})

	path := t.TempDir() + "/trace.jsonl"
	require.NoError(t, trace.WriteJSONL(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t,
		"FAULT {\"t\":1,\"cpu\":0,\"pc\":0,\"detail\":0,\"reason\":\"EXCEPTION_ENTRY\"}\n"+
			"FAULT {\"t\":2,\"cpu\":0,\"pc\":0,\"detail\":0,\"reason\":\"EXCEPTION_RETURN\"}\n",
		string(data))
}
