// machine_test.go - end-to-end driver tests
package main

/*
Saturnis - deterministic dual-SH-2 bus arbitration and execution core

License: GPLv3 or later
*/

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMachine_BuiltInDemoRunsBothCoresAndLoops(t *testing.T) {
	m := NewMachine(RunConfig{MaxSteps: 400})
	m.Run(400)

	require.Greater(t, m.Steps(), uint64(0))

	// CPU-A's demo stores 0x2A at address 0x10 then reloads it into R2.
	require.Equal(t, uint32(0x2A), m.Memory().Read(0x00000010, 4))
	// CPU-B's demo stores 0x07 at address 0x20 then reloads it into R2.
	require.Equal(t, uint32(0x07), m.Memory().Read(0x00000020, 1))
}

func TestMachine_ConcurrentMatchesSequentialTrace(t *testing.T) {
	const steps = 200

	seqMachine := NewMachine(RunConfig{MaxSteps: steps})
	seqMachine.Run(steps)
	seqLines := seqMachine.Trace().Lines()

	for i := 0; i < 5; i++ {
		concMachine := NewMachine(RunConfig{MaxSteps: steps})
		concMachine.RunConcurrent(steps)
		concLines := concMachine.Trace().Lines()
		require.Equal(t, seqLines, concLines, "multithreaded façade run %d must byte-match the single-threaded trace", i)
	}
}

func TestMachine_DMARunsAlongsideCPUs(t *testing.T) {
	cfg := RunConfig{
		MaxSteps: 50,
		DMAOps: []dmaOp{
			{AtTick: 0, Addr: 0x00004000, Size: 4, IsWrite: true, Value: 0xCAFEBABE},
			{AtTick: 0, Addr: 0x00004000, Size: 4, IsWrite: false},
		},
	}
	m := NewMachine(cfg)
	m.Run(50)
	require.Equal(t, uint32(0xCAFEBABE), m.Memory().Read(0x00004000, 4))
}

func TestMachine_HaltOnFaultStopsRun(t *testing.T) {
	cfg := RunConfig{HaltOnFault: true, MaxSteps: 100}
	m := NewMachine(cfg)
	// Overwrite the freshly loaded demo program with an illegal opcode
	// (0xFFFF doesn't match any decoded form), forcing an ILLEGAL_OP
	// fault on CPU-A's first retirement.
	m.mem.Write(demoBaseA, 2, 0xFFFF)
	m.mem.Write(demoBaseA+2, 2, 0xFFFF)
	m.Run(100)

	lines := m.Trace().Lines()
	foundFault := false
	for _, l := range lines {
		if len(l) >= 5 && l[:5] == "FAULT" {
			foundFault = true
			break
		}
	}
	require.True(t, foundFault, "an illegal opcode must surface a FAULT record")
	require.Less(t, m.Steps(), uint64(100), "halt-on-fault must stop the run before max-steps")
}
