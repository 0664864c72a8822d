// debug.go - ambient debugging commands (never consulted by core execution)
package main

/*
Saturnis - deterministic dual-SH-2 bus arbitration and execution core

License: GPLv3 or later
*/

import (
	"fmt"
	"strconv"
	"strings"
)

// DebugCommand is a parsed monitor command: one of "dump", "regs", or
// "mem <addr> <len>". This is a read-only inspection convenience, never
// consulted by the arbiter or either core during a run.
type DebugCommand struct {
	Name string
	Args []string
}

// ParseDebugCommand splits a raw input line into a command name and
// arguments, lower-casing the command name.
func ParseDebugCommand(input string) DebugCommand {
	input = strings.TrimSpace(input)
	if input == "" {
		return DebugCommand{}
	}
	parts := strings.Fields(input)
	return DebugCommand{Name: strings.ToLower(parts[0]), Args: parts[1:]}
}

// ParseDebugAddress accepts $hex, 0xhex, bare hex, or #decimal.
func ParseDebugAddress(s string) (uint32, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.HasPrefix(s, "#") {
		v, err := strconv.ParseUint(s[1:], 10, 32)
		return uint32(v), err == nil
	}
	if strings.HasPrefix(s, "$") {
		v, err := strconv.ParseUint(s[1:], 16, 32)
		return uint32(v), err == nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 32)
		return uint32(v), err == nil
	}
	v, err := strconv.ParseUint(s, 16, 32)
	return uint32(v), err == nil
}

// RunDebugCommand executes a DebugCommand against a Machine, returning the
// human-readable result. Unknown commands return an error string rather
// than an error value: this is a REPL convenience, not a core API.
func RunDebugCommand(cmd DebugCommand, m *Machine, cpuIdx int) string {
	if cpuIdx < 0 || cpuIdx > 1 {
		return "error: cpu index out of range"
	}
	cpu := m.cpus[cpuIdx]

	switch cmd.Name {
	case "regs":
		var b strings.Builder
		fmt.Fprintf(&b, "cpu%d pc=%08x sr=%08x pr=%08x gbr=%08x vbr=%08x\n", cpuIdx, cpu.PC(), cpu.SR(), cpu.PR(), cpu.GBR(), cpu.VBR())
		for i := 0; i < 16; i++ {
			fmt.Fprintf(&b, "r%-2d=%08x ", i, cpu.Reg(i))
			if i%4 == 3 {
				b.WriteByte('\n')
			}
		}
		return b.String()

	case "dump":
		var b strings.Builder
		fmt.Fprintf(&b, "cpu%d executed=%d t=%d pc=%08x\n", cpuIdx, cpu.ExecutedInstructions(), cpu.LocalTime(), cpu.PC())
		fmt.Fprintf(&b, "mach=%08x macl=%08x\n", cpu.MACH(), cpu.MACL())
		return b.String()

	case "mem":
		if len(cmd.Args) < 2 {
			return "usage: mem <addr> <len>"
		}
		addr, ok := ParseDebugAddress(cmd.Args[0])
		if !ok {
			return "error: bad address"
		}
		length, err := strconv.Atoi(cmd.Args[1])
		if err != nil || length <= 0 {
			return "error: bad length"
		}
		data := m.Memory().ReadBlock(toPhys(addr), uint32(length))
		var b strings.Builder
		for i, bv := range data {
			fmt.Fprintf(&b, "%02x ", bv)
			if i%16 == 15 {
				b.WriteByte('\n')
			}
		}
		return b.String()

	default:
		return "error: unknown command " + cmd.Name
	}
}
