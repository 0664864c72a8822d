// trace.go - append-only deterministic trace log

/*
Saturnis - deterministic dual-SH-2 bus arbitration and execution core

License: GPLv3 or later
*/

package main

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// cpuSnapshot is one retired-instruction register dump.
type cpuSnapshot struct {
	T    uint64
	CPU  int32
	PC   uint32
	SR   uint32
	Regs [16]uint32
}

// commitEvent is one arbiter-committed bus transaction.
type commitEvent struct {
	TStart   uint64
	TEnd     uint64
	Stall    uint64
	CPU      int32
	Kind     busKind
	Phys     uint32
	Size     uint8
	Value    uint32
	Src      string
	CacheHit bool
}

// faultEvent is one recoverable error surfaced in-band.
type faultEvent struct {
	T      uint64
	CPU    int32
	PC     uint32
	Detail uint32
	Reason string
}

// traceLog is the append-only, line-oriented record of everything the
// core did. Formatting is byte-exact and must never be reordered: key
// order and decimal (never hex) numeric formatting are part of the
// determinism envelope, not cosmetic choices.
type traceLog struct {
	mu          sync.Mutex
	lines       []string
	faults      int
	haltOnFault bool
	shouldHalt  bool
}

func newTraceLog() *traceLog {
	return &traceLog{}
}

func (t *traceLog) SetHaltOnFault(v bool) { t.haltOnFault = v }
func (t *traceLog) HaltOnFault() bool     { return t.haltOnFault }
func (t *traceLog) ShouldHalt() bool      { return t.shouldHalt }
func (t *traceLog) FaultCount() int       { return t.faults }

// LatchHalt marks the run for a halt, used when fault records produced
// into a scratch log are merged into a halt-on-fault-armed shared log.
func (t *traceLog) LatchHalt() { t.shouldHalt = true }

func (t *traceLog) append(line string) {
	t.mu.Lock()
	t.lines = append(t.lines, line)
	t.mu.Unlock()
}

// Append merges pre-formatted lines (e.g. from a scratch traceLog used by
// a concurrent producer) onto the end of this log in the given order.
func (t *traceLog) Append(lines ...string) {
	t.mu.Lock()
	t.lines = append(t.lines, lines...)
	t.mu.Unlock()
}

// AddCommit appends a COMMIT record.
func (t *traceLog) AddCommit(e commitEvent) {
	line := fmt.Sprintf(
		`COMMIT {"t_start":%d,"t_end":%d,"stall":%d,"cpu":%d,"kind":"%s","phys":%d,"size":%d,"val":%d,"src":"%s","cache_hit":%s}`,
		e.TStart, e.TEnd, e.Stall, e.CPU, e.Kind.String(), e.Phys, e.Size, e.Value, e.Src, boolLiteral(e.CacheHit),
	)
	t.append(line)
}

// AddState appends a STATE record.
func (t *traceLog) AddState(s cpuSnapshot) {
	regs := make([]string, 16)
	for i, r := range s.Regs {
		regs[i] = fmt.Sprintf("%d", r)
	}
	line := fmt.Sprintf(
		`STATE {"t":%d,"cpu":%d,"pc":%d,"sr":%d,"r":[%s]}`,
		s.T, s.CPU, s.PC, s.SR, strings.Join(regs, ","),
	)
	t.append(line)
}

// AddFault appends a FAULT record and, if halt-on-fault is armed, marks
// the run for a halt after the current step completes.
func (t *traceLog) AddFault(f faultEvent) {
	line := fmt.Sprintf(
		`FAULT {"t":%d,"cpu":%d,"pc":%d,"detail":%d,"reason":"%s"}`,
		f.T, f.CPU, f.PC, f.Detail, f.Reason,
	)
	t.mu.Lock()
	t.lines = append(t.lines, line)
	t.faults++
	if t.haltOnFault {
		t.shouldHalt = true
	}
	t.mu.Unlock()
}

func boolLiteral(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Lines returns a snapshot of the recorded trace, one record per entry.
func (t *traceLog) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.lines))
	copy(out, t.lines)
	return out
}

// WriteJSONL writes every record, newline-delimited, to path.
func (t *traceLog) WriteJSONL(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, line := range t.Lines() {
		if _, err := f.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return nil
}
