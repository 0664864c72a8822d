// tracereplay - replays COMMIT records from a captured trace against a
// freshly constructed arbiter model and reports where the two disagree.
package main

/*
Saturnis - deterministic dual-SH-2 bus arbitration and execution core

License: GPLv3 or later
*/

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// commitRecord is one parsed COMMIT line from a saturnis trace.
type commitRecord struct {
	lineNo   int
	tStart   uint64
	tEnd     uint64
	stall    uint64
	cpu      int64
	kind     string
	phys     uint32
	size     uint8
	cacheHit bool
}

// findValueSpan extracts the raw text of a "key":value (or "key":"value")
// pair from one COMMIT line without a full JSON parse; the trace format
// is fixed-shape, so span extraction is enough.
func findValueSpan(line, key string) (string, bool) {
	needle := `"` + key + `":`
	idx := strings.Index(line, needle)
	if idx < 0 {
		return "", false
	}
	start := idx + len(needle)
	if start >= len(line) {
		return "", false
	}
	if line[start] == '"' {
		end := strings.IndexByte(line[start+1:], '"')
		if end < 0 {
			return "", false
		}
		return line[start+1 : start+1+end], true
	}
	end := start
	for end < len(line) && line[end] != ',' && line[end] != '}' {
		end++
	}
	return line[start:end], true
}

func parseCommitLine(line string, lineNo int) (commitRecord, bool) {
	if !strings.HasPrefix(line, "COMMIT ") {
		return commitRecord{}, false
	}
	body := strings.TrimPrefix(line, "COMMIT ")

	fields := map[string]string{}
	for _, k := range []string{"t_start", "t_end", "stall", "cpu", "kind", "phys", "size", "cache_hit"} {
		v, ok := findValueSpan(body, k)
		if !ok {
			return commitRecord{}, false
		}
		fields[k] = v
	}

	tStart, err1 := strconv.ParseUint(fields["t_start"], 10, 64)
	tEnd, err2 := strconv.ParseUint(fields["t_end"], 10, 64)
	stall, err3 := strconv.ParseUint(fields["stall"], 10, 64)
	cpu, err4 := strconv.ParseInt(fields["cpu"], 10, 64)
	phys, err5 := strconv.ParseUint(fields["phys"], 10, 64)
	size, err6 := strconv.ParseUint(fields["size"], 10, 8)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil || err6 != nil {
		return commitRecord{}, false
	}

	return commitRecord{
		lineNo: lineNo, tStart: tStart, tEnd: tEnd, stall: stall, cpu: cpu,
		kind: fields["kind"], phys: uint32(phys), size: uint8(size),
		cacheHit: fields["cache_hit"] == "true",
	}, true
}

// regionTiming is one row of the Saturn region timing table, duplicated
// here from the core's own table because a standalone trace analysis
// tool should not depend on the core binary's internal package.
type regionTiming struct {
	low, high               uint32
	readCycles, writeCycles uint32
}

var replayRegionTimings = [...]regionTiming{
	{0x00000000, 0x00FFFFFF, 2, 2},   // BIOS ROM
	{0x01000000, 0x017FFFFF, 4, 2},   // SMPC
	{0x01800000, 0x01FFFFFF, 2, 2},   // Backup RAM
	{0x02000000, 0x02FFFFFF, 2, 2},   // Low WRAM
	{0x10000000, 0x1FFFFFFF, 4, 2},   // MINIT/SINIT
	{0x20000000, 0x4FFFFFFF, 2, 2},   // A-Bus CS0/CS1
	{0x50000000, 0x57FFFFFF, 8, 2},   // A-Bus dummy
	{0x58000000, 0x58FFFFFF, 40, 40}, // CD Block CS2
	{0x5A000000, 0x5BFFFFFF, 40, 2},  // SCSP
	{0x5C000000, 0x5C7FFFFF, 22, 2},  // VDP1 VRAM
	{0x5C800000, 0x5CFFFFFF, 22, 2},  // VDP1 framebuffer
	{0x5D000000, 0x5D7FFFFF, 14, 2},  // VDP1 registers
	{0x5E000000, 0x5FBFFFFF, 20, 2},  // VDP2
	{0x5FE00000, 0x5FEFFFFF, 4, 2},   // SCU registers
	{0x60000000, 0x7FFFFFFF, 2, 2},   // High WRAM
}

func replayAccessCycles(phys uint32, isWrite bool, _ uint8) int {
	for _, r := range replayRegionTimings {
		if phys >= r.low && phys <= r.high {
			if isWrite {
				return int(r.writeCycles)
			}
			return int(r.readCycles)
		}
	}
	if isWrite {
		return 2
	}
	return 4
}

// replayArbiter is a minimal standalone re-derivation of the bus-free-tick
// and same-address-contention bookkeeping the real SimpleArbiter performs,
// used only to sanity-check a captured trace's own internal consistency.
type replayArbiter struct {
	busFreeTick        uint64
	lastGrantedAddr    uint32
	hasLastGrantedAddr bool
}

const sameAddressContention = 2

func (a *replayArbiter) queryWait(nowTick uint64) uint64 {
	if nowTick >= a.busFreeTick {
		return 0
	}
	return a.busFreeTick - nowTick
}

func (a *replayArbiter) commit(rec commitRecord, reqTick uint64) (wait uint64, service int, total uint64) {
	wait = a.queryWait(reqTick)
	actualStart := reqTick + wait
	if actualStart < a.busFreeTick {
		actualStart = a.busFreeTick
	}
	service = replayAccessCycles(rec.phys, rec.kind == "WRITE" || rec.kind == "MMIO_WRITE", rec.size)
	if rec.kind != "BARRIER" && a.hasLastGrantedAddr && rec.phys == a.lastGrantedAddr {
		service += sameAddressContention
	}
	finish := actualStart + uint64(service)
	a.busFreeTick = finish
	if rec.kind != "BARRIER" {
		a.lastGrantedAddr = rec.phys
		a.hasLastGrantedAddr = true
	}
	return wait, service, finish - reqTick
}

type replayResult struct {
	rec            commitRecord
	recordedTotal  uint64
	replayedWait   uint64
	replayedTotal  uint64
	deltaTotal     int64
	classification string
}

func classify(rec commitRecord, recordedTotal, replayedTotal uint64, replayedWait uint64) replayResult {
	delta := int64(replayedTotal) - int64(recordedTotal)
	r := replayResult{rec: rec, recordedTotal: recordedTotal, replayedWait: replayedWait, replayedTotal: replayedTotal, deltaTotal: delta}

	knownByteGap := rec.size == 1 && replayedWait == 0 && delta > 0
	switch {
	case knownByteGap:
		r.classification = "known_ymir_wait_model_gap"
	case delta == 0:
		r.classification = "agreement"
	default:
		r.classification = "mismatch"
	}
	return r
}

func printHelp() {
	fmt.Fprintln(os.Stderr, "Usage: tracereplay <input.jsonl> [--summary-output <path>] [--top <N>]")
	fmt.Fprintln(os.Stderr, "Replays COMMIT records against a standalone arbiter model and classifies agreement with the recorded timings.")
}

func main() {
	summaryOutput := pflag.String("summary-output", "", "write a JSON summary to this path")
	top := pflag.Int("top", 20, "number of largest mismatches to print")
	pflag.Usage = printHelp
	pflag.Parse()

	if pflag.NArg() < 1 {
		printHelp()
		os.Exit(1)
	}
	inputPath := pflag.Arg(0)

	f, err := os.Open(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open input file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	arb := &replayArbiter{}
	var results []replayResult
	malformed := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		rec, ok := parseCommitLine(line, lineNo)
		if !ok {
			continue // STATE/FAULT lines and malformed COMMIT lines are skipped, not an error
		}
		if rec.tEnd < rec.tStart {
			malformed++
			continue
		}
		recordedTotal := rec.stall
		reqTick := rec.tEnd - recordedTotal
		wait, _, total := arb.commit(rec, reqTick)
		results = append(results, classify(rec, recordedTotal, total, wait))
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "error reading input: %v\n", err)
		os.Exit(1)
	}

	var agreement, mismatch, knownGap int
	for _, r := range results {
		switch r.classification {
		case "agreement":
			agreement++
		case "known_ymir_wait_model_gap":
			knownGap++
		default:
			mismatch++
		}
	}

	fmt.Printf("records processed:   %d\n", len(results))
	fmt.Printf("malformed skipped:   %d\n", malformed)
	fmt.Printf("agreement:           %d\n", agreement)
	fmt.Printf("known model gap:     %d\n", knownGap)
	fmt.Printf("mismatch:            %d\n", mismatch)

	if mismatch > 0 {
		sorted := append([]replayResult(nil), results...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return abs64(sorted[i].deltaTotal) > abs64(sorted[j].deltaTotal)
		})
		n := *top
		if n > len(sorted) {
			n = len(sorted)
		}
		fmt.Printf("\ntop %d by |delta_total|:\n", n)
		for i := 0; i < n; i++ {
			r := sorted[i]
			fmt.Printf("  line %d phys=%d kind=%s recorded=%d replayed=%d delta=%d (%s)\n",
				r.rec.lineNo, r.rec.phys, r.rec.kind, r.recordedTotal, r.replayedTotal, r.deltaTotal, r.classification)
		}
	}

	if *summaryOutput != "" {
		sf, err := os.Create(*summaryOutput)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open summary output: %v\n", err)
			os.Exit(1)
		}
		defer sf.Close()
		fmt.Fprintf(sf, "{\n  \"records_processed\": %d,\n  \"malformed_skipped\": %d,\n  \"agreement\": %d,\n  \"known_gap\": %d,\n  \"mismatch\": %d\n}\n",
			len(results), malformed, agreement, knownGap, mismatch)
	}

	if mismatch > 0 {
		os.Exit(1)
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
