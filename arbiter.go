// arbiter.go - deterministic bus arbitration

/*
Saturnis - deterministic dual-SH-2 bus arbitration and execution core

License: GPLv3 or later
*/

package main

import "math"

const (
	defaultSameAddressContention = 2
	defaultTieTurnaround         = 1
	noHorizon                    = math.MaxUint64
)

type timingCallback func(addr uint32, isWrite bool, size uint8) int

// arbiterConfig tunes the contention surcharges applied on top of base
// region latency.
type arbiterConfig struct {
	SameAddressContention uint64
	TieTurnaround         uint64
}

func defaultArbiterConfig() arbiterConfig {
	return arbiterConfig{SameAddressContention: defaultSameAddressContention, TieTurnaround: defaultTieTurnaround}
}

func priorityClass(master busMasterID) int {
	if master == masterDMA {
		return 2
	}
	if master == masterCPUA || master == masterCPUB {
		return 1
	}
	return 0
}

func cpuIDOf(master busMasterID) int32 {
	switch master {
	case masterCPUA:
		return 0
	case masterCPUB:
		return 1
	default:
		return -1
	}
}

func otherCPU(m busMasterID) busMasterID {
	if m == masterCPUA {
		return masterCPUB
	}
	return masterCPUA
}

// ---- shared side-effect + latency helpers ----

func serviceCycles(cb timingCallback, req busRequest) uint64 {
	c := cb(req.Addr, req.IsWrite, req.Size)
	if c < 1 {
		c = 1
	}
	return uint64(c)
}

// performSideEffect performs the memory/device access for a request and
// returns the response value plus fill metadata, mutating memory/devices
// as appropriate. tick is the commit's finish tick, used to timestamp
// device writes. The returned lineBase is in units of lines.
func performSideEffect(mem *committedMemory, devs *deviceHub, req busRequest, tick uint64) (value uint32, lineBase uint32, lineData []byte) {
	switch req.Kind {
	case kindBarrier:
		return 0, 0, nil
	case kindWrite:
		mem.Write(req.Addr, req.Size, req.WriteValue)
		return req.WriteValue, 0, nil
	case kindMmioWrite:
		devs.Write(tick, req.CPUID, req.Addr, req.Size, req.WriteValue)
		return req.WriteValue, 0, nil
	case kindMmioRead:
		return devs.Read(req.Addr, req.Size), 0, nil
	default: // kindRead, kindIFetch
		v := mem.Read(req.Addr, req.Size)
		if req.FillCacheLine && req.CacheLineSize > 0 {
			lb := req.Addr / req.CacheLineSize
			return v, lb, mem.ReadBlock(lb*req.CacheLineSize, req.CacheLineSize)
		}
		return v, 0, nil
	}
}

// ==================== BusArbiter: production batch path ====================

// busArbiter is the production commit_batch-based arbiter: it defers
// commit order decisions to whichever requests have a known-safe horizon
// from both CPUs' producers.
type busArbiter struct {
	memory  *committedMemory
	devices *deviceHub
	trace   *traceLog
	cycles  timingCallback
	cfg     arbiterConfig

	busFreeTick        uint64
	lastGrantedAddr    uint32
	hasLastGrantedAddr bool
	lastGrantedCPU     busMasterID
	hasLastGrantedCPU  bool

	progressUpTo [2]uint64
	hasProgress  [2]bool
}

func newBusArbiter(mem *committedMemory, devs *deviceHub, trace *traceLog, cycles timingCallback) *busArbiter {
	return &busArbiter{memory: mem, devices: devs, trace: trace, cycles: cycles, cfg: defaultArbiterConfig()}
}

func (a *busArbiter) BusFreeTick() uint64 { return a.busFreeTick }

func (a *busArbiter) preferredCPU() busMasterID {
	if a.hasLastGrantedCPU {
		return otherCPU(a.lastGrantedCPU)
	}
	return masterCPUA
}

// UpdateProgress records the tick up to which cpuIdx's producer has
// committed to emitting no further requests below that tick. Used only
// to compute the commit_batch horizon.
func (a *busArbiter) UpdateProgress(cpuIdx int, executedUpTo uint64) {
	if cpuIdx != 0 && cpuIdx != 1 {
		return
	}
	if !a.hasProgress[cpuIdx] || executedUpTo > a.progressUpTo[cpuIdx] {
		a.progressUpTo[cpuIdx] = executedUpTo
		a.hasProgress[cpuIdx] = true
	}
}

func (a *busArbiter) horizon() uint64 {
	if !a.hasProgress[0] && !a.hasProgress[1] {
		return noHorizon
	}
	h := uint64(noHorizon)
	if a.hasProgress[0] && a.progressUpTo[0] < h {
		h = a.progressUpTo[0]
	}
	if a.hasProgress[1] && a.progressUpTo[1] < h {
		h = a.progressUpTo[1]
	}
	return h
}

func startTick(req busRequest, busFreeTick uint64) uint64 {
	if req.ReqTick > busFreeTick {
		return req.ReqTick
	}
	return busFreeTick
}

// pickNext implements the commit_batch tie-break chain: smallest
// max(req_time,bus_free_tick), then higher priority, then CPU fairness,
// then smaller cpu_id, then smaller sequence.
func (a *busArbiter) pickNext(committable []int, pending []busRequest) int {
	best := committable[0]
	for _, idx := range committable[1:] {
		if a.betterNext(pending[idx], idx, pending[best], best) {
			best = idx
		}
	}
	return best
}

func (a *busArbiter) betterNext(cand busRequest, candIdx int, cur busRequest, curIdx int) bool {
	candStart := startTick(cand, a.busFreeTick)
	curStart := startTick(cur, a.busFreeTick)
	if candStart != curStart {
		return candStart < curStart
	}
	candPri, curPri := priorityClass(cand.Master), priorityClass(cur.Master)
	if candPri != curPri {
		return candPri > curPri
	}
	if (cand.Master == masterCPUA || cand.Master == masterCPUB) &&
		(cur.Master == masterCPUA || cur.Master == masterCPUB) && cand.Master != cur.Master {
		if cand.Master == a.preferredCPU() {
			return true
		}
		if cur.Master == a.preferredCPU() {
			return false
		}
	}
	candCPU, curCPU := cpuIDOf(cand.Master), cpuIDOf(cur.Master)
	if candCPU != curCPU {
		return candCPU < curCPU
	}
	return cand.Seq < cur.Seq
}

// CommitBatch commits a batch of same-round requests in deterministic
// order, respecting each CPU's published run-ahead horizon, and returns
// results tagged with their original input index.
func (a *busArbiter) CommitBatch(ops []busRequest) []commitResult {
	pending := make([]busRequest, len(ops))
	copy(pending, ops)
	origIndex := make([]int, len(ops))
	for i := range origIndex {
		origIndex[i] = i
	}

	var results []commitResult
	for len(pending) > 0 {
		h := a.horizon()
		var committable []int
		for i, req := range pending {
			if h == noHorizon || req.ReqTick < h {
				committable = append(committable, i)
			}
		}
		if len(committable) == 0 {
			break
		}

		winner := a.pickNext(committable, pending)
		winnerStart := startTick(pending[winner], a.busFreeTick)
		winnerPri := priorityClass(pending[winner].Master)

		hadTie := false
		for _, idx := range committable {
			if idx == winner {
				continue
			}
			if startTick(pending[idx], a.busFreeTick) == winnerStart && priorityClass(pending[idx].Master) == winnerPri {
				hadTie = true
				break
			}
		}

		resp := a.commitGrant(pending[winner], hadTie)
		results = append(results, commitResult{InputIndex: origIndex[winner], Req: pending[winner], Resp: resp})

		pending = append(pending[:winner], pending[winner+1:]...)
		origIndex = append(origIndex[:winner], origIndex[winner+1:]...)
	}
	return results
}

// commitGrant performs one commit: computes actual start/finish, applies
// the side effect, updates arbiter state, and appends a COMMIT record.
func (a *busArbiter) commitGrant(req busRequest, hadTie bool) busResponse {
	actualStart := startTick(req, a.busFreeTick)
	duration := serviceCycles(a.cycles, req)
	if req.Kind != kindBarrier && a.hasLastGrantedAddr && req.Addr == a.lastGrantedAddr {
		duration += a.cfg.SameAddressContention
	}
	if hadTie {
		duration += a.cfg.TieTurnaround
	}
	finish := actualStart + duration
	a.busFreeTick = finish

	value, lineBase, lineData := performSideEffect(a.memory, a.devices, req, finish)

	if req.Kind != kindBarrier {
		a.lastGrantedAddr = req.Addr
		a.hasLastGrantedAddr = true
	}
	if hadTie && (req.Master == masterCPUA || req.Master == masterCPUB) {
		a.lastGrantedCPU = req.Master
		a.hasLastGrantedCPU = true
	}

	a.trace.AddCommit(commitEvent{
		TStart: actualStart, TEnd: finish, Stall: finish - req.ReqTick,
		CPU: int32(req.CPUID), Kind: req.Kind, Phys: req.Addr, Size: req.Size,
		Value: value, Src: sourceName(req.Master, req.Kind), CacheHit: false,
	})

	return busResponse{Value: value, Stall: finish - req.ReqTick, StartTick: actualStart, FinishTick: finish, LineBase: lineBase, LineData: lineData}
}

// ==================== SimpleArbiter: single-request path ====================

// simpleArbiter is the single-request arbitration path: QueryWait /
// CommitGrant / PickWinner, with no batch deferral. Used by callers
// wanting one commit at a time, and by tests phrased directly in these
// terms.
type simpleArbiter struct {
	cycles timingCallback
	cfg    arbiterConfig

	busFreeTick        uint64
	lastGrantedAddr    uint32
	hasLastGrantedAddr bool
	preferred          busMasterID
}

func newSimpleArbiter(cycles timingCallback) *simpleArbiter {
	return &simpleArbiter{cycles: cycles, cfg: defaultArbiterConfig(), preferred: masterCPUA}
}

func (a *simpleArbiter) BusFreeTick() uint64 { return a.busFreeTick }

// QueryWait reports whether req would have to wait given the arbiter's
// current state, without mutating anything. Must not depend on the order
// in which QueryWait is called relative to other QueryWait calls.
func (a *simpleArbiter) QueryWait(nowTick uint64) (shouldWait bool, waitCycles uint64) {
	if nowTick >= a.busFreeTick {
		return false, 0
	}
	w := a.busFreeTick - nowTick
	if w > math.MaxUint32 {
		w = math.MaxUint32
	}
	return true, w
}

// CommitGrant commits req starting no earlier than tickStart, returning
// the response and advancing bus_free_tick.
func (a *simpleArbiter) CommitGrant(mem *committedMemory, devs *deviceHub, trace *traceLog, req busRequest, tickStart uint64, hadTie bool) busResponse {
	actualStart := tickStart
	if a.busFreeTick > actualStart {
		actualStart = a.busFreeTick
	}
	duration := serviceCycles(a.cycles, req)
	if req.Kind != kindBarrier && a.hasLastGrantedAddr && req.Addr == a.lastGrantedAddr {
		duration += a.cfg.SameAddressContention
	}
	if hadTie {
		duration += a.cfg.TieTurnaround
	}
	finish := actualStart + duration
	a.busFreeTick = finish

	value, lineBase, lineData := performSideEffect(mem, devs, req, finish)

	if req.Kind != kindBarrier {
		a.lastGrantedAddr = req.Addr
		a.hasLastGrantedAddr = true
	}
	if hadTie && (req.Master == masterCPUA || req.Master == masterCPUB) {
		a.preferred = otherCPU(req.Master)
	}

	trace.AddCommit(commitEvent{
		TStart: actualStart, TEnd: finish, Stall: finish - req.ReqTick,
		CPU: int32(req.CPUID), Kind: req.Kind, Phys: req.Addr, Size: req.Size,
		Value: value, Src: sourceName(req.Master, req.Kind), CacheHit: false,
	})

	return busResponse{Value: value, Stall: finish - req.ReqTick, StartTick: actualStart, FinishTick: finish, LineBase: lineBase, LineData: lineData}
}

// PickWinner runs the pairwise reduction across batch, starting from
// index 0, and returns the winning index plus whether the winner beat a
// same-tick, equal-priority contender (the tie that earns the turnaround
// surcharge on commit). Returns (-1, false) for an empty batch.
func (a *simpleArbiter) PickWinner(batch []busRequest) (int, bool) {
	if len(batch) == 0 {
		return -1, false
	}
	winner := 0
	for i := 1; i < len(batch); i++ {
		if a.candidateBeats(batch[i], batch[winner]) {
			winner = i
		}
	}
	hadTie := false
	for i := range batch {
		if i == winner {
			continue
		}
		if batch[i].ReqTick == batch[winner].ReqTick &&
			priorityClass(batch[i].Master) == priorityClass(batch[winner].Master) &&
			batch[i].Master != batch[winner].Master {
			hadTie = true
			break
		}
	}
	return winner, hadTie
}

func (a *simpleArbiter) candidateBeats(cand, cur busRequest) bool {
	candPri, curPri := priorityClass(cand.Master), priorityClass(cur.Master)
	if candPri != curPri {
		return candPri > curPri
	}
	bothCPU := (cand.Master == masterCPUA || cand.Master == masterCPUB) &&
		(cur.Master == masterCPUA || cur.Master == masterCPUB)
	if bothCPU && cand.Master != cur.Master {
		if cand.Master == a.preferred {
			return true
		}
		if cur.Master == a.preferred {
			return false
		}
	}
	if cand.Master != cur.Master {
		return cand.Master < cur.Master
	}
	if cand.Addr != cur.Addr {
		return cand.Addr < cur.Addr
	}
	if cand.IsWrite != cur.IsWrite {
		return cand.IsWrite && !cur.IsWrite
	}
	return cand.Size < cur.Size
}
