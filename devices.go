// devices.go - word-addressed MMIO device hub

/*
Saturnis - deterministic dual-SH-2 bus arbitration and execution core

License: GPLv3 or later
*/

package main

import (
	"sort"

	"golang.org/x/exp/maps"
)

const (
	displayStatusAddr     = 0x05F00010
	scuInterruptMaskAddr  = 0x05FE00A0
	scuInterruptMaskWMask = 0x0000FFFF
)

// mmioWriteLog is one recorded device write, in commit order.
type mmioWriteLog struct {
	T     uint64
	CPU   int32
	Addr  uint32
	Value uint32
}

// deviceHub models the handful of Saturn MMIO registers this core needs:
// a read-only display-status bit and a truncating SCU interrupt mask
// register, with every other address behaving as a plain merged-write
// register file. TODO: expand to explicit per-device register models
// (SMPC/SCU/VDP1/VDP2/SCSP) once a consumer needs them.
type deviceHub struct {
	regs   map[uint32]uint32
	writes []mmioWriteLog
}

func newDeviceHub() *deviceHub {
	return &deviceHub{regs: make(map[uint32]uint32)}
}

func laneShift(addr uint32, size uint8) uint32 {
	switch size {
	case 1:
		return (addr & 3) * 8
	case 2:
		return (addr & 2) * 8
	default:
		return 0
	}
}

func sizeMask(size uint8) uint32 {
	switch size {
	case 1:
		return 0xFF
	case 2:
		return 0xFFFF
	default:
		return 0xFFFFFFFF
	}
}

// Read returns the lane-shifted, size-masked value at addr.
func (d *deviceHub) Read(addr uint32, size uint8) uint32 {
	wordAddr := addr &^ 3
	var value uint32
	switch wordAddr {
	case displayStatusAddr:
		value = 1 // deterministic display-ready status bit
	case scuInterruptMaskAddr:
		value = d.regs[wordAddr] & 0xFFFF
	default:
		value = d.regs[wordAddr]
	}
	shift := laneShift(addr, size)
	return (value >> shift) & sizeMask(size)
}

// Write merges value into the addressed register and appends a write-log
// record, regardless of whether the address is one of the special cases.
func (d *deviceHub) Write(t uint64, cpu int32, addr uint32, size uint8, value uint32) {
	d.writes = append(d.writes, mmioWriteLog{T: t, CPU: cpu, Addr: addr, Value: value})

	wordAddr := addr &^ 3
	if wordAddr == displayStatusAddr {
		return // read-only
	}

	shift := laneShift(addr, size)
	writeMask := sizeMask(size) << shift
	old := d.regs[wordAddr]
	merged := (old &^ writeMask) | ((value << shift) & writeMask)

	if wordAddr == scuInterruptMaskAddr {
		d.regs[wordAddr] = merged & scuInterruptMaskWMask
		return
	}
	d.regs[wordAddr] = merged
}

func (d *deviceHub) Writes() []mmioWriteLog { return d.writes }

// RegisterSnapshot returns the addresses of every MMIO register that holds
// a stored value, sorted ascending. Register values are not included.
func (d *deviceHub) RegisterSnapshot() []uint32 {
	addrs := maps.Keys(d.regs)
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}
