// cache.go - direct-mapped tiny instruction cache

/*
Saturnis - deterministic dual-SH-2 bus arbitration and execution core

License: GPLv3 or later
*/

package main

import "fmt"

// cacheLine is one direct-mapped slot: valid when Tag matches the
// containing line's base (phys / lineSize, in units of lines).
type cacheLine struct {
	Valid bool
	Tag   uint32
	Bytes []byte
}

// tinyCache is the CPU's direct-mapped instruction cache. Index is
// lineBase mod len(lines).
type tinyCache struct {
	lineSize  uint32
	lineCount uint32
	lines     []cacheLine
}

func newTinyCache(lineSize, lineCount uint32) *tinyCache {
	lines := make([]cacheLine, lineCount)
	for i := range lines {
		lines[i].Bytes = make([]byte, lineSize)
	}
	return &tinyCache{lineSize: lineSize, lineCount: lineCount, lines: lines}
}

func (c *tinyCache) LineSize() uint32 { return c.lineSize }

func (c *tinyCache) lineBase(phys uint32) uint32 {
	return phys / c.lineSize
}

// Read returns the little-endian value at phys/size if it is fully
// contained in a valid line whose tag matches.
func (c *tinyCache) Read(phys uint32, size uint8) (uint32, bool) {
	base := c.lineBase(phys)
	idx := base % c.lineCount
	line := &c.lines[idx]
	if !line.Valid || line.Tag != base {
		return 0, false
	}
	off := phys % c.lineSize
	if off+uint32(size) > c.lineSize {
		return 0, false
	}
	return readLE(line.Bytes[off:off+uint32(size)]), true
}

// Write updates an existing hit line in place; a miss is a silent no-op,
// per the store-to-cache-without-fill rule.
func (c *tinyCache) Write(phys uint32, size uint8, value uint32) {
	base := c.lineBase(phys)
	idx := base % c.lineCount
	line := &c.lines[idx]
	if !line.Valid || line.Tag != base {
		return
	}
	off := phys % c.lineSize
	if off+uint32(size) > c.lineSize {
		return
	}
	writeLE(line.Bytes[off:off+uint32(size)], value)
}

// FillLine installs a freshly fetched line at lineBase (in units of
// lines). bytes must be exactly LineSize() long.
func (c *tinyCache) FillLine(lineBase uint32, bytes []byte) error {
	if uint32(len(bytes)) != c.lineSize {
		return fmt.Errorf("cache: fill length %d != line size %d", len(bytes), c.lineSize)
	}
	idx := lineBase % c.lineCount
	line := &c.lines[idx]
	line.Valid = true
	line.Tag = lineBase
	copy(line.Bytes, bytes)
	return nil
}

func readLE(b []byte) uint32 {
	var v uint32
	for i := len(b) - 1; i >= 0; i-- {
		v = (v << 8) | uint32(b[i])
	}
	return v
}

func writeLE(b []byte, v uint32) {
	for i := range b {
		b[i] = byte(v)
		v >>= 8
	}
}
