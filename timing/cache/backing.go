package cache

import (
	"github.com/sarchlab/ev6sim/emu"
)

// MemoryBacking is the memory collaborator behind both caches. Icache fills
// read 16 instruction words per line, Dcache fills read 64-byte lines, and
// Dcache writebacks store whole dirty lines. Addresses are physical.
type MemoryBacking struct {
	mem *emu.Memory
}

// NewMemoryBacking serves line fills and writebacks from mem.
func NewMemoryBacking(mem *emu.Memory) *MemoryBacking {
	return &MemoryBacking{mem: mem}
}

// Read returns a fresh copy of size bytes at pa.
func (b *MemoryBacking) Read(pa uint64, size int) []byte {
	line := make([]byte, size)
	b.mem.ReadBytes(pa, line)
	return line
}

// Write stores a written-back line at pa.
func (b *MemoryBacking) Write(pa uint64, line []byte) {
	b.mem.WriteBytes(pa, line)
}
