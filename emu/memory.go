package emu

import (
	"encoding/binary"
	"sync"
)

// PageSize is the size of one physical memory page.
const PageSize = 8192

// Memory is a sparse little-endian physical memory. Pages are allocated on
// first write; unwritten memory reads as zero. It is safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	pages map[uint64]*[PageSize]byte
}

// NewMemory creates an empty memory.
func NewMemory() *Memory {
	return &Memory{pages: make(map[uint64]*[PageSize]byte)}
}

// ReadBytes copies len(buf) bytes starting at addr into buf.
func (m *Memory) ReadBytes(addr uint64, buf []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for len(buf) > 0 {
		off := addr % PageSize
		n := min(uint64(len(buf)), PageSize-off)
		if page, ok := m.pages[addr/PageSize]; ok {
			copy(buf[:n], page[off:off+n])
		} else {
			clear(buf[:n])
		}
		buf = buf[n:]
		addr += n
	}
}

// WriteBytes copies data into memory starting at addr.
func (m *Memory) WriteBytes(addr uint64, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(data) > 0 {
		off := addr % PageSize
		n := min(uint64(len(data)), PageSize-off)
		page, ok := m.pages[addr/PageSize]
		if !ok {
			page = new([PageSize]byte)
			m.pages[addr/PageSize] = page
		}
		copy(page[off:off+n], data[:n])
		data = data[n:]
		addr += n
	}
}

// Read8 reads a byte.
func (m *Memory) Read8(addr uint64) uint8 {
	var b [1]byte
	m.ReadBytes(addr, b[:])
	return b[0]
}

// Write8 writes a byte.
func (m *Memory) Write8(addr uint64, value uint8) {
	m.WriteBytes(addr, []byte{value})
}

// Read16 reads a little-endian 16-bit word.
func (m *Memory) Read16(addr uint64) uint16 {
	var b [2]byte
	m.ReadBytes(addr, b[:])
	return binary.LittleEndian.Uint16(b[:])
}

// Write16 writes a little-endian 16-bit word.
func (m *Memory) Write16(addr uint64, value uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], value)
	m.WriteBytes(addr, b[:])
}

// Read32 reads a little-endian longword.
func (m *Memory) Read32(addr uint64) uint32 {
	var b [4]byte
	m.ReadBytes(addr, b[:])
	return binary.LittleEndian.Uint32(b[:])
}

// Write32 writes a little-endian longword.
func (m *Memory) Write32(addr uint64, value uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], value)
	m.WriteBytes(addr, b[:])
}

// Read64 reads a little-endian quadword.
func (m *Memory) Read64(addr uint64) uint64 {
	var b [8]byte
	m.ReadBytes(addr, b[:])
	return binary.LittleEndian.Uint64(b[:])
}

// Write64 writes a little-endian quadword.
func (m *Memory) Write64(addr uint64, value uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], value)
	m.WriteBytes(addr, b[:])
}

// ReadSized reads a zero-extended value of 1, 2, 4 or 8 bytes.
func (m *Memory) ReadSized(addr uint64, size int) uint64 {
	switch size {
	case 1:
		return uint64(m.Read8(addr))
	case 2:
		return uint64(m.Read16(addr))
	case 4:
		return uint64(m.Read32(addr))
	default:
		return m.Read64(addr)
	}
}

// WriteSized writes the low size bytes of value.
func (m *Memory) WriteSized(addr uint64, size int, value uint64) {
	switch size {
	case 1:
		m.Write8(addr, uint8(value))
	case 2:
		m.Write16(addr, uint16(value))
	case 4:
		m.Write32(addr, uint32(value))
	default:
		m.Write64(addr, value)
	}
}

// LoadProgram copies a program image to addr.
func (m *Memory) LoadProgram(addr uint64, program []byte) {
	m.WriteBytes(addr, program)
}

// LoadWords stores instruction words contiguously starting at addr.
func (m *Memory) LoadWords(addr uint64, words []uint32) {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	m.WriteBytes(addr, buf)
}

// PageCount returns the number of allocated pages.
func (m *Memory) PageCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pages)
}
