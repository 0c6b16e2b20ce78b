// Package loader provides program loading for Alpha executables.
package loader

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/sarchlab/ev6sim/emu"
)

// Loader errors.
var (
	// ErrNotELF64 is returned for ELF files that are not 64-bit.
	ErrNotELF64 = errors.New("not a 64-bit ELF file")
	// ErrNotAlpha is returned for ELF files built for another machine.
	ErrNotAlpha = errors.New("not an Alpha ELF file")
	// ErrEmptyImage is returned for a raw image with no contents.
	ErrEmptyImage = errors.New("empty program image")
)

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// SegmentFlagExecute indicates the segment is executable.
	SegmentFlagExecute SegmentFlags = 1 << iota
	// SegmentFlagWrite indicates the segment is writable.
	SegmentFlagWrite
	// SegmentFlagRead indicates the segment is readable.
	SegmentFlagRead
)

// DefaultStackTop is the initial stack pointer for Alpha Linux user space.
// The stack grows down from just below the conventional text base.
const DefaultStackTop = 0x120000000

// DefaultStackSize is the default stack size (8MB).
const DefaultStackSize = 8 * 1024 * 1024

// Segment represents a loadable segment.
type Segment struct {
	// VirtAddr is the virtual address where this segment should be loaded.
	VirtAddr uint64
	// Data contains the segment contents from the file.
	Data []byte
	// MemSize is the size in memory (may be larger than len(Data) for BSS).
	MemSize uint64
	// Flags contains the segment protection flags.
	Flags SegmentFlags
}

// Program represents a loaded program ready for execution.
type Program struct {
	// EntryPoint is the virtual address where execution should begin.
	EntryPoint uint64
	// Segments contains all loadable segments.
	Segments []Segment
	// InitialSP is the initial stack pointer value.
	InitialSP uint64
	// GP is the initial global pointer (R29), when the image carries one.
	GP uint64
}

// Load parses an Alpha ELF64 binary and returns a Program struct ready for
// loading into memory.
func Load(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS64 {
		return nil, ErrNotELF64
	}
	if f.Machine != elf.EM_ALPHA {
		return nil, fmt.Errorf("%w (machine type: %v)", ErrNotAlpha, f.Machine)
	}

	prog := &Program{
		EntryPoint: f.Entry,
		InitialSP:  DefaultStackTop,
	}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Vaddr, err)
			}
			if uint64(n) != phdr.Filesz {
				return nil, fmt.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
					phdr.Vaddr, n, phdr.Filesz)
			}
		}

		prog.Segments = append(prog.Segments, Segment{
			VirtAddr: phdr.Vaddr,
			Data:     data,
			MemSize:  phdr.Memsz,
			Flags:    segmentFlags(phdr.Flags),
		})
	}

	if sec := f.Section(".got"); sec != nil {
		// The Alpha ABI points GP 0x8000 bytes into the GOT.
		prog.GP = sec.Addr + 0x8000
	}

	return prog, nil
}

func segmentFlags(pf elf.ProgFlag) SegmentFlags {
	var flags SegmentFlags
	if pf&elf.PF_X != 0 {
		flags |= SegmentFlagExecute
	}
	if pf&elf.PF_W != 0 {
		flags |= SegmentFlagWrite
	}
	if pf&elf.PF_R != 0 {
		flags |= SegmentFlagRead
	}
	return flags
}

// LoadImage reads a raw little-endian code image that is loaded and entered
// at base.
func LoadImage(path string, base uint64) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	return &Program{
		EntryPoint: base,
		InitialSP:  DefaultStackTop,
		Segments: []Segment{{
			VirtAddr: base,
			Data:     data,
			MemSize:  uint64(len(data)),
			Flags:    SegmentFlagRead | SegmentFlagWrite | SegmentFlagExecute,
		}},
	}, nil
}

// Install copies every segment into memory at its virtual address and
// zero-fills the BSS tail.
func (p *Program) Install(memory *emu.Memory) {
	for _, seg := range p.Segments {
		memory.WriteBytes(seg.VirtAddr, seg.Data)
		if seg.MemSize > uint64(len(seg.Data)) {
			memory.WriteBytes(seg.VirtAddr+uint64(len(seg.Data)),
				make([]byte, seg.MemSize-uint64(len(seg.Data))))
		}
	}
}

// Pages returns the page-aligned virtual addresses covered by the program's
// segments and its stack, in ascending order without duplicates.
func (p *Program) Pages(pageSize uint64) []uint64 {
	seen := make(map[uint64]bool)
	var pages []uint64
	add := func(start, size uint64) {
		if size == 0 {
			return
		}
		for va := start &^ (pageSize - 1); va < start+size; va += pageSize {
			if !seen[va] {
				seen[va] = true
				pages = append(pages, va)
			}
		}
	}

	for _, seg := range p.Segments {
		add(seg.VirtAddr, max(seg.MemSize, uint64(len(seg.Data))))
	}
	if p.InitialSP >= DefaultStackSize {
		add(p.InitialSP-DefaultStackSize, DefaultStackSize)
	}

	slices.Sort(pages)
	return pages
}
