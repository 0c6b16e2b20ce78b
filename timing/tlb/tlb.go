// Package tlb models the instruction and data translation buffers (ITB and
// DTB) and the address translation policy that sits in front of them.
package tlb

import (
	"sync"

	"github.com/sarchlab/ev6sim/insts"
	"github.com/sarchlab/ev6sim/timing/ring"
)

// Page geometry.
const (
	PageShift = 13
	PageSize  = 1 << PageShift
)

// Protection holds the per-mode enables and fault-on bits of a mapping.
type Protection uint16

// Protection bits. Read enables also grant instruction fetch in the ITB.
const (
	KRE Protection = 1 << iota // kernel read enable
	ERE                        // executive read enable
	SRE                        // supervisor read enable
	URE                        // user read enable
	KWE                        // kernel write enable
	EWE                        // executive write enable
	SWE                        // supervisor write enable
	UWE                        // user write enable
	FOR                        // fault on read
	FOW                        // fault on write
	FOE                        // fault on execute
)

// AllAccess grants read and write in every mode.
const AllAccess = KRE | ERE | SRE | URE | KWE | EWE | SWE | UWE

// CanRead reports whether mode may read (or execute from) the page.
func (p Protection) CanRead(mode insts.Mode) bool {
	return p&(KRE<<mode) != 0
}

// CanWrite reports whether mode may write the page.
func (p Protection) CanWrite(mode insts.Mode) bool {
	return p&(KWE<<mode) != 0
}

// Entry is one translation buffer slot.
type Entry struct {
	Valid bool
	Tag   uint64 // VA bits covered by MatchMask
	PFN   uint64 // PA bits covered by MatchMask
	Prot  Protection
	ASN   uint8
	ASM   bool  // address space match: entry is global
	GH    uint8 // granularity hint: the entry covers 8^GH pages

	MatchMask uint64
	seq       uint64 // allocation order
}

// Matches reports whether the entry translates va in address space asn.
func (e Entry) Matches(va uint64, asn uint8) bool {
	return e.Valid && va&e.MatchMask == e.Tag && (e.ASM || e.ASN == asn)
}

// Translate maps va through the entry.
func (e Entry) Translate(va uint64) uint64 {
	return e.PFN | va&^e.MatchMask
}

// Stats holds translation buffer statistics.
type Stats struct {
	Lookups     uint64
	Hits        uint64
	Misses      uint64
	Allocations uint64
	Evictions   uint64
}

// TB is a fully associative translation buffer. Replacement reuses
// explicitly invalidated slots first, in the order they were invalidated,
// and otherwise evicts the oldest-allocated valid slot.
type TB struct {
	mu        sync.Mutex
	entries   []Entry
	freeSlots *ring.Ring[int]
	seq       uint64
	stats     Stats
}

// New creates a translation buffer with size entries.
func New(size int) *TB {
	t := &TB{
		entries:   make([]Entry, size),
		freeSlots: ring.New[int](size),
	}
	for i := range size {
		t.freeSlots.PushBack(i)
	}
	return t
}

// Size returns the number of slots.
func (t *TB) Size() int {
	return len(t.entries)
}

// Lookup returns a copy of the entry that maps va in address space asn.
func (t *TB) Lookup(va uint64, asn uint8) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.Lookups++
	if i := t.find(va, asn); i >= 0 {
		t.stats.Hits++
		return t.entries[i], true
	}
	t.stats.Misses++
	return Entry{}, false
}

func (t *TB) find(va uint64, asn uint8) int {
	for i := range t.entries {
		if t.entries[i].Matches(va, asn) {
			return i
		}
	}
	return -1
}

// Allocate installs a mapping of the aligned block containing va to pa and
// returns the slot used. gh is clamped to 0..3.
func (t *TB) Allocate(va, pa uint64, prot Protection, asn uint8, asm bool, gh uint8) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	gh = min(gh, 3)
	mask := ^uint64(0) << (PageShift + 3*uint(gh))

	// A refill in place keeps its age; only a claimed slot becomes youngest.
	slot := t.find(va, asn)
	var seq uint64
	if slot >= 0 {
		seq = t.entries[slot].seq
	} else {
		slot = t.victim()
		t.seq++
		seq = t.seq
	}

	t.stats.Allocations++
	t.entries[slot] = Entry{
		Valid:     true,
		Tag:       va & mask,
		PFN:       pa & mask,
		Prot:      prot,
		ASN:       asn,
		ASM:       asm,
		GH:        gh,
		MatchMask: mask,
		seq:       seq,
	}
	return slot
}

func (t *TB) victim() int {
	if slot, ok := t.freeSlots.PopFront(); ok {
		return slot
	}

	oldest := 0
	for i := range t.entries {
		if t.entries[i].seq < t.entries[oldest].seq {
			oldest = i
		}
	}
	t.stats.Evictions++
	return oldest
}

func (t *TB) invalidate(i int) {
	if !t.entries[i].Valid {
		return
	}
	t.entries[i].Valid = false
	t.freeSlots.PushBack(i)
}

// InvalidateAll clears every entry.
func (t *TB) InvalidateAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.entries {
		t.invalidate(i)
	}
}

// InvalidateNonGlobal clears every entry without ASM set.
func (t *TB) InvalidateNonGlobal() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.entries {
		if !t.entries[i].ASM {
			t.invalidate(i)
		}
	}
}

// InvalidateSingle clears the entry mapping va in address space asn.
func (t *TB) InvalidateSingle(va uint64, asn uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i := t.find(va, asn); i >= 0 {
		t.invalidate(i)
	}
}

// Slot returns a copy of slot i.
func (t *TB) Slot(i int) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[i]
}

// ValidCount returns the number of valid entries.
func (t *TB) ValidCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for i := range t.entries {
		if t.entries[i].Valid {
			n++
		}
	}
	return n
}

// Stats returns a snapshot of the statistics.
func (t *TB) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
