package pipeline

import (
	"fmt"
	"sync"

	"github.com/sarchlab/ev6sim/emu"
	"github.com/sarchlab/ev6sim/insts"
	"github.com/sarchlab/ev6sim/timing/cache"
	"github.com/sarchlab/ev6sim/timing/ring"
	"github.com/sarchlab/ev6sim/timing/tlb"
)

type storeEntry struct {
	inst     *Instruction
	resolved bool
	faulted  bool
	va, pa   uint64
	size     int
	data     uint64
}

// overlaps reports whether the store writes any byte of [pa, pa+size).
func (s *storeEntry) overlaps(pa uint64, size int) bool {
	return s.pa < pa+uint64(size) && pa < s.pa+uint64(s.size)
}

// StoreQueue holds in-flight stores in program order. Entries are allocated
// at fetch, resolved when the store executes and written to the data cache
// at retirement.
type StoreQueue struct {
	mu        sync.Mutex
	entries   *ring.Ring[*storeEntry]
	forwarded uint64
}

// NewStoreQueue creates a store queue with size entries.
func NewStoreQueue(size int) *StoreQueue {
	return &StoreQueue{entries: ring.New[*storeEntry](size)}
}

// Len returns the number of in-flight stores.
func (q *StoreQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entries.Len()
}

// Free returns the number of unused entries.
func (q *StoreQueue) Free() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entries.Cap() - q.entries.Len()
}

// Forwarded returns how many loads took data from an in-flight store.
func (q *StoreQueue) Forwarded() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.forwarded
}

// Allocate reserves the youngest entry for inst.
func (q *StoreQueue) Allocate(inst *Instruction) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e := &storeEntry{inst: inst}
	if !q.entries.PushBack(e) {
		return ErrQueueFull
	}
	inst.store = e
	return nil
}

// Resolve records the address and data of an executed store.
func (q *StoreQueue) Resolve(inst *Instruction, va, pa uint64, size int, data uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e := inst.store
	if e == nil {
		// Squashed while executing.
		return
	}
	e.va, e.pa, e.size, e.data = va, pa, size, data
	e.resolved = true
}

// Fault marks a store that raised an exception. It will never write memory,
// and younger loads no longer wait for it.
func (q *StoreQueue) Fault(inst *Instruction) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e := inst.store; e != nil {
		e.resolved = true
		e.faulted = true
	}
}

// HasUnresolvedBefore reports whether a store older than inst has not yet
// computed its address.
func (q *StoreQueue) HasUnresolvedBefore(inst *Instruction) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := 0; i < q.entries.Len(); i++ {
		e := q.entries.At(i)
		if e.inst.ID >= inst.ID {
			break
		}
		if !e.resolved {
			return true
		}
	}
	return false
}

// Load reads size bytes at pa through the data cache, then overlays the
// bytes written by older resolved stores, oldest first.
func (q *StoreQueue) Load(inst *Instruction, va, pa uint64, size int, dcache *cache.DCache) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	value := dcache.Read(va, pa, size).Data

	forwarded := false
	for i := 0; i < q.entries.Len(); i++ {
		e := q.entries.At(i)
		if e.inst.ID >= inst.ID {
			break
		}
		if !e.resolved || e.faulted || !e.overlaps(pa, size) {
			continue
		}
		value = mergeBytes(value, pa, size, e)
		forwarded = true
	}
	if forwarded {
		q.forwarded++
	}
	return value
}

// mergeBytes replaces the bytes of a little-endian value at pa with the
// bytes the store writes.
func mergeBytes(value, pa uint64, size int, s *storeEntry) uint64 {
	for i := range size {
		addr := pa + uint64(i)
		if addr < s.pa || addr >= s.pa+uint64(s.size) {
			continue
		}
		b := (s.data >> (8 * (addr - s.pa))) & 0xFF
		shift := 8 * uint(i)
		value = value&^(0xFF<<shift) | b<<shift
	}
	return value
}

// Commit pops the oldest entry, which must belong to inst, and performs its
// write on the data cache.
func (q *StoreQueue) Commit(inst *Instruction, dcache *cache.DCache) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries.PopFront()
	if !ok || e != inst.store {
		panic(fmt.Sprintf("pipeline: store queue head does not belong to %s", inst))
	}
	inst.store = nil
	if e.resolved && !e.faulted {
		dcache.Write(e.va, e.pa, e.size, e.data)
	}
}

// Squash drops the youngest entry, which must belong to inst.
func (q *StoreQueue) Squash(inst *Instruction) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries.PopBack()
	if !ok || e != inst.store {
		panic(fmt.Sprintf("pipeline: store queue tail does not belong to %s", inst))
	}
	inst.store = nil
}

// Clear drops every entry.
func (q *StoreQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries.Clear()
}

// outcome is what a pipe hands to completion.
type outcome struct {
	emu.Outcome
	faultVA uint64
	va, pa  uint64
	size    int
}

// executeMemory runs a load or store: address generation, alignment check,
// data translation and the cache or store queue access.
func (p *Pipeline) executeMemory(inst *Instruction, ops emu.Operands) outcome {
	in := inst.Inst
	out := outcome{Outcome: emu.Outcome{Next: inst.PC.Address() + 4}}

	va := emu.EffectiveAddress(in, ops[insts.OperandB])
	size := insts.AccessSize(in.Op)
	out.va, out.size = va, size
	store := inst.IsStore()

	fault := func(exc insts.Exception) outcome {
		out.Exception = exc
		out.faultVA = va
		if store {
			p.sq.Fault(inst)
		}
		return out
	}

	if emu.Misaligned(in.Op, va) {
		return fault(insts.ExcUnalign)
	}

	access := tlb.AccessRead
	if store {
		access = tlb.AccessWrite
	}
	pa, exc := p.translator.TranslateData(va, access, inst.Context)
	if exc != insts.ExcNone {
		return fault(exc)
	}
	out.pa = pa

	if store {
		p.sq.Resolve(inst, va, pa, size, emu.StoreFormat(in.Op, ops[insts.OperandA]))
		if in.Op == insts.OpSTLC || in.Op == insts.OpSTQC {
			out.Result = 1
		}
		return out
	}

	out.Result = emu.LoadExtend(in.Op, p.sq.Load(inst, va, pa, size, p.dcache))
	return out
}
