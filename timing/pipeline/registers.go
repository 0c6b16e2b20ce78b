package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sarchlab/ev6sim/insts"
	"github.com/sarchlab/ev6sim/timing/ring"
)

// ErrStall is returned when renaming cannot proceed for lack of free
// physical registers. It is backpressure, never an exception.
var ErrStall = errors.New("rename stall")

// NoReg marks an operand or mapping that has no physical register: R31
// and F31 are never renamed.
const NoReg = -1

// Architectural slots per file. The integer file has eight extra slots for
// the PAL shadow copies of R8-R11 and R24-R27.
const (
	archSlots       = 31
	shadowSlots     = 8
	shadowBase      = archSlots
	shadowHighBase  = shadowBase + 4
	shadowLowFirst  = 8
	shadowHighFirst = 24
)

// RegState is the state of a physical register.
type RegState uint8

// Physical register states.
const (
	RegFree RegState = iota
	RegPendingUpdate
	RegValid
)

func (s RegState) String() string {
	switch s {
	case RegFree:
		return "free"
	case RegPendingUpdate:
		return "pending"
	case RegValid:
		return "valid"
	}
	return "invalid"
}

// PhysReg is one physical register.
type PhysReg struct {
	Value uint64
	State RegState
}

// MapEntry is the rename map entry of one architectural slot.
type MapEntry struct {
	// Current is the mapping seen by newly renamed instructions.
	Current int
	// Committed is the mapping of the last retired writer.
	Committed int
}

// RegisterFile is one physical register file with its free list and rename
// map.
type RegisterFile struct {
	regs    []PhysReg
	free    *ring.Ring[int]
	mapping []MapEntry
}

func newRegisterFile(total, mapped int) *RegisterFile {
	if total <= mapped {
		panic(fmt.Sprintf("pipeline: %d physical registers cannot back %d architectural slots",
			total, mapped))
	}

	f := &RegisterFile{
		regs:    make([]PhysReg, total),
		free:    ring.New[int](total),
		mapping: make([]MapEntry, mapped),
	}
	for i := range mapped {
		f.regs[i].State = RegValid
		f.mapping[i] = MapEntry{Current: i, Committed: i}
	}
	for i := mapped; i < total; i++ {
		f.free.PushBack(i)
	}
	return f
}

// release frees p at the tail of the free list. A rollback returns it to
// the head instead, so that the list is restored exactly.
func (f *RegisterFile) release(p int, rollback bool) {
	if f.regs[p].State == RegFree {
		panic(fmt.Sprintf("pipeline: physical register %d released twice", p))
	}
	f.regs[p] = PhysReg{State: RegFree}
	if rollback {
		f.free.PushFront(p)
	} else {
		f.free.PushBack(p)
	}
}

// Renamer owns both physical register files. Its mutex is the register
// lock: it is taken after the queue locks and before the store queue lock.
type Renamer struct {
	mu        sync.Mutex
	files     [2]*RegisterFile
	palShadow bool

	intRegs, floatRegs int
}

// NewRenamer creates the integer and floating-point register files.
func NewRenamer(intRegs, floatRegs int, palShadow bool) *Renamer {
	r := &Renamer{palShadow: palShadow, intRegs: intRegs, floatRegs: floatRegs}
	r.reset()
	return r
}

func (r *Renamer) reset() {
	intSlots := archSlots
	if r.palShadow {
		intSlots += shadowSlots
	}
	r.files[insts.IntRegs] = newRegisterFile(r.intRegs, intSlots)
	r.files[insts.FloatRegs] = newRegisterFile(r.floatRegs, archSlots)
}

// Reset returns both files to the power-on mapping with every value zero.
func (r *Renamer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
}

// slot returns the architectural slot of reg, or NoReg for R31/F31.
func (r *Renamer) slot(reg insts.Reg, pal bool) int {
	if reg.IsZero() {
		return NoReg
	}
	n := int(reg.Num)
	if reg.File == insts.IntRegs && r.palShadow && pal {
		switch {
		case n >= shadowLowFirst && n < shadowLowFirst+4:
			return shadowBase + n - shadowLowFirst
		case n >= shadowHighFirst && n < shadowHighFirst+4:
			return shadowHighBase + n - shadowHighFirst
		}
	}
	return n
}

// Free returns the number of free physical registers in a file.
func (r *Renamer) Free(file insts.RegFile) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.files[file].free.Len()
}

// Rename maps the operands of inst through the current map and allocates a
// physical destination. It returns ErrStall, changing nothing, when the
// destination file has no free register.
func (r *Renamer) Rename(inst *Instruction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pal := inst.PC.PALMode()
	dest, hasDest := inst.Inst.Dest()
	if hasDest && r.files[dest.File].free.Empty() {
		return ErrStall
	}

	regs, used := inst.Inst.Operands()
	for role, reg := range regs {
		if !used[role] {
			continue
		}
		op := Operand{Used: true, File: reg.File, Phys: NoReg}
		if s := r.slot(reg, pal); s != NoReg {
			op.Phys = r.files[reg.File].mapping[s].Current
		}
		inst.Src[role] = op
	}

	if !hasDest {
		return nil
	}

	f := r.files[dest.File]
	p, _ := f.free.PopFront()
	if f.regs[p].State != RegFree {
		panic(fmt.Sprintf("pipeline: free list holds live register %d", p))
	}
	f.regs[p] = PhysReg{State: RegPendingUpdate}

	s := r.slot(dest, pal)
	inst.HasDest = true
	inst.DestFile = dest.File
	inst.DestSlot = s
	inst.PhysDest = p
	inst.PrevPhys = f.mapping[s].Current
	f.mapping[s].Current = p

	return nil
}

// Rollback undoes the rename of inst. Rollbacks across a flush must run
// youngest first.
func (r *Renamer) Rollback(inst *Instruction) {
	if !inst.HasDest {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f := r.files[inst.DestFile]
	f.mapping[inst.DestSlot].Current = inst.PrevPhys
	f.release(inst.PhysDest, true)
}

// Commit makes the destination of inst architectural and frees the
// register it replaced.
func (r *Renamer) Commit(inst *Instruction) {
	if !inst.HasDest {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f := r.files[inst.DestFile]
	f.mapping[inst.DestSlot].Committed = inst.PhysDest
	f.release(inst.PrevPhys, false)
}

// Ready reports whether every source of inst holds a value. The
// destination is allocated at rename, so it is always pending or valid.
func (r *Renamer) Ready(inst *Instruction) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, op := range inst.Src {
		if op.Used && op.Phys != NoReg && r.files[op.File].regs[op.Phys].State != RegValid {
			return false
		}
	}
	return true
}

// ReadOperands returns the source values of inst by operand role.
func (r *Renamer) ReadOperands(inst *Instruction) [insts.NumOperands]uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var values [insts.NumOperands]uint64
	for role, op := range inst.Src {
		if op.Used && op.Phys != NoReg {
			values[role] = r.files[op.File].regs[op.Phys].Value
		}
	}
	return values
}

// WriteDest stores the result of inst and marks its register valid.
func (r *Renamer) WriteDest(inst *Instruction, value uint64) {
	if !inst.HasDest {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	reg := &r.files[inst.DestFile].regs[inst.PhysDest]
	if reg.State == RegFree {
		panic(fmt.Sprintf("pipeline: write to free register %d by %s", inst.PhysDest, inst))
	}
	*reg = PhysReg{Value: value, State: RegValid}
}

// ReadArch returns the value of an architectural register through the
// current map.
func (r *Renamer) ReadArch(reg insts.Reg, pal bool) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.slot(reg, pal)
	if s == NoReg {
		return 0
	}
	f := r.files[reg.File]
	return f.regs[f.mapping[s].Current].Value
}

// WriteArch overwrites an architectural register through the current map.
// It is only meaningful when no instruction is in flight.
func (r *Renamer) WriteArch(reg insts.Reg, pal bool, value uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.slot(reg, pal)
	if s == NoReg {
		return
	}
	f := r.files[reg.File]
	f.regs[f.mapping[s].Current] = PhysReg{Value: value, State: RegValid}
}

// Counts returns how many registers of a file are free, pending and valid.
func (r *Renamer) Counts(file insts.RegFile) (free, pending, valid int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reg := range r.files[file].regs {
		switch reg.State {
		case RegFree:
			free++
		case RegPendingUpdate:
			pending++
		case RegValid:
			valid++
		}
	}
	return free, pending, valid
}

// RenameSnapshot is a copy of the rename state used to compare states.
type RenameSnapshot struct {
	IntMap    []MapEntry
	FloatMap  []MapEntry
	IntFree   []int
	FloatFree []int
}

// Snapshot copies the rename maps and free lists.
func (r *Renamer) Snapshot() RenameSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	freeList := func(f *RegisterFile) []int {
		out := make([]int, f.free.Len())
		for i := range out {
			out[i] = f.free.At(i)
		}
		return out
	}

	intFile, floatFile := r.files[insts.IntRegs], r.files[insts.FloatRegs]
	return RenameSnapshot{
		IntMap:    append([]MapEntry(nil), intFile.mapping...),
		FloatMap:  append([]MapEntry(nil), floatFile.mapping...),
		IntFree:   freeList(intFile),
		FloatFree: freeList(floatFile),
	}
}
