package pipeline

import (
	"fmt"
	"sync/atomic"

	"github.com/sarchlab/ev6sim/insts"
	"github.com/sarchlab/ev6sim/timing/tlb"
)

// State is the lifecycle state of an in-flight instruction.
type State uint32

// Lifecycle states.
const (
	StateQueued State = iota
	StateExecuting
	StateWaitingRetirement
	StateRetired
	StateAborted
	numStates
)

var stateNames = [...]string{"queued", "executing", "waiting-retirement", "retired", "aborted"}

func (s State) String() string {
	if s < numStates {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint32(s))
}

// Event drives a lifecycle transition.
type Event uint8

// Lifecycle events.
const (
	// EventIssue is raised when a pipe claims the instruction.
	EventIssue Event = iota
	// EventComplete is raised when the pipe has produced the result.
	EventComplete
	// EventBypass completes an instruction that needs no pipe: fetch
	// faults, decode faults, barriers and CALL_PAL.
	EventBypass
	// EventRetire is raised when the instruction commits.
	EventRetire
	// EventAbort squashes the instruction.
	EventAbort
	numEvents
)

const invalidState = numStates

// transitions is indexed by [current state][event].
var transitions = func() [numStates][numEvents]State {
	var t [numStates][numEvents]State
	for s := range t {
		for e := range t[s] {
			t[s][e] = invalidState
		}
	}

	t[StateQueued][EventIssue] = StateExecuting
	t[StateQueued][EventBypass] = StateWaitingRetirement
	t[StateExecuting][EventComplete] = StateWaitingRetirement
	t[StateWaitingRetirement][EventRetire] = StateRetired

	t[StateQueued][EventAbort] = StateAborted
	t[StateExecuting][EventAbort] = StateAborted
	t[StateWaitingRetirement][EventAbort] = StateAborted

	return t
}()

// Operand is the physical register read in one operand role.
type Operand struct {
	Used bool
	File insts.RegFile
	Phys int // NoReg for R31/F31
}

// Instruction is one in-flight instruction. Fields set before dispatch are
// read-only afterwards; result fields are written under the reorder buffer
// lock.
type Instruction struct {
	ID uint64
	PC insts.PC
	// Inst is nil for a fetch fault record.
	Inst *insts.Instruction
	// Context is the translation context at fetch.
	Context tlb.Context

	state atomic.Uint32

	// Renaming.
	HasDest  bool
	DestFile insts.RegFile
	DestSlot int
	PhysDest int
	PrevPhys int
	Src      [insts.NumOperands]Operand

	// Prediction made at fetch.
	Pred          Prediction
	PredictedNext uint64

	// Results.
	Result       uint64
	Next         uint64
	Taken        bool
	Mispredicted bool
	Exception    insts.Exception
	FaultVA      uint64

	// Memory access.
	VA   uint64
	PA   uint64
	Size int

	queue      *Queue
	queueEntry *QueueEntry
	store      *storeEntry
}

// State returns the lifecycle state.
func (i *Instruction) State() State {
	return State(i.state.Load())
}

// Transition applies event to the lifecycle with compare-and-swap. It
// returns false, leaving the state unchanged, when the table has no
// transition for the current state.
func (i *Instruction) Transition(e Event) bool {
	for {
		from := i.State()
		to := transitions[from][e]
		if to == invalidState {
			return false
		}
		if i.state.CompareAndSwap(uint32(from), uint32(to)) {
			return true
		}
	}
}

// Class returns the execution class. Fetch fault records report
// ClassIllegal.
func (i *Instruction) Class() insts.Class {
	if i.Inst == nil {
		return insts.ClassIllegal
	}
	return i.Inst.Class()
}

// IsControl reports whether the instruction can redirect fetch.
func (i *Instruction) IsControl() bool {
	switch i.Class() {
	case insts.ClassBranch, insts.ClassFPBranch, insts.ClassJump:
		return true
	}
	return false
}

// IsStore reports whether the instruction writes memory.
func (i *Instruction) IsStore() bool {
	return i.Class() == insts.ClassStore
}

func (i *Instruction) String() string {
	name := "fault"
	if i.Inst != nil {
		name = i.Inst.Op.String()
	}
	return fmt.Sprintf("#%d %s @%#x [%s]", i.ID, name, i.PC.Address(), i.State())
}
