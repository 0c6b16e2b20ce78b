package emu

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/ev6sim/insts"
)

// Errors reported by the reference emulator.
var (
	ErrMaxInstructions = errors.New("max instructions reached")
	ErrIllegal         = errors.New("illegal instruction")
	ErrUnaligned       = errors.New("unaligned access")
	ErrArithmeticTrap  = errors.New("arithmetic trap")
)

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Exited is true if the program terminated (HALT or exit syscall).
	Exited bool

	// ExitCode is the exit status if Exited is true.
	ExitCode int64

	// Err is set if an error occurred during execution.
	Err error
}

// Emulator executes Alpha instructions one at a time, in program order, on a
// flat physical memory. It shares every execution body with the
// out-of-order pipelines and serves as their reference model.
type Emulator struct {
	regFile        *RegFile
	memory         *Memory
	decoder        *insts.Decoder
	syscallHandler SyscallHandler

	stdout io.Writer
	stderr io.Writer

	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithStdout sets a custom stdout writer.
func WithStdout(w io.Writer) EmulatorOption {
	return func(e *Emulator) {
		e.stdout = w
	}
}

// WithStderr sets a custom stderr writer.
func WithStderr(w io.Writer) EmulatorOption {
	return func(e *Emulator) {
		e.stderr = w
	}
}

// WithSyscallHandler sets a custom syscall handler.
func WithSyscallHandler(handler SyscallHandler) EmulatorOption {
	return func(e *Emulator) {
		e.syscallHandler = handler
	}
}

// WithMemory runs the emulator on an existing memory.
func WithMemory(m *Memory) EmulatorOption {
	return func(e *Emulator) {
		e.memory = m
	}
}

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// NewEmulator creates a new Alpha reference emulator.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		regFile: &RegFile{},
		memory:  NewMemory(),
		decoder: insts.NewDecoder(),
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.syscallHandler == nil {
		e.syscallHandler = NewDefaultSyscallHandler(e.memory, e.stdout, e.stderr)
	}

	return e
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// Memory returns the emulator's memory.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// LoadProgram copies a program image to entry and starts execution there.
func (e *Emulator) LoadProgram(entry uint64, program []byte) {
	e.memory.LoadProgram(entry, program)
	e.regFile.PC = entry
}

// Step executes a single instruction.
func (e *Emulator) Step() StepResult {
	if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
		return StepResult{Err: ErrMaxInstructions}
	}

	word := e.memory.Read32(e.regFile.PC)
	inst := e.decoder.Decode(word)

	result := e.execute(inst)
	if result.Err == nil {
		e.instructionCount++
	}

	return result
}

// Run executes instructions until the program exits or an error occurs.
// Returns the exit code (-1 if error).
func (e *Emulator) Run() int64 {
	for {
		result := e.Step()
		if result.Exited {
			return result.ExitCode
		}
		if result.Err != nil {
			_, _ = fmt.Fprintf(e.stderr, "Emulation error: %v\n", result.Err)
			return -1
		}
	}
}

func (e *Emulator) execute(inst *insts.Instruction) StepResult {
	rf := e.regFile
	pc := rf.PC
	ops := e.operands(inst)

	switch inst.Class() {
	case insts.ClassIllegal:
		return StepResult{Err: fmt.Errorf("%w: %#08x at PC=%#x", ErrIllegal, inst.Word, pc)}

	case insts.ClassNop:
		rf.PC = pc + 4
		return StepResult{}

	case insts.ClassPAL:
		rf.PC = pc + 4
		return e.executeCallPAL(inst)

	case insts.ClassLoad:
		addr := EffectiveAddress(inst, ops[insts.OperandB])
		if Misaligned(inst.Op, addr) {
			return StepResult{Err: fmt.Errorf("%w: %s at %#x", ErrUnaligned, inst.Op, addr)}
		}
		v := LoadExtend(inst.Op, e.memory.ReadSized(addr, insts.AccessSize(inst.Op)))
		e.writeDest(inst, v)
		rf.PC = pc + 4
		return StepResult{}

	case insts.ClassStore:
		addr := EffectiveAddress(inst, ops[insts.OperandB])
		if Misaligned(inst.Op, addr) {
			return StepResult{Err: fmt.Errorf("%w: %s at %#x", ErrUnaligned, inst.Op, addr)}
		}
		src := StoreFormat(inst.Op, ops[insts.OperandA])
		e.memory.WriteSized(addr, insts.AccessSize(inst.Op), src)
		e.writeDest(inst, 1)
		rf.PC = pc + 4
		return StepResult{}

	case insts.ClassMisc:
		e.writeDest(inst, e.instructionCount)
		rf.PC = pc + 4
		return StepResult{}
	}

	out := Execute(inst, pc, ops, rf.FPCR)
	if err := e.trap(inst, out.Exception); err != nil {
		return StepResult{Err: fmt.Errorf("%w at PC=%#x", err, pc)}
	}
	if inst.Op == insts.OpMTFPCR {
		rf.FPCR = FPCR(out.Result)
	}
	e.writeDest(inst, out.Result)
	rf.PC = out.Next
	return StepResult{}
}

func (e *Emulator) trap(inst *insts.Instruction, exc insts.Exception) error {
	if exc.Has(insts.ExcOPCDEC) {
		return fmt.Errorf("%w: %s", ErrIllegal, inst.Op)
	}

	fpcr, trap := Trap(inst, exc, e.regFile.FPCR)
	e.regFile.FPCR = fpcr
	if trap != insts.ExcNone {
		return fmt.Errorf("%w: %s", ErrArithmeticTrap, trap)
	}
	return nil
}

// operands reads the registers an instruction uses in each role.
func (e *Emulator) operands(inst *insts.Instruction) Operands {
	var ops Operands
	regs, used := inst.Operands()
	for role, r := range regs {
		if !used[role] {
			continue
		}
		if r.File == insts.FloatRegs {
			ops[role] = e.regFile.ReadFP(r.Num)
		} else {
			ops[role] = e.regFile.ReadReg(r.Num)
		}
	}
	return ops
}

func (e *Emulator) executeCallPAL(inst *insts.Instruction) StepResult {
	switch inst.PALFunction {
	case insts.PALHalt:
		return StepResult{Exited: true, ExitCode: int64(e.regFile.ReadReg(0))}
	case insts.PALCallSys:
		r := e.syscallHandler.Handle(e.regFile)
		return StepResult{Exited: r.Exited, ExitCode: r.ExitCode}
	}
	if _, _, ok := insts.CallPALVector(inst.PALFunction); !ok {
		return StepResult{Err: fmt.Errorf("%w: CALL_PAL %#x", ErrIllegal, inst.PALFunction)}
	}
	// Other PAL services have no functional effect here.
	return StepResult{}
}

func (e *Emulator) writeDest(inst *insts.Instruction, v uint64) {
	dest, ok := inst.Dest()
	if !ok {
		return
	}
	if dest.File == insts.FloatRegs {
		e.regFile.WriteFP(dest.Num, v)
		return
	}
	e.regFile.WriteReg(dest.Num, v)
}
