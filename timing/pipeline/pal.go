package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/sarchlab/ev6sim/insts"
	"github.com/sarchlab/ev6sim/timing/tlb"
)

// PAL errors.
var (
	// ErrHalted is returned by a PAL handler to stop the core.
	ErrHalted = errors.New("halted")
	// ErrUnhandledPAL is returned when no handler services an entry.
	ErrUnhandledPAL = errors.New("unhandled PAL entry")
)

// PALCall describes one entry into PALcode. The pipeline is empty when the
// handler runs: every older instruction has retired and every younger one
// has been squashed.
type PALCall struct {
	// Vector is the offset of the entry point from the PAL base.
	Vector insts.PALVector
	// Entry is the physical address of the entry point.
	Entry uint64
	// Exception is the fault being delivered, or ExcNone for CALL_PAL.
	Exception insts.Exception
	// Function is the CALL_PAL function code.
	Function uint32
	// PC is the faulting instruction, or the CALL_PAL itself.
	PC insts.PC
	// ReturnPC is where execution continues after a CALL_PAL.
	ReturnPC insts.PC
	// VA is the faulting address of a memory or fetch fault.
	VA uint64
	// Context is the translation context of the faulting instruction.
	Context tlb.Context
	// Regs exposes the architectural registers.
	Regs *ArchRegisters
}

// IsCallPAL reports whether the entry was caused by a CALL_PAL instruction.
func (c PALCall) IsCallPAL() bool {
	return c.Exception == insts.ExcNone
}

// PALHandler services PAL entries. It returns the PC at which fetch resumes;
// bit 0 of the PC selects PAL mode.
//
// While a DTB miss is being serviced the translator has a miss pending, so
// a handler that reads its page table through Translator.TranslateData
// with the faulting context gets DTBM_DOUBLE_3 or DTBM_DOUBLE_4 for an
// unmapped address. Handlers that walk physical memory never see a double
// miss. The pending miss ends on RefillDTB or when EnterPAL returns.
type PALHandler interface {
	EnterPAL(ctx context.Context, call PALCall) (uint64, error)
}

// PALHandlerFunc adapts a function to PALHandler.
type PALHandlerFunc func(ctx context.Context, call PALCall) (uint64, error)

// EnterPAL calls f.
func (f PALHandlerFunc) EnterPAL(ctx context.Context, call PALCall) (uint64, error) {
	return f(ctx, call)
}

// haltOnlyPAL halts on CALL_PAL HALT and rejects everything else.
var haltOnlyPAL = PALHandlerFunc(func(_ context.Context, call PALCall) (uint64, error) {
	if call.IsCallPAL() && call.Function == insts.PALHalt {
		return 0, ErrHalted
	}
	return 0, fmt.Errorf("vector %#x at %#x: %w", uint64(call.Vector), call.PC.Address(), ErrUnhandledPAL)
})

// ArchRegisters is the architectural view of the register files. It reads
// and writes through the current rename map, so it is only meaningful while
// no instruction is in flight.
type ArchRegisters struct {
	renamer *Renamer
	pal     bool
}

// ReadReg reads an integer register.
func (r *ArchRegisters) ReadReg(reg uint8) uint64 {
	return r.renamer.ReadArch(insts.Reg{File: insts.IntRegs, Num: reg}, r.pal)
}

// WriteReg writes an integer register. Writes to R31 are discarded.
func (r *ArchRegisters) WriteReg(reg uint8, value uint64) {
	r.renamer.WriteArch(insts.Reg{File: insts.IntRegs, Num: reg}, r.pal, value)
}

// ReadFP reads a floating-point register.
func (r *ArchRegisters) ReadFP(reg uint8) uint64 {
	return r.renamer.ReadArch(insts.Reg{File: insts.FloatRegs, Num: reg}, r.pal)
}

// WriteFP writes a floating-point register. Writes to F31 are discarded.
func (r *ArchRegisters) WriteFP(reg uint8, value uint64) {
	r.renamer.WriteArch(insts.Reg{File: insts.FloatRegs, Num: reg}, r.pal, value)
}

// Shadow returns the view seen by PALcode, in which R8-R11 and R24-R27 are
// the shadow registers when shadowing is enabled.
func (r *ArchRegisters) Shadow() *ArchRegisters {
	return &ArchRegisters{renamer: r.renamer, pal: true}
}
