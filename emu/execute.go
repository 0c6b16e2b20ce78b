package emu

import "github.com/sarchlab/ev6sim/insts"

// Operands are the values an instruction reads, by operand role.
type Operands [insts.NumOperands]uint64

// Outcome is the effect of executing a register or control-flow instruction.
type Outcome struct {
	// Result is the value for the destination register, if the instruction
	// has one.
	Result uint64

	// Next is the address of the following instruction in program order.
	Next uint64

	// Taken is set when control flow leaves the fall-through path.
	Taken bool

	// Exception holds the raw faults of the operation. Floating-point bits
	// are not yet filtered by the FPCR trap disables.
	Exception insts.Exception
}

// Execute computes the outcome of every class except loads, stores, RPCC
// and CALL_PAL, whose effects need the memory system or the PAL handler.
// MT_FPCR yields the new FPCR as its result; MF_FPCR yields fpcr.
func Execute(inst *insts.Instruction, pc uint64, ops Operands, fpcr FPCR) Outcome {
	out := Outcome{Next: pc + 4}
	a, b, c := ops[insts.OperandA], ops[insts.OperandB], ops[insts.OperandC]
	if inst.UseLiteral {
		b = inst.Literal
	}

	switch inst.Class() {
	case insts.ClassIntALU, insts.ClassIntShift, insts.ClassIntMul:
		out.Result, out.Exception = IntOperate(inst.Op, a, b, c)

	case insts.ClassLoadAddr:
		out.Result = EffectiveAddress(inst, b)

	case insts.ClassBranch, insts.ClassFPBranch:
		out.Result = pc + 4
		if BranchTaken(inst.Op, a) {
			out.Taken = true
			out.Next = BranchTarget(pc, inst.Displacement)
		}

	case insts.ClassJump:
		out.Result = pc + 4
		out.Taken = true
		out.Next = JumpTarget(b)

	case insts.ClassIntToFP, insts.ClassFPToInt:
		out.Result, out.Exception = FPOperate(inst, a, 0, 0, fpcr)

	case insts.ClassFPAdd, insts.ClassFPMul, insts.ClassFPDiv:
		if inst.Op == insts.OpMFFPCR {
			out.Result = uint64(fpcr)
			break
		}
		out.Result, out.Exception = FPOperate(inst, a, b, c, fpcr)

	case insts.ClassIllegal:
		out.Exception = insts.ExcOPCDEC
	}

	return out
}

// Trap applies the arithmetic exception rules to the raw faults of an
// instruction. Integer overflow always traps. Floating-point faults are
// merged into the FPCR status and trap unless their disable bit is set.
func Trap(inst *insts.Instruction, exc insts.Exception, fpcr FPCR) (FPCR, insts.Exception) {
	exc = exc.Arithmetic()
	if exc == insts.ExcNone {
		return fpcr, insts.ExcNone
	}

	switch inst.Class() {
	case insts.ClassFPAdd, insts.ClassFPMul, insts.ClassFPDiv,
		insts.ClassIntToFP, insts.ClassFPToInt:
		fpcr = fpcr.Merge(exc)
		return fpcr, fpcr.Trapping(exc)
	}
	return fpcr, exc
}
