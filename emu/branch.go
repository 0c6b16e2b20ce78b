package emu

import "github.com/sarchlab/ev6sim/insts"

const signBit = uint64(1) << 63

// BranchTaken evaluates the condition of a branch format instruction against
// its Ra (or raw Fa) operand. BR and BSR are always taken.
func BranchTaken(op insts.Op, a uint64) bool {
	switch op {
	case insts.OpBR, insts.OpBSR:
		return true
	case insts.OpBEQ:
		return a == 0
	case insts.OpBNE:
		return a != 0
	case insts.OpBLT:
		return int64(a) < 0
	case insts.OpBGE:
		return int64(a) >= 0
	case insts.OpBLE:
		return int64(a) <= 0
	case insts.OpBGT:
		return int64(a) > 0
	case insts.OpBLBC:
		return a&1 == 0
	case insts.OpBLBS:
		return a&1 == 1
	}
	return fpCondition(op, a)
}

// fpCondition tests a T-format value. Both +0 and -0 compare equal to zero.
func fpCondition(op insts.Op, a uint64) bool {
	zero := a&^signBit == 0
	neg := a&signBit != 0 && !zero

	switch op {
	case insts.OpFBEQ, insts.OpFCMOVEQ:
		return zero
	case insts.OpFBNE, insts.OpFCMOVNE:
		return !zero
	case insts.OpFBLT, insts.OpFCMOVLT:
		return neg
	case insts.OpFBGE, insts.OpFCMOVGE:
		return !neg
	case insts.OpFBLE, insts.OpFCMOVLE:
		return neg || zero
	case insts.OpFBGT, insts.OpFCMOVGT:
		return !neg && !zero
	}
	return false
}

// BranchTarget returns the target of a branch format instruction at pc.
// disp is the byte displacement relative to the updated PC.
func BranchTarget(pc uint64, disp int64) uint64 {
	return uint64(int64(pc+4) + disp)
}

// JumpTarget returns the target of a jump format instruction; the low two
// bits of Rb are ignored.
func JumpTarget(rb uint64) uint64 {
	return rb &^ 3
}
