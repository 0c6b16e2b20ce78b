// Package emu provides functional Alpha execution: the operate, branch,
// load/store and floating-point bodies the pipelines call, a sparse physical
// memory, and an in-order reference emulator built on the same functions.
package emu

import (
	"math/bits"

	"github.com/sarchlab/ev6sim/insts"
)

// Implementation constants reported by AMASK and IMPLVER.
const (
	// AMASK feature bits implemented: BWX, FIX, CIX.
	amaskFeatures uint64 = 0x7
	// IMPLVER value of the 21264.
	implVersion uint64 = 2
)

// IntOperate executes an integer operate instruction. a and b are the Ra and
// Rb (or literal) operands; c is the old value of Rc, which conditional moves
// keep when their condition fails. Overflow on /V forms is reported as
// ExcIntOverflow together with the wrapped result.
func IntOperate(op insts.Op, a, b, c uint64) (uint64, insts.Exception) {
	switch op {
	// Arithmetic
	case insts.OpADDL:
		return sext32(a + b), insts.ExcNone
	case insts.OpS4ADDL:
		return sext32(a<<2 + b), insts.ExcNone
	case insts.OpS8ADDL:
		return sext32(a<<3 + b), insts.ExcNone
	case insts.OpSUBL:
		return sext32(a - b), insts.ExcNone
	case insts.OpS4SUBL:
		return sext32(a<<2 - b), insts.ExcNone
	case insts.OpS8SUBL:
		return sext32(a<<3 - b), insts.ExcNone
	case insts.OpADDQ:
		return a + b, insts.ExcNone
	case insts.OpS4ADDQ:
		return a<<2 + b, insts.ExcNone
	case insts.OpS8ADDQ:
		return a<<3 + b, insts.ExcNone
	case insts.OpSUBQ:
		return a - b, insts.ExcNone
	case insts.OpS4SUBQ:
		return a<<2 - b, insts.ExcNone
	case insts.OpS8SUBQ:
		return a<<3 - b, insts.ExcNone
	case insts.OpADDLV:
		r := int64(int32(a)) + int64(int32(b))
		return sext32(uint64(r)), overflowIf(r != int64(int32(r)))
	case insts.OpSUBLV:
		r := int64(int32(a)) - int64(int32(b))
		return sext32(uint64(r)), overflowIf(r != int64(int32(r)))
	case insts.OpADDQV:
		r := a + b
		return r, overflowIf((a^r)&(b^r)>>63 != 0)
	case insts.OpSUBQV:
		r := a - b
		return r, overflowIf((a^b)&(a^r)>>63 != 0)

	// Compares
	case insts.OpCMPEQ:
		return boolValue(a == b), insts.ExcNone
	case insts.OpCMPLT:
		return boolValue(int64(a) < int64(b)), insts.ExcNone
	case insts.OpCMPLE:
		return boolValue(int64(a) <= int64(b)), insts.ExcNone
	case insts.OpCMPULT:
		return boolValue(a < b), insts.ExcNone
	case insts.OpCMPULE:
		return boolValue(a <= b), insts.ExcNone
	case insts.OpCMPBGE:
		return cmpbge(a, b), insts.ExcNone

	// Logical
	case insts.OpAND:
		return a & b, insts.ExcNone
	case insts.OpBIC:
		return a &^ b, insts.ExcNone
	case insts.OpBIS:
		return a | b, insts.ExcNone
	case insts.OpORNOT:
		return a | ^b, insts.ExcNone
	case insts.OpXOR:
		return a ^ b, insts.ExcNone
	case insts.OpEQV:
		return a ^ ^b, insts.ExcNone
	case insts.OpAMASK:
		return b &^ amaskFeatures, insts.ExcNone
	case insts.OpIMPLVER:
		return implVersion, insts.ExcNone

	// Conditional moves
	case insts.OpCMOVLBS, insts.OpCMOVLBC, insts.OpCMOVEQ, insts.OpCMOVNE,
		insts.OpCMOVLT, insts.OpCMOVGE, insts.OpCMOVLE, insts.OpCMOVGT:
		if cmovCondition(op, a) {
			return b, insts.ExcNone
		}
		return c, insts.ExcNone

	// Shifts
	case insts.OpSLL:
		return a << (b & 63), insts.ExcNone
	case insts.OpSRL:
		return a >> (b & 63), insts.ExcNone
	case insts.OpSRA:
		return uint64(int64(a) >> (b & 63)), insts.ExcNone

	// Byte manipulation
	case insts.OpEXTBL:
		return extract(a, b, 0x01), insts.ExcNone
	case insts.OpEXTWL:
		return extract(a, b, 0x03), insts.ExcNone
	case insts.OpEXTLL:
		return extract(a, b, 0x0F), insts.ExcNone
	case insts.OpEXTQL:
		return extract(a, b, 0xFF), insts.ExcNone
	case insts.OpINSBL:
		return insert(a, b, 0x01), insts.ExcNone
	case insts.OpINSWL:
		return insert(a, b, 0x03), insts.ExcNone
	case insts.OpINSLL:
		return insert(a, b, 0x0F), insts.ExcNone
	case insts.OpINSQL:
		return insert(a, b, 0xFF), insts.ExcNone
	case insts.OpMSKBL:
		return mask(a, b, 0x01), insts.ExcNone
	case insts.OpMSKWL:
		return mask(a, b, 0x03), insts.ExcNone
	case insts.OpMSKLL:
		return mask(a, b, 0x0F), insts.ExcNone
	case insts.OpMSKQL:
		return mask(a, b, 0xFF), insts.ExcNone
	case insts.OpZAP:
		return zapNot(a, ^b), insts.ExcNone
	case insts.OpZAPNOT:
		return zapNot(a, b), insts.ExcNone

	// Sign extension and counts operate on Rb.
	case insts.OpSEXTB:
		return uint64(int64(int8(b))), insts.ExcNone
	case insts.OpSEXTW:
		return uint64(int64(int16(b))), insts.ExcNone
	case insts.OpCTPOP:
		return uint64(bits.OnesCount64(b)), insts.ExcNone
	case insts.OpCTLZ:
		return uint64(bits.LeadingZeros64(b)), insts.ExcNone
	case insts.OpCTTZ:
		return uint64(bits.TrailingZeros64(b)), insts.ExcNone

	// Multiply
	case insts.OpMULL:
		return sext32(a * b), insts.ExcNone
	case insts.OpMULQ:
		return a * b, insts.ExcNone
	case insts.OpUMULH:
		hi, _ := bits.Mul64(a, b)
		return hi, insts.ExcNone
	case insts.OpMULLV:
		r := int64(int32(a)) * int64(int32(b))
		return sext32(uint64(r)), overflowIf(r != int64(int32(r)))
	case insts.OpMULQV:
		return a * b, overflowIf(mulOverflows(int64(a), int64(b)))
	}

	return 0, insts.ExcOPCDEC
}

func sext32(v uint64) uint64 {
	return uint64(int64(int32(v)))
}

func boolValue(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func overflowIf(b bool) insts.Exception {
	if b {
		return insts.ExcIntOverflow
	}
	return insts.ExcNone
}

func mulOverflows(a, b int64) bool {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	// Convert the unsigned high word to the signed product's high word.
	if a < 0 {
		hi -= uint64(b)
	}
	if b < 0 {
		hi -= uint64(a)
	}
	return hi != uint64(int64(lo)>>63)
}

func cmovCondition(op insts.Op, a uint64) bool {
	switch op {
	case insts.OpCMOVLBS:
		return a&1 == 1
	case insts.OpCMOVLBC:
		return a&1 == 0
	case insts.OpCMOVEQ:
		return a == 0
	case insts.OpCMOVNE:
		return a != 0
	case insts.OpCMOVLT:
		return int64(a) < 0
	case insts.OpCMOVGE:
		return int64(a) >= 0
	case insts.OpCMOVLE:
		return int64(a) <= 0
	case insts.OpCMOVGT:
		return int64(a) > 0
	}
	return false
}

func cmpbge(a, b uint64) uint64 {
	var r uint64
	for i := 0; i < 8; i++ {
		if uint8(a>>(8*i)) >= uint8(b>>(8*i)) {
			r |= 1 << i
		}
	}
	return r
}

// zapNot keeps the bytes of v whose bit is set in the low 8 bits of keep.
func zapNot(v, keep uint64) uint64 {
	var m uint64
	for i := 0; i < 8; i++ {
		if keep&(1<<i) != 0 {
			m |= 0xFF << (8 * i)
		}
	}
	return v & m
}

func extract(a, b, byteMask uint64) uint64 {
	return zapNot(a>>((b&7)*8), byteMask)
}

func insert(a, b, byteMask uint64) uint64 {
	return zapNot(a<<((b&7)*8), byteMask<<(b&7))
}

func mask(a, b, byteMask uint64) uint64 {
	return zapNot(a, ^(byteMask << (b & 7)))
}
