package emu

import (
	"math"
	"math/big"

	"github.com/sarchlab/ev6sim/insts"
)

// FPCR is the floating-point control register.
type FPCR uint64

// FPCR fields.
const (
	FPCRInvalidDisable   FPCR = 1 << 49
	FPCRDivZeroDisable   FPCR = 1 << 50
	FPCROverflowDisable  FPCR = 1 << 51
	FPCRInvalid          FPCR = 1 << 52
	FPCRDivZero          FPCR = 1 << 53
	FPCROverflow         FPCR = 1 << 54
	FPCRUnderflow        FPCR = 1 << 55
	FPCRInexact          FPCR = 1 << 56
	FPCRIntOverflow      FPCR = 1 << 57
	FPCRDynMask          FPCR = 3 << 58
	FPCRUnderflowDisable FPCR = 1 << 61
	FPCRInexactDisable   FPCR = 1 << 62
	FPCRSummary          FPCR = 1 << 63
)

var fpcrFields = []struct {
	exc     insts.Exception
	status  FPCR
	disable FPCR
}{
	{insts.ExcInvalid, FPCRInvalid, FPCRInvalidDisable},
	{insts.ExcDivZero, FPCRDivZero, FPCRDivZeroDisable},
	{insts.ExcOverflow, FPCROverflow, FPCROverflowDisable},
	{insts.ExcUnderflow, FPCRUnderflow, FPCRUnderflowDisable},
	{insts.ExcInexact, FPCRInexact, FPCRInexactDisable},
	{insts.ExcIntOverflow, FPCRIntOverflow, 0},
}

// Merge records the arithmetic exceptions of exc in the status bits and the
// summary bit.
func (f FPCR) Merge(exc insts.Exception) FPCR {
	for _, field := range fpcrFields {
		if exc&field.exc != 0 {
			f |= field.status | FPCRSummary
		}
	}
	return f
}

// Trapping returns the arithmetic exceptions of exc whose trap is not
// disabled.
func (f FPCR) Trapping(exc insts.Exception) insts.Exception {
	var t insts.Exception
	for _, field := range fpcrFields {
		if exc&field.exc != 0 && f&field.disable == 0 {
			t |= field.exc
		}
	}
	return t
}

// Rounding returns the dynamic rounding mode.
func (f FPCR) Rounding() RoundingMode {
	return RoundingMode((f & FPCRDynMask) >> 58)
}

// RoundingMode selects how a result is rounded. The encoding matches both the
// FPCR dynamic field and the instruction rounding qualifier, where qualifier
// value 3 means "use the FPCR".
type RoundingMode uint8

// Rounding modes.
const (
	RoundChopped RoundingMode = iota
	RoundMinusInf
	RoundNormal
	RoundPlusInf
)

const (
	fpTrue = uint64(0x4000000000000000) // 2.0
	qNaN   = uint64(0x7FF8000000000000)

	minNormalT = 0x1p-1022
	minNormalS = 0x1p-126

	// exactPrec holds the exact sum or product of any two float64 values.
	exactPrec = 2200
)

// FPOperate executes a floating-point operate instruction, including the
// register moves between files. a and b are raw register bits of Fa/Ra and
// Fb; c is the old Fc for FCMOVxx. Arithmetic exceptions are reported only
// when the instruction's trap qualifier enables them.
func FPOperate(inst *insts.Instruction, a, b, c uint64, fpcr FPCR) (uint64, insts.Exception) {
	switch inst.Op {
	case insts.OpITOFT, insts.OpFTOIT:
		return a, insts.ExcNone
	case insts.OpITOFS:
		return S2T(uint32(a)), insts.ExcNone
	case insts.OpFTOIS:
		return sext32(uint64(T2S(a))), insts.ExcNone
	case insts.OpCPYS:
		return a&signBit | b&^signBit, insts.ExcNone
	case insts.OpCPYSN:
		return ^a&signBit | b&^signBit, insts.ExcNone
	case insts.OpCPYSE:
		return a&0xFFF0000000000000 | b&0x000FFFFFFFFFFFFF, insts.ExcNone
	case insts.OpFCMOVEQ, insts.OpFCMOVNE, insts.OpFCMOVLT,
		insts.OpFCMOVGE, insts.OpFCMOVLE, insts.OpFCMOVGT:
		if fpCondition(inst.Op, a) {
			return b, insts.ExcNone
		}
		return c, insts.ExcNone
	case insts.OpCVTLQ:
		lw := (b>>62&3)<<30 | (b>>29)&0x3FFFFFFF
		return sext32(lw), insts.ExcNone
	case insts.OpCVTQL:
		return (b>>30&3)<<62 | (b&0x3FFFFFFF)<<29, insts.ExcNone
	case insts.OpMTFPCR, insts.OpMFFPCR:
		// The FPCR is read and written in program order at retirement.
		return a, insts.ExcNone
	case insts.OpCMPTUN, insts.OpCMPTEQ, insts.OpCMPTLT, insts.OpCMPTLE:
		return compare(inst.Op, a, b)
	}

	r, exc := fpArith(inst, a, b, fpcr)
	return r, exc & qualifierMask(inst)
}

func qualifierMask(inst *insts.Instruction) insts.Exception {
	m := insts.ExcInvalid | insts.ExcDivZero | insts.ExcOverflow
	tq := inst.TrapQual
	switch inst.Op {
	case insts.OpCVTTQ:
		if tq&1 != 0 {
			m |= insts.ExcIntOverflow
		}
	case insts.OpCVTQS, insts.OpCVTQT:
	default:
		if tq&1 != 0 {
			m |= insts.ExcUnderflow
		}
	}
	if tq == 7 {
		m |= insts.ExcInexact
	}
	return m
}

func compare(op insts.Op, a, b uint64) (uint64, insts.Exception) {
	x, y := math.Float64frombits(a), math.Float64frombits(b)
	unordered := math.IsNaN(x) || math.IsNaN(y)

	switch op {
	case insts.OpCMPTUN:
		return fpBool(unordered), insts.ExcNone
	case insts.OpCMPTEQ:
		return fpBool(!unordered && x == y), insts.ExcNone
	}
	if unordered {
		return 0, insts.ExcInvalid
	}
	if op == insts.OpCMPTLT {
		return fpBool(x < y), insts.ExcNone
	}
	return fpBool(x <= y), insts.ExcNone
}

func fpBool(b bool) uint64 {
	if b {
		return fpTrue
	}
	return 0
}

func roundingOf(inst *insts.Instruction, fpcr FPCR) RoundingMode {
	if inst.RoundQual == 3 {
		return fpcr.Rounding()
	}
	return RoundingMode(inst.RoundQual)
}

func fpArith(inst *insts.Instruction, a, b uint64, fpcr FPCR) (uint64, insts.Exception) {
	x, y := math.Float64frombits(a), math.Float64frombits(b)

	switch inst.Op {
	case insts.OpCVTQT:
		return intToFloat(int64(b), false)
	case insts.OpCVTQS:
		return intToFloat(int64(b), true)
	case insts.OpCVTTS:
		if math.IsNaN(y) {
			return qNaN, insts.ExcInvalid
		}
		return narrow(y, true, math.IsInf(y, 0), func(r float64) bool { return r == y })
	case insts.OpCVTTQ:
		return floatToInt(y, roundingOf(inst, fpcr))
	case insts.OpSQRTT:
		if math.IsNaN(y) || y < 0 {
			return qNaN, insts.ExcInvalid
		}
		return narrow(math.Sqrt(y), false, math.IsInf(y, 0), exactness(inst.Op, x, y))
	}

	if math.IsNaN(x) || math.IsNaN(y) {
		return qNaN, insts.ExcInvalid
	}

	var r float64
	switch inst.Op {
	case insts.OpADDS, insts.OpADDT:
		r = x + y
	case insts.OpSUBS, insts.OpSUBT:
		r = x - y
	case insts.OpMULS, insts.OpMULT:
		r = x * y
	case insts.OpDIVS, insts.OpDIVT:
		if y == 0 {
			if x == 0 {
				return qNaN, insts.ExcInvalid
			}
			if !math.IsInf(x, 0) {
				return math.Float64bits(math.Copysign(math.Inf(1), x*y)),
					insts.ExcDivZero
			}
		}
		r = x / y
	default:
		return 0, insts.ExcOPCDEC
	}
	if math.IsNaN(r) {
		return qNaN, insts.ExcInvalid
	}

	single := inst.Op == insts.OpADDS || inst.Op == insts.OpSUBS ||
		inst.Op == insts.OpMULS || inst.Op == insts.OpDIVS
	infOperand := math.IsInf(x, 0) || math.IsInf(y, 0)
	if infOperand {
		return narrow(r, single, true, nil)
	}
	return narrow(r, single, false, exactness(inst.Op, x, y))
}

// narrow rounds r to the destination format and reports overflow, underflow
// and inexact. exact reports whether a rounded result equals the infinitely
// precise one.
func narrow(r float64, single bool, infOperand bool, exact func(float64) bool) (uint64, insts.Exception) {
	minNormal := minNormalT
	if single {
		r = float64(float32(r))
		minNormal = minNormalS
	}

	if infOperand {
		return math.Float64bits(r), insts.ExcNone
	}
	if math.IsInf(r, 0) {
		return math.Float64bits(r), insts.ExcOverflow | insts.ExcInexact
	}

	var exc insts.Exception
	inexact := !exact(r)
	if inexact {
		exc |= insts.ExcInexact
	}
	if (r != 0 && math.Abs(r) < minNormal) || (r == 0 && inexact) {
		exc |= insts.ExcUnderflow
	}
	return math.Float64bits(r), exc
}

// exactness returns a test of whether a rounded result of op on finite x and
// y is exact.
func exactness(op insts.Op, x, y float64) func(float64) bool {
	bx, by := big.NewFloat(x), big.NewFloat(y)
	exactly := func(want *big.Float) func(float64) bool {
		return func(r float64) bool { return want.Cmp(big.NewFloat(r)) == 0 }
	}
	wide := func() *big.Float { return new(big.Float).SetPrec(exactPrec) }

	switch op {
	case insts.OpADDS, insts.OpADDT:
		return exactly(wide().Add(bx, by))
	case insts.OpSUBS, insts.OpSUBT:
		return exactly(wide().Sub(bx, by))
	case insts.OpMULS, insts.OpMULT:
		return exactly(wide().Mul(bx, by))
	case insts.OpDIVS, insts.OpDIVT:
		// x/y is exact when r*y reproduces x.
		return func(r float64) bool {
			return wide().Mul(big.NewFloat(r), by).Cmp(bx) == 0
		}
	case insts.OpSQRTT:
		return func(r float64) bool {
			br := big.NewFloat(r)
			return wide().Mul(br, br).Cmp(by) == 0
		}
	}
	return func(float64) bool { return true }
}

func intToFloat(q int64, single bool) (uint64, insts.Exception) {
	r := float64(q)
	exact := new(big.Float).SetInt64(q)
	if single {
		r = float64(float32(q))
	}
	if exact.Cmp(big.NewFloat(r)) != 0 {
		return math.Float64bits(r), insts.ExcInexact
	}
	return math.Float64bits(r), insts.ExcNone
}

func floatToInt(y float64, mode RoundingMode) (uint64, insts.Exception) {
	if math.IsNaN(y) {
		return 0, insts.ExcInvalid
	}
	if math.IsInf(y, 0) {
		return 0, insts.ExcInvalid | insts.ExcIntOverflow
	}

	var r float64
	switch mode {
	case RoundChopped:
		r = math.Trunc(y)
	case RoundMinusInf:
		r = math.Floor(y)
	case RoundPlusInf:
		r = math.Ceil(y)
	default:
		r = math.RoundToEven(y)
	}

	var exc insts.Exception
	if r != y {
		exc |= insts.ExcInexact
	}

	i, _ := big.NewFloat(r).Int(nil)
	if !i.IsInt64() {
		exc |= insts.ExcIntOverflow
	}
	low := new(big.Int).And(i, new(big.Int).SetUint64(math.MaxUint64))
	return low.Uint64(), exc
}
