package insts

import "strings"

// Exception is a summary of the faults raised by one instruction. Faults are
// recorded on the instruction during execution and delivered at retirement.
type Exception uint32

// ExcNone means the instruction completed without fault.
const ExcNone Exception = 0

// Exception bits.
const (
	ExcITBMiss Exception = 1 << iota
	ExcIACV
	ExcDTBMissSingle
	ExcDTBMissDouble3
	ExcDTBMissDouble4
	ExcDFault
	ExcUnalign
	ExcOPCDEC
	ExcInvalid   // invalid operation
	ExcDivZero   // division by zero
	ExcOverflow  // floating-point overflow
	ExcUnderflow // floating-point underflow
	ExcInexact   // inexact result
	ExcIntOverflow
)

// ArithmeticMask selects the arithmetic trap bits.
const ArithmeticMask = ExcInvalid | ExcDivZero | ExcOverflow | ExcUnderflow |
	ExcInexact | ExcIntOverflow

// TranslationMask selects the memory-management fault bits.
const TranslationMask = ExcITBMiss | ExcIACV | ExcDTBMissSingle |
	ExcDTBMissDouble3 | ExcDTBMissDouble4 | ExcDFault

// Has reports whether every bit of other is set.
func (e Exception) Has(other Exception) bool {
	return e&other == other && other != 0
}

// Arithmetic returns only the arithmetic trap bits.
func (e Exception) Arithmetic() Exception {
	return e & ArithmeticMask
}

var excNames = []struct {
	bit  Exception
	name string
}{
	{ExcITBMiss, "ITB_MISS"},
	{ExcIACV, "IACV"},
	{ExcDTBMissSingle, "DTBM_SINGLE"},
	{ExcDTBMissDouble3, "DTBM_DOUBLE_3"},
	{ExcDTBMissDouble4, "DTBM_DOUBLE_4"},
	{ExcDFault, "DFAULT"},
	{ExcUnalign, "UNALIGN"},
	{ExcOPCDEC, "OPCDEC"},
	{ExcInvalid, "INV"},
	{ExcDivZero, "DZE"},
	{ExcOverflow, "OVF"},
	{ExcUnderflow, "UNF"},
	{ExcInexact, "INE"},
	{ExcIntOverflow, "IOV"},
}

// String lists the set exception bits.
func (e Exception) String() string {
	if e == ExcNone {
		return "none"
	}
	var parts []string
	for _, n := range excNames {
		if e&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// PALVector is an offset from PAL_BASE at which PALcode is entered.
type PALVector uint64

// PALcode exception entry points.
const (
	VecDTBMissDouble3 PALVector = 0x100
	VecDTBMissDouble4 PALVector = 0x180
	VecFEN            PALVector = 0x200
	VecUnalign        PALVector = 0x280
	VecDTBMissSingle  PALVector = 0x300
	VecDFault         PALVector = 0x380
	VecOPCDEC         PALVector = 0x400
	VecIACV           PALVector = 0x480
	VecMCHK           PALVector = 0x500
	VecITBMiss        PALVector = 0x580
	VecArith          PALVector = 0x600
	VecInterrupt      PALVector = 0x680
	VecMTFPCR         PALVector = 0x700
	VecReset          PALVector = 0x780
)

// CALL_PAL entry bases.
const (
	palPrivilegedBase   PALVector = 0x2000
	palUnprivilegedBase PALVector = 0x3000
)

// Vector returns the PAL entry point for the highest priority fault in the
// summary. Memory-management faults win over decode faults, which win over
// arithmetic traps.
func (e Exception) Vector() PALVector {
	switch {
	case e&ExcDTBMissDouble4 != 0:
		return VecDTBMissDouble4
	case e&ExcDTBMissDouble3 != 0:
		return VecDTBMissDouble3
	case e&ExcITBMiss != 0:
		return VecITBMiss
	case e&ExcIACV != 0:
		return VecIACV
	case e&ExcDTBMissSingle != 0:
		return VecDTBMissSingle
	case e&ExcDFault != 0:
		return VecDFault
	case e&ExcUnalign != 0:
		return VecUnalign
	case e&ExcOPCDEC != 0:
		return VecOPCDEC
	case e&ArithmeticMask != 0:
		return VecArith
	}
	return VecMCHK
}

// CallPALVector returns the entry point of a CALL_PAL function and whether it
// is privileged. Functions outside the two architected ranges are invalid
// and must raise OPCDEC.
func CallPALVector(function uint32) (vec PALVector, privileged bool, ok bool) {
	switch {
	case function <= 0x3F:
		return palPrivilegedBase + PALVector(function)<<6, true, true
	case function >= 0x80 && function <= 0xBF:
		return palUnprivilegedBase + PALVector(function&0x3F)<<6, false, true
	}
	return 0, false, false
}

// Well-known CALL_PAL functions.
const (
	PALHalt    uint32 = 0x00
	PALBpt     uint32 = 0x80
	PALCallSys uint32 = 0x83
	PALImb     uint32 = 0x86
)
