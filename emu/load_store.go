package emu

import (
	"math"

	"github.com/sarchlab/ev6sim/insts"
)

// EffectiveAddress computes the address (or LDA/LDAH result) of a memory
// format instruction from its base register value.
func EffectiveAddress(inst *insts.Instruction, base uint64) uint64 {
	switch inst.Op {
	case insts.OpLDAH:
		return base + uint64(inst.Displacement<<16)
	case insts.OpLDQU, insts.OpSTQU:
		return (base + uint64(inst.Displacement)) &^ 7
	}
	return base + uint64(inst.Displacement)
}

// Misaligned reports whether an access of op at addr violates its natural
// alignment.
func Misaligned(op insts.Op, addr uint64) bool {
	size := insts.AccessSize(op)
	if size <= 1 {
		return false
	}
	return addr&uint64(size-1) != 0
}

// LoadExtend converts the zero-extended memory value of a load into its
// register format.
func LoadExtend(op insts.Op, raw uint64) uint64 {
	switch op {
	case insts.OpLDL, insts.OpLDLL:
		return sext32(raw)
	case insts.OpLDS:
		return S2T(uint32(raw))
	}
	return raw
}

// StoreFormat converts a register value into the memory format of a store.
func StoreFormat(op insts.Op, reg uint64) uint64 {
	switch op {
	case insts.OpSTS:
		return uint64(T2S(reg))
	case insts.OpSTB:
		return reg & 0xFF
	case insts.OpSTW:
		return reg & 0xFFFF
	case insts.OpSTL, insts.OpSTLC:
		return reg & 0xFFFFFFFF
	}
	return reg
}

// S2T widens an S-format (single) memory value to the T-format register
// representation.
func S2T(s uint32) uint64 {
	return math.Float64bits(float64(math.Float32frombits(s)))
}

// T2S narrows a T-format register value to S-format memory representation.
func T2S(t uint64) uint32 {
	return math.Float32bits(float32(math.Float64frombits(t)))
}
