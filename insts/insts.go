// Package insts provides Alpha instruction definitions and decoding.
//
// This package implements decoding of Alpha AXP machine code into structured
// instruction representations. It supports:
//   - Memory format: LDA/LDAH, integer and IEEE floating-point loads/stores
//   - Branch format: BR, BSR, integer and floating-point conditional branches
//   - Jump format: JMP, JSR, RET, JSR_COROUTINE
//   - Operate format: integer arithmetic, logical, shift, byte and multiply
//   - FP operate format: IEEE arithmetic, compares, conversions, copy-sign
//   - CALL_PAL
//
// It also defines the architectural vocabulary shared by the timing model:
// program counters, processor modes, exception summaries and PALcode entry
// vectors.
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.Decode(insts.EncodeOperate(0x10, 0x20, 1, 2, 3)) // ADDQ R1, R2, R3
//	fmt.Printf("Op: %v, Ra: %d, Rb: %d, Rc: %d\n", inst.Op, inst.Ra, inst.Rb, inst.Rc)
package insts
