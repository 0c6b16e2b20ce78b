package insts

// Encoders assemble instruction words. They are used by tests, benchmarks and
// the PAL helpers that need to synthesize code.

// EncodeOperate encodes an integer operate instruction with a register Rb.
func EncodeOperate(opcode uint8, fn uint16, ra, rb, rc uint8) uint32 {
	return uint32(opcode&0x3F)<<26 |
		uint32(ra&0x1F)<<21 |
		uint32(rb&0x1F)<<16 |
		uint32(fn&0x7F)<<5 |
		uint32(rc&0x1F)
}

// EncodeOperateLit encodes an integer operate instruction with an 8-bit literal.
func EncodeOperateLit(opcode uint8, fn uint16, ra, lit, rc uint8) uint32 {
	return uint32(opcode&0x3F)<<26 |
		uint32(ra&0x1F)<<21 |
		uint32(lit)<<13 |
		1<<12 |
		uint32(fn&0x7F)<<5 |
		uint32(rc&0x1F)
}

// EncodeFPOperate encodes a floating-point operate instruction.
func EncodeFPOperate(opcode uint8, fn uint16, fa, fb, fc uint8) uint32 {
	return uint32(opcode&0x3F)<<26 |
		uint32(fa&0x1F)<<21 |
		uint32(fb&0x1F)<<16 |
		uint32(fn&0x7FF)<<5 |
		uint32(fc&0x1F)
}

// EncodeMemory encodes a memory format instruction.
func EncodeMemory(opcode uint8, ra, rb uint8, disp int16) uint32 {
	return uint32(opcode&0x3F)<<26 |
		uint32(ra&0x1F)<<21 |
		uint32(rb&0x1F)<<16 |
		uint32(uint16(disp))
}

// EncodeMemFunc encodes an opcode 0x18 instruction.
func EncodeMemFunc(fn uint16, ra, rb uint8) uint32 {
	return uint32(0x18)<<26 | uint32(ra&0x1F)<<21 | uint32(rb&0x1F)<<16 | uint32(fn)
}

// EncodeJump encodes a jump format instruction (fn: 0 JMP, 1 JSR, 2 RET).
func EncodeJump(fn uint8, ra, rb uint8, hint uint16) uint32 {
	return uint32(0x1A)<<26 |
		uint32(ra&0x1F)<<21 |
		uint32(rb&0x1F)<<16 |
		uint32(fn&0x3)<<14 |
		uint32(hint&0x3FFF)
}

// EncodeBranch encodes a branch format instruction. disp is in instructions,
// relative to the updated PC.
func EncodeBranch(opcode uint8, ra uint8, disp int32) uint32 {
	return uint32(opcode&0x3F)<<26 |
		uint32(ra&0x1F)<<21 |
		uint32(disp)&0x1FFFFF
}

// EncodeCallPAL encodes CALL_PAL.
func EncodeCallPAL(fn uint32) uint32 {
	return fn & 0x3FFFFFF
}

// EncodeADDQ encodes ADDQ Ra, Rb, Rc.
func EncodeADDQ(ra, rb, rc uint8) uint32 { return EncodeOperate(0x10, 0x20, ra, rb, rc) }

// EncodeADDQLit encodes ADDQ Ra, #lit, Rc.
func EncodeADDQLit(ra, lit, rc uint8) uint32 { return EncodeOperateLit(0x10, 0x20, ra, lit, rc) }

// EncodeSUBQ encodes SUBQ Ra, Rb, Rc.
func EncodeSUBQ(ra, rb, rc uint8) uint32 { return EncodeOperate(0x10, 0x29, ra, rb, rc) }

// EncodeSUBQLit encodes SUBQ Ra, #lit, Rc.
func EncodeSUBQLit(ra, lit, rc uint8) uint32 { return EncodeOperateLit(0x10, 0x29, ra, lit, rc) }

// EncodeCMPEQ encodes CMPEQ Ra, Rb, Rc.
func EncodeCMPEQ(ra, rb, rc uint8) uint32 { return EncodeOperate(0x10, 0x2D, ra, rb, rc) }

// EncodeCMPLTLit encodes CMPLT Ra, #lit, Rc.
func EncodeCMPLTLit(ra, lit, rc uint8) uint32 { return EncodeOperateLit(0x10, 0x4D, ra, lit, rc) }

// EncodeADDQV encodes ADDQ/V Ra, Rb, Rc.
func EncodeADDQV(ra, rb, rc uint8) uint32 { return EncodeOperate(0x10, 0x60, ra, rb, rc) }

// EncodeBIS encodes BIS Ra, Rb, Rc (MOV when Ra is R31).
func EncodeBIS(ra, rb, rc uint8) uint32 { return EncodeOperate(0x11, 0x20, ra, rb, rc) }

// EncodeAND encodes AND Ra, Rb, Rc.
func EncodeAND(ra, rb, rc uint8) uint32 { return EncodeOperate(0x11, 0x00, ra, rb, rc) }

// EncodeXOR encodes XOR Ra, Rb, Rc.
func EncodeXOR(ra, rb, rc uint8) uint32 { return EncodeOperate(0x11, 0x40, ra, rb, rc) }

// EncodeCMOVEQ encodes CMOVEQ Ra, Rb, Rc.
func EncodeCMOVEQ(ra, rb, rc uint8) uint32 { return EncodeOperate(0x11, 0x24, ra, rb, rc) }

// EncodeSLLLit encodes SLL Ra, #lit, Rc.
func EncodeSLLLit(ra, lit, rc uint8) uint32 { return EncodeOperateLit(0x12, 0x39, ra, lit, rc) }

// EncodeMULQ encodes MULQ Ra, Rb, Rc.
func EncodeMULQ(ra, rb, rc uint8) uint32 { return EncodeOperate(0x13, 0x20, ra, rb, rc) }

// EncodeNOP encodes the canonical integer NOP (BIS R31, R31, R31).
func EncodeNOP() uint32 { return EncodeBIS(ZeroReg, ZeroReg, ZeroReg) }

// EncodeLDA encodes LDA Ra, disp(Rb).
func EncodeLDA(ra, rb uint8, disp int16) uint32 { return EncodeMemory(0x08, ra, rb, disp) }

// EncodeLDAH encodes LDAH Ra, disp(Rb).
func EncodeLDAH(ra, rb uint8, disp int16) uint32 { return EncodeMemory(0x09, ra, rb, disp) }

// EncodeLDQ encodes LDQ Ra, disp(Rb).
func EncodeLDQ(ra, rb uint8, disp int16) uint32 { return EncodeMemory(0x29, ra, rb, disp) }

// EncodeSTQ encodes STQ Ra, disp(Rb).
func EncodeSTQ(ra, rb uint8, disp int16) uint32 { return EncodeMemory(0x2D, ra, rb, disp) }

// EncodeLDL encodes LDL Ra, disp(Rb).
func EncodeLDL(ra, rb uint8, disp int16) uint32 { return EncodeMemory(0x28, ra, rb, disp) }

// EncodeSTL encodes STL Ra, disp(Rb).
func EncodeSTL(ra, rb uint8, disp int16) uint32 { return EncodeMemory(0x2C, ra, rb, disp) }

// EncodeLDT encodes LDT Fa, disp(Rb).
func EncodeLDT(fa, rb uint8, disp int16) uint32 { return EncodeMemory(0x23, fa, rb, disp) }

// EncodeSTT encodes STT Fa, disp(Rb).
func EncodeSTT(fa, rb uint8, disp int16) uint32 { return EncodeMemory(0x27, fa, rb, disp) }

// EncodeBR encodes BR Ra, disp.
func EncodeBR(ra uint8, disp int32) uint32 { return EncodeBranch(0x30, ra, disp) }

// EncodeBSR encodes BSR Ra, disp.
func EncodeBSR(ra uint8, disp int32) uint32 { return EncodeBranch(0x34, ra, disp) }

// EncodeBEQ encodes BEQ Ra, disp.
func EncodeBEQ(ra uint8, disp int32) uint32 { return EncodeBranch(0x39, ra, disp) }

// EncodeBNE encodes BNE Ra, disp.
func EncodeBNE(ra uint8, disp int32) uint32 { return EncodeBranch(0x3D, ra, disp) }

// EncodeBGT encodes BGT Ra, disp.
func EncodeBGT(ra uint8, disp int32) uint32 { return EncodeBranch(0x3F, ra, disp) }

// EncodeFBEQ encodes FBEQ Fa, disp.
func EncodeFBEQ(fa uint8, disp int32) uint32 { return EncodeBranch(0x31, fa, disp) }

// EncodeRET encodes RET Ra, (Rb).
func EncodeRET(ra, rb uint8) uint32 { return EncodeJump(2, ra, rb, 1) }

// EncodeJSR encodes JSR Ra, (Rb).
func EncodeJSR(ra, rb uint8) uint32 { return EncodeJump(1, ra, rb, 0) }

// EncodeADDT encodes ADDT Fa, Fb, Fc.
func EncodeADDT(fa, fb, fc uint8) uint32 { return EncodeFPOperate(0x16, 0x0A0, fa, fb, fc) }

// EncodeSUBT encodes SUBT Fa, Fb, Fc.
func EncodeSUBT(fa, fb, fc uint8) uint32 { return EncodeFPOperate(0x16, 0x0A1, fa, fb, fc) }

// EncodeMULT encodes MULT Fa, Fb, Fc.
func EncodeMULT(fa, fb, fc uint8) uint32 { return EncodeFPOperate(0x16, 0x0A2, fa, fb, fc) }

// EncodeDIVT encodes DIVT Fa, Fb, Fc.
func EncodeDIVT(fa, fb, fc uint8) uint32 { return EncodeFPOperate(0x16, 0x0A3, fa, fb, fc) }

// EncodeCVTQT encodes CVTQT Fb, Fc.
func EncodeCVTQT(fb, fc uint8) uint32 { return EncodeFPOperate(0x16, 0x0BE, ZeroReg, fb, fc) }

// EncodeCPYS encodes CPYS Fa, Fb, Fc (FMOV when Fa == Fb).
func EncodeCPYS(fa, fb, fc uint8) uint32 { return EncodeFPOperate(0x17, 0x020, fa, fb, fc) }

// EncodeITOFT encodes ITOFT Ra, Fc.
func EncodeITOFT(ra, fc uint8) uint32 { return EncodeFPOperate(0x14, 0x024, ra, ZeroReg, fc) }

// EncodeFTOIT encodes FTOIT Fa, Rc.
func EncodeFTOIT(fa, rc uint8) uint32 { return EncodeOperate(0x1C, 0x70, fa, ZeroReg, rc) }

// EncodeHALT encodes CALL_PAL HALT.
func EncodeHALT() uint32 { return EncodeCallPAL(PALHalt) }

// EncodeMTFPCR encodes MT_FPCR Fa.
func EncodeMTFPCR(fa uint8) uint32 { return EncodeFPOperate(0x17, 0x024, fa, fa, fa) }

// EncodeMFFPCR encodes MF_FPCR Fa.
func EncodeMFFPCR(fa uint8) uint32 { return EncodeFPOperate(0x17, 0x025, fa, fa, fa) }
