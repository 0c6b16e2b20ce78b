package insts

// Op represents a decoded Alpha operation.
type Op uint16

// Alpha operations.
const (
	OpUnknown Op = iota

	// PALcode
	OpCALLPAL

	// Memory format: address computation
	OpLDA
	OpLDAH

	// Memory format: integer loads
	OpLDBU
	OpLDWU
	OpLDL
	OpLDQ
	OpLDQU
	OpLDLL
	OpLDQL

	// Memory format: integer stores
	OpSTB
	OpSTW
	OpSTL
	OpSTQ
	OpSTQU
	OpSTLC
	OpSTQC

	// Memory format: floating-point loads and stores
	OpLDS
	OpLDT
	OpSTS
	OpSTT

	// Memory format with function code (opcode 0x18)
	OpTRAPB
	OpEXCB
	OpMB
	OpWMB
	OpFETCH
	OpRPCC

	// Jumps (opcode 0x1A)
	OpJMP
	OpJSR
	OpRET
	OpJSRCoroutine

	// Branch format
	OpBR
	OpBSR
	OpBLBC
	OpBEQ
	OpBLT
	OpBLE
	OpBLBS
	OpBNE
	OpBGE
	OpBGT
	OpFBEQ
	OpFBLT
	OpFBLE
	OpFBNE
	OpFBGE
	OpFBGT

	// Integer arithmetic (opcode 0x10)
	OpADDL
	OpS4ADDL
	OpSUBL
	OpS4SUBL
	OpCMPBGE
	OpS8ADDL
	OpS8SUBL
	OpCMPULT
	OpADDQ
	OpS4ADDQ
	OpSUBQ
	OpS4SUBQ
	OpCMPEQ
	OpS8ADDQ
	OpS8SUBQ
	OpCMPULE
	OpADDLV
	OpSUBLV
	OpCMPLT
	OpADDQV
	OpSUBQV
	OpCMPLE

	// Integer logical and conditional move (opcode 0x11)
	OpAND
	OpBIC
	OpCMOVLBS
	OpCMOVLBC
	OpBIS
	OpCMOVEQ
	OpCMOVNE
	OpORNOT
	OpXOR
	OpCMOVLT
	OpCMOVGE
	OpEQV
	OpAMASK
	OpCMOVLE
	OpCMOVGT
	OpIMPLVER

	// Shifts and byte manipulation (opcode 0x12)
	OpMSKBL
	OpEXTBL
	OpINSBL
	OpMSKWL
	OpEXTWL
	OpINSWL
	OpMSKLL
	OpEXTLL
	OpINSLL
	OpZAP
	OpZAPNOT
	OpMSKQL
	OpSRL
	OpEXTQL
	OpSLL
	OpINSQL
	OpSRA

	// Integer multiply (opcode 0x13)
	OpMULL
	OpMULQ
	OpUMULH
	OpMULLV
	OpMULQV

	// Integer extensions and FP-to-integer moves (opcode 0x1C)
	OpSEXTB
	OpSEXTW
	OpCTPOP
	OpCTLZ
	OpCTTZ
	OpFTOIT
	OpFTOIS

	// Integer-to-FP moves and square root (opcode 0x14)
	OpITOFS
	OpITOFT
	OpSQRTT

	// IEEE floating-point operate (opcode 0x16)
	OpADDS
	OpSUBS
	OpMULS
	OpDIVS
	OpADDT
	OpSUBT
	OpMULT
	OpDIVT
	OpCMPTUN
	OpCMPTEQ
	OpCMPTLT
	OpCMPTLE
	OpCVTTS
	OpCVTTQ
	OpCVTQS
	OpCVTQT

	// Datatype-independent floating-point (opcode 0x17)
	OpCVTLQ
	OpCPYS
	OpCPYSN
	OpCPYSE
	OpMTFPCR
	OpMFFPCR
	OpFCMOVEQ
	OpFCMOVNE
	OpFCMOVLT
	OpFCMOVGE
	OpFCMOVLE
	OpFCMOVGT
	OpCVTQL

	numOps
)

var opNames = [numOps]string{
	OpUnknown: "UNKNOWN", OpCALLPAL: "CALL_PAL",
	OpLDA: "LDA", OpLDAH: "LDAH",
	OpLDBU: "LDBU", OpLDWU: "LDWU", OpLDL: "LDL", OpLDQ: "LDQ", OpLDQU: "LDQ_U",
	OpLDLL: "LDL_L", OpLDQL: "LDQ_L",
	OpSTB: "STB", OpSTW: "STW", OpSTL: "STL", OpSTQ: "STQ", OpSTQU: "STQ_U",
	OpSTLC: "STL_C", OpSTQC: "STQ_C",
	OpLDS: "LDS", OpLDT: "LDT", OpSTS: "STS", OpSTT: "STT",
	OpTRAPB: "TRAPB", OpEXCB: "EXCB", OpMB: "MB", OpWMB: "WMB", OpFETCH: "FETCH",
	OpRPCC: "RPCC",
	OpJMP: "JMP", OpJSR: "JSR", OpRET: "RET", OpJSRCoroutine: "JSR_COROUTINE",
	OpBR: "BR", OpBSR: "BSR", OpBLBC: "BLBC", OpBEQ: "BEQ", OpBLT: "BLT", OpBLE: "BLE",
	OpBLBS: "BLBS", OpBNE: "BNE", OpBGE: "BGE", OpBGT: "BGT",
	OpFBEQ: "FBEQ", OpFBLT: "FBLT", OpFBLE: "FBLE", OpFBNE: "FBNE", OpFBGE: "FBGE",
	OpFBGT: "FBGT",
	OpADDL: "ADDL", OpS4ADDL: "S4ADDL", OpSUBL: "SUBL", OpS4SUBL: "S4SUBL",
	OpCMPBGE: "CMPBGE", OpS8ADDL: "S8ADDL", OpS8SUBL: "S8SUBL", OpCMPULT: "CMPULT",
	OpADDQ: "ADDQ", OpS4ADDQ: "S4ADDQ", OpSUBQ: "SUBQ", OpS4SUBQ: "S4SUBQ",
	OpCMPEQ: "CMPEQ", OpS8ADDQ: "S8ADDQ", OpS8SUBQ: "S8SUBQ", OpCMPULE: "CMPULE",
	OpADDLV: "ADDL/V", OpSUBLV: "SUBL/V", OpCMPLT: "CMPLT", OpADDQV: "ADDQ/V",
	OpSUBQV: "SUBQ/V", OpCMPLE: "CMPLE",
	OpAND: "AND", OpBIC: "BIC", OpCMOVLBS: "CMOVLBS", OpCMOVLBC: "CMOVLBC",
	OpBIS: "BIS", OpCMOVEQ: "CMOVEQ", OpCMOVNE: "CMOVNE", OpORNOT: "ORNOT",
	OpXOR: "XOR", OpCMOVLT: "CMOVLT", OpCMOVGE: "CMOVGE", OpEQV: "EQV",
	OpAMASK: "AMASK", OpCMOVLE: "CMOVLE", OpCMOVGT: "CMOVGT", OpIMPLVER: "IMPLVER",
	OpMSKBL: "MSKBL", OpEXTBL: "EXTBL", OpINSBL: "INSBL", OpMSKWL: "MSKWL",
	OpEXTWL: "EXTWL", OpINSWL: "INSWL", OpMSKLL: "MSKLL", OpEXTLL: "EXTLL",
	OpINSLL: "INSLL", OpZAP: "ZAP", OpZAPNOT: "ZAPNOT", OpMSKQL: "MSKQL",
	OpSRL: "SRL", OpEXTQL: "EXTQL", OpSLL: "SLL", OpINSQL: "INSQL", OpSRA: "SRA",
	OpMULL: "MULL", OpMULQ: "MULQ", OpUMULH: "UMULH", OpMULLV: "MULL/V",
	OpMULQV: "MULQ/V",
	OpSEXTB: "SEXTB", OpSEXTW: "SEXTW", OpCTPOP: "CTPOP", OpCTLZ: "CTLZ",
	OpCTTZ: "CTTZ", OpFTOIT: "FTOIT", OpFTOIS: "FTOIS",
	OpITOFS: "ITOFS", OpITOFT: "ITOFT", OpSQRTT: "SQRTT",
	OpADDS: "ADDS", OpSUBS: "SUBS", OpMULS: "MULS", OpDIVS: "DIVS",
	OpADDT: "ADDT", OpSUBT: "SUBT", OpMULT: "MULT", OpDIVT: "DIVT",
	OpCMPTUN: "CMPTUN", OpCMPTEQ: "CMPTEQ", OpCMPTLT: "CMPTLT", OpCMPTLE: "CMPTLE",
	OpCVTTS: "CVTTS", OpCVTTQ: "CVTTQ", OpCVTQS: "CVTQS", OpCVTQT: "CVTQT",
	OpCVTLQ: "CVTLQ", OpCPYS: "CPYS", OpCPYSN: "CPYSN", OpCPYSE: "CPYSE",
	OpMTFPCR: "MT_FPCR", OpMFFPCR: "MF_FPCR",
	OpFCMOVEQ: "FCMOVEQ", OpFCMOVNE: "FCMOVNE", OpFCMOVLT: "FCMOVLT",
	OpFCMOVGE: "FCMOVGE", OpFCMOVLE: "FCMOVLE", OpFCMOVGT: "FCMOVGT",
	OpCVTQL: "CVTQL",
}

// String returns the assembler mnemonic of the operation.
func (o Op) String() string {
	if o >= numOps || opNames[o] == "" {
		return "UNKNOWN"
	}
	return opNames[o]
}

// Class groups operations by the hardware resource that executes them.
type Class uint8

// Operation classes.
const (
	ClassIllegal   Class = iota // Not implemented or reserved; raises OPCDEC
	ClassNop                    // Needs no execution resource (barriers, hints)
	ClassPAL                    // CALL_PAL
	ClassIntALU                 // Simple integer arithmetic/logical/compare/cmov
	ClassIntShift               // Shifts, byte manipulation, counts
	ClassIntMul                 // Integer multiply
	ClassLoadAddr               // LDA/LDAH
	ClassLoad                   // Integer or floating-point load
	ClassStore                  // Integer or floating-point store
	ClassBranch                 // Integer conditional and unconditional branches
	ClassJump                   // JMP/JSR/RET/JSR_COROUTINE
	ClassFPBranch               // Floating-point branches
	ClassFPAdd                  // FP add/sub/compare/convert/copy-sign/cmov
	ClassFPMul                  // FP multiply
	ClassFPDiv                  // FP divide and square root
	ClassIntToFP                // ITOFx: integer source, FP destination
	ClassFPToInt                // FTOIx: FP source, integer destination
	ClassMisc                   // RPCC
)

// ClassOf returns the execution class of an operation.
func ClassOf(op Op) Class {
	switch {
	case op == OpCALLPAL:
		return ClassPAL
	case op == OpLDA || op == OpLDAH:
		return ClassLoadAddr
	case op >= OpLDBU && op <= OpLDQL, op == OpLDS, op == OpLDT:
		return ClassLoad
	case op >= OpSTB && op <= OpSTQC, op == OpSTS, op == OpSTT:
		return ClassStore
	case op == OpTRAPB, op == OpEXCB, op == OpMB, op == OpWMB, op == OpFETCH:
		return ClassNop
	case op == OpRPCC:
		return ClassMisc
	case op >= OpJMP && op <= OpJSRCoroutine:
		return ClassJump
	case op >= OpBR && op <= OpBGT:
		return ClassBranch
	case op >= OpFBEQ && op <= OpFBGT:
		return ClassFPBranch
	case op >= OpADDL && op <= OpIMPLVER:
		return ClassIntALU
	case op >= OpMSKBL && op <= OpSRA:
		return ClassIntShift
	case op >= OpMULL && op <= OpMULQV:
		return ClassIntMul
	case op >= OpSEXTB && op <= OpCTTZ:
		return ClassIntShift
	case op == OpFTOIT || op == OpFTOIS:
		return ClassFPToInt
	case op == OpITOFS || op == OpITOFT:
		return ClassIntToFP
	case op == OpSQRTT, op == OpDIVS, op == OpDIVT:
		return ClassFPDiv
	case op == OpMULS || op == OpMULT:
		return ClassFPMul
	case op >= OpADDS && op <= OpCVTQL:
		return ClassFPAdd
	default:
		return ClassIllegal
	}
}

// IsConditionalMove reports whether the operation keeps its old destination
// value when the condition fails, which makes the destination a source too.
func IsConditionalMove(op Op) bool {
	switch op {
	case OpCMOVLBS, OpCMOVLBC, OpCMOVEQ, OpCMOVNE, OpCMOVLT, OpCMOVGE,
		OpCMOVLE, OpCMOVGT,
		OpFCMOVEQ, OpFCMOVNE, OpFCMOVLT, OpFCMOVGE, OpFCMOVLE, OpFCMOVGT:
		return true
	}
	return false
}

// IsConditionalBranch reports whether the branch direction depends on a register.
func IsConditionalBranch(op Op) bool {
	return (op >= OpBLBC && op <= OpBGT) || (op >= OpFBEQ && op <= OpFBGT)
}

// AccessSize returns the memory access size in bytes for loads and stores,
// or 0 for other operations.
func AccessSize(op Op) int {
	switch op {
	case OpLDBU, OpSTB:
		return 1
	case OpLDWU, OpSTW:
		return 2
	case OpLDL, OpLDLL, OpSTL, OpSTLC, OpLDS, OpSTS:
		return 4
	case OpLDQ, OpLDQU, OpLDQL, OpSTQ, OpSTQU, OpSTQC, OpLDT, OpSTT:
		return 8
	}
	return 0
}
