// Package insts provides Alpha instruction definitions and decoding.
package insts

// Format represents an instruction encoding format.
type Format uint8

// Instruction formats.
const (
	FormatUnknown   Format = iota
	FormatPAL              // CALL_PAL: opcode | function[25:0]
	FormatMemory           // opcode | Ra | Rb | disp[15:0]
	FormatMemFunc          // opcode | Ra | Rb | function[15:0]
	FormatJump             // opcode | Ra | Rb | func[15:14] | hint[13:0]
	FormatBranch           // opcode | Ra | disp[20:0]
	FormatOperate          // opcode | Ra | Rb/lit | function[11:5] | Rc
	FormatFPOperate        // opcode | Fa | Fb | function[15:5] | Fc
)

// RegFile selects the integer or floating-point register file.
type RegFile uint8

// Register files.
const (
	IntRegs RegFile = iota
	FloatRegs
)

// ZeroReg is R31/F31, which always reads as zero and discards writes.
const ZeroReg uint8 = 31

// Reg names one architectural register.
type Reg struct {
	File RegFile
	Num  uint8
}

// IsZero reports whether the register is R31 or F31.
func (r Reg) IsZero() bool {
	return r.Num == ZeroReg
}

// Instruction represents a decoded Alpha instruction.
type Instruction struct {
	Op     Op     // Operation
	Format Format // Encoding format
	Word   uint32 // Raw instruction word

	Opcode   uint8  // Primary opcode, bits [31:26]
	Function uint16 // Operate/FP/jump/misc function code

	Ra uint8
	Rb uint8
	Rc uint8

	// Operate format literal (bit 12 set): Rb is replaced by an 8-bit literal.
	UseLiteral bool
	Literal    uint64

	// Displacement is the signed byte displacement for memory format
	// instructions and the signed byte offset for branch format instructions.
	Displacement int64

	// Hint is the jump-format branch prediction hint.
	Hint uint16

	// PALFunction is the CALL_PAL function code.
	PALFunction uint32

	// Trap and rounding qualifiers of FP operate instructions.
	TrapQual  uint8
	RoundQual uint8
}

// Class returns the execution class of the instruction.
func (i *Instruction) Class() Class {
	return ClassOf(i.Op)
}

// Operand roles. A is the Ra/Fa field, B the Rb/Fb field (or the literal),
// and C the Rc/Fc field read by conditional moves.
const (
	OperandA = iota
	OperandB
	OperandC
	NumOperands
)

// Operands returns the register read in each operand role. used[i] is false
// when role i is not read from a register.
func (i *Instruction) Operands() (regs [NumOperands]Reg, used [NumOperands]bool) {
	set := func(role int, file RegFile, num uint8) {
		regs[role] = Reg{file, num}
		used[role] = true
	}

	switch i.Class() {
	case ClassIntALU, ClassIntShift, ClassIntMul:
		set(OperandA, IntRegs, i.Ra)
		if !i.UseLiteral {
			set(OperandB, IntRegs, i.Rb)
		}
		if IsConditionalMove(i.Op) {
			set(OperandC, IntRegs, i.Rc)
		}
	case ClassLoadAddr, ClassLoad, ClassJump:
		set(OperandB, IntRegs, i.Rb)
	case ClassStore:
		set(OperandA, i.dataFile(), i.Ra)
		set(OperandB, IntRegs, i.Rb)
	case ClassBranch:
		if i.Op != OpBR && i.Op != OpBSR {
			set(OperandA, IntRegs, i.Ra)
		}
	case ClassFPBranch, ClassFPToInt:
		set(OperandA, FloatRegs, i.Ra)
	case ClassIntToFP:
		set(OperandA, IntRegs, i.Ra)
	case ClassFPAdd, ClassFPMul, ClassFPDiv:
		if i.Op == OpMFFPCR {
			break
		}
		set(OperandA, FloatRegs, i.Ra)
		set(OperandB, FloatRegs, i.Rb)
		if IsConditionalMove(i.Op) {
			set(OperandC, FloatRegs, i.Rc)
		}
	}
	return regs, used
}

// Sources returns the architectural registers the instruction reads, base
// register first. R31/F31 sources are included; callers treat them as zero.
func (i *Instruction) Sources() []Reg {
	regs, used := i.Operands()
	var srcs []Reg
	for _, role := range [...]int{OperandB, OperandA, OperandC} {
		if used[role] {
			srcs = append(srcs, regs[role])
		}
	}
	return srcs
}

// Dest returns the architectural register the instruction writes, if any.
// A destination of R31/F31 is reported as no destination.
func (i *Instruction) Dest() (Reg, bool) {
	var r Reg
	switch i.Class() {
	case ClassIntALU, ClassIntShift, ClassIntMul, ClassFPToInt:
		r = Reg{IntRegs, i.Rc}
	case ClassLoadAddr, ClassJump, ClassMisc:
		r = Reg{IntRegs, i.Ra}
	case ClassLoad:
		r = Reg{i.dataFile(), i.Ra}
	case ClassStore:
		if i.Op != OpSTLC && i.Op != OpSTQC {
			return Reg{}, false
		}
		r = Reg{IntRegs, i.Ra}
	case ClassBranch:
		if i.Op != OpBR && i.Op != OpBSR {
			return Reg{}, false
		}
		r = Reg{IntRegs, i.Ra}
	case ClassIntToFP:
		r = Reg{FloatRegs, i.Rc}
	case ClassFPAdd, ClassFPMul, ClassFPDiv:
		switch i.Op {
		case OpMTFPCR:
			return Reg{}, false
		case OpMFFPCR:
			r = Reg{FloatRegs, i.Ra}
		default:
			r = Reg{FloatRegs, i.Rc}
		}
	default:
		return Reg{}, false
	}
	if r.IsZero() {
		return Reg{}, false
	}
	return r, true
}

// dataFile returns the register file of a load/store data register.
func (i *Instruction) dataFile() RegFile {
	switch i.Op {
	case OpLDS, OpLDT, OpSTS, OpSTT:
		return FloatRegs
	}
	return IntRegs
}

// Decoder decodes Alpha machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new Alpha instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a 32-bit Alpha instruction word.
func (d *Decoder) Decode(word uint32) *Instruction {
	inst := &Instruction{Op: OpUnknown, Format: FormatUnknown, Word: word}

	opcode := uint8(word >> 26) // bits [31:26]
	inst.Opcode = opcode

	switch {
	case opcode == 0x00:
		d.decodePAL(word, inst)
	case opcode == 0x18:
		d.decodeMemFunc(word, inst)
	case opcode == 0x1A:
		d.decodeJump(word, inst)
	case opcode >= 0x30:
		d.decodeBranch(word, inst)
	case opcode >= 0x10 && opcode <= 0x13, opcode == 0x1C:
		d.decodeOperate(word, inst)
	case opcode == 0x14, opcode == 0x16, opcode == 0x17:
		d.decodeFPOperate(word, inst)
	default:
		d.decodeMemory(word, inst)
	}

	return inst
}

// decodePAL decodes CALL_PAL.
// Format: 000000 | function[25:0]
func (d *Decoder) decodePAL(word uint32, inst *Instruction) {
	inst.Format = FormatPAL
	inst.Op = OpCALLPAL
	inst.PALFunction = word & 0x3FFFFFF
}

// decodeMemory decodes loads, stores and LDA/LDAH.
// Format: opcode | Ra[25:21] | Rb[20:16] | disp[15:0]
func (d *Decoder) decodeMemory(word uint32, inst *Instruction) {
	op, ok := memoryOps[inst.Opcode]
	if !ok {
		return
	}

	inst.Format = FormatMemory
	inst.Op = op
	inst.Ra = uint8(word>>21) & 0x1F
	inst.Rb = uint8(word>>16) & 0x1F
	inst.Displacement = int64(int16(word & 0xFFFF))
}

// decodeMemFunc decodes the miscellaneous opcode 0x18 group.
// Format: 011000 | Ra | Rb | function[15:0]
func (d *Decoder) decodeMemFunc(word uint32, inst *Instruction) {
	fn := uint16(word & 0xFFFF)
	op, ok := miscOps[fn]
	if !ok {
		return
	}

	inst.Format = FormatMemFunc
	inst.Op = op
	inst.Function = fn
	inst.Ra = uint8(word>>21) & 0x1F
	inst.Rb = uint8(word>>16) & 0x1F
}

// decodeJump decodes JMP/JSR/RET/JSR_COROUTINE.
// Format: 011010 | Ra | Rb | func[15:14] | hint[13:0]
func (d *Decoder) decodeJump(word uint32, inst *Instruction) {
	inst.Format = FormatJump
	inst.Ra = uint8(word>>21) & 0x1F
	inst.Rb = uint8(word>>16) & 0x1F
	inst.Function = uint16(word>>14) & 0x3
	inst.Hint = uint16(word & 0x3FFF)

	switch inst.Function {
	case 0:
		inst.Op = OpJMP
	case 1:
		inst.Op = OpJSR
	case 2:
		inst.Op = OpRET
	default:
		inst.Op = OpJSRCoroutine
	}
}

// decodeBranch decodes branch format instructions.
// Format: opcode | Ra[25:21] | disp[20:0] (signed, in instructions)
func (d *Decoder) decodeBranch(word uint32, inst *Instruction) {
	op, ok := branchOps[inst.Opcode]
	if !ok {
		return
	}

	inst.Format = FormatBranch
	inst.Op = op
	inst.Ra = uint8(word>>21) & 0x1F

	disp := int64(word & 0x1FFFFF)
	if disp&0x100000 != 0 {
		disp |= ^int64(0x1FFFFF)
	}
	inst.Displacement = disp * 4
}

// decodeOperate decodes integer operate instructions.
// Format: opcode | Ra[25:21] | Rb[20:16] | 000 | 0 | function[11:5] | Rc[4:0]
// Literal: opcode | Ra[25:21] | lit[20:13] | 1 | function[11:5] | Rc[4:0]
func (d *Decoder) decodeOperate(word uint32, inst *Instruction) {
	fn := uint16(word>>5) & 0x7F
	op, ok := operateOps[operateKey{inst.Opcode, fn}]
	if !ok {
		return
	}

	inst.Format = FormatOperate
	inst.Op = op
	inst.Function = fn
	inst.Ra = uint8(word>>21) & 0x1F
	inst.Rc = uint8(word & 0x1F)

	if (word>>12)&0x1 == 1 {
		inst.UseLiteral = true
		inst.Literal = uint64(word>>13) & 0xFF
		inst.Rb = ZeroReg
	} else {
		inst.Rb = uint8(word>>16) & 0x1F
	}
}

// decodeFPOperate decodes floating-point operate instructions.
// Format: opcode | Fa[25:21] | Fb[20:16] | function[15:5] | Fc[4:0]
// For opcode 0x16 the function splits into trap[10:8] | round[7:6] |
// source type[5:4] | operation[3:0].
func (d *Decoder) decodeFPOperate(word uint32, inst *Instruction) {
	fn := uint16(word>>5) & 0x7FF

	var op Op
	var ok bool
	switch inst.Opcode {
	case 0x16:
		op, ok = ieeeOps[fn&0x3F]
		inst.TrapQual = uint8(fn>>8) & 0x7
		inst.RoundQual = uint8(fn>>6) & 0x3
	case 0x14:
		if fn&0x3F == 0x2B {
			op, ok = OpSQRTT, true
			inst.TrapQual = uint8(fn>>8) & 0x7
			inst.RoundQual = uint8(fn>>6) & 0x3
		} else {
			op, ok = itfpOps[fn]
		}
	default:
		op, ok = fltlOps[fn]
	}
	if !ok {
		return
	}

	inst.Format = FormatFPOperate
	inst.Op = op
	inst.Function = fn
	inst.Ra = uint8(word>>21) & 0x1F
	inst.Rb = uint8(word>>16) & 0x1F
	inst.Rc = uint8(word & 0x1F)
}

type operateKey struct {
	opcode uint8
	fn     uint16
}

var memoryOps = map[uint8]Op{
	0x08: OpLDA, 0x09: OpLDAH, 0x0A: OpLDBU, 0x0B: OpLDQU, 0x0C: OpLDWU,
	0x0D: OpSTW, 0x0E: OpSTB, 0x0F: OpSTQU,
	0x22: OpLDS, 0x23: OpLDT, 0x26: OpSTS, 0x27: OpSTT,
	0x28: OpLDL, 0x29: OpLDQ, 0x2A: OpLDLL, 0x2B: OpLDQL,
	0x2C: OpSTL, 0x2D: OpSTQ, 0x2E: OpSTLC, 0x2F: OpSTQC,
}

var miscOps = map[uint16]Op{
	0x0000: OpTRAPB, 0x0400: OpEXCB, 0x4000: OpMB, 0x4400: OpWMB,
	0x8000: OpFETCH, 0xC000: OpRPCC,
}

var branchOps = map[uint8]Op{
	0x30: OpBR, 0x31: OpFBEQ, 0x32: OpFBLT, 0x33: OpFBLE,
	0x34: OpBSR, 0x35: OpFBNE, 0x36: OpFBGE, 0x37: OpFBGT,
	0x38: OpBLBC, 0x39: OpBEQ, 0x3A: OpBLT, 0x3B: OpBLE,
	0x3C: OpBLBS, 0x3D: OpBNE, 0x3E: OpBGE, 0x3F: OpBGT,
}

var operateOps = map[operateKey]Op{
	{0x10, 0x00}: OpADDL, {0x10, 0x02}: OpS4ADDL, {0x10, 0x09}: OpSUBL,
	{0x10, 0x0B}: OpS4SUBL, {0x10, 0x0F}: OpCMPBGE, {0x10, 0x12}: OpS8ADDL,
	{0x10, 0x1B}: OpS8SUBL, {0x10, 0x1D}: OpCMPULT, {0x10, 0x20}: OpADDQ,
	{0x10, 0x22}: OpS4ADDQ, {0x10, 0x29}: OpSUBQ, {0x10, 0x2B}: OpS4SUBQ,
	{0x10, 0x2D}: OpCMPEQ, {0x10, 0x32}: OpS8ADDQ, {0x10, 0x3B}: OpS8SUBQ,
	{0x10, 0x3D}: OpCMPULE, {0x10, 0x40}: OpADDLV, {0x10, 0x49}: OpSUBLV,
	{0x10, 0x4D}: OpCMPLT, {0x10, 0x60}: OpADDQV, {0x10, 0x69}: OpSUBQV,
	{0x10, 0x6D}: OpCMPLE,

	{0x11, 0x00}: OpAND, {0x11, 0x08}: OpBIC, {0x11, 0x14}: OpCMOVLBS,
	{0x11, 0x16}: OpCMOVLBC, {0x11, 0x20}: OpBIS, {0x11, 0x24}: OpCMOVEQ,
	{0x11, 0x26}: OpCMOVNE, {0x11, 0x28}: OpORNOT, {0x11, 0x40}: OpXOR,
	{0x11, 0x44}: OpCMOVLT, {0x11, 0x46}: OpCMOVGE, {0x11, 0x48}: OpEQV,
	{0x11, 0x61}: OpAMASK, {0x11, 0x64}: OpCMOVLE, {0x11, 0x66}: OpCMOVGT,
	{0x11, 0x6C}: OpIMPLVER,

	{0x12, 0x02}: OpMSKBL, {0x12, 0x06}: OpEXTBL, {0x12, 0x0B}: OpINSBL,
	{0x12, 0x12}: OpMSKWL, {0x12, 0x16}: OpEXTWL, {0x12, 0x1B}: OpINSWL,
	{0x12, 0x22}: OpMSKLL, {0x12, 0x26}: OpEXTLL, {0x12, 0x2B}: OpINSLL,
	{0x12, 0x30}: OpZAP, {0x12, 0x31}: OpZAPNOT, {0x12, 0x32}: OpMSKQL,
	{0x12, 0x34}: OpSRL, {0x12, 0x36}: OpEXTQL, {0x12, 0x39}: OpSLL,
	{0x12, 0x3B}: OpINSQL, {0x12, 0x3C}: OpSRA,

	{0x13, 0x00}: OpMULL, {0x13, 0x20}: OpMULQ, {0x13, 0x30}: OpUMULH,
	{0x13, 0x40}: OpMULLV, {0x13, 0x60}: OpMULQV,

	{0x1C, 0x00}: OpSEXTB, {0x1C, 0x01}: OpSEXTW, {0x1C, 0x30}: OpCTPOP,
	{0x1C, 0x32}: OpCTLZ, {0x1C, 0x33}: OpCTTZ, {0x1C, 0x70}: OpFTOIT,
	{0x1C, 0x78}: OpFTOIS,
}

// ieeeOps is keyed by source type[5:4] | operation[3:0].
var ieeeOps = map[uint16]Op{
	0x00: OpADDS, 0x01: OpSUBS, 0x02: OpMULS, 0x03: OpDIVS,
	0x20: OpADDT, 0x21: OpSUBT, 0x22: OpMULT, 0x23: OpDIVT,
	0x24: OpCMPTUN, 0x25: OpCMPTEQ, 0x26: OpCMPTLT, 0x27: OpCMPTLE,
	0x2C: OpCVTTS, 0x2F: OpCVTTQ,
	0x3C: OpCVTQS, 0x3E: OpCVTQT,
}

var itfpOps = map[uint16]Op{
	0x004: OpITOFS, 0x024: OpITOFT,
}

var fltlOps = map[uint16]Op{
	0x010: OpCVTLQ, 0x020: OpCPYS, 0x021: OpCPYSN, 0x022: OpCPYSE,
	0x024: OpMTFPCR, 0x025: OpMFFPCR,
	0x02A: OpFCMOVEQ, 0x02B: OpFCMOVNE, 0x02C: OpFCMOVLT,
	0x02D: OpFCMOVGE, 0x02E: OpFCMOVLE, 0x02F: OpFCMOVGT,
	0x030: OpCVTQL,
}
