package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ev6sim/insts"
)

var _ = Describe("Decoder", func() {
	var decoder *insts.Decoder

	BeforeEach(func() {
		decoder = insts.NewDecoder()
	})

	Describe("Operate format", func() {
		// ADDQ R1, R2, R3 -> 0x40220403
		It("should decode ADDQ R1, R2, R3", func() {
			inst := decoder.Decode(0x40220403)

			Expect(inst.Op).To(Equal(insts.OpADDQ))
			Expect(inst.Format).To(Equal(insts.FormatOperate))
			Expect(inst.Ra).To(Equal(uint8(1)))
			Expect(inst.Rb).To(Equal(uint8(2)))
			Expect(inst.Rc).To(Equal(uint8(3)))
			Expect(inst.UseLiteral).To(BeFalse())
		})

		// ADDQ R1, #5, R2 -> 0x4020B402
		It("should decode a literal operand", func() {
			inst := decoder.Decode(0x4020B402)

			Expect(inst.Op).To(Equal(insts.OpADDQ))
			Expect(inst.UseLiteral).To(BeTrue())
			Expect(inst.Literal).To(Equal(uint64(5)))
			Expect(inst.Rb).To(Equal(insts.ZeroReg))
			Expect(inst.Rc).To(Equal(uint8(2)))
		})

		// BIS R31, R31, R31 -> 0x47FF041F
		It("should decode the canonical NOP", func() {
			inst := decoder.Decode(0x47FF041F)

			Expect(inst.Op).To(Equal(insts.OpBIS))
			_, hasDest := inst.Dest()
			Expect(hasDest).To(BeFalse())
		})

		// MULQ R1, R2, R3 -> 0x4C220403
		It("should decode MULQ", func() {
			inst := decoder.Decode(0x4C220403)
			Expect(inst.Op).To(Equal(insts.OpMULQ))
			Expect(inst.Class()).To(Equal(insts.ClassIntMul))
		})

		It("should assign operand roles", func() {
			inst := decoder.Decode(insts.EncodeADDQLit(4, 9, 5))
			regs, used := inst.Operands()
			Expect(used).To(Equal([insts.NumOperands]bool{true, false, false}))
			Expect(regs[insts.OperandA]).To(Equal(insts.Reg{File: insts.IntRegs, Num: 4}))
		})

		It("should treat the CMOV destination as a source", func() {
			inst := decoder.Decode(insts.EncodeCMOVEQ(1, 2, 3))
			Expect(inst.Op).To(Equal(insts.OpCMOVEQ))
			Expect(inst.Sources()).To(ContainElement(insts.Reg{File: insts.IntRegs, Num: 3}))
		})
	})

	Describe("Memory format", func() {
		// LDQ R1, 8(R2) -> 0xA4220008
		It("should decode LDQ R1, 8(R2)", func() {
			inst := decoder.Decode(0xA4220008)

			Expect(inst.Op).To(Equal(insts.OpLDQ))
			Expect(inst.Format).To(Equal(insts.FormatMemory))
			Expect(inst.Ra).To(Equal(uint8(1)))
			Expect(inst.Rb).To(Equal(uint8(2)))
			Expect(inst.Displacement).To(Equal(int64(8)))
			Expect(insts.AccessSize(inst.Op)).To(Equal(8))
		})

		// LDA R16, -1(R31) -> 0x221FFFFF
		It("should sign-extend the displacement", func() {
			inst := decoder.Decode(0x221FFFFF)

			Expect(inst.Op).To(Equal(insts.OpLDA))
			Expect(inst.Ra).To(Equal(uint8(16)))
			Expect(inst.Displacement).To(Equal(int64(-1)))
		})

		It("should report store sources and no destination", func() {
			inst := decoder.Decode(insts.EncodeSTQ(4, 5, 16))

			Expect(inst.Op).To(Equal(insts.OpSTQ))
			Expect(inst.Sources()).To(Equal([]insts.Reg{
				{File: insts.IntRegs, Num: 5},
				{File: insts.IntRegs, Num: 4},
			}))
			_, hasDest := inst.Dest()
			Expect(hasDest).To(BeFalse())
		})

		It("should put FP load destinations in the FP file", func() {
			inst := decoder.Decode(insts.EncodeLDT(2, 3, 0))
			dest, ok := inst.Dest()
			Expect(ok).To(BeTrue())
			Expect(dest).To(Equal(insts.Reg{File: insts.FloatRegs, Num: 2}))
		})

		// MB -> 0x60004000
		It("should decode MB", func() {
			inst := decoder.Decode(0x60004000)
			Expect(inst.Op).To(Equal(insts.OpMB))
			Expect(inst.Class()).To(Equal(insts.ClassNop))
		})
	})

	Describe("Branch format", func() {
		// BR R31, -1 -> 0xC3FFFFFF
		It("should decode a backward BR", func() {
			inst := decoder.Decode(0xC3FFFFFF)

			Expect(inst.Op).To(Equal(insts.OpBR))
			Expect(inst.Displacement).To(Equal(int64(-4)))
			_, hasDest := inst.Dest()
			Expect(hasDest).To(BeFalse())
		})

		// BNE R1, +3 -> 0xF4200003
		It("should decode BNE", func() {
			inst := decoder.Decode(0xF4200003)

			Expect(inst.Op).To(Equal(insts.OpBNE))
			Expect(inst.Ra).To(Equal(uint8(1)))
			Expect(inst.Displacement).To(Equal(int64(12)))
			Expect(insts.IsConditionalBranch(inst.Op)).To(BeTrue())
		})

		It("should decode BSR with a link register", func() {
			inst := decoder.Decode(insts.EncodeBSR(26, 10))
			dest, ok := inst.Dest()
			Expect(ok).To(BeTrue())
			Expect(dest.Num).To(Equal(uint8(26)))
			Expect(inst.Sources()).To(BeEmpty())
		})
	})

	Describe("Jump format", func() {
		// RET R31, (R26), 1 -> 0x6BFA8001
		It("should decode RET", func() {
			inst := decoder.Decode(0x6BFA8001)

			Expect(inst.Op).To(Equal(insts.OpRET))
			Expect(inst.Rb).To(Equal(uint8(26)))
			Expect(inst.Hint).To(Equal(uint16(1)))
		})
	})

	Describe("FP operate format", func() {
		// ADDT F1, F2, F3 -> 0x58221403
		It("should decode ADDT", func() {
			inst := decoder.Decode(0x58221403)

			Expect(inst.Op).To(Equal(insts.OpADDT))
			Expect(inst.Format).To(Equal(insts.FormatFPOperate))
			Expect(inst.RoundQual).To(Equal(uint8(2)))
			Expect(inst.Class()).To(Equal(insts.ClassFPAdd))
		})

		It("should decode MULT and DIVT into their own classes", func() {
			Expect(decoder.Decode(insts.EncodeMULT(1, 2, 3)).Class()).To(Equal(insts.ClassFPMul))
			Expect(decoder.Decode(insts.EncodeDIVT(1, 2, 3)).Class()).To(Equal(insts.ClassFPDiv))
		})

		It("should decode trap qualifiers", func() {
			// ADDT/SU: trap qualifier 101
			inst := decoder.Decode(insts.EncodeFPOperate(0x16, 0x5A0, 1, 2, 3))
			Expect(inst.Op).To(Equal(insts.OpADDT))
			Expect(inst.TrapQual).To(Equal(uint8(5)))
		})

		It("should decode ITOFT and FTOIT across register files", func() {
			itoft := decoder.Decode(insts.EncodeITOFT(4, 5))
			Expect(itoft.Op).To(Equal(insts.OpITOFT))
			dest, _ := itoft.Dest()
			Expect(dest.File).To(Equal(insts.FloatRegs))

			ftoit := decoder.Decode(insts.EncodeFTOIT(5, 6))
			Expect(ftoit.Op).To(Equal(insts.OpFTOIT))
			dest, _ = ftoit.Dest()
			Expect(dest.File).To(Equal(insts.IntRegs))
		})
	})

	Describe("PAL format", func() {
		It("should decode CALL_PAL callsys", func() {
			inst := decoder.Decode(0x00000083)
			Expect(inst.Op).To(Equal(insts.OpCALLPAL))
			Expect(inst.PALFunction).To(Equal(uint32(0x83)))
		})
	})

	Describe("Unknown instructions", func() {
		It("should decode reserved opcodes as unknown", func() {
			inst := decoder.Decode(0x04000000)
			Expect(inst.Op).To(Equal(insts.OpUnknown))
			Expect(inst.Class()).To(Equal(insts.ClassIllegal))
		})
	})
})
