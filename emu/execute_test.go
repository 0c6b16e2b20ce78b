package emu_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ev6sim/emu"
	"github.com/sarchlab/ev6sim/insts"
)

var _ = Describe("Execute", func() {
	var decoder *insts.Decoder

	BeforeEach(func() {
		decoder = insts.NewDecoder()
	})

	run := func(word uint32, pc uint64, ops emu.Operands) emu.Outcome {
		return emu.Execute(decoder.Decode(word), pc, ops, 0)
	}

	It("should use the literal in place of Rb", func() {
		out := run(insts.EncodeADDQLit(1, 7, 2), 0x1000, emu.Operands{5, 100, 0})
		Expect(out.Result).To(Equal(uint64(12)))
		Expect(out.Next).To(Equal(uint64(0x1004)))
		Expect(out.Taken).To(BeFalse())
	})

	It("should keep the old destination of a failed CMOV", func() {
		out := run(insts.EncodeCMOVEQ(1, 2, 3), 0, emu.Operands{1, 20, 30})
		Expect(out.Result).To(Equal(uint64(30)))
	})

	It("should resolve a taken conditional branch", func() {
		out := run(insts.EncodeBNE(1, -2), 0x1000, emu.Operands{1})
		Expect(out.Taken).To(BeTrue())
		Expect(out.Next).To(Equal(uint64(0x1000 + 4 - 8)))
	})

	It("should link BSR and jump through RET", func() {
		out := run(insts.EncodeBSR(26, 4), 0x2000, emu.Operands{})
		Expect(out.Result).To(Equal(uint64(0x2004)))
		Expect(out.Next).To(Equal(uint64(0x2014)))

		out = run(insts.EncodeRET(insts.ZeroReg, 26), 0x2014, emu.Operands{0, 0x2007, 0})
		Expect(out.Taken).To(BeTrue())
		Expect(out.Next).To(Equal(uint64(0x2004)))
	})

	It("should compute load addresses", func() {
		out := run(insts.EncodeLDAH(1, 2, 1), 0, emu.Operands{0, 0x10, 0})
		Expect(out.Result).To(Equal(uint64(0x10010)))
	})

	It("should read the FPCR for MF_FPCR", func() {
		inst := decoder.Decode(insts.EncodeFPOperate(0x17, 0x025, 1, 1, 1))
		Expect(inst.Op).To(Equal(insts.OpMFFPCR))
		out := emu.Execute(inst, 0, emu.Operands{}, emu.FPCRInexactDisable)
		Expect(out.Result).To(Equal(uint64(emu.FPCRInexactDisable)))
	})

	It("should report OPCDEC for illegal instructions", func() {
		out := run(0x04000000, 0, emu.Operands{})
		Expect(out.Exception).To(Equal(insts.ExcOPCDEC))
	})
})

var _ = Describe("Trap", func() {
	var decoder *insts.Decoder

	BeforeEach(func() {
		decoder = insts.NewDecoder()
	})

	It("should always trap integer overflow", func() {
		inst := decoder.Decode(insts.EncodeADDQV(1, 2, 3))
		fpcr, trap := emu.Trap(inst, insts.ExcIntOverflow, 0)
		Expect(trap).To(Equal(insts.ExcIntOverflow))
		Expect(fpcr).To(Equal(emu.FPCR(0)))
	})

	It("should merge FP faults and honour disable bits", func() {
		inst := decoder.Decode(insts.EncodeDIVT(1, 2, 3))
		out := emu.Execute(inst, 0, emu.Operands{math.Float64bits(1), 0, 0}, 0)
		Expect(out.Exception.Has(insts.ExcDivZero)).To(BeTrue())

		fpcr, trap := emu.Trap(inst, out.Exception, emu.FPCRDivZeroDisable)
		Expect(trap).To(Equal(insts.ExcNone))
		Expect(fpcr & emu.FPCRDivZero).NotTo(BeZero())
		Expect(fpcr & emu.FPCRSummary).NotTo(BeZero())

		_, trap = emu.Trap(inst, out.Exception, 0)
		Expect(trap).To(Equal(insts.ExcDivZero))
	})

	It("should ignore non-arithmetic bits", func() {
		inst := decoder.Decode(insts.EncodeLDQ(1, 2, 0))
		_, trap := emu.Trap(inst, insts.ExcDTBMissSingle, 0)
		Expect(trap).To(Equal(insts.ExcNone))
	})
})
