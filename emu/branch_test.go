package emu_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ev6sim/emu"
	"github.com/sarchlab/ev6sim/insts"
)

var _ = Describe("Branches", func() {
	It("should evaluate integer conditions", func() {
		minusOne := uint64(math.MaxUint64)
		Expect(emu.BranchTaken(insts.OpBEQ, 0)).To(BeTrue())
		Expect(emu.BranchTaken(insts.OpBNE, 0)).To(BeFalse())
		Expect(emu.BranchTaken(insts.OpBLT, minusOne)).To(BeTrue())
		Expect(emu.BranchTaken(insts.OpBGT, minusOne)).To(BeFalse())
		Expect(emu.BranchTaken(insts.OpBLBS, 3)).To(BeTrue())
		Expect(emu.BranchTaken(insts.OpBLBC, 3)).To(BeFalse())
		Expect(emu.BranchTaken(insts.OpBR, 0)).To(BeTrue())
	})

	It("should treat negative zero as zero in FP branches", func() {
		negZero := math.Float64bits(math.Copysign(0, -1))
		Expect(emu.BranchTaken(insts.OpFBEQ, negZero)).To(BeTrue())
		Expect(emu.BranchTaken(insts.OpFBLT, negZero)).To(BeFalse())
		Expect(emu.BranchTaken(insts.OpFBLE, negZero)).To(BeTrue())
	})

	It("should evaluate FP signs", func() {
		Expect(emu.BranchTaken(insts.OpFBLT, math.Float64bits(-1))).To(BeTrue())
		Expect(emu.BranchTaken(insts.OpFBGT, math.Float64bits(2))).To(BeTrue())
		Expect(emu.BranchTaken(insts.OpFBGE, math.Float64bits(-2))).To(BeFalse())
	})

	It("should compute targets", func() {
		Expect(emu.BranchTarget(0x1000, -4)).To(Equal(uint64(0x1000)))
		Expect(emu.BranchTarget(0x1000, 8)).To(Equal(uint64(0x100C)))
		Expect(emu.JumpTarget(0x2003)).To(Equal(uint64(0x2000)))
	})
})
