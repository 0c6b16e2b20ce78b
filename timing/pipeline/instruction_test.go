package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ev6sim/insts"
	"github.com/sarchlab/ev6sim/timing/pipeline"
)

var _ = Describe("Instruction lifecycle", func() {
	var inst *pipeline.Instruction

	BeforeEach(func() {
		inst = &pipeline.Instruction{
			PC:   insts.NewPC(0x1000, false),
			Inst: insts.NewDecoder().Decode(insts.EncodeADDQ(1, 2, 3)),
		}
	})

	It("should start queued", func() {
		Expect(inst.State()).To(Equal(pipeline.StateQueued))
	})

	It("should follow issue, complete and retire", func() {
		Expect(inst.Transition(pipeline.EventIssue)).To(BeTrue())
		Expect(inst.State()).To(Equal(pipeline.StateExecuting))
		Expect(inst.Transition(pipeline.EventComplete)).To(BeTrue())
		Expect(inst.State()).To(Equal(pipeline.StateWaitingRetirement))
		Expect(inst.Transition(pipeline.EventRetire)).To(BeTrue())
		Expect(inst.State()).To(Equal(pipeline.StateRetired))
	})

	It("should let bypassed instructions skip execution", func() {
		Expect(inst.Transition(pipeline.EventBypass)).To(BeTrue())
		Expect(inst.State()).To(Equal(pipeline.StateWaitingRetirement))
	})

	It("should reject retiring an instruction that has not completed", func() {
		Expect(inst.Transition(pipeline.EventRetire)).To(BeFalse())
		Expect(inst.State()).To(Equal(pipeline.StateQueued))

		inst.Transition(pipeline.EventIssue)
		Expect(inst.Transition(pipeline.EventRetire)).To(BeFalse())
		Expect(inst.State()).To(Equal(pipeline.StateExecuting))
	})

	It("should reject issuing twice", func() {
		Expect(inst.Transition(pipeline.EventIssue)).To(BeTrue())
		Expect(inst.Transition(pipeline.EventIssue)).To(BeFalse())
	})

	DescribeTable("aborting",
		func(events []pipeline.Event, allowed bool) {
			for _, e := range events {
				Expect(inst.Transition(e)).To(BeTrue())
			}
			Expect(inst.Transition(pipeline.EventAbort)).To(Equal(allowed))
		},
		Entry("a queued instruction", []pipeline.Event{}, true),
		Entry("an executing instruction", []pipeline.Event{pipeline.EventIssue}, true),
		Entry("a completed instruction",
			[]pipeline.Event{pipeline.EventIssue, pipeline.EventComplete}, true),
		Entry("a retired instruction",
			[]pipeline.Event{pipeline.EventBypass, pipeline.EventRetire}, false),
	)

	It("should not complete an aborted instruction", func() {
		inst.Transition(pipeline.EventIssue)
		inst.Transition(pipeline.EventAbort)
		Expect(inst.Transition(pipeline.EventComplete)).To(BeFalse())
		Expect(inst.State()).To(Equal(pipeline.StateAborted))
	})

	It("should classify fetch fault records as illegal", func() {
		fault := &pipeline.Instruction{PC: insts.NewPC(0x2000, false)}
		Expect(fault.Class()).To(Equal(insts.ClassIllegal))
		Expect(fault.IsControl()).To(BeFalse())
		Expect(fault.String()).To(ContainSubstring("fault"))
	})
})
