package pipeline

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ev6sim/emu"
	"github.com/sarchlab/ev6sim/insts"
	"github.com/sarchlab/ev6sim/timing/config"
)

var _ = Describe("Retirement order", func() {
	var (
		p       *Pipeline
		decoder *insts.Decoder
	)

	BeforeEach(func() {
		p = NewPipeline(config.DefaultBootConfig(), emu.NewMemory())
		decoder = insts.NewDecoder()
	})

	nop := func(id, pc uint64) *Instruction {
		return &Instruction{
			ID:   id,
			PC:   insts.NewPC(pc, false),
			Inst: decoder.Decode(insts.EncodeNOP()),
		}
	}

	It("should hold a finished instruction behind an older executing one", func() {
		older := nop(1, 0x1000)
		younger := nop(2, 0x1004)
		Expect(older.Transition(EventIssue)).To(BeTrue())
		Expect(younger.Transition(EventIssue)).To(BeTrue())
		Expect(younger.Transition(EventComplete)).To(BeTrue())

		p.rob.PushBack(older)
		p.rob.PushBack(younger)

		Expect(p.retire(context.Background())).To(Succeed())
		Expect(p.InFlight()).To(Equal(2))
		Expect(younger.State()).To(Equal(StateWaitingRetirement))
		Expect(p.Stats().Instructions).To(BeZero())

		Expect(older.Transition(EventComplete)).To(BeTrue())
		Expect(p.retire(context.Background())).To(Succeed())

		Expect(p.InFlight()).To(BeZero())
		Expect(older.State()).To(Equal(StateRetired))
		Expect(younger.State()).To(Equal(StateRetired))
		Expect(p.Stats().Instructions).To(Equal(uint64(2)))
	})

	It("should retire nothing while the head is still queued", func() {
		head := nop(1, 0x1000)
		done := nop(2, 0x1004)
		Expect(done.Transition(EventBypass)).To(BeTrue())

		p.rob.PushBack(head)
		p.rob.PushBack(done)

		Expect(p.retire(context.Background())).To(Succeed())
		Expect(head.State()).To(Equal(StateQueued))
		Expect(p.InFlight()).To(Equal(2))
	})
})
