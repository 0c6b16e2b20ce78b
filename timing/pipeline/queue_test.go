package pipeline_test

import (
	"context"
	"slices"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ev6sim/insts"
	"github.com/sarchlab/ev6sim/timing/pipeline"
)

var _ = Describe("Queue", func() {
	var (
		decoder *insts.Decoder
		q       *pipeline.Queue
		mu      sync.Mutex
		blocked map[*pipeline.Instruction]bool
		nextID  uint64
	)

	newInst := func(word uint32) *pipeline.Instruction {
		nextID++
		return &pipeline.Instruction{
			ID:   nextID,
			PC:   insts.NewPC(0x1000+4*nextID, false),
			Inst: decoder.Decode(word),
		}
	}

	setBlocked := func(inst *pipeline.Instruction, b bool) {
		mu.Lock()
		blocked[inst] = b
		mu.Unlock()
	}

	BeforeEach(func() {
		decoder = insts.NewDecoder()
		blocked = make(map[*pipeline.Instruction]bool)
		nextID = 0
		q = pipeline.NewQueue("IQ", 3, func(inst *pipeline.Instruction) bool {
			mu.Lock()
			defer mu.Unlock()
			return !blocked[inst]
		})
	})

	It("should reject inserts when full without changing the queue", func() {
		for range 3 {
			_, err := q.Insert(newInst(insts.EncodeADDQ(1, 2, 3)))
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(q.Free()).To(Equal(0))

		extra := newInst(insts.EncodeADDQ(1, 2, 3))
		_, err := q.Insert(extra)
		Expect(err).To(MatchError(pipeline.ErrQueueFull))
		Expect(q.Len()).To(Equal(3))
		Expect(q.Entries()).NotTo(ContainElement(extra))
	})

	It("should keep entries in program order", func() {
		a := newInst(insts.EncodeADDQ(1, 2, 3))
		b := newInst(insts.EncodeSUBQ(1, 2, 3))
		_, _ = q.Insert(a)
		_, _ = q.Insert(b)
		Expect(q.Entries()).To(Equal([]*pipeline.Instruction{a, b}))
	})

	It("should claim the oldest entry the pipe can execute", func() {
		mul := newInst(insts.EncodeMULQ(1, 2, 3))
		add := newInst(insts.EncodeADDQ(1, 2, 4))
		_, _ = q.Insert(mul)
		_, _ = q.Insert(add)

		got, err := q.Claim(context.Background(), pipeline.PipeU0)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeIdenticalTo(add))
		Expect(got.State()).To(Equal(pipeline.StateExecuting))

		got, err = q.Claim(context.Background(), pipeline.PipeU1)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeIdenticalTo(mul))
		Expect(q.Len()).To(Equal(0))
	})

	It("should skip entries whose operands are not ready", func() {
		older := newInst(insts.EncodeADDQ(1, 2, 3))
		younger := newInst(insts.EncodeADDQ(4, 5, 6))
		setBlocked(older, true)
		_, _ = q.Insert(older)
		_, _ = q.Insert(younger)

		got, err := q.Claim(context.Background(), pipeline.PipeL0)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeIdenticalTo(younger))
		Expect(older.State()).To(Equal(pipeline.StateQueued))
	})

	It("should wake a waiting claimer when an entry becomes ready", func() {
		inst := newInst(insts.EncodeADDQ(1, 2, 3))
		setBlocked(inst, true)
		_, _ = q.Insert(inst)

		claimed := make(chan *pipeline.Instruction, 1)
		go func() {
			defer GinkgoRecover()
			got, err := q.Claim(context.Background(), pipeline.PipeU0)
			Expect(err).NotTo(HaveOccurred())
			claimed <- got
		}()

		Consistently(claimed).ShouldNot(Receive())
		setBlocked(inst, false)
		q.Notify()
		Eventually(claimed).Should(Receive(BeIdenticalTo(inst)))
	})

	It("should release waiting claimers on close", func() {
		errs := make(chan error, 1)
		go func() {
			_, err := q.Claim(context.Background(), pipeline.PipeFA)
			errs <- err
		}()

		Consistently(errs).ShouldNot(Receive())
		q.Close()
		Eventually(errs).Should(Receive(MatchError(pipeline.ErrQueueClosed)))

		q.Open()
		_, _ = q.Insert(newInst(insts.EncodeADDQ(1, 2, 3)))
		_, err := q.Claim(context.Background(), pipeline.PipeU0)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should release a waiting claimer when its context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		errs := make(chan error, 1)
		go func() {
			_, err := q.Claim(ctx, pipeline.PipeFA)
			errs <- err
		}()

		Consistently(errs).ShouldNot(Receive())
		cancel()
		Eventually(errs).Should(Receive(MatchError(pipeline.ErrQueueClosed)))
	})

	It("should not claim aborted entries", func() {
		aborted := newInst(insts.EncodeADDQ(1, 2, 3))
		live := newInst(insts.EncodeADDQ(1, 2, 4))
		_, _ = q.Insert(aborted)
		_, _ = q.Insert(live)
		aborted.Transition(pipeline.EventAbort)

		got, err := q.Claim(context.Background(), pipeline.PipeU0)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeIdenticalTo(live))
		Expect(aborted.State()).To(Equal(pipeline.StateAborted))
	})

	It("should remove an aborted entry once", func() {
		inst := newInst(insts.EncodeADDQ(1, 2, 3))
		_, _ = q.Insert(inst)
		inst.Transition(pipeline.EventAbort)

		Expect(q.Remove(inst)).To(BeTrue())
		Expect(q.Remove(inst)).To(BeFalse())
		Expect(q.Len()).To(Equal(0))
	})

	It("should not remove claimed entries", func() {
		inst := newInst(insts.EncodeADDQ(1, 2, 3))
		_, _ = q.Insert(inst)
		_, err := q.Claim(context.Background(), pipeline.PipeU1)
		Expect(err).NotTo(HaveOccurred())
		Expect(q.Remove(inst)).To(BeFalse())
	})

	It("should clear every entry", func() {
		_, _ = q.Insert(newInst(insts.EncodeADDQ(1, 2, 3)))
		_, _ = q.Insert(newInst(insts.EncodeADDQ(1, 2, 4)))
		q.Clear()
		Expect(q.Len()).To(Equal(0))
		Expect(q.Free()).To(Equal(q.Cap()))
	})

	DescribeTable("pipe classes",
		func(class insts.Class, expected []pipeline.Pipe) {
			mask := pipeline.PipesFor(class)
			for p := pipeline.PipeU0; p <= pipeline.PipeFM; p++ {
				Expect(mask.Has(p)).To(Equal(slices.Contains(expected, p)), "pipe %s", p)
			}
		},
		Entry("simple integer", insts.ClassIntALU,
			[]pipeline.Pipe{pipeline.PipeU0, pipeline.PipeU1, pipeline.PipeL0, pipeline.PipeL1}),
		Entry("shift", insts.ClassIntShift, []pipeline.Pipe{pipeline.PipeU0, pipeline.PipeU1}),
		Entry("branch", insts.ClassBranch, []pipeline.Pipe{pipeline.PipeU0, pipeline.PipeU1}),
		Entry("multiply", insts.ClassIntMul, []pipeline.Pipe{pipeline.PipeU1}),
		Entry("load", insts.ClassLoad, []pipeline.Pipe{pipeline.PipeL0, pipeline.PipeL1}),
		Entry("LDA", insts.ClassLoadAddr, []pipeline.Pipe{pipeline.PipeL0, pipeline.PipeL1}),
		Entry("FP multiply", insts.ClassFPMul, []pipeline.Pipe{pipeline.PipeFM}),
		Entry("FP add", insts.ClassFPAdd, []pipeline.Pipe{pipeline.PipeFA}),
		Entry("FP branch", insts.ClassFPBranch, []pipeline.Pipe{pipeline.PipeFA}),
		Entry("barrier", insts.ClassNop, []pipeline.Pipe{}),
		Entry("CALL_PAL", insts.ClassPAL, []pipeline.Pipe{}),
	)

	It("should send floating-point work to the FQ", func() {
		Expect(pipeline.UsesFloatQueue(insts.ClassFPDiv)).To(BeTrue())
		Expect(pipeline.UsesFloatQueue(insts.ClassFPToInt)).To(BeTrue())
		Expect(pipeline.UsesFloatQueue(insts.ClassIntToFP)).To(BeFalse())
		Expect(pipeline.UsesFloatQueue(insts.ClassStore)).To(BeFalse())
	})
})
