package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ev6sim/emu"
	"github.com/sarchlab/ev6sim/timing/cache"
	"github.com/sarchlab/ev6sim/timing/pipeline"
)

var _ = Describe("StoreQueue", func() {
	const addr = uint64(0x2000)

	var (
		memory *emu.Memory
		dcache *cache.DCache
		sq     *pipeline.StoreQueue
	)

	inst := func(id uint64) *pipeline.Instruction {
		return &pipeline.Instruction{ID: id}
	}

	BeforeEach(func() {
		memory = emu.NewMemory()
		memory.Write64(addr, 0x1111111111111111)
		dcache = cache.NewDCache(cache.DefaultDCacheConfig(), cache.NewMemoryBacking(memory))
		sq = pipeline.NewStoreQueue(4)
	})

	It("should reject allocation when full", func() {
		for i := range 4 {
			Expect(sq.Allocate(inst(uint64(i + 1)))).To(Succeed())
		}
		Expect(sq.Allocate(inst(5))).To(MatchError(pipeline.ErrQueueFull))
		Expect(sq.Len()).To(Equal(4))
		Expect(sq.Free()).To(Equal(0))
	})

	It("should report unresolved older stores", func() {
		store := inst(1)
		load := inst(2)
		Expect(sq.Allocate(store)).To(Succeed())

		Expect(sq.HasUnresolvedBefore(load)).To(BeTrue())
		Expect(sq.HasUnresolvedBefore(inst(1))).To(BeFalse())

		sq.Resolve(store, addr, addr, 8, 0)
		Expect(sq.HasUnresolvedBefore(load)).To(BeFalse())
	})

	It("should not make loads wait for faulted stores", func() {
		store := inst(1)
		Expect(sq.Allocate(store)).To(Succeed())
		sq.Fault(store)
		Expect(sq.HasUnresolvedBefore(inst(2))).To(BeFalse())
		Expect(sq.Load(inst(2), addr, addr, 8, dcache)).To(Equal(uint64(0x1111111111111111)))
	})

	It("should forward an exact match", func() {
		store := inst(1)
		Expect(sq.Allocate(store)).To(Succeed())
		sq.Resolve(store, addr, addr, 8, 0xAABBCCDDEEFF0011)

		Expect(sq.Load(inst(2), addr, addr, 8, dcache)).To(Equal(uint64(0xAABBCCDDEEFF0011)))
		Expect(sq.Forwarded()).To(Equal(uint64(1)))
	})

	It("should merge partially overlapping stores, youngest last", func() {
		first := inst(1)
		second := inst(2)
		Expect(sq.Allocate(first)).To(Succeed())
		Expect(sq.Allocate(second)).To(Succeed())
		sq.Resolve(first, addr+1, addr+1, 1, 0xAA)
		sq.Resolve(second, addr, addr, 2, 0xBBCC)

		Expect(sq.Load(inst(3), addr, addr, 4, dcache)).To(Equal(uint64(0x1111BBCC)))
	})

	It("should ignore younger stores", func() {
		load := inst(1)
		store := inst(2)
		Expect(sq.Allocate(store)).To(Succeed())
		sq.Resolve(store, addr, addr, 8, 0xFFFF)

		Expect(sq.Load(load, addr, addr, 8, dcache)).To(Equal(uint64(0x1111111111111111)))
		Expect(sq.Forwarded()).To(BeZero())
	})

	It("should write the data cache on commit", func() {
		store := inst(1)
		Expect(sq.Allocate(store)).To(Succeed())
		sq.Resolve(store, addr, addr, 4, 0xCAFEF00D)

		Expect(dcache.Read(addr, addr, 8).Data).To(Equal(uint64(0x1111111111111111)))
		sq.Commit(store, dcache)

		Expect(sq.Len()).To(Equal(0))
		Expect(dcache.Read(addr, addr, 8).Data).To(Equal(uint64(0x11111111CAFEF00D)))
		Expect(memory.Read64(addr)).To(Equal(uint64(0x1111111111111111)))

		dcache.Flush()
		Expect(memory.Read64(addr)).To(Equal(uint64(0x11111111CAFEF00D)))
	})

	It("should not write faulted stores", func() {
		store := inst(1)
		Expect(sq.Allocate(store)).To(Succeed())
		sq.Fault(store)
		sq.Commit(store, dcache)
		Expect(dcache.Stats().Writes).To(BeZero())
	})

	It("should panic when committing out of order", func() {
		Expect(sq.Allocate(inst(1))).To(Succeed())
		younger := inst(2)
		Expect(sq.Allocate(younger)).To(Succeed())
		Expect(func() { sq.Commit(younger, dcache) }).To(Panic())
	})

	It("should squash the youngest store", func() {
		older := inst(1)
		younger := inst(2)
		Expect(sq.Allocate(older)).To(Succeed())
		Expect(sq.Allocate(younger)).To(Succeed())

		sq.Squash(younger)
		Expect(sq.Len()).To(Equal(1))

		// A squashed store still executing resolves harmlessly.
		sq.Resolve(younger, addr, addr, 8, 0)
		Expect(sq.HasUnresolvedBefore(inst(3))).To(BeTrue())
	})
})
