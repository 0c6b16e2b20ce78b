package tlb_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ev6sim/timing/tlb"
)

var _ = Describe("TB", func() {
	const size = 4
	var tb *tlb.TB

	page := func(n uint64) uint64 { return n << tlb.PageShift }

	BeforeEach(func() {
		tb = tlb.New(size)
	})

	It("should miss when empty", func() {
		_, ok := tb.Lookup(0x1000, 0)
		Expect(ok).To(BeFalse())
		Expect(tb.Stats().Misses).To(Equal(uint64(1)))
	})

	It("should translate within a page", func() {
		tb.Allocate(page(5), page(9), tlb.AllAccess, 1, false, 0)

		e, ok := tb.Lookup(page(5)+0x123, 1)
		Expect(ok).To(BeTrue())
		Expect(e.Translate(page(5) + 0x123)).To(Equal(page(9) + 0x123))
	})

	It("should match by ASN unless the entry is global", func() {
		tb.Allocate(page(1), page(1), tlb.AllAccess, 1, false, 0)
		tb.Allocate(page(2), page(2), tlb.AllAccess, 1, true, 0)

		_, ok := tb.Lookup(page(1), 2)
		Expect(ok).To(BeFalse())
		_, ok = tb.Lookup(page(2), 2)
		Expect(ok).To(BeTrue())
	})

	It("should cover 8^GH pages", func() {
		tb.Allocate(page(8), page(64), tlb.AllAccess, 0, false, 1)

		e, ok := tb.Lookup(page(15)+4, 0)
		Expect(ok).To(BeTrue())
		Expect(e.Translate(page(15) + 4)).To(Equal(page(71) + 4))

		_, ok = tb.Lookup(page(16), 0)
		Expect(ok).To(BeFalse())
	})

	It("should evict the oldest slot after N+1 allocations", func() {
		for i := range uint64(size) {
			Expect(tb.Allocate(page(i), page(i), tlb.AllAccess, 0, false, 0)).To(Equal(int(i)))
		}

		slot := tb.Allocate(page(100), page(100), tlb.AllAccess, 0, false, 0)

		Expect(slot).To(Equal(0))
		_, ok := tb.Lookup(page(0), 0)
		Expect(ok).To(BeFalse())
		Expect(tb.Stats().Evictions).To(Equal(uint64(1)))
	})

	It("should keep the age of an entry refilled in place", func() {
		for i := range uint64(size) {
			tb.Allocate(page(i), page(i), tlb.AllAccess, 0, false, 0)
		}

		Expect(tb.Allocate(page(0), page(40), tlb.AllAccess, 0, false, 0)).To(Equal(0))
		Expect(tb.Allocate(page(100), page(100), tlb.AllAccess, 0, false, 0)).To(Equal(0))

		_, ok := tb.Lookup(page(0), 0)
		Expect(ok).To(BeFalse())
		_, ok = tb.Lookup(page(1), 0)
		Expect(ok).To(BeTrue())
	})

	It("should reuse an invalidated slot before evicting", func() {
		for i := range uint64(size) {
			tb.Allocate(page(i), page(i), tlb.AllAccess, 0, false, 0)
		}
		tb.InvalidateSingle(page(2), 0)

		Expect(tb.Allocate(page(50), page(50), tlb.AllAccess, 0, false, 0)).To(Equal(2))
		Expect(tb.Stats().Evictions).To(BeZero())

		// The next allocation evicts the oldest remaining slot.
		Expect(tb.Allocate(page(51), page(51), tlb.AllAccess, 0, false, 0)).To(Equal(0))
	})

	It("should replace an existing mapping in place", func() {
		tb.Allocate(page(3), page(3), tlb.AllAccess, 0, false, 0)
		slot := tb.Allocate(page(3), page(30), tlb.AllAccess, 0, false, 0)

		Expect(slot).To(Equal(0))
		Expect(tb.ValidCount()).To(Equal(1))
		Expect(tb.Slot(0).Translate(page(3))).To(Equal(page(30)))
	})

	It("should invalidate non-global entries only", func() {
		tb.Allocate(page(1), page(1), tlb.AllAccess, 0, false, 0)
		tb.Allocate(page(2), page(2), tlb.AllAccess, 0, true, 0)

		tb.InvalidateNonGlobal()

		Expect(tb.ValidCount()).To(Equal(1))
		_, ok := tb.Lookup(page(2), 0)
		Expect(ok).To(BeTrue())
	})

	It("should invalidate without compacting", func() {
		for i := range uint64(3) {
			tb.Allocate(page(i), page(i), tlb.AllAccess, 0, false, 0)
		}
		tb.InvalidateAll()

		Expect(tb.ValidCount()).To(BeZero())
		Expect(tb.Slot(1).Tag).To(Equal(page(1)))
	})
})
