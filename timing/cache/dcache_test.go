package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ev6sim/emu"
	"github.com/sarchlab/ev6sim/timing/cache"
)

var _ = Describe("DCache", func() {
	var (
		c      *cache.DCache
		memory *emu.Memory
	)

	BeforeEach(func() {
		memory = emu.NewMemory()
		c = cache.NewDCache(cache.DefaultDCacheConfig(), cache.NewMemoryBacking(memory))
	})

	Describe("Read operations", func() {
		It("should miss on cold cache", func() {
			memory.Write64(0x1000, 0xDEADBEEF)

			result := c.Read(0x1000, 0x1000, 8)
			Expect(result.Hit).To(BeFalse())
			Expect(result.Data).To(Equal(uint64(0xDEADBEEF)))

			stats := c.Stats()
			Expect(stats.Reads).To(Equal(uint64(1)))
			Expect(stats.Misses).To(Equal(uint64(1)))
			Expect(stats.Hits).To(Equal(uint64(0)))
		})

		It("should hit on cached data", func() {
			memory.Write64(0x1000, 0xCAFEBABE)
			c.Read(0x1000, 0x1000, 8)

			result := c.Read(0x1008, 0x1008, 4)
			Expect(result.Hit).To(BeTrue())
			Expect(result.Data).To(Equal(uint64(0)))

			result = c.Read(0x1000, 0x1000, 2)
			Expect(result.Hit).To(BeTrue())
			Expect(result.Data).To(Equal(uint64(0xBABE)))
			Expect(c.Stats().HitRate()).To(BeNumerically("~", 2.0/3.0, 1e-9))
		})
	})

	Describe("Write operations", func() {
		It("should allocate on a write miss and keep memory stale", func() {
			result := c.Write(0x2000, 0x2000, 8, 0x1122334455667788)
			Expect(result.Hit).To(BeFalse())
			Expect(memory.Read64(0x2000)).To(Equal(uint64(0)))

			Expect(c.Read(0x2000, 0x2000, 8).Data).To(Equal(uint64(0x1122334455667788)))
			Expect(c.Read(0x2004, 0x2004, 4).Data).To(Equal(uint64(0x11223344)))
		})
	})

	Describe("Index aliasing", func() {
		It("should expose four index variants for 8KB pages", func() {
			Expect(c.Variants()).To(Equal(4))
		})

		It("should find a line filled through another virtual alias", func() {
			pa := uint64(0x40100)
			c.Write(0x2100, pa, 8, 42)

			Expect(c.Fetch(0x6100, pa)).To(BeTrue())
			result := c.Read(0x6100, pa, 8)
			Expect(result.Hit).To(BeTrue())
			Expect(result.Data).To(Equal(uint64(42)))
		})

		It("should not fill a second copy of an aliased line", func() {
			pa := uint64(0x40100)
			c.Fill(0x2100, pa)

			result := c.Fill(0x4100, pa)
			Expect(result.Hit).To(BeTrue())
			Expect(c.Stats().Evictions).To(Equal(uint64(0)))
		})

		It("should miss when no variant holds the line", func() {
			Expect(c.Fetch(0x2100, 0x40100)).To(BeFalse())
		})
	})

	Describe("Replacement", func() {
		It("should write back a dirty victim in round-robin order", func() {
			c.Write(0x0, 0x0, 8, 0xAA)
			c.Read(0x8000, 0x8000, 8)

			result := c.Read(0x10000, 0x10000, 8)
			Expect(result.Evicted).To(BeTrue())
			Expect(result.EvictedAddr).To(Equal(uint64(0x0)))
			Expect(memory.Read64(0x0)).To(Equal(uint64(0xAA)))

			// The pointer moved on: the next conflict evicts way 1.
			result = c.Read(0x18000, 0x18000, 8)
			Expect(result.EvictedAddr).To(Equal(uint64(0x8000)))

			stats := c.Stats()
			Expect(stats.Evictions).To(Equal(uint64(2)))
			Expect(stats.Writebacks).To(Equal(uint64(1)))
		})

		It("should allocate only enabled ways", func() {
			config := cache.DefaultDCacheConfig()
			config.EnabledWays = 1
			c = cache.NewDCache(config, cache.NewMemoryBacking(memory))

			c.Read(0x0, 0x0, 8)
			result := c.Read(0x8000, 0x8000, 8)
			Expect(result.Evicted).To(BeTrue())
			Expect(c.Fetch(0x0, 0x0)).To(BeFalse())
		})
	})

	Describe("Flush and invalidate", func() {
		It("should write back dirty lines on flush", func() {
			c.Write(0x3000, 0x3000, 8, 7)
			c.Flush()

			Expect(memory.Read64(0x3000)).To(Equal(uint64(7)))
			Expect(c.Fetch(0x3000, 0x3000)).To(BeFalse())
			Expect(c.Stats().Writebacks).To(Equal(uint64(1)))
		})

		It("should drop a line on invalidate without writeback", func() {
			c.Write(0x3000, 0x3000, 8, 7)
			c.Invalidate(0x3000)

			Expect(memory.Read64(0x3000)).To(Equal(uint64(0)))
			Expect(c.Read(0x3000, 0x3000, 8).Data).To(Equal(uint64(0)))
		})

		It("should see memory updates after a flush", func() {
			c.Read(0x3000, 0x3000, 8)
			c.Flush()
			memory.Write64(0x3000, 9)

			Expect(c.Read(0x3000, 0x3000, 8).Data).To(Equal(uint64(9)))
		})

		It("should clear statistics on reset", func() {
			c.Read(0x3000, 0x3000, 8)
			c.Reset()
			Expect(c.Stats()).To(Equal(cache.Statistics{}))
		})
	})
})
