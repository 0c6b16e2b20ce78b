package cache

import (
	"sync"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/ev6sim/timing/tlb"
)

// DCache is a virtually indexed, physically tagged data cache. The index
// uses virtual address bits above the page offset, so one physical line can
// sit at any of several index variants. Lookups probe every variant before
// declaring a miss.
//
// The directory is keyed by a synthetic address that keeps the physical
// page number above the index span and the virtual index bits below it.
type DCache struct {
	mu        sync.Mutex
	config    Config
	directory *akitacache.DirectoryImpl
	victims   *RoundRobinVictimFinder
	dataStore [][]byte
	backing   BackingStore
	stats     Statistics

	span     uint64 // bytes covered by the index and offset bits
	variants uint64
}

// NewDCache creates a data cache.
func NewDCache(config Config, backing BackingStore) *DCache {
	totalBlocks := config.NumSets() * config.Associativity

	dataStore := make([][]byte, totalBlocks)
	for i := range dataStore {
		dataStore[i] = make([]byte, config.BlockSize)
	}

	span := max(uint64(config.NumSets()*config.BlockSize), uint64(tlb.PageSize))
	directory, victims := newDirectory(config)

	return &DCache{
		config:    config,
		directory: directory,
		victims:   victims,
		dataStore: dataStore,
		backing:   backing,
		span:      span,
		variants:  span / tlb.PageSize,
	}
}

// Config returns the cache configuration.
func (c *DCache) Config() Config {
	return c.config
}

// Stats returns cache statistics.
func (c *DCache) Stats() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// ResetStats clears cache statistics.
func (c *DCache) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = Statistics{}
}

// Variants returns how many index positions one physical line can occupy.
func (c *DCache) Variants() int {
	return int(c.variants)
}

func (c *DCache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

func (c *DCache) lineMask() uint64 {
	return uint64(c.config.BlockSize - 1)
}

// key builds the directory address for a line accessed through va.
func (c *DCache) key(va, pa uint64) uint64 {
	return (pa/tlb.PageSize)*c.span + (va%c.span)&^c.lineMask()
}

func (c *DCache) variantKey(pa, variant uint64) uint64 {
	return (pa/tlb.PageSize)*c.span + variant*tlb.PageSize + (pa%tlb.PageSize)&^c.lineMask()
}

// physical recovers the physical line address from a directory key.
func (c *DCache) physical(key uint64) uint64 {
	return (key/c.span)*tlb.PageSize + key%tlb.PageSize
}

func (c *DCache) lookup(pa uint64) *akitacache.Block {
	for v := range c.variants {
		block := c.directory.Lookup(0, c.variantKey(pa, v))
		if block != nil && block.IsValid {
			return block
		}
	}
	return nil
}

// Fetch reports whether the line holding pa is present at any index
// variant.
func (c *DCache) Fetch(va, pa uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lookup(pa) != nil
}

// Fill brings the line holding pa into the index selected by va. A dirty
// victim is written back first.
func (c *DCache) Fill(va, pa uint64) AccessResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if block := c.lookup(pa); block != nil {
		return AccessResult{Hit: true}
	}
	_, result := c.fill(va, pa)
	return result
}

func (c *DCache) fill(va, pa uint64) (*akitacache.Block, AccessResult) {
	result := AccessResult{}
	key := c.key(va, pa)

	victim := c.directory.FindVictim(key)
	victimData := c.dataStore[c.blockIndex(victim)]

	if victim.IsValid {
		c.stats.Evictions++
		result.Evicted = true
		result.EvictedAddr = c.physical(victim.Tag)

		if victim.IsDirty && c.backing != nil {
			c.stats.Writebacks++
			c.backing.Write(result.EvictedAddr, victimData)
		}
	}

	if c.backing != nil {
		copy(victimData, c.backing.Read(pa&^c.lineMask(), c.config.BlockSize))
	} else {
		clear(victimData)
	}

	victim.Tag = key
	victim.IsValid = true
	victim.IsDirty = false
	c.directory.Visit(victim)

	return victim, result
}

func (c *DCache) access(va, pa uint64) (*akitacache.Block, AccessResult) {
	if block := c.lookup(pa); block != nil {
		c.stats.Hits++
		c.directory.Visit(block)
		return block, AccessResult{Hit: true}
	}

	c.stats.Misses++
	return c.fill(va, pa)
}

// Read loads size bytes at pa, filling the line on a miss.
func (c *DCache) Read(va, pa uint64, size int) AccessResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Reads++
	block, result := c.access(va, pa)
	result.Data = extractData(c.dataStore[c.blockIndex(block)], pa&c.lineMask(), size)
	return result
}

// Write stores size bytes at pa. Write misses allocate the line.
func (c *DCache) Write(va, pa uint64, size int, value uint64) AccessResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Writes++
	block, result := c.access(va, pa)
	storeData(c.dataStore[c.blockIndex(block)], pa&c.lineMask(), size, value)
	block.IsDirty = true
	return result
}

// Invalidate drops the line holding pa without writing it back.
func (c *DCache) Invalidate(pa uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if block := c.lookup(pa); block != nil {
		block.IsValid = false
		block.IsDirty = false
	}
}

// Flush writes back all dirty lines and invalidates every line.
func (c *DCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty && c.backing != nil {
				c.backing.Write(c.physical(block.Tag), c.dataStore[c.blockIndex(block)])
				c.stats.Writebacks++
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}
}

// Reset invalidates all lines without writeback.
func (c *DCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.directory.Reset()
	c.victims.Reset()
	c.stats = Statistics{}
}
