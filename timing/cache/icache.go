package cache

import (
	"encoding/binary"
	"sync"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
	"github.com/sarchlab/akita/v4/mem/vm"

	"github.com/sarchlab/ev6sim/insts"
	"github.com/sarchlab/ev6sim/timing/tlb"
)

// Lines are tagged with an address-space identifier carried in the
// directory's PID field. Global lines and PALcode lines get their own
// identifiers outside the 8-bit ASN range.
const (
	globalPID vm.PID = 1 << 16
	palPID    vm.PID = 1 << 17
)

// FetchStatus is the outcome of an instruction fetch probe.
type FetchStatus int

// Fetch outcomes.
const (
	// FetchHit means the line was present and the instructions are returned.
	FetchHit FetchStatus = iota
	// FetchMiss means the address translates but the line must be filled.
	FetchMiss
	// FetchWayMiss means the address could not be translated, or the
	// mapping forbids execution. Exception names the fault.
	FetchWayMiss
)

func (s FetchStatus) String() string {
	switch s {
	case FetchHit:
		return "hit"
	case FetchMiss:
		return "miss"
	case FetchWayMiss:
		return "way-miss"
	}
	return "unknown"
}

// FetchResult is returned by ICache.FetchLine.
type FetchResult struct {
	Status FetchStatus
	// Instructions holds the words from the PC to the end of its aligned
	// four-instruction fetch block.
	Instructions []uint32
	// PA is the physical address of the PC on a hit or a miss.
	PA        uint64
	Exception insts.Exception
}

type iline struct {
	pa   uint64
	prot tlb.Protection
}

// ICache is a virtually indexed, virtually tagged instruction cache. Lines
// remember the protection of the page they were filled from, so a hit needs
// no ITB access.
type ICache struct {
	mu         sync.Mutex
	config     Config
	directory  *akitacache.DirectoryImpl
	victims    *RoundRobinVictimFinder
	dataStore  [][]uint32
	lines      []iline
	translator *tlb.Translator
	backing    BackingStore
	stats      Statistics
}

// NewICache creates an instruction cache.
func NewICache(config Config, translator *tlb.Translator, backing BackingStore) *ICache {
	totalBlocks := config.NumSets() * config.Associativity

	dataStore := make([][]uint32, totalBlocks)
	for i := range dataStore {
		dataStore[i] = make([]uint32, config.BlockSize/4)
	}

	directory, victims := newDirectory(config)
	return &ICache{
		config:     config,
		directory:  directory,
		victims:    victims,
		dataStore:  dataStore,
		lines:      make([]iline, totalBlocks),
		translator: translator,
		backing:    backing,
	}
}

// Config returns the cache configuration.
func (c *ICache) Config() Config {
	return c.config
}

// Stats returns cache statistics.
func (c *ICache) Stats() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// ResetStats clears cache statistics.
func (c *ICache) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = Statistics{}
}

func (c *ICache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

func (c *ICache) lineAddr(va uint64) uint64 {
	return va &^ uint64(c.config.BlockSize-1)
}

func (c *ICache) lookup(lineVA uint64, ctx tlb.Context) *akitacache.Block {
	if ctx.PAL {
		return c.directory.Lookup(palPID, lineVA)
	}
	if block := c.directory.Lookup(vm.PID(ctx.ASN), lineVA); block != nil {
		return block
	}
	return c.directory.Lookup(globalPID, lineVA)
}

// FetchLine probes the cache for the fetch block containing pc.
func (c *ICache) FetchLine(pc insts.PC, ctx tlb.Context) FetchResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Reads++
	va := pc.Address()
	ctx.PAL = ctx.PAL || pc.PALMode()

	block := c.lookup(c.lineAddr(va), ctx)
	if block != nil && block.IsValid {
		line := c.lines[c.blockIndex(block)]
		if !ctx.PAL && !tlb.CanExecute(line.prot, ctx.Mode) {
			return FetchResult{Status: FetchWayMiss, Exception: insts.ExcIACV}
		}

		c.stats.Hits++
		c.directory.Visit(block)
		offset := va & uint64(c.config.BlockSize-1)
		return FetchResult{
			Status:       FetchHit,
			Instructions: c.fetchBlock(block, offset),
			PA:           line.pa + offset,
		}
	}

	c.stats.Misses++
	pa, exc := c.translator.TranslateInstruction(va, ctx)
	if exc != insts.ExcNone {
		return FetchResult{Status: FetchWayMiss, Exception: exc}
	}
	return FetchResult{Status: FetchMiss, PA: pa}
}

func (c *ICache) fetchBlock(block *akitacache.Block, offset uint64) []uint32 {
	words := c.dataStore[c.blockIndex(block)]
	first := int(offset >> 2)
	last := first | 3
	out := make([]uint32, last-first+1)
	copy(out, words[first:last+1])
	return out
}

// Fill brings the line containing pc into the cache. It re-translates the
// address and returns the fault if the mapping has gone away.
func (c *ICache) Fill(pc insts.PC, ctx tlb.Context) insts.Exception {
	c.mu.Lock()
	defer c.mu.Unlock()

	va := pc.Address()
	ctx.PAL = ctx.PAL || pc.PALMode()
	lineVA := c.lineAddr(va)

	mapping, exc := c.translator.InstructionMapping(va, ctx)
	if exc != insts.ExcNone {
		return exc
	}

	if block := c.lookup(lineVA, ctx); block != nil && block.IsValid {
		return insts.ExcNone
	}

	victim := c.directory.FindVictim(lineVA)
	if victim.IsValid {
		c.stats.Evictions++
	}

	linePA := c.lineAddr(mapping.PA)
	words := c.dataStore[c.blockIndex(victim)]
	raw := c.backing.Read(linePA, c.config.BlockSize)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}

	switch {
	case ctx.PAL:
		victim.PID = palPID
	case mapping.Global:
		victim.PID = globalPID
	default:
		victim.PID = vm.PID(ctx.ASN)
	}
	victim.Tag = lineVA
	victim.IsValid = true
	victim.IsDirty = false
	c.lines[c.blockIndex(victim)] = iline{pa: linePA, prot: mapping.Prot}
	c.directory.Visit(victim)

	return insts.ExcNone
}

// Flush invalidates every line. It backs the IMB PALcode call.
func (c *ICache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			block.IsValid = false
		}
	}
}

// FlushASN invalidates the non-global lines of one address space.
func (c *ICache) FlushASN(asn uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.PID == vm.PID(asn) {
				block.IsValid = false
			}
		}
	}
}

// Reset invalidates all lines and clears statistics.
func (c *ICache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.directory.Reset()
	c.victims.Reset()
	c.stats = Statistics{}
}
