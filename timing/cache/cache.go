// Package cache models the EV6 first-level caches on top of the Akita cache
// directory: a virtually indexed, virtually tagged instruction cache and a
// virtually indexed, physically tagged data cache.
package cache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Config holds cache configuration parameters.
type Config struct {
	// Size in bytes
	Size int `json:"size"`
	// Associativity (number of ways)
	Associativity int `json:"associativity"`
	// BlockSize in bytes (cache line size)
	BlockSize int `json:"block_size"`
	// EnabledWays is the number of ways allocated on fill. Zero enables all.
	EnabledWays int `json:"enabled_ways"`
}

// DefaultICacheConfig returns the 21264 instruction cache geometry:
// 64KB, 2-way, 64B lines.
func DefaultICacheConfig() Config {
	return Config{
		Size:          64 * 1024,
		Associativity: 2,
		BlockSize:     64,
		EnabledWays:   2,
	}
}

// DefaultDCacheConfig returns the 21264 data cache geometry:
// 64KB, 2-way, 64B lines.
func DefaultDCacheConfig() Config {
	return Config{
		Size:          64 * 1024,
		Associativity: 2,
		BlockSize:     64,
		EnabledWays:   2,
	}
}

// NumSets returns the number of sets.
func (c Config) NumSets() int {
	return c.Size / (c.Associativity * c.BlockSize)
}

// Ways returns the number of ways that may be allocated.
func (c Config) Ways() int {
	if c.EnabledWays <= 0 || c.EnabledWays > c.Associativity {
		return c.Associativity
	}
	return c.EnabledWays
}

// Statistics holds cache performance statistics.
type Statistics struct {
	Reads      uint64
	Writes     uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
}

// HitRate returns hits over all accesses.
func (s Statistics) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// BackingStore interface for the next level in the memory hierarchy.
type BackingStore interface {
	// Read fetches data from the backing store.
	Read(addr uint64, size int) []byte
	// Write stores data to the backing store.
	Write(addr uint64, data []byte)
}

// AccessResult contains the result of a data cache access.
type AccessResult struct {
	// Hit indicates whether the line was present.
	Hit bool
	// Data is the data read (for load operations).
	Data uint64
	// Evicted is true if a valid line was replaced.
	Evicted bool
	// EvictedAddr is the physical address of the replaced line.
	EvictedAddr uint64
}

func newDirectory(config Config) (*akitacache.DirectoryImpl, *RoundRobinVictimFinder) {
	victims := NewRoundRobinVictimFinder(config.Ways())
	directory := akitacache.NewDirectory(
		config.NumSets(),
		config.Associativity,
		config.BlockSize,
		victims,
	)
	return directory, victims
}

// extractData extracts a little-endian value of the given size.
func extractData(data []byte, offset uint64, size int) uint64 {
	if data == nil || int(offset)+size > len(data) {
		return 0
	}

	var result uint64
	for i := 0; i < size; i++ {
		result |= uint64(data[int(offset)+i]) << (i * 8)
	}
	return result
}

// storeData stores a little-endian value of the given size.
func storeData(data []byte, offset uint64, size int, value uint64) {
	if data == nil || int(offset)+size > len(data) {
		return
	}

	for i := 0; i < size; i++ {
		data[int(offset)+i] = byte(value >> (i * 8))
	}
}
