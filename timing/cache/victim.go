package cache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// RoundRobinVictimFinder picks the way to replace in a set. An invalid way
// among the enabled ones is used first; otherwise each set keeps a
// round-robin pointer that advances after every eviction.
type RoundRobinVictimFinder struct {
	enabledWays int
	next        map[int]int
}

// NewRoundRobinVictimFinder creates a victim finder that allocates only the
// first enabledWays ways of each set.
func NewRoundRobinVictimFinder(enabledWays int) *RoundRobinVictimFinder {
	if enabledWays <= 0 {
		panic("cache: at least one way must be enabled")
	}
	return &RoundRobinVictimFinder{
		enabledWays: enabledWays,
		next:        make(map[int]int),
	}
}

// FindVictim returns the block to fill in set.
func (f *RoundRobinVictimFinder) FindVictim(set *akitacache.Set) *akitacache.Block {
	ways := min(f.enabledWays, len(set.Blocks))
	for _, block := range set.Blocks[:ways] {
		if !block.IsValid {
			return block
		}
	}

	setID := set.Blocks[0].SetID
	way := f.next[setID] % ways
	f.next[setID] = (way + 1) % ways
	return set.Blocks[way]
}

// Reset returns every set's pointer to way 0.
func (f *RoundRobinVictimFinder) Reset() {
	clear(f.next)
}
