package pipeline

import (
	"sync"

	"github.com/sarchlab/ev6sim/timing/ring"
)

// Predictor table geometry.
const (
	localHistoryEntries = 1024
	localHistoryBits    = 10
	globalEntries       = 4096
	pathBits            = 12

	localMax  = 7 // 3-bit counter
	globalMax = 3 // 2-bit counter
	choiceMax = 3
)

// BranchPredictorConfig holds configuration for the branch predictor.
type BranchPredictorConfig struct {
	// Static disables the dynamic tables; every branch predicts not-taken.
	Static bool
	// BTBSize is the number of entries in the Branch Target Buffer.
	// Must be a power of 2. Default is 256.
	BTBSize uint32
	// ReturnStackDepth is the depth of the return address stack. Default
	// is 32.
	ReturnStackDepth int
}

// DefaultBranchPredictorConfig returns a default configuration.
func DefaultBranchPredictorConfig() BranchPredictorConfig {
	return BranchPredictorConfig{
		BTBSize:          256,
		ReturnStackDepth: 32,
	}
}

// BranchPredictorStats holds statistics for the branch predictor.
type BranchPredictorStats struct {
	// Predictions is the number of resolved conditional branch predictions.
	Predictions uint64
	// Correct is the number of correct predictions.
	Correct uint64
	// Mispredictions is the number of incorrect predictions.
	Mispredictions uint64
	// ChoseGlobal counts predictions where the choice predictor picked the
	// global prediction over a disagreeing local one.
	ChoseGlobal uint64
	// BTBHits is the number of BTB hits.
	BTBHits uint64
	// BTBMisses is the number of BTB misses.
	BTBMisses uint64
	// ReturnHits counts RET targets supplied by the return stack.
	ReturnHits uint64
}

// Accuracy returns the prediction accuracy as a percentage.
func (s BranchPredictorStats) Accuracy() float64 {
	if s.Predictions == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Predictions) * 100
}

// MispredictionRate returns the misprediction rate as a percentage.
func (s BranchPredictorStats) MispredictionRate() float64 {
	if s.Predictions == 0 {
		return 0
	}
	return float64(s.Mispredictions) / float64(s.Predictions) * 100
}

// BTBHitRate returns the BTB hit rate as a percentage.
func (s BranchPredictorStats) BTBHitRate() float64 {
	total := s.BTBHits + s.BTBMisses
	if total == 0 {
		return 0
	}
	return float64(s.BTBHits) / float64(total) * 100
}

// Prediction is the outcome of a conditional branch prediction together
// with the table indices it was read from, so that the resolution updates
// the same entries.
type Prediction struct {
	// Taken is the final prediction.
	Taken bool
	// Local and Global are the component predictions.
	Local  bool
	Global bool
	// UseGlobal is set when the choice predictor preferred the global
	// prediction.
	UseGlobal bool
	// Static marks a prediction made with the tables disabled.
	Static bool

	LHTIndex   int
	LocalIndex int
	PathIndex  int

	// Target is the predicted target address (if known from BTB).
	Target uint64
	// TargetKnown indicates whether the target address is known.
	TargetKnown bool
}

// BranchPredictor is a tournament predictor: a per-branch local history
// predictor and a global path predictor, arbitrated by a choice predictor.
// Indirect jump targets come from a Branch Target Buffer and returns from a
// return address stack.
type BranchPredictor struct {
	mu sync.Mutex

	static bool

	// Local history table, indexed by PC.
	lht [localHistoryEntries]uint16
	// 3-bit counters indexed by local history.
	local [1 << localHistoryBits]uint8
	// 2-bit counters indexed by path history.
	global [globalEntries]uint8
	choice [globalEntries]uint8
	path   uint16

	// Branch Target Buffer (BTB)
	// Maps PC to target address
	btb      []btbEntry
	btbValid []bool
	btbSize  uint32

	ras *ring.Ring[uint64]

	// Statistics
	stats BranchPredictorStats
}

// btbEntry represents an entry in the Branch Target Buffer.
type btbEntry struct {
	pc     uint64 // The PC of the jump instruction
	target uint64 // The target address
}

// NewBranchPredictor creates a new branch predictor with the given configuration.
func NewBranchPredictor(config BranchPredictorConfig) *BranchPredictor {
	btbSize := config.BTBSize
	depth := config.ReturnStackDepth

	// Default sizes if not specified
	if btbSize == 0 {
		btbSize = 256
	}
	if depth <= 0 {
		depth = 32
	}

	bp := &BranchPredictor{
		static:   config.Static,
		btb:      make([]btbEntry, btbSize),
		btbValid: make([]bool, btbSize),
		btbSize:  btbSize,
		ras:      ring.New[uint64](depth),
	}
	bp.resetTables()

	return bp
}

func (bp *BranchPredictor) resetTables() {
	bp.lht = [localHistoryEntries]uint16{}
	bp.path = 0

	// Weakly not-taken everywhere; the choice starts weakly on local.
	for i := range bp.local {
		bp.local[i] = 3
	}
	for i := range bp.global {
		bp.global[i] = 1
		bp.choice[i] = 1
	}
}

func lhtIndex(pc uint64) int {
	return int(pc>>2) & (localHistoryEntries - 1)
}

// btbIndex computes the BTB index for a given PC.
func (bp *BranchPredictor) btbIndex(pc uint64) uint32 {
	return uint32((pc >> 2) & uint64(bp.btbSize-1))
}

// Predict predicts the direction of the conditional branch at pc.
func (bp *BranchPredictor) Predict(pc uint64) Prediction {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if bp.static {
		return Prediction{Static: true}
	}

	pred := Prediction{
		LHTIndex:  lhtIndex(pc),
		PathIndex: int(bp.path),
	}
	pred.LocalIndex = int(bp.lht[pred.LHTIndex])
	pred.Local = bp.local[pred.LocalIndex] >= 4
	pred.Global = bp.global[pred.PathIndex] >= 2
	pred.UseGlobal = bp.choice[pred.PathIndex] >= 2

	switch {
	case pred.Local == pred.Global:
		pred.Taken = pred.Local
	case pred.UseGlobal:
		pred.Taken = pred.Global
		bp.stats.ChoseGlobal++
	default:
		pred.Taken = pred.Local
	}

	return pred
}

// Resolve trains the tables read by pred with the actual outcome.
func (bp *BranchPredictor) Resolve(pred Prediction, taken bool) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	bp.stats.Predictions++
	if pred.Taken == taken {
		bp.stats.Correct++
	} else {
		bp.stats.Mispredictions++
	}
	if pred.Static {
		return
	}

	bp.local[pred.LocalIndex] = saturate(bp.local[pred.LocalIndex], taken, localMax)
	bp.global[pred.PathIndex] = saturate(bp.global[pred.PathIndex], taken, globalMax)

	if pred.Local != pred.Global {
		bp.choice[pred.PathIndex] = saturate(bp.choice[pred.PathIndex], pred.Global == taken, choiceMax)
	}

	bit := uint16(0)
	if taken {
		bit = 1
	}
	h := &bp.lht[pred.LHTIndex]
	*h = (*h<<1 | bit) & (1<<localHistoryBits - 1)
	bp.path = (bp.path<<1 | bit) & (1<<pathBits - 1)
}

func saturate(counter uint8, up bool, limit uint8) uint8 {
	if up {
		if counter < limit {
			return counter + 1
		}
		return counter
	}
	if counter > 0 {
		return counter - 1
	}
	return counter
}

// PredictTarget looks up the target of an indirect jump at pc.
func (bp *BranchPredictor) PredictTarget(pc uint64) (uint64, bool) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	i := bp.btbIndex(pc)
	if bp.btbValid[i] && bp.btb[i].pc == pc {
		bp.stats.BTBHits++
		return bp.btb[i].target, true
	}
	bp.stats.BTBMisses++
	return 0, false
}

// UpdateTarget records the resolved target of an indirect jump.
func (bp *BranchPredictor) UpdateTarget(pc, target uint64) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	i := bp.btbIndex(pc)
	bp.btb[i] = btbEntry{pc: pc, target: target}
	bp.btbValid[i] = true
}

// PushReturn records the return address of a subroutine call. The oldest
// entry is dropped when the stack is full.
func (bp *BranchPredictor) PushReturn(addr uint64) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.ras.PushBackOverwrite(addr)
}

// PopReturn predicts the target of a return.
func (bp *BranchPredictor) PopReturn() (uint64, bool) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	addr, ok := bp.ras.PopBack()
	if ok {
		bp.stats.ReturnHits++
	}
	return addr, ok
}

// ChoiceCounter returns the choice counter at a path history value.
func (bp *BranchPredictor) ChoiceCounter(path int) uint8 {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.choice[path&(globalEntries-1)]
}

// LocalCounter returns the local counter for a local history value.
func (bp *BranchPredictor) LocalCounter(history int) uint8 {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.local[history&(1<<localHistoryBits-1)]
}

// GlobalCounter returns the global counter at a path history value.
func (bp *BranchPredictor) GlobalCounter(path int) uint8 {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.global[path&(globalEntries-1)]
}

// PathHistory returns the global path history.
func (bp *BranchPredictor) PathHistory() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return int(bp.path)
}

// LocalHistory returns the local history of the branch at pc.
func (bp *BranchPredictor) LocalHistory(pc uint64) int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return int(bp.lht[lhtIndex(pc)])
}

// Stats returns the branch predictor statistics.
func (bp *BranchPredictor) Stats() BranchPredictorStats {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.stats
}

// Reset clears all predictor state and statistics.
func (bp *BranchPredictor) Reset() {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	bp.resetTables()
	for i := range bp.btbValid {
		bp.btbValid[i] = false
	}
	bp.ras.Clear()
	bp.stats = BranchPredictorStats{}
}
