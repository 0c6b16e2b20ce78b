// Package pipeline models the out-of-order core: fetch, rename, issue
// queues, the six execution pipes and in-order retirement.
package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/ev6sim/emu"
	"github.com/sarchlab/ev6sim/insts"
	"github.com/sarchlab/ev6sim/timing/cache"
	"github.com/sarchlab/ev6sim/timing/config"
	"github.com/sarchlab/ev6sim/timing/ring"
	"github.com/sarchlab/ev6sim/timing/tlb"
)

// ErrMaxInstructions is returned by Run when the retirement limit is hit.
var ErrMaxInstructions = errors.New("instruction limit reached")

// Statistics holds pipeline performance statistics.
type Statistics struct {
	// Instructions is the number of instructions retired.
	Instructions uint64
	// Fetched is the number of instructions dispatched into the ROB.
	Fetched uint64
	// Stalls is the number of fetch groups held back for lack of
	// resources.
	Stalls uint64
	// Flushes is the number of pipeline flushes.
	Flushes uint64
	// Squashed is the number of instructions aborted by flushes.
	Squashed uint64
	// Exceptions is the number of faults delivered to PALcode.
	Exceptions uint64
	// PALCalls is the number of CALL_PAL instructions retired.
	PALCalls uint64
	// BranchPredictions is the number of conditional branches retired.
	BranchPredictions uint64
	// BranchMispredictions is the number of control transfers that
	// redirected fetch at retirement.
	BranchMispredictions uint64
	// LoadsForwarded counts loads served from the store queue.
	LoadsForwarded uint64
}

// BranchAccuracy returns the fraction of retired conditional branches and
// jumps that were predicted correctly, as a percentage.
func (s Statistics) BranchAccuracy() float64 {
	if s.BranchPredictions == 0 {
		return 0
	}
	correct := s.BranchPredictions - min(s.BranchMispredictions, s.BranchPredictions)
	return float64(correct) / float64(s.BranchPredictions) * 100
}

// PipelineOption is a functional option for configuring the Pipeline.
type PipelineOption func(*Pipeline)

// WithPALHandler sets the PALcode entry handler.
func WithPALHandler(handler PALHandler) PipelineOption {
	return func(p *Pipeline) {
		p.pal = handler
	}
}

// WithLogger sets the logger for flushes, exceptions and PAL entries.
func WithLogger(log *logrus.Entry) PipelineOption {
	return func(p *Pipeline) {
		p.log = log
	}
}

// WithProcessContext sets the processor mode and address space number
// used by instruction and data translation. The core resets into kernel
// mode with ASN 0.
func WithProcessContext(mode insts.Mode, asn uint8) PipelineOption {
	return func(p *Pipeline) {
		p.mode = mode
		p.asn = asn
	}
}

// WithTranslator replaces the translation buffers built from the boot
// configuration.
func WithTranslator(t *tlb.Translator) PipelineOption {
	return func(p *Pipeline) {
		p.translator = t
	}
}

// Pipeline is the out-of-order core. Run drives it with one goroutine for
// fetch, one per execution pipe and one for retirement.
//
// Lock order: frontMu, robMu, queue locks, register lock, store queue lock.
// Cache, translation buffer and predictor locks are leaves.
type Pipeline struct {
	decoder    *insts.Decoder
	memory     *emu.Memory
	icache     *cache.ICache
	dcache     *cache.DCache
	translator *tlb.Translator
	predictor  *BranchPredictor
	renamer    *Renamer
	iq, fq     *Queue
	sq         *StoreQueue
	pal        PALHandler
	log        *logrus.Entry

	fetchWidth      int
	palBase         uint64
	maxInstructions uint64

	// Front end, guarded by frontMu.
	frontMu      sync.Mutex
	fetchPC      insts.PC
	fetchStopped bool
	mode         insts.Mode
	asn          uint8

	// Reorder buffer, guarded by robMu.
	robMu  sync.Mutex
	rob    *ring.Ring[*Instruction]
	nextID uint64

	fpcr    atomic.Uint64
	retired atomic.Uint64

	// completeCh wakes retirement; resourceCh wakes a stalled fetch.
	completeCh chan struct{}
	resourceCh chan struct{}

	statsMu  sync.Mutex
	stats    Statistics
	exitCode int64
}

// NewPipeline builds a core from a boot configuration over memory.
func NewPipeline(cfg *config.BootConfig, memory *emu.Memory, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		decoder:         insts.NewDecoder(),
		memory:          memory,
		fetchWidth:      cfg.FetchWidth,
		palBase:         cfg.PALBase,
		maxInstructions: cfg.MaxInstructions,
		mode:            insts.ModeKernel,
		rob:             ring.New[*Instruction](cfg.ROBSize),
		completeCh:      make(chan struct{}, 1),
		resourceCh:      make(chan struct{}, 1),
		pal:             haltOnlyPAL,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.log == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		p.log = logrus.NewEntry(logger)
	}
	if p.translator == nil {
		p.translator = tlb.NewTranslator(tlb.New(cfg.ITBSize), tlb.New(cfg.DTBSize), tlb.Config{
			SuperPages: cfg.SuperPages,
			VA48:       cfg.VA48,
		})
	}

	backing := cache.NewMemoryBacking(memory)
	p.icache = cache.NewICache(cfg.ICache, p.translator, backing)
	p.dcache = cache.NewDCache(cfg.DCache, backing)
	p.predictor = NewBranchPredictor(BranchPredictorConfig{
		Static:           cfg.StaticPrediction,
		ReturnStackDepth: cfg.ReturnStackDepth,
	})
	p.renamer = NewRenamer(cfg.IntPhysRegs, cfg.FloatPhysRegs, cfg.PALShadow)
	p.iq = NewQueue("IQ", cfg.IQSize, p.ready)
	p.fq = NewQueue("FQ", cfg.FQSize, p.ready)
	p.sq = NewStoreQueue(cfg.StoreQueueSize)

	return p
}

// ready reports whether a queued instruction may issue. Loads also wait for
// every older store to compute its address.
func (p *Pipeline) ready(inst *Instruction) bool {
	if !p.renamer.Ready(inst) {
		return false
	}
	if inst.Class() == insts.ClassLoad && p.sq.HasUnresolvedBefore(inst) {
		return false
	}
	return true
}

// ICache returns the instruction cache.
func (p *Pipeline) ICache() *cache.ICache { return p.icache }

// DCache returns the data cache.
func (p *Pipeline) DCache() *cache.DCache { return p.dcache }

// Translator returns the address translator.
func (p *Pipeline) Translator() *tlb.Translator { return p.translator }

// Predictor returns the branch predictor.
func (p *Pipeline) Predictor() *BranchPredictor { return p.predictor }

// Renamer returns the register renamer.
func (p *Pipeline) Renamer() *Renamer { return p.renamer }

// Registers returns the architectural register view.
func (p *Pipeline) Registers() *ArchRegisters {
	return &ArchRegisters{renamer: p.renamer}
}

// SetPC sets the address of the next instruction to fetch.
func (p *Pipeline) SetPC(pc uint64) {
	p.frontMu.Lock()
	defer p.frontMu.Unlock()
	p.fetchPC = insts.NewPC(pc, false)
	p.fetchStopped = false
}

// PC returns the next fetch address.
func (p *Pipeline) PC() insts.PC {
	p.frontMu.Lock()
	defer p.frontMu.Unlock()
	return p.fetchPC
}

// FPCR returns the floating-point control register.
func (p *Pipeline) FPCR() emu.FPCR {
	return emu.FPCR(p.fpcr.Load())
}

// ExitCode returns R0 at the time the core halted.
func (p *Pipeline) ExitCode() int64 {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.exitCode
}

// Stats returns a snapshot of the pipeline statistics.
func (p *Pipeline) Stats() Statistics {
	p.statsMu.Lock()
	s := p.stats
	p.statsMu.Unlock()

	s.LoadsForwarded = p.sq.Forwarded()
	return s
}

func (p *Pipeline) count(f func(s *Statistics)) {
	p.statsMu.Lock()
	f(&p.stats)
	p.statsMu.Unlock()
}

// InFlight returns the number of instructions in the reorder buffer.
func (p *Pipeline) InFlight() int {
	p.robMu.Lock()
	defer p.robMu.Unlock()
	return p.rob.Len()
}

func (p *Pipeline) ringComplete() {
	select {
	case p.completeCh <- struct{}{}:
	default:
	}
}

func (p *Pipeline) ringResource() {
	select {
	case p.resourceCh <- struct{}{}:
	default:
	}
}

// Run executes until a PAL handler halts the core, an error occurs or ctx
// is done. A halt returns nil.
func (p *Pipeline) Run(ctx context.Context) error {
	p.iq.Open()
	p.fq.Open()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		p.iq.Close()
		p.fq.Close()
		return nil
	})
	g.Go(func() error { return p.fetchLoop(gctx) })
	for pipe := PipeU0; pipe < numPipes; pipe++ {
		g.Go(func() error { return p.pipeLoop(gctx, pipe) })
	}
	g.Go(func() error { return p.retireLoop(gctx) })

	err := g.Wait()
	if errors.Is(err, ErrHalted) {
		p.log.WithField("exit_code", p.ExitCode()).Debug("core halted")
		return nil
	}
	return err
}
