// Package core assembles a complete simulated CPU from a boot configuration.
// It owns the memory, the page table used by the default PALcode, the
// logger, and the pipeline, and serializes Run against Reset.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/sarchlab/akita/v4/mem/vm"
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/ev6sim/emu"
	"github.com/sarchlab/ev6sim/insts"
	"github.com/sarchlab/ev6sim/loader"
	"github.com/sarchlab/ev6sim/timing/cache"
	"github.com/sarchlab/ev6sim/timing/config"
	"github.com/sarchlab/ev6sim/timing/pipeline"
	"github.com/sarchlab/ev6sim/timing/tlb"
)

// Core errors.
var (
	// ErrRunning is returned when the core is asked to start or reset while
	// it is already running.
	ErrRunning = errors.New("core is running")
	// ErrHalted is returned by Run after the core has halted. Reset clears
	// it.
	ErrHalted = errors.New("core has halted")
)

// Register conventions used when a program is loaded.
const (
	regPV uint8 = 27
	regGP uint8 = 29
	regSP uint8 = 30
)

// Stats holds performance statistics for the core.
type Stats struct {
	Pipeline  pipeline.Statistics
	Predictor pipeline.BranchPredictorStats
	ICache    cache.Statistics
	DCache    cache.Statistics
	ITB       tlb.Stats
	DTB       tlb.Stats
	// Elapsed is the wall-clock time spent in Run.
	Elapsed time.Duration
}

// Option configures a Core.
type Option func(*Core)

// WithLogger sets the logger. Entries carry the core's ID.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Core) {
		c.logger = logger
	}
}

// WithOutput sets the writers behind file descriptors 1 and 2.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(c *Core) {
		c.stdout = stdout
		c.stderr = stderr
	}
}

// WithStdin sets the reader behind file descriptor 0.
func WithStdin(stdin io.Reader) Option {
	return func(c *Core) {
		c.stdin = stdin
	}
}

// WithSyscallHandler replaces the system call handler used by the default
// PALcode.
func WithSyscallHandler(handler emu.SyscallHandler) Option {
	return func(c *Core) {
		c.syscalls = handler
	}
}

// WithPALHandler replaces the default PALcode. The handler can delegate to
// Core.PAL for the services it does not implement.
func WithPALHandler(handler pipeline.PALHandler) Option {
	return func(c *Core) {
		c.palOverride = handler
	}
}

// WithPageTable sets the page table consulted on translation misses.
func WithPageTable(pages vm.PageTable) Option {
	return func(c *Core) {
		c.pages = pages
	}
}

// WithProcessContext sets the mode and address space the program runs in.
// The default is kernel mode, ASN 0.
func WithProcessContext(mode insts.Mode, asn uint8) Option {
	return func(c *Core) {
		c.mode = mode
		c.asn = asn
	}
}

// WithStrictPaging makes translation misses on unmapped pages fail instead
// of mapping the page onto the same physical address.
func WithStrictPaging() Option {
	return func(c *Core) {
		c.strict = true
	}
}

// Core is one simulated CPU.
type Core struct {
	id     xid.ID
	cfg    *config.BootConfig
	memory *emu.Memory
	pages  vm.PageTable
	logger *logrus.Logger
	log    *logrus.Entry

	stdin          io.Reader
	stdout, stderr io.Writer
	syscalls       emu.SyscallHandler
	palOverride    pipeline.PALHandler
	mode           insts.Mode
	asn            uint8
	strict         bool

	// mu guards the fields below. It is not held while the pipeline runs.
	mu      sync.Mutex
	pipe    *pipeline.Pipeline
	pal     *DefaultPAL
	running bool
	halted  bool
	elapsed time.Duration
}

// New builds a core over memory. The configuration is validated and copied.
func New(cfg *config.BootConfig, memory *emu.Memory, opts ...Option) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid boot config: %w", err)
	}

	c := &Core{
		id:     xid.New(),
		cfg:    cfg.Clone(),
		memory: memory,
		stdout: os.Stdout,
		stderr: os.Stderr,
		mode:   insts.ModeKernel,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.SetOutput(io.Discard)
	}
	c.log = c.logger.WithField("core", c.id.String())

	if c.pages == nil {
		c.pages = vm.NewPageTable(tlb.PageShift)
	}

	c.build()

	c.log.WithFields(logrus.Fields{
		"int_regs": c.cfg.IntPhysRegs,
		"fp_regs":  c.cfg.FloatPhysRegs,
		"iq":       c.cfg.IQSize,
		"fq":       c.cfg.FQSize,
		"rob":      c.cfg.ROBSize,
	}).Debug("core built")

	return c, nil
}

// build creates a fresh pipeline and PAL. Callers hold mu or own c
// exclusively.
func (c *Core) build() {
	c.pal = newDefaultPAL(c)

	var handler pipeline.PALHandler = c.pal
	if c.palOverride != nil {
		handler = c.palOverride
	}

	c.pipe = pipeline.NewPipeline(c.cfg, c.memory,
		pipeline.WithPALHandler(handler),
		pipeline.WithLogger(c.log),
		pipeline.WithProcessContext(c.mode, c.asn),
	)
	c.pal.attach(c.pipe)
}

// ID returns the core's unique identifier.
func (c *Core) ID() xid.ID { return c.id }

// Config returns a copy of the boot configuration.
func (c *Core) Config() *config.BootConfig { return c.cfg.Clone() }

// Memory returns the physical memory.
func (c *Core) Memory() *emu.Memory { return c.memory }

// PageTable returns the page table used for translation refills.
func (c *Core) PageTable() vm.PageTable { return c.pages }

// Pipeline returns the current pipeline. Reset replaces it.
func (c *Core) Pipeline() *pipeline.Pipeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pipe
}

// PAL returns the default PALcode.
func (c *Core) PAL() *DefaultPAL {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pal
}

// Registers returns the architectural registers. They are only meaningful
// while the core is not running.
func (c *Core) Registers() *pipeline.ArchRegisters {
	return c.Pipeline().Registers()
}

// SetPC sets the address of the next instruction to fetch.
func (c *Core) SetPC(pc uint64) {
	c.Pipeline().SetPC(pc)
}

// MapPage maps the page holding va onto the page holding pa in the core's
// address space.
func (c *Core) MapPage(va, pa uint64) {
	page := vm.Page{
		PID:      vm.PID(c.asn),
		VAddr:    va &^ (tlb.PageSize - 1),
		PAddr:    pa &^ (tlb.PageSize - 1),
		PageSize: tlb.PageSize,
		Valid:    true,
	}

	if _, found := c.pages.Find(page.PID, page.VAddr); found {
		c.pages.Update(page)
		return
	}
	c.pages.Insert(page)
}

// LoadProgram installs prog in memory, maps its pages onto the same
// physical addresses, and points the PC, SP, GP and PV at it.
func (c *Core) LoadProgram(prog *loader.Program) {
	prog.Install(c.memory)
	for _, va := range prog.Pages(tlb.PageSize) {
		c.MapPage(va, va)
	}

	c.SetPC(prog.EntryPoint)

	regs := c.Registers()
	regs.WriteReg(regSP, prog.InitialSP)
	regs.WriteReg(regPV, prog.EntryPoint)
	if prog.GP != 0 {
		regs.WriteReg(regGP, prog.GP)
	}

	c.log.WithFields(logrus.Fields{
		"entry":    fmt.Sprintf("%#x", prog.EntryPoint),
		"segments": len(prog.Segments),
	}).Debug("program loaded")
}

// Running reports whether Run is in progress.
func (c *Core) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Halted reports whether the core has halted.
func (c *Core) Halted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.halted
}

// ExitCode returns R0 at the time the core halted.
func (c *Core) ExitCode() int64 {
	return c.Pipeline().ExitCode()
}

// Run executes until the program halts, an error occurs or ctx is done.
// Dirty data cache lines are written back to memory before it returns.
func (c *Core) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrRunning
	}
	if c.halted {
		c.mu.Unlock()
		return ErrHalted
	}
	c.running = true
	pipe := c.pipe
	c.mu.Unlock()

	c.log.Debug("run started")
	start := time.Now()
	err := pipe.Run(ctx)
	elapsed := time.Since(start)
	pipe.DCache().Flush()

	c.mu.Lock()
	c.running = false
	c.halted = err == nil
	c.elapsed += elapsed
	c.mu.Unlock()

	log := c.log.WithFields(logrus.Fields{
		"instructions": pipe.Stats().Instructions,
		"elapsed":      elapsed,
	})
	if err != nil {
		log.WithError(err).Debug("run stopped")
		return err
	}
	log.WithField("exit_code", pipe.ExitCode()).Debug("run finished")
	return nil
}

// Reset discards all micro-architectural and register state. Memory and the
// page table are kept.
func (c *Core) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrRunning
	}

	c.pipe.DCache().Flush()
	c.build()
	c.halted = false
	c.elapsed = 0

	c.log.Debug("core reset")
	return nil
}

// Stats returns performance statistics for the core.
func (c *Core) Stats() Stats {
	c.mu.Lock()
	pipe := c.pipe
	elapsed := c.elapsed
	c.mu.Unlock()

	return Stats{
		Pipeline:  pipe.Stats(),
		Predictor: pipe.Predictor().Stats(),
		ICache:    pipe.ICache().Stats(),
		DCache:    pipe.DCache().Stats(),
		ITB:       pipe.Translator().ITB().Stats(),
		DTB:       pipe.Translator().DTB().Stats(),
		Elapsed:   elapsed,
	}
}
