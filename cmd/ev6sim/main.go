// Command ev6sim runs an Alpha program on the out-of-order core, or on the
// functional reference emulator with -emu.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/ev6sim/emu"
	"github.com/sarchlab/ev6sim/insts"
	"github.com/sarchlab/ev6sim/loader"
	"github.com/sarchlab/ev6sim/timing/config"
	"github.com/sarchlab/ev6sim/timing/core"
)

// Register conventions the loader sets up.
const (
	regPV = 27
	regGP = 29
	regSP = 30
)

type options struct {
	configPath string
	verbose    bool
	image      bool
	base       uint64
	emulate    bool
	user       bool
	strict     bool
	timeout    time.Duration
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes the command and returns the process exit status: the
// program's exit code, or 1 if the program could not be run.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var opts options

	fs := flag.NewFlagSet("ev6sim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to boot configuration JSON file")
	fs.BoolVar(&opts.verbose, "v", false, "Verbose output")
	fs.BoolVar(&opts.image, "image", false, "Treat the program as a raw image instead of an ELF file")
	fs.Uint64Var(&opts.base, "base", 0x10000, "Load and entry address of a raw image")
	fs.BoolVar(&opts.emulate, "emu", false, "Run on the functional reference emulator")
	fs.BoolVar(&opts.user, "user", false, "Run the program in user mode")
	fs.BoolVar(&opts.strict, "strict", false, "Fault on accesses to unmapped pages")
	fs.DurationVar(&opts.timeout, "timeout", 0, "Stop the simulation after this long (0 means no limit)")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if fs.NArg() < 1 {
		fmt.Fprintf(stderr, "Usage: ev6sim [options] <program>\n")
		fmt.Fprintf(stderr, "\nOptions:\n")
		fs.PrintDefaults()
		return 1
	}

	programPath := fs.Arg(0)
	prog, err := loadProgram(programPath, opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading program: %v\n", err)
		return 1
	}

	if opts.verbose {
		fmt.Fprintf(stdout, "Loaded: %s\n", programPath)
		fmt.Fprintf(stdout, "Entry point: 0x%X\n", prog.EntryPoint)
		fmt.Fprintf(stdout, "Segments: %d\n", len(prog.Segments))
	}

	if opts.emulate {
		return runEmulation(prog, programPath, opts, stdin, stdout, stderr)
	}
	return runTiming(prog, programPath, opts, stdin, stdout, stderr)
}

func loadProgram(path string, opts options) (*loader.Program, error) {
	if opts.image {
		return loader.LoadImage(path, opts.base)
	}
	return loader.Load(path)
}

func loadBootConfig(path string) (*config.BootConfig, error) {
	boot := config.DefaultBootConfig()
	if path != "" {
		var err error
		boot, err = config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
	}
	if err := boot.ApplyEnv(); err != nil {
		return nil, err
	}
	return boot, nil
}

// runEmulation runs the program in functional emulation mode.
func runEmulation(prog *loader.Program, programPath string, opts options,
	stdin io.Reader, stdout, stderr io.Writer,
) int {
	memory := emu.NewMemory()
	syscalls := emu.NewDefaultSyscallHandler(memory, stdout, stderr)
	if stdin != nil {
		syscalls.SetStdin(stdin)
	}
	emulator := emu.NewEmulator(
		emu.WithMemory(memory),
		emu.WithSyscallHandler(syscalls),
		emu.WithStdout(stdout),
		emu.WithStderr(stderr),
	)

	prog.Install(emulator.Memory())
	regs := emulator.RegFile()
	regs.PC = prog.EntryPoint
	regs.WriteReg(regSP, prog.InitialSP)
	regs.WriteReg(regPV, prog.EntryPoint)
	if prog.GP != 0 {
		regs.WriteReg(regGP, prog.GP)
	}

	exitCode := emulator.Run()

	if opts.verbose {
		fmt.Fprintf(stdout, "\nProgram: %s\n", programPath)
		fmt.Fprintf(stdout, "Exit code: %d\n", exitCode)
		fmt.Fprintf(stdout, "Instructions executed: %d\n", emulator.InstructionCount())
	}

	return int(exitCode)
}

// runTiming runs the program on the out-of-order core and prints a report
// of what each structure did.
func runTiming(prog *loader.Program, programPath string, opts options,
	stdin io.Reader, stdout, stderr io.Writer,
) int {
	boot, err := loadBootConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading boot config: %v\n", err)
		return 1
	}

	logger := logrus.New()
	logger.SetOutput(stderr)
	logger.SetLevel(logrus.WarnLevel)
	if opts.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	coreOpts := []core.Option{
		core.WithLogger(logger),
		core.WithOutput(stdout, stderr),
	}
	if stdin != nil {
		coreOpts = append(coreOpts, core.WithStdin(stdin))
	}
	if opts.user {
		coreOpts = append(coreOpts, core.WithProcessContext(insts.ModeUser, 1))
	}
	if opts.strict {
		coreOpts = append(coreOpts, core.WithStrictPaging())
	}

	c, err := core.New(boot, emu.NewMemory(), coreOpts...)
	if err != nil {
		fmt.Fprintf(stderr, "Error building core: %v\n", err)
		return 1
	}
	c.LoadProgram(prog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	if err := c.Run(ctx); err != nil {
		fmt.Fprintf(stderr, "Simulation error: %v\n", err)
		return 1
	}

	exitCode := c.ExitCode()
	printReport(stdout, programPath, exitCode, c.Stats())
	return int(exitCode)
}

func percent(part, whole uint64) float64 {
	if whole == 0 {
		return 0
	}
	return 100 * float64(part) / float64(whole)
}

func printReport(w io.Writer, programPath string, exitCode int64, stats core.Stats) {
	p := stats.Pipeline

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Program: %s\n", programPath)
	fmt.Fprintf(w, "Exit code: %d\n", exitCode)
	fmt.Fprintf(w, "Instructions retired: %d\n", p.Instructions)
	fmt.Fprintf(w, "Instructions fetched: %d (%.1f%% squashed)\n",
		p.Fetched, percent(p.Squashed, p.Fetched))
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Pipeline Events:\n")
	fmt.Fprintf(w, "  Stalls:          %d\n", p.Stalls)
	fmt.Fprintf(w, "  Flushes:         %d\n", p.Flushes)
	fmt.Fprintf(w, "  Exceptions:      %d\n", p.Exceptions)
	fmt.Fprintf(w, "  PAL calls:       %d\n", p.PALCalls)
	fmt.Fprintf(w, "  Loads forwarded: %d\n", p.LoadsForwarded)
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Branch Prediction:\n")
	fmt.Fprintf(w, "  Predictions: %d\n", stats.Predictor.Predictions)
	fmt.Fprintf(w, "  Accuracy:    %.1f%%\n", stats.Predictor.Accuracy())
	fmt.Fprintf(w, "  BTB hits:    %.1f%%\n", stats.Predictor.BTBHitRate())
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Memory:\n")
	fmt.Fprintf(w, "  I-Cache hit rate: %5.1f%% (%d misses)\n",
		100*stats.ICache.HitRate(), stats.ICache.Misses)
	fmt.Fprintf(w, "  D-Cache hit rate: %5.1f%% (%d misses)\n",
		100*stats.DCache.HitRate(), stats.DCache.Misses)
	fmt.Fprintf(w, "  ITB misses:       %d\n", stats.ITB.Misses)
	fmt.Fprintf(w, "  DTB misses:       %d\n", stats.DTB.Misses)
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Wall time: %v\n", stats.Elapsed)
}
