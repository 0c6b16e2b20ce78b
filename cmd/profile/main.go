// Package main provides a profiling wrapper for ev6sim to identify performance bottlenecks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/pprof"
	"time"

	"github.com/sarchlab/ev6sim/emu"
	"github.com/sarchlab/ev6sim/loader"
	"github.com/sarchlab/ev6sim/timing/config"
	"github.com/sarchlab/ev6sim/timing/core"
)

var (
	timing      = flag.Bool("timing", false, "Profile the out-of-order core instead of the emulator")
	rawImage    = flag.Bool("image", false, "Treat the program as a raw image loaded at 0x10000")
	cpuProfile  = flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile  = flag.String("memprofile", "", "write memory profile to file")
	duration    = flag.Duration("duration", 30*time.Second, "max duration to run (for profiling)")
	instruction = flag.Uint64("max-instr", 1000000, "max instructions to execute (0 = unlimited)")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: profile [options] <program>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	programPath := flag.Arg(0)

	var prog *loader.Program
	var err error
	if *rawImage {
		prog, err = loader.LoadImage(programPath, 0x10000)
	} else {
		prog, err = loader.Load(programPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}

	// Start CPU profiling if requested
	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	fmt.Printf("Loaded: %s\n", programPath)
	fmt.Printf("Entry point: 0x%X\n", prog.EntryPoint)

	start := time.Now()

	var exitCode int64
	var instrCount uint64
	if *timing {
		exitCode, instrCount, err = runTimingProfile(prog)
	} else {
		exitCode, instrCount = runEmulationProfile(prog)
	}

	elapsed := time.Since(start)

	if errors.Is(err, context.DeadlineExceeded) {
		fmt.Printf("\nTimeout reached after %v - stopped execution\n", *duration)
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "Simulation error: %v\n", err)
	}

	// Write memory profile if requested
	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating memory profile: %v\n", err)
			return
		}
		defer func() { _ = f.Close() }()

		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing memory profile: %v\n", err)
		}
	}

	fmt.Printf("\nProfiling Results:\n")
	fmt.Printf("Exit code: %d\n", exitCode)
	fmt.Printf("Instructions executed: %d\n", instrCount)
	fmt.Printf("Elapsed time: %v\n", elapsed)
	if instrCount > 0 {
		fmt.Printf("Instructions/second: %.0f\n", float64(instrCount)/elapsed.Seconds())
	}
}

// runEmulationProfile runs the program in functional emulation mode with profiling.
func runEmulationProfile(prog *loader.Program) (int64, uint64) {
	opts := []emu.EmulatorOption{}
	if *instruction > 0 {
		opts = append(opts, emu.WithMaxInstructions(*instruction))
	}

	emulator := emu.NewEmulator(opts...)
	prog.Install(emulator.Memory())
	emulator.RegFile().PC = prog.EntryPoint
	emulator.RegFile().WriteReg(30, prog.InitialSP)

	exitCode := emulator.Run()
	return exitCode, emulator.InstructionCount()
}

// runTimingProfile runs the program on the out-of-order core with profiling.
// The run stops after -duration.
func runTimingProfile(prog *loader.Program) (int64, uint64, error) {
	boot := config.DefaultBootConfig()
	boot.MaxInstructions = *instruction

	c, err := core.New(boot, emu.NewMemory(), core.WithOutput(os.Stdout, io.Discard))
	if err != nil {
		return 0, 0, err
	}
	c.LoadProgram(prog)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	err = c.Run(ctx)
	return c.ExitCode(), c.Stats().Pipeline.Instructions, err
}
