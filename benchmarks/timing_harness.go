// Package benchmarks runs hand-assembled Alpha microbenchmarks on the
// out-of-order core and reports what each structure did.
package benchmarks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/ev6sim/emu"
	"github.com/sarchlab/ev6sim/timing/config"
	"github.com/sarchlab/ev6sim/timing/core"
)

// Where benchmark code and data are placed in memory.
const (
	CodeBase uint64 = 0x10000
	DataBase uint64 = 0x40000
)

// referenceLimit bounds the reference emulator's run.
const referenceLimit = 1 << 24

// BenchmarkResult holds the results for a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// InstructionsRetired is the number of retired instructions
	InstructionsRetired uint64 `json:"instructions_retired"`

	// InstructionsFetched is the number of instructions dispatched,
	// including those later squashed
	InstructionsFetched uint64 `json:"instructions_fetched"`

	// Squashed is the number of instructions aborted by flushes
	Squashed uint64 `json:"squashed"`

	// PipelineFlushes is the number of pipeline flushes
	PipelineFlushes uint64 `json:"pipeline_flushes"`

	// Stalls is the number of fetch groups held back for lack of resources
	Stalls uint64 `json:"stalls"`

	// PALEntries is the number of exceptions and CALL_PALs handled
	PALEntries uint64 `json:"pal_entries"`

	// LoadsForwarded is the number of loads served by the store queue
	LoadsForwarded uint64 `json:"loads_forwarded"`

	// ICacheHits/Misses
	ICacheHits   uint64 `json:"icache_hits"`
	ICacheMisses uint64 `json:"icache_misses"`

	// DCacheHits/Misses
	DCacheHits   uint64 `json:"dcache_hits"`
	DCacheMisses uint64 `json:"dcache_misses"`

	// ITBMisses/DTBMisses
	ITBMisses uint64 `json:"itb_misses"`
	DTBMisses uint64 `json:"dtb_misses"`

	// Branch predictor stats
	BranchPredictions     uint64  `json:"branch_predictions,omitempty"`
	BranchCorrect         uint64  `json:"branch_correct,omitempty"`
	BranchMispredictions  uint64  `json:"branch_mispredictions,omitempty"`
	BranchAccuracyPercent float64 `json:"branch_accuracy_percent,omitempty"`

	// ExitCode is the program's exit code
	ExitCode int64 `json:"exit_code"`

	// ReferenceExitCode and ReferenceInstructions come from the reference
	// emulator when verification is enabled
	ReferenceExitCode     int64  `json:"reference_exit_code,omitempty"`
	ReferenceInstructions uint64 `json:"reference_instructions,omitempty"`

	// Passed reports whether the exit code matched the expected one and,
	// when verifying, the reference emulator
	Passed bool `json:"passed"`

	// Error is set when the core stopped with an error
	Error string `json:"error,omitempty"`

	// WallTime is the actual time taken to run the simulation
	WallTime time.Duration `json:"wall_time_ns"`
}

// Benchmark defines a single benchmark program.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Setup prepares memory before the program runs, e.g. input arrays
	Setup func(memory *emu.Memory)

	// Program is the Alpha machine code placed at CodeBase
	Program []uint32

	// ExpectedExit is the expected exit code (for validation)
	ExpectedExit int64
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Boot is the core configuration every benchmark runs with
	Boot *config.BootConfig

	// Verify runs each benchmark on the reference emulator as well and
	// compares the outcomes
	Verify bool

	// Parallel is the number of benchmarks run at once. Values below 1
	// mean one.
	Parallel int

	// Timeout bounds each benchmark run. Zero means no limit.
	Timeout time.Duration

	// Logger receives the cores' log entries. Nil discards them.
	Logger *logrus.Logger

	// Output is where to write results (default: os.Stdout)
	Output io.Writer
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Boot:     config.DefaultBootConfig(),
		Verify:   true,
		Parallel: 1,
		Timeout:  time.Minute,
		Output:   os.Stdout,
	}
}

// Harness runs benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Parallel < 1 {
		config.Parallel = 1
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results in the order the
// benchmarks were added. Each benchmark runs on its own core. A benchmark
// that fails is reported in its result. RunAll only returns an error if
// the core cannot be built or ctx is done.
func (h *Harness) RunAll(ctx context.Context) ([]BenchmarkResult, error) {
	results := make([]BenchmarkResult, len(h.benchmarks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.config.Parallel)
	for i, bench := range h.benchmarks {
		g.Go(func() error {
			result, err := h.runBenchmark(gctx, bench)
			if err != nil {
				return fmt.Errorf("benchmark %s: %w", bench.Name, err)
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// runBenchmark executes a single benchmark.
func (h *Harness) runBenchmark(ctx context.Context, bench Benchmark) (BenchmarkResult, error) {
	if err := ctx.Err(); err != nil {
		return BenchmarkResult{}, err
	}

	memory := emu.NewMemory()
	if bench.Setup != nil {
		bench.Setup(memory)
	}
	memory.LoadWords(CodeBase, bench.Program)

	opts := []core.Option{core.WithOutput(io.Discard, io.Discard)}
	if h.config.Logger != nil {
		opts = append(opts, core.WithLogger(h.config.Logger))
	}
	c, err := core.New(h.bootConfig(), memory, opts...)
	if err != nil {
		return BenchmarkResult{}, err
	}
	c.SetPC(CodeBase)

	runCtx := ctx
	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	runErr := c.Run(runCtx)
	wallTime := time.Since(start)

	if ctx.Err() != nil {
		return BenchmarkResult{}, ctx.Err()
	}

	stats := c.Stats()
	result := BenchmarkResult{
		Name:                  bench.Name,
		Description:           bench.Description,
		InstructionsRetired:   stats.Pipeline.Instructions,
		InstructionsFetched:   stats.Pipeline.Fetched,
		Squashed:              stats.Pipeline.Squashed,
		PipelineFlushes:       stats.Pipeline.Flushes,
		Stalls:                stats.Pipeline.Stalls,
		PALEntries:            stats.Pipeline.Exceptions + stats.Pipeline.PALCalls,
		LoadsForwarded:        stats.Pipeline.LoadsForwarded,
		ICacheHits:            stats.ICache.Hits,
		ICacheMisses:          stats.ICache.Misses,
		DCacheHits:            stats.DCache.Hits,
		DCacheMisses:          stats.DCache.Misses,
		ITBMisses:             stats.ITB.Misses,
		DTBMisses:             stats.DTB.Misses,
		BranchPredictions:     stats.Predictor.Predictions,
		BranchCorrect:         stats.Predictor.Correct,
		BranchMispredictions:  stats.Predictor.Mispredictions,
		BranchAccuracyPercent: stats.Predictor.Accuracy(),
		WallTime:              wallTime,
	}

	if runErr != nil {
		result.Error = runErr.Error()
		return result, nil
	}

	result.ExitCode = c.ExitCode()
	result.Passed = result.ExitCode == bench.ExpectedExit

	if h.config.Verify {
		result.ReferenceExitCode, result.ReferenceInstructions = runReference(bench)
		result.Passed = result.Passed &&
			result.ReferenceExitCode == result.ExitCode &&
			result.ReferenceInstructions == result.InstructionsRetired
	}

	return result, nil
}

func (h *Harness) bootConfig() *config.BootConfig {
	if h.config.Boot == nil {
		return config.DefaultBootConfig()
	}
	return h.config.Boot
}

// runReference runs bench on the functional emulator and returns its exit
// code and instruction count.
func runReference(bench Benchmark) (int64, uint64) {
	e := emu.NewEmulator(
		emu.WithStdout(io.Discard),
		emu.WithStderr(io.Discard),
		emu.WithMaxInstructions(referenceLimit),
	)
	if bench.Setup != nil {
		bench.Setup(e.Memory())
	}
	e.Memory().LoadWords(CodeBase, bench.Program)
	e.RegFile().PC = CodeBase

	exitCode := e.Run()
	return exitCode, e.InstructionCount()
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output, "=== ev6sim Benchmark Results ===")
	_, _ = fmt.Fprintln(h.config.Output, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(h.config.Output, "  Description: %s\n", r.Description)
		if r.Error != "" {
			_, _ = fmt.Fprintf(h.config.Output, "  Error: %s\n", r.Error)
		} else {
			_, _ = fmt.Fprintf(h.config.Output, "  Exit Code: %d\n", r.ExitCode)
		}
		_, _ = fmt.Fprintf(h.config.Output, "  Passed: %t\n", r.Passed)
		_, _ = fmt.Fprintln(h.config.Output, "  --- Pipeline ---")
		_, _ = fmt.Fprintf(h.config.Output, "  Instructions Retired: %d\n", r.InstructionsRetired)
		_, _ = fmt.Fprintf(h.config.Output, "  Instructions Fetched: %d\n", r.InstructionsFetched)
		_, _ = fmt.Fprintf(h.config.Output, "  Squashed:             %d\n", r.Squashed)
		_, _ = fmt.Fprintf(h.config.Output, "  Pipeline Flushes:     %d\n", r.PipelineFlushes)
		_, _ = fmt.Fprintf(h.config.Output, "  Stalls:               %d\n", r.Stalls)
		_, _ = fmt.Fprintf(h.config.Output, "  PAL Entries:          %d\n", r.PALEntries)
		if r.LoadsForwarded > 0 {
			_, _ = fmt.Fprintf(h.config.Output, "  Loads Forwarded:      %d\n", r.LoadsForwarded)
		}

		_, _ = fmt.Fprintln(h.config.Output, "  --- Caches and TLBs ---")
		_, _ = fmt.Fprintf(h.config.Output, "  I-Cache Hits/Misses:  %d/%d\n", r.ICacheHits, r.ICacheMisses)
		_, _ = fmt.Fprintf(h.config.Output, "  D-Cache Hits/Misses:  %d/%d\n", r.DCacheHits, r.DCacheMisses)
		_, _ = fmt.Fprintf(h.config.Output, "  ITB/DTB Misses:       %d/%d\n", r.ITBMisses, r.DTBMisses)

		if r.BranchPredictions > 0 {
			_, _ = fmt.Fprintln(h.config.Output, "  --- Branch Predictor ---")
			_, _ = fmt.Fprintf(h.config.Output, "  Predictions:     %d\n", r.BranchPredictions)
			_, _ = fmt.Fprintf(h.config.Output, "  Correct:         %d\n", r.BranchCorrect)
			_, _ = fmt.Fprintf(h.config.Output, "  Mispredictions:  %d\n", r.BranchMispredictions)
			_, _ = fmt.Fprintf(h.config.Output, "  Accuracy:        %.1f%%\n", r.BranchAccuracyPercent)
		}

		_, _ = fmt.Fprintf(h.config.Output, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(h.config.Output, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,instructions,fetched,squashed,flushes,stalls,pal_entries,loads_forwarded,"+
			"icache_hits,icache_misses,dcache_hits,dcache_misses,itb_misses,dtb_misses,"+
			"branch_accuracy,exit_code,passed")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%.1f,%d,%t\n",
			r.Name,
			r.InstructionsRetired,
			r.InstructionsFetched,
			r.Squashed,
			r.PipelineFlushes,
			r.Stalls,
			r.PALEntries,
			r.LoadsForwarded,
			r.ICacheHits,
			r.ICacheMisses,
			r.DCacheHits,
			r.DCacheMisses,
			r.ITBMisses,
			r.DTBMisses,
			r.BranchAccuracyPercent,
			r.ExitCode,
			r.Passed,
		)
	}
}

// BenchmarkReport is the complete output format for benchmark results.
type BenchmarkReport struct {
	// Metadata about the benchmark run
	Metadata ReportMetadata `json:"metadata"`

	// Results is the list of individual benchmark results
	Results []BenchmarkResult `json:"results"`

	// Summary contains aggregate statistics
	Summary ReportSummary `json:"summary"`
}

// ReportMetadata contains information about the benchmark run.
type ReportMetadata struct {
	// Timestamp when the benchmark was run
	Timestamp string `json:"timestamp"`

	// Boot is the core configuration used
	Boot *config.BootConfig `json:"boot"`

	// Verified reports whether results were checked against the
	// reference emulator
	Verified bool `json:"verified"`
}

// ReportSummary contains aggregate statistics across all benchmarks.
type ReportSummary struct {
	// TotalBenchmarks is the number of benchmarks run
	TotalBenchmarks int `json:"total_benchmarks"`

	// Passed is the number of benchmarks that passed
	Passed int `json:"passed"`

	// TotalInstructions is the sum of all instructions retired
	TotalInstructions uint64 `json:"total_instructions"`

	// TotalWallTime is the total wall clock time for all benchmarks
	TotalWallTime time.Duration `json:"total_wall_time_ns"`

	// InstructionsPerSecond is the simulation speed
	InstructionsPerSecond float64 `json:"instructions_per_second"`
}

// Summarize computes aggregate statistics over results.
func Summarize(results []BenchmarkResult) ReportSummary {
	s := ReportSummary{TotalBenchmarks: len(results)}
	for _, r := range results {
		s.TotalInstructions += r.InstructionsRetired
		s.TotalWallTime += r.WallTime
		if r.Passed {
			s.Passed++
		}
	}
	if s.TotalWallTime > 0 {
		s.InstructionsPerSecond = float64(s.TotalInstructions) / s.TotalWallTime.Seconds()
	}
	return s
}

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Boot:      h.bootConfig(),
			Verified:  h.config.Verify,
		},
		Results: results,
		Summary: Summarize(results),
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
