// Command benchmark runs the ev6sim microbenchmark harness.
//
// Usage:
//
//	go run ./cmd/benchmark [flags]
//
// Flags:
//
//	-csv        Output results in CSV format (default: human-readable)
//	-json       Output results in JSON format
//	-config     Path to a boot configuration JSON file
//	-core       Run only the core benchmark set
//	-parallel   Number of benchmarks to run at once
//	-no-verify  Skip the reference emulator comparison
//	-v          Log core events to stderr
//
// Example:
//
//	# Run all benchmarks with human-readable output
//	go run ./cmd/benchmark
//
//	# Output CSV for spreadsheet comparison
//	go run ./cmd/benchmark -csv > results.csv
//
// EV6SIM_* environment variables override the boot configuration.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/ev6sim/benchmarks"
	"github.com/sarchlab/ev6sim/timing/config"
)

func main() {
	csvOutput := flag.Bool("csv", false, "Output results in CSV format")
	jsonOutput := flag.Bool("json", false, "Output results in JSON format")
	configPath := flag.String("config", "", "Path to boot configuration JSON file")
	coreOnly := flag.Bool("core", false, "Run only the core benchmark set")
	parallel := flag.Int("parallel", 1, "Number of benchmarks to run at once")
	noVerify := flag.Bool("no-verify", false, "Skip the reference emulator comparison")
	verbose := flag.Bool("v", false, "Log core events to stderr")
	flag.Parse()

	boot, err := loadBootConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading boot config: %v\n", err)
		os.Exit(1)
	}

	hc := benchmarks.DefaultConfig()
	hc.Boot = boot
	hc.Parallel = *parallel
	hc.Verify = !*noVerify
	hc.Output = os.Stdout
	if *verbose {
		logger := logrus.New()
		logger.SetOutput(os.Stderr)
		logger.SetLevel(logrus.DebugLevel)
		hc.Logger = logger
	}

	harness := benchmarks.NewHarness(hc)
	if *coreOnly {
		harness.AddBenchmarks(benchmarks.GetCoreBenchmarks())
	} else {
		harness.AddBenchmarks(benchmarks.GetMicrobenchmarks())
	}

	if !*csvOutput && !*jsonOutput {
		fmt.Println("ev6sim Benchmark Harness")
		fmt.Println("========================")
		fmt.Printf("Fetch width: %d\n", boot.FetchWidth)
		fmt.Printf("IQ/FQ/ROB:   %d/%d/%d\n", boot.IQSize, boot.FQSize, boot.ROBSize)
		fmt.Printf("Verify:      %v\n", hc.Verify)
		fmt.Println("")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := harness.RunAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *jsonOutput:
		if err := harness.PrintJSON(results); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing JSON: %v\n", err)
			os.Exit(1)
		}
	case *csvOutput:
		harness.PrintCSV(results)
	default:
		harness.PrintResults(results)

		summary := benchmarks.Summarize(results)
		fmt.Println("=== Summary ===")
		fmt.Printf("Passed:       %d/%d\n", summary.Passed, summary.TotalBenchmarks)
		fmt.Printf("Instructions: %d\n", summary.TotalInstructions)
		fmt.Printf("Speed:        %.0f instructions/s\n", summary.InstructionsPerSecond)
	}

	if benchmarks.Summarize(results).Passed != len(results) {
		os.Exit(2)
	}
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
