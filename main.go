// Package main provides the entry point for ev6sim.
// ev6sim is an out-of-order Alpha 21264 CPU simulator built on Akita.
//
// For the full CLI, use: go run ./cmd/ev6sim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("ev6sim - Alpha 21264 CPU Simulator")
	fmt.Println("Built on Akita simulation framework")
	fmt.Println("")
	fmt.Println("Usage: ev6sim [options] <program>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config    Path to boot configuration JSON file")
	fmt.Println("  -image     Load a raw image at -base instead of an ELF file")
	fmt.Println("  -emu       Run on the functional reference emulator")
	fmt.Println("  -user      Run the program in user mode")
	fmt.Println("  -strict    Fault on accesses to unmapped pages")
	fmt.Println("  -v         Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/ev6sim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/ev6sim' instead.")
	}
}
