// Validate decoder performance - measures decode rate and allocations
package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/sarchlab/ev6sim/insts"
)

func main() {
	decoder := insts.NewDecoder()

	// One word from each instruction format
	words := []uint32{
		insts.EncodeADDQ(1, 2, 3),
		insts.EncodeADDQLit(1, 42, 3),
		insts.EncodeLDQ(4, 30, 16),
		insts.EncodeSTQ(4, 30, 24),
		insts.EncodeBNE(1, -4),
		insts.EncodeJSR(26, 27),
		insts.EncodeADDT(1, 2, 3),
		insts.EncodeCallPAL(insts.PALCallSys),
	}

	// Warm up
	for i := 0; i < 1000; i++ {
		decoder.Decode(words[i%len(words)])
	}

	runtime.GC()
	var m1, m2 runtime.MemStats
	runtime.ReadMemStats(&m1)

	start := time.Now()
	iterations := 100000

	// Decode a 4-wide fetch group per iteration, cycling through the formats
	for i := 0; i < iterations; i++ {
		for j := 0; j < 4; j++ {
			decoder.Decode(words[(4*i+j)%len(words)])
		}
	}

	elapsed := time.Since(start)
	runtime.ReadMemStats(&m2)

	totalDecodes := iterations * 4
	allocations := m2.Mallocs - m1.Mallocs
	allocatedBytes := m2.TotalAlloc - m1.TotalAlloc

	fmt.Printf("Decoder Validation Results:\n")
	fmt.Printf("===========================\n")
	fmt.Printf("Total decode operations: %d\n", totalDecodes)
	fmt.Printf("Time elapsed: %v\n", elapsed)
	fmt.Printf("Decodes per second: %.0f\n", float64(totalDecodes)/elapsed.Seconds())
	fmt.Printf("Allocations: %d\n", allocations)
	fmt.Printf("Allocated bytes: %d\n", allocatedBytes)
	fmt.Printf("Allocations per decode: %.3f\n", float64(allocations)/float64(totalDecodes))
	fmt.Printf("Bytes per decode: %.1f\n", float64(allocatedBytes)/float64(totalDecodes))

	if float64(allocations)/float64(totalDecodes) > 1.0 {
		fmt.Printf("\nWARNING: more than one allocation per decode\n")
	}
}
