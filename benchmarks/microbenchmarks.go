package benchmarks

import (
	"math"

	"github.com/sarchlab/ev6sim/emu"
	"github.com/sarchlab/ev6sim/insts"
)

// Each microbenchmark leaves its result in R0 and ends with CALL_PAL HALT,
// so the exit code is the result.

// GetMicrobenchmarks returns the standard set of microbenchmarks. Each one
// stresses a single structure of the core.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		arithmeticSequential(),
		dependencyChain(),
		memorySequential(),
		storeLoadForwarding(),
		functionCalls(),
		branchAlternating(),
		loopSimulation(),
		matrixMultiply2x2(),
		floatingPointMix(),
	}
}

// GetCoreBenchmarks returns a minimal set of benchmarks for quick checks: a
// loop, a matrix multiply and branch-heavy code.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		loopSimulation(),
		matrixMultiply2x2(),
		branchAlternating(),
	}
}

// loadDataBase points reg at DataBase.
func loadDataBase(reg uint8) uint32 {
	return insts.EncodeLDAH(reg, insts.ZeroReg, int16(DataBase>>16))
}

// moveToResult copies reg into R0.
func moveToResult(reg uint8) uint32 {
	return insts.EncodeBIS(insts.ZeroReg, reg, 0)
}

// Independent ADDQs spread over five registers.
func arithmeticSequential() Benchmark {
	program := make([]uint32, 0, 22)
	for i := 0; i < 4; i++ {
		for r := uint8(1); r <= 5; r++ {
			program = append(program, insts.EncodeADDQLit(r, 1, r))
		}
	}
	program = append(program, moveToResult(1), insts.EncodeHALT())

	return Benchmark{
		Name:         "arithmetic_sequential",
		Description:  "20 independent ADDQs - measures integer issue width",
		Program:      program,
		ExpectedExit: 4,
	}
}

func dependencyChain() Benchmark {
	return Benchmark{
		Name:         "dependency_chain",
		Description:  "20 dependent ADDQs (R0 = R0 + 1) - measures result wakeup latency",
		Program:      buildDependencyChain(20),
		ExpectedExit: 20,
	}
}

func buildDependencyChain(n int) []uint32 {
	program := make([]uint32, 0, n+1)
	for i := 0; i < n; i++ {
		program = append(program, insts.EncodeADDQLit(0, 1, 0))
	}
	return append(program, insts.EncodeHALT())
}

// Stores 1..8 to consecutive quadwords, then loads and sums them.
func memorySequential() Benchmark {
	program := []uint32{loadDataBase(16)}
	for i := int16(0); i < 8; i++ {
		program = append(program,
			insts.EncodeLDA(1, insts.ZeroReg, i+1),
			insts.EncodeSTQ(1, 16, 8*i),
		)
	}
	for i := int16(0); i < 8; i++ {
		program = append(program,
			insts.EncodeLDQ(2, 16, 8*i),
			insts.EncodeADDQ(0, 2, 0),
		)
	}
	program = append(program, insts.EncodeHALT())

	return Benchmark{
		Name:         "memory_sequential",
		Description:  "8 stores then 8 loads to sequential quadwords - measures Dcache behavior",
		Program:      program,
		ExpectedExit: 36,
	}
}

// Each load reads the quadword the previous store just wrote.
func storeLoadForwarding() Benchmark {
	program := []uint32{
		loadDataBase(16),
		insts.EncodeLDA(1, insts.ZeroReg, 7),
	}
	for i := 0; i < 8; i++ {
		program = append(program,
			insts.EncodeSTQ(1, 16, 0),
			insts.EncodeLDQ(1, 16, 0),
			insts.EncodeADDQLit(1, 1, 1),
		)
	}
	program = append(program, moveToResult(1), insts.EncodeHALT())

	return Benchmark{
		Name:         "store_load_forwarding",
		Description:  "8 store/load pairs to one address - measures store queue forwarding",
		Program:      program,
		ExpectedExit: 15,
	}
}

// Five BSR/RET pairs to a function that increments R0.
func functionCalls() Benchmark {
	const callee = 6

	program := make([]uint32, 0, 8)
	for i := 0; i < 5; i++ {
		program = append(program, insts.EncodeBSR(26, int32(callee-(i+1))))
	}
	program = append(program,
		insts.EncodeHALT(),
		insts.EncodeADDQLit(0, 1, 0),
		insts.EncodeRET(insts.ZeroReg, 26),
	)

	return Benchmark{
		Name:         "function_calls",
		Description:  "5 BSR/RET pairs - measures the return stack and call overhead",
		Program:      program,
		ExpectedExit: 5,
	}
}

// Counts the odd values of R1 from 100 down to 1. The inner branch
// alternates between taken and not taken.
func branchAlternating() Benchmark {
	return Benchmark{
		Name:        "branch_alternating",
		Description: "100-iteration loop with an alternating branch - measures predictor history",
		Program: []uint32{
			insts.EncodeLDA(1, insts.ZeroReg, 100),
			insts.EncodeBIS(insts.ZeroReg, insts.ZeroReg, 0),
			insts.EncodeOperateLit(0x11, 0x00, 1, 1, 3), // AND R1, #1, R3
			insts.EncodeBEQ(3, 1),
			insts.EncodeADDQLit(0, 1, 0),
			insts.EncodeSUBQLit(1, 1, 1),
			insts.EncodeBNE(1, -5),
			insts.EncodeHALT(),
		},
		ExpectedExit: 50,
	}
}

// Sums 100 down to 1.
func loopSimulation() Benchmark {
	return Benchmark{
		Name:        "loop_simulation",
		Description: "100-iteration counted loop - measures loop branch prediction",
		Program: []uint32{
			insts.EncodeLDA(1, insts.ZeroReg, 100),
			insts.EncodeBIS(insts.ZeroReg, insts.ZeroReg, 2),
			insts.EncodeADDQ(2, 1, 2),
			insts.EncodeSUBQLit(1, 1, 1),
			insts.EncodeBNE(1, -3),
			moveToResult(2),
			insts.EncodeHALT(),
		},
		ExpectedExit: 5050,
	}
}

// C = A x B for 2x2 matrices of quadwords. A is at DataBase, B follows it
// and C follows B. The result is the sum of C's elements.
func matrixMultiply2x2() Benchmark {
	program := []uint32{loadDataBase(16)}
	for i := uint8(0); i < 8; i++ {
		program = append(program, insts.EncodeLDQ(1+i, 16, int16(8*i)))
	}

	// A is R1..R4 and B is R5..R8, both row major.
	cells := [][4]uint8{
		{1, 5, 2, 7},
		{1, 6, 2, 8},
		{3, 5, 4, 7},
		{3, 6, 4, 8},
	}
	for i, c := range cells {
		program = append(program,
			insts.EncodeMULQ(c[0], c[1], 9),
			insts.EncodeMULQ(c[2], c[3], 10),
			insts.EncodeADDQ(9, 10, 11),
			insts.EncodeSTQ(11, 16, int16(64+8*i)),
			insts.EncodeADDQ(0, 11, 0),
		)
	}
	program = append(program, insts.EncodeHALT())

	return Benchmark{
		Name:        "matrix_multiply_2x2",
		Description: "2x2 integer matrix multiply - measures multiplier and load throughput",
		Setup: func(memory *emu.Memory) {
			for i, v := range []uint64{1, 2, 3, 4, 5, 6, 7, 8} {
				memory.Write64(DataBase+uint64(8*i), v)
			}
		},
		Program:      program,
		ExpectedExit: 19 + 22 + 43 + 50,
	}
}

// A short chain of dependent floating-point operations. The result is the
// bit pattern of (1.5 + 2.5) * 2.5.
func floatingPointMix() Benchmark {
	return Benchmark{
		Name:        "floating_point_mix",
		Description: "Dependent ADDT, MULT and SUBT - measures the floating-point pipes",
		Setup: func(memory *emu.Memory) {
			memory.Write64(DataBase, math.Float64bits(1.5))
			memory.Write64(DataBase+8, math.Float64bits(2.5))
		},
		Program: []uint32{
			loadDataBase(16),
			insts.EncodeLDT(1, 16, 0),
			insts.EncodeLDT(2, 16, 8),
			insts.EncodeADDT(1, 2, 3),
			insts.EncodeMULT(3, 2, 4),
			insts.EncodeSUBT(4, 1, 5),
			insts.EncodeSTT(5, 16, 16),
			insts.EncodeFTOIT(4, 0),
			insts.EncodeHALT(),
		},
		ExpectedExit: int64(math.Float64bits(10.0)),
	}
}
