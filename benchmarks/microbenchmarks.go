package benchmarks

import (
	"github.com/sarchlab/rv32sim/insts"
	"github.com/sarchlab/rv32sim/timing/core"
)

// Scratch registers by ABI name.
const (
	regRA = insts.RegRA
	regT0 = uint8(5)
	regT1 = uint8(6)
	regT2 = uint8(7)
	regA0 = insts.RegA0
)

// Data regions used by the memory benchmarks. They sit well above the code
// and below the stack.
const (
	chaseBase  = 0x2000
	strideBase = 0x4000
	arrayBase  = 0x3000
)

// GetMicrobenchmarks returns the standard set of microbenchmarks. Each
// benchmark targets a specific pipeline or memory-system behavior and exits
// with a known a0.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		arithmeticSequential(),
		dependencyChain(),
		loadUseChain(),
		storeLoadStride(),
		branchTaken(),
		functionCalls(),
		arraySum(),
	}
}

// GetCoreBenchmarks returns a minimal set of benchmarks for quick
// validation: a loop, a memory-bound kernel and calls.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		branchTaken(),
		arraySum(),
		functionCalls(),
	}
}

// GetBenchmark returns the named microbenchmark.
func GetBenchmark(name string) (Benchmark, bool) {
	for _, b := range GetMicrobenchmarks() {
		if b.Name == name {
			return b, true
		}
	}
	return Benchmark{}, false
}

// 1. Arithmetic Sequential - ALU throughput with independent operations
func arithmeticSequential() Benchmark {
	instrs := make([]uint32, 0, 21)
	for i := 0; i < 20; i++ {
		// Rotate through a0..a4 so neighbors never depend on each other.
		rd := regA0 + uint8(i%5)
		instrs = append(instrs, insts.ADDI(rd, rd, 1))
	}
	instrs = append(instrs, insts.ECALL())

	return Benchmark{
		Name:         "arithmetic_sequential",
		Description:  "20 independent ADDIs over 5 registers - measures ALU throughput",
		Program:      BuildProgram(instrs...),
		ExpectedExit: 4,
	}
}

// 2. Dependency Chain - every instruction needs the previous result
func dependencyChain() Benchmark {
	return Benchmark{
		Name:         "dependency_chain",
		Description:  "20 dependent ADDIs (a0 = a0 + 1) - measures forwarding",
		Program:      buildDependencyChain(20),
		ExpectedExit: 20,
	}
}

func buildDependencyChain(n int) []byte {
	instrs := make([]uint32, 0, n+1)
	for i := 0; i < n; i++ {
		instrs = append(instrs, insts.ADDI(regA0, regA0, 1))
	}
	instrs = append(instrs, insts.ECALL())
	return BuildProgram(instrs...)
}

// 3. Load-Use Chain - pointer chasing, every load feeds the next address
func loadUseChain() Benchmark {
	const nodes = 8

	instrs := make([]uint32, 0, nodes+2)
	for i := 0; i < nodes; i++ {
		instrs = append(instrs, insts.LW(regT0, regT0, 0))
	}
	instrs = append(instrs,
		insts.ADDI(regA0, regT0, 0),
		insts.ECALL(),
	)

	return Benchmark{
		Name:        "load_use_chain",
		Description: "8 chained loads through a linked list - measures load-use stalls",
		Setup: func(c *core.Core) error {
			// Nodes are a line apart; the last one holds the result.
			for i := uint32(0); i < nodes; i++ {
				addr := chaseBase + i*64
				next := addr + 64
				if i == nodes-1 {
					next = 42
				}
				if err := c.Memory().Write32(addr, next); err != nil {
					return err
				}
			}
			c.SetReg(regT0, chaseBase)
			return nil
		},
		Program:      BuildProgram(instrs...),
		ExpectedExit: 42,
	}
}

// 4. Store/Load Stride - stores one D-cache size apart so every access
// evicts the previous line
func storeLoadStride() Benchmark {
	const (
		n      = 8
		stride = 1024
	)

	instrs := []uint32{}
	instrs = append(instrs, insts.LI(regT0, strideBase)...)
	for i := int32(1); i <= n; i++ {
		instrs = append(instrs,
			insts.ADDI(regT1, 0, i),
			insts.SW(regT1, regT0, 0),
			insts.ADDI(regT0, regT0, stride),
		)
	}
	for i := 0; i < n; i++ {
		instrs = append(instrs,
			insts.ADDI(regT0, regT0, -stride),
			insts.LW(regT1, regT0, 0),
			insts.ADD(regA0, regA0, regT1),
		)
	}
	instrs = append(instrs, insts.ECALL())

	return Benchmark{
		Name:         "store_load_stride",
		Description:  "8 stores then 8 loads at a 1KB stride - measures evictions and writebacks",
		Program:      BuildProgram(instrs...),
		ExpectedExit: 36, // 1 + 2 + ... + 8
	}
}

// 5. Branch Taken - a counted loop whose back edge is taken 9 times
func branchTaken() Benchmark {
	return Benchmark{
		Name:        "branch_taken",
		Description: "10-iteration counted loop - measures taken-branch flush cost",
		Program: BuildProgram(
			insts.ADDI(regT0, 0, 10),
			// loop:
			insts.ADDI(regA0, regA0, 2),
			insts.ADDI(regT0, regT0, -1),
			insts.BNE(regT0, 0, -8),
			insts.ECALL(),
		),
		ExpectedExit: 20,
	}
}

// 6. Function Calls - JAL into a leaf function and JALR back
func functionCalls() Benchmark {
	const (
		calls    = 5
		funcSlot = calls + 2 // after the calls and the ECALL
	)

	instrs := []uint32{insts.ADDI(regA0, 0, 0)}
	for i := 1; i <= calls; i++ {
		instrs = append(instrs, insts.JAL(regRA, int32(funcSlot-i)*4))
	}
	instrs = append(instrs,
		insts.ECALL(),
		// func:
		insts.ADDI(regA0, regA0, 3),
		insts.JALR(0, regRA, 0),
	)

	return Benchmark{
		Name:         "function_calls",
		Description:  "5 calls to a leaf function - measures JAL/JALR flush cost",
		Program:      BuildProgram(instrs...),
		ExpectedExit: 15,
	}
}

// 7. Array Sum - a loop loading consecutive words
func arraySum() Benchmark {
	const n = 16

	instrs := []uint32{}
	instrs = append(instrs, insts.LI(regT0, arrayBase)...)
	instrs = append(instrs,
		insts.ADDI(regT2, 0, n),
		// loop:
		insts.LW(regT1, regT0, 0),
		insts.ADD(regA0, regA0, regT1),
		insts.ADDI(regT0, regT0, 4),
		insts.ADDI(regT2, regT2, -1),
		insts.BNE(regT2, 0, -16),
		insts.ECALL(),
	)

	return Benchmark{
		Name:        "array_sum",
		Description: "Sum of 16 consecutive words - measures sequential D-cache hits",
		Setup: func(c *core.Core) error {
			for i := uint32(0); i < n; i++ {
				if err := c.Memory().Write32(arrayBase+4*i, i+1); err != nil {
					return err
				}
			}
			return nil
		},
		Program:      BuildProgram(instrs...),
		ExpectedExit: 136, // 1 + 2 + ... + 16
	}
}
