// Package benchmarks provides the timing benchmark harness and a set of
// RV32I microbenchmarks that exercise the pipeline, the caches and the
// memory controller.
package benchmarks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sarchlab/rv32sim/emu"
	"github.com/sarchlab/rv32sim/insts"
	"github.com/sarchlab/rv32sim/timing/config"
	"github.com/sarchlab/rv32sim/timing/core"
)

// Version is reported in JSON benchmark reports.
const Version = "0.1.0"

// DefaultMaxCycles bounds every benchmark run.
const DefaultMaxCycles = 1_000_000

// BenchmarkResult holds the timing results for a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// SimulatedCycles is the total cycle count from the timing simulator
	SimulatedCycles uint64 `json:"simulated_cycles"`

	// InstructionsRetired is the number of completed instructions
	InstructionsRetired uint64 `json:"instructions_retired"`

	// CPI is cycles per instruction
	CPI float64 `json:"cpi"`

	// StallCycles is the number of load-use stall cycles
	StallCycles uint64 `json:"stall_cycles"`

	// FetchStalls is stalls waiting on the instruction cache
	FetchStalls uint64 `json:"fetch_stalls"`

	// MemStalls is stalls waiting on the data cache
	MemStalls uint64 `json:"mem_stalls"`

	// DataHazards is the number of operands resolved via forwarding
	DataHazards uint64 `json:"data_hazards"`

	// PipelineFlushes is the number of pipeline flushes
	PipelineFlushes uint64 `json:"pipeline_flushes"`

	ICacheHits   uint64 `json:"icache_hits,omitempty"`
	ICacheMisses uint64 `json:"icache_misses,omitempty"`

	DCacheHits       uint64 `json:"dcache_hits,omitempty"`
	DCacheMisses     uint64 `json:"dcache_misses,omitempty"`
	DCacheEvictions  uint64 `json:"dcache_evictions,omitempty"`
	DCacheWritebacks uint64 `json:"dcache_writebacks,omitempty"`

	// MemBusyCycles is the number of cycles the memory controller spent
	// transferring lines
	MemBusyCycles uint64 `json:"mem_busy_cycles"`

	// ExitCode is the program's exit code
	ExitCode int64 `json:"exit_code"`

	// ExpectedExit is the exit code the benchmark should produce
	ExpectedExit int64 `json:"expected_exit"`

	// Error is set when the run faulted or did not halt
	Error string `json:"error,omitempty"`

	// WallTime is the actual time taken to run the simulation
	WallTime time.Duration `json:"wall_time_ns"`
}

// Passed reports whether the run halted cleanly with the expected exit code.
func (r BenchmarkResult) Passed() bool {
	return r.Error == "" && r.ExitCode == r.ExpectedExit
}

// Benchmark defines a single benchmark program.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Setup prepares the core state (e.g., initialize registers, memory)
	Setup func(c *core.Core) error

	// Program is the RV32I machine code, loaded at the base address
	Program []byte

	// ExpectedExit is the expected exit code (for validation)
	ExpectedExit int64
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// EnableICache simulates instruction cache misses. When false the
	// instruction cache is perfect.
	EnableICache bool

	// EnableDCache simulates data cache misses. When false the data cache
	// is perfect.
	EnableDCache bool

	// Sim is the core configuration. Nil uses config.DefaultSimConfig.
	Sim *config.SimConfig

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Verbose enables detailed output
	Verbose bool
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		EnableICache: true,
		EnableDCache: true,
		Output:       os.Stdout,
		Verbose:      false,
	}
}

// Harness runs timing benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
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

// RunAll executes all benchmarks and returns results.
func (h *Harness) RunAll() []BenchmarkResult {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))

	for _, bench := range h.benchmarks {
		result := h.runBenchmark(bench)
		if h.config.Verbose {
			_, _ = fmt.Fprintf(h.config.Output, "ran %s: %d cycles, %d instructions\n",
				result.Name, result.SimulatedCycles, result.InstructionsRetired)
		}
		results = append(results, result)
	}

	return results
}

func (h *Harness) simConfig() *config.SimConfig {
	cfg := h.config.Sim
	if cfg == nil {
		cfg = config.DefaultSimConfig()
	}
	cfg = cfg.Clone()

	cfg.ICache.Perfect = !h.config.EnableICache
	cfg.DCache.Perfect = !h.config.EnableDCache
	if cfg.MaxCycles == 0 {
		cfg.MaxCycles = DefaultMaxCycles
	}

	return cfg
}

// runBenchmark executes a single benchmark on a fresh core.
func (h *Harness) runBenchmark(bench Benchmark) BenchmarkResult {
	result := BenchmarkResult{
		Name:         bench.Name,
		Description:  bench.Description,
		ExpectedExit: bench.ExpectedExit,
	}

	cfg := h.simConfig()
	c, err := core.NewCore(cfg)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	// Stack grows down from the top of memory.
	c.SetReg(insts.RegSP, cfg.MemorySize)

	if bench.Setup != nil {
		if err := bench.Setup(c); err != nil {
			result.Error = fmt.Sprintf("setup failed: %v", err)
			return result
		}
	}

	if err := c.LoadProgram(cfg.BaseAddress, bench.Program); err != nil {
		result.Error = err.Error()
		return result
	}
	c.SetPC(cfg.BaseAddress)

	// Run simulation and measure time
	start := time.Now()
	_, runErr := c.RunUntilHalt(0)
	result.WallTime = time.Since(start)

	if runErr == nil {
		runErr = c.Fault()
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}

	stats := c.Stats()
	result.SimulatedCycles = stats.Cycles
	result.InstructionsRetired = stats.Instructions
	result.CPI = stats.CPI()
	result.StallCycles = stats.Stalls
	result.FetchStalls = stats.FetchStalls
	result.MemStalls = stats.MemStalls
	result.DataHazards = stats.Forwards
	result.PipelineFlushes = stats.Flushes
	result.ExitCode = c.ExitCode()

	icStats := c.ICacheStats()
	result.ICacheHits = icStats.Hits
	result.ICacheMisses = icStats.Misses

	dcStats := c.DCacheStats()
	result.DCacheHits = dcStats.Hits
	result.DCacheMisses = dcStats.Misses
	result.DCacheEvictions = dcStats.Evictions
	result.DCacheWritebacks = dcStats.Writebacks

	result.MemBusyCycles = c.MemCtrlStats().BusyCycles

	return result
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	w := h.config.Output

	_, _ = fmt.Fprintln(w, "=== RV32 Timing Benchmark Results ===")
	_, _ = fmt.Fprintln(w, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(w, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(w, "  Description: %s\n", r.Description)
		_, _ = fmt.Fprintf(w, "  Exit Code: %d (expected %d)\n", r.ExitCode, r.ExpectedExit)
		if r.Error != "" {
			_, _ = fmt.Fprintf(w, "  Error: %s\n", r.Error)
		}
		_, _ = fmt.Fprintln(w, "  --- Timing ---")
		_, _ = fmt.Fprintf(w, "  Simulated Cycles:     %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(w, "  Instructions Retired: %d\n", r.InstructionsRetired)
		_, _ = fmt.Fprintf(w, "  CPI:                  %.3f\n", r.CPI)
		_, _ = fmt.Fprintf(w, "  Load-Use Stalls:      %d\n", r.StallCycles)
		_, _ = fmt.Fprintf(w, "  Fetch Stalls:         %d\n", r.FetchStalls)
		_, _ = fmt.Fprintf(w, "  Mem Stalls:           %d\n", r.MemStalls)
		_, _ = fmt.Fprintf(w, "  Data Hazards:         %d\n", r.DataHazards)
		_, _ = fmt.Fprintf(w, "  Pipeline Flushes:     %d\n", r.PipelineFlushes)

		if r.ICacheHits > 0 || r.ICacheMisses > 0 {
			_, _ = fmt.Fprintln(w, "  --- I-Cache ---")
			_, _ = fmt.Fprintf(w, "  Hits:   %d\n", r.ICacheHits)
			_, _ = fmt.Fprintf(w, "  Misses: %d\n", r.ICacheMisses)
		}

		if r.DCacheHits > 0 || r.DCacheMisses > 0 {
			_, _ = fmt.Fprintln(w, "  --- D-Cache ---")
			_, _ = fmt.Fprintf(w, "  Hits:       %d\n", r.DCacheHits)
			_, _ = fmt.Fprintf(w, "  Misses:     %d\n", r.DCacheMisses)
			_, _ = fmt.Fprintf(w, "  Evictions:  %d\n", r.DCacheEvictions)
			_, _ = fmt.Fprintf(w, "  Writebacks: %d\n", r.DCacheWritebacks)
		}

		_, _ = fmt.Fprintf(w, "  Memory Busy Cycles: %d\n", r.MemBusyCycles)
		_, _ = fmt.Fprintf(w, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(w, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,cycles,instructions,cpi,stalls,fetch_stalls,mem_stalls,data_hazards,flushes,icache_hits,icache_misses,dcache_hits,dcache_misses,exit_code")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%.3f,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d\n",
			r.Name,
			r.SimulatedCycles,
			r.InstructionsRetired,
			r.CPI,
			r.StallCycles,
			r.FetchStalls,
			r.MemStalls,
			r.DataHazards,
			r.PipelineFlushes,
			r.ICacheHits,
			r.ICacheMisses,
			r.DCacheHits,
			r.DCacheMisses,
			r.ExitCode,
		)
	}
}

// BuildProgram assembles instruction words into a byte slice.
func BuildProgram(instrs ...uint32) []byte {
	return emu.WordsToBytes(instrs)
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

	// Version of the simulator
	Version string `json:"version"`

	// Config describes the benchmark configuration
	Config BenchmarkConfig `json:"config"`
}

// BenchmarkConfig describes the harness configuration used.
type BenchmarkConfig struct {
	ICacheEnabled bool   `json:"icache_enabled"`
	DCacheEnabled bool   `json:"dcache_enabled"`
	MemoryLatency uint64 `json:"memory_latency"`
}

// ReportSummary contains aggregate statistics across all benchmarks.
type ReportSummary struct {
	// TotalBenchmarks is the number of benchmarks run
	TotalBenchmarks int `json:"total_benchmarks"`

	// Failed is the number of benchmarks that did not pass
	Failed int `json:"failed"`

	// TotalCycles is the sum of all simulated cycles
	TotalCycles uint64 `json:"total_cycles"`

	// TotalInstructions is the sum of all instructions retired
	TotalInstructions uint64 `json:"total_instructions"`

	// AverageCPI is the average cycles per instruction
	AverageCPI float64 `json:"average_cpi"`

	// TotalWallTime is the total wall clock time for all benchmarks
	TotalWallTime time.Duration `json:"total_wall_time_ns"`
}

// Summarize aggregates results.
func Summarize(results []BenchmarkResult) ReportSummary {
	var summary ReportSummary
	for _, r := range results {
		summary.TotalCycles += r.SimulatedCycles
		summary.TotalInstructions += r.InstructionsRetired
		summary.TotalWallTime += r.WallTime
		if !r.Passed() {
			summary.Failed++
		}
	}

	summary.TotalBenchmarks = len(results)
	if summary.TotalInstructions > 0 {
		summary.AverageCPI = float64(summary.TotalCycles) / float64(summary.TotalInstructions)
	}

	return summary
}

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   Version,
			Config: BenchmarkConfig{
				ICacheEnabled: h.config.EnableICache,
				DCacheEnabled: h.config.EnableDCache,
				MemoryLatency: h.simConfig().MemoryLatency,
			},
		},
		Results: results,
		Summary: Summarize(results),
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
