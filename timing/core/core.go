// Package core provides the cycle-accurate CPU core model.
// It wraps the pipeline, its caches and main memory behind a high-level
// interface.
package core

import (
	"errors"
	"fmt"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rv32sim/emu"
	"github.com/sarchlab/rv32sim/timing/cache"
	"github.com/sarchlab/rv32sim/timing/config"
	"github.com/sarchlab/rv32sim/timing/memctrl"
	"github.com/sarchlab/rv32sim/timing/pipeline"
)

// ErrCycleLimit is returned by RunUntilHalt when the core is still running
// after the cycle limit.
var ErrCycleLimit = errors.New("cycle limit reached before halt")

// Stats holds performance statistics for the core.
type Stats struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Instructions is the number of instructions retired.
	Instructions uint64
	// Stalls is the number of load-use stall cycles.
	Stalls uint64
	// FetchStalls is the number of cycles fetch waited on the I-cache.
	FetchStalls uint64
	// MemStalls is the number of cycles the Memory stage waited on the
	// D-cache.
	MemStalls uint64
	// Flushes is the number of pipeline flushes.
	Flushes uint64
	// Forwards is the number of operands satisfied by forwarding.
	Forwards uint64
	// Bubbles is the number of empty slots inserted into the pipeline.
	Bubbles uint64
}

// CPI returns the cycles per instruction.
func (s Stats) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// Core represents a cycle-accurate CPU core model.
// It wraps a 5-stage pipeline and provides a simple interface for simulation.
type Core struct {
	// Pipeline is the underlying 5-stage pipeline.
	Pipeline *pipeline.Pipeline

	config *config.SimConfig

	// Shared resources
	regFile *emu.RegFile
	memory  *emu.Memory
	memCtrl *memctrl.Controller
}

// NewCore builds a core from cfg. A nil cfg uses config.DefaultSimConfig.
func NewCore(cfg *config.SimConfig) (*Core, error) {
	if cfg == nil {
		cfg = config.DefaultSimConfig()
	}
	cfg = cfg.Clone()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid core config: %w", err)
	}

	memory := emu.NewMemory(cfg.MemorySize)
	memCtrl := memctrl.New(memory, cfg.MemoryLatency)
	regFile := &emu.RegFile{PC: cfg.BaseAddress}

	return &Core{
		Pipeline: pipeline.NewPipeline(regFile, memCtrl,
			pipeline.WithICache(cfg.ICache),
			pipeline.WithDCache(cfg.DCache),
		),
		config:  cfg,
		regFile: regFile,
		memory:  memory,
		memCtrl: memCtrl,
	}, nil
}

// Config returns the configuration the core was built with.
func (c *Core) Config() *config.SimConfig {
	return c.config
}

// Memory returns main memory.
func (c *Core) Memory() *emu.Memory {
	return c.memory
}

// MemCtrl returns the memory controller.
func (c *Core) MemCtrl() *memctrl.Controller {
	return c.memCtrl
}

// LoadProgram copies image into main memory at base. Caches are not
// updated, so programs should be loaded before the first Step.
func (c *Core) LoadProgram(base uint32, image []byte) error {
	if err := c.memory.LoadProgram(base, image); err != nil {
		return fmt.Errorf("failed to load program: %w", err)
	}
	return nil
}

// LoadWords copies little-endian words into main memory at base.
func (c *Core) LoadWords(base uint32, words []uint32) error {
	return c.LoadProgram(base, emu.WordsToBytes(words))
}

// SetPC sets the program counter.
func (c *Core) SetPC(pc uint32) {
	c.Pipeline.SetPC(pc)
}

// PC returns the address of the next instruction to fetch.
func (c *Core) PC() uint32 {
	return c.Pipeline.PC()
}

// Reg returns the architectural value of register r.
func (c *Core) Reg(r uint8) uint32 {
	return c.regFile.ReadReg(r)
}

// SetReg sets the architectural value of register r. Writes to x0 are
// ignored.
func (c *Core) SetReg(r uint8, value uint32) {
	c.regFile.WriteReg(r, value)
}

// Regs returns a copy of all 32 registers.
func (c *Core) Regs() [emu.NumRegs]uint32 {
	return c.regFile.Snapshot()
}

// Step executes exactly one pipeline cycle.
func (c *Core) Step() error {
	return c.Pipeline.Tick()
}

// Run executes up to n cycles, stopping early on halt. It returns the
// number of cycles executed.
func (c *Core) Run(n uint64) (uint64, error) {
	return c.Pipeline.Run(n)
}

// RunUntilHalt runs until the core halts or max cycles have elapsed. A zero
// max falls back to the configured MaxCycles; if that is zero too the run
// is unbounded.
func (c *Core) RunUntilHalt(max uint64) (uint64, error) {
	if max == 0 {
		max = c.config.MaxCycles
	}

	var ran uint64
	for !c.Halted() {
		if max > 0 && ran >= max {
			return ran, fmt.Errorf("%w: %d cycles", ErrCycleLimit, max)
		}

		ran++
		if err := c.Pipeline.Tick(); err != nil {
			return ran, err
		}
	}

	return ran, nil
}

// ReadMemory reads n bytes at addr as the program sees them: bytes held in
// the data cache take precedence over main memory.
func (c *Core) ReadMemory(addr, n uint32) ([]byte, error) {
	data, err := c.memory.ReadBlock(addr, n)
	if err != nil {
		return nil, err
	}

	dcache := c.Pipeline.DCache()
	for i := range data {
		if b, ok := dcache.ProbeByte(addr + uint32(i)); ok {
			data[i] = b
		}
	}

	return data, nil
}

// ReadWord reads the little-endian word at addr through ReadMemory.
func (c *Core) ReadWord(addr uint32) (uint32, error) {
	data, err := c.ReadMemory(addr, 4)
	if err != nil {
		return 0, err
	}

	return uint32(data[0]) | uint32(data[1])<<8 |
		uint32(data[2])<<16 | uint32(data[3])<<24, nil
}

// ReadMemoryRaw reads n bytes at addr from main memory, ignoring the
// caches.
func (c *Core) ReadMemoryRaw(addr, n uint32) ([]byte, error) {
	return c.memory.ReadBlock(addr, n)
}

// FlushCaches writes every dirty data cache line back to main memory and
// invalidates both caches.
func (c *Core) FlushCaches() error {
	if err := c.Pipeline.DCache().Flush(); err != nil {
		return fmt.Errorf("failed to flush dcache: %w", err)
	}
	if err := c.Pipeline.ICache().Flush(); err != nil {
		return fmt.Errorf("failed to flush icache: %w", err)
	}
	return nil
}

// Halted returns true if the core has halted, cleanly or by fault.
func (c *Core) Halted() bool {
	return c.Pipeline.Halted()
}

// ExitCode returns the exit code if the core has halted.
func (c *Core) ExitCode() int64 {
	return c.Pipeline.ExitCode()
}

// Fault returns the fault that halted the core, or nil.
func (c *Core) Fault() error {
	if f := c.Pipeline.Fault(); f != nil {
		return f
	}
	return nil
}

// Stats returns performance statistics for the core.
func (c *Core) Stats() Stats {
	pipeStats := c.Pipeline.Stats()
	return Stats{
		Cycles:       pipeStats.Cycles,
		Instructions: pipeStats.Instructions,
		Stalls:       pipeStats.Stalls,
		FetchStalls:  pipeStats.FetchStalls,
		MemStalls:    pipeStats.MemStalls,
		Flushes:      pipeStats.Flushes,
		Forwards:     pipeStats.DataHazards,
		Bubbles:      pipeStats.Bubbles,
	}
}

// ICacheStats returns the instruction cache statistics.
func (c *Core) ICacheStats() cache.Statistics {
	return c.Pipeline.ICache().Stats()
}

// DCacheStats returns the data cache statistics.
func (c *Core) DCacheStats() cache.Statistics {
	return c.Pipeline.DCache().Stats()
}

// MemCtrlStats returns the memory controller statistics.
func (c *Core) MemCtrlStats() memctrl.Statistics {
	return c.memCtrl.Stats()
}

// SimulatedTime returns the simulated time elapsed at the configured clock.
func (c *Core) SimulatedTime() sim.VTimeInSec {
	return c.config.SimulatedTime(c.Pipeline.Stats().Cycles)
}

// AcceptHook registers a hook on the pipeline.
func (c *Core) AcceptHook(hook sim.Hook) {
	c.Pipeline.AcceptHook(hook)
}

// Reset writes every dirty line back, including write-backs still queued at
// the memory controller, then clears registers, caches and statistics and
// restarts at the base address. Main memory keeps everything the program
// stored.
func (c *Core) Reset() error {
	if err := c.memCtrl.DrainWritebacks(); err != nil {
		return fmt.Errorf("failed to drain write-backs: %w", err)
	}
	if err := c.FlushCaches(); err != nil {
		return err
	}

	c.regFile.Reset()
	c.regFile.PC = c.config.BaseAddress
	c.Pipeline.Reset()

	return nil
}
