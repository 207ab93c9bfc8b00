package pipeline

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rv32sim/emu"
	"github.com/sarchlab/rv32sim/insts"
	"github.com/sarchlab/rv32sim/timing/cache"
	"github.com/sarchlab/rv32sim/timing/memctrl"
)

// Hook positions invoked by the pipeline.
var (
	// HookPosRetire is invoked with a RetireEvent for every instruction
	// leaving Writeback.
	HookPosRetire = &sim.HookPos{Name: "Pipeline Retire"}
	// HookPosStall is invoked with a StallEvent for every stall cycle.
	HookPosStall = &sim.HookPos{Name: "Pipeline Stall"}
	// HookPosFlush is invoked with a FlushEvent for every taken branch or
	// jump.
	HookPosFlush = &sim.HookPos{Name: "Pipeline Flush"}
	// HookPosFault is invoked with a FaultEvent when a fault halts the core.
	HookPosFault = &sim.HookPos{Name: "Pipeline Fault"}
	// HookPosHalt is invoked with a HaltEvent when the halt sentinel
	// retires.
	HookPosHalt = &sim.HookPos{Name: "Pipeline Halt"}
)

// StallKind identifies what stalled the pipeline.
type StallKind uint8

// Stall kinds.
const (
	StallLoadUse StallKind = iota
	StallFetch
	StallMemory
)

func (k StallKind) String() string {
	switch k {
	case StallLoadUse:
		return "load-use"
	case StallFetch:
		return "fetch"
	default:
		return "memory"
	}
}

// RetireEvent describes a retired instruction.
type RetireEvent struct {
	Cycle    uint64
	PC       uint32
	Inst     *insts.Instruction
	RegWrite bool
	Rd       uint8
	Value    uint32
}

// StallEvent describes one stall cycle.
type StallEvent struct {
	Cycle uint64
	Kind  StallKind
	PC    uint32
}

// FlushEvent describes a taken control transfer.
type FlushEvent struct {
	Cycle  uint64
	PC     uint32
	Target uint32
}

// FaultEvent describes the fault that halted the pipeline.
type FaultEvent struct {
	Cycle uint64
	Fault *emu.Fault
}

// HaltEvent describes a clean halt.
type HaltEvent struct {
	Cycle    uint64
	PC       uint32
	ExitCode int64
}

// Statistics holds pipeline performance statistics.
type Statistics struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Instructions is the number of instructions completed (retired).
	Instructions uint64
	// Stalls is the number of load-use stall cycles.
	Stalls uint64
	// FetchStalls is the number of cycles fetch waited on the I-cache.
	FetchStalls uint64
	// MemStalls is the number of cycles Memory waited on the D-cache.
	MemStalls uint64
	// Flushes is the number of taken branches and jumps.
	Flushes uint64
	// DataHazards is the number of operands satisfied by forwarding.
	DataHazards uint64
	// Bubbles is the number of empty slots inserted into the pipeline.
	Bubbles uint64
}

// CPI returns the cycles per instruction.
func (s Statistics) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// PipelineOption is a functional option for configuring the Pipeline.
type PipelineOption func(*Pipeline)

// WithICache sets the L1 instruction cache configuration.
func WithICache(config cache.Config) PipelineOption {
	return func(p *Pipeline) {
		config.WritePolicy = cache.ReadOnly
		p.icacheConfig = config
	}
}

// WithDCache sets the L1 data cache configuration.
func WithDCache(config cache.Config) PipelineOption {
	return func(p *Pipeline) {
		config.WritePolicy = cache.WriteBack
		p.dcacheConfig = config
	}
}

// WithPerfectCaches makes both caches always hit.
func WithPerfectCaches() PipelineOption {
	return func(p *Pipeline) {
		p.icacheConfig.Perfect = true
		p.dcacheConfig.Perfect = true
	}
}

// Pipeline implements a 5-stage pipelined RV32I core.
// Stages: Fetch (IF) -> Decode (ID) -> Execute (EX) -> Memory (MEM) -> Writeback (WB)
type Pipeline struct {
	*sim.HookableBase

	// Pipeline registers
	ifid  IFIDRegister
	idex  IDEXRegister
	exmem EXMEMRegister
	memwb MEMWBRegister

	// Pipeline stages
	fetchStage     *CachedFetchStage
	decodeStage    *DecodeStage
	executeStage   *ExecuteStage
	memoryStage    *CachedMemoryStage
	writebackStage *WritebackStage

	// Hazard detection
	hazardUnit *HazardUnit

	icacheConfig cache.Config
	dcacheConfig cache.Config

	// Shared resources
	regFile *emu.RegFile
	memCtrl *memctrl.Controller
	memory  *emu.Memory

	// Program counter
	pc uint32

	// fetchStopped is set once the halt sentinel or a fault reaches
	// Execute. fetchBlocked is set after a fetch fault until the next
	// redirect.
	fetchStopped bool
	fetchBlocked bool

	// pendingFault is raised once the older instructions have drained.
	pendingFault *emu.Fault

	// Statistics
	stats Statistics

	// Execution state
	halted   bool
	exitCode int64
	fault    *emu.Fault
}

// NewPipeline creates a pipeline over regFile that reaches memory through
// memCtrl. Fetch starts at regFile.PC.
func NewPipeline(
	regFile *emu.RegFile,
	memCtrl *memctrl.Controller,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		HookableBase: sim.NewHookableBase(),
		regFile:      regFile,
		memCtrl:      memCtrl,
		memory:       memCtrl.Memory(),
		icacheConfig: cache.DefaultICacheConfig(),
		dcacheConfig: cache.DefaultDCacheConfig(),
		hazardUnit:   NewHazardUnit(),
		pc:           regFile.PC,
	}

	for _, opt := range opts {
		opt(p)
	}

	icache := cache.New("icache", p.icacheConfig, memCtrl)
	dcache := cache.New("dcache", p.dcacheConfig, memCtrl)

	p.fetchStage = NewCachedFetchStage(icache, p.memory)
	p.decodeStage = NewDecodeStage(regFile)
	p.executeStage = NewExecuteStage(p.memory)
	p.memoryStage = NewCachedMemoryStage(dcache, p.memory)
	p.writebackStage = NewWritebackStage(regFile)

	return p
}

// PC returns the address of the next instruction to fetch.
func (p *Pipeline) PC() uint32 {
	return p.pc
}

// SetPC redirects fetch. It is meant for use before the first tick.
func (p *Pipeline) SetPC(pc uint32) {
	p.pc = pc
	p.regFile.PC = pc
}

// GetIFID returns the IF/ID pipeline register.
func (p *Pipeline) GetIFID() *IFIDRegister {
	return &p.ifid
}

// GetIDEX returns the ID/EX pipeline register.
func (p *Pipeline) GetIDEX() *IDEXRegister {
	return &p.idex
}

// GetEXMEM returns the EX/MEM pipeline register.
func (p *Pipeline) GetEXMEM() *EXMEMRegister {
	return &p.exmem
}

// GetMEMWB returns the MEM/WB pipeline register.
func (p *Pipeline) GetMEMWB() *MEMWBRegister {
	return &p.memwb
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Statistics {
	return p.stats
}

// ICache returns the instruction cache.
func (p *Pipeline) ICache() *cache.Cache {
	return p.fetchStage.Cache()
}

// DCache returns the data cache.
func (p *Pipeline) DCache() *cache.Cache {
	return p.memoryStage.Cache()
}

// Halted returns true once the pipeline has halted, cleanly or by fault.
func (p *Pipeline) Halted() bool {
	return p.halted
}

// ExitCode returns a0 at the time the halt sentinel retired.
func (p *Pipeline) ExitCode() int64 {
	return p.exitCode
}

// Fault returns the fault that halted the pipeline, or nil.
func (p *Pipeline) Fault() *emu.Fault {
	return p.fault
}

func (p *Pipeline) err() error {
	if p.fault != nil {
		return p.fault
	}
	return nil
}

// Run ticks the pipeline up to n times, stopping early on halt. It returns
// the number of ticks performed.
func (p *Pipeline) Run(n uint64) (uint64, error) {
	var ran uint64
	for ran < n && !p.halted {
		ran++
		if err := p.Tick(); err != nil {
			return ran, err
		}
	}
	return ran, p.err()
}

// Tick advances the pipeline by one cycle. It returns the fault that halted
// the pipeline, if any. Ticking a halted pipeline does nothing.
func (p *Pipeline) Tick() error {
	if p.halted {
		return p.err()
	}

	p.stats.Cycles++
	p.tickSingleIssue()
	p.memCtrl.Tick()

	if !p.halted && p.pendingFault != nil && !p.exmem.Valid && !p.memwb.Valid {
		p.raise(p.pendingFault)
	}

	p.regFile.PC = p.pc

	return p.err()
}

// tickSingleIssue evaluates every stage against the current pipeline
// registers, WB first, and then commits all next-state registers at once.
func (p *Pipeline) tickSingleIssue() {
	// Writeback
	wb := p.producerFromMEMWB()
	if p.writebackStage.Writeback(&p.memwb) {
		p.retire()
		if p.memwb.Halt {
			p.halt()
			return
		}
	}

	// Memory
	var nextMEMWB MEMWBRegister
	var mem Producer
	if p.exmem.Valid {
		result := p.memoryStage.Access(&p.exmem)
		if result.Fault != nil {
			p.raise(result.Fault)
			return
		}

		if !result.Ready {
			// Memory and every stage behind it hold; Writeback gets a bubble.
			p.stats.MemStalls++
			p.stats.Bubbles++
			p.emitStall(StallMemory, p.exmem.PC)
			p.memwb.Clear()
			return
		}

		nextMEMWB = MEMWBRegister{
			Valid:     true,
			PC:        p.exmem.PC,
			Inst:      p.exmem.Inst,
			ALUResult: p.exmem.ALUResult,
			MemData:   result.MemData,
			Rd:        p.exmem.Rd,
			RegWrite:  p.exmem.RegWrite,
			MemToReg:  p.exmem.MemToReg,
			Halt:      p.exmem.Halt,
		}
		mem = Producer{
			Valid:    true,
			RegWrite: nextMEMWB.RegWrite,
			Rd:       nextMEMWB.Rd,
			Value:    nextMEMWB.Result(),
		}
	}

	// Execute
	var nextEXMEM EXMEMRegister
	var ex Producer
	var branchTaken bool
	var branchTarget uint32
	squash := false

	if p.idex.Valid {
		if p.idex.Fault != nil {
			p.pendingFault = p.idex.Fault
			p.fetchStopped = true
			squash = true
		} else if result := p.executeStage.Execute(&p.idex); result.Fault != nil {
			p.pendingFault = result.Fault
			p.fetchStopped = true
			squash = true
		} else {
			nextEXMEM = EXMEMRegister{
				Valid:      true,
				PC:         p.idex.PC,
				Inst:       p.idex.Inst,
				ALUResult:  result.ALUResult,
				StoreValue: result.StoreValue,
				Rd:         p.idex.Rd,
				MemRead:    p.idex.MemRead,
				MemWrite:   p.idex.MemWrite,
				RegWrite:   p.idex.RegWrite,
				MemToReg:   p.idex.MemRead,
				Halt:       result.Halt,
			}
			ex = Producer{
				Valid:    true,
				RegWrite: p.idex.RegWrite,
				IsLoad:   p.idex.MemRead,
				Rd:       p.idex.Rd,
				Value:    result.ALUResult,
			}
			branchTaken = result.BranchTaken
			branchTarget = result.BranchTarget

			if result.Halt {
				p.fetchStopped = true
				squash = true
			}
		}
	}

	p.exmem = nextEXMEM
	p.memwb = nextMEMWB

	if squash {
		p.idex.Clear()
		p.ifid.Clear()
		return
	}

	// Decode
	var nextIDEX IDEXRegister
	var forwarding ForwardingResult
	loadUse := false
	if p.ifid.Valid {
		nextIDEX = p.decodeStage.Decode(&p.ifid)
		consumer := nextIDEX.Consumer()

		loadUse = p.hazardUnit.DetectLoadUseHazard(consumer, ex)
		forwarding = p.hazardUnit.DetectForwarding(consumer, ex, mem, wb)
		nextIDEX.Rs1Value = p.hazardUnit.GetForwardedValue(
			forwarding.ForwardRs1, nextIDEX.Rs1Value, ex, mem, wb)
		nextIDEX.Rs2Value = p.hazardUnit.GetForwardedValue(
			forwarding.ForwardRs2, nextIDEX.Rs2Value, ex, mem, wb)
	}

	stalls := p.hazardUnit.ComputeStalls(loadUse, branchTaken)

	// Fetch
	var nextIFID IFIDRegister
	nextPC := p.pc
	switch {
	case stalls.FlushIF:
		nextPC = branchTarget
		p.fetchBlocked = false
		p.stats.Flushes++
		p.stats.Bubbles += 2
		p.emit(HookPosFlush, FlushEvent{
			Cycle:  p.stats.Cycles,
			PC:     p.idex.PC,
			Target: branchTarget,
		})
	case stalls.StallIF:
		p.stats.Stalls++
		p.stats.Bubbles++
		p.emitStall(StallLoadUse, p.ifid.PC)
	case p.fetchStopped || p.fetchBlocked:
	default:
		nextIFID, nextPC = p.fetch()
	}

	// Commit
	switch {
	case stalls.FlushID, stalls.InsertBubbleEX:
		p.idex.Clear()
	default:
		p.idex = nextIDEX
		p.countForwards(forwarding)
	}

	switch {
	case stalls.FlushIF:
		p.ifid.Clear()
	case stalls.StallID:
	default:
		p.ifid = nextIFID
	}

	p.pc = nextPC
}

func (p *Pipeline) fetch() (IFIDRegister, uint32) {
	result := p.fetchStage.Fetch(p.pc)

	if !result.Ready {
		p.stats.FetchStalls++
		p.stats.Bubbles++
		p.emitStall(StallFetch, p.pc)
		return IFIDRegister{}, p.pc
	}

	ifid := IFIDRegister{
		Valid:           true,
		PC:              p.pc,
		InstructionWord: result.Word,
		Fault:           result.Fault,
	}

	if result.Fault != nil {
		p.fetchBlocked = true
		return ifid, p.pc
	}

	return ifid, p.pc + 4
}

func (p *Pipeline) countForwards(f ForwardingResult) {
	if f.ForwardRs1 != ForwardNone {
		p.stats.DataHazards++
	}
	if f.ForwardRs2 != ForwardNone {
		p.stats.DataHazards++
	}
}

func (p *Pipeline) producerFromMEMWB() Producer {
	if !p.memwb.Valid {
		return Producer{}
	}

	return Producer{
		Valid:    true,
		RegWrite: p.memwb.RegWrite,
		Rd:       p.memwb.Rd,
		Value:    p.memwb.Result(),
	}
}

func (p *Pipeline) retire() {
	p.stats.Instructions++

	p.emit(HookPosRetire, RetireEvent{
		Cycle:    p.stats.Cycles,
		PC:       p.memwb.PC,
		Inst:     p.memwb.Inst,
		RegWrite: p.memwb.RegWrite,
		Rd:       p.memwb.Rd,
		Value:    p.memwb.Result(),
	})
}

func (p *Pipeline) clearLatches() {
	p.ifid.Clear()
	p.idex.Clear()
	p.exmem.Clear()
	p.memwb.Clear()
}

func (p *Pipeline) halt() {
	pc := p.memwb.PC

	p.halted = true
	p.exitCode = int64(int32(p.regFile.ReadReg(insts.RegA0)))
	p.pc = pc + 4
	p.clearLatches()

	p.emit(HookPosHalt, HaltEvent{
		Cycle:    p.stats.Cycles,
		PC:       pc,
		ExitCode: p.exitCode,
	})
}

// raise halts the pipeline with f, discarding every in-flight instruction.
func (p *Pipeline) raise(f *emu.Fault) {
	p.halted = true
	p.fault = f
	p.pc = f.PC
	p.clearLatches()

	p.emit(HookPosFault, FaultEvent{
		Cycle: p.stats.Cycles,
		Fault: f,
	})
}

func (p *Pipeline) emitStall(kind StallKind, pc uint32) {
	p.emit(HookPosStall, StallEvent{
		Cycle: p.stats.Cycles,
		Kind:  kind,
		PC:    pc,
	})
}

func (p *Pipeline) emit(pos *sim.HookPos, item interface{}) {
	if p.NumHooks() == 0 {
		return
	}

	p.InvokeHook(sim.HookCtx{
		Domain: p,
		Pos:    pos,
		Item:   item,
	})
}

// Reset clears all pipeline state, both caches and the memory controller
// queue, and restarts fetch at the register file's PC.
func (p *Pipeline) Reset() {
	p.clearLatches()
	p.ICache().Reset()
	p.DCache().Reset()
	p.memCtrl.Reset()

	p.pc = p.regFile.PC
	p.fetchStopped = false
	p.fetchBlocked = false
	p.pendingFault = nil
	p.stats = Statistics{}
	p.halted = false
	p.exitCode = 0
	p.fault = nil
}
