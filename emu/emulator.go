package emu

import (
	"fmt"

	"github.com/sarchlab/rv32sim/insts"
)

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Exited is true if the program executed the halt sentinel.
	Exited bool

	// ExitCode is the value of a0 (sign-extended) if Exited is true.
	ExitCode int64

	// Err is set if the instruction faulted.
	Err error
}

// Emulator executes RV32I instructions functionally, one instruction per
// step. It is the architectural reference the timing model is compared
// against.
type Emulator struct {
	regFile *RegFile
	memory  *Memory
	decoder *insts.Decoder
	lsu     *LoadStoreUnit

	// Execution state
	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit
	halted           bool
	exitCode         int64
	fault            error
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithMemory runs the emulator against an existing memory.
func WithMemory(memory *Memory) EmulatorOption {
	return func(e *Emulator) {
		e.memory = memory
	}
}

// WithEntry sets the initial PC.
func WithEntry(pc uint32) EmulatorOption {
	return func(e *Emulator) {
		e.regFile.PC = pc
	}
}

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// NewEmulator creates a new RV32I emulator.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		regFile: &RegFile{},
		decoder: insts.NewDecoder(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.memory == nil {
		e.memory = NewMemory(DefaultMemorySize)
	}
	e.lsu = NewLoadStoreUnit(e.memory)

	return e
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// Memory returns the emulator's memory.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// InstructionCount returns the number of instructions retired.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// Halted returns true once the emulator has exited or faulted.
func (e *Emulator) Halted() bool {
	return e.halted
}

// LoadProgram copies image to base and sets the PC to entry.
func (e *Emulator) LoadProgram(base uint32, image []byte, entry uint32) error {
	if err := e.memory.LoadProgram(base, image); err != nil {
		return fmt.Errorf("failed to load program: %w", err)
	}
	e.regFile.PC = entry
	return nil
}

// Step executes a single instruction.
func (e *Emulator) Step() StepResult {
	if e.halted {
		return StepResult{Exited: e.fault == nil, ExitCode: e.exitCode, Err: e.fault}
	}

	if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
		return StepResult{
			Err: fmt.Errorf("max instructions reached"),
		}
	}

	pc := e.regFile.PC

	word, err := e.memory.Read32(pc)
	if err != nil {
		return e.raise(AsFault(err, pc), pc, true)
	}

	inst := e.decoder.Decode(word)
	if inst.Illegal() {
		return e.raise(&Fault{Kind: FaultIllegalInstruction, Word: word}, pc, false)
	}

	result := e.execute(inst, pc)
	if result.Err == nil {
		e.instructionCount++
	}

	return result
}

// Run executes instructions until the program exits or faults.
func (e *Emulator) Run() StepResult {
	for {
		result := e.Step()
		if result.Exited || result.Err != nil {
			return result
		}
	}
}

func (e *Emulator) raise(f *Fault, pc uint32, fetch bool) StepResult {
	f = f.At(pc)
	if fetch {
		f.Fetch = true
	}
	e.halted = true
	e.fault = f
	return StepResult{Err: f}
}

func (e *Emulator) execute(inst *insts.Instruction, pc uint32) StepResult {
	ctrl := inst.Ctrl
	rs1 := e.regFile.ReadReg(inst.Rs1)
	rs2 := e.regFile.ReadReg(inst.Rs2)

	if ctrl.Halt {
		e.halted = true
		e.exitCode = int64(int32(e.regFile.ReadReg(insts.RegA0)))
		e.regFile.PC = pc + 4
		return StepResult{Exited: true, ExitCode: e.exitCode}
	}

	a, b := Operands(inst, pc, rs1, rs2)
	result := Compute(a, b, ctrl.ALUOp)

	switch {
	case ctrl.MemRead:
		value, err := e.lsu.Load(result, ctrl.MemSize, ctrl.MemSigned)
		if err != nil {
			return e.raise(AsFault(err, result), pc, false)
		}
		result = value
	case ctrl.MemWrite:
		if err := e.lsu.Store(result, ctrl.MemSize, rs2); err != nil {
			return e.raise(AsFault(err, result), pc, false)
		}
	}

	next := pc + 4
	if taken, target := Redirect(inst, pc, rs1, rs2); taken {
		if f := CheckTarget(e.memory, pc, target); f != nil {
			e.halted = true
			e.fault = f
			return StepResult{Err: f}
		}
		next = target
	}

	if ctrl.RegWrite {
		e.regFile.WriteReg(inst.Rd, result)
	}
	e.regFile.PC = next

	return StepResult{}
}
