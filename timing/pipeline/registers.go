package pipeline

import (
	"github.com/sarchlab/rv32sim/emu"
	"github.com/sarchlab/rv32sim/insts"
)

// IFIDRegister holds state between Fetch and Decode stages.
type IFIDRegister struct {
	// Valid indicates if this pipeline register contains valid data.
	Valid bool

	// PC is the program counter of the fetched instruction.
	PC uint32

	// InstructionWord is the raw 32-bit instruction word.
	InstructionWord uint32

	// Fault is set when the fetch itself faulted. It is raised only if the
	// instruction reaches Execute.
	Fault *emu.Fault
}

// Clear resets the IF/ID register to empty state.
func (r *IFIDRegister) Clear() {
	*r = IFIDRegister{}
}

// IDEXRegister holds state between Decode and Execute stages.
type IDEXRegister struct {
	// Valid indicates if this pipeline register contains valid data.
	Valid bool

	// PC is the program counter of the instruction.
	PC uint32

	// Inst is the decoded instruction.
	Inst *insts.Instruction

	// Operand values, after forwarding.
	Rs1Value uint32
	Rs2Value uint32

	// Register numbers for hazard detection.
	Rd  uint8
	Rs1 uint8
	Rs2 uint8

	// Control signals.
	MemRead  bool // True for load instructions
	MemWrite bool // True for store instructions
	RegWrite bool // True if instruction writes rd

	// Fault is a fetch or decode fault to raise in Execute.
	Fault *emu.Fault
}

// Clear resets the ID/EX register to empty state.
func (r *IDEXRegister) Clear() {
	*r = IDEXRegister{}
}

// EXMEMRegister holds state between Execute and Memory stages.
type EXMEMRegister struct {
	// Valid indicates if this pipeline register contains valid data.
	Valid bool

	// PC is the program counter of the instruction.
	PC uint32

	// Inst is the decoded instruction.
	Inst *insts.Instruction

	// ALUResult is the ALU output: the result, or the effective address for
	// loads and stores.
	ALUResult uint32

	// StoreValue is the value to store (for store instructions).
	StoreValue uint32

	// Rd is the destination register.
	Rd uint8

	// Control signals.
	MemRead  bool
	MemWrite bool
	RegWrite bool
	MemToReg bool

	// Halt marks the halt sentinel.
	Halt bool
}

// Clear resets the EX/MEM register to empty state.
func (r *EXMEMRegister) Clear() {
	*r = EXMEMRegister{}
}

// MEMWBRegister holds state between Memory and Writeback stages.
type MEMWBRegister struct {
	// Valid indicates if this pipeline register contains valid data.
	Valid bool

	// PC is the program counter of the instruction.
	PC uint32

	// Inst is the decoded instruction.
	Inst *insts.Instruction

	// ALUResult is the ALU output.
	ALUResult uint32

	// MemData is the extended value loaded from memory.
	MemData uint32

	// Rd is the destination register.
	Rd uint8

	// Control signals.
	RegWrite bool
	MemToReg bool

	// Halt marks the halt sentinel.
	Halt bool
}

// Clear resets the MEM/WB register to empty state.
func (r *MEMWBRegister) Clear() {
	*r = MEMWBRegister{}
}

// Result returns the value written to rd.
func (r *MEMWBRegister) Result() uint32 {
	if r.MemToReg {
		return r.MemData
	}
	return r.ALUResult
}
