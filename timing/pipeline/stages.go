// Package pipeline provides a 5-stage pipeline model for cycle-accurate timing simulation.
package pipeline

import (
	"github.com/sarchlab/rv32sim/emu"
	"github.com/sarchlab/rv32sim/insts"
)

// DecodeStage handles instruction decode and register read.
type DecodeStage struct {
	regFile *emu.RegFile
	decoder *insts.Decoder
}

// NewDecodeStage creates a new decode stage.
func NewDecodeStage(regFile *emu.RegFile) *DecodeStage {
	return &DecodeStage{
		regFile: regFile,
		decoder: insts.NewDecoder(),
	}
}

// Decode decodes the instruction in IF/ID and reads its source registers.
// Fetch faults and illegal encodings are carried in the result's Fault.
func (s *DecodeStage) Decode(ifid *IFIDRegister) IDEXRegister {
	inst := s.decoder.Decode(ifid.InstructionWord)

	result := IDEXRegister{
		Valid: true,
		PC:    ifid.PC,
		Inst:  inst,
	}

	switch {
	case ifid.Fault != nil:
		result.Fault = ifid.Fault
		return result
	case inst.Illegal():
		result.Fault = &emu.Fault{
			Kind: emu.FaultIllegalInstruction,
			PC:   ifid.PC,
			Word: ifid.InstructionWord,
		}
		return result
	}

	result.Rd = inst.Rd
	result.Rs1 = inst.Rs1
	result.Rs2 = inst.Rs2
	result.Rs1Value = s.regFile.ReadReg(inst.Rs1)
	result.Rs2Value = s.regFile.ReadReg(inst.Rs2)
	result.MemRead = inst.Ctrl.MemRead
	result.MemWrite = inst.Ctrl.MemWrite
	result.RegWrite = inst.Ctrl.RegWrite && inst.Rd != 0

	return result
}

// Consumer returns the hazard-unit view of a decoded instruction.
func (r *IDEXRegister) Consumer() Consumer {
	if r.Fault != nil {
		return Consumer{}
	}

	return Consumer{
		Rs1:     r.Rs1,
		Rs2:     r.Rs2,
		UsesRs1: r.Inst.Ctrl.UsesRs1,
		UsesRs2: r.Inst.Ctrl.UsesRs2,
	}
}

// ExecuteStage handles ALU operations, address calculation and branch
// resolution. Redirect targets are checked against memory so that a bad
// jump faults on the jump itself.
type ExecuteStage struct {
	memory *emu.Memory
}

// NewExecuteStage creates a new execute stage.
func NewExecuteStage(memory *emu.Memory) *ExecuteStage {
	return &ExecuteStage{
		memory: memory,
	}
}

// ExecuteResult holds the result of the execute stage.
type ExecuteResult struct {
	ALUResult  uint32
	StoreValue uint32

	// BranchTaken is true when fetch must be redirected to BranchTarget.
	BranchTaken  bool
	BranchTarget uint32

	// Halt is true for the halt sentinel.
	Halt bool

	// Fault is set when the redirect target cannot be fetched.
	Fault *emu.Fault
}

// Execute performs the ALU operation for the instruction in ID/EX.
func (s *ExecuteStage) Execute(idex *IDEXRegister) ExecuteResult {
	inst := idex.Inst

	a, b := emu.Operands(inst, idex.PC, idex.Rs1Value, idex.Rs2Value)
	result := ExecuteResult{
		ALUResult:  emu.Compute(a, b, inst.Ctrl.ALUOp),
		StoreValue: idex.Rs2Value,
		Halt:       inst.Ctrl.Halt,
	}

	result.BranchTaken, result.BranchTarget = emu.Redirect(
		inst, idex.PC, idex.Rs1Value, idex.Rs2Value)

	if result.BranchTaken {
		result.Fault = emu.CheckTarget(s.memory, idex.PC, result.BranchTarget)
	}

	return result
}

// WritebackStage writes results to the register file.
type WritebackStage struct {
	regFile *emu.RegFile
}

// NewWritebackStage creates a new writeback stage.
func NewWritebackStage(regFile *emu.RegFile) *WritebackStage {
	return &WritebackStage{
		regFile: regFile,
	}
}

// Writeback retires the instruction in MEM/WB. Returns true if an
// instruction retired.
func (s *WritebackStage) Writeback(memwb *MEMWBRegister) bool {
	if !memwb.Valid {
		return false
	}

	if memwb.RegWrite {
		s.regFile.WriteReg(memwb.Rd, memwb.Result())
	}

	return true
}
