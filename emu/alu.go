package emu

import "github.com/sarchlab/rv32sim/insts"

// Compute evaluates an ALU function. Arithmetic wraps at 32 bits and shifts
// use the low 5 bits of b. The ALU holds no state.
func Compute(a, b uint32, op insts.ALUOp) uint32 {
	switch op {
	case insts.ALUAdd:
		return a + b
	case insts.ALUSub:
		return a - b
	case insts.ALUAnd:
		return a & b
	case insts.ALUOr:
		return a | b
	case insts.ALUXor:
		return a ^ b
	case insts.ALUSll:
		return a << (b & 0x1F)
	case insts.ALUSrl:
		return a >> (b & 0x1F)
	case insts.ALUSra:
		return uint32(int32(a) >> (b & 0x1F))
	case insts.ALUSlt:
		return boolToWord(int32(a) < int32(b))
	case insts.ALUSltu:
		return boolToWord(a < b)
	case insts.ALUPassB:
		return b
	default:
		return 0
	}
}

func boolToWord(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}

// Operands selects the ALU inputs for an instruction given the values of its
// source registers.
func Operands(inst *insts.Instruction, pc, rs1, rs2 uint32) (a, b uint32) {
	switch inst.Ctrl.ASrc {
	case insts.OperandAPC:
		a = pc
	case insts.OperandAZero:
		a = 0
	default:
		a = rs1
	}

	switch inst.Ctrl.BSrc {
	case insts.OperandBImm:
		b = uint32(inst.Imm)
	case insts.OperandBFour:
		b = 4
	default:
		b = rs2
	}

	return a, b
}
