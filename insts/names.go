package insts

import (
	"fmt"
	"strings"
)

// Commonly referenced registers by ABI name.
const (
	RegZero uint8 = 0
	RegRA   uint8 = 1
	RegSP   uint8 = 2
	RegA0   uint8 = 10
	RegA1   uint8 = 11
)

var abiNames = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// RegName returns the ABI name of register r.
func RegName(r uint8) string {
	if int(r) >= len(abiNames) {
		return fmt.Sprintf("x%d", r)
	}
	return abiNames[r]
}

// ParseReg accepts either an ABI name ("a0"), "fp", or a numeric name ("x10").
func ParseReg(name string) (uint8, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "fp" {
		return 8, true
	}

	for i, n := range abiNames {
		if n == name {
			return uint8(i), true
		}
	}

	var r int
	if _, err := fmt.Sscanf(name, "x%d", &r); err == nil && r >= 0 && r < 32 {
		return uint8(r), true
	}

	return 0, false
}

var opNames = map[Op]string{
	OpIllegal: "illegal",
	OpLUI:     "lui",
	OpAUIPC:   "auipc",
	OpJAL:     "jal",
	OpJALR:    "jalr",
	OpBEQ:     "beq",
	OpBNE:     "bne",
	OpBLT:     "blt",
	OpBGE:     "bge",
	OpBLTU:    "bltu",
	OpBGEU:    "bgeu",
	OpLB:      "lb",
	OpLH:      "lh",
	OpLW:      "lw",
	OpLBU:     "lbu",
	OpLHU:     "lhu",
	OpSB:      "sb",
	OpSH:      "sh",
	OpSW:      "sw",
	OpADDI:    "addi",
	OpSLTI:    "slti",
	OpSLTIU:   "sltiu",
	OpXORI:    "xori",
	OpORI:     "ori",
	OpANDI:    "andi",
	OpSLLI:    "slli",
	OpSRLI:    "srli",
	OpSRAI:    "srai",
	OpADD:     "add",
	OpSUB:     "sub",
	OpSLL:     "sll",
	OpSLT:     "slt",
	OpSLTU:    "sltu",
	OpXOR:     "xor",
	OpSRL:     "srl",
	OpSRA:     "sra",
	OpOR:      "or",
	OpAND:     "and",
	OpFENCE:   "fence",
	OpECALL:   "ecall",
	OpEBREAK:  "ebreak",
}

// String returns the assembler mnemonic.
func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// String disassembles the instruction.
func (i *Instruction) String() string {
	rd, rs1, rs2 := RegName(i.Rd), RegName(i.Rs1), RegName(i.Rs2)

	switch i.Class {
	case ClassIllegal:
		return fmt.Sprintf("illegal 0x%08x", i.Word)
	case ClassALUReg:
		return fmt.Sprintf("%s %s, %s, %s", i.Op, rd, rs1, rs2)
	case ClassALUImm, ClassJALR:
		return fmt.Sprintf("%s %s, %s, %d", i.Op, rd, rs1, i.Imm)
	case ClassLoad:
		return fmt.Sprintf("%s %s, %d(%s)", i.Op, rd, i.Imm, rs1)
	case ClassStore:
		return fmt.Sprintf("%s %s, %d(%s)", i.Op, rs2, i.Imm, rs1)
	case ClassBranch:
		return fmt.Sprintf("%s %s, %s, %d", i.Op, rs1, rs2, i.Imm)
	case ClassJAL:
		return fmt.Sprintf("%s %s, %d", i.Op, rd, i.Imm)
	case ClassLUI, ClassAUIPC:
		return fmt.Sprintf("%s %s, 0x%x", i.Op, rd, uint32(i.Imm)>>12)
	default:
		return i.Op.String()
	}
}
