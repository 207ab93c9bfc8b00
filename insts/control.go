package insts

// Class groups operations that share a datapath shape. Each class maps to one
// control bundle; the operation only refines the ALU function, branch
// condition and memory width.
type Class uint8

// Instruction classes.
const (
	ClassIllegal Class = iota
	ClassALUReg
	ClassALUImm
	ClassLoad
	ClassStore
	ClassBranch
	ClassJAL
	ClassJALR
	ClassLUI
	ClassAUIPC
	ClassFence
	ClassSystem
)

// ALUOp selects the ALU function.
type ALUOp uint8

// ALU functions.
const (
	ALUAdd ALUOp = iota
	ALUSub
	ALUAnd
	ALUOr
	ALUXor
	ALUSll
	ALUSrl
	ALUSra
	ALUSlt
	ALUSltu
	ALUPassB
)

// BranchCond is the comparison a conditional branch performs.
type BranchCond uint8

// Branch conditions.
const (
	BranchNone BranchCond = iota
	BranchEQ
	BranchNE
	BranchLT
	BranchGE
	BranchLTU
	BranchGEU
)

// OperandA selects the first ALU input.
type OperandA uint8

// First ALU input sources.
const (
	OperandARs1 OperandA = iota
	OperandAPC
	OperandAZero
)

// OperandB selects the second ALU input.
type OperandB uint8

// Second ALU input sources.
const (
	OperandBRs2 OperandB = iota
	OperandBImm
	// OperandBFour feeds the constant 4, used for link values.
	OperandBFour
)

// WBSource selects what the write-back stage writes to rd.
type WBSource uint8

// Write-back sources.
const (
	WBFromALU WBSource = iota
	WBFromMem
)

// Control is the bundle of control signals that drives one instruction
// through the pipeline.
type Control struct {
	RegWrite bool // Writes rd
	MemRead  bool // Loads from the data cache
	MemWrite bool // Stores to the data cache

	ALUOp ALUOp
	ASrc  OperandA
	BSrc  OperandB
	WBSrc WBSource

	Branch  BranchCond // Conditional branch comparison, BranchNone otherwise
	Jump    bool       // Unconditional control transfer
	JumpReg bool       // Jump target is rs1+imm instead of pc+imm

	MemSize   uint8 // Access width in bytes for loads and stores
	MemSigned bool  // Loads sign-extend

	// Halt marks the halt sentinel (ECALL, EBREAK).
	Halt bool

	UsesRs1 bool
	UsesRs2 bool
}

// IsBranch returns true for conditional branches.
func (c Control) IsBranch() bool {
	return c.Branch != BranchNone
}

var classControl = map[Class]Control{
	ClassALUReg: {
		RegWrite: true, ASrc: OperandARs1, BSrc: OperandBRs2,
		UsesRs1: true, UsesRs2: true,
	},
	ClassALUImm: {
		RegWrite: true, ASrc: OperandARs1, BSrc: OperandBImm,
		UsesRs1: true,
	},
	ClassLoad: {
		RegWrite: true, MemRead: true, ALUOp: ALUAdd,
		ASrc: OperandARs1, BSrc: OperandBImm, WBSrc: WBFromMem,
		UsesRs1: true,
	},
	ClassStore: {
		MemWrite: true, ALUOp: ALUAdd,
		ASrc: OperandARs1, BSrc: OperandBImm,
		UsesRs1: true, UsesRs2: true,
	},
	ClassBranch: {
		ALUOp: ALUAdd, ASrc: OperandAPC, BSrc: OperandBImm,
		UsesRs1: true, UsesRs2: true,
	},
	ClassJAL: {
		RegWrite: true, Jump: true, ALUOp: ALUAdd,
		ASrc: OperandAPC, BSrc: OperandBFour,
	},
	ClassJALR: {
		RegWrite: true, Jump: true, JumpReg: true, ALUOp: ALUAdd,
		ASrc: OperandAPC, BSrc: OperandBFour,
		UsesRs1: true,
	},
	ClassLUI: {
		RegWrite: true, ALUOp: ALUPassB,
		ASrc: OperandAZero, BSrc: OperandBImm,
	},
	ClassAUIPC: {
		RegWrite: true, ALUOp: ALUAdd,
		ASrc: OperandAPC, BSrc: OperandBImm,
	},
	ClassFence:  {},
	ClassSystem: {Halt: true},
}

var opClass = map[Op]Class{
	OpLUI:   ClassLUI,
	OpAUIPC: ClassAUIPC,
	OpJAL:   ClassJAL,
	OpJALR:  ClassJALR,
	OpBEQ:   ClassBranch, OpBNE: ClassBranch, OpBLT: ClassBranch,
	OpBGE: ClassBranch, OpBLTU: ClassBranch, OpBGEU: ClassBranch,
	OpLB: ClassLoad, OpLH: ClassLoad, OpLW: ClassLoad,
	OpLBU: ClassLoad, OpLHU: ClassLoad,
	OpSB: ClassStore, OpSH: ClassStore, OpSW: ClassStore,
	OpADDI: ClassALUImm, OpSLTI: ClassALUImm, OpSLTIU: ClassALUImm,
	OpXORI: ClassALUImm, OpORI: ClassALUImm, OpANDI: ClassALUImm,
	OpSLLI: ClassALUImm, OpSRLI: ClassALUImm, OpSRAI: ClassALUImm,
	OpADD: ClassALUReg, OpSUB: ClassALUReg, OpSLL: ClassALUReg,
	OpSLT: ClassALUReg, OpSLTU: ClassALUReg, OpXOR: ClassALUReg,
	OpSRL: ClassALUReg, OpSRA: ClassALUReg, OpOR: ClassALUReg,
	OpAND:    ClassALUReg,
	OpFENCE:  ClassFence,
	OpECALL:  ClassSystem,
	OpEBREAK: ClassSystem,
}

var opALU = map[Op]ALUOp{
	OpADDI: ALUAdd, OpADD: ALUAdd,
	OpSUB:  ALUSub,
	OpSLTI: ALUSlt, OpSLT: ALUSlt,
	OpSLTIU: ALUSltu, OpSLTU: ALUSltu,
	OpXORI: ALUXor, OpXOR: ALUXor,
	OpORI: ALUOr, OpOR: ALUOr,
	OpANDI: ALUAnd, OpAND: ALUAnd,
	OpSLLI: ALUSll, OpSLL: ALUSll,
	OpSRLI: ALUSrl, OpSRL: ALUSrl,
	OpSRAI: ALUSra, OpSRA: ALUSra,
}

var opBranch = map[Op]BranchCond{
	OpBEQ:  BranchEQ,
	OpBNE:  BranchNE,
	OpBLT:  BranchLT,
	OpBGE:  BranchGE,
	OpBLTU: BranchLTU,
	OpBGEU: BranchGEU,
}

type memAccess struct {
	size   uint8
	signed bool
}

var opMem = map[Op]memAccess{
	OpLB:  {1, true},
	OpLH:  {2, true},
	OpLW:  {4, true},
	OpLBU: {1, false},
	OpLHU: {2, false},
	OpSB:  {1, false},
	OpSH:  {2, false},
	OpSW:  {4, false},
}

func classOf(op Op) Class {
	return opClass[op]
}

// controlFor builds the control bundle for an operation of the given class.
// ClassIllegal yields the zero bundle: no register write, no memory access.
func controlFor(class Class, op Op) Control {
	ctrl := classControl[class]

	switch class {
	case ClassALUReg, ClassALUImm:
		ctrl.ALUOp = opALU[op]
	case ClassBranch:
		ctrl.Branch = opBranch[op]
	case ClassLoad, ClassStore:
		access := opMem[op]
		ctrl.MemSize = access.size
		ctrl.MemSigned = access.signed
	}

	return ctrl
}
