package insts

// EncodeR encodes an R-type instruction.
func EncodeR(opcode uint32, rd, funct3, rs1, rs2 uint8, funct7 uint32) uint32 {
	return funct7<<25 |
		uint32(rs2&0x1F)<<20 |
		uint32(rs1&0x1F)<<15 |
		uint32(funct3&0x7)<<12 |
		uint32(rd&0x1F)<<7 |
		opcode&0x7F
}

// EncodeI encodes an I-type instruction. Only the low 12 bits of imm are used.
func EncodeI(opcode uint32, rd, funct3, rs1 uint8, imm int32) uint32 {
	return (uint32(imm)&0xFFF)<<20 |
		uint32(rs1&0x1F)<<15 |
		uint32(funct3&0x7)<<12 |
		uint32(rd&0x1F)<<7 |
		opcode&0x7F
}

// EncodeS encodes an S-type instruction.
func EncodeS(opcode uint32, funct3, rs1, rs2 uint8, imm int32) uint32 {
	u := uint32(imm)
	return ((u>>5)&0x7F)<<25 |
		uint32(rs2&0x1F)<<20 |
		uint32(rs1&0x1F)<<15 |
		uint32(funct3&0x7)<<12 |
		(u&0x1F)<<7 |
		opcode&0x7F
}

// EncodeB encodes a B-type instruction. imm is the byte offset; bit 0 is
// dropped.
func EncodeB(opcode uint32, funct3, rs1, rs2 uint8, imm int32) uint32 {
	u := uint32(imm)
	return ((u>>12)&0x1)<<31 |
		((u>>5)&0x3F)<<25 |
		uint32(rs2&0x1F)<<20 |
		uint32(rs1&0x1F)<<15 |
		uint32(funct3&0x7)<<12 |
		((u>>1)&0xF)<<8 |
		((u>>11)&0x1)<<7 |
		opcode&0x7F
}

// EncodeU encodes a U-type instruction. upper holds the 20 bits placed in
// [31:12].
func EncodeU(opcode uint32, rd uint8, upper uint32) uint32 {
	return (upper&0xFFFFF)<<12 | uint32(rd&0x1F)<<7 | opcode&0x7F
}

// EncodeJ encodes a J-type instruction. imm is the byte offset.
func EncodeJ(opcode uint32, rd uint8, imm int32) uint32 {
	u := uint32(imm)
	return ((u>>20)&0x1)<<31 |
		((u>>1)&0x3FF)<<21 |
		((u>>11)&0x1)<<20 |
		((u>>12)&0xFF)<<12 |
		uint32(rd&0x1F)<<7 |
		opcode&0x7F
}

func rtype(funct3 uint8, funct7 uint32) func(rd, rs1, rs2 uint8) uint32 {
	return func(rd, rs1, rs2 uint8) uint32 {
		return EncodeR(OpcodeOp, rd, funct3, rs1, rs2, funct7)
	}
}

func itype(opcode uint32, funct3 uint8) func(rd, rs1 uint8, imm int32) uint32 {
	return func(rd, rs1 uint8, imm int32) uint32 {
		return EncodeI(opcode, rd, funct3, rs1, imm)
	}
}

func stype(funct3 uint8) func(rs2, rs1 uint8, imm int32) uint32 {
	return func(rs2, rs1 uint8, imm int32) uint32 {
		return EncodeS(OpcodeStore, funct3, rs1, rs2, imm)
	}
}

func btype(funct3 uint8) func(rs1, rs2 uint8, offset int32) uint32 {
	return func(rs1, rs2 uint8, offset int32) uint32 {
		return EncodeB(OpcodeBranch, funct3, rs1, rs2, offset)
	}
}

func shiftImm(funct3 uint8, funct7 uint32) func(rd, rs1, shamt uint8) uint32 {
	return func(rd, rs1, shamt uint8) uint32 {
		return EncodeR(OpcodeOpImm, rd, funct3, rs1, shamt, funct7)
	}
}

// Register-register encoders: OP(rd, rs1, rs2).
var (
	ADD  = rtype(0b000, funct7Zero)
	SUB  = rtype(0b000, funct7Alt)
	SLL  = rtype(0b001, funct7Zero)
	SLT  = rtype(0b010, funct7Zero)
	SLTU = rtype(0b011, funct7Zero)
	XOR  = rtype(0b100, funct7Zero)
	SRL  = rtype(0b101, funct7Zero)
	SRA  = rtype(0b101, funct7Alt)
	OR   = rtype(0b110, funct7Zero)
	AND  = rtype(0b111, funct7Zero)
)

// Register-immediate encoders: OP(rd, rs1, imm).
var (
	ADDI  = itype(OpcodeOpImm, 0b000)
	SLTI  = itype(OpcodeOpImm, 0b010)
	SLTIU = itype(OpcodeOpImm, 0b011)
	XORI  = itype(OpcodeOpImm, 0b100)
	ORI   = itype(OpcodeOpImm, 0b110)
	ANDI  = itype(OpcodeOpImm, 0b111)
	JALR  = itype(OpcodeJALR, 0b000)
)

// Shift-immediate encoders: OP(rd, rs1, shamt).
var (
	SLLI = shiftImm(0b001, funct7Zero)
	SRLI = shiftImm(0b101, funct7Zero)
	SRAI = shiftImm(0b101, funct7Alt)
)

// Load encoders: OP(rd, base, offset).
var (
	LB  = itype(OpcodeLoad, 0b000)
	LH  = itype(OpcodeLoad, 0b001)
	LW  = itype(OpcodeLoad, 0b010)
	LBU = itype(OpcodeLoad, 0b100)
	LHU = itype(OpcodeLoad, 0b101)
)

// Store encoders: OP(src, base, offset).
var (
	SB = stype(0b000)
	SH = stype(0b001)
	SW = stype(0b010)
)

// Branch encoders: OP(rs1, rs2, offset).
var (
	BEQ  = btype(0b000)
	BNE  = btype(0b001)
	BLT  = btype(0b100)
	BGE  = btype(0b101)
	BLTU = btype(0b110)
	BGEU = btype(0b111)
)

// JAL encodes jal rd, offset.
func JAL(rd uint8, offset int32) uint32 {
	return EncodeJ(OpcodeJAL, rd, offset)
}

// LUI encodes lui rd, upper.
func LUI(rd uint8, upper uint32) uint32 {
	return EncodeU(OpcodeLUI, rd, upper)
}

// AUIPC encodes auipc rd, upper.
func AUIPC(rd uint8, upper uint32) uint32 {
	return EncodeU(OpcodeAUIPC, rd, upper)
}

// NOP encodes the canonical no-op, addi zero, zero, 0.
func NOP() uint32 {
	return ADDI(0, 0, 0)
}

// FENCE encodes fence iorw, iorw.
func FENCE() uint32 {
	return 0x0FF0000F
}

// ECALL encodes ecall.
func ECALL() uint32 {
	return wordECALL
}

// EBREAK encodes ebreak.
func EBREAK() uint32 {
	return wordEBREAK
}

// LI returns the instructions that load an arbitrary 32-bit constant into rd:
// a single ADDI when the value fits in 12 signed bits, otherwise LUI + ADDI.
func LI(rd uint8, value uint32) []uint32 {
	v := int32(value)
	if v >= -2048 && v < 2048 {
		return []uint32{ADDI(rd, 0, v)}
	}

	lo := int32(value<<20) >> 20
	hi := (value - uint32(lo)) >> 12

	return []uint32{LUI(rd, hi), ADDI(rd, rd, lo)}
}
