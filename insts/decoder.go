// Package insts provides RV32I instruction definitions, decoding and encoding.
package insts

// Op represents an RV32I operation.
type Op uint8

// RV32I operations.
const (
	OpIllegal Op = iota
	OpLUI
	OpAUIPC
	OpJAL
	OpJALR
	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpBLTU
	OpBGEU
	OpLB
	OpLH
	OpLW
	OpLBU
	OpLHU
	OpSB
	OpSH
	OpSW
	OpADDI
	OpSLTI
	OpSLTIU
	OpXORI
	OpORI
	OpANDI
	OpSLLI
	OpSRLI
	OpSRAI
	OpADD
	OpSUB
	OpSLL
	OpSLT
	OpSLTU
	OpXOR
	OpSRL
	OpSRA
	OpOR
	OpAND
	OpFENCE
	OpECALL
	OpEBREAK
)

// Format represents an instruction encoding format.
type Format uint8

// Instruction formats.
const (
	FormatUnknown Format = iota
	FormatR
	FormatI
	FormatS
	FormatB
	FormatU
	FormatJ
)

// Major opcodes (bits [6:0]).
const (
	OpcodeLoad   uint32 = 0x03
	OpcodeFence  uint32 = 0x0F
	OpcodeOpImm  uint32 = 0x13
	OpcodeAUIPC  uint32 = 0x17
	OpcodeStore  uint32 = 0x23
	OpcodeOp     uint32 = 0x33
	OpcodeLUI    uint32 = 0x37
	OpcodeBranch uint32 = 0x63
	OpcodeJALR   uint32 = 0x67
	OpcodeJAL    uint32 = 0x6F
	OpcodeSystem uint32 = 0x73
)

const (
	funct7Zero uint32 = 0x00
	funct7Alt  uint32 = 0x20

	wordECALL  uint32 = 0x00000073
	wordEBREAK uint32 = 0x00100073
)

// Instruction represents a decoded RV32I instruction.
type Instruction struct {
	Word   uint32 // Raw machine word
	Op     Op     // Operation
	Format Format // Encoding format
	Class  Class  // Instruction class selecting the control bundle

	// Register fields. Fields the format does not use are x0.
	Rd  uint8
	Rs1 uint8
	Rs2 uint8

	Funct3 uint8
	Funct7 uint8

	// Imm is the sign-extended immediate. For shift-immediates it holds
	// the shift amount.
	Imm int32

	// Ctrl holds the control signals derived from Class and Op.
	Ctrl Control
}

// Illegal returns true if the word did not decode to an RV32I instruction.
func (i *Instruction) Illegal() bool {
	return i.Class == ClassIllegal
}

// Decoder decodes RV32I machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new RV32I instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a 32-bit RV32I instruction word. Words that are not valid
// RV32I encodings decode to an instruction of class ClassIllegal.
func (d *Decoder) Decode(word uint32) *Instruction {
	inst := &Instruction{
		Word:   word,
		Funct3: uint8((word >> 12) & 0x7),
		Funct7: uint8((word >> 25) & 0x7F),
	}

	switch word & 0x7F {
	case OpcodeLUI:
		d.decodeU(word, inst, OpLUI)
	case OpcodeAUIPC:
		d.decodeU(word, inst, OpAUIPC)
	case OpcodeJAL:
		d.decodeJ(word, inst)
	case OpcodeJALR:
		d.decodeJALR(word, inst)
	case OpcodeBranch:
		d.decodeBranch(word, inst)
	case OpcodeLoad:
		d.decodeLoad(word, inst)
	case OpcodeStore:
		d.decodeStore(word, inst)
	case OpcodeOpImm:
		d.decodeOpImm(word, inst)
	case OpcodeOp:
		d.decodeOp(word, inst)
	case OpcodeFence:
		d.decodeFence(inst)
	case OpcodeSystem:
		d.decodeSystem(word, inst)
	}

	if inst.Op == OpIllegal {
		*inst = Instruction{Word: word}
	}

	inst.Class = classOf(inst.Op)
	inst.Ctrl = controlFor(inst.Class, inst.Op)

	return inst
}

func fieldRd(word uint32) uint8  { return uint8((word >> 7) & 0x1F) }
func fieldRs1(word uint32) uint8 { return uint8((word >> 15) & 0x1F) }
func fieldRs2(word uint32) uint8 { return uint8((word >> 20) & 0x1F) }

func immI(word uint32) int32 {
	return int32(word) >> 20
}

func immS(word uint32) int32 {
	return (int32(word)>>25)<<5 | int32((word>>7)&0x1F)
}

func immB(word uint32) int32 {
	return (int32(word)>>31)<<12 |
		int32((word>>7)&0x1)<<11 |
		int32((word>>25)&0x3F)<<5 |
		int32((word>>8)&0xF)<<1
}

func immU(word uint32) int32 {
	return int32(word & 0xFFFFF000)
}

func immJ(word uint32) int32 {
	return (int32(word)>>31)<<20 |
		int32((word>>12)&0xFF)<<12 |
		int32((word>>20)&0x1)<<11 |
		int32((word>>21)&0x3FF)<<1
}

func (d *Decoder) decodeU(word uint32, inst *Instruction, op Op) {
	inst.Op = op
	inst.Format = FormatU
	inst.Rd = fieldRd(word)
	inst.Imm = immU(word)
}

func (d *Decoder) decodeJ(word uint32, inst *Instruction) {
	inst.Op = OpJAL
	inst.Format = FormatJ
	inst.Rd = fieldRd(word)
	inst.Imm = immJ(word)
}

func (d *Decoder) decodeJALR(word uint32, inst *Instruction) {
	if inst.Funct3 != 0 {
		return
	}

	inst.Op = OpJALR
	inst.Format = FormatI
	inst.Rd = fieldRd(word)
	inst.Rs1 = fieldRs1(word)
	inst.Imm = immI(word)
}

var branchOps = map[uint8]Op{
	0b000: OpBEQ,
	0b001: OpBNE,
	0b100: OpBLT,
	0b101: OpBGE,
	0b110: OpBLTU,
	0b111: OpBGEU,
}

func (d *Decoder) decodeBranch(word uint32, inst *Instruction) {
	op, ok := branchOps[inst.Funct3]
	if !ok {
		return
	}

	inst.Op = op
	inst.Format = FormatB
	inst.Rs1 = fieldRs1(word)
	inst.Rs2 = fieldRs2(word)
	inst.Imm = immB(word)
}

var loadOps = map[uint8]Op{
	0b000: OpLB,
	0b001: OpLH,
	0b010: OpLW,
	0b100: OpLBU,
	0b101: OpLHU,
}

func (d *Decoder) decodeLoad(word uint32, inst *Instruction) {
	op, ok := loadOps[inst.Funct3]
	if !ok {
		return
	}

	inst.Op = op
	inst.Format = FormatI
	inst.Rd = fieldRd(word)
	inst.Rs1 = fieldRs1(word)
	inst.Imm = immI(word)
}

var storeOps = map[uint8]Op{
	0b000: OpSB,
	0b001: OpSH,
	0b010: OpSW,
}

func (d *Decoder) decodeStore(word uint32, inst *Instruction) {
	op, ok := storeOps[inst.Funct3]
	if !ok {
		return
	}

	inst.Op = op
	inst.Format = FormatS
	inst.Rs1 = fieldRs1(word)
	inst.Rs2 = fieldRs2(word)
	inst.Imm = immS(word)
}

var opImmOps = map[uint8]Op{
	0b000: OpADDI,
	0b010: OpSLTI,
	0b011: OpSLTIU,
	0b100: OpXORI,
	0b110: OpORI,
	0b111: OpANDI,
}

func (d *Decoder) decodeOpImm(word uint32, inst *Instruction) {
	funct7 := uint32(inst.Funct7)

	switch inst.Funct3 {
	case 0b001:
		if funct7 != funct7Zero {
			return
		}
		inst.Op = OpSLLI
	case 0b101:
		switch funct7 {
		case funct7Zero:
			inst.Op = OpSRLI
		case funct7Alt:
			inst.Op = OpSRAI
		default:
			return
		}
	default:
		inst.Op = opImmOps[inst.Funct3]
		if inst.Op == OpIllegal {
			return
		}
		inst.Format = FormatI
		inst.Rd = fieldRd(word)
		inst.Rs1 = fieldRs1(word)
		inst.Imm = immI(word)
		return
	}

	inst.Format = FormatI
	inst.Rd = fieldRd(word)
	inst.Rs1 = fieldRs1(word)
	inst.Imm = int32(fieldRs2(word))
}

type opKey struct {
	funct7 uint32
	funct3 uint8
}

var regOps = map[opKey]Op{
	{funct7Zero, 0b000}: OpADD,
	{funct7Alt, 0b000}:  OpSUB,
	{funct7Zero, 0b001}: OpSLL,
	{funct7Zero, 0b010}: OpSLT,
	{funct7Zero, 0b011}: OpSLTU,
	{funct7Zero, 0b100}: OpXOR,
	{funct7Zero, 0b101}: OpSRL,
	{funct7Alt, 0b101}:  OpSRA,
	{funct7Zero, 0b110}: OpOR,
	{funct7Zero, 0b111}: OpAND,
}

func (d *Decoder) decodeOp(word uint32, inst *Instruction) {
	op, ok := regOps[opKey{uint32(inst.Funct7), inst.Funct3}]
	if !ok {
		return
	}

	inst.Op = op
	inst.Format = FormatR
	inst.Rd = fieldRd(word)
	inst.Rs1 = fieldRs1(word)
	inst.Rs2 = fieldRs2(word)
}

// decodeFence accepts FENCE and treats it as a no-op; the core has a single
// in-order memory port.
func (d *Decoder) decodeFence(inst *Instruction) {
	if inst.Funct3 != 0 {
		return
	}

	inst.Op = OpFENCE
	inst.Format = FormatI
}

func (d *Decoder) decodeSystem(word uint32, inst *Instruction) {
	switch word {
	case wordECALL:
		inst.Op = OpECALL
	case wordEBREAK:
		inst.Op = OpEBREAK
	default:
		return
	}

	inst.Format = FormatI
}
