package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32sim/insts"
)

var _ = Describe("Decoder", func() {
	var decoder *insts.Decoder

	BeforeEach(func() {
		decoder = insts.NewDecoder()
	})

	Describe("ALU instructions", func() {
		// addi ra, zero, 42 -> 0x02A00093
		It("should decode ADDI", func() {
			inst := decoder.Decode(0x02A00093)

			Expect(inst.Op).To(Equal(insts.OpADDI))
			Expect(inst.Format).To(Equal(insts.FormatI))
			Expect(inst.Class).To(Equal(insts.ClassALUImm))
			Expect(inst.Rd).To(Equal(uint8(1)))
			Expect(inst.Rs1).To(Equal(uint8(0)))
			Expect(inst.Imm).To(Equal(int32(42)))
			Expect(inst.Ctrl.RegWrite).To(BeTrue())
			Expect(inst.Ctrl.BSrc).To(Equal(insts.OperandBImm))
			Expect(inst.Ctrl.ALUOp).To(Equal(insts.ALUAdd))
		})

		// addi ra, zero, -1 -> 0xFFF00093
		It("should sign-extend negative I immediates", func() {
			inst := decoder.Decode(0xFFF00093)

			Expect(inst.Op).To(Equal(insts.OpADDI))
			Expect(inst.Imm).To(Equal(int32(-1)))
		})

		// add gp, ra, sp -> 0x002081B3
		It("should decode ADD", func() {
			inst := decoder.Decode(0x002081B3)

			Expect(inst.Op).To(Equal(insts.OpADD))
			Expect(inst.Format).To(Equal(insts.FormatR))
			Expect(inst.Rd).To(Equal(uint8(3)))
			Expect(inst.Rs1).To(Equal(uint8(1)))
			Expect(inst.Rs2).To(Equal(uint8(2)))
			Expect(inst.Ctrl.UsesRs1).To(BeTrue())
			Expect(inst.Ctrl.UsesRs2).To(BeTrue())
		})

		// sub gp, ra, sp -> 0x402081B3
		It("should distinguish SUB from ADD by funct7", func() {
			inst := decoder.Decode(0x402081B3)

			Expect(inst.Op).To(Equal(insts.OpSUB))
			Expect(inst.Ctrl.ALUOp).To(Equal(insts.ALUSub))
		})

		It("should decode shift immediates with the shift amount as Imm", func() {
			inst := decoder.Decode(insts.SRAI(5, 6, 31))

			Expect(inst.Op).To(Equal(insts.OpSRAI))
			Expect(inst.Imm).To(Equal(int32(31)))
			Expect(inst.Rs2).To(Equal(uint8(0)))
			Expect(inst.Ctrl.ALUOp).To(Equal(insts.ALUSra))
		})

		It("should reject shift immediates with a bad funct7", func() {
			word := insts.SLLI(1, 1, 3) | 0x20<<25

			Expect(decoder.Decode(word).Illegal()).To(BeTrue())
		})

		// lui t0, 0x12345 -> 0x123452B7
		It("should decode LUI", func() {
			inst := decoder.Decode(0x123452B7)

			Expect(inst.Op).To(Equal(insts.OpLUI))
			Expect(inst.Format).To(Equal(insts.FormatU))
			Expect(inst.Rd).To(Equal(uint8(5)))
			Expect(uint32(inst.Imm)).To(Equal(uint32(0x12345000)))
			Expect(inst.Ctrl.ASrc).To(Equal(insts.OperandAZero))
			Expect(inst.Ctrl.ALUOp).To(Equal(insts.ALUPassB))
		})

		It("should decode AUIPC with a PC-relative A operand", func() {
			inst := decoder.Decode(insts.AUIPC(7, 1))

			Expect(inst.Op).To(Equal(insts.OpAUIPC))
			Expect(inst.Ctrl.ASrc).To(Equal(insts.OperandAPC))
			Expect(inst.Imm).To(Equal(int32(0x1000)))
		})
	})

	Describe("Memory instructions", func() {
		// lw ra, 0(sp) -> 0x00012083
		It("should decode LW", func() {
			inst := decoder.Decode(0x00012083)

			Expect(inst.Op).To(Equal(insts.OpLW))
			Expect(inst.Class).To(Equal(insts.ClassLoad))
			Expect(inst.Rd).To(Equal(uint8(1)))
			Expect(inst.Rs1).To(Equal(uint8(2)))
			Expect(inst.Rs2).To(Equal(uint8(0)))
			Expect(inst.Ctrl.MemRead).To(BeTrue())
			Expect(inst.Ctrl.WBSrc).To(Equal(insts.WBFromMem))
			Expect(inst.Ctrl.MemSize).To(Equal(uint8(4)))
		})

		It("should mark LBU as unsigned and LH as signed", func() {
			Expect(decoder.Decode(insts.LBU(1, 2, 0)).Ctrl.MemSigned).To(BeFalse())
			Expect(decoder.Decode(insts.LH(1, 2, 0)).Ctrl.MemSigned).To(BeTrue())
			Expect(decoder.Decode(insts.LH(1, 2, 0)).Ctrl.MemSize).To(Equal(uint8(2)))
		})

		// sw t0, 8(sp) -> 0x00512423
		It("should decode SW", func() {
			inst := decoder.Decode(0x00512423)

			Expect(inst.Op).To(Equal(insts.OpSW))
			Expect(inst.Format).To(Equal(insts.FormatS))
			Expect(inst.Rs1).To(Equal(uint8(2)))
			Expect(inst.Rs2).To(Equal(uint8(5)))
			Expect(inst.Rd).To(Equal(uint8(0)))
			Expect(inst.Imm).To(Equal(int32(8)))
			Expect(inst.Ctrl.MemWrite).To(BeTrue())
			Expect(inst.Ctrl.RegWrite).To(BeFalse())
		})

		It("should sign-extend negative store offsets", func() {
			inst := decoder.Decode(insts.SB(3, 4, -17))

			Expect(inst.Op).To(Equal(insts.OpSB))
			Expect(inst.Imm).To(Equal(int32(-17)))
		})

		It("should reject a load with a reserved funct3", func() {
			word := insts.EncodeI(insts.OpcodeLoad, 1, 0b011, 2, 0)

			Expect(decoder.Decode(word).Illegal()).To(BeTrue())
		})
	})

	Describe("Control transfer", func() {
		// beq zero, zero, 12 -> 0x00000663
		It("should decode BEQ", func() {
			inst := decoder.Decode(0x00000663)

			Expect(inst.Op).To(Equal(insts.OpBEQ))
			Expect(inst.Format).To(Equal(insts.FormatB))
			Expect(inst.Imm).To(Equal(int32(12)))
			Expect(inst.Ctrl.Branch).To(Equal(insts.BranchEQ))
			Expect(inst.Ctrl.IsBranch()).To(BeTrue())
			Expect(inst.Ctrl.RegWrite).To(BeFalse())
		})

		// beq ra, sp, -4 -> 0xFE208EE3
		It("should decode negative branch offsets", func() {
			inst := decoder.Decode(0xFE208EE3)

			Expect(inst.Op).To(Equal(insts.OpBEQ))
			Expect(inst.Rs1).To(Equal(uint8(1)))
			Expect(inst.Rs2).To(Equal(uint8(2)))
			Expect(inst.Imm).To(Equal(int32(-4)))
		})

		// jal ra, 8 -> 0x008000EF
		It("should decode JAL", func() {
			inst := decoder.Decode(0x008000EF)

			Expect(inst.Op).To(Equal(insts.OpJAL))
			Expect(inst.Rd).To(Equal(uint8(1)))
			Expect(inst.Imm).To(Equal(int32(8)))
			Expect(inst.Ctrl.Jump).To(BeTrue())
			Expect(inst.Ctrl.BSrc).To(Equal(insts.OperandBFour))
			Expect(inst.Ctrl.UsesRs1).To(BeFalse())
		})

		It("should decode large negative JAL offsets", func() {
			inst := decoder.Decode(insts.JAL(0, -1048576))

			Expect(inst.Imm).To(Equal(int32(-1048576)))
		})

		It("should decode JALR as a register jump", func() {
			inst := decoder.Decode(insts.JALR(0, 1, 0))

			Expect(inst.Op).To(Equal(insts.OpJALR))
			Expect(inst.Ctrl.JumpReg).To(BeTrue())
			Expect(inst.Ctrl.UsesRs1).To(BeTrue())
		})
	})

	Describe("System instructions", func() {
		It("should decode ECALL and EBREAK as halt", func() {
			Expect(decoder.Decode(insts.ECALL()).Ctrl.Halt).To(BeTrue())
			Expect(decoder.Decode(insts.EBREAK()).Op).To(Equal(insts.OpEBREAK))
		})

		It("should decode FENCE as a no-op", func() {
			inst := decoder.Decode(insts.FENCE())

			Expect(inst.Op).To(Equal(insts.OpFENCE))
			Expect(inst.Ctrl).To(Equal(insts.Control{}))
		})

		It("should reject CSR instructions", func() {
			// csrrw zero, mstatus, ra
			Expect(decoder.Decode(0x30009073).Illegal()).To(BeTrue())
		})
	})

	Describe("Illegal instructions", func() {
		It("should treat the all-zero word as illegal", func() {
			inst := decoder.Decode(0)

			Expect(inst.Illegal()).To(BeTrue())
			Expect(inst.Op).To(Equal(insts.OpIllegal))
		})

		It("should give illegal instructions an inert control bundle", func() {
			inst := decoder.Decode(0xFFFFFFFF)

			Expect(inst.Illegal()).To(BeTrue())
			Expect(inst.Ctrl.RegWrite).To(BeFalse())
			Expect(inst.Ctrl.MemRead).To(BeFalse())
			Expect(inst.Ctrl.MemWrite).To(BeFalse())
			Expect(inst.Rd).To(Equal(uint8(0)))
		})
	})
})
