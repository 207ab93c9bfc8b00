package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32sim/emu"
	"github.com/sarchlab/rv32sim/insts"
)

var _ = Describe("ALU", func() {
	DescribeTable("Compute",
		func(a, b uint32, op insts.ALUOp, expected uint32) {
			Expect(emu.Compute(a, b, op)).To(Equal(expected))
		},
		Entry("add", uint32(2), uint32(3), insts.ALUAdd, uint32(5)),
		Entry("add wraps", uint32(0xFFFFFFFF), uint32(2), insts.ALUAdd, uint32(1)),
		Entry("sub", uint32(3), uint32(5), insts.ALUSub, uint32(0xFFFFFFFE)),
		Entry("and", uint32(0xF0F0), uint32(0xFF00), insts.ALUAnd, uint32(0xF000)),
		Entry("or", uint32(0xF0F0), uint32(0x0F0F), insts.ALUOr, uint32(0xFFFF)),
		Entry("xor", uint32(0xFF), uint32(0x0F), insts.ALUXor, uint32(0xF0)),
		Entry("sll uses low 5 bits", uint32(1), uint32(33), insts.ALUSll, uint32(2)),
		Entry("srl", uint32(0x80000000), uint32(31), insts.ALUSrl, uint32(1)),
		Entry("sra", uint32(0x80000000), uint32(31), insts.ALUSra, uint32(0xFFFFFFFF)),
		Entry("slt signed", uint32(0xFFFFFFFF), uint32(1), insts.ALUSlt, uint32(1)),
		Entry("sltu unsigned", uint32(0xFFFFFFFF), uint32(1), insts.ALUSltu, uint32(0)),
		Entry("pass b", uint32(7), uint32(0x12345000), insts.ALUPassB, uint32(0x12345000)),
	)

	DescribeTable("EvaluateBranch",
		func(a, b uint32, cond insts.BranchCond, taken bool) {
			Expect(emu.EvaluateBranch(a, b, cond)).To(Equal(taken))
		},
		Entry("eq", uint32(4), uint32(4), insts.BranchEQ, true),
		Entry("ne", uint32(4), uint32(4), insts.BranchNE, false),
		Entry("lt negative", uint32(0xFFFFFFFE), uint32(1), insts.BranchLT, true),
		Entry("ge", uint32(1), uint32(1), insts.BranchGE, true),
		Entry("ltu", uint32(0xFFFFFFFE), uint32(1), insts.BranchLTU, false),
		Entry("geu", uint32(0xFFFFFFFE), uint32(1), insts.BranchGEU, true),
		Entry("none", uint32(0), uint32(0), insts.BranchNone, false),
	)

	Describe("Redirect", func() {
		decoder := insts.NewDecoder()

		It("should clear bit 0 of JALR targets", func() {
			inst := decoder.Decode(insts.JALR(1, 5, 3))

			taken, target := emu.Redirect(inst, 0x100, 0x200, 0)
			Expect(taken).To(BeTrue())
			Expect(target).To(Equal(uint32(0x202)))
		})

		It("should not redirect an untaken branch", func() {
			inst := decoder.Decode(insts.BNE(1, 2, 16))

			taken, _ := emu.Redirect(inst, 0x100, 7, 7)
			Expect(taken).To(BeFalse())
		})

		It("should redirect a JAL relative to its PC", func() {
			inst := decoder.Decode(insts.JAL(1, -8))

			taken, target := emu.Redirect(inst, 0x100, 0, 0)
			Expect(taken).To(BeTrue())
			Expect(target).To(Equal(uint32(0xF8)))
		})
	})

	It("should extend loads by width and signedness", func() {
		Expect(emu.ExtendLoad(0x80, 1, true)).To(Equal(uint32(0xFFFFFF80)))
		Expect(emu.ExtendLoad(0x80, 1, false)).To(Equal(uint32(0x80)))
		Expect(emu.ExtendLoad(0x8001, 2, true)).To(Equal(uint32(0xFFFF8001)))
		Expect(emu.ExtendLoad(0x8001, 2, false)).To(Equal(uint32(0x8001)))
	})
})
