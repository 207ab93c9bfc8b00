package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32sim/emu"
)

var _ = Describe("RegFile", func() {
	var regFile *emu.RegFile

	BeforeEach(func() {
		regFile = &emu.RegFile{}
	})

	It("should read back written values", func() {
		regFile.WriteReg(5, 0xDEADBEEF)

		Expect(regFile.ReadReg(5)).To(Equal(uint32(0xDEADBEEF)))
	})

	It("should keep x0 at zero", func() {
		regFile.WriteReg(0, 123)

		Expect(regFile.ReadReg(0)).To(Equal(uint32(0)))
		Expect(regFile.X[0]).To(Equal(uint32(0)))
	})

	It("should ignore out-of-range registers", func() {
		regFile.WriteReg(40, 7)

		Expect(regFile.ReadReg(40)).To(Equal(uint32(0)))
	})

	It("should snapshot and reset", func() {
		regFile.WriteReg(31, 9)
		regFile.PC = 0x40

		snap := regFile.Snapshot()
		regFile.Reset()

		Expect(snap[31]).To(Equal(uint32(9)))
		Expect(regFile.ReadReg(31)).To(Equal(uint32(0)))
		Expect(regFile.PC).To(Equal(uint32(0)))
	})
})
