package core_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rv32sim/emu"
	"github.com/sarchlab/rv32sim/insts"
	"github.com/sarchlab/rv32sim/timing/config"
	"github.com/sarchlab/rv32sim/timing/core"
	"github.com/sarchlab/rv32sim/timing/pipeline"
)

type retireCounter struct {
	count int
}

func (h *retireCounter) Func(ctx sim.HookCtx) {
	if ctx.Pos == pipeline.HookPosRetire {
		h.count++
	}
}

var _ = Describe("Core", func() {
	var c *core.Core

	BeforeEach(func() {
		var err error
		c, err = core.NewCore(nil)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should create a core with the default configuration", func() {
		Expect(c.Pipeline).NotTo(BeNil())
		Expect(c.Config().MemorySize).To(Equal(uint32(config.DefaultMemorySize)))
		Expect(c.PC()).To(BeZero())
		Expect(c.Halted()).To(BeFalse())
	})

	It("should reject an invalid configuration", func() {
		cfg := config.DefaultSimConfig()
		cfg.MemoryLatency = 0

		_, err := core.NewCore(cfg)
		Expect(err).To(MatchError(ContainSubstring("memory_latency")))
	})

	It("should not modify the caller's configuration", func() {
		cfg := config.DefaultSimConfig()
		other, err := core.NewCore(cfg)
		Expect(err).NotTo(HaveOccurred())

		Expect(other.Config()).NotTo(BeIdenticalTo(cfg))
	})

	It("should run until halt and return exit code", func() {
		Expect(c.LoadWords(0, []uint32{
			insts.ADDI(insts.RegA0, 0, 10),
			insts.ECALL(),
		})).To(Succeed())

		cycles, err := c.RunUntilHalt(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Halted()).To(BeTrue())
		Expect(c.ExitCode()).To(Equal(int64(10)))
		Expect(cycles).To(Equal(c.Stats().Cycles))
		Expect(c.Fault()).To(BeNil())
	})

	It("should run for specified cycles and keep running", func() {
		Expect(c.LoadWords(0, []uint32{insts.ADDI(1, 1, 1), insts.JAL(0, -4)})).To(Succeed())

		ran, err := c.Run(5)
		Expect(err).NotTo(HaveOccurred())
		Expect(ran).To(Equal(uint64(5)))
		Expect(c.Halted()).To(BeFalse())
		Expect(c.Stats().Cycles).To(Equal(uint64(5)))
	})

	It("should stop at the cycle limit", func() {
		Expect(c.LoadWords(0, []uint32{insts.JAL(0, 0)})).To(Succeed())

		ran, err := c.RunUntilHalt(200)
		Expect(errors.Is(err, core.ErrCycleLimit)).To(BeTrue())
		Expect(ran).To(Equal(uint64(200)))
		Expect(c.Halted()).To(BeFalse())
	})

	It("should use the configured cycle limit", func() {
		cfg := config.DefaultSimConfig()
		cfg.MaxCycles = 50
		limited, err := core.NewCore(cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(limited.LoadWords(0, []uint32{insts.JAL(0, 0)})).To(Succeed())

		ran, err := limited.RunUntilHalt(0)
		Expect(err).To(MatchError(core.ErrCycleLimit))
		Expect(ran).To(Equal(uint64(50)))
	})

	It("should keep returning the fault after halting", func() {
		Expect(c.LoadWords(0, []uint32{insts.ADDI(1, 0, 1), 0})).To(Succeed())

		_, err := c.RunUntilHalt(0)
		Expect(err).To(MatchError(emu.ErrIllegalInstruction))
		Expect(c.Step()).To(MatchError(emu.ErrIllegalInstruction))
		Expect(c.Fault()).To(MatchError(emu.ErrIllegalInstruction))
		Expect(c.Reg(1)).To(Equal(uint32(1)))
	})

	It("should start at the configured base address", func() {
		cfg := config.DefaultSimConfig()
		cfg.BaseAddress = 0x400
		based, err := core.NewCore(cfg)
		Expect(err).NotTo(HaveOccurred())

		Expect(based.LoadWords(0x400, []uint32{
			insts.AUIPC(insts.RegA0, 0),
			insts.ECALL(),
		})).To(Succeed())

		_, err = based.RunUntilHalt(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(based.ExitCode()).To(Equal(int64(0x400)))
	})

	Describe("memory inspection", func() {
		BeforeEach(func() {
			Expect(c.LoadWords(0, []uint32{
				insts.LUI(1, 1),
				insts.ADDI(2, 0, 0x55),
				insts.SW(2, 1, 0),
				insts.ECALL(),
			})).To(Succeed())

			_, err := c.RunUntilHalt(0)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should see stores still held in the data cache", func() {
			Expect(c.ReadWord(0x1000)).To(Equal(uint32(0x55)))

			raw, err := c.ReadMemoryRaw(0x1000, 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(raw).To(Equal([]byte{0, 0, 0, 0}))
		})

		It("should write dirty lines back on flush", func() {
			Expect(c.FlushCaches()).To(Succeed())

			raw, err := c.ReadMemoryRaw(0x1000, 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(raw).To(Equal([]byte{0x55, 0, 0, 0}))
			Expect(c.DCacheStats().Writebacks).To(Equal(uint64(1)))
		})

		It("should reject reads outside memory", func() {
			_, err := c.ReadMemory(0xFFFF, 4)
			Expect(err).To(MatchError(emu.ErrOutOfRange))
		})
	})

	It("should report statistics", func() {
		Expect(c.LoadWords(0, []uint32{
			insts.ADDI(1, 0, 1),
			insts.ADD(2, 1, 1),
			insts.ECALL(),
		})).To(Succeed())

		_, err := c.RunUntilHalt(0)
		Expect(err).NotTo(HaveOccurred())

		stats := c.Stats()
		Expect(stats.Instructions).To(Equal(uint64(3)))
		Expect(stats.Forwards).To(BeNumerically(">=", 2))
		Expect(stats.FetchStalls).To(BeNumerically(">", 0))
		Expect(stats.CPI()).To(BeNumerically(">", 1))
		Expect(c.ICacheStats().Misses).To(Equal(uint64(1)))
		Expect(c.MemCtrlStats().Fills).To(Equal(uint64(1)))
		Expect(float64(c.SimulatedTime())).To(
			BeNumerically("~", float64(stats.Cycles)*1e-9, 1e-12))
	})

	It("should invoke accepted hooks", func() {
		hook := &retireCounter{}
		c.AcceptHook(hook)
		Expect(c.LoadWords(0, []uint32{insts.NOP(), insts.ECALL()})).To(Succeed())

		_, err := c.RunUntilHalt(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(hook.count).To(Equal(2))
	})

	It("should reset core state", func() {
		Expect(c.LoadWords(0, []uint32{
			insts.ADDI(insts.RegA0, 0, 3),
			insts.ECALL(),
		})).To(Succeed())
		_, err := c.RunUntilHalt(0)
		Expect(err).NotTo(HaveOccurred())

		Expect(c.Reset()).To(Succeed())

		Expect(c.Stats()).To(Equal(core.Stats{}))
		Expect(c.Halted()).To(BeFalse())
		Expect(c.Reg(insts.RegA0)).To(BeZero())

		_, err = c.RunUntilHalt(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.ExitCode()).To(Equal(int64(3)))
	})

	It("should write dirty data back to memory on reset", func() {
		Expect(c.LoadWords(0, []uint32{
			insts.ADDI(1, 0, 0x77),
			insts.LUI(2, 1),
			insts.SW(1, 2, 8),
			insts.ECALL(),
		})).To(Succeed())
		_, err := c.RunUntilHalt(0)
		Expect(err).NotTo(HaveOccurred())

		raw, err := c.Memory().Read32(0x1008)
		Expect(err).NotTo(HaveOccurred())
		Expect(raw).To(BeZero())

		Expect(c.Reset()).To(Succeed())

		raw, err = c.Memory().Read32(0x1008)
		Expect(err).NotTo(HaveOccurred())
		Expect(raw).To(Equal(uint32(0x77)))
	})
})
