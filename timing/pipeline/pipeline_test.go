package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rv32sim/emu"
	"github.com/sarchlab/rv32sim/insts"
	"github.com/sarchlab/rv32sim/timing/memctrl"
	"github.com/sarchlab/rv32sim/timing/pipeline"
)

type eventRecorder struct {
	retired []pipeline.RetireEvent
	stalls  []pipeline.StallEvent
	flushes []pipeline.FlushEvent
	faults  []*emu.Fault
	halts   []pipeline.HaltEvent
}

func (r *eventRecorder) Func(ctx sim.HookCtx) {
	switch item := ctx.Item.(type) {
	case pipeline.RetireEvent:
		r.retired = append(r.retired, item)
	case pipeline.StallEvent:
		r.stalls = append(r.stalls, item)
	case pipeline.FlushEvent:
		r.flushes = append(r.flushes, item)
	case *emu.Fault:
		r.faults = append(r.faults, item)
	case pipeline.HaltEvent:
		r.halts = append(r.halts, item)
	}
}

func (r *eventRecorder) writesTo(reg uint8) int {
	n := 0
	for _, e := range r.retired {
		if e.RegWrite && e.Rd == reg {
			n++
		}
	}
	return n
}

// sumLoop stores 10..1 at 0x1000 and the running sums at the aliasing
// address 0x1400, so every iteration evicts a dirty data cache line. It
// exits with 55.
var sumLoop = []uint32{
	insts.ADDI(10, 0, 0),
	insts.ADDI(11, 0, 10),
	insts.LUI(12, 1),
	insts.SW(11, 12, 0), // loop:
	insts.LW(13, 12, 0),
	insts.ADD(10, 10, 13),
	insts.SW(10, 12, 0x400),
	insts.ADDI(12, 12, 4),
	insts.ADDI(11, 11, -1),
	insts.BNE(11, 0, -24),
	insts.ECALL(),
}

var _ = Describe("Pipeline", func() {
	var (
		regFile  *emu.RegFile
		memory   *emu.Memory
		ctrl     *memctrl.Controller
		pipe     *pipeline.Pipeline
		recorder *eventRecorder
	)

	build := func(words []uint32, latency uint64, opts ...pipeline.PipelineOption) {
		regFile = &emu.RegFile{}
		memory = emu.NewMemory(emu.DefaultMemorySize)
		Expect(memory.LoadWords(0, words)).To(Succeed())
		ctrl = memctrl.New(memory, latency)
		pipe = pipeline.NewPipeline(regFile, ctrl, opts...)
		recorder = &eventRecorder{}
		pipe.AcceptHook(recorder)
	}

	perfect := func(words []uint32) {
		build(words, 10, pipeline.WithPerfectCaches())
	}

	runToHalt := func() error {
		_, err := pipe.Run(100000)
		Expect(pipe.Halted()).To(BeTrue())
		return err
	}

	It("should start fetching at the register file PC", func() {
		regFile = &emu.RegFile{PC: 0x100}
		memory = emu.NewMemory(emu.DefaultMemorySize)
		pipe = pipeline.NewPipeline(regFile, memctrl.New(memory, 1))

		Expect(pipe.PC()).To(Equal(uint32(0x100)))

		pipe.SetPC(0x200)
		Expect(regFile.PC).To(Equal(uint32(0x200)))
	})

	It("should fill the pipeline before the first retirement", func() {
		perfect([]uint32{insts.ADDI(1, 0, 5), insts.ECALL()})

		ran, err := pipe.Run(4)
		Expect(err).NotTo(HaveOccurred())
		Expect(ran).To(Equal(uint64(4)))
		Expect(regFile.ReadReg(1)).To(BeZero())

		Expect(pipe.Tick()).To(Succeed())
		Expect(regFile.ReadReg(1)).To(Equal(uint32(5)))

		Expect(pipe.Tick()).To(Succeed())
		Expect(pipe.Halted()).To(BeTrue())
		Expect(pipe.Stats().Cycles).To(Equal(uint64(6)))
		Expect(pipe.Stats().Instructions).To(Equal(uint64(2)))
	})

	It("should report the exit code from a0", func() {
		perfect([]uint32{insts.ADDI(insts.RegA0, 0, -3), insts.EBREAK()})

		Expect(runToHalt()).To(Succeed())
		Expect(pipe.ExitCode()).To(Equal(int64(-3)))
		Expect(pipe.Fault()).To(BeNil())
		Expect(recorder.halts).To(HaveLen(1))
		Expect(recorder.halts[0].PC).To(Equal(uint32(4)))
	})

	It("should do nothing once halted", func() {
		perfect([]uint32{insts.ECALL()})
		Expect(runToHalt()).To(Succeed())
		cycles := pipe.Stats().Cycles

		ran, err := pipe.Run(10)
		Expect(err).NotTo(HaveOccurred())
		Expect(ran).To(BeZero())
		Expect(pipe.Stats().Cycles).To(Equal(cycles))
	})

	It("should keep x0 at zero", func() {
		perfect([]uint32{
			insts.ADDI(0, 0, 5),
			insts.ADD(1, 0, 0),
			insts.ECALL(),
		})

		Expect(runToHalt()).To(Succeed())
		Expect(regFile.ReadReg(0)).To(BeZero())
		Expect(regFile.ReadReg(1)).To(BeZero())
	})

	Describe("x0 under back-to-back writes", func() {
		program := []uint32{
			insts.ADDI(5, 0, 0x100),
			insts.ADDI(6, 0, 77),
			insts.SW(6, 5, 0),
			insts.ADDI(0, 0, 5),
			insts.ADD(1, 0, 0),
			insts.LUI(0, 0x12345),
			insts.ADDI(2, 0, 3),
			insts.LW(0, 5, 0),
			insts.ADD(3, 0, 6),
			insts.JAL(0, 8),
			insts.ADDI(4, 0, 99),
			insts.SUB(4, 6, 0),
			insts.AUIPC(0, 1),
			insts.OR(7, 0, 0),
			insts.ECALL(),
		}

		check := func() {
			for i := 0; i < 1000 && !pipe.Halted(); i++ {
				Expect(pipe.Tick()).To(Succeed())
				Expect(regFile.X[0]).To(BeZero())
			}

			Expect(pipe.Halted()).To(BeTrue())
			Expect(pipe.Fault()).To(BeNil())
			Expect(regFile.ReadReg(1)).To(BeZero())
			Expect(regFile.ReadReg(2)).To(Equal(uint32(3)))
			Expect(regFile.ReadReg(3)).To(Equal(uint32(77)))
			Expect(regFile.ReadReg(4)).To(Equal(uint32(77)))
			Expect(regFile.ReadReg(7)).To(BeZero())
			Expect(pipe.Stats().Instructions).To(Equal(uint64(14)))
			Expect(pipe.Stats().Stalls).To(BeZero())
		}

		It("should hold with perfect caches", func() {
			perfect(program)
			check()
		})

		It("should hold with cold caches", func() {
			build(program, 3)
			check()
		})
	})

	It("should forward a result into the next instruction alongside x0", func() {
		perfect([]uint32{
			insts.ADDI(2, 0, 5),
			insts.ADDI(3, 0, 7),
			insts.NOP(),
			insts.NOP(),
			insts.NOP(),
			insts.ADD(1, 2, 3),
			insts.ADD(4, 1, 0),
			insts.ECALL(),
		})

		Expect(runToHalt()).To(Succeed())
		Expect(regFile.ReadReg(1)).To(Equal(uint32(12)))
		Expect(regFile.ReadReg(4)).To(Equal(uint32(12)))
		Expect(pipe.Stats().DataHazards).To(Equal(uint64(1)))
		Expect(pipe.Stats().Stalls).To(BeZero())
	})

	It("should forward back-to-back ALU results without stalling", func() {
		perfect([]uint32{
			insts.ADDI(1, 0, 1),
			insts.ADDI(1, 1, 1),
			insts.ADDI(1, 1, 1),
			insts.ADD(2, 1, 1),
			insts.ECALL(),
		})

		Expect(runToHalt()).To(Succeed())
		Expect(regFile.ReadReg(1)).To(Equal(uint32(3)))
		Expect(regFile.ReadReg(2)).To(Equal(uint32(6)))
		Expect(pipe.Stats().Stalls).To(BeZero())
		Expect(pipe.Stats().DataHazards).To(BeNumerically(">=", 4))
	})

	It("should stall exactly once for a load-use hazard", func() {
		perfect([]uint32{
			insts.ADDI(2, 0, 0x100),
			insts.ADDI(3, 0, 7),
			insts.SW(3, 2, 0),
			insts.LW(1, 2, 0),
			insts.ADD(4, 1, 1),
			insts.ECALL(),
		})

		Expect(runToHalt()).To(Succeed())
		Expect(regFile.ReadReg(4)).To(Equal(uint32(14)))
		Expect(pipe.Stats().Stalls).To(Equal(uint64(1)))
		Expect(recorder.writesTo(1)).To(Equal(1))
		Expect(recorder.stalls).To(HaveLen(1))
		Expect(recorder.stalls[0].Kind).To(Equal(pipeline.StallLoadUse))
	})

	It("should flush the wrong path of a taken branch", func() {
		perfect([]uint32{
			insts.ADDI(1, 0, 1),
			insts.ADDI(2, 0, 1),
			insts.BEQ(1, 2, 12),
			insts.ADDI(5, 0, 99),
			insts.ADDI(5, 0, 98),
			insts.ADDI(5, 0, 42),
			insts.ECALL(),
		})

		Expect(runToHalt()).To(Succeed())
		Expect(regFile.ReadReg(5)).To(Equal(uint32(42)))
		Expect(recorder.writesTo(5)).To(Equal(1))
		Expect(pipe.Stats().Flushes).To(Equal(uint64(1)))
		Expect(recorder.flushes[0].PC).To(Equal(uint32(8)))
		Expect(recorder.flushes[0].Target).To(Equal(uint32(20)))
	})

	It("should fall through a branch that is not taken", func() {
		perfect([]uint32{
			insts.ADDI(1, 0, 1),
			insts.BEQ(1, 0, 8),
			insts.ADDI(5, 0, 7),
			insts.ECALL(),
		})

		Expect(runToHalt()).To(Succeed())
		Expect(regFile.ReadReg(5)).To(Equal(uint32(7)))
		Expect(pipe.Stats().Flushes).To(BeZero())
	})

	It("should link and return through JAL and JALR", func() {
		perfect([]uint32{
			insts.JAL(1, 12),               // 0x0: call 0xC
			insts.ADDI(insts.RegA0, 0, 8),  // 0x4
			insts.ECALL(),                  // 0x8
			insts.ADDI(insts.RegA0, 0, 99), // 0xC
			insts.JALR(0, 1, 0),            // 0x10: return to 0x4
		})

		Expect(runToHalt()).To(Succeed())
		Expect(pipe.ExitCode()).To(Equal(int64(8)))
		Expect(regFile.ReadReg(1)).To(Equal(uint32(4)))
		Expect(pipe.Stats().Flushes).To(Equal(uint64(2)))
	})

	It("should squash a faulting instruction on the wrong path", func() {
		perfect([]uint32{
			insts.BEQ(0, 0, 8),
			0,
			insts.ECALL(),
		})

		Expect(runToHalt()).To(Succeed())
		Expect(pipe.Fault()).To(BeNil())
	})

	Describe("faults", func() {
		It("should raise an illegal instruction after older instructions retire", func() {
			perfect([]uint32{insts.ADDI(1, 0, 1), 0})

			err := runToHalt()
			Expect(err).To(MatchError(emu.ErrIllegalInstruction))
			Expect(pipe.Fault().PC).To(Equal(uint32(4)))
			Expect(regFile.ReadReg(1)).To(Equal(uint32(1)))
			Expect(recorder.faults).To(HaveLen(1))
		})

		It("should raise a misaligned load", func() {
			perfect([]uint32{
				insts.ADDI(1, 0, 2),
				insts.LW(2, 1, 0),
				insts.ADDI(3, 0, 1),
				insts.ECALL(),
			})

			err := runToHalt()
			Expect(err).To(MatchError(emu.ErrMisaligned))
			Expect(pipe.Fault().PC).To(Equal(uint32(4)))
			Expect(pipe.Fault().Addr).To(Equal(uint32(2)))
			Expect(regFile.ReadReg(3)).To(BeZero())
		})

		It("should fault on a jump outside memory", func() {
			perfect([]uint32{
				insts.LUI(1, 0x20),
				insts.JALR(0, 1, 0),
			})

			err := runToHalt()
			Expect(err).To(MatchError(emu.ErrOutOfRange))
			Expect(pipe.Fault().Fetch).To(BeTrue())
			Expect(pipe.Fault().PC).To(Equal(uint32(4)))
			Expect(pipe.Fault().Addr).To(Equal(uint32(0x20000)))
		})

		It("should fault on a misaligned jump without linking", func() {
			perfect([]uint32{
				insts.ADDI(2, 0, 0x102),
				insts.ADDI(3, 0, 1),
				insts.JALR(1, 2, 0),
				insts.ADDI(4, 0, 1),
				insts.ECALL(),
			})

			err := runToHalt()
			Expect(err).To(MatchError(emu.ErrMisaligned))
			Expect(pipe.Fault().PC).To(Equal(uint32(8)))
			Expect(pipe.Fault().Addr).To(Equal(uint32(0x102)))
			Expect(regFile.ReadReg(3)).To(Equal(uint32(1)))
			Expect(regFile.ReadReg(1)).To(BeZero())
			Expect(regFile.ReadReg(4)).To(BeZero())
			Expect(pipe.Stats().Instructions).To(Equal(uint64(2)))
		})

		It("should fault on a taken branch below address zero", func() {
			perfect([]uint32{
				insts.BEQ(0, 0, -4),
			})

			err := runToHalt()
			Expect(err).To(MatchError(emu.ErrOutOfRange))
			Expect(pipe.Fault().PC).To(Equal(uint32(0)))
			Expect(pipe.Fault().Addr).To(Equal(uint32(0xFFFFFFFC)))
		})
	})

	Describe("with cold caches", func() {
		It("should reach the same state as with perfect caches", func() {
			build(sumLoop, 10)
			Expect(runToHalt()).To(Succeed())
			cold := regFile.Snapshot()
			coldStats := pipe.Stats()

			perfect(sumLoop)
			Expect(runToHalt()).To(Succeed())

			Expect(regFile.Snapshot()).To(Equal(cold))
			Expect(pipe.ExitCode()).To(Equal(int64(55)))
			Expect(pipe.Stats().Instructions).To(Equal(coldStats.Instructions))
			Expect(coldStats.Cycles).To(BeNumerically(">", pipe.Stats().Cycles))
			Expect(coldStats.FetchStalls).To(BeNumerically(">", 0))
			Expect(coldStats.MemStalls).To(BeNumerically(">", 0))
		})

		It("should match the functional emulator", func() {
			e := emu.NewEmulator()
			Expect(e.LoadProgram(0, emu.WordsToBytes(sumLoop), 0)).To(Succeed())
			result := e.Run()
			Expect(result.Err).NotTo(HaveOccurred())

			build(sumLoop, 4)
			Expect(runToHalt()).To(Succeed())

			Expect(regFile.Snapshot()).To(Equal(e.RegFile().Snapshot()))
			Expect(pipe.ExitCode()).To(Equal(result.ExitCode))
			Expect(pipe.Stats().Instructions).To(Equal(e.InstructionCount()))

			Expect(pipe.DCache().Flush()).To(Succeed())
			for _, addr := range []uint32{0x1000, 0x1024, 0x1400, 0x1424} {
				want, err := e.Memory().Read32(addr)
				Expect(err).NotTo(HaveOccurred())
				Expect(memory.Read32(addr)).To(Equal(want))
			}
		})

		It("should write back a dirty line before reusing it", func() {
			build([]uint32{
				insts.LUI(1, 1),
				insts.ADDI(2, 0, 77),
				insts.SW(2, 1, 0),
				insts.LW(3, 1, 0x400),
				insts.LW(4, 1, 0),
				insts.ECALL(),
			}, 3)

			Expect(runToHalt()).To(Succeed())
			Expect(regFile.ReadReg(4)).To(Equal(uint32(77)))
			Expect(memory.Read32(0x1000)).To(Equal(uint32(77)))
			Expect(pipe.DCache().Stats().Writebacks).To(BeNumerically(">=", 1))
			Expect(ctrl.Stats().Writebacks).To(BeNumerically(">=", 1))
		})

		It("should count cycles spent waiting on memory", func() {
			build([]uint32{insts.ECALL()}, 5)

			Expect(runToHalt()).To(Succeed())
			Expect(pipe.Stats().FetchStalls).To(Equal(uint64(5)))
			Expect(pipe.ICache().Stats().Misses).To(Equal(uint64(1)))
			Expect(pipe.Stats().CPI()).To(BeNumerically(">", 5))
		})
	})

	It("should reset to a clean state", func() {
		perfect([]uint32{insts.ADDI(insts.RegA0, 0, 1), insts.ECALL()})
		Expect(runToHalt()).To(Succeed())

		regFile.Reset()
		pipe.Reset()

		Expect(pipe.Halted()).To(BeFalse())
		Expect(pipe.Stats()).To(Equal(pipeline.Statistics{}))
		Expect(pipe.PC()).To(BeZero())
		Expect(runToHalt()).To(Succeed())
		Expect(pipe.ExitCode()).To(Equal(int64(1)))
	})
})
