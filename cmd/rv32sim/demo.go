package main

import (
	"fmt"
	"io"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/spf13/cobra"

	"github.com/sarchlab/rv32sim/emu"
	"github.com/sarchlab/rv32sim/insts"
	"github.com/sarchlab/rv32sim/loader"
	"github.com/sarchlab/rv32sim/timing/pipeline"
)

// demoData is where the demo program keeps its array.
const demoData = 0x2000

// demoExit is the value the demo program returns in a0.
const demoExit = 55

const (
	regT0 = uint8(5)
	regT1 = uint8(6)
	regT2 = uint8(7)
)

// demoProgram stores 1..10 into an array, then calls a function that sums
// the array back into a0.
func demoProgram(base uint32) *loader.Program {
	a0, ra := insts.RegA0, insts.RegRA

	words := []uint32{
		insts.ADDI(regT0, 0, 1),
		insts.LUI(regT1, demoData>>12),
		insts.ADDI(regT2, 0, 11),
		// fill:
		insts.SW(regT0, regT1, 0),
		insts.ADDI(regT1, regT1, 4),
		insts.ADDI(regT0, regT0, 1),
		insts.BNE(regT0, regT2, -12),
		insts.JAL(ra, 8),
		insts.ECALL(),
		// sum:
		insts.LUI(regT1, demoData>>12),
		insts.ADDI(regT2, 0, 10),
		insts.ADDI(a0, 0, 0),
		// loop:
		insts.LW(regT0, regT1, 0),
		insts.ADD(a0, a0, regT0),
		insts.ADDI(regT1, regT1, 4),
		insts.ADDI(regT2, regT2, -1),
		insts.BNE(regT2, 0, -16),
		insts.JALR(0, ra, 0),
	}

	return loader.FromWords(base, words)
}

// retirePrinter prints one line per retired instruction.
type retirePrinter struct {
	w     io.Writer
	limit int
	count int
}

// Func implements sim.Hook.
func (p *retirePrinter) Func(ctx sim.HookCtx) {
	switch item := ctx.Item.(type) {
	case pipeline.RetireEvent:
		p.count++
		if p.limit > 0 && p.count > p.limit {
			return
		}

		line := fmt.Sprintf("%6d  0x%08x  %-24s", item.Cycle, item.PC, item.Inst)
		if item.RegWrite {
			line += fmt.Sprintf("  %s <- 0x%08x", insts.RegName(item.Rd), item.Value)
		}
		_, _ = fmt.Fprintln(p.w, line)
	case pipeline.FlushEvent:
		if p.limit > 0 && p.count >= p.limit {
			return
		}
		_, _ = fmt.Fprintf(p.w, "%6d  flush -> 0x%08x\n", item.Cycle, item.Target)
	}
}

func newDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a built-in program and show it retiring.",
		Long: `Run a built-in program that fills an array and sums it in a ` +
			`function call. Every retired instruction is printed, the result ` +
			`is checked against the functional emulator and the timing ` +
			`report follows.`,
		Args: cobra.NoArgs,
		RunE: runDemo,
	}

	addSimFlags(cmd)
	cmd.Flags().Int("limit", 0, "print at most this many retired instructions (0 = all)")
	cmd.Flags().Bool("quiet", false, "do not print retired instructions")

	return cmd
}

func runDemo(cmd *cobra.Command, _ []string) error {
	cfg, err := simConfig(cmd)
	if err != nil {
		return err
	}

	prog := demoProgram(cfg.BaseAddress)
	out := cmd.OutOrStdout()

	c, err := newLoadedCore(cfg, prog)
	if err != nil {
		return err
	}

	if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
		limit, _ := cmd.Flags().GetInt("limit")
		c.AcceptHook(&retirePrinter{w: out, limit: limit})
		_, _ = fmt.Fprintf(out, "%6s  %-10s  %s\n", "cycle", "pc", "instruction")
	}

	if _, err := c.RunUntilHalt(0); err != nil {
		return err
	}

	printTimingReport(out, "demo", c)

	reference := emu.NewEmulator(
		emu.WithMemory(emu.NewMemory(cfg.MemorySize)),
		emu.WithEntry(prog.EntryPoint),
	)
	if err := prog.LoadInto(reference.Memory()); err != nil {
		return err
	}
	reference.RegFile().WriteReg(insts.RegSP, cfg.MemorySize)
	result := reference.Run()

	match := result.Err == nil &&
		result.ExitCode == c.ExitCode() &&
		reference.RegFile().Snapshot() == c.Regs()
	_, _ = fmt.Fprintf(out, "\nMatches functional emulator: %v\n", match)

	if !match {
		return fmt.Errorf("timing model disagrees with the emulator: exit %d vs %d",
			c.ExitCode(), result.ExitCode)
	}

	return nil
}
