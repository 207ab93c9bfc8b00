package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/rv32sim/emu"
	"github.com/sarchlab/rv32sim/insts"
	"github.com/sarchlab/rv32sim/loader"
)

func newEmulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emulate <program>",
		Short: "Run a program on the functional emulator.",
		Long: `Run a flat binary or RV32 ELF file one instruction at a time ` +
			`with no timing model. Useful as an architectural reference.`,
		Args: cobra.ExactArgs(1),
		RunE: runEmulation,
	}

	cmd.Flags().Uint32("mem-size", emu.DefaultMemorySize, "main memory size in bytes")
	cmd.Flags().Uint32("base", 0, "load address of flat images")
	cmd.Flags().Uint64("max-insts", 0, "stop after this many instructions (0 = no limit)")
	cmd.Flags().Bool("regs", false, "dump registers after the run")

	return cmd
}

func runEmulation(cmd *cobra.Command, args []string) error {
	memSize, _ := cmd.Flags().GetUint32("mem-size")
	base, _ := cmd.Flags().GetUint32("base")
	maxInsts, _ := cmd.Flags().GetUint64("max-insts")

	programPath := args[0]
	prog, err := loader.LoadFile(programPath, base)
	if err != nil {
		return err
	}

	memory := emu.NewMemory(memSize)
	if err := prog.LoadInto(memory); err != nil {
		return err
	}

	emulator := emu.NewEmulator(
		emu.WithMemory(memory),
		emu.WithEntry(prog.EntryPoint),
		emu.WithMaxInstructions(maxInsts),
	)
	emulator.RegFile().WriteReg(insts.RegSP, memSize)

	result := emulator.Run()

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "\nProgram: %s\n", programPath)
	if result.Exited {
		_, _ = fmt.Fprintf(out, "Exit code: %d\n", result.ExitCode)
	}
	_, _ = fmt.Fprintf(out, "Instructions executed: %d\n", emulator.InstructionCount())

	if regs, _ := cmd.Flags().GetBool("regs"); regs {
		_, _ = fmt.Fprintln(out)
		printRegs(out, emulator.RegFile().PC, emulator.RegFile().Snapshot())
	}

	if result.Err != nil {
		return result.Err
	}

	if result.ExitCode != 0 {
		return &exitCodeError{code: result.ExitCode}
	}

	return nil
}
