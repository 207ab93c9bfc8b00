package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/rv32sim/insts"
	"github.com/sarchlab/rv32sim/loader"
	"github.com/sarchlab/rv32sim/timing/config"
	"github.com/sarchlab/rv32sim/timing/core"
	"github.com/sarchlab/rv32sim/trace"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <program>",
		Short: "Run a program on the cycle-accurate pipeline.",
		Long: `Run a flat binary or RV32 ELF file on the timing model and ` +
			`print cycle counts, CPI, stall breakdown and cache statistics.`,
		Args: cobra.ExactArgs(1),
		RunE: runTiming,
	}

	addSimFlags(cmd)
	cmd.Flags().Bool("trace", false, "record a pipeline trace into SQLite")
	cmd.Flags().String("trace-db", "", "trace database name without extension")
	cmd.Flags().Bool("regs", false, "dump registers after the run")

	return cmd
}

// newLoadedCore builds a core from cfg and loads prog into it. The stack
// pointer starts at the top of memory.
func newLoadedCore(cfg *config.SimConfig, prog *loader.Program) (*core.Core, error) {
	c, err := core.NewCore(cfg)
	if err != nil {
		return nil, err
	}

	if err := prog.LoadInto(c); err != nil {
		return nil, err
	}

	c.SetPC(prog.EntryPoint)
	c.SetReg(insts.RegSP, cfg.MemorySize)

	return c, nil
}

func attachTrace(cmd *cobra.Command, c *core.Core) (*trace.Recorder, error) {
	enabled, _ := cmd.Flags().GetBool("trace")
	name, _ := cmd.Flags().GetString("trace-db")
	if !enabled && name == "" {
		return nil, nil
	}

	recorder := trace.NewRecorder(name)
	if err := recorder.Init(); err != nil {
		return nil, err
	}

	c.AcceptHook(recorder)
	c.MemCtrl().AcceptHook(recorder)

	return recorder, nil
}

func runTiming(cmd *cobra.Command, args []string) error {
	cfg, err := simConfig(cmd)
	if err != nil {
		return err
	}

	programPath := args[0]
	prog, err := loader.LoadFile(programPath, cfg.BaseAddress)
	if err != nil {
		return err
	}

	c, err := newLoadedCore(cfg, prog)
	if err != nil {
		return err
	}

	recorder, err := attachTrace(cmd, c)
	if err != nil {
		return err
	}

	_, runErr := c.RunUntilHalt(0)

	if recorder != nil {
		if err := recorder.Close(); err != nil {
			return fmt.Errorf("failed to write trace: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Trace written to %s.sqlite3\n", recorder.Name())
	}

	out := cmd.OutOrStdout()
	printTimingReport(out, programPath, c)

	if regs, _ := cmd.Flags().GetBool("regs"); regs {
		_, _ = fmt.Fprintln(out)
		printRegs(out, c.PC(), c.Regs())
	}

	return exitStatus(c, runErr)
}

// exitStatus turns the outcome of a run into the command's error.
func exitStatus(c *core.Core, runErr error) error {
	if f := c.Fault(); f != nil {
		return f
	}

	if runErr != nil {
		return runErr
	}

	if c.ExitCode() != 0 {
		return &exitCodeError{code: c.ExitCode()}
	}

	return nil
}
