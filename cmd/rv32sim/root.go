package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// exitCodeError reports a program that halted with a non-zero exit code.
type exitCodeError struct {
	code int64
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("program exited with code %d", e.code)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rv32sim",
		Short: "rv32sim simulates a 5-stage pipelined RV32I core.",
		Long: `rv32sim simulates a 5-stage pipelined RV32I core with a ` +
			`direct-mapped instruction cache, a write-back data cache and a ` +
			`fixed-latency memory controller. Programs are flat binaries or ` +
			`32-bit RISC-V ELF files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env")
			return loadEnv(envFile, cmd.Flags().Changed("env"))
		},
	}

	root.PersistentFlags().String("config", "",
		"path to a JSON core configuration file")
	root.PersistentFlags().String("env", ".env",
		"dotenv file providing "+envPrefix+"* settings")
	root.PersistentFlags().String("cpuprofile", "", "write a CPU profile to this file")
	root.PersistentFlags().String("memprofile", "", "write a heap profile to this file")

	root.AddCommand(
		newRunCmd(),
		newEmulateCmd(),
		newServeCmd(),
		newBenchCmd(),
		newDemoCmd(),
	)

	for _, sub := range root.Commands() {
		withProfiling(sub)
	}

	return root
}

// Execute runs the root command. A program's non-zero exit code becomes the
// process exit code.
func Execute() {
	err := newRootCmd().Execute()
	if err == nil {
		return
	}

	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		os.Exit(int(exitErr.code))
	}

	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
