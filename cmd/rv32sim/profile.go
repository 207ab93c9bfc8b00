package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/spf13/cobra"
)

func flagValue(cmd *cobra.Command, name string) string {
	if f := cmd.Flag(name); f != nil {
		return f.Value.String()
	}
	return ""
}

// startProfiling starts the CPU profile requested by --cpuprofile. The
// returned function stops it and writes the --memprofile heap profile.
func startProfiling(cmd *cobra.Command) (func() error, error) {
	cpuPath := flagValue(cmd, "cpuprofile")
	memPath := flagValue(cmd, "memprofile")

	var cpuFile *os.File
	if cpuPath != "" {
		f, err := os.Create(cpuPath)
		if err != nil {
			return nil, fmt.Errorf("could not create CPU profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("could not start CPU profile: %w", err)
		}
		cpuFile = f
	}

	stop := func() error {
		if cpuFile != nil {
			pprof.StopCPUProfile()
			if err := cpuFile.Close(); err != nil {
				return err
			}
		}

		if memPath == "" {
			return nil
		}

		f, err := os.Create(memPath)
		if err != nil {
			return fmt.Errorf("could not create memory profile: %w", err)
		}
		defer f.Close()

		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			return fmt.Errorf("could not write memory profile: %w", err)
		}

		return nil
	}

	return stop, nil
}

// withProfiling wraps the command's RunE so profiles cover exactly the run.
func withProfiling(cmd *cobra.Command) {
	runE := cmd.RunE
	if runE == nil {
		return
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		stop, err := startProfiling(cmd)
		if err != nil {
			return err
		}

		runErr := runE(cmd, args)
		if stopErr := stop(); stopErr != nil && runErr == nil {
			return stopErr
		}

		return runErr
	}
}
