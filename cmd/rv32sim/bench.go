package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/rv32sim/benchmarks"
)

func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench [name...]",
		Short: "Run the timing microbenchmarks.",
		Long: `Run the built-in RV32I microbenchmarks on fresh cores and ` +
			`report cycles, CPI, stalls and cache behavior. With names, ` +
			`only those benchmarks run.`,
		RunE: runBench,
	}

	addSimFlags(cmd)
	cmd.Flags().Bool("csv", false, "output results in CSV format")
	cmd.Flags().Bool("json", false, "output results in JSON format")
	cmd.Flags().Bool("core", false, "run only the core benchmark subset")
	cmd.Flags().Bool("no-icache", false, "use a perfect instruction cache")
	cmd.Flags().Bool("no-dcache", false, "use a perfect data cache")
	cmd.Flags().BoolP("verbose", "v", false, "print progress while running")

	return cmd
}

func selectBenchmarks(cmd *cobra.Command, names []string) ([]benchmarks.Benchmark, error) {
	if len(names) == 0 {
		if coreOnly, _ := cmd.Flags().GetBool("core"); coreOnly {
			return benchmarks.GetCoreBenchmarks(), nil
		}
		return benchmarks.GetMicrobenchmarks(), nil
	}

	selected := make([]benchmarks.Benchmark, 0, len(names))
	for _, name := range names {
		b, ok := benchmarks.GetBenchmark(name)
		if !ok {
			return nil, fmt.Errorf("unknown benchmark %q", name)
		}
		selected = append(selected, b)
	}

	return selected, nil
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := simConfig(cmd)
	if err != nil {
		return err
	}

	selected, err := selectBenchmarks(cmd, args)
	if err != nil {
		return err
	}

	noICache, _ := cmd.Flags().GetBool("no-icache")
	noDCache, _ := cmd.Flags().GetBool("no-dcache")
	verbose, _ := cmd.Flags().GetBool("verbose")

	harnessConfig := benchmarks.DefaultConfig()
	harnessConfig.Sim = cfg
	harnessConfig.EnableICache = !noICache && !cfg.ICache.Perfect
	harnessConfig.EnableDCache = !noDCache && !cfg.DCache.Perfect
	harnessConfig.Output = cmd.OutOrStdout()
	harnessConfig.Verbose = verbose

	harness := benchmarks.NewHarness(harnessConfig)
	harness.AddBenchmarks(selected)

	results := harness.RunAll()

	asCSV, _ := cmd.Flags().GetBool("csv")
	asJSON, _ := cmd.Flags().GetBool("json")

	switch {
	case asJSON:
		if err := harness.PrintJSON(results); err != nil {
			return err
		}
	case asCSV:
		harness.PrintCSV(results)
	default:
		harness.PrintResults(results)
	}

	if summary := benchmarks.Summarize(results); summary.Failed > 0 {
		return fmt.Errorf("%d of %d benchmarks failed", summary.Failed, summary.TotalBenchmarks)
	}

	return nil
}
