package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sarchlab/rv32sim/timing/config"
)

const envPrefix = "RV32SIM_"

// loadEnv loads a dotenv file into the process environment. Variables that
// are already set win. A missing file is an error only when it was asked for
// explicitly.
func loadEnv(path string, required bool) error {
	if path == "" {
		return nil
	}

	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	if !required && errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return fmt.Errorf("failed to load env file %s: %w", path, err)
}

func addSimFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Uint32("mem-size", config.DefaultMemorySize, "main memory size in bytes")
	flags.Uint64("mem-latency", config.DefaultMemoryLatency, "memory controller latency in cycles")
	flags.Uint64("max-cycles", 0, "stop after this many cycles (0 = no limit)")
	flags.Uint32("base", 0, "load address of flat images and the initial PC")
	flags.Int("icache-size", 0, "instruction cache size in bytes")
	flags.Int("dcache-size", 0, "data cache size in bytes")
	flags.Int("line-size", 0, "cache line size in bytes for both caches")
	flags.Bool("perfect", false, "make both caches always hit")
}

// simConfig builds the core configuration from, in increasing priority, the
// defaults, the --config file, RV32SIM_* environment variables and flags.
func simConfig(cmd *cobra.Command) (*config.SimConfig, error) {
	cfg := config.DefaultSimConfig()

	if f := cmd.Flag("config"); f != nil && f.Value.String() != "" {
		loaded, err := config.LoadConfig(f.Value.String())
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	applyFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func envUint(name string, bits int, set func(uint64)) error {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok || v == "" {
		return nil
	}

	n, err := strconv.ParseUint(v, 0, bits)
	if err != nil {
		return fmt.Errorf("invalid %s%s %q: %w", envPrefix, name, v, err)
	}

	set(n)

	return nil
}

func applyEnv(cfg *config.SimConfig) error {
	err := errors.Join(
		envUint("MEMORY_SIZE", 32, func(n uint64) { cfg.MemorySize = uint32(n) }),
		envUint("MEMORY_LATENCY", 64, func(n uint64) { cfg.MemoryLatency = n }),
		envUint("MAX_CYCLES", 64, func(n uint64) { cfg.MaxCycles = n }),
		envUint("BASE_ADDRESS", 32, func(n uint64) { cfg.BaseAddress = uint32(n) }),
	)
	if err != nil {
		return err
	}

	if v, ok := os.LookupEnv(envPrefix + "FREQUENCY_GHZ"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %sFREQUENCY_GHZ %q: %w", envPrefix, v, err)
		}
		cfg.FrequencyGHz = f
	}

	if v, ok := os.LookupEnv(envPrefix + "PERFECT_CACHES"); ok && v != "" {
		perfect, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sPERFECT_CACHES %q: %w", envPrefix, v, err)
		}
		cfg.ICache.Perfect = perfect
		cfg.DCache.Perfect = perfect
	}

	return nil
}

func applyFlags(cmd *cobra.Command, cfg *config.SimConfig) {
	flags := cmd.Flags()

	if flags.Changed("mem-size") {
		cfg.MemorySize, _ = flags.GetUint32("mem-size")
	}
	if flags.Changed("mem-latency") {
		cfg.MemoryLatency, _ = flags.GetUint64("mem-latency")
	}
	if flags.Changed("max-cycles") {
		cfg.MaxCycles, _ = flags.GetUint64("max-cycles")
	}
	if flags.Changed("base") {
		cfg.BaseAddress, _ = flags.GetUint32("base")
	}
	if flags.Changed("icache-size") {
		cfg.ICache.Size, _ = flags.GetInt("icache-size")
	}
	if flags.Changed("dcache-size") {
		cfg.DCache.Size, _ = flags.GetInt("dcache-size")
	}
	if flags.Changed("line-size") {
		lineSize, _ := flags.GetInt("line-size")
		cfg.ICache.LineSize = lineSize
		cfg.DCache.LineSize = lineSize
	}
	if flags.Changed("perfect") {
		perfect, _ := flags.GetBool("perfect")
		cfg.ICache.Perfect = perfect
		cfg.DCache.Perfect = perfect
	}
}
