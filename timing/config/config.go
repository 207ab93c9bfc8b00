// Package config holds the construction-time configuration of a simulated
// core: cache geometry, main memory size and latency, and the program base
// address.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rv32sim/timing/cache"
)

// Default main memory parameters.
const (
	DefaultMemorySize    = 64 * 1024
	DefaultMemoryLatency = 10
)

// SimConfig describes a core. It is fixed once the core is built.
type SimConfig struct {
	// ICache is the instruction cache geometry. Its write policy is always
	// read-only.
	ICache cache.Config `json:"icache"`

	// DCache is the data cache geometry. Its write policy is always
	// write-back.
	DCache cache.Config `json:"dcache"`

	// MemorySize is the main memory size in bytes. Default: 64KB.
	MemorySize uint32 `json:"memory_size"`

	// MemoryLatency is the number of cycles a line transfer occupies the
	// memory controller. Default: 10 cycles.
	MemoryLatency uint64 `json:"memory_latency"`

	// BaseAddress is where flat program images are loaded and where the PC
	// starts. Default: 0.
	BaseAddress uint32 `json:"base_address"`

	// MaxCycles bounds run-until-halt loops. 0 means no bound.
	MaxCycles uint64 `json:"max_cycles"`

	// FrequencyGHz is the clock used to report simulated time. Default: 1.
	FrequencyGHz float64 `json:"frequency_ghz"`
}

// DefaultSimConfig returns a SimConfig with 1KB caches with 32B lines,
// 64KB of memory and a 10-cycle memory latency.
func DefaultSimConfig() *SimConfig {
	return &SimConfig{
		ICache:        cache.DefaultICacheConfig(),
		DCache:        cache.DefaultDCacheConfig(),
		MemorySize:    DefaultMemorySize,
		MemoryLatency: DefaultMemoryLatency,
		BaseAddress:   0,
		MaxCycles:     0,
		FrequencyGHz:  1,
	}
}

// LoadConfig loads a SimConfig from a JSON file. Fields missing from the
// file keep their defaults.
func LoadConfig(path string) (*SimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sim config file: %w", err)
	}

	config := DefaultSimConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse sim config: %w", err)
	}

	config.normalize()

	return config, nil
}

// SaveConfig writes a SimConfig to a JSON file.
func (c *SimConfig) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize sim config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write sim config file: %w", err)
	}

	return nil
}

func (c *SimConfig) normalize() {
	c.ICache.WritePolicy = cache.ReadOnly
	c.DCache.WritePolicy = cache.WriteBack
}

// Validate checks that the configuration describes a buildable core.
func (c *SimConfig) Validate() error {
	c.normalize()

	if err := c.ICache.Validate(); err != nil {
		return fmt.Errorf("icache: %w", err)
	}
	if err := c.DCache.Validate(); err != nil {
		return fmt.Errorf("dcache: %w", err)
	}
	if c.MemoryLatency == 0 {
		return fmt.Errorf("memory_latency must be > 0")
	}
	if c.MemorySize == 0 {
		return fmt.Errorf("memory_size must be > 0")
	}
	if c.MemorySize%uint32(c.ICache.LineSize) != 0 ||
		c.MemorySize%uint32(c.DCache.LineSize) != 0 {
		return fmt.Errorf("memory_size must be a multiple of both line sizes")
	}
	if c.BaseAddress%4 != 0 {
		return fmt.Errorf("base_address must be 4-byte aligned")
	}
	if c.BaseAddress >= c.MemorySize {
		return fmt.Errorf("base_address 0x%x outside memory", c.BaseAddress)
	}
	if c.FrequencyGHz < 0 {
		return fmt.Errorf("frequency_ghz must be >= 0")
	}
	return nil
}

// Freq returns the core clock as an Akita frequency.
func (c *SimConfig) Freq() sim.Freq {
	if c.FrequencyGHz <= 0 {
		return 1 * sim.GHz
	}
	return sim.Freq(c.FrequencyGHz) * sim.GHz
}

// SimulatedTime converts a cycle count into simulated seconds.
func (c *SimConfig) SimulatedTime(cycles uint64) sim.VTimeInSec {
	return sim.VTimeInSec(cycles) * c.Freq().Period()
}

// Clone returns a deep copy of the SimConfig.
func (c *SimConfig) Clone() *SimConfig {
	clone := *c
	return &clone
}
