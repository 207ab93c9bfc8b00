package cache

import "fmt"

// WritePolicy selects how a cache handles stores.
type WritePolicy uint8

// Write policies.
const (
	// ReadOnly rejects writes. Used for the instruction cache.
	ReadOnly WritePolicy = iota
	// WriteBack keeps stores in the cache and writes dirty lines to memory
	// on eviction. Misses allocate.
	WriteBack
)

// Config holds cache configuration parameters.
type Config struct {
	// Size in bytes
	Size int `json:"size"`
	// LineSize in bytes
	LineSize int `json:"line_size"`
	// WritePolicy is ReadOnly or WriteBack
	WritePolicy WritePolicy `json:"write_policy"`
	// Perfect makes every access complete immediately. Misses are still
	// serviced, functionally, so architectural state is unaffected.
	Perfect bool `json:"perfect"`
}

// DefaultICacheConfig returns the default instruction cache: 1KB, 32B lines.
func DefaultICacheConfig() Config {
	return Config{
		Size:        1024,
		LineSize:    32,
		WritePolicy: ReadOnly,
	}
}

// DefaultDCacheConfig returns the default data cache: 1KB, 32B lines,
// write-back.
func DefaultDCacheConfig() Config {
	return Config{
		Size:        1024,
		LineSize:    32,
		WritePolicy: WriteBack,
	}
}

// Lines returns the number of cache lines.
func (c Config) Lines() int {
	return c.Size / c.LineSize
}

// Offset returns the byte offset of addr within its line.
func (c Config) Offset(addr uint32) uint32 {
	return addr % uint32(c.LineSize)
}

// Index returns the line addr maps to.
func (c Config) Index(addr uint32) uint32 {
	return (addr / uint32(c.LineSize)) % uint32(c.Lines())
}

// Tag returns the tag stored for addr.
func (c Config) Tag(addr uint32) uint32 {
	return addr / uint32(c.LineSize*c.Lines())
}

// LineAddr returns the line-aligned address containing addr.
func (c Config) LineAddr(addr uint32) uint32 {
	return addr - c.Offset(addr)
}

func isPowerOfTwo(v int) bool {
	return v > 0 && v&(v-1) == 0
}

// Validate checks the geometry.
func (c Config) Validate() error {
	if !isPowerOfTwo(c.LineSize) || c.LineSize < 4 {
		return fmt.Errorf("line_size must be a power of two >= 4, got %d", c.LineSize)
	}
	if c.Size < c.LineSize || c.Size%c.LineSize != 0 {
		return fmt.Errorf("size must be a non-zero multiple of line_size, got %d", c.Size)
	}
	if !isPowerOfTwo(c.Lines()) {
		return fmt.Errorf("number of lines must be a power of two, got %d", c.Lines())
	}
	if c.WritePolicy != ReadOnly && c.WritePolicy != WriteBack {
		return fmt.Errorf("unknown write_policy %d", c.WritePolicy)
	}
	return nil
}
