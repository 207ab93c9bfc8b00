// Package cache provides direct-mapped L1 cache models using Akita cache
// components.
package cache

import (
	"errors"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/rv32sim/timing/memctrl"
)

// ErrReadOnly is returned when writing to a read-only cache.
var ErrReadOnly = errors.New("write to read-only cache")

// Port is the memory side of a cache. It is implemented by
// *memctrl.Controller.
type Port interface {
	Fill(addr, size uint32, requester string, onComplete func(*memctrl.Request)) (*memctrl.Request, error)
	Writeback(addr uint32, data []byte, requester string, onComplete func(*memctrl.Request)) (*memctrl.Request, error)
	ReadBlock(addr, n uint32) ([]byte, error)
	WriteBlock(addr uint32, data []byte) error
}

// AccessResult contains the result of a cache access.
type AccessResult struct {
	// Hit is true when the access completed this cycle. A false Hit with a
	// nil Err means the line is being filled; retry next cycle.
	Hit bool
	// Data is the zero-extended value read (for reads).
	Data uint32
	// Err is set if the access cannot be serviced.
	Err error
}

// Statistics holds cache performance statistics.
type Statistics struct {
	Reads      uint64
	Writes     uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
	// WaitCycles counts accesses that returned not-ready.
	WaitCycles uint64
}

type pendingFill struct {
	lineAddr uint32
	block    *akitacache.Block
	req      *memctrl.Request
}

// Cache is a direct-mapped cache. Tags and valid/dirty state live in an
// Akita directory with associativity one; line data lives alongside it.
// At most one fill is outstanding at a time.
type Cache struct {
	name   string
	config Config

	directory *akitacache.DirectoryImpl
	dataStore [][]byte

	port    Port
	pending *pendingFill

	// filledAddr marks the line installed by the most recent fill so that
	// the retry which consumes it is not counted as a second access.
	filledAddr  uint32
	filledValid bool

	stats Statistics
}

// New creates a new cache named name in front of port.
func New(name string, config Config, port Port) *Cache {
	lines := config.Lines()

	dataStore := make([][]byte, lines)
	for i := range dataStore {
		dataStore[i] = make([]byte, config.LineSize)
	}

	return &Cache{
		name:   name,
		config: config,
		directory: akitacache.NewDirectory(
			lines,
			1,
			config.LineSize,
			akitacache.NewLRUVictimFinder(),
		),
		dataStore: dataStore,
		port:      port,
	}
}

// Name returns the cache name used as the memory requester.
func (c *Cache) Name() string {
	return c.name
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// Stats returns cache statistics.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// ResetStats clears cache statistics.
func (c *Cache) ResetStats() {
	c.stats = Statistics{}
}

func (c *Cache) lineData(block *akitacache.Block) []byte {
	return c.dataStore[block.SetID]
}

// Read reads size bytes (1, 2 or 4) at addr. The access must not cross a
// line boundary.
func (c *Cache) Read(addr uint32, size int) AccessResult {
	block, result := c.access(addr, false)
	if block == nil {
		return result
	}

	offset := c.config.Offset(addr)
	result.Data = extractData(c.lineData(block), offset, size)

	return result
}

// Write writes the low size bytes of value at addr. On a miss the line is
// allocated first.
func (c *Cache) Write(addr uint32, size int, value uint32) AccessResult {
	if c.config.WritePolicy == ReadOnly {
		return AccessResult{Err: ErrReadOnly}
	}

	block, result := c.access(addr, true)
	if block == nil {
		return result
	}

	offset := c.config.Offset(addr)
	storeData(c.lineData(block), offset, size, value)
	block.IsDirty = true

	return result
}

// access returns the block holding addr once it is resident. A nil block
// means the result carries not-ready or an error.
func (c *Cache) access(addr uint32, isWrite bool) (*akitacache.Block, AccessResult) {
	lineAddr := c.config.LineAddr(addr)

	if c.pending != nil {
		c.stats.WaitCycles++
		return nil, AccessResult{}
	}

	retry := c.filledValid && c.filledAddr == lineAddr
	c.filledValid = false

	if !retry {
		if isWrite {
			c.stats.Writes++
		} else {
			c.stats.Reads++
		}
	}

	block := c.directory.Lookup(0, uint64(lineAddr))
	if block != nil && block.IsValid {
		if !retry {
			c.stats.Hits++
		}
		c.directory.Visit(block)
		return block, AccessResult{Hit: true}
	}

	c.stats.Misses++

	if c.config.Perfect {
		block, err := c.fillNow(lineAddr)
		if err != nil {
			return nil, AccessResult{Err: err}
		}
		return block, AccessResult{Hit: true}
	}

	if err := c.startFill(lineAddr); err != nil {
		return nil, AccessResult{Err: err}
	}

	c.stats.WaitCycles++
	return nil, AccessResult{}
}

// evict queues the write-back of a dirty victim. The victim stays valid
// until the fill replacing it completes.
func (c *Cache) evict(victim *akitacache.Block, functional bool) error {
	if !victim.IsValid {
		return nil
	}

	c.stats.Evictions++

	if !victim.IsDirty {
		return nil
	}

	data := c.lineData(victim)
	addr := uint32(victim.Tag)

	var err error
	if functional {
		err = c.port.WriteBlock(addr, data)
	} else {
		_, err = c.port.Writeback(addr, data, c.name, nil)
	}
	if err != nil {
		return err
	}

	c.stats.Writebacks++
	victim.IsDirty = false

	return nil
}

func (c *Cache) startFill(lineAddr uint32) error {
	victim := c.directory.FindVictim(uint64(lineAddr))

	if err := c.evict(victim, false); err != nil {
		return err
	}

	p := &pendingFill{lineAddr: lineAddr, block: victim}
	c.pending = p

	req, err := c.port.Fill(lineAddr, uint32(c.config.LineSize), c.name, c.onFill)
	if err != nil {
		c.pending = nil
		return err
	}

	if c.pending == p {
		p.req = req
	}

	return nil
}

func (c *Cache) onFill(req *memctrl.Request) {
	p := c.pending
	if p == nil || (p.req != nil && p.req != req) {
		return
	}
	c.pending = nil

	if req.Err != nil {
		return
	}

	c.install(p.block, p.lineAddr, req.Data)
	c.filledAddr = p.lineAddr
	c.filledValid = true
}

func (c *Cache) fillNow(lineAddr uint32) (*akitacache.Block, error) {
	victim := c.directory.FindVictim(uint64(lineAddr))

	if err := c.evict(victim, true); err != nil {
		return nil, err
	}

	data, err := c.port.ReadBlock(lineAddr, uint32(c.config.LineSize))
	if err != nil {
		return nil, err
	}

	c.install(victim, lineAddr, data)

	return victim, nil
}

func (c *Cache) install(block *akitacache.Block, lineAddr uint32, data []byte) {
	copy(c.lineData(block), data)
	block.Tag = uint64(lineAddr)
	block.IsValid = true
	block.IsDirty = false
	c.directory.Visit(block)
}

// ProbeByte returns the cached byte at addr without side effects. ok is
// false if the line is not resident.
func (c *Cache) ProbeByte(addr uint32) (b byte, ok bool) {
	block := c.line(addr)
	if block == nil {
		return 0, false
	}
	return c.lineData(block)[c.config.Offset(addr)], true
}

// Resident reports whether the line holding addr is valid, and whether it
// is dirty.
func (c *Cache) Resident(addr uint32) (valid, dirty bool) {
	block := c.line(addr)
	if block == nil {
		return false, false
	}
	return true, block.IsDirty
}

// line returns the valid line holding addr, or nil. The directory slot is
// picked by index and the stored line address must carry the same tag.
func (c *Cache) line(addr uint32) *akitacache.Block {
	block := c.directory.GetSets()[c.config.Index(addr)].Blocks[0]
	if !block.IsValid || c.config.Tag(uint32(block.Tag)) != c.config.Tag(addr) {
		return nil
	}
	return block
}

// Flush writes back all dirty lines immediately and invalidates every line.
func (c *Cache) Flush() error {
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty {
				err := c.port.WriteBlock(uint32(block.Tag), c.lineData(block))
				if err != nil {
					return err
				}
				c.stats.Writebacks++
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}

	return nil
}

// Reset invalidates all cache lines without writeback and drops any
// outstanding fill.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.pending = nil
	c.filledValid = false
	c.stats = Statistics{}
}

// extractData extracts a little-endian value of the given size.
func extractData(data []byte, offset uint32, size int) uint32 {
	if int(offset)+size > len(data) {
		return 0
	}

	var result uint32
	for i := 0; i < size; i++ {
		result |= uint32(data[int(offset)+i]) << (i * 8)
	}
	return result
}

// storeData stores a little-endian value of the given size.
func storeData(data []byte, offset uint32, size int, value uint32) {
	if int(offset)+size > len(data) {
		return
	}

	for i := 0; i < size; i++ {
		data[int(offset)+i] = byte(value >> (i * 8))
	}
}
