// Package loader reads RV32I program images: flat little-endian binaries and
// 32-bit RISC-V ELF executables.
package loader

import (
	"bytes"
	"debug/elf"
	"fmt"
	"os"

	"github.com/sarchlab/rv32sim/emu"
)

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// SegmentFlagExecute indicates the segment is executable.
	SegmentFlagExecute SegmentFlags = 1 << iota
	// SegmentFlagWrite indicates the segment is writable.
	SegmentFlagWrite
	// SegmentFlagRead indicates the segment is readable.
	SegmentFlagRead
)

// Segment is a contiguous piece of the program image.
type Segment struct {
	// VirtAddr is the address where this segment should be loaded.
	VirtAddr uint32
	// Data contains the segment contents from the file.
	Data []byte
	// MemSize is the size in memory (may be larger than len(Data) for BSS).
	MemSize uint32
	// Flags contains the segment protection flags.
	Flags SegmentFlags
}

// Program is a loaded program image.
type Program struct {
	// EntryPoint is the address where execution should begin.
	EntryPoint uint32
	// Segments contains all loadable segments.
	Segments []Segment
}

// Target is simulated memory that accepts a program image. It is
// implemented by *emu.Memory and *core.Core.
type Target interface {
	LoadProgram(base uint32, image []byte) error
}

// LoadFlat reads a raw little-endian image from path. The image is placed
// at base, which is also the entry point.
func LoadFlat(path string, base uint32) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}

	return FromBytes(base, data), nil
}

// LoadFile loads path as an ELF executable when it carries the ELF magic
// and as a flat image at base otherwise.
func LoadFile(path string, base uint32) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}

	if bytes.HasPrefix(data, []byte(elf.ELFMAG)) {
		return Load(path)
	}

	return FromBytes(base, data), nil
}

// FromBytes wraps an in-memory image as a single segment at base.
func FromBytes(base uint32, data []byte) *Program {
	return &Program{
		EntryPoint: base,
		Segments: []Segment{{
			VirtAddr: base,
			Data:     data,
			MemSize:  uint32(len(data)),
			Flags:    SegmentFlagRead | SegmentFlagWrite | SegmentFlagExecute,
		}},
	}
}

// FromWords wraps instruction words as a single segment at base.
func FromWords(base uint32, words []uint32) *Program {
	return FromBytes(base, emu.WordsToBytes(words))
}

// Size returns the number of bytes the program occupies from its lowest to
// its highest address.
func (p *Program) Size() uint32 {
	if len(p.Segments) == 0 {
		return 0
	}

	low, high := p.Segments[0].VirtAddr, uint32(0)
	for _, seg := range p.Segments {
		low = min(low, seg.VirtAddr)
		high = max(high, seg.VirtAddr+max(seg.MemSize, uint32(len(seg.Data))))
	}

	return high - low
}

// LoadInto copies every segment into target. Bytes between the end of the
// file data and MemSize are zeroed.
func (p *Program) LoadInto(target Target) error {
	for _, seg := range p.Segments {
		image := seg.Data
		if seg.MemSize > uint32(len(seg.Data)) {
			image = make([]byte, seg.MemSize)
			copy(image, seg.Data)
		}

		if len(image) == 0 {
			continue
		}

		if err := target.LoadProgram(seg.VirtAddr, image); err != nil {
			return fmt.Errorf("failed to load segment at 0x%x: %w", seg.VirtAddr, err)
		}
	}

	return nil
}
