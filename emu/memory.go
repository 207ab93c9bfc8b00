package emu

import (
	"encoding/binary"

	"github.com/sarchlab/akita/v4/mem/mem"
)

// DefaultMemorySize is the main memory size used when none is configured.
const DefaultMemorySize = 64 * 1024

// Memory is a flat, little-endian, byte-addressed main memory of fixed size.
// Every access is range checked; word and halfword accesses must be
// naturally aligned.
type Memory struct {
	storage *mem.Storage
	size    uint32
}

// NewMemory creates a zero-filled memory of size bytes.
func NewMemory(size uint32) *Memory {
	return &Memory{
		storage: mem.NewStorage(uint64(size)),
		size:    size,
	}
}

// Size returns the capacity in bytes.
func (m *Memory) Size() uint32 {
	return m.size
}

// CheckRange returns an out-of-range fault unless [addr, addr+n) lies inside
// memory.
func (m *Memory) CheckRange(addr, n uint32) error {
	if uint64(addr)+uint64(n) > uint64(m.size) {
		return &Fault{Kind: FaultOutOfRange, Addr: addr}
	}
	return nil
}

// CheckAccess validates range and natural alignment of an access of size
// 1, 2 or 4 bytes.
func (m *Memory) CheckAccess(addr uint32, size uint8) error {
	if size > 1 && addr%uint32(size) != 0 {
		return &Fault{Kind: FaultMisaligned, Addr: addr}
	}
	return m.CheckRange(addr, uint32(size))
}

// ReadBlock reads n bytes starting at addr.
func (m *Memory) ReadBlock(addr, n uint32) ([]byte, error) {
	if err := m.CheckRange(addr, n); err != nil {
		return nil, err
	}
	return m.storage.Read(uint64(addr), uint64(n))
}

// WriteBlock writes data starting at addr.
func (m *Memory) WriteBlock(addr uint32, data []byte) error {
	if err := m.CheckRange(addr, uint32(len(data))); err != nil {
		return err
	}
	return m.storage.Write(uint64(addr), data)
}

// Read reads a zero-extended value of size bytes.
func (m *Memory) Read(addr uint32, size uint8) (uint32, error) {
	if err := m.CheckAccess(addr, size); err != nil {
		return 0, err
	}

	data, err := m.storage.Read(uint64(addr), uint64(size))
	if err != nil {
		return 0, err
	}

	return decodeLE(data), nil
}

// Write writes the low size bytes of value.
func (m *Memory) Write(addr uint32, size uint8, value uint32) error {
	if err := m.CheckAccess(addr, size); err != nil {
		return err
	}

	return m.storage.Write(uint64(addr), encodeLE(value, size))
}

// Read8 reads a byte.
func (m *Memory) Read8(addr uint32) (uint8, error) {
	v, err := m.Read(addr, 1)
	return uint8(v), err
}

// Read16 reads a halfword.
func (m *Memory) Read16(addr uint32) (uint16, error) {
	v, err := m.Read(addr, 2)
	return uint16(v), err
}

// Read32 reads a word.
func (m *Memory) Read32(addr uint32) (uint32, error) {
	return m.Read(addr, 4)
}

// Write8 writes a byte.
func (m *Memory) Write8(addr uint32, value uint8) error {
	return m.Write(addr, 1, uint32(value))
}

// Write16 writes a halfword.
func (m *Memory) Write16(addr uint32, value uint16) error {
	return m.Write(addr, 2, uint32(value))
}

// Write32 writes a word.
func (m *Memory) Write32(addr uint32, value uint32) error {
	return m.Write(addr, 4, value)
}

// LoadProgram copies a program image into memory at base.
func (m *Memory) LoadProgram(base uint32, image []byte) error {
	return m.WriteBlock(base, image)
}

// LoadWords stores instruction words consecutively from base.
func (m *Memory) LoadWords(base uint32, words []uint32) error {
	return m.LoadProgram(base, WordsToBytes(words))
}

// WordsToBytes serializes words little-endian.
func WordsToBytes(words []uint32) []byte {
	image := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(image[4*i:], w)
	}
	return image
}

func decodeLE(data []byte) uint32 {
	var v uint32
	for i, b := range data {
		v |= uint32(b) << (8 * i)
	}
	return v
}

func encodeLE(value uint32, size uint8) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(value >> (8 * i))
	}
	return data
}
