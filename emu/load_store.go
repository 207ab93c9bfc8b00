package emu

// ExtendLoad sign- or zero-extends a loaded value of size bytes.
func ExtendLoad(raw uint32, size uint8, signed bool) uint32 {
	switch size {
	case 1:
		if signed {
			return uint32(int32(int8(raw)))
		}
		return raw & 0xFF
	case 2:
		if signed {
			return uint32(int32(int16(raw)))
		}
		return raw & 0xFFFF
	default:
		return raw
	}
}

// LoadStoreUnit performs architectural loads and stores against a Memory.
type LoadStoreUnit struct {
	memory *Memory
}

// NewLoadStoreUnit creates a new LoadStoreUnit over memory.
func NewLoadStoreUnit(memory *Memory) *LoadStoreUnit {
	return &LoadStoreUnit{memory: memory}
}

// Load reads size bytes at addr and extends the result.
func (lsu *LoadStoreUnit) Load(addr uint32, size uint8, signed bool) (uint32, error) {
	raw, err := lsu.memory.Read(addr, size)
	if err != nil {
		return 0, err
	}
	return ExtendLoad(raw, size, signed), nil
}

// Store writes the low size bytes of value at addr.
func (lsu *LoadStoreUnit) Store(addr uint32, size uint8, value uint32) error {
	return lsu.memory.Write(addr, size, value)
}
