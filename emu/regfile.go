// Package emu provides functional RV32I emulation and the architectural
// state shared with the timing model.
package emu

// NumRegs is the number of integer registers.
const NumRegs = 32

// RegFile represents the RV32I integer register file and program counter.
type RegFile struct {
	// X holds registers x0-x31. X[0] is kept at zero; all writes to it are
	// discarded.
	X [NumRegs]uint32

	// PC is the program counter.
	PC uint32
}

// ReadReg reads a register value. x0 and out-of-range indices return 0.
func (r *RegFile) ReadReg(reg uint8) uint32 {
	if reg == 0 || reg >= NumRegs {
		return 0
	}
	return r.X[reg]
}

// WriteReg writes a value to a register. Writes to x0 are ignored.
func (r *RegFile) WriteReg(reg uint8, value uint32) {
	if reg == 0 || reg >= NumRegs {
		return
	}
	r.X[reg] = value
}

// Snapshot returns a copy of all 32 registers.
func (r *RegFile) Snapshot() [NumRegs]uint32 {
	return r.X
}

// Reset clears every register and the PC.
func (r *RegFile) Reset() {
	r.X = [NumRegs]uint32{}
	r.PC = 0
}
