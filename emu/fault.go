package emu

import (
	"errors"
	"fmt"
)

// FaultKind classifies a terminal execution fault.
type FaultKind uint8

// Fault kinds.
const (
	FaultNone FaultKind = iota
	FaultIllegalInstruction
	FaultOutOfRange
	FaultMisaligned
)

// Sentinel errors matched by errors.Is against a *Fault.
var (
	ErrIllegalInstruction = errors.New("illegal instruction")
	ErrOutOfRange         = errors.New("address out of range")
	ErrMisaligned         = errors.New("misaligned access")
)

func (k FaultKind) String() string {
	switch k {
	case FaultIllegalInstruction:
		return "illegal instruction"
	case FaultOutOfRange:
		return "out of range"
	case FaultMisaligned:
		return "misaligned"
	default:
		return "none"
	}
}

// Fault is a terminal condition raised by an instruction. It records the
// PC of the faulting instruction and, for memory faults, the address.
type Fault struct {
	Kind FaultKind
	PC   uint32
	Addr uint32
	Word uint32

	// Fetch is true when the faulting address is an instruction address,
	// either the fetch itself or the target of a jump or taken branch.
	Fetch bool
}

// Error implements error.
func (f *Fault) Error() string {
	switch f.Kind {
	case FaultIllegalInstruction:
		return fmt.Sprintf("illegal instruction 0x%08x at pc=0x%08x", f.Word, f.PC)
	case FaultOutOfRange, FaultMisaligned:
		what := "data"
		if f.Fetch {
			what = "fetch"
		}
		return fmt.Sprintf("%s %s access at addr=0x%08x (pc=0x%08x)",
			f.Kind, what, f.Addr, f.PC)
	default:
		return fmt.Sprintf("fault at pc=0x%08x", f.PC)
	}
}

// Unwrap returns the sentinel error for the fault kind.
func (f *Fault) Unwrap() error {
	switch f.Kind {
	case FaultIllegalInstruction:
		return ErrIllegalInstruction
	case FaultOutOfRange:
		return ErrOutOfRange
	case FaultMisaligned:
		return ErrMisaligned
	default:
		return nil
	}
}

// At returns a copy of the fault attributed to the instruction at pc.
func (f *Fault) At(pc uint32) *Fault {
	c := *f
	c.PC = pc
	return &c
}

// AsFault extracts a *Fault from err, wrapping unknown errors as an
// out-of-range fault at addr.
func AsFault(err error, addr uint32) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return &Fault{Kind: FaultOutOfRange, Addr: addr}
}
