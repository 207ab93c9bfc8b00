package pipeline

import (
	"github.com/sarchlab/rv32sim/emu"
	"github.com/sarchlab/rv32sim/timing/cache"
)

// CachedFetchStage fetches instructions through the L1 instruction cache.
type CachedFetchStage struct {
	cache  *cache.Cache
	memory *emu.Memory
}

// NewCachedFetchStage creates a new cached fetch stage.
func NewCachedFetchStage(icache *cache.Cache, memory *emu.Memory) *CachedFetchStage {
	return &CachedFetchStage{
		cache:  icache,
		memory: memory,
	}
}

// FetchResult is the outcome of one fetch attempt.
type FetchResult struct {
	Word uint32
	// Ready is false while the I-cache is filling the line.
	Ready bool
	// Fault is set for a misaligned or out-of-range PC.
	Fault *emu.Fault
}

// Fetch fetches the instruction word at pc through the I-cache.
func (s *CachedFetchStage) Fetch(pc uint32) FetchResult {
	if err := s.memory.CheckAccess(pc, 4); err != nil {
		return s.fault(err, pc)
	}

	result := s.cache.Read(pc, 4)
	if result.Err != nil {
		return s.fault(result.Err, pc)
	}

	if !result.Hit {
		return FetchResult{}
	}

	return FetchResult{Word: result.Data, Ready: true}
}

func (s *CachedFetchStage) fault(err error, pc uint32) FetchResult {
	f := emu.AsFault(err, pc).At(pc)
	f.Fetch = true
	return FetchResult{Ready: true, Fault: f}
}

// Cache returns the instruction cache.
func (s *CachedFetchStage) Cache() *cache.Cache {
	return s.cache
}

// CachedMemoryStage handles memory reads and writes through the L1 data
// cache.
type CachedMemoryStage struct {
	cache  *cache.Cache
	memory *emu.Memory
}

// NewCachedMemoryStage creates a new cached memory stage.
func NewCachedMemoryStage(dcache *cache.Cache, memory *emu.Memory) *CachedMemoryStage {
	return &CachedMemoryStage{
		cache:  dcache,
		memory: memory,
	}
}

// MemoryResult is the outcome of one memory-stage attempt.
type MemoryResult struct {
	MemData uint32
	// Ready is false while the D-cache is filling the line.
	Ready bool
	Fault *emu.Fault
}

// Access performs the load or store of the instruction in EX/MEM. Non-memory
// instructions are always ready.
func (s *CachedMemoryStage) Access(exmem *EXMEMRegister) MemoryResult {
	if !exmem.MemRead && !exmem.MemWrite {
		return MemoryResult{Ready: true}
	}

	addr := exmem.ALUResult
	ctrl := exmem.Inst.Ctrl

	if err := s.memory.CheckAccess(addr, ctrl.MemSize); err != nil {
		return MemoryResult{Ready: true, Fault: emu.AsFault(err, addr).At(exmem.PC)}
	}

	var result cache.AccessResult
	if exmem.MemRead {
		result = s.cache.Read(addr, int(ctrl.MemSize))
	} else {
		result = s.cache.Write(addr, int(ctrl.MemSize), exmem.StoreValue)
	}

	if result.Err != nil {
		return MemoryResult{Ready: true, Fault: emu.AsFault(result.Err, addr).At(exmem.PC)}
	}

	if !result.Hit {
		return MemoryResult{}
	}

	if exmem.MemRead {
		return MemoryResult{
			Ready:   true,
			MemData: emu.ExtendLoad(result.Data, ctrl.MemSize, ctrl.MemSigned),
		}
	}

	return MemoryResult{Ready: true}
}

// Cache returns the data cache.
func (s *CachedMemoryStage) Cache() *cache.Cache {
	return s.cache
}
