package pipeline

// ForwardSource indicates where a forwarded value should come from.
type ForwardSource int

const (
	// ForwardNone means no forwarding needed - use register file value.
	ForwardNone ForwardSource = iota
	// ForwardFromEX means forward the ALU result of the instruction in
	// Execute, before it is latched into EX/MEM.
	ForwardFromEX
	// ForwardFromMEM means forward the result of the instruction in Memory.
	ForwardFromMEM
	// ForwardFromWB means forward the result of the instruction in
	// Writeback.
	ForwardFromWB
)

func (s ForwardSource) String() string {
	switch s {
	case ForwardFromEX:
		return "EX"
	case ForwardFromMEM:
		return "MEM"
	case ForwardFromWB:
		return "WB"
	default:
		return "none"
	}
}

// ForwardingResult contains forwarding decisions for both source operands.
type ForwardingResult struct {
	// ForwardRs1 specifies the forwarding source for the rs1 operand.
	ForwardRs1 ForwardSource
	// ForwardRs2 specifies the forwarding source for the rs2 operand.
	ForwardRs2 ForwardSource
}

// StallResult contains stall and flush control signals.
type StallResult struct {
	// StallIF indicates the PC should hold.
	StallIF bool
	// StallID indicates the IF/ID register should hold its instruction.
	StallID bool
	// InsertBubbleEX indicates a bubble should be inserted into ID/EX.
	InsertBubbleEX bool
	// FlushIF indicates the instruction being fetched is discarded.
	FlushIF bool
	// FlushID indicates the instruction being decoded is discarded.
	FlushID bool
}

// Producer describes an in-flight instruction that may write a register.
type Producer struct {
	Valid    bool
	RegWrite bool
	IsLoad   bool
	Rd       uint8
	// Value is the value the producer will write, when already known.
	Value uint32
}

func (p Producer) writes(reg uint8) bool {
	return p.Valid && p.RegWrite && reg != 0 && p.Rd == reg
}

// Consumer describes the instruction in Decode.
type Consumer struct {
	Rs1     uint8
	Rs2     uint8
	UsesRs1 bool
	UsesRs2 bool
}

// HazardUnit detects data hazards and determines forwarding/stall signals.
type HazardUnit struct{}

// NewHazardUnit creates a new hazard detection unit.
func NewHazardUnit() *HazardUnit {
	return &HazardUnit{}
}

// DetectForwarding determines the forwarding source for each source
// operand of the instruction in Decode. The freshest producer wins:
// Execute, then Memory, then Writeback. A load in Execute is never a
// forwarding source; see DetectLoadUseHazard.
func (h *HazardUnit) DetectForwarding(c Consumer, ex, mem, wb Producer) ForwardingResult {
	result := ForwardingResult{
		ForwardRs1: ForwardNone,
		ForwardRs2: ForwardNone,
	}

	if c.UsesRs1 {
		result.ForwardRs1 = h.detectForwardForReg(c.Rs1, ex, mem, wb)
	}
	if c.UsesRs2 {
		result.ForwardRs2 = h.detectForwardForReg(c.Rs2, ex, mem, wb)
	}

	return result
}

func (h *HazardUnit) detectForwardForReg(reg uint8, ex, mem, wb Producer) ForwardSource {
	// x0 always reads as 0, no need to forward
	if reg == 0 {
		return ForwardNone
	}

	if ex.writes(reg) {
		if ex.IsLoad {
			return ForwardNone
		}
		return ForwardFromEX
	}

	if mem.writes(reg) {
		return ForwardFromMEM
	}

	if wb.writes(reg) {
		return ForwardFromWB
	}

	return ForwardNone
}

// DetectLoadUseHazard reports whether the instruction in Decode reads the
// destination of a load currently in Execute. The loaded value exists only
// after Memory, so the consumer must wait one cycle.
func (h *HazardUnit) DetectLoadUseHazard(c Consumer, ex Producer) bool {
	if !ex.IsLoad || !ex.writes(ex.Rd) {
		return false
	}

	if c.UsesRs1 && c.Rs1 == ex.Rd {
		return true
	}
	if c.UsesRs2 && c.Rs2 == ex.Rd {
		return true
	}

	return false
}

// ComputeStalls computes stall and flush signals based on hazard conditions.
// A taken branch discards the instructions behind it, which overrides any
// load-use stall they would have caused.
func (h *HazardUnit) ComputeStalls(loadUseHazard bool, branchTaken bool) StallResult {
	result := StallResult{}

	if branchTaken {
		result.FlushIF = true
		result.FlushID = true
		return result
	}

	// Load-use hazard: hold PC and IF/ID, insert bubble into ID/EX
	if loadUseHazard {
		result.StallIF = true
		result.StallID = true
		result.InsertBubbleEX = true
	}

	return result
}

// GetForwardedValue returns the value to use based on forwarding decision.
func (h *HazardUnit) GetForwardedValue(
	forward ForwardSource,
	regValue uint32,
	ex, mem, wb Producer,
) uint32 {
	switch forward {
	case ForwardFromEX:
		return ex.Value
	case ForwardFromMEM:
		return mem.Value
	case ForwardFromWB:
		return wb.Value
	default:
		return regValue
	}
}
