package emu

import "github.com/sarchlab/rv32sim/insts"

// EvaluateBranch reports whether a conditional branch with operands a and b
// is taken.
func EvaluateBranch(a, b uint32, cond insts.BranchCond) bool {
	switch cond {
	case insts.BranchEQ:
		return a == b
	case insts.BranchNE:
		return a != b
	case insts.BranchLT:
		return int32(a) < int32(b)
	case insts.BranchGE:
		return int32(a) >= int32(b)
	case insts.BranchLTU:
		return a < b
	case insts.BranchGEU:
		return a >= b
	default:
		return false
	}
}

// Redirect resolves the control-flow outcome of inst. It returns whether the
// PC is redirected and the target. Jumps always redirect; JALR clears bit 0
// of rs1+imm.
func Redirect(inst *insts.Instruction, pc, rs1, rs2 uint32) (bool, uint32) {
	ctrl := inst.Ctrl

	switch {
	case ctrl.Jump && ctrl.JumpReg:
		return true, (rs1 + uint32(inst.Imm)) &^ 1
	case ctrl.Jump:
		return true, pc + uint32(inst.Imm)
	case ctrl.IsBranch():
		if EvaluateBranch(rs1, rs2, ctrl.Branch) {
			return true, pc + uint32(inst.Imm)
		}
	}

	return false, 0
}

// CheckTarget reports the fault a redirect from pc to target raises when
// target is not a fetchable instruction address. It returns nil otherwise.
func CheckTarget(memory *Memory, pc, target uint32) *Fault {
	err := memory.CheckAccess(target, 4)
	if err == nil {
		return nil
	}

	f := AsFault(err, target).At(pc)
	f.Fetch = true
	return f
}
