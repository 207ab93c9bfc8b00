// Package insts provides RV32I instruction definitions, decoding and encoding.
//
// This package turns 32-bit RISC-V machine words into structured instruction
// representations carrying the control signals the pipeline needs. It covers
// the RV32I base integer set:
//   - Register-register and register-immediate ALU operations
//   - Loads and stores (byte, halfword, word)
//   - Conditional branches, JAL and JALR
//   - LUI, AUIPC, FENCE, ECALL and EBREAK
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.Decode(insts.ADDI(1, 0, 42)) // addi ra, zero, 42
//	fmt.Printf("Op: %v, Rd: %d, Rs1: %d, Imm: %d\n", inst.Op, inst.Rd, inst.Rs1, inst.Imm)
package insts
