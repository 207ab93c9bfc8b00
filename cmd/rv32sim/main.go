// Package main provides the rv32sim command-line tool, a cycle-accurate
// simulator for a 5-stage pipelined RV32I core with L1 caches.
package main

func main() {
	Execute()
}
