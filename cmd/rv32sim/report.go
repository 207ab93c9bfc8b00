package main

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/sarchlab/rv32sim/emu"
	"github.com/sarchlab/rv32sim/insts"
	"github.com/sarchlab/rv32sim/timing/core"
)

const (
	ansiBold  = "\x1b[1m"
	ansiReset = "\x1b[0m"
)

// terminalWidth returns the width of w when it is a terminal.
func terminalWidth(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0, false
	}

	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 80, true
	}

	return width, true
}

func percent(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return 100.0 * float64(part) / float64(total)
}

// printTimingReport prints the statistics of a finished timing run.
func printTimingReport(w io.Writer, programPath string, c *core.Core) {
	stats := c.Stats()
	ic := c.ICacheStats()
	dc := c.DCacheStats()
	mc := c.MemCtrlStats()

	_, _ = fmt.Fprintf(w, "\n")
	_, _ = fmt.Fprintf(w, "Program: %s\n", programPath)
	if f := c.Fault(); f != nil {
		_, _ = fmt.Fprintf(w, "Fault: %v\n", f)
	} else {
		_, _ = fmt.Fprintf(w, "Exit code: %d\n", c.ExitCode())
	}
	_, _ = fmt.Fprintf(w, "Total Instructions: %d\n", stats.Instructions)
	_, _ = fmt.Fprintf(w, "Total Cycles: %d\n", stats.Cycles)
	_, _ = fmt.Fprintf(w, "CPI: %.2f\n", stats.CPI())
	_, _ = fmt.Fprintf(w, "Simulated Time: %.3e s\n", float64(c.SimulatedTime()))
	_, _ = fmt.Fprintf(w, "\n")

	total := stats.Cycles
	_, _ = fmt.Fprintf(w, "Breakdown:\n")
	_, _ = fmt.Fprintf(w, "  Retire:          %6d cycles (%5.1f%%)\n",
		stats.Instructions, percent(stats.Instructions, total))
	_, _ = fmt.Fprintf(w, "  Load-use stalls: %6d cycles (%5.1f%%)\n",
		stats.Stalls, percent(stats.Stalls, total))
	_, _ = fmt.Fprintf(w, "  Fetch stalls:    %6d cycles (%5.1f%%)\n",
		stats.FetchStalls, percent(stats.FetchStalls, total))
	_, _ = fmt.Fprintf(w, "  Memory stalls:   %6d cycles (%5.1f%%)\n",
		stats.MemStalls, percent(stats.MemStalls, total))
	_, _ = fmt.Fprintf(w, "  Flush bubbles:   %6d cycles (%5.1f%%)\n",
		2*stats.Flushes, percent(2*stats.Flushes, total))
	_, _ = fmt.Fprintf(w, "\n")

	_, _ = fmt.Fprintf(w, "Pipeline Events:\n")
	_, _ = fmt.Fprintf(w, "  Flushes:  %d\n", stats.Flushes)
	_, _ = fmt.Fprintf(w, "  Forwards: %d\n", stats.Forwards)
	_, _ = fmt.Fprintf(w, "  Bubbles:  %d\n", stats.Bubbles)
	_, _ = fmt.Fprintf(w, "\n")

	_, _ = fmt.Fprintf(w, "I-Cache: %d hits, %d misses, %d wait cycles\n",
		ic.Hits, ic.Misses, ic.WaitCycles)
	_, _ = fmt.Fprintf(w, "D-Cache: %d hits, %d misses, %d evictions, %d writebacks\n",
		dc.Hits, dc.Misses, dc.Evictions, dc.Writebacks)
	_, _ = fmt.Fprintf(w, "Memory:  %d fills, %d writebacks, %d busy cycles\n",
		mc.Fills, mc.Writebacks, mc.BusyCycles)
}

// printRegs dumps the register file. Terminals get an aligned multi-column
// layout with non-zero registers highlighted.
func printRegs(w io.Writer, pc uint32, regs [emu.NumRegs]uint32) {
	width, tty := terminalWidth(w)

	columns := 1
	if tty {
		columns = max(1, min(4, width/24))
	}

	_, _ = fmt.Fprintf(w, "pc   = 0x%08x\n", pc)
	for i, v := range regs {
		cell := fmt.Sprintf("%-4s = 0x%08x", insts.RegName(uint8(i)), v)
		if tty && v != 0 {
			cell = ansiBold + cell + ansiReset
		}

		sep := "\n"
		if (i+1)%columns != 0 {
			sep = "   "
		}
		_, _ = fmt.Fprint(w, cell+sep)
	}
	if len(regs)%columns != 0 {
		_, _ = fmt.Fprintln(w)
	}
}
