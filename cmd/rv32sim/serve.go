package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sarchlab/rv32sim/loader"
	"github.com/sarchlab/rv32sim/monitoring"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [program]",
		Short: "Load a program and inspect it over HTTP.",
		Long: `Load a program (or the built-in demo) onto a core and start ` +
			`the monitoring server. The core only advances through the ` +
			`/api/step and /api/run endpoints.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runServe,
	}

	addSimFlags(cmd)
	cmd.Flags().Int("port", 0, "port to listen on (0 picks a free port)")
	cmd.Flags().Bool("open", false, "open the monitor in a browser")
	cmd.Flags().Duration("for", 0, "stop serving after this long (0 = until interrupted)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := simConfig(cmd)
	if err != nil {
		return err
	}

	var prog *loader.Program
	if len(args) == 1 {
		prog, err = loader.LoadFile(args[0], cfg.BaseAddress)
		if err != nil {
			return err
		}
	} else {
		prog = demoProgram(cfg.BaseAddress)
	}

	c, err := newLoadedCore(cfg, prog)
	if err != nil {
		return err
	}

	port, _ := cmd.Flags().GetInt("port")
	monitor := monitoring.NewMonitor(c).WithPortNumber(port)

	url := monitor.StartServer()
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Serving %s\n", url)

	if open, _ := cmd.Flags().GetBool("open"); open {
		if err := monitor.OpenInBrowser(url); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "failed to open browser: %v\n", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if d, _ := cmd.Flags().GetDuration("for"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	<-ctx.Done()

	err = monitor.StopServer()
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stopped after %d cycles\n", c.Stats().Cycles)

	return err
}
