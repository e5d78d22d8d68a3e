package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stormycloud/shabench/internal/bench"
	"github.com/stormycloud/shabench/internal/hostinfo"
	"github.com/stormycloud/shabench/internal/stats"
	"github.com/stormycloud/shabench/internal/telemetry"
)

func newRunCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the benchmark loop (the default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd)
		},
	}
}

func (e *env) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg := e.cfg
	mainLog.Debugf("Host: %s", hostinfo.Detect())

	b, err := newBackend(cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	unit, err := stats.ParseUnit(cfg.Report.Unit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	metrics := telemetry.New(b.Name())

	loop, err := bench.New(b, loopConfig(cfg),
		bench.WithReporter(bench.NewLineReporter(out, unit, useColor(out))),
		bench.WithReporter(metrics),
		bench.WithObserver(metrics),
	)
	if err != nil {
		return err
	}

	if cfg.Metrics.Addr != "" {
		srvCtx, stop := context.WithCancel(ctx)
		defer stop()
		go func() {
			if err := metrics.Serve(srvCtx, cfg.Metrics.Addr); err != nil {
				mainLog.Errorf("Metrics server: %v", err)
			}
		}()
	}

	err = loop.Run(ctx)
	s := loop.Snapshot()
	mainLog.Infof("%s: %d iterations, %d hashes in %v (%s)",
		loop.Label(), s.Iterations, s.Hashes, s.Elapsed, unit.Format(s.Rate))
	if err != nil {
		return fmt.Errorf("%s benchmark: %w", loop.Label(), err)
	}
	return nil
}
