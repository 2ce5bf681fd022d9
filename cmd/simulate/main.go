package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/simulate"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/logger"
)

// defaultRunTimeout bounds a whole simulation.
const defaultRunTimeout = 30 * time.Minute

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := simulate.DefaultConfig()
	var (
		logFormat  string
		logLevel   string
		runTimeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive a running report service with synthetic measurement sessions",
		Long: `simulate opens quality gates on a running service, streams synthetic
quality samples until each gate fires, seals the sessions with generated
summaries, submits analysis jobs and follows them to a terminal stage.

Examples:
  # Ten sessions against a local service
  simulate

  # A heavier run with noisy signal and polling instead of event streams
  simulate --sessions 200 --workers 32 --noisy 0.25 --follow-events=false`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.InitWithFormat(logFormat); err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			if err := logger.SetLevelString(logLevel); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, runTimeout)
			defer cancel()

			log := logger.Named("simulate")
			runner, err := simulate.NewRunner(cfg, log)
			if err != nil {
				return err
			}
			stats, _, err := runner.Run(ctx)
			stats.Log(ctx, log)
			if err != nil {
				return fmt.Errorf("simulation failed: %w", err)
			}
			if stats.Errors > 0 {
				return fmt.Errorf("simulation finished with %d session errors", stats.Errors)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "base URL of the service")
	f.IntVar(&cfg.Sessions, "sessions", cfg.Sessions, "number of sessions to simulate")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "sessions driven concurrently")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	f.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "delay between sample batches")
	f.IntVar(&cfg.SamplesPerTick, "samples", cfg.SamplesPerTick, "samples per channel in each batch")
	f.DurationVar(&cfg.GateTimeout, "gate-timeout", cfg.GateTimeout, "give up on a gate that never fires")
	f.DurationVar(&cfg.JobTimeout, "job-timeout", cfg.JobTimeout, "give up on a job that never ends")
	f.Float64Var(&cfg.NoisyRatio, "noisy", cfg.NoisyRatio, "fraction of sessions fed poor signal")
	f.StringVar(&cfg.OwnerUserID, "owner", "", "owner user ID for every session (default: one per session)")
	f.StringVar(&cfg.OrganizationID, "org", "", "organization charged for the jobs")
	f.StringVar(&cfg.EngineID, "engine", "", "engine to request (default: service choice)")
	f.IntVar(&cfg.Budget, "budget", cfg.Budget, "credit budget per job (0: cheapest engine)")
	f.BoolVar(&cfg.FollowEvents, "follow-events", cfg.FollowEvents, "follow jobs over server-sent events")
	f.StringVar(&cfg.OutputFile, "output", "", "write per-session results to this JSON file")
	f.Uint64Var(&cfg.Seed, "seed", 0, "random seed (0: time based)")
	f.BoolVar(&cfg.Verbose, "verbose", false, "log every session")
	f.StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	f.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	f.DurationVar(&runTimeout, "run-timeout", defaultRunTimeout, "bound on the whole simulation")
	return cmd
}
