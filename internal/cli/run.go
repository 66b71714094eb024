package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/agreement/internal/engine"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Once     bool
	Interval time.Duration
	Workers  int
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the delay scheduler",
		Long: `Tick every pending delay on a fixed interval until interrupted.

Each tick reloads the database, so actions submitted or challenged by other
agreement commands are picked up on the next tick. With --once a single tick
runs and the command exits.

Examples:
  agreement run --db ./agreement.db
  agreement run --interval 5s --workers 8
  agreement run --once --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduler(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Once, "once", false, "tick once and exit")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "tick interval (default from config)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent ticks (default from config)")

	return cmd
}

// TickReport is the JSON result of a single tick.
type TickReport struct {
	At       string `json:"at"`
	Pending  int    `json:"pending"`
	Executed int    `json:"executed"`
}

func runScheduler(opts *RunOptions, cmd *cobra.Command) error {
	interval := opts.Interval
	if interval <= 0 {
		interval = opts.Config.TickInterval
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = opts.Config.Workers
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	if opts.Once {
		report, err := tickOnce(parentCtx, opts, cmd, workers)
		if err != nil {
			return err
		}
		out := newFormatter(opts.RootOptions, cmd)
		if out.Format == "json" {
			return out.Success(report)
		}
		fmt.Fprintf(out.Writer, "Ticked %d pending delay(s), %d executed\n", report.Pending, report.Executed)
		return nil
	}

	if interval <= 0 {
		return NewExitError(ExitCommandError, "tick interval must be positive")
	}

	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	slog.Info("scheduler starting", "db", opts.Database, "interval", interval, "workers", workers)
	fmt.Fprintln(cmd.OutOrStdout(), "Scheduler started. Ticking pending delays...")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	err := engine.RunEvery(ctx, interval, slog.Default(), func(ctx context.Context) (int, error) {
		report, err := tickOnce(ctx, opts, cmd, workers)
		return report.Executed, err
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "scheduler failed", err)
	}
	return nil
}

// tickOnce restores a fresh session and ticks its pending delays.
func tickOnce(ctx context.Context, opts *RunOptions, cmd *cobra.Command, workers int) (TickReport, error) {
	s, err := openSession(ctx, opts.RootOptions, cmd)
	if err != nil {
		return TickReport{}, err
	}
	defer s.Close()

	pending := len(s.manager.PendingDelays())
	now := s.manager.Now()
	sched := engine.NewScheduler(s.manager, opts.Config.TickInterval, workers, slog.Default())
	n, err := sched.TickAll(ctx)
	if err != nil {
		return TickReport{}, WrapExitError(ExitFailure, "tick failed", err)
	}
	return TickReport{At: formatTime(now), Pending: pending, Executed: n}, nil
}
