package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/agreement/internal/engine"
	"github.com/roach88/agreement/internal/ir"
)

// NewDelayCommand creates the delay command group.
func NewDelayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delay",
		Short: "Manage execution delays",
		Long: `Manage the execution delay attached to an action.

A delay is SCHEDULED until it is due, can be PAUSED and resumed with its
remaining wait preserved, FAST_FORWARDED to be due immediately, and ends
EXECUTED (closing the action) or STOPPED.`,
	}

	cmd.AddCommand(newDelayScheduleCommand(rootOpts))
	cmd.AddCommand(newDelayOpCommand(rootOpts, "pause", "Pause a scheduled delay",
		func(ctx context.Context, m *engine.Manager, id string) (ir.Delay, error) {
			return m.PauseDelay(ctx, id)
		}))
	cmd.AddCommand(newDelayOpCommand(rootOpts, "resume", "Resume a paused delay",
		func(ctx context.Context, m *engine.Manager, id string) (ir.Delay, error) {
			return m.ResumeDelay(ctx, id)
		}))
	cmd.AddCommand(newDelayOpCommand(rootOpts, "fast-forward", "Make a delay due now",
		func(ctx context.Context, m *engine.Manager, id string) (ir.Delay, error) {
			return m.FastForwardDelay(ctx, id)
		}))
	cmd.AddCommand(newDelayOpCommand(rootOpts, "stop", "Stop a delay without executing it",
		func(ctx context.Context, m *engine.Manager, id string) (ir.Delay, error) {
			return m.StopDelay(ctx, id)
		}))
	cmd.AddCommand(newDelayTickCommand(rootOpts))

	return cmd
}

type delayOp func(ctx context.Context, m *engine.Manager, delayID string) (ir.Delay, error)

func newDelayOpCommand(rootOpts *RootOptions, name, short string, op delayOp) *cobra.Command {
	return &cobra.Command{
		Use:           name + " <delay-id>",
		Short:         short,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				d, err := op(ctx, s.manager, args[0])
				if err != nil {
					return s.out.EngineError("delay "+name, err)
				}
				return s.reportAggregate(d.ActionID)
			})
		},
	}
}

func newDelayScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <action-id> <duration>",
		Short: "Attach a delay to an action that has none",
		Example: `  agreement delay schedule 0190c7e2-... 48h
  agreement delay schedule 0190c7e2-... 90s`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := time.ParseDuration(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid duration", err)
			}
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				if _, err := s.manager.ScheduleDelay(ctx, args[0], d); err != nil {
					return s.out.EngineError("delay schedule", err)
				}
				return s.reportAggregate(args[0])
			})
		},
	}
}

func newDelayTickCommand(rootOpts *RootOptions) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "tick <delay-id>",
		Short: "Execute a delay if it is due",
		Long: `Evaluate a delay and execute it if it is due. A delay that is not due, or
whose action is challenged, is left as it is.

--at evaluates the delay at an RFC 3339 time instead of now.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var now time.Time
			if at != "" {
				t, err := time.Parse(time.RFC3339Nano, at)
				if err != nil {
					return WrapExitError(ExitCommandError, fmt.Sprintf("invalid --at %q", at), err)
				}
				now = t
			}
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				d, err := s.manager.TickDelay(ctx, args[0], now)
				if err != nil {
					return s.out.EngineError("delay tick", err)
				}
				return s.reportAggregate(d.ActionID)
			})
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "evaluation time (RFC 3339, default now)")
	return cmd
}
