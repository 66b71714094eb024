package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/agreement/internal/engine"
	"github.com/roach88/agreement/internal/ir"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	Submitter string
	Payload   string
	Delay     time.Duration
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit an agreement action",
		Long: `Submit an agreement action. A positive delay attaches an execution delay;
the action closes when the delay executes unless it is challenged first.

Without --delay the config default_delay applies.

Examples:
  agreement submit --submitter alice --payload "transfer 10 to treasury"
  agreement submit --submitter alice --payload "raise quorum" --delay 72h`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("delay") {
				opts.Delay = opts.Config.DefaultDelay
			}
			return withSession(opts.RootOptions, cmd, func(ctx context.Context, s *session) error {
				act, err := s.manager.Submit(ctx, engine.ActionData{
					Submitter: opts.Submitter,
					Payload:   opts.Payload,
					Delay:     opts.Delay,
				})
				if err != nil {
					return s.out.EngineError("submit", err)
				}
				return s.reportAggregate(act.ID)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Submitter, "submitter", "", "identity of the submitter (required)")
	_ = cmd.MarkFlagRequired("submitter")
	cmd.Flags().StringVar(&opts.Payload, "payload", "", "action payload (required)")
	_ = cmd.MarkFlagRequired("payload")
	cmd.Flags().DurationVar(&opts.Delay, "delay", 0, "execution delay (default from config)")

	return cmd
}

// ChallengeOptions holds flags for the challenge command.
type ChallengeOptions struct {
	*RootOptions
	Challenger string
	Reason     string
}

// NewChallengeCommand creates the challenge command.
func NewChallengeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ChallengeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "challenge <action-id>",
		Short: "Challenge a submitted action",
		Long: `Raise a challenge against a SUBMITTED action. The action moves to
CHALLENGED and a scheduled delay is paused until the challenge is resolved.

Example:
  agreement challenge 0190c7e2-... --challenger bob --reason "exceeds mandate"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts.RootOptions, cmd, func(ctx context.Context, s *session) error {
				c, err := s.manager.Challenge(ctx, args[0], engine.ChallengeData{
					Challenger: opts.Challenger,
					Reason:     opts.Reason,
				})
				if err != nil {
					return s.out.EngineError("challenge", err)
				}
				return s.reportAggregate(c.ActionID)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Challenger, "challenger", "", "identity of the challenger (required)")
	_ = cmd.MarkFlagRequired("challenger")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "why the action is challenged")

	return cmd
}

// challengeOp runs a transition addressed by challenge ID.
type challengeOp func(ctx context.Context, m *engine.Manager, challengeID string) (ir.Challenge, error)

func newChallengeOpCommand(rootOpts *RootOptions, use, short, long string, op challengeOp) *cobra.Command {
	name := strings.Fields(use)[0]
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Long:          long,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				c, err := op(ctx, s.manager, args[0])
				if err != nil {
					return s.out.EngineError(name, err)
				}
				return s.reportAggregate(c.ActionID)
			})
		},
	}
}

// NewSettleCommand creates the settle command.
func NewSettleCommand(rootOpts *RootOptions) *cobra.Command {
	return newChallengeOpCommand(rootOpts,
		"settle <challenge-id>",
		"Settle a waiting challenge without arbitration",
		`Settle a WAITING challenge. Run resolve afterwards to return the action
to SUBMITTED.`,
		func(ctx context.Context, m *engine.Manager, id string) (ir.Challenge, error) {
			return m.Settle(ctx, id)
		})
}

// NewDisputeCommand creates the dispute command.
func NewDisputeCommand(rootOpts *RootOptions) *cobra.Command {
	return newChallengeOpCommand(rootOpts,
		"dispute <challenge-id>",
		"Escalate a waiting challenge to arbitration",
		`Escalate a WAITING challenge to DISPUTED and request a ruling from the
arbitrator. The ruling is applied later with the rule command.`,
		func(ctx context.Context, m *engine.Manager, id string) (ir.Challenge, error) {
			return m.Dispute(ctx, id)
		})
}

// NewArbitrateCommand creates the arbitrate command.
func NewArbitrateCommand(rootOpts *RootOptions) *cobra.Command {
	return newChallengeOpCommand(rootOpts,
		"arbitrate <challenge-id>",
		"Re-send the ruling request for a disputed challenge",
		`Re-send the ruling request for a DISPUTED challenge that has no ruling yet.
Nothing is recorded; the engine never retries on its own.`,
		func(ctx context.Context, m *engine.Manager, id string) (ir.Challenge, error) {
			if err := m.RequestArbitration(ctx, id); err != nil {
				return ir.Challenge{}, err
			}
			return m.ChallengeRecord(id)
		})
}

// NewRuleCommand creates the rule command.
func NewRuleCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rule <challenge-id> <ruling>",
		Short: "Apply an arbitration ruling to a disputed challenge",
		Long: `Apply the arbitrator's ruling to a DISPUTED challenge.

Rulings:
  IN_FAVOR_OF_SUBMITTER   challenge REJECTED
  IN_FAVOR_OF_CHALLENGER  challenge ACCEPTED
  REFUSED                 challenge VOIDED

Rulings may be given by name (case-insensitive) or integer code.

Example:
  agreement rule 0190c7e3-... in_favor_of_submitter`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ruling, err := parseRuling(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid ruling", err)
			}
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				c, err := s.manager.ApplyRuling(ctx, args[0], ruling)
				if err != nil {
					return s.out.EngineError("rule", err)
				}
				return s.reportAggregate(c.ActionID)
			})
		},
	}
}

// parseRuling accepts a ruling name in any case or an integer code.
// Undefined codes are passed through so the engine reports them.
func parseRuling(s string) (ir.Ruling, error) {
	if r, err := ir.ParseRuling(strings.ToUpper(s)); err == nil {
		return r, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("unknown ruling %q", s)
	}
	return ir.Ruling(n), nil
}

// actionOp runs a transition addressed by action ID.
type actionOp func(ctx context.Context, m *engine.Manager, actionID string) (ir.Action, error)

func newActionOpCommand(rootOpts *RootOptions, use, short, long string, op actionOp) *cobra.Command {
	name := strings.Fields(use)[0]
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Long:          long,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				act, err := op(ctx, s.manager, args[0])
				if err != nil {
					return s.out.EngineError(name, err)
				}
				return s.reportAggregate(act.ID)
			})
		},
	}
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	return newActionOpCommand(rootOpts,
		"resolve <action-id>",
		"Fold a finished challenge back into its action",
		`Apply the outcome of the action's finished challenge. SETTLED, REJECTED
and VOIDED return the action to SUBMITTED and resume its delay. ACCEPTED
stops the delay and closes the action.`,
		func(ctx context.Context, m *engine.Manager, id string) (ir.Action, error) {
			return m.ResolveChallenge(ctx, id)
		})
}

// NewCloseCommand creates the close command.
func NewCloseCommand(rootOpts *RootOptions) *cobra.Command {
	return newActionOpCommand(rootOpts,
		"close <action-id>",
		"Close a submitted action",
		`Close a SUBMITTED action that has no delay or whose delay has executed.`,
		func(ctx context.Context, m *engine.Manager, id string) (ir.Action, error) {
			return m.Close(ctx, id)
		})
}

// reportAggregate prints the current state of an action.
func (s *session) reportAggregate(actionID string) error {
	agg, err := s.manager.Aggregate(actionID)
	if err != nil {
		return s.out.EngineError("show", err)
	}
	now := s.manager.Now()
	if s.out.Format == "json" {
		return s.out.Success(aggregateView(agg, now))
	}
	writeAggregate(s.out.Writer, agg, now, s.out.Verbose)
	return nil
}
