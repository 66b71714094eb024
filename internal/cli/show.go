package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/agreement/internal/ir"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <action-id>",
		Short:         "Show an action with its delay and challenges",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(_ context.Context, s *session) error {
				return s.reportAggregate(args[0])
			})
		},
	}
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	State string
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actions",
		Long: `List actions in submission order.

Examples:
  agreement list
  agreement list --state CHALLENGED --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter *ir.ActionState
			if opts.State != "" {
				st, err := ir.ParseActionState(strings.ToUpper(opts.State))
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --state", err)
				}
				filter = &st
			}
			return withSession(opts.RootOptions, cmd, func(_ context.Context, s *session) error {
				now := s.manager.Now()
				views := []AggregateView{}
				var aggs []ir.Aggregate
				for _, agg := range s.manager.Aggregates() {
					if filter != nil && agg.Action.State != *filter {
						continue
					}
					aggs = append(aggs, agg)
					views = append(views, aggregateView(agg, now))
				}

				if s.out.Format == "json" {
					return s.out.Success(views)
				}
				if len(aggs) == 0 {
					fmt.Fprintln(s.out.Writer, "No actions found.")
					return nil
				}
				for _, agg := range aggs {
					writeAggregate(s.out.Writer, agg, now, s.out.Verbose)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.State, "state", "", "only actions in this state (SUBMITTED|CHALLENGED|CLOSED)")
	return cmd
}
