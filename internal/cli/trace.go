package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/agreement/internal/ir"
	"github.com/roach88/agreement/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Kind string // optional kind prefix filter, e.g. "challenge." or "delay.paused"
}

// TraceEvent is one event of the timeline.
type TraceEvent struct {
	Seq       int64  `json:"seq"`
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Action    string `json:"action"`
	Delay     string `json:"delay,omitempty"`
	Challenge string `json:"challenge,omitempty"`
	From      string `json:"from"`
	To        string `json:"to"`
	Ruling    string `json:"ruling,omitempty"`
	At        string `json:"at"`
}

// TraceStats summarizes a timeline.
type TraceStats struct {
	TotalEvents int            `json:"total_events"`
	Actions     int            `json:"actions"`
	ByKind      map[string]int `json:"by_kind"`
	FirstSeq    int64          `json:"first_seq"`
	LastSeq     int64          `json:"last_seq"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Action   string       `json:"action,omitempty"`
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [action-id]",
		Short: "Show the event timeline",
		Long: `Show committed events in seq order.

With an action ID only that action's events are shown. Events are the
transitions of the action, its delay and its challenges.

Examples:
  agreement trace
  agreement trace 0191e7a2-... --format json
  agreement trace --kind challenge.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			action := ""
			if len(args) == 1 {
				action = args[0]
			}
			return runTrace(opts, action, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only events whose kind starts with this prefix")

	return cmd
}

func runTrace(opts *TraceOptions, action string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	out := newFormatter(opts.RootOptions, cmd)

	if action != "" {
		if _, err := st.ReadAggregate(ctx, action); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return out.Fail(ExitCommandError, "E_NOT_FOUND", fmt.Sprintf("failed to read action: %q not found", action), nil)
			}
			return WrapExitError(ExitCommandError, "failed to read action", err)
		}
	}

	events, err := st.ReadEvents(ctx, action)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	result := buildTrace(action, events, opts.Kind)
	if out.Format == "json" {
		return out.Success(result)
	}
	writeTrace(out.Writer, result, out.Verbose)
	return nil
}

// buildTrace converts events to a timeline, keeping those whose kind has
// the given prefix.
func buildTrace(action string, events []ir.Event, kind string) TraceResult {
	result := TraceResult{
		Action:   action,
		Timeline: []TraceEvent{},
		Stats:    TraceStats{ByKind: map[string]int{}},
	}
	actions := map[string]bool{}
	for _, ev := range events {
		if kind != "" && !strings.HasPrefix(string(ev.Kind), kind) {
			continue
		}
		te := TraceEvent{
			Seq:       ev.Seq,
			ID:        ev.ID,
			Kind:      string(ev.Kind),
			Action:    ev.ActionID,
			Delay:     ev.DelayID,
			Challenge: ev.ChallengeID,
			At:        formatTime(ev.At),
		}
		te.From, te.To = ev.StateNames()
		if ev.Kind == ir.EventChallengeDisputed || ev.Kind == ir.EventChallengeRuled {
			te.Ruling = ev.Ruling.String()
		}
		result.Timeline = append(result.Timeline, te)

		actions[ev.ActionID] = true
		result.Stats.ByKind[te.Kind]++
		if result.Stats.FirstSeq == 0 {
			result.Stats.FirstSeq = ev.Seq
		}
		result.Stats.LastSeq = ev.Seq
	}
	result.Stats.TotalEvents = len(result.Timeline)
	result.Stats.Actions = len(actions)
	return result
}

func writeTrace(w io.Writer, result TraceResult, verbose bool) {
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "No events found.")
		return
	}
	if result.Action != "" {
		fmt.Fprintf(w, "Trace for action %s\n\n", result.Action)
	}
	for _, ev := range result.Timeline {
		line := fmt.Sprintf("#%-4d %-22s %s -> %s", ev.Seq, ev.Kind, ev.From, ev.To)
		if ev.Ruling != "" {
			line += " ruling=" + ev.Ruling
		}
		fmt.Fprintln(w, line)
		if verbose {
			fmt.Fprintf(w, "      at=%s action=%s", ev.At, ev.Action)
			if ev.Delay != "" {
				fmt.Fprintf(w, " delay=%s", ev.Delay)
			}
			if ev.Challenge != "" {
				fmt.Fprintf(w, " challenge=%s", ev.Challenge)
			}
			fmt.Fprintf(w, " id=%s\n", ev.ID)
		}
	}
	fmt.Fprintf(w, "\n%d event(s) across %d action(s), seq %d..%d\n",
		result.Stats.TotalEvents, result.Stats.Actions, result.Stats.FirstSeq, result.Stats.LastSeq)
}
