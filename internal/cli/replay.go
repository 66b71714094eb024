package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/agreement/internal/engine"
	"github.com/roach88/agreement/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
}

// ReplayResult holds the outcome of a log verification.
type ReplayResult struct {
	Events   int      `json:"events"`
	Actions  int      `json:"actions"`
	LastSeq  int64    `json:"last_seq"`
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Verify the event log against stored state",
		Long: `Re-read the event log and check it against the stored records.

The check covers:
  - seq strictly increases and every event ID matches its content
  - each event starts from the state the previous event for that record ended at
  - every stored aggregate matches its digest and restores into a fresh engine
  - every stored state equals the last state its events reached

Exit codes:
  0 - Log and records are consistent
  1 - Inconsistency detected
  2 - Command error (database not found, etc.)

Examples:
  agreement replay --db ./agreement.db
  agreement replay --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	result := verifyStore(ctx, st)

	out := newFormatter(opts.RootOptions, cmd)
	out.VerboseLog("Verifying %s", opts.Database)
	if !result.Valid {
		if out.Format != "json" {
			writeReplay(out.Writer, result)
		}
		return out.Fail(ExitFailure, "E_LOG_CORRUPT",
			fmt.Sprintf("event log verification failed: %d problem(s)", len(result.Problems)), result)
	}
	if out.Format == "json" {
		return out.Success(result)
	}
	writeReplay(out.Writer, result)
	return nil
}

// verifyStore runs every check and collects the failures.
func verifyStore(ctx context.Context, st *store.Store) ReplayResult {
	result := ReplayResult{Problems: []string{}}

	n, err := st.VerifyLog(ctx)
	if err != nil {
		result.Problems = append(result.Problems, err.Error())
	}
	result.Events = n

	snap, err := st.Load(ctx)
	if err != nil {
		result.Problems = append(result.Problems, err.Error())
		result.Valid = false
		return result
	}
	result.Actions = len(snap.Aggregates)
	result.LastSeq = snap.LastSeq

	m := engine.NewManager(engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err := m.Restore(snap.Aggregates, snap.LastSeq); err != nil {
		result.Problems = append(result.Problems, err.Error())
	}

	events, err := st.ReadEvents(ctx, "")
	if err != nil {
		result.Problems = append(result.Problems, err.Error())
	} else {
		result.Problems = append(result.Problems, store.CheckProjection(snap.Aggregates, events)...)
	}

	result.Valid = len(result.Problems) == 0
	return result
}

func writeReplay(w io.Writer, result ReplayResult) {
	fmt.Fprintf(w, "Checked %d event(s) across %d action(s), last seq %d\n", result.Events, result.Actions, result.LastSeq)
	if result.Valid {
		fmt.Fprintln(w, "✓ Event log is consistent")
		return
	}
	fmt.Fprintf(w, "✗ %d problem(s):\n", len(result.Problems))
	for _, p := range result.Problems {
		fmt.Fprintf(w, "  %s\n", p)
	}
}
