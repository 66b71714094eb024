package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/agreement/internal/engine"
	"github.com/roach88/agreement/internal/store"
)

// session is an open database with a manager restored from it. Every
// state-changing command runs inside one.
type session struct {
	store   *store.Store
	manager *engine.Manager
	out     *OutputFormatter
}

// openSession opens the database, loads every aggregate and restores a
// manager that records into the same store.
func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*session, error) {
	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	snap, err := st.Load(ctx)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load database", err)
	}

	clock := opts.Clock
	if clock == nil {
		clock = engine.WallClock{}
	}
	ids := opts.IDs
	if ids == nil {
		ids = engine.UUIDv7Generator{}
	}

	m := engine.NewManager(
		engine.WithClock(clock),
		engine.WithIDGenerator(ids),
		engine.WithRecorder(st),
		engine.WithArbitrator(logArbitrator{}),
		engine.WithLogger(slog.Default()),
	)
	if err := m.Restore(snap.Aggregates, snap.LastSeq); err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to restore state", err)
	}
	slog.Debug("session opened", "db", opts.Database, "actions", len(snap.Aggregates), "last_seq", snap.LastSeq)
	out := newFormatter(opts, cmd)
	out.VerboseLog("Restored %d action(s) from %s (last seq %d)", len(snap.Aggregates), opts.Database, snap.LastSeq)

	return &session{
		store:   st,
		manager: m,
		out:     out,
	}, nil
}

// Close closes the database.
func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// withSession opens a session, runs fn and closes the session.
func withSession(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

// logArbitrator logs ruling requests. Rulings arrive later through the
// rule command.
type logArbitrator struct{}

func (logArbitrator) RequestRuling(_ context.Context, challengeID string, d engine.DisputeContext) error {
	slog.Info("ruling requested",
		"challenge", challengeID,
		"action", d.ActionID,
		"submitter", d.Submitter,
		"challenger", d.Challenger,
		"reason", d.Reason,
	)
	return nil
}
