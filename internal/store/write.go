package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/agreement/internal/ir"
)

// Record persists the committed aggregate and the events of the transition
// that produced it in a single transaction. Either everything is written or
// nothing is.
//
// Aggregate rows are upserted. Events use ON CONFLICT(id) DO NOTHING, so
// recording the same transition twice is a no-op for the log.
func (s *Store) Record(ctx context.Context, agg ir.Aggregate, events []ir.Event) error {
	digest, err := ir.AggregateDigest(agg)
	if err != nil {
		return fmt.Errorf("record: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record: begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := writeAction(ctx, tx, agg.Action, digest); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	if agg.Delay != nil {
		if err := writeDelay(ctx, tx, *agg.Delay); err != nil {
			return fmt.Errorf("record: %w", err)
		}
	}
	for i, c := range agg.Challenges {
		if err := writeChallenge(ctx, tx, c, i); err != nil {
			return fmt.Errorf("record: %w", err)
		}
	}
	for _, ev := range events {
		if err := writeEvent(ctx, tx, ev); err != nil {
			return fmt.Errorf("record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record: commit: %w", err)
	}
	return nil
}

func writeAction(ctx context.Context, tx *sql.Tx, a ir.Action, digest string) error {
	r := actionToRow(a)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO actions
		(id, submitter, payload, state, delay_id, challenge_id, challenge_count, submitted_at, closed_at, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			delay_id = excluded.delay_id,
			challenge_id = excluded.challenge_id,
			challenge_count = excluded.challenge_count,
			closed_at = excluded.closed_at,
			digest = excluded.digest
	`,
		r.ID,
		r.Submitter,
		r.Payload,
		r.State,
		r.DelayID,
		r.ChallengeID,
		r.ChallengeCount,
		r.SubmittedAt,
		r.ClosedAt,
		digest,
	)
	if err != nil {
		return fmt.Errorf("write action %s: %w", a.ID, err)
	}
	return nil
}

func writeDelay(ctx context.Context, tx *sql.Tx, d ir.Delay) error {
	r := delayToRow(d)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO delays
		(id, action_id, state, scheduled_at, due_at, paused_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			due_at = excluded.due_at,
			paused_at = excluded.paused_at,
			ended_at = excluded.ended_at
	`,
		r.ID,
		r.ActionID,
		r.State,
		r.ScheduledAt,
		r.DueAt,
		r.PausedAt,
		r.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("write delay %s: %w", d.ID, err)
	}
	return nil
}

func writeChallenge(ctx context.Context, tx *sql.Tx, c ir.Challenge, ordinal int) error {
	r := challengeToRow(c)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO challenges
		(id, action_id, ordinal, challenger, reason, state, ruling, opened_at, disputed_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			ruling = excluded.ruling,
			disputed_at = excluded.disputed_at,
			resolved_at = excluded.resolved_at
	`,
		r.ID,
		r.ActionID,
		ordinal,
		r.Challenger,
		r.Reason,
		r.State,
		r.Ruling,
		r.OpenedAt,
		r.DisputedAt,
		r.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("write challenge %s: %w", c.ID, err)
	}
	return nil
}

func writeEvent(ctx context.Context, tx *sql.Tx, ev ir.Event) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO events
		(id, seq, kind, action_id, delay_id, challenge_id, from_state, to_state, ruling, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		ev.ID,
		ev.Seq,
		string(ev.Kind),
		ev.ActionID,
		ev.DelayID,
		ev.ChallengeID,
		ev.From,
		ev.To,
		int(ev.Ruling),
		ir.TimeToNanos(ev.At),
	)
	if err != nil {
		return fmt.Errorf("write event seq=%d: %w", ev.Seq, err)
	}
	return nil
}
