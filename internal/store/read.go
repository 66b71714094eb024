package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/agreement/internal/ir"
)

// ErrNotFound is returned when a requested action does not exist.
var ErrNotFound = errors.New("not found")

// ErrDigestMismatch is returned when a stored aggregate no longer matches
// the digest written with it.
var ErrDigestMismatch = errors.New("aggregate digest mismatch")

// ReadAggregate returns the action with its delay and challenge history.
// The aggregate digest is verified before returning.
func (s *Store) ReadAggregate(ctx context.Context, actionID string) (ir.Aggregate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, submitter, payload, state, delay_id, challenge_id, challenge_count, submitted_at, closed_at, digest
		FROM actions
		WHERE id = ?
	`, actionID)

	act, digest, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Aggregate{}, fmt.Errorf("action %s: %w", actionID, ErrNotFound)
	}
	if err != nil {
		return ir.Aggregate{}, err
	}
	return s.assemble(ctx, act, digest)
}

// ReadAll returns every aggregate ordered by submission time, then id.
func (s *Store) ReadAll(ctx context.Context) ([]ir.Aggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, submitter, payload, state, delay_id, challenge_id, challenge_count, submitted_at, closed_at, digest
		FROM actions
		ORDER BY submitted_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}

	type pending struct {
		action ir.Action
		digest string
	}
	var heads []pending
	for rows.Next() {
		act, digest, err := scanAction(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		heads = append(heads, pending{act, digest})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	rows.Close()

	// Assemble after closing rows: the pool holds a single connection.
	aggs := make([]ir.Aggregate, 0, len(heads))
	for _, h := range heads {
		agg, err := s.assemble(ctx, h.action, h.digest)
		if err != nil {
			return nil, err
		}
		aggs = append(aggs, agg)
	}
	return aggs, nil
}

// ReadEvents returns the event log ordered by seq. An empty actionID
// returns events for every action.
//
// Returns an empty slice (not nil) if no events exist.
func (s *Store) ReadEvents(ctx context.Context, actionID string) ([]ir.Event, error) {
	query := `
		SELECT id, seq, kind, action_id, delay_id, challenge_id, from_state, to_state, ruling, at
		FROM events
	`
	var args []any
	if actionID != "" {
		query += " WHERE action_id = ?"
		args = append(args, actionID)
	}
	query += " ORDER BY seq ASC, id COLLATE BINARY ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// LastSeq returns the highest event seq, or 0 for an empty log.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq, nil
}

// assemble loads the delay and challenges of act and verifies the digest.
func (s *Store) assemble(ctx context.Context, act ir.Action, digest string) (ir.Aggregate, error) {
	agg := ir.Aggregate{Action: act, Challenges: []ir.Challenge{}}

	if act.DelayID != "" {
		d, err := s.readDelay(ctx, act.DelayID)
		if err != nil {
			return ir.Aggregate{}, err
		}
		agg.Delay = &d
	}

	challenges, err := s.readChallenges(ctx, act.ID)
	if err != nil {
		return ir.Aggregate{}, err
	}
	agg.Challenges = challenges

	got, err := ir.AggregateDigest(agg)
	if err != nil {
		return ir.Aggregate{}, fmt.Errorf("action %s: %w", act.ID, err)
	}
	if got != digest {
		return ir.Aggregate{}, fmt.Errorf("action %s: %w", act.ID, ErrDigestMismatch)
	}
	return agg, nil
}

func (s *Store) readDelay(ctx context.Context, id string) (ir.Delay, error) {
	var r delayRow
	err := s.db.QueryRowContext(ctx, `
		SELECT id, action_id, state, scheduled_at, due_at, paused_at, ended_at
		FROM delays
		WHERE id = ?
	`, id).Scan(&r.ID, &r.ActionID, &r.State, &r.ScheduledAt, &r.DueAt, &r.PausedAt, &r.EndedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Delay{}, fmt.Errorf("delay %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.Delay{}, fmt.Errorf("scan delay: %w", err)
	}
	return r.toDelay()
}

func (s *Store) readChallenges(ctx context.Context, actionID string) ([]ir.Challenge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action_id, challenger, reason, state, ruling, opened_at, disputed_at, resolved_at
		FROM challenges
		WHERE action_id = ?
		ORDER BY ordinal ASC
	`, actionID)
	if err != nil {
		return nil, fmt.Errorf("query challenges: %w", err)
	}
	defer rows.Close()

	challenges := []ir.Challenge{}
	for rows.Next() {
		var r challengeRow
		if err := rows.Scan(
			&r.ID, &r.ActionID, &r.Challenger, &r.Reason, &r.State, &r.Ruling,
			&r.OpenedAt, &r.DisputedAt, &r.ResolvedAt,
		); err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		c, err := r.toChallenge()
		if err != nil {
			return nil, err
		}
		challenges = append(challenges, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate challenges: %w", err)
	}
	return challenges, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAction(sc scanner) (ir.Action, string, error) {
	var r actionRow
	var digest string
	err := sc.Scan(
		&r.ID, &r.Submitter, &r.Payload, &r.State, &r.DelayID, &r.ChallengeID,
		&r.ChallengeCount, &r.SubmittedAt, &r.ClosedAt, &digest,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Action{}, "", err
	}
	if err != nil {
		return ir.Action{}, "", fmt.Errorf("scan action: %w", err)
	}
	act, err := r.toAction()
	return act, digest, err
}

func scanEvent(sc scanner) (ir.Event, error) {
	var (
		ev     ir.Event
		kind   string
		ruling int
		at     int64
	)
	err := sc.Scan(
		&ev.ID, &ev.Seq, &kind, &ev.ActionID, &ev.DelayID, &ev.ChallengeID,
		&ev.From, &ev.To, &ruling, &at,
	)
	if err != nil {
		return ir.Event{}, fmt.Errorf("scan event: %w", err)
	}
	ev.Kind = ir.EventKind(kind)
	ev.Ruling = ir.Ruling(ruling)
	ev.At = ir.TimeFromNanos(at)
	return ev, nil
}
