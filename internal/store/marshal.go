package store

import (
	"fmt"

	"github.com/roach88/agreement/internal/ir"
)

// Flat records as stored. Enumerations are their integer wire codes and
// timestamps are Unix nanoseconds with 0 for unset.

type actionRow struct {
	ID             string
	Submitter      string
	Payload        string
	State          int
	DelayID        string
	ChallengeID    string
	ChallengeCount int
	SubmittedAt    int64
	ClosedAt       int64
}

type delayRow struct {
	ID          string
	ActionID    string
	State       int
	ScheduledAt int64
	DueAt       int64
	PausedAt    int64
	EndedAt     int64
}

type challengeRow struct {
	ID         string
	ActionID   string
	Challenger string
	Reason     string
	State      int
	Ruling     int
	OpenedAt   int64
	DisputedAt int64
	ResolvedAt int64
}

func actionToRow(a ir.Action) actionRow {
	return actionRow{
		ID:             a.ID,
		Submitter:      a.Submitter,
		Payload:        a.Payload,
		State:          int(a.State),
		DelayID:        a.DelayID,
		ChallengeID:    a.ChallengeID,
		ChallengeCount: a.ChallengeCount,
		SubmittedAt:    ir.TimeToNanos(a.SubmittedAt),
		ClosedAt:       ir.TimeToNanos(a.ClosedAt),
	}
}

// toAction rejects undefined state codes rather than guessing.
func (r actionRow) toAction() (ir.Action, error) {
	state := ir.ActionState(r.State)
	if !state.Valid() {
		return ir.Action{}, fmt.Errorf("action %s: invalid state code %d", r.ID, r.State)
	}
	return ir.Action{
		ID:             r.ID,
		Submitter:      r.Submitter,
		Payload:        r.Payload,
		State:          state,
		DelayID:        r.DelayID,
		ChallengeID:    r.ChallengeID,
		ChallengeCount: r.ChallengeCount,
		SubmittedAt:    ir.TimeFromNanos(r.SubmittedAt),
		ClosedAt:       ir.TimeFromNanos(r.ClosedAt),
	}, nil
}

func delayToRow(d ir.Delay) delayRow {
	return delayRow{
		ID:          d.ID,
		ActionID:    d.ActionID,
		State:       int(d.State),
		ScheduledAt: ir.TimeToNanos(d.ScheduledAt),
		DueAt:       ir.TimeToNanos(d.DueAt),
		PausedAt:    ir.TimeToNanos(d.PausedAt),
		EndedAt:     ir.TimeToNanos(d.EndedAt),
	}
}

func (r delayRow) toDelay() (ir.Delay, error) {
	state := ir.DelayState(r.State)
	if !state.Valid() {
		return ir.Delay{}, fmt.Errorf("delay %s: invalid state code %d", r.ID, r.State)
	}
	return ir.Delay{
		ID:          r.ID,
		ActionID:    r.ActionID,
		State:       state,
		ScheduledAt: ir.TimeFromNanos(r.ScheduledAt),
		DueAt:       ir.TimeFromNanos(r.DueAt),
		PausedAt:    ir.TimeFromNanos(r.PausedAt),
		EndedAt:     ir.TimeFromNanos(r.EndedAt),
	}, nil
}

func challengeToRow(c ir.Challenge) challengeRow {
	return challengeRow{
		ID:         c.ID,
		ActionID:   c.ActionID,
		Challenger: c.Challenger,
		Reason:     c.Reason,
		State:      int(c.State),
		Ruling:     int(c.Ruling),
		OpenedAt:   ir.TimeToNanos(c.OpenedAt),
		DisputedAt: ir.TimeToNanos(c.DisputedAt),
		ResolvedAt: ir.TimeToNanos(c.ResolvedAt),
	}
}

func (r challengeRow) toChallenge() (ir.Challenge, error) {
	state := ir.ChallengeState(r.State)
	if !state.Valid() {
		return ir.Challenge{}, fmt.Errorf("challenge %s: invalid state code %d", r.ID, r.State)
	}
	ruling := ir.Ruling(r.Ruling)
	if !ruling.Valid() {
		return ir.Challenge{}, fmt.Errorf("challenge %s: invalid ruling code %d", r.ID, r.Ruling)
	}
	return ir.Challenge{
		ID:         r.ID,
		ActionID:   r.ActionID,
		Challenger: r.Challenger,
		Reason:     r.Reason,
		State:      state,
		Ruling:     ruling,
		OpenedAt:   ir.TimeFromNanos(r.OpenedAt),
		DisputedAt: ir.TimeFromNanos(r.DisputedAt),
		ResolvedAt: ir.TimeFromNanos(r.ResolvedAt),
	}, nil
}
