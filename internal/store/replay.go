package store

import (
	"context"
	"fmt"

	"github.com/roach88/agreement/internal/ir"
)

// Snapshot is everything needed to restore a manager: every aggregate and
// the seq to continue after.
type Snapshot struct {
	Aggregates []ir.Aggregate
	LastSeq    int64
}

// Load reads a snapshot of the whole store.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	aggs, err := s.ReadAll(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load: %w", err)
	}
	seq, err := s.LastSeq(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load: %w", err)
	}
	return Snapshot{Aggregates: aggs, LastSeq: seq}, nil
}

// VerifyLog checks the event log: seq strictly increases, every event ID
// matches its content, and for each entity the From state of an event
// equals the To state of the previous event for that entity. Returns the
// number of events checked.
func (s *Store) VerifyLog(ctx context.Context) (int, error) {
	events, err := s.ReadEvents(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("verify log: %w", err)
	}

	last := map[string]int{} // entity key -> last To state
	var prevSeq int64
	for _, ev := range events {
		if ev.Seq <= prevSeq {
			return 0, fmt.Errorf("verify log: seq %d after %d", ev.Seq, prevSeq)
		}
		prevSeq = ev.Seq

		want, err := ir.EventID(ev)
		if err != nil {
			return 0, fmt.Errorf("verify log: %w", err)
		}
		if want != ev.ID {
			return 0, fmt.Errorf("verify log: event seq=%d: id mismatch", ev.Seq)
		}

		key := entityKey(ev)
		if to, ok := last[key]; ok && to != ev.From {
			return 0, fmt.Errorf("verify log: event seq=%d (%s): from %d, previous to %d", ev.Seq, ev.Kind, ev.From, to)
		}
		last[key] = ev.To
	}
	return len(events), nil
}

// entityKey names the entity whose state an event moves.
func entityKey(ev ir.Event) string {
	switch {
	case ev.ChallengeID != "":
		return "challenge/" + ev.ChallengeID
	case ev.DelayID != "":
		return "delay/" + ev.DelayID
	default:
		return "action/" + ev.ActionID
	}
}

// CheckProjection compares each stored record's state with the To state of
// the last event for that record. It returns one message per mismatch; a
// record with no events is reported too.
func CheckProjection(aggs []ir.Aggregate, events []ir.Event) []string {
	last := make(map[string]int, len(events))
	for _, ev := range events {
		last[entityKey(ev)] = ev.To
	}

	var problems []string
	check := func(key string, state int, name fmt.Stringer) {
		to, ok := last[key]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("%s: no events", key))
		case to != state:
			problems = append(problems, fmt.Sprintf("%s: stored %s, log ends at %d", key, name, to))
		}
	}
	for _, a := range aggs {
		check("action/"+a.Action.ID, int(a.Action.State), a.Action.State)
		if a.Delay != nil {
			check("delay/"+a.Delay.ID, int(a.Delay.State), a.Delay.State)
		}
		for _, c := range a.Challenges {
			check("challenge/"+c.ID, int(c.State), c.State)
		}
	}
	return problems
}
