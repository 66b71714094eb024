package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/agreement/internal/ir"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return t0.Add(time.Duration(sec) * time.Second)
}

// createTestStore creates a new temporary store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestAggregate creates a SUBMITTED action with a SCHEDULED delay.
func createTestAggregate(id string) ir.Aggregate {
	delayID := id + "-delay"
	return ir.Aggregate{
		Action: ir.Action{
			ID:          id,
			Submitter:   "alice",
			Payload:     "transfer 10",
			State:       ir.ActionSubmitted,
			DelayID:     delayID,
			SubmittedAt: t0,
		},
		Delay: &ir.Delay{
			ID:          delayID,
			ActionID:    id,
			State:       ir.DelayScheduled,
			ScheduledAt: t0,
			DueAt:       at(10),
		},
		Challenges: []ir.Challenge{},
	}
}

// createTestEvent creates a stamped event with a valid content ID.
func createTestEvent(actionID string, seq int64, kind ir.EventKind, from, to int) ir.Event {
	ev := ir.Event{
		Seq:      seq,
		Kind:     kind,
		ActionID: actionID,
		From:     from,
		To:       to,
		At:       at(int(seq)),
	}
	ev.ID = ir.MustEventID(ev)
	return ev
}
