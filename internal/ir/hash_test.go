package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventID_Deterministic(t *testing.T) {
	ev := Event{Seq: 1, Kind: EventActionSubmitted, ActionID: "a1", At: at(0)}
	id1, err := EventID(ev)
	require.NoError(t, err)
	id2, err := EventID(ev)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64)
}

func TestEventID_IgnoresIDField(t *testing.T) {
	ev := Event{Seq: 1, Kind: EventActionSubmitted, ActionID: "a1", At: at(0)}
	withID := ev
	withID.ID = "something"
	assert.Equal(t, MustEventID(ev), MustEventID(withID))
}

func TestEventID_SensitiveToFields(t *testing.T) {
	base := Event{Seq: 1, Kind: EventDelayPaused, ActionID: "a1", DelayID: "d1", From: 0, To: 1, At: at(3)}
	variants := []Event{base, base, base, base}
	variants[0].Seq = 2
	variants[1].To = 2
	variants[2].At = at(4)
	variants[3].DelayID = "d2"

	for i, v := range variants {
		assert.NotEqual(t, MustEventID(base), MustEventID(v), "variant %d", i)
	}
}

func TestAggregateDigest(t *testing.T) {
	a := Aggregate{
		Action:     Action{ID: "a1", Submitter: "alice", Payload: "p", SubmittedAt: at(0)},
		Delay:      &Delay{ID: "d1", ActionID: "a1", ScheduledAt: at(0), DueAt: at(10)},
		Challenges: []Challenge{{ID: "c1", ActionID: "a1", OpenedAt: at(1)}},
	}
	d1, err := AggregateDigest(a)
	require.NoError(t, err)

	b := a.Clone()
	d2, err := AggregateDigest(b)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	b.Delay.DueAt = at(11)
	d3, err := AggregateDigest(b)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)
}
