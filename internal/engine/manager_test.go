package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/agreement/internal/ir"
)

type fixture struct {
	m     *Manager
	clock *ManualClock

	mu     sync.Mutex
	events []ir.Event
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{clock: NewManualClock(t0)}
	base := []Option{
		WithClock(f.clock),
		WithIDGenerator(NewSequenceGenerator()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithObserver(func(ev ir.Event) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.events = append(f.events, ev)
		}),
	}
	f.m = NewManager(append(base, opts...)...)
	return f
}

func (f *fixture) kinds() []ir.EventKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ir.EventKind, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Kind
	}
	return out
}

func (f *fixture) submit(t *testing.T, delay time.Duration) ir.Action {
	t.Helper()
	act, err := f.m.Submit(context.Background(), ActionData{Submitter: "alice", Payload: "transfer 10", Delay: delay})
	require.NoError(t, err)
	return act
}

func (f *fixture) challenge(t *testing.T, actionID string) ir.Challenge {
	t.Helper()
	c, err := f.m.Challenge(context.Background(), actionID, ChallengeData{Challenger: "bob", Reason: "too large"})
	require.NoError(t, err)
	return c
}

func TestManager_Submit(t *testing.T) {
	f := newFixture(t)
	act := f.submit(t, 0)

	assert.Equal(t, "action-1", act.ID)
	assert.Equal(t, "alice", act.Submitter)
	assert.Equal(t, ir.ActionSubmitted, act.State)
	assert.Equal(t, t0, act.SubmittedAt)
	assert.Empty(t, act.DelayID)

	got, err := f.m.Action(act.ID)
	require.NoError(t, err)
	assert.Equal(t, act, got)
	assert.Equal(t, []ir.EventKind{ir.EventActionSubmitted}, f.kinds())
}

func TestManager_Submit_WithDelay(t *testing.T) {
	f := newFixture(t)
	act := f.submit(t, 10*time.Second)

	require.Equal(t, "delay-1", act.DelayID)
	d, err := f.m.Delay(act.DelayID)
	require.NoError(t, err)
	assert.Equal(t, ir.DelayScheduled, d.State)
	assert.Equal(t, at(10), d.DueAt)
	assert.Equal(t, act.ID, d.ActionID)
	assert.Equal(t, []string{"delay-1"}, f.m.PendingDelays())
}

func TestManager_Submit_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data ActionData
	}{
		{"empty submitter", ActionData{Payload: "x"}},
		{"submitter with space", ActionData{Submitter: "al ice", Payload: "x"}},
		{"empty payload", ActionData{Submitter: "alice", Payload: "  "}},
		{"negative delay", ActionData{Submitter: "alice", Payload: "x", Delay: -time.Second}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.m.Submit(context.Background(), tt.data)
			require.Error(t, err)
			assert.True(t, IsInvalidAction(err), "got %v", err)
			assert.Empty(t, f.m.Aggregates(), "nothing is created")
			assert.Empty(t, f.kinds())
		})
	}
}

// submit, challenge, dispute, rule for submitter, resolve.
func TestManager_ScenarioA_RulingForSubmitter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	act := f.submit(t, 0)
	c := f.challenge(t, act.ID)

	_, err := f.m.Dispute(ctx, c.ID)
	require.NoError(t, err)
	ruled, err := f.m.ApplyRuling(ctx, c.ID, ir.RulingInFavorOfSubmitter)
	require.NoError(t, err)
	assert.Equal(t, ir.ChallengeRejected, ruled.State)

	resolved, err := f.m.ResolveChallenge(ctx, act.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.ActionSubmitted, resolved.State)

	got, err := f.m.ChallengeRecord(c.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.ChallengeRejected, got.State)
	assert.Equal(t, ir.RulingInFavorOfSubmitter, got.Ruling)

	assert.Equal(t, []ir.EventKind{
		ir.EventActionSubmitted,
		ir.EventChallengeOpened,
		ir.EventActionChallenged,
		ir.EventChallengeDisputed,
		ir.EventChallengeRuled,
		ir.EventActionResumed,
	}, f.kinds())
}

// submit with delay, challenge, dispute, rule for challenger, resolve.
func TestManager_ScenarioB_RulingForChallenger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	act := f.submit(t, time.Minute)
	c := f.challenge(t, act.ID)

	_, err := f.m.Dispute(ctx, c.ID)
	require.NoError(t, err)
	_, err = f.m.ApplyRuling(ctx, c.ID, ir.RulingInFavorOfChallenger)
	require.NoError(t, err)

	f.clock.Set(at(30))
	resolved, err := f.m.ResolveChallenge(ctx, act.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.ActionClosed, resolved.State)
	assert.Equal(t, at(30), resolved.ClosedAt)

	agg, err := f.m.Aggregate(act.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.ChallengeAccepted, agg.Current().State)
	require.NotNil(t, agg.Delay)
	assert.Equal(t, ir.DelayStopped, agg.Delay.State)
	assert.Empty(t, f.m.PendingDelays())
}

// delay 10, pause at 3, resume at 20, tick at 26 and 27.
func TestManager_ScenarioC_PauseResumeTick(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	act := f.submit(t, 10*time.Second)

	f.clock.Set(at(3))
	paused, err := f.m.PauseDelay(ctx, act.DelayID)
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, paused.Remaining(at(3)))

	f.clock.Set(at(20))
	resumed, err := f.m.ResumeDelay(ctx, act.DelayID)
	require.NoError(t, err)
	assert.Equal(t, at(27), resumed.DueAt)

	d, err := f.m.TickDelay(ctx, act.DelayID, at(26))
	require.NoError(t, err)
	assert.Equal(t, ir.DelayScheduled, d.State)

	d, err = f.m.TickDelay(ctx, act.DelayID, at(27))
	require.NoError(t, err)
	assert.Equal(t, ir.DelayExecuted, d.State)

	got, err := f.m.Action(act.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.ActionClosed, got.State)
	assert.Equal(t, at(27), got.ClosedAt)
}

// dispute twice without resolution.
func TestManager_ScenarioD_DoubleDispute(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	act := f.submit(t, 0)
	c := f.challenge(t, act.ID)

	_, err := f.m.Dispute(ctx, c.ID)
	require.NoError(t, err)
	_, err = f.m.Dispute(ctx, c.ID)
	require.Error(t, err)
	assert.True(t, IsInvalidState(err))
	assert.ErrorIs(t, err, ErrInvalidState)

	got, err := f.m.ChallengeRecord(c.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.ChallengeDisputed, got.State)
}

func TestManager_ChallengePausesDelay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	act := f.submit(t, 10*time.Second)

	f.clock.Set(at(4))
	c := f.challenge(t, act.ID)

	d, err := f.m.Delay(act.DelayID)
	require.NoError(t, err)
	assert.Equal(t, ir.DelayPaused, d.State)

	// Ticks are ignored while the action is challenged.
	d, err = f.m.TickDelay(ctx, act.DelayID, at(100))
	require.NoError(t, err)
	assert.Equal(t, ir.DelayPaused, d.State)

	f.clock.Set(at(50))
	_, err = f.m.Settle(ctx, c.ID)
	require.NoError(t, err)
	_, err = f.m.ResolveChallenge(ctx, act.ID)
	require.NoError(t, err)

	d, err = f.m.Delay(act.DelayID)
	require.NoError(t, err)
	assert.Equal(t, ir.DelayScheduled, d.State)
	assert.Equal(t, at(56), d.DueAt, "6s remained when the challenge was raised")
}

func TestManager_ChallengeFastForwardedDelay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	act := f.submit(t, time.Hour)
	_, err := f.m.FastForwardDelay(ctx, act.DelayID)
	require.NoError(t, err)

	c := f.challenge(t, act.ID)
	d, err := f.m.TickDelay(ctx, act.DelayID, at(1))
	require.NoError(t, err)
	assert.Equal(t, ir.DelayFastForwarded, d.State, "challenged actions never execute")

	_, err = f.m.Dispute(ctx, c.ID)
	require.NoError(t, err)
	_, err = f.m.ApplyRuling(ctx, c.ID, ir.RulingRefused)
	require.NoError(t, err)
	_, err = f.m.ResolveChallenge(ctx, act.ID)
	require.NoError(t, err)

	d, err = f.m.TickDelay(ctx, act.DelayID, at(1))
	require.NoError(t, err)
	assert.Equal(t, ir.DelayExecuted, d.State)
}

func TestManager_Rechallenge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	act := f.submit(t, 0)

	first := f.challenge(t, act.ID)
	_, err := f.m.Settle(ctx, first.ID)
	require.NoError(t, err)
	_, err = f.m.ResolveChallenge(ctx, act.ID)
	require.NoError(t, err)

	second := f.challenge(t, act.ID)
	assert.NotEqual(t, first.ID, second.ID)

	agg, err := f.m.Aggregate(act.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, agg.Action.ChallengeCount)
	assert.Equal(t, second.ID, agg.Action.ChallengeID)
	require.Len(t, agg.Challenges, 2)
	assert.Equal(t, ir.ChallengeSettled, agg.Challenges[0].State)
	assert.Equal(t, ir.ChallengeWaiting, agg.Challenges[1].State)

	// The old challenge is terminal and accepts no further operations.
	_, err = f.m.Dispute(ctx, first.ID)
	assert.True(t, IsInvalidState(err))
}

func TestManager_Challenge_InvalidState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	act := f.submit(t, 0)
	f.challenge(t, act.ID)

	_, err := f.m.Challenge(ctx, act.ID, ChallengeData{Challenger: "carol"})
	assert.True(t, IsInvalidState(err), "one active challenge per action")

	executed := f.submit(t, time.Second)
	_, err = f.m.TickDelay(ctx, executed.DelayID, at(1))
	require.NoError(t, err)
	_, err = f.m.Challenge(ctx, executed.ID, ChallengeData{Challenger: "carol"})
	assert.True(t, IsInvalidState(err), "closed actions cannot be challenged")
}

func TestManager_ResolveChallenge_NotTerminal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	act := f.submit(t, 0)

	_, err := f.m.ResolveChallenge(ctx, act.ID)
	assert.True(t, IsInvalidState(err), "no challenge to resolve")

	c := f.challenge(t, act.ID)
	_, err = f.m.ResolveChallenge(ctx, act.ID)
	assert.True(t, IsInvalidState(err), "waiting challenge")

	_, err = f.m.Dispute(ctx, c.ID)
	require.NoError(t, err)
	_, err = f.m.ResolveChallenge(ctx, act.ID)
	assert.True(t, IsInvalidState(err), "disputed challenge")
}

func TestManager_ApplyRuling_Invalid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	act := f.submit(t, 0)
	c := f.challenge(t, act.ID)

	_, err := f.m.ApplyRuling(ctx, c.ID, ir.RulingInFavorOfChallenger)
	assert.True(t, IsInvalidState(err), "ruling requires a dispute")

	_, err = f.m.Dispute(ctx, c.ID)
	require.NoError(t, err)
	_, err = f.m.ApplyRuling(ctx, c.ID, ir.RulingMissing)
	assert.True(t, IsInvalidRuling(err))
	_, err = f.m.ApplyRuling(ctx, c.ID, ir.Ruling(1))
	assert.True(t, IsInvalidRuling(err), "code 1 is reserved")

	got, err := f.m.ChallengeRecord(c.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.ChallengeDisputed, got.State)
}

func TestManager_Close(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	plain := f.submit(t, 0)
	closed, err := f.m.Close(ctx, plain.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.ActionClosed, closed.State)

	_, err = f.m.Close(ctx, plain.ID)
	assert.True(t, IsInvalidState(err), "close is not repeatable")

	waiting := f.submit(t, time.Minute)
	_, err = f.m.Close(ctx, waiting.ID)
	assert.True(t, IsInvalidState(err), "pending delay blocks close")
}

func TestManager_StopDelay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	act := f.submit(t, time.Minute)

	d, err := f.m.StopDelay(ctx, act.DelayID)
	require.NoError(t, err)
	assert.Equal(t, ir.DelayStopped, d.State)

	got, err := f.m.Action(act.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.ActionClosed, got.State)

	_, err = f.m.StopDelay(ctx, act.DelayID)
	assert.True(t, IsInvalidState(err))
}

func TestManager_StopDelay_WhileChallenged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	act := f.submit(t, time.Minute)
	f.challenge(t, act.ID)

	_, err := f.m.StopDelay(ctx, act.DelayID)
	assert.True(t, IsInvalidState(err))

	d, err := f.m.Delay(act.DelayID)
	require.NoError(t, err)
	assert.Equal(t, ir.DelayPaused, d.State)
}

func TestManager_ManualDelayOps_WhileChallenged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	act := f.submit(t, 10*time.Second)

	f.clock.Set(at(3))
	f.challenge(t, act.ID)
	before := len(f.kinds())

	for name, op := range map[string]func(context.Context, string) (ir.Delay, error){
		"pause":        f.m.PauseDelay,
		"resume":       f.m.ResumeDelay,
		"fast-forward": f.m.FastForwardDelay,
	} {
		_, err := op(ctx, act.DelayID)
		assert.True(t, IsInvalidState(err), "%s: %v", name, err)
	}
	assert.Len(t, f.kinds(), before, "rejected ops emit no events")

	d, err := f.m.Delay(act.DelayID)
	require.NoError(t, err)
	assert.Equal(t, ir.DelayPaused, d.State)
	assert.Equal(t, 7*time.Second, d.Remaining(at(3)))
}

func TestManager_ResumeDelay_WhileChallenged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	act := f.submit(t, 10*time.Second)

	f.clock.Set(at(3))
	c := f.challenge(t, act.ID)

	_, err := f.m.ResumeDelay(ctx, act.DelayID)
	require.True(t, IsInvalidState(err))

	_, err = f.m.Dispute(ctx, c.ID)
	require.NoError(t, err)
	_, err = f.m.ApplyRuling(ctx, c.ID, ir.RulingInFavorOfSubmitter)
	require.NoError(t, err)

	f.clock.Set(at(100))
	_, err = f.m.ResolveChallenge(ctx, act.ID)
	require.NoError(t, err)

	d, err := f.m.TickDelay(ctx, act.DelayID, at(100))
	require.NoError(t, err)
	assert.Equal(t, ir.DelayScheduled, d.State, "the 7s left at challenge time survive the dispute")
	assert.Equal(t, at(107), d.DueAt)

	d, err = f.m.TickDelay(ctx, act.DelayID, at(107))
	require.NoError(t, err)
	assert.Equal(t, ir.DelayExecuted, d.State)
	got, err := f.m.Action(act.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.ActionClosed, got.State)
}

func TestManager_ScheduleDelay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	act := f.submit(t, 0)

	f.clock.Set(at(5))
	d, err := f.m.ScheduleDelay(ctx, act.ID, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, at(15), d.DueAt)

	got, err := f.m.Action(act.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.DelayID)

	_, err = f.m.ScheduleDelay(ctx, act.ID, time.Second)
	require.Error(t, err)
	assert.True(t, IsInvalidState(err), "one delay per action")

	_, err = f.m.ScheduleDelay(ctx, act.ID, -time.Second)
	assert.Error(t, err)
}

func TestManager_NotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.m.Action("nope")
	assert.True(t, IsNotFound(err))
	_, err = f.m.Challenge(ctx, "nope", ChallengeData{Challenger: "bob"})
	assert.True(t, IsNotFound(err))
	_, err = f.m.Settle(ctx, "nope")
	assert.True(t, IsNotFound(err))
	_, err = f.m.ApplyRuling(ctx, "nope", ir.RulingRefused)
	assert.True(t, IsNotFound(err))
	_, err = f.m.PauseDelay(ctx, "nope")
	assert.True(t, IsNotFound(err))
	_, err = f.m.TickDelay(ctx, "nope", t0)
	assert.True(t, IsNotFound(err))
	_, err = f.m.ResolveChallenge(ctx, "nope")
	assert.True(t, IsNotFound(err))

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindAction, e.Kind)
	assert.Equal(t, "nope", e.ID)
}

func TestManager_ClosedIsTerminal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	act := f.submit(t, time.Second)
	_, err := f.m.TickDelay(ctx, act.DelayID, at(1))
	require.NoError(t, err)

	before := len(f.kinds())
	_, err = f.m.Close(ctx, act.ID)
	assert.Error(t, err)
	_, err = f.m.ScheduleDelay(ctx, act.ID, time.Second)
	assert.Error(t, err)
	_, err = f.m.Challenge(ctx, act.ID, ChallengeData{Challenger: "bob"})
	assert.Error(t, err)
	_, err = f.m.StopDelay(ctx, act.DelayID)
	assert.Error(t, err)
	d, err := f.m.TickDelay(ctx, act.DelayID, at(100))
	require.NoError(t, err)
	assert.Equal(t, ir.DelayExecuted, d.State)

	assert.Len(t, f.kinds(), before, "no transition after CLOSED")
}

type recordingArbitrator struct {
	mu       sync.Mutex
	requests []DisputeContext
	err      error
}

func (a *recordingArbitrator) RequestRuling(_ context.Context, _ string, dc DisputeContext) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.requests = append(a.requests, dc)
	return nil
}

func TestManager_Dispute_RequestsRuling(t *testing.T) {
	ctx := context.Background()
	arb := &recordingArbitrator{}
	f := newFixture(t, WithArbitrator(arb))
	act := f.submit(t, 0)
	c := f.challenge(t, act.ID)

	_, err := f.m.Dispute(ctx, c.ID)
	require.NoError(t, err)
	require.NoError(t, f.m.RequestArbitration(ctx, c.ID))

	require.Len(t, arb.requests, 2)
	assert.Equal(t, DisputeContext{
		ActionID:   act.ID,
		Submitter:  "alice",
		Payload:    "transfer 10",
		Challenger: "bob",
		Reason:     "too large",
	}, arb.requests[0])
}

func TestManager_Dispute_ArbitratorFailure(t *testing.T) {
	ctx := context.Background()
	arb := &recordingArbitrator{err: errors.New("court offline")}
	f := newFixture(t, WithArbitrator(arb))
	act := f.submit(t, 0)
	c := f.challenge(t, act.ID)

	_, err := f.m.Dispute(ctx, c.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "court offline")

	got, err := f.m.ChallengeRecord(c.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.ChallengeWaiting, got.State, "challenge stays WAITING")

	err = f.m.RequestArbitration(ctx, c.ID)
	assert.True(t, IsInvalidState(err), "only disputed challenges are arbitrated")
}

type failingRecorder struct{ fail bool }

func (r *failingRecorder) Record(context.Context, ir.Aggregate, []ir.Event) error {
	if r.fail {
		return errors.New("disk full")
	}
	return nil
}

func TestManager_RecorderFailure_LeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	rec := &failingRecorder{}
	f := newFixture(t, WithRecorder(rec))
	act := f.submit(t, 0)

	rec.fail = true
	_, err := f.m.Challenge(ctx, act.ID, ChallengeData{Challenger: "bob"})
	require.Error(t, err)

	got, err := f.m.Action(act.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.ActionSubmitted, got.State)
	assert.Equal(t, []ir.EventKind{ir.EventActionSubmitted}, f.kinds(), "observers see committed events only")

	rec.fail = false
	f.challenge(t, act.ID)
}

func TestManager_Events_Stamped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	act := f.submit(t, 10*time.Second)
	c := f.challenge(t, act.ID)
	_, err := f.m.Settle(ctx, c.ID)
	require.NoError(t, err)
	_, err = f.m.ResolveChallenge(ctx, act.ID)
	require.NoError(t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make(map[string]bool)
	for i, ev := range f.events {
		assert.Equal(t, int64(i+1), ev.Seq)
		assert.Equal(t, act.ID, ev.ActionID)
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ids[ev.ID], "duplicate event id")
		ids[ev.ID] = true
		assert.Equal(t, ir.MustEventID(ev), ev.ID)
	}
	assert.Equal(t, int64(len(f.events)), f.m.LastSeq())
}

func TestManager_ConcurrentChallenges_OneWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	act := f.submit(t, time.Minute)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.m.Challenge(ctx, act.ID, ChallengeData{Challenger: "bob"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, IsInvalidState(err), "got %v", err)
	}
	assert.Equal(t, 1, wins)

	agg, err := f.m.Aggregate(act.ID)
	require.NoError(t, err)
	assert.Len(t, agg.Challenges, 1)
	assert.Equal(t, 1, agg.Action.ChallengeCount)
}

func TestManager_ConcurrentActions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithIDGenerator(UUIDv7Generator{}))

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			act, err := f.m.Submit(ctx, ActionData{Submitter: "alice", Payload: "p", Delay: time.Second})
			if !assert.NoError(t, err) {
				return
			}
			_, err = f.m.TickDelay(ctx, act.DelayID, at(1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	aggs := f.m.Aggregates()
	require.Len(t, aggs, n)
	for _, a := range aggs {
		assert.Equal(t, ir.ActionClosed, a.Action.State)
	}
	assert.Equal(t, int64(n*4), f.m.LastSeq(), "submitted, scheduled, executed, closed")
}

func TestManager_Restore(t *testing.T) {
	ctx := context.Background()
	src := newFixture(t)
	act := src.submit(t, 10*time.Second)
	c := src.challenge(t, act.ID)

	dst := newFixture(t)
	require.NoError(t, dst.m.Restore(src.m.Aggregates(), src.m.LastSeq()))

	agg, err := dst.m.Aggregate(act.ID)
	require.NoError(t, err)
	want, err := src.m.Aggregate(act.ID)
	require.NoError(t, err)
	assert.Equal(t, want, agg)

	_, err = dst.m.Settle(ctx, c.ID)
	require.NoError(t, err)
	dst.mu.Lock()
	assert.Equal(t, src.m.LastSeq()+1, dst.events[0].Seq, "seq continues after restore")
	dst.mu.Unlock()

	err = dst.m.Restore(src.m.Aggregates(), 0)
	assert.Error(t, err, "duplicate restore")
}

func TestManager_Restore_DuplicateInBatch(t *testing.T) {
	f := newFixture(t)
	err := f.m.Restore([]ir.Aggregate{
		{Action: ir.Action{ID: "a1", State: ir.ActionSubmitted}},
		{Action: ir.Action{ID: "a1", State: ir.ActionClosed}},
	}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
	assert.Empty(t, f.m.Aggregates(), "nothing is loaded from a rejected batch")

	_, err = f.m.Action("a1")
	assert.True(t, IsNotFound(err))
}

func TestManager_Restore_RejectsInvalidCodes(t *testing.T) {
	f := newFixture(t)
	err := f.m.Restore([]ir.Aggregate{{
		Action: ir.Action{ID: "a", State: ir.ActionState(7)},
	}}, 0)
	assert.Error(t, err)

	err = f.m.Restore([]ir.Aggregate{{
		Action:     ir.Action{ID: "a", State: ir.ActionChallenged, ChallengeID: "c"},
		Challenges: []ir.Challenge{{ID: "c", ActionID: "a", Ruling: ir.Ruling(1)}},
	}}, 0)
	assert.Error(t, err)
	assert.Empty(t, f.m.Aggregates())
}
