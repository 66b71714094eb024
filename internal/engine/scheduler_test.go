package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/agreement/internal/ir"
)

func TestScheduler_TickAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	due := f.submit(t, 5*time.Second)
	later := f.submit(t, time.Minute)
	challenged := f.submit(t, 5*time.Second)
	f.challenge(t, challenged.ID)

	s := NewScheduler(f.m, time.Second, 2, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := s.TickAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "nothing due at t0")

	f.clock.Set(at(5))
	n, err = s.TickAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.m.Action(due.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.ActionClosed, got.State)

	got, err = f.m.Action(later.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.ActionSubmitted, got.State)

	got, err = f.m.Action(challenged.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.ActionChallenged, got.State)

	assert.ElementsMatch(t, []string{later.DelayID, challenged.DelayID}, f.m.PendingDelays())
}

func TestScheduler_TickAll_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.submit(t, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewScheduler(f.m, time.Second, 1, nil)
	_, err := s.TickAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScheduler_Run(t *testing.T) {
	f := newFixture(t, WithClock(WallClock{}))
	act := f.submit(t, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(f.m, 5*time.Millisecond, 0, nil)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		got, err := f.m.Action(act.ID)
		return err == nil && got.State == ir.ActionClosed
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestScheduler_Run_InvalidInterval(t *testing.T) {
	s := NewScheduler(NewManager(), 0, 1, nil)
	assert.Error(t, s.Run(context.Background()))
}

func TestRunEvery_KeepsTickingAfterErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- RunEvery(ctx, 2*time.Millisecond, logger, func(context.Context) (int, error) {
			if calls.Add(1)%2 == 1 {
				return 0, errors.New("store busy")
			}
			return 1, nil
		})
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 4 }, time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestRunEvery_InvalidInterval(t *testing.T) {
	err := RunEvery(context.Background(), 0, nil, func(context.Context) (int, error) {
		t.Fatal("tick must not run")
		return 0, nil
	})
	assert.Error(t, err)
}
