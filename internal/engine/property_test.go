package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/roach88/agreement/internal/ir"
)

// Property: pause immediately followed by resume leaves dueAt unchanged.
func TestProperty_PauseResumePreservesDueAt(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("pause then resume at the same instant keeps dueAt", prop.ForAll(
		func(duration, pauseAt int) bool {
			e := NewDelayEngine(NewSequenceGenerator())
			d, err := e.Schedule(ir.Action{ID: "a"}, t0, time.Duration(duration)*time.Second)
			if err != nil {
				return false
			}
			p, err := e.Pause(d, at(pauseAt))
			if err != nil {
				return false
			}
			r, err := e.Resume(p, at(pauseAt))
			if err != nil {
				return false
			}
			return r.DueAt.Equal(d.DueAt) && r.State == ir.DelayScheduled
		},
		gen.IntRange(0, 100000),
		gen.IntRange(0, 100000),
	))

	properties.Property("remaining time survives a pause of any length", prop.ForAll(
		func(duration, pauseAt, pauseFor int) bool {
			e := NewDelayEngine(NewSequenceGenerator())
			d, _ := e.Schedule(ir.Action{ID: "a"}, t0, time.Duration(duration)*time.Second)
			p, _ := e.Pause(d, at(pauseAt))
			r, err := e.Resume(p, at(pauseAt+pauseFor))
			if err != nil {
				return false
			}
			return r.Remaining(at(pauseAt+pauseFor)) == d.Remaining(at(pauseAt))
		},
		gen.IntRange(0, 1000),
		gen.IntRange(0, 2000),
		gen.IntRange(0, 1000),
	))

	properties.Property("double pause fails with InvalidState", prop.ForAll(
		func(pauseAt int) bool {
			e := NewDelayEngine(NewSequenceGenerator())
			d, _ := e.Schedule(ir.Action{ID: "a"}, t0, time.Minute)
			p, err := e.Pause(d, at(pauseAt))
			if err != nil {
				return false
			}
			_, err = e.Pause(p, at(pauseAt))
			return IsInvalidState(err)
		},
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}

// Property: ApplyRuling accepts only DISPUTED challenges with a resolving
// ruling, and the ruling alone decides the outcome.
func TestProperty_ApplyRuling(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	outcome := map[ir.Ruling]ir.ChallengeState{
		ir.RulingRefused:             ir.ChallengeVoided,
		ir.RulingInFavorOfChallenger: ir.ChallengeAccepted,
		ir.RulingInFavorOfSubmitter:  ir.ChallengeRejected,
	}

	properties.Property("ruling table", prop.ForAll(
		func(stateCode, rulingCode int) bool {
			e := NewChallengeEngine(NewSequenceGenerator())
			c := ir.Challenge{ID: "c", State: ir.ChallengeState(stateCode), Ruling: ir.RulingMissing}
			r := ir.Ruling(rulingCode)

			got, err := e.ApplyRuling(c, r, t0)
			switch {
			case c.State != ir.ChallengeDisputed:
				return IsInvalidState(err) && got == c
			case !r.Resolving():
				return IsInvalidRuling(err) && got == c
			default:
				return err == nil && got.State == outcome[r] && got.Ruling == r
			}
		},
		gen.IntRange(0, 5),
		gen.IntRange(-1, 6),
	))

	properties.TestingRun(t)
}

// Property: arbitrary operation sequences keep every aggregate consistent
// and CLOSED is absorbing.
func TestProperty_ManagerInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("random operation sequences", prop.ForAll(
		func(ops []int) bool {
			ctx := context.Background()
			clock := NewManualClock(t0)
			var events []ir.Event
			m := NewManager(
				WithClock(clock),
				WithIDGenerator(NewSequenceGenerator()),
				WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
				WithObserver(func(ev ir.Event) { events = append(events, ev) }),
			)
			act, err := m.Submit(ctx, ActionData{Submitter: "alice", Payload: "p", Delay: 10 * time.Second})
			if err != nil {
				return false
			}

			closedAt := -1
			for _, op := range ops {
				clock.Advance(time.Second)
				agg, _ := m.Aggregate(act.ID)
				cur := agg.Current()
				switch op {
				case 0:
					_, err = m.Challenge(ctx, act.ID, ChallengeData{Challenger: "bob"})
				case 1:
					if cur != nil {
						_, err = m.Settle(ctx, cur.ID)
					}
				case 2:
					if cur != nil {
						_, err = m.Dispute(ctx, cur.ID)
					}
				case 3, 4, 5:
					if cur != nil {
						_, err = m.ApplyRuling(ctx, cur.ID, []ir.Ruling{ir.RulingRefused, ir.RulingInFavorOfSubmitter, ir.RulingInFavorOfChallenger}[op-3])
					}
				case 6:
					_, err = m.ResolveChallenge(ctx, act.ID)
				case 7:
					_, err = m.PauseDelay(ctx, act.DelayID)
				case 8:
					_, err = m.ResumeDelay(ctx, act.DelayID)
				case 9:
					_, err = m.FastForwardDelay(ctx, act.DelayID)
				case 10:
					_, err = m.TickDelay(ctx, act.DelayID, time.Time{})
				case 11:
					_, err = m.StopDelay(ctx, act.DelayID)
				}
				if err != nil && CodeOf(err) == "" {
					return false
				}

				agg, _ = m.Aggregate(act.ID)
				if !consistent(agg) {
					return false
				}
				if agg.Action.State == ir.ActionClosed && closedAt < 0 {
					closedAt = len(events)
				}
			}
			return closedAt < 0 || len(events) == closedAt
		},
		gen.SliceOf(gen.IntRange(0, 11)),
	))

	properties.TestingRun(t)
}

func consistent(a ir.Aggregate) bool {
	cur := a.Current()
	switch a.Action.State {
	case ir.ActionSubmitted:
		if cur != nil && !cur.State.Terminal() {
			return false
		}
		return a.Delay == nil || !a.Delay.State.Terminal()
	case ir.ActionChallenged:
		return cur != nil && cur.ID == a.Action.ChallengeID
	case ir.ActionClosed:
		if cur != nil && !cur.State.Terminal() {
			return false
		}
		return a.Delay == nil || a.Delay.State.Terminal()
	default:
		return false
	}
}
