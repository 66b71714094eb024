package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/agreement/internal/engine"
	"github.com/roach88/agreement/internal/ir"
	"github.com/roach88/agreement/internal/store"
	"github.com/roach88/agreement/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios against a real Manager backed by an in-memory store,
// with a deterministic clock and sequential identifiers.
type Harness struct {
	store      *store.Store
	manager    *engine.Manager
	clock      *testutil.DeterministicClock
	arbitrator *testutil.RecordingArbitrator
	logger     *slog.Logger

	mu    sync.Mutex
	trace []TraceEvent
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create fresh in-memory database and manager
// 2. Execute steps in order, checking each step's expectation
// 3. Evaluate assertions against the trace and stored state
// 4. Return result with pass/fail, trace, and errors
//
// An error is returned only when the harness itself cannot run; engine
// rejections and failed expectations are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	epoch, err := scenario.epoch()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:      st,
		clock:      testutil.NewDeterministicClock(epoch),
		arbitrator: &testutil.RecordingArbitrator{},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	h.manager = engine.NewManager(
		engine.WithClock(h.clock),
		engine.WithIDGenerator(engine.NewSequenceGenerator()),
		engine.WithArbitrator(h.arbitrator),
		engine.WithRecorder(st),
		engine.WithObserver(h.observe),
		engine.WithLogger(h.logger),
	)

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
	}

	h.mu.Lock()
	result.Trace = append(result.Trace, h.trace...)
	h.mu.Unlock()

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

// observe converts a committed event into a trace entry.
func (h *Harness) observe(ev ir.Event) {
	te := TraceEvent{
		Type:      TraceCommitted,
		Seq:       ev.Seq,
		Kind:      string(ev.Kind),
		Action:    ev.ActionID,
		Delay:     ev.DelayID,
		Challenge: ev.ChallengeID,
		At:        h.clock.Since(ev.At),
	}
	te.From, te.To = ev.StateNames()
	if ev.Kind == ir.EventChallengeDisputed || ev.Kind == ir.EventChallengeRuled {
		te.Ruling = ev.Ruling.String()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.trace = append(h.trace, te)
}

// reject records a step the engine refused.
func (h *Harness) reject(index int, op string, err error) {
	code := string(engine.CodeOf(err))
	if code == "" {
		code = "ERROR"
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trace = append(h.trace, TraceEvent{
		Type: TraceRejected,
		Step: index,
		Op:   op,
		Code: code,
		At:   h.clock.Offset(),
	})
}

// executeStep runs one step and checks its expectation.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	if step.At != nil {
		h.clock.Set(*step.At)
	}

	out, err := h.invoke(ctx, step)
	if err != nil {
		return err
	}
	actionID, opErr := out.actionID, out.err
	if opErr != nil {
		h.reject(index, step.Op, opErr)
	}

	expect := step.Expect
	if expect == nil {
		if opErr != nil {
			result.AddError(fmt.Sprintf("step %d (%s): unexpected error: %v", index, step.Op, opErr))
		}
		return nil
	}

	if expect.Error != "" {
		got := string(engine.CodeOf(opErr))
		switch {
		case opErr == nil:
			result.AddError(fmt.Sprintf("step %d (%s): expected error %s, got success", index, step.Op, expect.Error))
		case got != expect.Error:
			result.AddError(fmt.Sprintf("step %d (%s): expected error %s, got %v", index, step.Op, expect.Error, opErr))
		}
	} else if opErr != nil {
		result.AddError(fmt.Sprintf("step %d (%s): unexpected error: %v", index, step.Op, opErr))
	}

	for _, msg := range h.checkState(actionID, expect) {
		result.AddError(fmt.Sprintf("step %d (%s): %s", index, step.Op, msg))
	}
	return nil
}

// outcome is what a step did: the action it concerns and the engine's
// rejection, if any.
type outcome struct {
	actionID string
	err      error
}

// invoke dispatches the step to the manager. The returned error is a
// harness error for malformed arguments, never an engine rejection.
func (h *Harness) invoke(ctx context.Context, step Step) (outcome, error) {
	m := h.manager
	actionID := step.Action

	switch step.Op {
	case OpSubmit:
		delay, err := argDuration(step.Args, "delay")
		if err != nil {
			return outcome{}, err
		}
		act, opErr := m.Submit(ctx, engine.ActionData{
			Submitter: argString(step.Args, "submitter", "alice"),
			Payload:   argString(step.Args, "payload", "payload"),
			Delay:     delay,
		})
		if opErr == nil {
			actionID = act.ID
		}
		return outcome{actionID, opErr}, nil

	case OpChallenge:
		_, opErr := m.Challenge(ctx, actionID, engine.ChallengeData{
			Challenger: argString(step.Args, "challenger", "bob"),
			Reason:     argString(step.Args, "reason", "reason"),
		})
		return outcome{actionID, opErr}, nil

	case OpSettle, OpDispute, OpRequestArbitration, OpRule:
		challengeID := h.challengeFor(step)
		if actionID == "" {
			if c, err := m.ChallengeRecord(challengeID); err == nil {
				actionID = c.ActionID
			}
		}
		var opErr error
		switch step.Op {
		case OpSettle:
			_, opErr = m.Settle(ctx, challengeID)
		case OpDispute:
			_, opErr = m.Dispute(ctx, challengeID)
		case OpRequestArbitration:
			opErr = m.RequestArbitration(ctx, challengeID)
		case OpRule:
			ruling, err := argRuling(step.Args)
			if err != nil {
				return outcome{}, err
			}
			_, opErr = m.ApplyRuling(ctx, challengeID, ruling)
		}
		return outcome{actionID, opErr}, nil

	case OpResolve:
		_, opErr := m.ResolveChallenge(ctx, actionID)
		return outcome{actionID, opErr}, nil

	case OpClose:
		_, opErr := m.Close(ctx, actionID)
		return outcome{actionID, opErr}, nil

	case OpScheduleDelay:
		delay, err := argDuration(step.Args, "delay")
		if err != nil {
			return outcome{}, err
		}
		_, opErr := m.ScheduleDelay(ctx, actionID, delay)
		return outcome{actionID, opErr}, nil

	case OpPause, OpResume, OpFastForward, OpStop, OpTick:
		delayID := h.delayFor(actionID)
		var opErr error
		switch step.Op {
		case OpPause:
			_, opErr = m.PauseDelay(ctx, delayID)
		case OpResume:
			_, opErr = m.ResumeDelay(ctx, delayID)
		case OpFastForward:
			_, opErr = m.FastForwardDelay(ctx, delayID)
		case OpStop:
			_, opErr = m.StopDelay(ctx, delayID)
		case OpTick:
			_, opErr = m.TickDelay(ctx, delayID, time.Time{})
		}
		return outcome{actionID, opErr}, nil

	case OpTickAll:
		// One worker keeps the tick order, and so the trace, deterministic.
		_, opErr := engine.NewScheduler(m, time.Second, 1, h.logger).TickAll(ctx)
		return outcome{actionID, opErr}, nil
	}
	return outcome{}, fmt.Errorf("unknown op %q", step.Op)
}

// challengeFor returns the explicit challenge of the step, or the current
// challenge of its action. Unknown targets resolve to "" so the manager
// reports NOT_FOUND.
func (h *Harness) challengeFor(step Step) string {
	if step.Challenge != "" {
		return step.Challenge
	}
	act, err := h.manager.Action(step.Action)
	if err != nil {
		return ""
	}
	return act.ChallengeID
}

// delayFor returns the delay attached to the action, or "".
func (h *Harness) delayFor(actionID string) string {
	act, err := h.manager.Action(actionID)
	if err != nil {
		return ""
	}
	return act.DelayID
}

// checkState compares the action's aggregate with the expectation.
func (h *Harness) checkState(actionID string, e *Expect) []string {
	if e.ActionState == "" && e.DelayState == "" && e.ChallengeState == "" &&
		e.Ruling == "" && e.DueAt == nil && e.Remaining == nil && e.Challenges == nil {
		return nil
	}

	agg, err := h.manager.Aggregate(actionID)
	if err != nil {
		return []string{fmt.Sprintf("read action %q: %v", actionID, err)}
	}

	var errs []string
	mismatch := func(field string, want, got any) {
		errs = append(errs, fmt.Sprintf("%s: expected %v, got %v", field, want, got))
	}

	if e.ActionState != "" && agg.Action.State.String() != e.ActionState {
		mismatch("action_state", e.ActionState, agg.Action.State)
	}
	if e.Challenges != nil && agg.Action.ChallengeCount != *e.Challenges {
		mismatch("challenges", *e.Challenges, agg.Action.ChallengeCount)
	}

	if e.DelayState != "" || e.DueAt != nil || e.Remaining != nil {
		if agg.Delay == nil {
			errs = append(errs, "delay: action has no delay")
		} else {
			d := agg.Delay
			if e.DelayState != "" && d.State.String() != e.DelayState {
				mismatch("delay_state", e.DelayState, d.State)
			}
			if e.DueAt != nil {
				if got := h.clock.Since(d.DueAt); got != *e.DueAt {
					mismatch("due_at", *e.DueAt, got)
				}
			}
			if e.Remaining != nil {
				if got := int64(d.Remaining(h.clock.Now()) / time.Second); got != *e.Remaining {
					mismatch("remaining", *e.Remaining, got)
				}
			}
		}
	}

	if e.ChallengeState != "" || e.Ruling != "" {
		cur := agg.Current()
		if cur == nil {
			errs = append(errs, "challenge: action has no challenge")
		} else {
			if e.ChallengeState != "" && cur.State.String() != e.ChallengeState {
				mismatch("challenge_state", e.ChallengeState, cur.State)
			}
			if e.Ruling != "" && cur.Ruling.String() != e.Ruling {
				mismatch("ruling", e.Ruling, cur.Ruling)
			}
		}
	}
	return errs
}

func argString(args map[string]any, key, def string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}
	return fmt.Sprint(v)
}

// argDuration reads a Go duration string or integer seconds. Missing means
// zero.
func argDuration(args map[string]any, key string) (time.Duration, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, nil
	}
	switch val := v.(type) {
	case int:
		return time.Duration(val) * time.Second, nil
	case int64:
		return time.Duration(val) * time.Second, nil
	case string:
		d, err := time.ParseDuration(val)
		if err != nil {
			return 0, fmt.Errorf("args.%s: %w", key, err)
		}
		return d, nil
	}
	return 0, fmt.Errorf("args.%s: unsupported type %T", key, v)
}

// argRuling reads a ruling name or a raw integer code. Raw codes let
// scenarios exercise undefined rulings.
func argRuling(args map[string]any) (ir.Ruling, error) {
	v, ok := args["ruling"]
	if !ok {
		return 0, errors.New("args.ruling is required")
	}
	switch val := v.(type) {
	case int:
		return ir.Ruling(val), nil
	case string:
		r, err := ir.ParseRuling(val)
		if err != nil {
			return 0, fmt.Errorf("args.ruling: %w", err)
		}
		return r, nil
	}
	return 0, fmt.Errorf("args.ruling: unsupported type %T", v)
}
