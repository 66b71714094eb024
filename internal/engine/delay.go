package engine

import (
	"time"

	"github.com/roach88/agreement/internal/ir"
)

// DelayEngine implements the delay state machine:
//
//	SCHEDULED --pause--> PAUSED --resume--> SCHEDULED
//	SCHEDULED|PAUSED --fastForward--> FAST_FORWARDED
//	SCHEDULED|FAST_FORWARDED --tick(now >= dueAt)--> EXECUTED
//	any non-terminal --stop--> STOPPED
//
// Methods take a record by value and return the successor; the input is
// never modified. A rejected transition returns the input unchanged with an
// *Error.
type DelayEngine struct {
	ids IDGenerator
}

// NewDelayEngine creates a delay engine that names new delays with ids.
func NewDelayEngine(ids IDGenerator) DelayEngine {
	return DelayEngine{ids: ids}
}

// Schedule creates a SCHEDULED delay owned by action with
// dueAt = now + duration.
func (e DelayEngine) Schedule(action ir.Action, now time.Time, duration time.Duration) (ir.Delay, error) {
	if duration < 0 {
		return ir.Delay{}, NewInvalidActionError("delay", "must not be negative")
	}
	return ir.Delay{
		ID:          e.ids.Generate(KindDelay),
		ActionID:    action.ID,
		State:       ir.DelayScheduled,
		ScheduledAt: now,
		DueAt:       ir.NormalizeTime(now.Add(duration)),
	}, nil
}

// Pause freezes the remaining wait. Only a SCHEDULED delay can be paused;
// pausing twice is an error.
func (DelayEngine) Pause(d ir.Delay, now time.Time) (ir.Delay, error) {
	if d.State != ir.DelayScheduled {
		return d, NewInvalidStateError(KindDelay, d.ID, "pause", d.State)
	}
	d.State = ir.DelayPaused
	d.PausedAt = now
	return d, nil
}

// Resume restarts a PAUSED delay with the wait that remained at pause
// time: dueAt' = now + (dueAt - pausedAt). Pausing and resuming at the
// same instant leaves dueAt unchanged.
func (DelayEngine) Resume(d ir.Delay, now time.Time) (ir.Delay, error) {
	if d.State != ir.DelayPaused {
		return d, NewInvalidStateError(KindDelay, d.ID, "resume", d.State)
	}
	remaining := d.DueAt.Sub(d.PausedAt)
	if remaining < 0 {
		remaining = 0
	}
	d.State = ir.DelayScheduled
	d.DueAt = ir.NormalizeTime(now.Add(remaining))
	d.PausedAt = time.Time{}
	return d, nil
}

// FastForward makes the delay due immediately so the next tick executes
// it.
func (DelayEngine) FastForward(d ir.Delay, now time.Time) (ir.Delay, error) {
	if d.State != ir.DelayScheduled && d.State != ir.DelayPaused {
		return d, NewInvalidStateError(KindDelay, d.ID, "fast-forward", d.State)
	}
	d.State = ir.DelayFastForwarded
	d.DueAt = now
	d.PausedAt = time.Time{}
	return d, nil
}

// Tick executes the delay if it is waiting and due. It reports whether the
// delay transitioned. Ticking a paused or terminal delay is not an error.
func (DelayEngine) Tick(d ir.Delay, now time.Time) (ir.Delay, bool) {
	if d.State != ir.DelayScheduled && d.State != ir.DelayFastForwarded {
		return d, false
	}
	if now.Before(d.DueAt) {
		return d, false
	}
	d.State = ir.DelayExecuted
	d.EndedAt = now
	return d, true
}

// Stop ends a non-terminal delay without executing it.
func (DelayEngine) Stop(d ir.Delay, now time.Time) (ir.Delay, error) {
	if d.State.Terminal() {
		return d, NewInvalidStateError(KindDelay, d.ID, "stop", d.State)
	}
	d.State = ir.DelayStopped
	d.PausedAt = time.Time{}
	d.EndedAt = now
	return d, nil
}
