package ir

import (
	"fmt"
	"strings"
	"time"
)

// Action is the flat record of an agreement action.
type Action struct {
	ID             string      `json:"id"`
	Submitter      string      `json:"submitter"`
	Payload        string      `json:"payload"`
	State          ActionState `json:"state"`
	DelayID        string      `json:"delay_id,omitempty"`     // empty when no delay is attached
	ChallengeID    string      `json:"challenge_id,omitempty"` // most recent challenge
	ChallengeCount int         `json:"challenge_count"`
	SubmittedAt    time.Time   `json:"submitted_at"`
	ClosedAt       time.Time   `json:"closed_at"` // zero until CLOSED
}

// Delay is the flat record of a timed delay attached to an action.
type Delay struct {
	ID          string     `json:"id"`
	ActionID    string     `json:"action_id"` // back-reference, not ownership
	State       DelayState `json:"state"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	DueAt       time.Time  `json:"due_at"`
	PausedAt    time.Time  `json:"paused_at"` // zero unless PAUSED
	EndedAt     time.Time  `json:"ended_at"`  // zero until EXECUTED or STOPPED
}

// Remaining returns the wait left on the delay as of now. A paused delay
// reports the remainder frozen at pause time.
func (d Delay) Remaining(now time.Time) time.Duration {
	if d.State.Terminal() {
		return 0
	}
	ref := now
	if d.State == DelayPaused {
		ref = d.PausedAt
	}
	if rem := d.DueAt.Sub(ref); rem > 0 {
		return rem
	}
	return 0
}

// Challenge is the flat record of a challenge raised against an action.
type Challenge struct {
	ID         string         `json:"id"`
	ActionID   string         `json:"action_id"` // back-reference, not ownership
	Challenger string         `json:"challenger"`
	Reason     string         `json:"reason"`
	State      ChallengeState `json:"state"`
	Ruling     Ruling         `json:"ruling"` // MISSING until a ruling is applied
	OpenedAt   time.Time      `json:"opened_at"`
	DisputedAt time.Time      `json:"disputed_at"` // zero unless disputed
	ResolvedAt time.Time      `json:"resolved_at"` // zero until terminal
}

// Aggregate is one consistency unit: an action with its delay and every
// challenge it has received, oldest first. The last challenge is the
// current one.
type Aggregate struct {
	Action     Action      `json:"action"`
	Delay      *Delay      `json:"delay,omitempty"`
	Challenges []Challenge `json:"challenges"`
}

// Current returns the most recent challenge, or nil.
func (a Aggregate) Current() *Challenge {
	if len(a.Challenges) == 0 {
		return nil
	}
	c := a.Challenges[len(a.Challenges)-1]
	return &c
}

// Clone returns a deep copy so an aggregate snapshot can be mutated
// without affecting readers of the original.
func (a Aggregate) Clone() Aggregate {
	out := Aggregate{Action: a.Action}
	if a.Delay != nil {
		d := *a.Delay
		out.Delay = &d
	}
	out.Challenges = make([]Challenge, len(a.Challenges))
	copy(out.Challenges, a.Challenges)
	return out
}

// EventKind names a committed transition.
type EventKind string

const (
	EventActionSubmitted   EventKind = "action.submitted"
	EventActionChallenged  EventKind = "action.challenged"
	EventActionResumed     EventKind = "action.resumed"
	EventActionClosed      EventKind = "action.closed"
	EventDelayScheduled    EventKind = "delay.scheduled"
	EventDelayPaused       EventKind = "delay.paused"
	EventDelayResumed      EventKind = "delay.resumed"
	EventDelayFastForward  EventKind = "delay.fast_forwarded"
	EventDelayExecuted     EventKind = "delay.executed"
	EventDelayStopped      EventKind = "delay.stopped"
	EventChallengeOpened   EventKind = "challenge.opened"
	EventChallengeSettled  EventKind = "challenge.settled"
	EventChallengeDisputed EventKind = "challenge.disputed"
	EventChallengeRuled    EventKind = "challenge.ruled"
)

// Event records one state transition of an aggregate.
//
// From and To carry the integer state codes of the entity named by Kind.
// Ruling is set only for challenge.disputed and challenge.ruled.
type Event struct {
	ID          string    `json:"id"` // content-addressed, see EventID
	Seq         int64     `json:"seq"`
	Kind        EventKind `json:"kind"`
	ActionID    string    `json:"action_id"`
	DelayID     string    `json:"delay_id,omitempty"`
	ChallengeID string    `json:"challenge_id,omitempty"`
	From        int       `json:"from"`
	To          int       `json:"to"`
	Ruling      Ruling    `json:"ruling"`
	At          time.Time `json:"at"`
}

// StateNames renders From and To using the state enum of the entity
// named by Kind.
func (e Event) StateNames() (from, to string) {
	switch {
	case strings.HasPrefix(string(e.Kind), "action."):
		return ActionState(e.From).String(), ActionState(e.To).String()
	case strings.HasPrefix(string(e.Kind), "delay."):
		return DelayState(e.From).String(), DelayState(e.To).String()
	case strings.HasPrefix(string(e.Kind), "challenge."):
		return ChallengeState(e.From).String(), ChallengeState(e.To).String()
	}
	return fmt.Sprint(e.From), fmt.Sprint(e.To)
}

// NormalizeTime strips the monotonic reading and location from t so that
// values compare equal after a round trip through integer nanoseconds.
// The zero time stays zero.
func NormalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return time.Unix(0, t.UnixNano()).UTC()
}

// TimeFromNanos is the inverse of TimeToNanos.
func TimeFromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// TimeToNanos encodes t as Unix nanoseconds, with 0 for the zero time.
func TimeToNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
