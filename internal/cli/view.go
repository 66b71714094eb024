package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/roach88/agreement/internal/ir"
)

// ActionView is the JSON form of an action.
type ActionView struct {
	ID             string `json:"id"`
	Submitter      string `json:"submitter"`
	Payload        string `json:"payload"`
	State          string `json:"state"`
	DelayID        string `json:"delay_id,omitempty"`
	ChallengeID    string `json:"challenge_id,omitempty"`
	ChallengeCount int    `json:"challenge_count"`
	SubmittedAt    string `json:"submitted_at"`
	ClosedAt       string `json:"closed_at,omitempty"`
}

// DelayView is the JSON form of a delay. Remaining is evaluated at the
// time of the command.
type DelayView struct {
	ID          string `json:"id"`
	ActionID    string `json:"action_id"`
	State       string `json:"state"`
	ScheduledAt string `json:"scheduled_at"`
	DueAt       string `json:"due_at"`
	PausedAt    string `json:"paused_at,omitempty"`
	EndedAt     string `json:"ended_at,omitempty"`
	Remaining   string `json:"remaining"`
}

// ChallengeView is the JSON form of a challenge.
type ChallengeView struct {
	ID         string `json:"id"`
	ActionID   string `json:"action_id"`
	Challenger string `json:"challenger"`
	Reason     string `json:"reason,omitempty"`
	State      string `json:"state"`
	Ruling     string `json:"ruling"`
	OpenedAt   string `json:"opened_at"`
	DisputedAt string `json:"disputed_at,omitempty"`
	ResolvedAt string `json:"resolved_at,omitempty"`
}

// AggregateView is the JSON form of an action with its delay and
// challenges.
type AggregateView struct {
	Action     ActionView      `json:"action"`
	Delay      *DelayView      `json:"delay,omitempty"`
	Challenges []ChallengeView `json:"challenges"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func actionView(a ir.Action) ActionView {
	return ActionView{
		ID:             a.ID,
		Submitter:      a.Submitter,
		Payload:        a.Payload,
		State:          a.State.String(),
		DelayID:        a.DelayID,
		ChallengeID:    a.ChallengeID,
		ChallengeCount: a.ChallengeCount,
		SubmittedAt:    formatTime(a.SubmittedAt),
		ClosedAt:       formatTime(a.ClosedAt),
	}
}

func delayView(d ir.Delay, now time.Time) DelayView {
	return DelayView{
		ID:          d.ID,
		ActionID:    d.ActionID,
		State:       d.State.String(),
		ScheduledAt: formatTime(d.ScheduledAt),
		DueAt:       formatTime(d.DueAt),
		PausedAt:    formatTime(d.PausedAt),
		EndedAt:     formatTime(d.EndedAt),
		Remaining:   d.Remaining(now).String(),
	}
}

func challengeView(c ir.Challenge) ChallengeView {
	return ChallengeView{
		ID:         c.ID,
		ActionID:   c.ActionID,
		Challenger: c.Challenger,
		Reason:     c.Reason,
		State:      c.State.String(),
		Ruling:     c.Ruling.String(),
		OpenedAt:   formatTime(c.OpenedAt),
		DisputedAt: formatTime(c.DisputedAt),
		ResolvedAt: formatTime(c.ResolvedAt),
	}
}

func aggregateView(a ir.Aggregate, now time.Time) AggregateView {
	v := AggregateView{
		Action:     actionView(a.Action),
		Challenges: make([]ChallengeView, len(a.Challenges)),
	}
	if a.Delay != nil {
		d := delayView(*a.Delay, now)
		v.Delay = &d
	}
	for i, c := range a.Challenges {
		v.Challenges[i] = challengeView(c)
	}
	return v
}

// writeAggregate prints an aggregate for humans.
func writeAggregate(w io.Writer, a ir.Aggregate, now time.Time, verbose bool) {
	act := a.Action
	fmt.Fprintf(w, "Action %s  %s\n", act.ID, act.State)
	fmt.Fprintf(w, "  Submitter: %s\n", act.Submitter)
	fmt.Fprintf(w, "  Payload:   %s\n", act.Payload)
	if verbose {
		fmt.Fprintf(w, "  Submitted: %s\n", formatTime(act.SubmittedAt))
		if !act.ClosedAt.IsZero() {
			fmt.Fprintf(w, "  Closed:    %s\n", formatTime(act.ClosedAt))
		}
	}
	if a.Delay != nil {
		writeDelay(w, *a.Delay, now)
	}
	for i, c := range a.Challenges {
		fmt.Fprintf(w, "  Challenge #%d %s  %s  ruling=%s  by %s", i+1, c.ID, c.State, c.Ruling, c.Challenger)
		if c.Reason != "" {
			fmt.Fprintf(w, ": %s", c.Reason)
		}
		fmt.Fprintln(w)
	}
}

func writeDelay(w io.Writer, d ir.Delay, now time.Time) {
	fmt.Fprintf(w, "  Delay %s  %s  due %s", d.ID, d.State, formatTime(d.DueAt))
	if !d.State.Terminal() {
		fmt.Fprintf(w, "  (remaining %s)", d.Remaining(now))
	}
	fmt.Fprintln(w)
}
