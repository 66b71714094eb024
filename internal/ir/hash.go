package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows a future algorithm migration.
const (
	DomainEvent     = "agreement/event/v1"
	DomainAggregate = "agreement/aggregate/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalEvent returns the canonical map form of an event without its ID.
func CanonicalEvent(ev Event) map[string]any {
	m := map[string]any{
		"seq":       ev.Seq,
		"kind":      string(ev.Kind),
		"action_id": ev.ActionID,
		"from":      ev.From,
		"to":        ev.To,
		"ruling":    int(ev.Ruling),
		"at":        TimeToNanos(ev.At),
	}
	if ev.DelayID != "" {
		m["delay_id"] = ev.DelayID
	}
	if ev.ChallengeID != "" {
		m["challenge_id"] = ev.ChallengeID
	}
	return m
}

// EventID computes the content-addressed ID of an event. The ID field of
// ev is ignored.
func EventID(ev Event) (string, error) {
	canonical, err := MarshalCanonical(CanonicalEvent(ev))
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// CanonicalAggregate returns the canonical map form of an aggregate with
// every timestamp as Unix nanoseconds.
func CanonicalAggregate(a Aggregate) map[string]any {
	act := a.Action
	m := map[string]any{
		"action": map[string]any{
			"id":              act.ID,
			"submitter":       act.Submitter,
			"payload":         act.Payload,
			"state":           int(act.State),
			"delay_id":        act.DelayID,
			"challenge_id":    act.ChallengeID,
			"challenge_count": act.ChallengeCount,
			"submitted_at":    TimeToNanos(act.SubmittedAt),
			"closed_at":       TimeToNanos(act.ClosedAt),
		},
	}
	if a.Delay != nil {
		d := a.Delay
		m["delay"] = map[string]any{
			"id":           d.ID,
			"action_id":    d.ActionID,
			"state":        int(d.State),
			"scheduled_at": TimeToNanos(d.ScheduledAt),
			"due_at":       TimeToNanos(d.DueAt),
			"paused_at":    TimeToNanos(d.PausedAt),
			"ended_at":     TimeToNanos(d.EndedAt),
		}
	}
	challenges := make([]any, len(a.Challenges))
	for i, c := range a.Challenges {
		challenges[i] = map[string]any{
			"id":          c.ID,
			"action_id":   c.ActionID,
			"challenger":  c.Challenger,
			"reason":      c.Reason,
			"state":       int(c.State),
			"ruling":      int(c.Ruling),
			"opened_at":   TimeToNanos(c.OpenedAt),
			"disputed_at": TimeToNanos(c.DisputedAt),
			"resolved_at": TimeToNanos(c.ResolvedAt),
		}
	}
	m["challenges"] = challenges
	return m
}

// AggregateDigest hashes the canonical form of an aggregate. Two
// aggregates with identical state and timestamps have the same digest.
func AggregateDigest(a Aggregate) (string, error) {
	canonical, err := MarshalCanonical(CanonicalAggregate(a))
	if err != nil {
		return "", fmt.Errorf("AggregateDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainAggregate, canonical), nil
}

// MustEventID is like EventID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustEventID(ev Event) string {
	id, err := EventID(ev)
	if err != nil {
		panic(err)
	}
	return id
}
