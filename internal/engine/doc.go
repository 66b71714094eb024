// Package engine implements the agreement action lifecycle.
//
// The engine coordinates three linked state machines:
//
//	Action     SUBMITTED -> CHALLENGED -> SUBMITTED | CLOSED
//	Delay      SCHEDULED <-> PAUSED, -> FAST_FORWARDED -> EXECUTED | STOPPED
//	Challenge  WAITING -> SETTLED | DISPUTED -> REJECTED | ACCEPTED | VOIDED
//
// DelayEngine and ChallengeEngine are pure transition tables over ir
// records: they return a new record or an *Error and never mutate their
// input. Manager owns the records and composes the two engines.
//
// # Aggregate Locking
//
// An action, its delay and its challenges form one aggregate. Every
// transition on an aggregate runs under that aggregate's mutex, so a
// challenge can never race a delay tick. Committed state is published as
// an immutable snapshot through an atomic pointer; reads never take the
// aggregate lock.
//
// A transition is applied to a clone of the current snapshot. The clone is
// published only after the Recorder (if any) has persisted it together with
// the transition's events. A rejected transition leaves the snapshot
// untouched.
//
// # Time
//
// Wall-clock time comes from a Clock and is only used for due-time
// arithmetic. Events are ordered by a logical Sequencer, never by
// timestamp. Waiting for a due time is modeled as repeated ticks; nothing
// in the engine blocks on time. Scheduler drives ticks on an interval.
package engine
