// Package store provides SQLite-backed durable storage for action
// aggregates and their event log.
//
// The store holds:
//   - Actions: one row per action, with the digest of its whole aggregate
//   - Delays: at most one per action
//   - Challenges: every challenge raised against an action, in order
//   - Events: the append-only log of committed transitions
//
// # Invariants
//
// Atomic commits
//   - Record writes an aggregate and its events in one transaction
//   - A failed Record leaves no trace, and the engine keeps its old snapshot
//
// Logical ordering
//   - Events are ordered by seq INTEGER (logical clock), never timestamps
//   - Event IDs are content-addressed, so re-recording is a no-op
//
// Wire codes
//   - State and ruling columns hold the integer codes, with CHECK
//     constraints that reject undefined codes, including ruling 1
//   - Timestamps are Unix nanoseconds; 0 means unset
//
// Integrity
//   - ReadAggregate verifies the stored digest (ir.AggregateDigest)
//   - VerifyLog recomputes every event ID and checks state chaining
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
