// Package ir defines the wire vocabulary of the agreement lifecycle.
//
// This package contains the stable enumerations and the flat records that
// cross the persistence boundary. All other internal packages import ir;
// ir imports nothing internal.
//
// Key constraints:
//   - Enumeration codes are part of the wire contract and never renumbered.
//     Ruling code 1 is reserved and rejected on input.
//   - Records are flat and keyed by identifier. Timestamps are UTC with
//     nanosecond precision and no monotonic reading, so a record survives a
//     store round trip unchanged.
//   - Event ordering uses the logical seq, never the timestamp.
//   - All JSON tags use snake_case.
package ir
