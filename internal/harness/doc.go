// Package harness runs conformance scenarios against the agreement
// lifecycle manager.
//
// A scenario drives a real engine.Manager, backed by an in-memory store,
// through a timed sequence of operations and then checks the committed
// event trace and the stored rows.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	steps:
//	  - op: submit
//	    at: 0
//	    args: { submitter: alice, payload: "transfer 10", delay: 10s }
//	  - op: pause
//	    at: 3
//	    action: action-1
//	    expect: { delay_state: PAUSED, remaining: 7 }
//	  - op: dispute
//	    action: action-1
//	    expect: { error: INVALID_STATE }
//	assertions:
//	  - type: trace_contains
//	    event: delay.executed
//	  - type: final_state
//	    table: actions
//	    where: { id: action-1 }
//	    expect: { state: CLOSED }
//
// at is whole seconds after the scenario epoch. Identifiers are sequential
// per kind, so the first action is always action-1.
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - trace_contains: Verifies an event kind appears in the trace
//   - trace_order: Verifies event kinds appear in specified order
//   - trace_count: Verifies an event kind appears exactly N times
//   - final_state: Queries a store table and verifies expected values
//
// # Deterministic Testing
//
// The harness uses:
//   - A deterministic clock (testutil.DeterministicClock)
//   - Sequential identifiers (engine.SequenceGenerator)
//   - A recording arbitrator that never answers on its own
//   - In-memory SQLite database (isolated per scenario)
//
// This ensures identical traces across runs for golden file comparison.
package harness
