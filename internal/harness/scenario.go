package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/agreement/internal/ir"
)

// Scenario defines a conformance test scenario.
// Scenarios drive the lifecycle manager through a timed sequence of
// operations and assert on the resulting trace and final stored state.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Epoch is the RFC 3339 time that step offsets count from.
	// Defaults to testutil.Epoch.
	Epoch string `yaml:"epoch,omitempty"`

	// Steps run in order against a fresh manager and store.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one operation on the manager.
//
// Identifiers are deterministic in scenarios: the first action is
// "action-1", its delay "delay-1", the first challenge "challenge-1".
type Step struct {
	// Op is the operation name, see the Op constants.
	Op string `yaml:"op"`

	// At moves the clock to epoch + At seconds before the step runs.
	// Omitted keeps the clock where it is.
	At *int64 `yaml:"at,omitempty"`

	// Action is the target action ID. Delay operations act on its delay
	// and challenge operations on its current challenge.
	Action string `yaml:"action,omitempty"`

	// Challenge overrides the target challenge.
	Challenge string `yaml:"challenge,omitempty"`

	// Args holds operation arguments:
	//   submit:         submitter, payload, delay
	//   challenge:      challenger, reason
	//   rule:           ruling (name or integer code)
	//   schedule_delay: delay
	// Durations are Go duration strings or integer seconds.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect checks the outcome. Without it the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the outcome of a step. Only the fields given are
// checked. State fields are checked on the target action's aggregate after
// the step, whether or not it failed.
type Expect struct {
	// Error is the expected error code, e.g. INVALID_STATE.
	Error string `yaml:"error,omitempty"`

	ActionState    string `yaml:"action_state,omitempty"`
	DelayState     string `yaml:"delay_state,omitempty"`
	ChallengeState string `yaml:"challenge_state,omitempty"`
	Ruling         string `yaml:"ruling,omitempty"`

	// DueAt is the delay due time in seconds after the epoch.
	DueAt *int64 `yaml:"due_at,omitempty"`

	// Remaining is the delay's remaining wait in seconds at step time.
	Remaining *int64 `yaml:"remaining,omitempty"`

	// Challenges is the number of challenges raised so far.
	Challenges *int `yaml:"challenges,omitempty"`
}

// Step operations.
const (
	OpSubmit             = "submit"
	OpChallenge          = "challenge"
	OpSettle             = "settle"
	OpDispute            = "dispute"
	OpRequestArbitration = "request_arbitration"
	OpRule               = "rule"
	OpResolve            = "resolve"
	OpClose              = "close"
	OpScheduleDelay      = "schedule_delay"
	OpPause              = "pause"
	OpResume             = "resume"
	OpFastForward        = "fast_forward"
	OpStop               = "stop"
	OpTick               = "tick"
	OpTickAll            = "tick_all"
)

var knownOps = map[string]bool{
	OpSubmit: true, OpChallenge: true, OpSettle: true, OpDispute: true,
	OpRequestArbitration: true, OpRule: true, OpResolve: true, OpClose: true,
	OpScheduleDelay: true, OpPause: true, OpResume: true, OpFastForward: true,
	OpStop: true, OpTick: true, OpTickAll: true,
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": An event of kind Event (optionally for Action,
	//   optionally ending in state To) was committed
	// - "trace_order": Events appear in this order, gaps allowed
	// - "trace_count": Event appears exactly Count times
	// - "final_state": Query table and verify expected values
	Type string `yaml:"type"`

	// Event is the event kind (used by trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Action restricts trace_contains to one action.
	Action string `yaml:"action,omitempty"`

	// To restricts trace_contains to events ending in this state name.
	To string `yaml:"to,omitempty"`

	// Events is the expected event order (used by trace_order).
	Events []string `yaml:"events,omitempty"`

	// Count is the expected number of occurrences (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Table is the store table name (used by final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (used by final_state).
	// All fields must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (used by final_state).
	// Subset match - only specified fields are validated. State and ruling
	// columns may be given by name.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// epoch returns the scenario epoch, or the zero time for the default.
func (s *Scenario) epoch() (time.Time, error) {
	if s.Epoch == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s.Epoch)
	if err != nil {
		return time.Time{}, fmt.Errorf("epoch: %w", err)
	}
	return t, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := s.epoch(); err != nil {
		return err
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	var last int64
	for i, step := range s.Steps {
		step := step
		if err := validateStep(i, &step); err != nil {
			return err
		}
		if step.At != nil {
			if *step.At < last {
				return fmt.Errorf("steps[%d]: at %d is before previous step at %d", i, *step.At, last)
			}
			last = *step.At
		}
	}

	for i, assertion := range s.Assertions {
		assertion := assertion
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step) error {
	if step.Op == "" {
		return fmt.Errorf("steps[%d]: op is required", index)
	}
	if !knownOps[step.Op] {
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}
	if step.Op != OpSubmit && step.Op != OpTickAll && step.Action == "" && step.Challenge == "" {
		return fmt.Errorf("steps[%d]: action is required for %s", index, step.Op)
	}
	if step.At != nil && *step.At < 0 {
		return fmt.Errorf("steps[%d]: at must be non-negative", index)
	}
	if e := step.Expect; e != nil {
		checks := []struct {
			field string
			name  string
			parse func(string) error
		}{
			{"action_state", e.ActionState, func(n string) error { _, err := ir.ParseActionState(n); return err }},
			{"delay_state", e.DelayState, func(n string) error { _, err := ir.ParseDelayState(n); return err }},
			{"challenge_state", e.ChallengeState, func(n string) error { _, err := ir.ParseChallengeState(n); return err }},
			{"ruling", e.Ruling, func(n string) error { _, err := ir.ParseRuling(n); return err }},
		}
		for _, c := range checks {
			if c.name == "" {
				continue
			}
			if err := c.parse(c.name); err != nil {
				return fmt.Errorf("steps[%d].expect.%s: %w", index, c.field, err)
			}
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
