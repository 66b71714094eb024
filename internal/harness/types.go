package harness

// Trace entry types.
const (
	TraceCommitted = "event"
	TraceRejected  = "rejected"
)

// TraceEvent is one entry of a scenario trace: either a committed event or
// a step the engine rejected. Times are whole seconds after the scenario
// epoch and states are names, so traces read the way scenarios are
// written.
type TraceEvent struct {
	Type string `json:"type"` // "event" or "rejected"

	// Committed events.
	Seq       int64  `json:"seq,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Action    string `json:"action,omitempty"`
	Delay     string `json:"delay,omitempty"`
	Challenge string `json:"challenge,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Ruling    string `json:"ruling,omitempty"` // challenge events only
	At        int64  `json:"at"`

	// Rejected steps.
	Step int    `json:"step,omitempty"`
	Op   string `json:"op,omitempty"`
	Code string `json:"code,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step expectation and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains committed events and rejected steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Committed returns only the committed events of the trace.
func (r *Result) Committed() []TraceEvent {
	out := make([]TraceEvent, 0, len(r.Trace))
	for _, ev := range r.Trace {
		if ev.Type == TraceCommitted {
			out = append(out, ev)
		}
	}
	return out
}
