package engine

import "context"

// DisputeContext is what the engine tells an arbitrator about a dispute.
type DisputeContext struct {
	ActionID   string
	Submitter  string
	Payload    string
	Challenger string
	Reason     string
}

// Arbitrator is the boundary to an external arbitration body. The engine
// only requests a ruling; the answer arrives later through
// Manager.ApplyRuling.
//
// RequestRuling is called with the aggregate locked and must not call back
// into the Manager for the same action.
type Arbitrator interface {
	RequestRuling(ctx context.Context, challengeID string, dispute DisputeContext) error
}

// ArbitratorFunc adapts a function to the Arbitrator interface.
type ArbitratorFunc func(ctx context.Context, challengeID string, dispute DisputeContext) error

// RequestRuling calls f.
func (f ArbitratorFunc) RequestRuling(ctx context.Context, challengeID string, dispute DisputeContext) error {
	return f(ctx, challengeID, dispute)
}

// NopArbitrator accepts every request and does nothing. Rulings are
// delivered by an operator through ApplyRuling.
type NopArbitrator struct{}

// RequestRuling does nothing.
func (NopArbitrator) RequestRuling(context.Context, string, DisputeContext) error {
	return nil
}
