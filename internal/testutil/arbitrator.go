package testutil

import (
	"context"
	"sync"

	"github.com/roach88/agreement/internal/engine"
)

// ArbitrationRequest is one call captured by RecordingArbitrator.
type ArbitrationRequest struct {
	ChallengeID string
	Dispute     engine.DisputeContext
}

// RecordingArbitrator captures ruling requests instead of sending them.
// Tests and scenarios then apply rulings explicitly.
//
// Set Err to make every request fail.
//
// Thread-safety: safe for concurrent use.
type RecordingArbitrator struct {
	mu       sync.Mutex
	requests []ArbitrationRequest
	Err      error
}

// RequestRuling records the request, or returns Err when set.
//
// Implements engine.Arbitrator.
func (a *RecordingArbitrator) RequestRuling(_ context.Context, challengeID string, dispute engine.DisputeContext) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return a.Err
	}
	a.requests = append(a.requests, ArbitrationRequest{ChallengeID: challengeID, Dispute: dispute})
	return nil
}

// Requests returns a copy of the captured requests in call order.
func (a *RecordingArbitrator) Requests() []ArbitrationRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ArbitrationRequest, len(a.requests))
	copy(out, a.requests)
	return out
}

// Reset discards captured requests.
func (a *RecordingArbitrator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = nil
}
