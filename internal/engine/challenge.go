package engine

import (
	"strings"
	"time"

	"github.com/roach88/agreement/internal/ir"
)

// ChallengeData describes a challenge raised against an action.
type ChallengeData struct {
	Challenger string
	Reason     string
}

// ChallengeEngine implements the challenge state machine:
//
//	WAITING --settle--> SETTLED
//	WAITING --dispute--> DISPUTED --applyRuling--> ACCEPTED | REJECTED | VOIDED
//
// Like DelayEngine, methods never modify their input.
type ChallengeEngine struct {
	ids IDGenerator
}

// NewChallengeEngine creates a challenge engine that names new challenges
// with ids.
func NewChallengeEngine(ids IDGenerator) ChallengeEngine {
	return ChallengeEngine{ids: ids}
}

// Open creates a WAITING challenge against action.
func (e ChallengeEngine) Open(action ir.Action, data ChallengeData, now time.Time) (ir.Challenge, error) {
	if err := validateIdentity("challenger", data.Challenger); err != nil {
		return ir.Challenge{}, err
	}
	return ir.Challenge{
		ID:         e.ids.Generate(KindChallenge),
		ActionID:   action.ID,
		Challenger: strings.TrimSpace(data.Challenger),
		Reason:     data.Reason,
		State:      ir.ChallengeWaiting,
		Ruling:     ir.RulingMissing,
		OpenedAt:   now,
	}, nil
}

// Settle resolves a WAITING challenge without arbitration.
func (ChallengeEngine) Settle(c ir.Challenge, now time.Time) (ir.Challenge, error) {
	if c.State != ir.ChallengeWaiting {
		return c, NewInvalidStateError(KindChallenge, c.ID, "settle", c.State)
	}
	c.State = ir.ChallengeSettled
	c.ResolvedAt = now
	return c, nil
}

// Dispute escalates a WAITING challenge and attaches a MISSING ruling
// placeholder pending the arbitrator's answer.
func (ChallengeEngine) Dispute(c ir.Challenge, now time.Time) (ir.Challenge, error) {
	if c.State != ir.ChallengeWaiting {
		return c, NewInvalidStateError(KindChallenge, c.ID, "dispute", c.State)
	}
	c.State = ir.ChallengeDisputed
	c.Ruling = ir.RulingMissing
	c.DisputedAt = now
	return c, nil
}

// ApplyRuling resolves a DISPUTED challenge:
//
//	IN_FAVOR_OF_CHALLENGER -> ACCEPTED
//	IN_FAVOR_OF_SUBMITTER  -> REJECTED
//	REFUSED                -> VOIDED
//
// A refusal voids the challenge rather than favoring either side.
func (ChallengeEngine) ApplyRuling(c ir.Challenge, ruling ir.Ruling, now time.Time) (ir.Challenge, error) {
	if c.State != ir.ChallengeDisputed {
		return c, NewInvalidStateError(KindChallenge, c.ID, "apply ruling to", c.State)
	}
	var next ir.ChallengeState
	switch ruling {
	case ir.RulingInFavorOfChallenger:
		next = ir.ChallengeAccepted
	case ir.RulingInFavorOfSubmitter:
		next = ir.ChallengeRejected
	case ir.RulingRefused:
		next = ir.ChallengeVoided
	default:
		return c, NewInvalidRulingError(c.ID, ruling)
	}
	c.State = next
	c.Ruling = ruling
	c.ResolvedAt = now
	return c, nil
}
