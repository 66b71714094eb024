package ir

import "fmt"

// ActionState is the lifecycle state of an action.
type ActionState int

const (
	ActionSubmitted  ActionState = 0
	ActionChallenged ActionState = 1
	ActionClosed     ActionState = 2
)

// DelayState is the lifecycle state of a delay.
type DelayState int

const (
	DelayScheduled     DelayState = 0
	DelayPaused        DelayState = 1
	DelayFastForwarded DelayState = 2
	DelayExecuted      DelayState = 3
	DelayStopped       DelayState = 4
)

// ChallengeState is the lifecycle state of a challenge.
type ChallengeState int

const (
	ChallengeWaiting  ChallengeState = 0
	ChallengeSettled  ChallengeState = 1
	ChallengeDisputed ChallengeState = 2
	ChallengeRejected ChallengeState = 3
	ChallengeAccepted ChallengeState = 4
	ChallengeVoided   ChallengeState = 5
)

// Ruling is the outcome supplied by an arbitrator for a disputed challenge.
//
// Code 1 is reserved and has no name. It must not be reassigned.
type Ruling int

const (
	RulingMissing             Ruling = 0
	RulingRefused             Ruling = 2
	RulingInFavorOfSubmitter  Ruling = 3
	RulingInFavorOfChallenger Ruling = 4
)

var actionStateNames = map[ActionState]string{
	ActionSubmitted:  "SUBMITTED",
	ActionChallenged: "CHALLENGED",
	ActionClosed:     "CLOSED",
}

var delayStateNames = map[DelayState]string{
	DelayScheduled:     "SCHEDULED",
	DelayPaused:        "PAUSED",
	DelayFastForwarded: "FAST_FORWARDED",
	DelayExecuted:      "EXECUTED",
	DelayStopped:       "STOPPED",
}

var challengeStateNames = map[ChallengeState]string{
	ChallengeWaiting:  "WAITING",
	ChallengeSettled:  "SETTLED",
	ChallengeDisputed: "DISPUTED",
	ChallengeRejected: "REJECTED",
	ChallengeAccepted: "ACCEPTED",
	ChallengeVoided:   "VOIDED",
}

var rulingNames = map[Ruling]string{
	RulingMissing:             "MISSING",
	RulingRefused:             "REFUSED",
	RulingInFavorOfSubmitter:  "IN_FAVOR_OF_SUBMITTER",
	RulingInFavorOfChallenger: "IN_FAVOR_OF_CHALLENGER",
}

func (s ActionState) String() string {
	if name, ok := actionStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ActionState(%d)", int(s))
}

func (s DelayState) String() string {
	if name, ok := delayStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("DelayState(%d)", int(s))
}

func (s ChallengeState) String() string {
	if name, ok := challengeStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ChallengeState(%d)", int(s))
}

func (r Ruling) String() string {
	if name, ok := rulingNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Ruling(%d)", int(r))
}

// Valid reports whether s is a defined action state code.
func (s ActionState) Valid() bool {
	_, ok := actionStateNames[s]
	return ok
}

// Valid reports whether s is a defined delay state code.
func (s DelayState) Valid() bool {
	_, ok := delayStateNames[s]
	return ok
}

// Valid reports whether s is a defined challenge state code.
func (s ChallengeState) Valid() bool {
	_, ok := challengeStateNames[s]
	return ok
}

// Valid reports whether r is a defined ruling code. The reserved code 1 is
// not valid.
func (r Ruling) Valid() bool {
	_, ok := rulingNames[r]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s ActionState) Terminal() bool {
	return s == ActionClosed
}

// Terminal reports whether s is EXECUTED or STOPPED. PAUSED and
// FAST_FORWARDED only modify the waiting period.
func (s DelayState) Terminal() bool {
	return s == DelayExecuted || s == DelayStopped
}

// Terminal reports whether s is SETTLED, REJECTED, ACCEPTED or VOIDED.
func (s ChallengeState) Terminal() bool {
	switch s {
	case ChallengeSettled, ChallengeRejected, ChallengeAccepted, ChallengeVoided:
		return true
	default:
		return false
	}
}

// FavorsSubmitter reports whether a terminal challenge outcome returns the
// action to the executable path.
func (s ChallengeState) FavorsSubmitter() bool {
	switch s {
	case ChallengeSettled, ChallengeRejected, ChallengeVoided:
		return true
	default:
		return false
	}
}

// Resolving reports whether r is a ruling that can resolve a dispute.
// MISSING only marks a pending request.
func (r Ruling) Resolving() bool {
	return r != RulingMissing && r.Valid()
}

// ParseActionState parses the upper-case name of an action state.
func ParseActionState(name string) (ActionState, error) {
	for s, n := range actionStateNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown action state %q", name)
}

// ParseDelayState parses the upper-case name of a delay state.
func ParseDelayState(name string) (DelayState, error) {
	for s, n := range delayStateNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown delay state %q", name)
}

// ParseChallengeState parses the upper-case name of a challenge state.
func ParseChallengeState(name string) (ChallengeState, error) {
	for s, n := range challengeStateNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown challenge state %q", name)
}

// ParseRuling parses the upper-case name of a ruling.
func ParseRuling(name string) (Ruling, error) {
	for r, n := range rulingNames {
		if n == name {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown ruling %q", name)
}

func (s ActionState) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid action state code %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *ActionState) UnmarshalText(text []byte) error {
	v, err := ParseActionState(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s DelayState) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid delay state code %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *DelayState) UnmarshalText(text []byte) error {
	v, err := ParseDelayState(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s ChallengeState) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid challenge state code %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *ChallengeState) UnmarshalText(text []byte) error {
	v, err := ParseChallengeState(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (r Ruling) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid ruling code %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Ruling) UnmarshalText(text []byte) error {
	v, err := ParseRuling(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
