package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// CodeInvalidAction indicates a malformed submission.
	CodeInvalidAction ErrorCode = "INVALID_ACTION"

	// CodeNotFound indicates an unknown identifier.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeInvalidState indicates the operation is not legal from the
	// entity's current state.
	CodeInvalidState ErrorCode = "INVALID_STATE"

	// CodeInvalidRuling indicates a MISSING or undefined ruling where a
	// resolving ruling is required.
	CodeInvalidRuling ErrorCode = "INVALID_RULING"
)

// Error is returned for every rejected transition. A rejected transition
// leaves all state unchanged.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Kind is the entity kind ("action", "delay", "challenge"), if any.
	Kind string

	// ID identifies the affected entity, if any.
	ID string

	// Details contains additional context.
	Details map[string]string
}

// Sentinel errors for use with errors.Is.
var (
	ErrInvalidAction = &Error{Code: CodeInvalidAction}
	ErrNotFound      = &Error{Code: CodeNotFound}
	ErrInvalidState  = &Error{Code: CodeInvalidState}
	ErrInvalidRuling = &Error{Code: CodeInvalidRuling}
)

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.ID != "" {
		fmt.Fprintf(&b, " (%s=%s)", e.Kind, e.ID)
	}
	return b.String()
}

// Is matches any *Error with the same code, so errors.Is(err,
// ErrInvalidState) works for every invalid-state error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// DetailString renders Details in key order for logs and CLI output.
func (e *Error) DetailString() string {
	if len(e.Details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + e.Details[k]
	}
	return strings.Join(parts, " ")
}

// CodeOf returns the code of an engine error, or "" for any other error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsInvalidAction reports whether err is an INVALID_ACTION error.
func IsInvalidAction(err error) bool { return CodeOf(err) == CodeInvalidAction }

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsInvalidState reports whether err is an INVALID_STATE error.
func IsInvalidState(err error) bool { return CodeOf(err) == CodeInvalidState }

// IsInvalidRuling reports whether err is an INVALID_RULING error.
func IsInvalidRuling(err error) bool { return CodeOf(err) == CodeInvalidRuling }

// NewInvalidActionError creates an error for a malformed submission.
func NewInvalidActionError(field, reason string) *Error {
	return &Error{
		Code:    CodeInvalidAction,
		Message: fmt.Sprintf("%s %s", field, reason),
		Details: map[string]string{"field": field},
	}
}

// NewNotFoundError creates an error for an unknown identifier.
func NewNotFoundError(kind, id string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("unknown %s", kind),
		Kind:    kind,
		ID:      id,
	}
}

// NewInvalidStateError creates an error for an operation that is not legal
// from the entity's current state.
func NewInvalidStateError(kind, id, op string, state fmt.Stringer) *Error {
	return &Error{
		Code:    CodeInvalidState,
		Message: fmt.Sprintf("cannot %s %s in state %s", op, kind, state),
		Kind:    kind,
		ID:      id,
		Details: map[string]string{
			"op":    op,
			"state": state.String(),
		},
	}
}

// NewInvalidRulingError creates an error for a non-resolving ruling.
func NewInvalidRulingError(challengeID string, ruling fmt.Stringer) *Error {
	return &Error{
		Code:    CodeInvalidRuling,
		Message: fmt.Sprintf("ruling %s does not resolve a dispute", ruling),
		Kind:    KindChallenge,
		ID:      challengeID,
		Details: map[string]string{"ruling": ruling.String()},
	}
}
