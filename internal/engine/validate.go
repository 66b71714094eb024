package engine

import (
	"strings"
	"time"
	"unicode"
)

// maxIdentityLen bounds submitter and challenger identities.
const maxIdentityLen = 256

// ActionData describes a submission.
type ActionData struct {
	// Submitter identifies who submitted the action.
	Submitter string

	// Payload is the opaque action body. It must be non-empty.
	Payload string

	// Delay, when positive, attaches a SCHEDULED delay due Delay after
	// submission.
	Delay time.Duration
}

// Validate checks that the submission is well-formed.
func (d ActionData) Validate() error {
	if err := validateIdentity("submitter", d.Submitter); err != nil {
		return err
	}
	if strings.TrimSpace(d.Payload) == "" {
		return NewInvalidActionError("payload", "must not be empty")
	}
	if d.Delay < 0 {
		return NewInvalidActionError("delay", "must not be negative")
	}
	return nil
}

// validateIdentity requires a non-empty, printable identity without
// interior whitespace.
func validateIdentity(field, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return NewInvalidActionError(field, "must not be empty")
	}
	if len(id) > maxIdentityLen {
		return NewInvalidActionError(field, "is too long")
	}
	for _, r := range id {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return NewInvalidActionError(field, "must not contain whitespace or control characters")
		}
	}
	return nil
}
