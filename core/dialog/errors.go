package dialog

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyActive is returned by Start when the conversation already has a dialog frame.
	ErrAlreadyActive = errors.New("dialog: already active")
	// ErrNoActiveDialog is returned by Continue when the conversation is idle.
	ErrNoActiveDialog = errors.New("dialog: no active dialog")
	// ErrUnknownDialog is returned for dialog ids that were never registered.
	ErrUnknownDialog = errors.New("dialog: unknown dialog")
	// ErrDuplicateDialog is returned when a dialog id is registered twice.
	ErrDuplicateDialog = errors.New("dialog: duplicate dialog id")
)

// ValidationError reports user input rejected by a step validator.
// The engine recovers from it by re-prompting; it never leaves Continue.
type ValidationError struct {
	Step   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Step == "" {
		return "dialog: invalid input: " + e.Reason
	}
	return fmt.Sprintf("dialog: invalid input for step %s: %s", e.Step, e.Reason)
}

// Invalid builds a ValidationError for use inside Validate functions.
func Invalid(reason string) error {
	return &ValidationError{Reason: reason}
}
