package dialog

import (
	"errors"
	"fmt"
)

// ValidationError is the recoverable rejection of user input by a free-text
// check. The state re-prompts with Reprompt and the session does not advance.
type ValidationError struct {
	Reprompt string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("input rejected: %s", e.Reprompt)
}

// Validationf builds a ValidationError with a formatted reprompt.
func Validationf(format string, args ...any) error {
	return &ValidationError{Reprompt: fmt.Sprintf(format, args...)}
}

// AsValidation extracts a ValidationError, if err carries one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

// ErrUnknownState reports a transition to a state name missing from the
// dialog registry. Always a programming error in the dialog data.
var ErrUnknownState = errors.New("unknown dialog state")

// ErrTooManyHops guards the same-turn transition trampoline against cycles.
var ErrTooManyHops = errors.New("too many same-turn state transitions")
