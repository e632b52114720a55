package browser

import (
	"errors"
	"fmt"
	"strings"
)

// Closed set of failure kinds for the provisioning chain. Callers branch on
// these with errors.Is instead of matching message strings.
var (
	ErrBinaryNotFound  = errors.New("no usable browser binary found")
	ErrFetchFailed     = errors.New("artifact fetch failed")
	ErrVersionMismatch = errors.New("driver version does not match browser")
	ErrLaunchFailed    = errors.New("browser failed to start")
	ErrSessionDead     = errors.New("browser session dead")
	ErrActionTimeout   = errors.New("browser action timed out")
)

// Error carries a failure kind together with the low-level cause and, for
// fetch failures, every URL that was attempted.
type Error struct {
	Kind      error // one of the sentinel kinds above
	Message   string
	Attempted []string // URLs tried, populated for fetch failures
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Attempted) > 0 {
		b.WriteString(fmt.Sprintf(" (attempted %s)", strings.Join(e.Attempted, ", ")))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func classify(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func fetchFailed(message string, attempted []string, cause error) *Error {
	return &Error{Kind: ErrFetchFailed, Message: message, Attempted: attempted, Err: cause}
}
