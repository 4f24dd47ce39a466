package tutorial

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSession is returned by operations that need an open question.
	ErrNoSession = errors.New("no question is open")
	// ErrStepOutOfRange is returned by GoTo for indices outside [0, n-1].
	ErrStepOutOfRange = errors.New("step index out of range")
	// ErrAtFirstStep is returned by Previous on the first step.
	ErrAtFirstStep = errors.New("already at the first step")
	// ErrAtLastStep is returned by Next on the last step.
	ErrAtLastStep = errors.New("already at the last step")
	// ErrCheckInProgress is returned when a check or namespace verification
	// is already in flight for the same control.
	ErrCheckInProgress = errors.New("a check is already in progress")
	// ErrSessionClosed is returned by a check whose session was closed or
	// replaced before it settled.
	ErrSessionClosed = errors.New("question was closed before the check finished")
	// ErrNoQuestion is returned when a question has no steps.
	ErrNoQuestion = errors.New("question has no steps")
	// ErrEmptyNamespace is returned when verifying a blank namespace label.
	ErrEmptyNamespace = errors.New("namespace is empty")
	// ErrNotFirstStep is returned when namespace verification is requested
	// away from the first step.
	ErrNotFirstStep = errors.New("namespace verification is only available on the first step")
	// ErrEmptyCommand is returned for blank command text.
	ErrEmptyCommand = errors.New("command is empty")
	// ErrUnscoped is returned when a command is sent without a session and
	// unscoped execution is disabled.
	ErrUnscoped = errors.New("no session: unscoped commands are disabled")
)

// CatalogError reports a failed question list or fetch.
type CatalogError struct {
	QuestionID string // empty for list failures
	Err        error
}

func (e *CatalogError) Error() string {
	if e.QuestionID == "" {
		return fmt.Sprintf("list questions: %v", e.Err)
	}
	return fmt.Sprintf("load question %q: %v", e.QuestionID, e.Err)
}

func (e *CatalogError) Unwrap() error { return e.Err }

// SessionError reports a failed session creation. No session is open
// after it.
type SessionError struct {
	QuestionID string
	Err        error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("create session for %q: %v", e.QuestionID, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// BootstrapError reports a failed provisioning step. The session is open
// but may not be ready.
type BootstrapError struct {
	SessionID string
	Output    string
	ExitCode  int
	Err       error // nil when the command ran and exited non-zero
}

func (e *BootstrapError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bootstrap session %s: %v", e.SessionID, e.Err)
	}
	return fmt.Sprintf("bootstrap session %s: exit code %d", e.SessionID, e.ExitCode)
}

func (e *BootstrapError) Unwrap() error { return e.Err }

// ExecutionError reports a command that could not be delivered or whose
// response was not a success status.
type ExecutionError struct {
	Command string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %q: %v", e.Command, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ValidationError reports a check that could not be judged. It is distinct
// from a Verdict with Passed=false.
type ValidationError struct {
	Step int // 1-based
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate step %d: %v", e.Step, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
