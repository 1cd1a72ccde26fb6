package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies why a step or a teardown did not complete.
type Kind string

const (
	KindNone          Kind = ""
	KindTimeout       Kind = "StepTimeout"
	KindAssertion     Kind = "AssertionFailure"
	KindCollaborator  Kind = "CollaboratorError"
	KindTeardown      Kind = "TeardownFailure"
	KindUndefinedStep Kind = "UndefinedStep"
)

// StepTimeoutError is returned when a step exceeds its declared duration.
type StepTimeoutError struct {
	Step    string
	Timeout time.Duration
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("step %q did not finish within %s", e.Step, e.Timeout)
}

func (e *StepTimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// AssertionError means an expectation about a collaborator's result did not hold.
type AssertionError struct {
	Message string
	Err     error
}

func (e *AssertionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("assertion failed: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("assertion failed: %s", e.Message)
}

func (e *AssertionError) Unwrap() error {
	return e.Err
}

// CollaboratorError means the external call itself failed.
type CollaboratorError struct {
	Operation string
	Err       error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("while %s: %v", e.Operation, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// TeardownError carries the reason a suite teardown hook could not complete.
type TeardownError struct {
	Hook string
	Err  error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("teardown %q failed: %v", e.Hook, e.Err)
}

func (e *TeardownError) Unwrap() error {
	return e.Err
}

// UndefinedStepError is returned when no registered phrase matches a line.
type UndefinedStepError struct {
	Text string
}

func (e *UndefinedStepError) Error() string {
	return fmt.Sprintf("undefined step: %q", e.Text)
}

// Assertionf builds an AssertionError from a format string.
func Assertionf(format string, args ...any) error {
	return &AssertionError{Message: fmt.Sprintf(format, args...)}
}

// Assert wraps err as an AssertionError, returning nil for a nil err.
func Assert(err error, message string) error {
	if err == nil {
		return nil
	}
	var assertion *AssertionError
	if errors.As(err, &assertion) {
		return err
	}
	return &AssertionError{Message: message, Err: err}
}

// Collaborator wraps err as a CollaboratorError, returning nil for a nil err.
// Errors that are already classified are returned as they are.
func Collaborator(err error, operation string) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindNone {
		return err
	}
	return &CollaboratorError{Operation: operation, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var (
		timeout      *StepTimeoutError
		assertion    *AssertionError
		collaborator *CollaboratorError
		teardown     *TeardownError
		undefined    *UndefinedStepError
	)
	switch {
	case errors.As(err, &timeout):
		return KindTimeout
	case errors.As(err, &assertion):
		return KindAssertion
	case errors.As(err, &collaborator):
		return KindCollaborator
	case errors.As(err, &teardown):
		return KindTeardown
	case errors.As(err, &undefined):
		return KindUndefinedStep
	}
	return KindNone
}

// classify makes sure every error leaving a step carries a kind.
func classify(err error, step string) error {
	if err == nil || KindOf(err) != KindNone {
		return err
	}
	return &CollaboratorError{Operation: fmt.Sprintf("executing step %q", step), Err: err}
}
