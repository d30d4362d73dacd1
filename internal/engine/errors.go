package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while applying a command.
//
// Runtime errors include:
//   - Invalid transition: the run state does not allow the command
//   - Unknown command: the command kind is not recognised
//   - Engine stopped: the loop is no longer accepting commands
//
// A RuntimeError never leaves state half-applied; the command was rejected
// as a whole.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Command is the kind of the rejected command.
	Command CommandKind

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeInvalidTransition indicates the run state does not allow the command.
	ErrCodeInvalidTransition RuntimeErrorCode = "INVALID_TRANSITION"

	// ErrCodeUnknownCommand indicates an unrecognised command kind.
	ErrCodeUnknownCommand RuntimeErrorCode = "UNKNOWN_COMMAND"

	// ErrCodeEngineStopped indicates the engine no longer accepts commands.
	ErrCodeEngineStopped RuntimeErrorCode = "ENGINE_STOPPED"
)

// ErrStopped is returned by Do and Enqueue once the engine has stopped.
var ErrStopped = &RuntimeError{Code: ErrCodeEngineStopped, Message: "engine stopped"}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("%s: %s (command=%s)", e.Code, e.Message, e.Command)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsInvalidTransition returns true if the error is an invalid transition.
// Uses errors.As to handle wrapped errors.
func IsInvalidTransition(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidTransition
	}
	return false
}

// IsStopped returns true if the engine had stopped.
func IsStopped(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeEngineStopped
	}
	return false
}

// NewTransitionError wraps a state machine rejection.
func NewTransitionError(kind CommandKind, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidTransition,
		Message: cause.Error(),
		Command: kind,
		Err:     cause,
	}
}

// NewUnknownCommandError reports an unrecognised command kind.
func NewUnknownCommandError(kind CommandKind) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownCommand,
		Message: "unknown command",
		Command: kind,
		Details: map[string]string{"kind": string(kind)},
	}
}
