package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure returned by the browser core
type Kind string

const (
	KindUnknown        Kind = ""
	LaunchFailure      Kind = "launch_failure"
	PersistenceFailure Kind = "persistence_failure"
	NotFound           Kind = "not_found"
	AttachFailure      Kind = "attach_failure"
	NavigationFailure  Kind = "navigation_failure"
	// InvalidInput is a caller error such as a malformed session name
	InvalidInput Kind = "invalid_input"
)

// Error is a classified failure with an optional operator hint
type Error struct {
	Kind     Kind
	Op       string
	Message  string
	Guidance string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a failure without an underlying cause
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap attaches a kind to an underlying error
func Wrap(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// WithGuidance returns the error with an operator hint set
func (e *Error) WithGuidance(guidance string) *Error {
	e.Guidance = guidance
	return e
}

// KindOf returns the kind of the first failure in the chain
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// GuidanceOf returns the operator hint attached to err, if any
func GuidanceOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Guidance
	}
	return ""
}
