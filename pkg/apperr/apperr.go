// Package apperr defines the error kinds shared across airproject packages.
package apperr

import (
	"github.com/pkg/errors"
)

// Kind classifies an error so callers can decide whether it is fatal.
type Kind string

const (
	Unknown           Kind = ""
	NotFound          Kind = "not found"
	AlreadyExists     Kind = "already exists"
	UnknownTool       Kind = "unknown tool"
	InvalidArguments  Kind = "invalid arguments"
	ProviderError     Kind = "provider error"
	MalformedResponse Kind = "malformed response"
	NotInitialized    Kind = "not initialized"
	Config            Kind = "configuration error"
	TurnLimit         Kind = "turn limit"
)

// Error carries a Kind alongside the underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Cause supports errors.Cause from github.com/pkg/errors.
func (e *Error) Cause() error { return e.Err }

// New returns an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: errors.Errorf(format, args...)}
}

// Wrap annotates err with a message and tags it with kind.
// A nil err yields nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: errors.Wrapf(err, format, args...)}
}

// KindOf returns the kind of the outermost tagged error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
