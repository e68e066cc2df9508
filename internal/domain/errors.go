package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies failures.
type ErrorKind string

const (
	KindUnsupported ErrorKind = "UnsupportedConversion"
	KindUnavailable ErrorKind = "EngineUnavailable"
	KindFailed      ErrorKind = "ConversionFailed"
	KindTimedOut    ErrorKind = "ConversionTimedOut"
	KindUnreadable  ErrorKind = "UnreadableFile"
)

// Error is a classified error.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

var (
	ErrUnsupportedConversion = &Error{Kind: KindUnsupported}
	ErrEngineUnavailable     = &Error{Kind: KindUnavailable}
	ErrConversionFailed      = &Error{Kind: KindFailed}
	ErrConversionTimedOut    = &Error{Kind: KindTimedOut}
	ErrUnreadableFile        = &Error{Kind: KindUnreadable}
)

func Unsupported(msg string) error { return &Error{Kind: KindUnsupported, Message: msg} }

func Unavailable(msg string, err error) error {
	return &Error{Kind: KindUnavailable, Message: msg, Err: err}
}

func Failed(msg string, err error) error { return &Error{Kind: KindFailed, Message: msg, Err: err} }

func TimedOut(msg string, err error) error {
	return &Error{Kind: KindTimedOut, Message: msg, Err: err}
}

func Unreadable(msg string, err error) error {
	return &Error{Kind: KindUnreadable, Message: msg, Err: err}
}

// KindOf returns the kind of err. Deadline errors count as timeouts and
// anything unclassified as a conversion failure.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimedOut
	}
	return KindFailed
}
