// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package inference

import "errors"

// ErrorKind categorizes session errors for handling.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotRunning
	KindTimeout
	KindModelNotFound
	KindInvalidResponse
	KindClosed
	KindStartup
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotRunning:
		return "not running"
	case KindTimeout:
		return "timeout"
	case KindModelNotFound:
		return "model not found"
	case KindInvalidResponse:
		return "invalid response"
	case KindClosed:
		return "closed"
	case KindStartup:
		return "startup"
	default:
		return "unknown"
	}
}

// Error is returned by sessions.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrClosed)
// works for errors that carry extra context.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Cause == nil && t.Kind == e.Kind
}

// Sentinel errors for errors.Is checks. Their empty message matches every
// error of the kind.
var (
	ErrNotRunning    = &Error{Kind: KindNotRunning}
	ErrTimeout       = &Error{Kind: KindTimeout}
	ErrModelNotFound = &Error{Kind: KindModelNotFound}
	ErrClosed        = &Error{Kind: KindClosed}
)

// NewError builds an *Error with a fixed message.
func NewError(kind ErrorKind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Closed returns the error reported by a session used after Close.
func Closed() error {
	return &Error{Kind: KindClosed, Message: "inference session is closed"}
}

// KindOf returns the kind of err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsModelNotFound reports whether err is a missing-model error.
func IsModelNotFound(err error) bool { return KindOf(err) == KindModelNotFound }

// IsNotRunning reports whether the backend server is unreachable.
func IsNotRunning(err error) bool { return KindOf(err) == KindNotRunning }

// IsTimeout reports whether err is a timeout.
func IsTimeout(err error) bool { return KindOf(err) == KindTimeout }

// IsClosed reports whether err came from a released session.
func IsClosed(err error) bool { return KindOf(err) == KindClosed }
