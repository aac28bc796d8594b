// Package errs provides the classified error taxonomy used across the
// retrieval engine. Components never panic or use exceptions for control
// flow; every fallible operation returns a *Error carrying a Code drawn from
// this package's fixed set of classes.
package errs

import (
	"errors"
	"fmt"
)

// Code classifies an error into one of the categories the engine and its
// callers reason about uniformly.
type Code string

const (
	// NotFound indicates a requested record does not exist.
	NotFound Code = "NOT_FOUND"
	// EmbeddingNotReady indicates the embedding service has not finished loading.
	EmbeddingNotReady Code = "EMBEDDING_NOT_READY"
	// Embedding indicates an inference failure inside the embedding engine.
	Embedding Code = "EMBEDDING"
	// Database indicates a failure from the underlying datastore.
	Database Code = "DATABASE"
	// IO indicates a file read/path failure.
	IO Code = "IO"
	// InvalidPath indicates a path failed validation at a boundary.
	InvalidPath Code = "INVALID_PATH"
	// InvalidInput indicates malformed caller-supplied input (e.g. a record ID).
	InvalidInput Code = "INVALID_INPUT"
	// Indexing marks an aggregate indexing failure on an IndexStatus.
	Indexing Code = "INDEXING"
	// Internal is the catch-all for states that should be impossible.
	Internal Code = "INTERNAL"
)

// Error is the structured error type threaded through every package.
// Library code returns *Error to the orchestrator; the transport layer
// wraps every *Error into a {"error": "..."} payload rather than failing
// the request stream (spec.md §7 propagation policy).
type Error struct {
	Code       Code
	Message    string
	Cause      error
	Retryable  bool
	Details    map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by code, so errors.Is(err, errs.New(errs.NotFound, "", nil)) works
// without comparing messages or causes.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail attaches a key-value pair of context and returns e for chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates an Error with the retryable flag derived from the code.
func New(code Code, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: defaultRetryable(code),
	}
}

// Wrap lifts a plain error into the given class, preserving its message as
// the cause chain. Returns nil if err is nil, so call sites can write
// `return errs.Wrap(errs.IO, err)` unconditionally after a fallible call.
func Wrap(code Code, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

func defaultRetryable(code Code) bool {
	switch code {
	case EmbeddingNotReady, Database, IO:
		return true
	default:
		return false
	}
}

// CodeOf extracts the Code from err, or "" if err is not (or does not wrap) an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether err carries the Retryable flag.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
