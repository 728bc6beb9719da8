package common

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a failure met while resolving a query.
type ErrorKind string

const (
	// KindExtraction is a malformed or unparseable intent. Terminal.
	KindExtraction ErrorKind = "extraction"
	// KindUpstream is a non-success answer from a lookup, embedding or
	// completion backend. Scoped to the single call that failed.
	KindUpstream ErrorKind = "upstream"
	// KindTimeout is a backend call that exceeded its bound.
	KindTimeout ErrorKind = "timeout"
	// KindValidationFallback marks a disambiguation that failed and defaulted
	// to the top ranked candidate. It is reported, never returned as an error.
	KindValidationFallback ErrorKind = "validation_fallback"
)

var (
	ErrExtraction = errors.New("extraction failed")
	ErrUpstream   = errors.New("upstream request failed")
	ErrTimeout    = errors.New("upstream request timed out")
)

// Error is the structured failure attached to results and batch entries.
type Error struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Detail    string    `json:"detail,omitempty"`
	RawOutput string    `json:"raw_output,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes both the kind sentinel and the underlying cause so that
// errors.Is works against either.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	switch e.Kind {
	case KindExtraction:
		errs = append(errs, ErrExtraction)
	case KindUpstream:
		errs = append(errs, ErrUpstream)
	case KindTimeout:
		errs = append(errs, ErrTimeout)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// NewExtractionError wraps an unusable completion output.
func NewExtractionError(raw string, cause error) *Error {
	e := &Error{
		Kind:      KindExtraction,
		Message:   "Failed to parse LLM response",
		RawOutput: raw,
		cause:     cause,
	}
	if cause != nil {
		e.Detail = cause.Error()
	}
	return e
}

// NewUpstreamError builds an upstream failure with the given message.
func NewUpstreamError(message string, cause error) *Error {
	e := &Error{Kind: KindUpstream, Message: message, cause: cause}
	if cause != nil {
		e.Detail = cause.Error()
	}
	return e
}

// NewTimeoutError builds a timeout failure with the given message.
func NewTimeoutError(message string, cause error) *Error {
	e := &Error{Kind: KindTimeout, Message: message, cause: cause}
	if cause != nil {
		e.Detail = cause.Error()
	}
	return e
}

// AsError converts any error returned by a backend call into a structured
// Error. Deadline errors become timeouts, everything else is upstream.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("Request timed out", err)
	}
	return NewUpstreamError("Request failed", err)
}
