// Package apperr defines the error taxonomy shared by every component of the
// relay and normalizes arbitrary failures into a single envelope shape.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the stable error code exposed to callers.
type Kind string

const (
	KindBadRequest      Kind = "BAD_REQUEST"
	KindConfig          Kind = "CONFIG_ERROR"
	KindParse           Kind = "PARSE_ERROR"
	KindEmptyContent    Kind = "EMPTY_CONTENT"
	KindRateLimited     Kind = "RATE_LIMITED"
	KindUnsupportedMode Kind = "UNSUPPORTED_MODE"
	KindInternal        Kind = "INTERNAL_ERROR"
	KindEmptyInput      Kind = "EMPTY_INPUT"
	KindUpstream        Kind = "UPSTREAM_ERROR"
	KindTextTooLong     Kind = "TEXT_TOO_LONG"
)

// Error is a classified failure. Retryable is informational: it is only ever
// true for rate limiting and tells the caller why the call gave up.
type Error struct {
	Kind      Kind
	Message   string
	Details   map[string]any
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Retryable: kind == KindRateLimited}
}

// Wrap creates a classified error around an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	e := New(kind, message)
	e.Err = err
	return e
}

// WithDetails attaches diagnostic details and returns the same error.
func (e *Error) WithDetails(details map[string]any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any, len(details))
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	ae, ok := As(err)
	return ok && ae.Kind == kind
}

// IsRateLimited reports whether err is a rate-limit failure.
func IsRateLimited(err error) bool {
	return IsKind(err, KindRateLimited)
}
