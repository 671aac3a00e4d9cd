package analysis

import (
	"errors"
	"fmt"
)

// Kind classifies why an analysis failed.
type Kind int

const (
	KindUnknown Kind = iota
	KindNoConnection
	KindInvalidInput
	KindRateLimitExceeded
	KindAPIError
	KindInvalidResponse
	KindNoContent
	KindInvalidJSON
	KindMaxRetriesExceeded
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindNoConnection:       "no_connection",
	KindInvalidInput:       "invalid_input",
	KindRateLimitExceeded:  "rate_limit_exceeded",
	KindAPIError:           "api_error",
	KindInvalidResponse:    "invalid_response",
	KindNoContent:          "no_content",
	KindInvalidJSON:        "invalid_json",
	KindMaxRetriesExceeded: "max_retries_exceeded",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the failure returned by Analyze.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work
// with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrNoConnection       = &Error{Kind: KindNoConnection}
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
	ErrRateLimitExceeded  = &Error{Kind: KindRateLimitExceeded}
	ErrAPIError           = &Error{Kind: KindAPIError}
	ErrInvalidResponse    = &Error{Kind: KindInvalidResponse}
	ErrNoContent          = &Error{Kind: KindNoContent}
	ErrInvalidJSON        = &Error{Kind: KindInvalidJSON}
	ErrMaxRetriesExceeded = &Error{Kind: KindMaxRetriesExceeded}
	ErrUnknown            = &Error{Kind: KindUnknown}
)

// KindOf returns the kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// NewError builds a classified error.
func NewError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}
