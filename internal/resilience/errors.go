package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Kind classifies a failure surfaced by the scraping core.
type Kind string

const (
	KindSessionLaunch      Kind = "session_launch_failure"
	KindAuthentication     Kind = "authentication_failure"
	KindNavigation         Kind = "navigation_failure"
	KindExtractionDegraded Kind = "extraction_degraded"
	KindGateTimeout        Kind = "gate_timeout"
	KindCacheUnavailable   Kind = "cache_unavailable"
	KindInvalidQuery       Kind = "invalid_query"
	KindInternal           Kind = "internal"
)

// Authentication failure reasons.
const (
	ReasonBadCredentials      = "bad_credentials"
	ReasonUnexpectedChallenge = "unexpected_challenge"
	ReasonTimeout             = "timeout"
	ReasonSessionExpired      = "session_expired"
	ReasonCircuitOpen         = "circuit_open"
)

// Error is a classified failure. Message is safe to show to callers; Err
// carries the internal cause and is never rendered over the wire.
type Error struct {
	Kind      Kind
	Reason    string
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Reason != "" {
		fmt.Fprintf(&b, "(%s)", e.Reason)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified error without an underlying cause.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Retryable: defaultRetryable(kind)}
}

// WrapError classifies err. The cause is wrapped with eris so the stack is
// kept for logs.
func WrapError(err error, kind Kind, msg string) *Error {
	if err == nil {
		return NewError(kind, msg)
	}
	return &Error{Kind: kind, Message: msg, Retryable: defaultRetryable(kind), Err: eris.Wrap(err, msg)}
}

// AuthError builds an authentication failure with a sub-reason.
func AuthError(reason, msg string, cause error) *Error {
	e := WrapError(cause, KindAuthentication, msg)
	e.Reason = reason
	return e
}

func defaultRetryable(kind Kind) bool {
	switch kind {
	case KindSessionLaunch, KindAuthentication, KindNavigation, KindGateTimeout:
		return true
	default:
		return false
	}
}

// AsError returns the first classified error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the classification of err. Context deadlines map to
// KindGateTimeout; anything unclassified is KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindGateTimeout
	}
	return KindInternal
}

// ReasonOf returns the sub-reason of a classified error, if any.
func ReasonOf(err error) string {
	if e, ok := AsError(err); ok {
		return e.Reason
	}
	return ""
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether the caller may retry the whole operation.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return IsTransient(err)
}

// PublicMessage renders err for an API response: kind and message only.
func PublicMessage(err error) string {
	e, ok := AsError(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			return "request deadline exceeded"
		}
		return "internal error"
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Reason)
	}
	return e.Message
}

// TransientError wraps an error that is safe to retry, such as a page load
// that timed out or a dropped devtools connection.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError marks err as transient.
func NewTransientError(err error) *TransientError {
	return &TransientError{Err: err}
}

// IsTransient returns true if the error chain holds a TransientError or
// matches common browser/devtools transport failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"net::err_",
		"connection reset by peer",
		"broken pipe",
		"websocket: close",
		"i/o timeout",
		"could not retrieve document",
		"execution context was destroyed",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
