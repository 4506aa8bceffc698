// Package apierror defines the closed error taxonomy for glyph.
//
// Every failure that crosses a package boundary is classified into one of
// the kinds below. Retry decisions, exit codes and JSON error output all
// switch on the kind, never on message text.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an operation failure.
type Kind int

const (
	// KindValidation covers bad input and malformed API responses. Never retried.
	KindValidation Kind = iota
	// KindIO covers local file errors raised before any network call.
	KindIO
	// KindConfiguration covers invalid policy or cache parameters, rejected at construction.
	KindConfiguration
	// KindAuthentication covers invalid credentials (HTTP 401/403). Never retried.
	KindAuthentication
	// KindRateLimit covers HTTP 429. Retried per policy and counted separately.
	KindRateLimit
	// KindNetwork covers timeouts and connection failures. Retried per policy.
	KindNetwork
	// KindServer covers HTTP 5xx. Retried per policy.
	KindServer
	// KindCache covers internal cache inconsistencies. Logged and treated as a miss.
	KindCache
	// KindInternal covers everything else.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindIO:
		return "file_io"
	case KindConfiguration:
		return "config"
	case KindAuthentication:
		return "authentication"
	case KindRateLimit:
		return "rate_limit"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindCache:
		return "cache"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Retryable reports whether errors of this kind may be retried.
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimit, KindNetwork, KindServer:
		return true
	default:
		return false
	}
}

// ExitCode maps the kind to the process exit code contract.
func (k Kind) ExitCode() int {
	switch k {
	case KindValidation:
		return 2
	case KindIO:
		return 3
	case KindConfiguration:
		return 4
	default:
		return 5
	}
}

// Error is the single error type surfaced by the API core.
type Error struct {
	Kind     Kind
	Message  string
	Attempts int // attempts made before giving up; 0 when not applicable
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Attempts > 1 {
		msg = fmt.Sprintf("%s (after %d attempts)", msg, e.Attempts)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// FromStatus classifies a non-2xx HTTP status.
func FromStatus(status int, message string) *Error {
	var kind Kind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuthentication
	case status == http.StatusTooManyRequests:
		kind = KindRateLimit
	case status >= 400 && status < 500:
		kind = KindValidation
	case status >= 500 && status < 600:
		kind = KindServer
	default:
		kind = KindInternal
	}
	return New(kind, "HTTP %d: %s", status, message)
}

// KindOf extracts the kind from any error, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Retryable reports whether err may be retried.
func Retryable(err error) bool {
	return KindOf(err).Retryable()
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return KindOf(err).ExitCode()
}
