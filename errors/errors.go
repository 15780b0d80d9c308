package mailkeep_errors

import (
	"errors"
	"net"
	"strings"
)

var (
	ErrProfileNotFound      = errors.New("profile not found")
	ErrProfileAlreadyExists = errors.New("profile already exists")
	ErrDirectoryNotFound    = errors.New("directory not found")
	ErrEmailNotFound        = errors.New("email not found")
	ErrContactNotFound      = errors.New("contact not found")
	ErrContactAlreadyExists = errors.New("contact already exists")
	ErrCacheMiss            = errors.New("not in local cache")
	ErrInvalidInput         = errors.New("invalid input parameters")
	ErrSessionClosed        = errors.New("session closed")
)

// Kind classifies a failure for retry and propagation decisions.
type Kind string

const (
	KindConnection     Kind = "connection"
	KindAuthentication Kind = "authentication"
	KindProtocol       Kind = "protocol"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindStorage        Kind = "storage"
	KindRejected       Kind = "rejected"
)

// Error is a classified error returned by the protocol adapters and the
// cache layer.
type Error struct {
	kind Kind
	err  error

	// RejectedRecipients carries per-recipient detail on an SMTP envelope
	// refusal, when the server provided it.
	RejectedRecipients []string
}

func (e *Error) Error() string {
	return string(e.kind) + ": " + e.err.Error()
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) Kind() Kind {
	return e.kind
}

func Connection(err error) *Error {
	return &Error{kind: KindConnection, err: err}
}

func Authentication(err error) *Error {
	return &Error{kind: KindAuthentication, err: err}
}

func Protocol(err error) *Error {
	return &Error{kind: KindProtocol, err: err}
}

func NotFound(err error) *Error {
	return &Error{kind: KindNotFound, err: err}
}

func Conflict(err error) *Error {
	return &Error{kind: KindConflict, err: err}
}

func Storage(err error) *Error {
	return &Error{kind: KindStorage, err: err}
}

func Rejected(err error, recipients []string) *Error {
	return &Error{kind: KindRejected, err: err, RejectedRecipients: recipients}
}

// KindOf returns the classification of err, or "" if it is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether the error may go away on its own: connection
// drops and storage write failures are retried with backoff, everything else
// is surfaced to the caller.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindConnection, KindStorage:
		return true
	}
	return false
}

// IsConnectionMessage checks whether a raw error looks like a dropped or
// unreachable connection. Protocol libraries do not expose typed errors for
// these, so message matching is the only portable signal.
func IsConnectionMessage(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errorMsg := err.Error()
	return strings.Contains(errorMsg, "connection closed") ||
		strings.Contains(errorMsg, "connection refused") ||
		strings.Contains(errorMsg, "i/o timeout") ||
		strings.Contains(errorMsg, "EOF") ||
		strings.Contains(errorMsg, "connection reset") ||
		strings.Contains(errorMsg, "no such host") ||
		strings.Contains(errorMsg, "broken pipe")
}

// IsAuthMessage checks whether a raw server response signals bad credentials.
func IsAuthMessage(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "authentication") ||
		strings.Contains(msg, "invalid credentials") ||
		strings.Contains(msg, "login failed") ||
		strings.Contains(msg, "authorizationfailed") ||
		strings.Contains(msg, "535")
}

// ClassifyProtocolErr maps a raw adapter error into the taxonomy: connection
// drops and auth refusals get their own kinds, everything else is a protocol
// error.
func ClassifyProtocolErr(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if IsConnectionMessage(err) {
		return Connection(err)
	}
	if IsAuthMessage(err) {
		return Authentication(err)
	}
	return Protocol(err)
}
