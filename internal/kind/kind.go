// Package kind provides the stable error-kind taxonomy shared by the
// broker and client. It lets callers branch on the kind of failure
// (errors.As into *Error) without depending on message text, while still
// composing with the standard errors.Is/errors.As/%w machinery.
package kind

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a failure. The set is fixed by the
// protocol: clients and the broker agree on these values independent of
// process, so a Kind is never added without updating both sides.
type Kind int

const (
	// Unexpected covers anything not in the named taxonomy below; the
	// broker wraps it with a formatted trace rather than letting it panic
	// across the worker boundary.
	Unexpected Kind = iota
	NotInitialized
	FileNotFound
	NotFound
	NotAllowed
	PermissionDenied
	Io
	IoTruncated
	MalformedToken
	MalformedPayload
	BadGrant
	SignatureInvalid
	AuthFailed
	GrantMismatch
	ProofTooDeep
	ConnectRefused
)

func (k Kind) String() string {
	switch k {
	case NotInitialized:
		return "NotInitialized"
	case FileNotFound:
		return "FileNotFound"
	case NotFound:
		return "NotFound"
	case NotAllowed:
		return "NotAllowed"
	case PermissionDenied:
		return "PermissionDenied"
	case Io:
		return "Io"
	case IoTruncated:
		return "IoTruncated"
	case MalformedToken:
		return "MalformedToken"
	case MalformedPayload:
		return "MalformedPayload"
	case BadGrant:
		return "BadGrant"
	case SignatureInvalid:
		return "SignatureInvalid"
	case AuthFailed:
		return "AuthFailed"
	case GrantMismatch:
		return "GrantMismatch"
	case ProofTooDeep:
		return "ProofTooDeep"
	case ConnectRefused:
		return "ConnectRefused"
	default:
		return "Unexpected"
	}
}

// Error pairs a Kind with a human-readable message and an optional wrapped
// cause, so callers can use errors.As to recover the Kind while still
// seeing the full chain via Error()/Unwrap().
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New creates an *Error of the given kind with no wrapped cause.
func New(k Kind, message string) *Error {
	return &Error{Kind: k, Message: message}
}

// Wrap creates an *Error of the given kind wrapping err. If message is
// empty, err's own message is used.
func Wrap(k Kind, message string, err error) *Error {
	return &Error{Kind: k, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Message == "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Kind, so
// errors.Is(err, kind.New(kind.NotFound, "")) style checks work without
// needing an exact message match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Of extracts the Kind from err, returning Unexpected if err is nil or not
// a *Error (or does not wrap one).
func Of(err error) Kind {
	if err == nil {
		return Unexpected
	}
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return Unexpected
}
