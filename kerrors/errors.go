// Package kerrors classifies the failures the Kryptor engine can surface to
// its callers into a small set of kinds, so a driver can decide what to tell
// a user without parsing error strings.
package kerrors

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure returned by this module.
type Kind int

const (
	// Unknown is the zero value; it should never be returned by this module.
	Unknown Kind = iota
	// InvalidFormat marks a structurally malformed input: a bad magic
	// number, a truncated header, bad base64, a wrong length.
	InvalidFormat
	// Cryptographic marks an authentication failure: a key commitment
	// mismatch, a failed AEAD tag check, a rejected key. Per design, this
	// kind never distinguishes a wrong password from tampering.
	Cryptographic
	// IO marks a failure from the filesystem: permissions, missing files,
	// disk exhaustion.
	IO
	// PolicyViolation marks a request that is well-formed but rejected by a
	// policy decision: refusing to overwrite an existing file, refusing an
	// unacceptable key size, an unsupported container version.
	PolicyViolation
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case InvalidFormat:
		return "invalid_format"
	case Cryptographic:
		return "cryptographic"
	case IO:
		return "io"
	case PolicyViolation:
		return "policy_violation"
	default:
		return "unknown"
	}
}

// Error is the typed error returned by every public operation in this
// module. It wraps an underlying cause while attaching a stable Kind a
// caller can switch on.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap allows errors.Is/errors.As to reach the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind, without a wrapped cause.
func New(kind Kind, op, message string) error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap creates an Error of the given kind around an existing cause.
func Wrap(kind Kind, op, message string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the Kind carried by err, or Unknown if err is not (or does
// not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
