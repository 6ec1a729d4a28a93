// Package herrors defines the error kind taxonomy consumers of the core
// switch on (spec §7). It wraps the way the teacher repo already wraps
// errors — fmt.Errorf with %w — rather than inventing a new framework; the
// only addition is a Kind tag so a CLI or HTTP layer can classify an error
// without string-matching its message.
package herrors

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories spec §7 requires callers be able to
// distinguish.
type Kind uint8

const (
	// Unknown is the zero value; Is/As never match it against a real error.
	Unknown Kind = iota
	// NotFound: the addressed blob is absent and could not be fetched via Store.
	NotFound
	// Corrupt: stored bytes don't hash to their address, or a tree node
	// failed canonical decode at a position where a node was required.
	Corrupt
	// InvalidContent: decryption/authentication failed.
	InvalidContent
	// InvalidArgument: malformed permalink, illegal path segment, bad TLV length.
	InvalidArgument
	// QuotaExceeded: a write would exceed the configured quota and nothing evictable qualifies.
	QuotaExceeded
	// Io: an opaque underlying storage error.
	Io
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Corrupt:
		return "corrupt"
	case InvalidContent:
		return "invalid_content"
	case InvalidArgument:
		return "invalid_argument"
	case QuotaExceeded:
		return "quota_exceeded"
	case Io:
		return "io"
	default:
		return "unknown"
	}
}

// Error pairs a Kind with the underlying cause. It implements Unwrap so
// errors.Is/errors.As keep working through the chain.
type Error struct {
	Kind Kind
	Op   string // short operation tag, e.g. "store.Get", "reader.ReadRange"
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for op/kind wrapping err.
func New(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Is reports whether the outermost *Error in err's chain has the given kind
// (the same Kind KindOf returns); inner *Error values are not compared.
func Is(err error, kind Kind) bool {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or Unknown if err doesn't wrap one.
func KindOf(err error) Kind {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind
	}
	return Unknown
}
