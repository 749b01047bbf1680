// Package lfserrors defines the error taxonomy shared by every layer of the
// log-structured file system: the log layer, the file layer, and the
// directory layer all surface one of these kinds, and the kernel-interface
// shim (internal/kernelfs) is the only place that kind gets translated into
// a host errno.
package lfserrors

import (
	"errors"
	"fmt"
)

// Kind identifies which of the taxonomy's buckets an error belongs to.
type Kind int

const (
	// Unknown covers errors that did not originate in this package, e.g. a
	// bare I/O error from a dependency that was never wrapped.
	Unknown Kind = iota

	// NotFound means path resolution failed to find a named entry.
	NotFound

	// NotEmpty means rmdir was attempted on a directory holding more than
	// "." and "..". The directory layer also returns it when a new entry's
	// name is already bound in its parent directory.
	NotEmpty

	// IOError means an underlying flash read/write/erase call failed.
	IOError

	// Corruption means a structural invariant was violated: a live-block
	// read where the summary says NO_INUM, a malformed address, a read of a
	// never-written block, or an unrecognized file-type tag.
	Corruption

	// FlashFull means no clean segment was available when one was needed.
	FlashFull

	// PermissionDenied means a POSIX access check failed.
	PermissionDenied

	// Fatal marks a programmer-visible invariant violation: freeing the
	// iFile, reading outside the iFile's range, or the cleaner encountering
	// an inode-relative block number outside the valid set.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case NotEmpty:
		return "not empty"
	case IOError:
		return "I/O error"
	case Corruption:
		return "corruption"
	case FlashFull:
		return "flash full"
	case PermissionDenied:
		return "permission denied"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// kindError is the concrete type every constructor below returns. It is
// deliberately unexported: callers are expected to compare kinds with Is or
// Kind, never to type-assert on the concrete type.
type kindError struct {
	kind Kind
	msg  string
	err  error
}

func (e *kindError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *kindError) Unwrap() error { return e.err }

// Is lets errors.Is(err, lfserrors.NotFoundErr) work by comparing against
// the sentinel values below.
func (e *kindError) Is(target error) bool {
	s, ok := target.(*kindError)
	return ok && s.kind == e.kind && s.msg == ""
}

// sentinel returns a zero-value marker usable with errors.Is, e.g.
// errors.Is(err, lfserrors.NotFoundErr).
func sentinel(k Kind) error { return &kindError{kind: k} }

var (
	// NotFoundErr is the sentinel for errors.Is(err, lfserrors.NotFoundErr).
	NotFoundErr   = sentinel(NotFound)
	NotEmptyErr   = sentinel(NotEmpty)
	IOErrorErr    = sentinel(IOError)
	CorruptionErr = sentinel(Corruption)
	FlashFullErr  = sentinel(FlashFull)
	PermissionErr = sentinel(PermissionDenied)
	FatalErr      = sentinel(Fatal)
)

// New constructs an error of the given kind, wrapping cause if non-nil.
func New(k Kind, msg string, cause error) error {
	return &kindError{kind: k, msg: msg, err: cause}
}

// Notf constructs a NotFound error with a formatted message.
func Notf(format string, args ...interface{}) error {
	return &kindError{kind: NotFound, msg: fmt.Sprintf(format, args...)}
}

// NotEmptyf constructs a NotEmpty error with a formatted message.
func NotEmptyf(format string, args ...interface{}) error {
	return &kindError{kind: NotEmpty, msg: fmt.Sprintf(format, args...)}
}

// IOErrorf constructs an IOError, wrapping cause.
func IOErrorf(cause error, format string, args ...interface{}) error {
	return &kindError{kind: IOError, msg: fmt.Sprintf(format, args...), err: cause}
}

// Corruptf constructs a Corruption error with a formatted message.
func Corruptf(format string, args ...interface{}) error {
	return &kindError{kind: Corruption, msg: fmt.Sprintf(format, args...)}
}

// FlashFullf constructs a FlashFull error with a formatted message.
func FlashFullf(format string, args ...interface{}) error {
	return &kindError{kind: FlashFull, msg: fmt.Sprintf(format, args...)}
}

// PermissionDeniedf constructs a PermissionDenied error with a formatted
// message.
func PermissionDeniedf(format string, args ...interface{}) error {
	return &kindError{kind: PermissionDenied, msg: fmt.Sprintf(format, args...)}
}

// Fatalf constructs a Fatal error with a formatted message.
func Fatalf(format string, args ...interface{}) error {
	return &kindError{kind: Fatal, msg: fmt.Sprintf(format, args...)}
}

// GetKind extracts the Kind from err, walking the Unwrap chain. Returns
// Unknown if err is nil or was never constructed by this package.
func GetKind(err error) Kind {
	if err == nil {
		return Unknown
	}
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return Unknown
}
