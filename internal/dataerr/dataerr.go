// Package dataerr models the error kinds surfaced at the data node's
// interfaces (spec §7) as an explicit result type, replacing the
// exceptions-for-errors pattern of the original implementation.
package dataerr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error kinds surfaced at data node interfaces.
type Kind int

const (
	// Unknown is the zero value; never constructed deliberately.
	Unknown Kind = iota
	// IOError is any disk-level failure. For store locations this
	// triggers disable and process exit.
	IOError
	// NoSuchChunk is returned when a read targets an absent chunk.
	NoSuchChunk
	// NoSuchBlock is returned when a read targets an absent block.
	NoSuchBlock
	// SessionAlreadyExists is returned when a session start conflicts
	// with an already-open session for the same chunk.
	SessionAlreadyExists
	// ChunkAlreadyExists is returned when a session start conflicts
	// with an already-finished chunk of the same id.
	ChunkAlreadyExists
	// Unavailable means the master is not connected, or egress
	// throttling is active. Retryable.
	Unavailable
	// PipelineFailed means a downstream peer rejected a forwarded write.
	PipelineFailed
	// ResourceOverdraft means job admission or runtime resource usage
	// exceeded limits; the newest conflicting job is aborted.
	ResourceOverdraft
	// NodeResourceOvercommit is like ResourceOverdraft but scoped to
	// node-wide memory/CPU rather than a single resource type.
	NodeResourceOvercommit
	// WaitingJobTimeout means a waiting job exceeded its admission
	// timeout.
	WaitingJobTimeout
	// IncarnationMismatch means the controller-agent/master generation
	// does not match what the node last observed; triggers
	// re-registration.
	IncarnationMismatch
)

func (k Kind) String() string {
	switch k {
	case IOError:
		return "IOError"
	case NoSuchChunk:
		return "NoSuchChunk"
	case NoSuchBlock:
		return "NoSuchBlock"
	case SessionAlreadyExists:
		return "SessionAlreadyExists"
	case ChunkAlreadyExists:
		return "ChunkAlreadyExists"
	case Unavailable:
		return "Unavailable"
	case PipelineFailed:
		return "PipelineFailed"
	case ResourceOverdraft:
		return "ResourceOverdraft"
	case NodeResourceOvercommit:
		return "NodeResourceOvercommit"
	case WaitingJobTimeout:
		return "WaitingJobTimeout"
	case IncarnationMismatch:
		return "IncarnationMismatch"
	default:
		return "Unknown"
	}
}

// Error carries a Kind, an optional wrapped cause, and whether the
// operation may be retried as-is.
type Error struct {
	Kind      Kind
	Message   string
	Cause     error
	Retryable bool
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs a non-retryable Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// AsRetryable marks an error as retryable and returns it for chaining.
func (e *Error) AsRetryable() *Error {
	e.Retryable = true
	return e
}

// KindOf extracts the Kind from err, walking the error chain. Returns
// Unknown if err is nil or carries no dataerr.Error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return Unknown
}

// IsRetryable reports whether err should be retried by an RPC caller's
// retry classifier (spec §7).
func IsRetryable(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Retryable || de.Kind == Unavailable
	}
	return false
}
