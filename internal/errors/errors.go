// Package errors defines the closed set of error kinds used across the
// ingestion and retrieval pipeline. Callers branch on Kind (via errors.Is or
// the helper predicates) instead of parsing message text.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a pipeline error.
type Kind int

const (
	// KindConfiguration means a required setting is missing or invalid.
	// Fatal; raised before any work starts and never recovered locally.
	KindConfiguration Kind = iota + 1

	// KindEmbeddingUnavailable means the embedding call failed or returned a
	// vector count that does not match the input count. Aborts the single
	// document being processed.
	KindEmbeddingUnavailable

	// KindIndexWrite is a per-record write failure from the index store.
	KindIndexWrite

	// KindIndexRead is a read/search failure from the index store.
	KindIndexRead

	// KindInvalidFilter means a search filter specification was malformed.
	// Surfaced to the caller immediately; the search is not attempted.
	KindInvalidFilter
)

// String returns the canonical name of the kind.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindEmbeddingUnavailable:
		return "embedding_unavailable"
	case KindIndexWrite:
		return "index_write"
	case KindIndexRead:
		return "index_read"
	case KindInvalidFilter:
		return "invalid_filter"
	default:
		return "unknown"
	}
}

// Error is the structured error carried through the pipeline. DocumentID,
// ChunkID and Phase are optional context; zero values mean "not applicable".
type Error struct {
	Kind       Kind
	DocumentID string
	ChunkID    string
	Phase      string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Phase != "" {
		msg += " during " + e.Phase
	}
	if e.DocumentID != "" {
		msg += fmt.Sprintf(" (document %s", e.DocumentID)
		if e.ChunkID != "" {
			msg += ", chunk " + e.ChunkID
		}
		msg += ")"
	} else if e.ChunkID != "" {
		msg += fmt.Sprintf(" (chunk %s)", e.ChunkID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two pipeline errors by kind, so errors.Is(err, &Error{Kind: k})
// works without comparing context fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates a pipeline error of the given kind wrapping cause.
func New(kind Kind, phase string, cause error) *Error {
	return &Error{Kind: kind, Phase: phase, Err: cause}
}

// Newf creates a pipeline error of the given kind from a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// WithDocument attaches a document id and returns the error for chaining.
func (e *Error) WithDocument(id string) *Error {
	e.DocumentID = id
	return e
}

// WithChunk attaches a chunk id and returns the error for chaining.
func (e *Error) WithChunk(id string) *Error {
	e.ChunkID = id
	return e
}

// KindOf returns the kind of err if it is (or wraps) a pipeline *Error,
// and zero otherwise.
func KindOf(err error) Kind {
	var pe *Error
	if stderrors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

// IsKind reports whether err is a pipeline error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
