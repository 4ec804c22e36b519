package docsync

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSourceDirectory is returned when the source root is missing,
	// unreadable or not a directory.
	ErrInvalidSourceDirectory = errors.New("invalid source directory")

	// ErrStorageUnavailable marks a failure of the backing store that makes
	// further processing pointless until the store recovers.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrRequeue marks a transient failure; the item should be retried later.
	ErrRequeue = errors.New("transient failure, requeue")

	// ErrLeaseLost is returned when a queue item was re-claimed by another
	// worker after its lease expired.
	ErrLeaseLost = errors.New("queue item lease lost")
)

// ParseError reports a source file that could not be parsed. It only affects
// that file.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SourceReadError reports a source file that disappeared or could not be read
// between discovery and processing.
type SourceReadError struct {
	Path string
	Err  error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("reading %s: %v", e.Path, e.Err)
}

func (e *SourceReadError) Unwrap() error { return e.Err }

// IsPartialFailure reports whether err only affects a single file of a batch.
func IsPartialFailure(err error) bool {
	var pe *ParseError
	var re *SourceReadError
	return errors.As(err, &pe) || errors.As(err, &re)
}
