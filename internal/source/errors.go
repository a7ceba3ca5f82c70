package source

import (
	"errors"
	"fmt"
)

// Fetch failure kinds.
var (
	// ErrProcessFailed is returned when an external program cannot be started,
	// exits with a non-zero status, or is killed by its timeout.
	ErrProcessFailed = errors.New("process failed")

	// ErrParseFailed is returned when a payload is not a single well-formed
	// document or is rejected by the source's decoder.
	ErrParseFailed = errors.New("parse failed")

	// ErrReadFailed is returned when a source file is missing or unreadable.
	ErrReadFailed = errors.New("read failed")
)

// FetchError describes a failed fetch for one source.
type FetchError struct {
	// Source is the name of the source that failed.
	Source string

	// Kind is one of ErrProcessFailed, ErrParseFailed or ErrReadFailed.
	Kind error

	// Err is the underlying cause.
	Err error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Source, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Source, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the kind of this error.
func (e *FetchError) Is(target error) bool {
	return target == e.Kind
}

func processFailed(name string, err error) error {
	return &FetchError{Source: name, Kind: ErrProcessFailed, Err: err}
}

func parseFailed(name string, err error) error {
	return &FetchError{Source: name, Kind: ErrParseFailed, Err: err}
}

func readFailed(name string, err error) error {
	return &FetchError{Source: name, Kind: ErrReadFailed, Err: err}
}
