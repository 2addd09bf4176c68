package helper

import (
	"errors"
	"fmt"
)

// Error kinds. Every error produced by the ingestion and query paths
// matches exactly one of these under errors.Is.
var (
	ErrLoad    = errors.New("load error")
	ErrExtract = errors.New("extract error")
	ErrEmbed   = errors.New("embed error")
	ErrIndex   = errors.New("index error")
	ErrModel   = errors.New("model error")
	ErrConfig  = errors.New("config error")
)

// Error wraps an error with the operation that produced it and an optional kind.
type Error struct {
	Trace string
	Kind  error
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Trace
	}
	return fmt.Sprintf("%s: %v", e.Trace, e.Err)
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewError wraps err with the name of the failing operation.
func NewError(trace string, err error) error {
	return &Error{Trace: trace, Err: err}
}

// NewKindError wraps err with the failing operation and tags it with kind.
func NewKindError(kind error, trace string, err error) error {
	return &Error{Trace: trace, Kind: kind, Err: err}
}

// KindOf returns the first error kind found in the chain of err, or nil.
func KindOf(err error) error {
	for _, kind := range []error{ErrLoad, ErrExtract, ErrEmbed, ErrIndex, ErrModel, ErrConfig} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
