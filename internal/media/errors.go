package media

import (
	"errors"
	"fmt"
)

// ErrNotFound is the single caller-visible failure of a resolution:
// every tier and candidate was exhausted without producing anything.
var ErrNotFound = errors.New("not found")

// NotFoundError carries a short reason alongside ErrNotFound. Err, when
// set, is the last underlying failure; it is kept for logs only.
type NotFoundError struct {
	Reason string
	Err    error
}

// NotFound returns a NotFoundError with the given reason.
func NotFound(reason string) *NotFoundError {
	return &NotFoundError{Reason: reason}
}

func (e *NotFoundError) Error() string {
	if e.Reason == "" {
		return ErrNotFound.Error()
	}
	return fmt.Sprintf("%s: %s", ErrNotFound, e.Reason)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// Stage names the step at which a candidate failed.
type Stage string

const (
	StageDecode Stage = "decode"
	StageFetch  Stage = "fetch"
	StageMatch  Stage = "match"
	StageParse  Stage = "parse"
)

// CandidateError records why one candidate (a mirror or a strategy) was
// skipped. It is logged, never returned to the caller of a resolver.
type CandidateError struct {
	Candidate string
	Stage     Stage
	Err       error
}

func (e *CandidateError) Error() string {
	return fmt.Sprintf("candidate %s: %s: %v", e.Candidate, e.Stage, e.Err)
}

func (e *CandidateError) Unwrap() error {
	return e.Err
}
