package domain

import "errors"

var (
	// ErrInvalidConfig marks every configuration problem detected before a job runs.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMalformedPredicate is returned when a loop predicate produces no value.
	ErrMalformedPredicate = errors.New("loop predicate produced no value")

	// ErrDisallowedMode is returned when a statement's mode is not permitted for a submission.
	ErrDisallowedMode = errors.New("statement mode not allowed")

	// ErrTerminated is tallied for rows abandoned after a job was terminated.
	ErrTerminated = errors.New("job terminated")
)
