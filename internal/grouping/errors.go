package grouping

import "errors"

var (
	// ErrInvalidConfig is returned before any store access when run
	// parameters are out of range.
	ErrInvalidConfig = errors.New("invalid grouping configuration")

	// ErrPersistence wraps any failure to read the working set or write
	// assignments. The run's transaction has been rolled back.
	ErrPersistence = errors.New("grouping persistence failed")

	// ErrRunInProgress is returned when another run holds the grouping lock.
	ErrRunInProgress = errors.New("another grouping run is in progress")
)
