package dispatch

import "errors"

// Sentinel errors for the dispatch service.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrJobNotFound     = errors.New("job not found")
	ErrInvalidStatus   = errors.New("status must be SENT or FAILED")
	// ErrStaleJob means the job's step has already been reported or the
	// recipient has finished.
	ErrStaleJob = errors.New("job is no longer current")
)
