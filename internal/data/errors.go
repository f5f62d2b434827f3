package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrJobNotFound is returned when a job row does not exist.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobIDRequired is returned when an operation is called with an empty job id.
	ErrJobIDRequired = errors.New("job id is required")
	// ErrLimitNotFound is returned when a job_limits key has no row.
	ErrLimitNotFound = errors.New("limit not found")
)
