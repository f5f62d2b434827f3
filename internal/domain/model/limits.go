package model

import "time"

// Runtime tunables stored in the job_limits table.
const (
	// LimitJobProcessingTimeoutSeconds is how long a job may stay processing before the sweeper recovers it.
	LimitJobProcessingTimeoutSeconds = "job_processing_timeout_seconds"
	// LimitJobPollIntervalMS is the durable worker idle poll interval.
	LimitJobPollIntervalMS = "job_poll_interval_ms"
	// LimitJobErrorBackoffMS is the durable worker pause after an unexpected error.
	LimitJobErrorBackoffMS = "job_error_backoff_ms"
)

// Defaults used when the limits table has no row or cannot be read.
const (
	DefaultJobProcessingTimeoutSeconds int64 = 1800
	DefaultJobPollIntervalMS           int64 = 1000
	DefaultJobErrorBackoffMS           int64 = 5000
)

// Limit is a single key/value tunable.
type Limit struct {
	Key       string    `json:"key"        db:"key"`
	Value     int64     `json:"value"      db:"value"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
