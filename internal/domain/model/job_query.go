package model

import "time"

// JobListOptions groups parameters for listing jobs with optional filters.
type JobListOptions struct {
	OwnerID string     // Optional filter by owner
	Status  *JobStatus // Optional filter by status
	Type    *JobType   // Optional filter by type
	Limit   int        // Pagination limit
	Offset  int        // Pagination offset
}

// RecoveryMode controls what the sweeper does with abandoned processing rows.
type RecoveryMode string

const (
	// RecoveryModeRequeue moves abandoned rows back to queued.
	RecoveryModeRequeue RecoveryMode = "requeue"
	// RecoveryModeFail marks abandoned rows as failed.
	RecoveryModeFail RecoveryMode = "fail"
)

// Valid reports whether the mode is known.
func (m RecoveryMode) Valid() bool {
	return m == RecoveryModeRequeue || m == RecoveryModeFail
}

// AbandonedJobError is the error recorded when a stale job is failed instead of re-queued.
const AbandonedJobError = "abandoned while processing"

// RecoverStaleParams groups parameters for recovering stuck processing rows.
type RecoverStaleParams struct {
	Cutoff time.Time
	Mode   RecoveryMode
}

// DeleteOldJobsParams groups parameters for retention cleanup.
type DeleteOldJobsParams struct {
	Status    JobStatus
	MaxAge    time.Duration
	BatchSize int
}
