// Package model defines the core data types shared by the job queue, the durable worker and the sweeper.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// JobType identifies which processor handles a job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobType string

// JobStatus represents the current status of a job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

const (
	// JobTypeEcho returns its payload unchanged. Used for smoke tests.
	JobTypeEcho JobType = "echo"
	// JobTypeProductDescription generates a single product description.
	JobTypeProductDescription JobType = "product_description"
	// JobTypeBatchDescriptions generates descriptions for a list of products.
	JobTypeBatchDescriptions JobType = "batch_descriptions"
	// JobTypeExtract evaluates a JMESPath expression against a JSON document.
	JobTypeExtract JobType = "extract"

	// JobStatusQueued indicates a job is waiting to be claimed.
	JobStatusQueued JobStatus = "queued"
	// JobStatusProcessing indicates a worker has claimed the job.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusDone indicates the job finished successfully.
	JobStatusDone JobStatus = "done"
	// JobStatusFailed indicates the job finished with an error.
	JobStatusFailed JobStatus = "failed"

	// jobStatusCompletedAlias is accepted on input and normalized to done.
	jobStatusCompletedAlias = "completed"
)

var jobTypePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,63}$`)

// ErrNoJobsAvailable is returned when no queued job exists.
var ErrNoJobsAvailable = errors.New("no jobs available")

// ErrInvalidTransition is returned when a status change is not allowed by the job state machine.
var ErrInvalidTransition = errors.New("invalid job status transition")

// Valid reports whether the job type is well formed. Any lowercase tag is accepted;
// whether a processor exists for it is decided at dispatch time.
func (t JobType) Valid() bool {
	return jobTypePattern.MatchString(string(t))
}

// UnmarshalText implements encoding.TextUnmarshaler for JobType to allow env parsing.
func (t *JobType) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jt := JobType(v)
	if !jt.Valid() {
		return fmt.Errorf("invalid JobType: %q", v)
	}
	*t = jt
	return nil
}

// Valid returns true if the JobStatus is one of the four persisted states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusDone, JobStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// UnmarshalText implements encoding.TextUnmarshaler and accepts "completed" as an alias of done.
func (s *JobStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseJobStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseJobStatus normalizes a status string. "completed" maps to done.
func ParseJobStatus(raw string) (JobStatus, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == jobStatusCompletedAlias {
		return JobStatusDone, nil
	}
	s := JobStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("invalid JobStatus: %q", raw)
	}
	return s, nil
}

// CanTransition reports whether a job may move from one status to another.
// processing -> queued is reserved for the recovery sweeper.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusQueued:
		return to == JobStatusProcessing
	case JobStatusProcessing:
		return to == JobStatusDone || to == JobStatusFailed || to == JobStatusQueued
	default:
		return false
	}
}

// Job is a unit of asynchronous work.
type Job struct {
	ID          string          `json:"id"                     db:"id"`
	OwnerID     string          `json:"owner_id"               db:"owner_id"`
	Type        JobType         `json:"type"                   db:"type"`
	Status      JobStatus       `json:"status"                 db:"status"`
	Payload     json.RawMessage `json:"payload"                db:"payload"`
	Result      json.RawMessage `json:"result,omitempty"       db:"result"`
	Error       *string         `json:"error,omitempty"        db:"error"`
	CreatedAt   time.Time       `json:"created_at"             db:"created_at"`
	UpdatedAt   *time.Time      `json:"updated_at,omitempty"   db:"updated_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"   db:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// StatusResponse projects a job onto the terminal read contract.
func (j *Job) StatusResponse() *JobStatusResponse {
	return &JobStatusResponse{
		ID:          j.ID,
		Status:      j.Status,
		Result:      j.Result,
		Error:       j.Error,
		CompletedAt: j.CompletedAt,
	}
}

// CreateJobRequest represents a request to create a new job.
type CreateJobRequest struct {
	// ID is optional; one is generated when empty.
	ID      string          `json:"id,omitempty"`
	OwnerID string          `json:"owner_id"`
	Type    JobType         `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if !r.Type.Valid() {
		return errors.New("invalid job type")
	}
	if strings.TrimSpace(r.OwnerID) == "" {
		return errors.New("owner id is required")
	}
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	if !json.Valid(r.Payload) {
		return errors.New("payload must be valid JSON")
	}
	if len(r.ID) > 128 {
		return errors.New("id must be at most 128 characters")
	}
	return nil
}

// FinalizeParams describes a terminal write.
type FinalizeParams struct {
	ID     string
	Status JobStatus
	Result json.RawMessage
	Error  string
}

// Validate ensures only terminal statuses are written and result/error are mutually exclusive.
func (p FinalizeParams) Validate() error {
	if p.ID == "" {
		return errors.New("job id is required")
	}
	switch p.Status {
	case JobStatusDone:
		if p.Error != "" {
			return errors.New("done job cannot carry an error")
		}
	case JobStatusFailed:
		if len(p.Result) > 0 {
			return errors.New("failed job cannot carry a result")
		}
	default:
		return fmt.Errorf("%w: finalize requires a terminal status, got %q", ErrInvalidTransition, p.Status)
	}
	return nil
}

// JobStats represents counts of jobs per status.
type JobStats struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Done       int `json:"done"`
	Failed     int `json:"failed"`
}

// Add increments the counter that matches status.
func (s *JobStats) Add(status JobStatus, n int) {
	switch status {
	case JobStatusQueued:
		s.Queued += n
	case JobStatusProcessing:
		s.Processing += n
	case JobStatusDone:
		s.Done += n
	case JobStatusFailed:
		s.Failed += n
	}
}

// JobStatusResponse is what a requester polls for.
type JobStatusResponse struct {
	ID          string          `json:"id"`
	Status      JobStatus       `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *string         `json:"error,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}
