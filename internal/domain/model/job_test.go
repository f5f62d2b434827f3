package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobType_Valid(t *testing.T) {
	assert.True(t, JobTypeEcho.Valid())
	assert.True(t, JobTypeProductDescription.Valid())
	assert.True(t, JobType("ghost").Valid())
	assert.False(t, JobType("").Valid())
	assert.False(t, JobType("Has Spaces").Valid())
}

func TestJobType_UnmarshalText(t *testing.T) {
	var jt JobType
	require.NoError(t, jt.UnmarshalText([]byte("  Extract ")))
	assert.Equal(t, JobTypeExtract, jt)

	require.Error(t, jt.UnmarshalText([]byte("bad type!")))
}

func TestParseJobStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    JobStatus
		wantErr bool
	}{
		{in: "queued", want: JobStatusQueued},
		{in: "processing", want: JobStatusProcessing},
		{in: "done", want: JobStatusDone},
		{in: "completed", want: JobStatusDone},
		{in: "COMPLETED", want: JobStatusDone},
		{in: "failed", want: JobStatusFailed},
		{in: "running", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseJobStatus(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJobStatus_UnmarshalJSONAlias(t *testing.T) {
	var resp JobStatusResponse
	require.NoError(t, json.Unmarshal([]byte(`{"id":"j1","status":"completed"}`), &resp))
	assert.Equal(t, JobStatusDone, resp.Status)
	assert.True(t, resp.Status.IsTerminal())
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(JobStatusQueued, JobStatusProcessing))
	assert.True(t, CanTransition(JobStatusProcessing, JobStatusDone))
	assert.True(t, CanTransition(JobStatusProcessing, JobStatusFailed))
	assert.True(t, CanTransition(JobStatusProcessing, JobStatusQueued))

	assert.False(t, CanTransition(JobStatusQueued, JobStatusDone))
	assert.False(t, CanTransition(JobStatusDone, JobStatusQueued))
	assert.False(t, CanTransition(JobStatusFailed, JobStatusProcessing))
}

func TestCreateJobRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateJobRequest
		wantErr string
	}{
		{
			name: "valid",
			req:  CreateJobRequest{OwnerID: "u1", Type: JobTypeEcho, Payload: json.RawMessage(`{"a":1}`)},
		},
		{
			name:    "missing owner",
			req:     CreateJobRequest{Type: JobTypeEcho, Payload: json.RawMessage(`{}`)},
			wantErr: "owner id is required",
		},
		{
			name:    "invalid type",
			req:     CreateJobRequest{OwnerID: "u1", Type: "", Payload: json.RawMessage(`{}`)},
			wantErr: "invalid job type",
		},
		{
			name:    "empty payload",
			req:     CreateJobRequest{OwnerID: "u1", Type: JobTypeEcho},
			wantErr: "payload is required",
		},
		{
			name:    "malformed payload",
			req:     CreateJobRequest{OwnerID: "u1", Type: JobTypeEcho, Payload: json.RawMessage(`{"a":`)},
			wantErr: "payload must be valid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFinalizeParams_Validate(t *testing.T) {
	require.NoError(t, FinalizeParams{ID: "j", Status: JobStatusDone, Result: json.RawMessage(`1`)}.Validate())
	require.NoError(t, FinalizeParams{ID: "j", Status: JobStatusFailed, Error: "boom"}.Validate())

	err := FinalizeParams{ID: "j", Status: JobStatusProcessing}.Validate()
	require.ErrorIs(t, err, ErrInvalidTransition)

	require.Error(t, FinalizeParams{ID: "j", Status: JobStatusDone, Error: "x"}.Validate())
	require.Error(t, FinalizeParams{Status: JobStatusDone}.Validate())
}

func TestJobStats_Add(t *testing.T) {
	var s JobStats
	s.Add(JobStatusQueued, 2)
	s.Add(JobStatusDone, 1)
	s.Add(JobStatus("bogus"), 5)
	assert.Equal(t, JobStats{Queued: 2, Done: 1}, s)
}
