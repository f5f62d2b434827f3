package pagerduty

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobqueue/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{RoutingKey: "  "})
	require.Error(t, err)
}

func TestBuildEventDefaults(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key", Timeout: time.Second})
	require.NoError(t, err)

	occurred := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	ev := client.buildEvent(notify.JobFailurePayload{
		JobID:      "123",
		JobType:    "extract",
		OwnerID:    "owner-1",
		Source:     notify.SourceLocalQueue,
		Error:      "boom",
		ErrorClass: "err_class",
		OccurredAt: occurred,
		Metadata:   map[string]string{"job_id": "ignored", "region": "us"},
	})

	assert.Equal(t, "trigger", ev.EventAction)
	assert.Equal(t, "extract:123", ev.DedupKey)
	assert.Equal(t, notify.SeverityCritical, ev.Payload.Severity)
	assert.Equal(t, "jobqueue", ev.Payload.Source)
	assert.Equal(t, "jobqueue", ev.Payload.Component)
	assert.Equal(t, "owner-1", ev.Payload.Group)
	assert.Equal(t, "err_class", ev.Payload.Class)
	assert.Equal(t, "2025-03-01T11:00:00Z", ev.Payload.Timestamp)
	assert.Equal(t, "Job 123 (extract) failed", ev.Payload.Summary)
	assert.Equal(t, "123", ev.Payload.CustomDetails["job_id"], "metadata must not override job fields")
	assert.Equal(t, "us", ev.Payload.CustomDetails["region"])
}

func TestBuildEventDedupKeyWithoutType(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key"})
	require.NoError(t, err)

	ev := client.buildEvent(notify.JobFailurePayload{JobID: "abc"})
	assert.Equal(t, "abc", ev.DedupKey)
	assert.Equal(t, "Job abc (unknown) failed", ev.Payload.Summary)
}

func TestSendJobFailurePostsEvent(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "rk", Endpoint: srv.URL})
	require.NoError(t, err)

	err = client.SendJobFailure(context.Background(), notify.JobFailurePayload{
		JobID:    "9",
		Severity: "WARNING",
	})
	require.NoError(t, err)

	assert.Equal(t, "rk", got["routing_key"])
	assert.Equal(t, "trigger", got["event_action"])
	section, ok := got["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, notify.SeverityWarning, section["severity"])
	assert.NotContains(t, section, "group", "empty owner is omitted")
}

func TestSendJobFailureRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "rk", Endpoint: srv.URL, RetryLimit: 2})
	require.NoError(t, err)
	client.poster.Step = time.Millisecond

	require.NoError(t, client.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "1"}))
	assert.Equal(t, int32(2), calls.Load())
}
