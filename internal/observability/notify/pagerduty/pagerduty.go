// Package pagerduty raises PagerDuty incidents for failed jobs through the Events API v2.
package pagerduty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/target/mmk-jobqueue/internal/observability/notify"
	"github.com/target/mmk-jobqueue/internal/observability/notify/webhook"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

const defaultName = "jobqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// Endpoint overrides APIEndpoint; used by tests.
	Endpoint string
}

// event is the Events API v2 trigger body.
type event struct {
	RoutingKey  string       `json:"routing_key"`
	EventAction string       `json:"event_action"`
	DedupKey    string       `json:"dedup_key,omitempty"`
	Payload     eventPayload `json:"payload"`
}

type eventPayload struct {
	Summary   string `json:"summary"`
	Severity  string `json:"severity"`
	Source    string `json:"source"`
	Component string `json:"component,omitempty"`
	// Group carries the owner so incidents can be routed per tenant.
	Group         string            `json:"group,omitempty"`
	Class         string            `json:"class,omitempty"`
	Timestamp     string            `json:"timestamp"`
	CustomDetails map[string]string `json:"custom_details"`
}

// Client publishes events via PagerDuty's Events API v2.
type Client struct {
	routingKey string
	source     string
	component  string
	poster     *webhook.Poster
}

// NewClient constructs a PagerDuty events client. A routing key is required.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}

	hc := cfg.Client
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		routingKey: key,
		source:     orDefault(cfg.Source, defaultName),
		component:  orDefault(cfg.Component, defaultName),
		poster: &webhook.Poster{
			Name:       "pagerduty api",
			URL:        orDefault(cfg.Endpoint, APIEndpoint),
			RetryLimit: max(cfg.RetryLimit, 0),
			Client:     hc,
		},
	}, nil
}

// SendJobFailure submits a trigger event to PagerDuty.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	body, err := json.Marshal(c.buildEvent(payload))
	if err != nil {
		return fmt.Errorf("encode pagerduty payload: %w", err)
	}
	return c.poster.Post(ctx, body)
}

func (c *Client) buildEvent(p notify.JobFailurePayload) event {
	occurredAt := p.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	details := make(map[string]string, len(p.Metadata)+5)
	maps.Copy(details, p.Metadata)
	// Job fields win over metadata with the same key.
	details["job_id"] = p.JobID
	details["job_type"] = p.JobType
	details["owner_id"] = p.OwnerID
	details["source"] = p.Source
	details["error"] = p.Error

	return event{
		RoutingKey:  c.routingKey,
		EventAction: "trigger",
		// One incident per job; a requeued job that fails again updates the same incident.
		DedupKey: strings.Trim(p.JobType+":"+p.JobID, ":"),
		Payload: eventPayload{
			Summary: fmt.Sprintf("Job %s (%s) failed",
				orDefault(p.JobID, "unknown"), orDefault(p.JobType, "unknown")),
			Severity:      orDefault(strings.ToLower(p.Severity), notify.SeverityCritical),
			Source:        c.source,
			Component:     c.component,
			Group:         p.OwnerID,
			Class:         p.ErrorClass,
			Timestamp:     occurredAt.UTC().Format(time.RFC3339),
			CustomDetails: details,
		},
	}
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
