package config

import (
	"slices"
	"strings"
	"time"
)

const defaultObservabilityName = "jobqueue"

// ObservabilityConfig groups the StatsD sink and the job failure fan-out.
type ObservabilityConfig struct {
	Metrics       ObservabilityMetricsConfig
	Notifications ObservabilityNotificationsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
}

// ObservabilityMetricsConfig controls job lifecycle and sweeper metrics.
type ObservabilityMetricsConfig struct {
	Enabled       bool              `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string            `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string            `env:"OBSERVABILITY_METRICS_PREFIX"         envDefault:"jobqueue"`
	Tags          map[string]string `env:"OBSERVABILITY_METRICS_TAGS"`
}

// Sanitize trims the address and prefix; an empty address disables emission.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), ".")
	if c.Prefix == "" {
		c.Prefix = defaultObservabilityName
	}
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
	if len(c.Tags) == 0 {
		return
	}
	tags := make(map[string]string, len(c.Tags))
	for k, v := range c.Tags {
		if k = strings.TrimSpace(k); k != "" {
			tags[k] = strings.TrimSpace(v)
		}
	}
	c.Tags = tags
}

// IsEnabled reports whether metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// ObservabilityNotificationsConfig controls what happens when a job ends in failed.
type ObservabilityNotificationsConfig struct {
	Enabled    bool          `env:"OBSERVABILITY_NOTIFICATIONS_ENABLED"     envDefault:"false"`
	Timeout    time.Duration `env:"OBSERVABILITY_NOTIFICATIONS_TIMEOUT"     envDefault:"5s"`
	RetryLimit int           `env:"OBSERVABILITY_NOTIFICATIONS_RETRY_LIMIT" envDefault:"3"`
	// SkipJobTypes never notify. Echo jobs are smoke tests.
	SkipJobTypes []string `env:"OBSERVABILITY_NOTIFICATIONS_SKIP_JOB_TYPES" envDefault:"echo"`

	Slack     SlackNotificationConfig     `envPrefix:"OBSERVABILITY_NOTIFICATIONS_SLACK_"`
	PagerDuty PagerDutyNotificationConfig `envPrefix:"OBSERVABILITY_NOTIFICATIONS_PAGERDUTY_"`
}

// Sanitize clamps delivery settings and switches off sinks that cannot deliver.
func (c *ObservabilityNotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	c.RetryLimit = max(c.RetryLimit, 0)
	c.SkipJobTypes = normalizeJobTypes(c.SkipJobTypes)

	c.Slack.sanitize()
	c.PagerDuty.sanitize()

	c.Slack.Enabled = c.Enabled && c.Slack.Enabled && c.Slack.WebhookURL != ""
	c.PagerDuty.Enabled = c.Enabled && c.PagerDuty.Enabled && c.PagerDuty.RoutingKey != ""
}

// ActiveSinks names the sinks that will receive failures, in delivery order.
func (c *ObservabilityNotificationsConfig) ActiveSinks() []string {
	var out []string
	if c.Slack.Enabled {
		out = append(out, "slack")
	}
	if c.PagerDuty.Enabled {
		out = append(out, "pagerduty")
	}
	return out
}

func normalizeJobTypes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, raw := range in {
		jt := strings.ToLower(strings.TrimSpace(raw))
		if jt == "" || slices.Contains(out, jt) {
			continue
		}
		out = append(out, jt)
	}
	return out
}

// SlackNotificationConfig posts failed jobs to an incoming webhook.
type SlackNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	WebhookURL string `env:"WEBHOOK_URL"`
	Channel    string `env:"CHANNEL"`
	Username   string `env:"USERNAME"    envDefault:"jobqueue"`
	// JobURLPrefix turns job ids into links, e.g. an admin page that shows job status.
	JobURLPrefix string `env:"JOB_URL_PREFIX"`
}

func (c *SlackNotificationConfig) sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Channel = strings.TrimSpace(c.Channel)
	c.JobURLPrefix = strings.TrimSpace(c.JobURLPrefix)
	c.Username = orDefault(c.Username)
}

// PagerDutyNotificationConfig raises Events API v2 alerts for failed jobs.
type PagerDutyNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	RoutingKey string `env:"ROUTING_KEY"`
	Source     string `env:"SOURCE"      envDefault:"jobqueue"`
	Component  string `env:"COMPONENT"   envDefault:"jobqueue"`
}

func (c *PagerDutyNotificationConfig) sanitize() {
	c.RoutingKey = strings.TrimSpace(c.RoutingKey)
	c.Source = orDefault(c.Source)
	c.Component = orDefault(c.Component)
}

func orDefault(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return defaultObservabilityName
	}
	return v
}
