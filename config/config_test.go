package config

import (
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"

	"github.com/target/mmk-jobqueue/internal/domain/model"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "single service - worker",
			input:    "worker",
			expected: map[ServiceMode]bool{ServiceModeWorker: true},
		},
		{
			name:     "single service - local-queue",
			input:    "local-queue",
			expected: map[ServiceMode]bool{ServiceModeLocalQueue: true},
		},
		{
			name:  "all services with spaces",
			input: " worker , sweeper , local-queue ",
			expected: map[ServiceMode]bool{
				ServiceModeWorker:     true,
				ServiceModeSweeper:    true,
				ServiceModeLocalQueue: true,
			},
		},
		{
			name:  "duplicate services",
			input: "worker,worker,sweeper",
			expected: map[ServiceMode]bool{
				ServiceModeWorker:  true,
				ServiceModeSweeper: true,
			},
		},
		{
			name:        "empty string",
			input:       "",
			expectError: true,
		},
		{
			name:        "only commas",
			input:       ",,",
			expectError: true,
		},
		{
			name:        "invalid service",
			input:       "worker,http",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error for input %q, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error for input %q: %v", tt.input, err)
				return
			}

			if len(result) != len(tt.expected) {
				t.Errorf("expected %d services, got %d", len(tt.expected), len(result))
				return
			}
			for service, expected := range tt.expected {
				if result[service] != expected {
					t.Errorf("expected service %s to be %v, got %v", service, expected, result[service])
				}
			}
		})
	}
}

func TestConfig_ServiceEnabledMethods(t *testing.T) {
	tests := []struct {
		name       string
		services   string
		worker     bool
		sweeper    bool
		localQueue bool
	}{
		{name: "worker only", services: "worker", worker: true},
		{name: "worker and sweeper", services: "worker,sweeper", worker: true, sweeper: true},
		{name: "local queue only", services: "local-queue", localQueue: true},
		{name: "invalid configuration", services: "invalid-service"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{Services: tt.services}

			if cfg.IsWorkerEnabled() != tt.worker {
				t.Errorf("IsWorkerEnabled(): expected %v, got %v", tt.worker, cfg.IsWorkerEnabled())
			}
			if cfg.IsSweeperEnabled() != tt.sweeper {
				t.Errorf("IsSweeperEnabled(): expected %v, got %v", tt.sweeper, cfg.IsSweeperEnabled())
			}
			if cfg.IsLocalQueueEnabled() != tt.localQueue {
				t.Errorf("IsLocalQueueEnabled(): expected %v, got %v", tt.localQueue, cfg.IsLocalQueueEnabled())
			}
		})
	}
}

func TestAppConfig_ParseDefaults(t *testing.T) {
	var cfg AppConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	cfg.Sanitize()

	if cfg.Services != "worker" {
		t.Errorf("expected default services worker, got %q", cfg.Services)
	}
	if cfg.Worker.Concurrency != 1 || cfg.Worker.PollInterval != time.Second || cfg.Worker.ErrorBackoff != 5*time.Second {
		t.Errorf("unexpected worker defaults: %+v", cfg.Worker)
	}
	if cfg.Worker.JobTimeout != 0 {
		t.Errorf("expected worker job timeout disabled by default, got %v", cfg.Worker.JobTimeout)
	}
	if cfg.LocalQueue.Concurrency != 3 || cfg.LocalQueue.Timeout != 120*time.Second {
		t.Errorf("unexpected local queue defaults: %+v", cfg.LocalQueue)
	}
	if cfg.LocalQueue.CleanupInterval != cfg.LocalQueue.Timeout {
		t.Errorf("expected cleanup interval to follow timeout, got %v", cfg.LocalQueue.CleanupInterval)
	}
	if cfg.Sweeper.ProcessingTimeout != 30*time.Minute {
		t.Errorf("expected processing timeout 30m, got %v", cfg.Sweeper.ProcessingTimeout)
	}
	if cfg.Sweeper.RecoveryMode != model.RecoveryModeRequeue {
		t.Errorf("expected requeue recovery mode, got %q", cfg.Sweeper.RecoveryMode)
	}
	if cfg.ConfigCache.TTL != 5*time.Minute {
		t.Errorf("expected config cache ttl 5m, got %v", cfg.ConfigCache.TTL)
	}
	if cfg.Generation.Provider != GenerationProviderEcho {
		t.Errorf("expected echo provider, got %q", cfg.Generation.Provider)
	}
	if cfg.Postgres.Name != "jobqueue" || !cfg.Postgres.RunMigrationsOnStart {
		t.Errorf("unexpected postgres defaults: %+v", cfg.Postgres)
	}
	if cfg.Redis.Enabled {
		t.Error("expected redis disabled by default")
	}
}

func TestAppConfig_ParseOverrides(t *testing.T) {
	var cfg AppConfig
	err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{
		"SERVICES":              "worker,sweeper",
		"WORKER_CONCURRENCY":    "4",
		"WORKER_JOB_TIMEOUT":    "90s",
		"SWEEPER_RECOVERY_MODE": "FAIL",
		"REDIS_ENABLED":         "true",
		"REDIS_CLUSTER_NODES":   "a:7000,b:7001",
		"GENERATION_PROVIDER":   "gemini",
		"GEMINI_API_KEY":        "k",
		"LOG_LEVEL":             "DEBUG",
	}})
	if err != nil {
		t.Fatalf("parse env: %v", err)
	}
	cfg.Sanitize()

	if !cfg.IsWorkerEnabled() || !cfg.IsSweeperEnabled() || cfg.IsLocalQueueEnabled() {
		t.Errorf("unexpected services: %q", cfg.Services)
	}
	if cfg.Worker.Concurrency != 4 || cfg.Worker.JobTimeout != 90*time.Second {
		t.Errorf("unexpected worker config: %+v", cfg.Worker)
	}
	if cfg.Sweeper.RecoveryMode != model.RecoveryModeFail {
		t.Errorf("expected fail recovery mode, got %q", cfg.Sweeper.RecoveryMode)
	}
	if !cfg.Redis.Enabled || len(cfg.Redis.ClusterNodes) != 2 {
		t.Errorf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.Generation.Provider != GenerationProviderGemini {
		t.Errorf("expected gemini provider, got %q", cfg.Generation.Provider)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %q", cfg.LogLevel)
	}
}

func TestSweeperConfig_Sanitize(t *testing.T) {
	cfg := SweeperConfig{
		Interval:          time.Second,
		ProcessingTimeout: time.Second,
		RecoveryMode:      "bogus",
		BatchSize:         50000,
	}
	cfg.Sanitize()

	if cfg.Interval != 10*time.Second {
		t.Errorf("expected interval clamp, got %v", cfg.Interval)
	}
	if cfg.ProcessingTimeout != time.Minute {
		t.Errorf("expected processing timeout clamp, got %v", cfg.ProcessingTimeout)
	}
	if cfg.RecoveryMode != model.RecoveryModeRequeue {
		t.Errorf("expected unknown mode to fall back to requeue, got %q", cfg.RecoveryMode)
	}
	if cfg.BatchSize != 10000 {
		t.Errorf("expected batch size clamp, got %d", cfg.BatchSize)
	}
	if cfg.DoneMaxAge != time.Hour || cfg.FailedMaxAge != time.Hour {
		t.Errorf("expected retention clamp, got done=%v failed=%v", cfg.DoneMaxAge, cfg.FailedMaxAge)
	}
}

func TestGenerationConfig_SanitizeWithoutAPIKey(t *testing.T) {
	cfg := GenerationConfig{Provider: "gemini", BatchConcurrency: 0}
	cfg.Sanitize()

	if cfg.Provider != GenerationProviderEcho {
		t.Errorf("expected fallback to echo without api key, got %q", cfg.Provider)
	}
	if cfg.BatchConcurrency != 1 {
		t.Errorf("expected batch concurrency clamp, got %d", cfg.BatchConcurrency)
	}
}

func TestValidServiceModes(t *testing.T) {
	modes := ValidServiceModes()
	expected := []ServiceMode{ServiceModeWorker, ServiceModeSweeper, ServiceModeLocalQueue}

	if len(modes) != len(expected) {
		t.Fatalf("expected %d service modes, got %d", len(expected), len(modes))
	}
	for i, mode := range modes {
		if mode != expected[i] {
			t.Errorf("expected service mode %s at index %d, got %s", expected[i], i, mode)
		}
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
	}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
	}

	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
}

func TestObservabilityNotificationsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Enabled:    true,
		Timeout:    0,
		RetryLimit: -1,
		Slack: SlackNotificationConfig{
			Enabled:      true,
			WebhookURL:   " ",
			JobURLPrefix: " https://ops.example.com/jobs ",
		},
		PagerDuty: PagerDutyNotificationConfig{
			Enabled:    true,
			RoutingKey: " ",
		},
	}

	cfg.Sanitize()

	if cfg.Timeout <= 0 {
		t.Fatalf("expected timeout to fall back to default, got %v", cfg.Timeout)
	}
	if cfg.RetryLimit < 0 {
		t.Fatalf("expected retry limit to be clamped to >= 0, got %d", cfg.RetryLimit)
	}
	if cfg.Slack.Enabled {
		t.Fatal("expected slack to be disabled without a webhook url")
	}
	if cfg.Slack.Username != "jobqueue" {
		t.Fatalf("expected slack username default, got %q", cfg.Slack.Username)
	}
	if cfg.Slack.JobURLPrefix != "https://ops.example.com/jobs" {
		t.Fatalf("expected job url prefix to be trimmed, got %q", cfg.Slack.JobURLPrefix)
	}
	if cfg.PagerDuty.Enabled {
		t.Fatal("expected pagerduty to be disabled without a routing key")
	}
	if cfg.PagerDuty.Source != "jobqueue" {
		t.Fatalf("expected pagerduty source default, got %q", cfg.PagerDuty.Source)
	}

	// Disabled top-level should disable child sinks.
	cfg = ObservabilityNotificationsConfig{
		Enabled: false,
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: "https://hooks.slack.com/services/test",
		},
		PagerDuty: PagerDutyNotificationConfig{
			Enabled:    true,
			RoutingKey: "abc",
		},
	}
	cfg.Sanitize()

	if cfg.Slack.Enabled {
		t.Fatal("expected slack to be disabled when top-level notifications disabled")
	}
	if cfg.PagerDuty.Enabled {
		t.Fatal("expected pagerduty to be disabled when top-level notifications disabled")
	}
}

func TestObservabilityMetricsConfig_PrefixAndTags(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: "statsd:8125",
		Prefix:        " .jobs. ",
		Tags:          map[string]string{" env ": " prod ", " ": "dropped"},
	}
	cfg.Sanitize()

	if cfg.Prefix != "jobs" {
		t.Fatalf("expected prefix to be trimmed, got %q", cfg.Prefix)
	}
	if len(cfg.Tags) != 1 || cfg.Tags["env"] != "prod" {
		t.Fatalf("expected tags to be normalised, got %v", cfg.Tags)
	}

	cfg = ObservabilityMetricsConfig{StatsdAddress: "statsd:8125"}
	cfg.Sanitize()
	if cfg.Prefix != "jobqueue" {
		t.Fatalf("expected default prefix, got %q", cfg.Prefix)
	}
}

func TestObservabilityNotificationsConfig_SkipJobTypesAndActiveSinks(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Enabled:      true,
		SkipJobTypes: []string{" Echo ", "echo", "", "extract"},
		Slack:        SlackNotificationConfig{Enabled: true, WebhookURL: "https://hooks.slack.com/services/x"},
		PagerDuty:    PagerDutyNotificationConfig{Enabled: true, RoutingKey: "rk"},
	}
	cfg.Sanitize()

	if got := cfg.SkipJobTypes; len(got) != 2 || got[0] != "echo" || got[1] != "extract" {
		t.Fatalf("unexpected skip job types %v", got)
	}
	sinks := cfg.ActiveSinks()
	if len(sinks) != 2 || sinks[0] != "slack" || sinks[1] != "pagerduty" {
		t.Fatalf("unexpected active sinks %v", sinks)
	}

	cfg.PagerDuty.Enabled = false
	if sinks := cfg.ActiveSinks(); len(sinks) != 1 {
		t.Fatalf("expected only slack, got %v", sinks)
	}
}
