package config

import (
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:  "single service - http",
			input: "http",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP: true,
			},
		},
		{
			name:  "single service - dispatcher",
			input: "dispatcher",
			expected: map[ServiceMode]bool{
				ServiceModeDispatcher: true,
			},
		},
		{
			name:  "both services",
			input: "http,dispatcher",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:       true,
				ServiceModeDispatcher: true,
			},
		},
		{
			name:  "services with spaces",
			input: " http , dispatcher ",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:       true,
				ServiceModeDispatcher: true,
			},
		},
		{
			name:  "duplicate services",
			input: "http,http,dispatcher",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:       true,
				ServiceModeDispatcher: true,
			},
		},
		{
			name:        "empty string",
			input:       "",
			expectError: true,
		},
		{
			name:        "only spaces and commas",
			input:       " , , ",
			expectError: true,
		},
		{
			name:        "invalid service name",
			input:       "http,invalid-service",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
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

func TestAppConfig_Defaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Postgres.Host != "localhost" {
		t.Errorf("expected default db host localhost, got %q", cfg.Postgres.Host)
	}
	if cfg.Postgres.Port != 5432 {
		t.Errorf("expected default db port 5432, got %d", cfg.Postgres.Port)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("expected default http addr :8080, got %q", cfg.HTTP.Addr)
	}
	if cfg.Dispatcher.MaxBatch != 20 {
		t.Errorf("expected default dispatcher max batch 20, got %d", cfg.Dispatcher.MaxBatch)
	}
	if cfg.Dispatcher.Interval != 15*time.Minute {
		t.Errorf("expected default dispatcher interval 15m, got %s", cfg.Dispatcher.Interval)
	}
	if cfg.Dispatcher.MaxAttempts != 3 {
		t.Errorf("expected default max attempts 3, got %d", cfg.Dispatcher.MaxAttempts)
	}
	if cfg.Dispatcher.BackoffCap != 60*time.Second {
		t.Errorf("expected default backoff cap 60s, got %s", cfg.Dispatcher.BackoffCap)
	}

	services, err := cfg.GetEnabledServices()
	if err != nil {
		t.Fatalf("enabled services: %v", err)
	}
	if !services[ServiceModeHTTP] || !services[ServiceModeDispatcher] {
		t.Errorf("expected http and dispatcher enabled by default, got %v", services)
	}
}

func TestDispatcherConfig_Sanitize(t *testing.T) {
	cfg := DispatcherConfig{
		MaxBatch:        -5,
		Interval:        time.Millisecond,
		UserConcurrency: -1,
		MaxAttempts:     0,
		BackoffCap:      -time.Second,
		BackoffJitter:   -time.Second,
	}
	cfg.Sanitize()

	if cfg.MaxBatch != 1 {
		t.Errorf("expected max batch clamped to 1, got %d", cfg.MaxBatch)
	}
	if cfg.Interval != time.Second {
		t.Errorf("expected interval clamped to 1s, got %s", cfg.Interval)
	}
	if cfg.UserConcurrency != 0 {
		t.Errorf("expected user concurrency clamped to 0, got %d", cfg.UserConcurrency)
	}
	if cfg.MaxAttempts != 1 {
		t.Errorf("expected max attempts clamped to 1, got %d", cfg.MaxAttempts)
	}
	if cfg.BackoffCap != 60*time.Second {
		t.Errorf("expected backoff cap defaulted to 60s, got %s", cfg.BackoffCap)
	}
	if cfg.BackoffJitter != 0 {
		t.Errorf("expected jitter clamped to 0, got %s", cfg.BackoffJitter)
	}
}

func TestObservabilityNotificationsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Enabled:    true,
		RetryLimit: -1,
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: "   ",
		},
	}
	cfg.Sanitize()

	if cfg.Timeout != 5*time.Second {
		t.Errorf("expected default timeout 5s, got %s", cfg.Timeout)
	}
	if cfg.RetryLimit != 0 {
		t.Errorf("expected retry limit clamped to 0, got %d", cfg.RetryLimit)
	}
	if cfg.Slack.Enabled {
		t.Error("expected slack disabled when webhook url is blank")
	}
	if cfg.Slack.Username != "publora" {
		t.Errorf("expected default slack username, got %q", cfg.Slack.Username)
	}
}
