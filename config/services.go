package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeDispatcher runs the publish dispatch runner.
	ServiceModeDispatcher ServiceMode = "dispatcher"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeDispatcher,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeDispatcher:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, dispatcher)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// DispatcherConfig contains publish dispatch runner configuration.
type DispatcherConfig struct {
	// MaxBatch is the maximum number of due jobs to claim per cycle.
	MaxBatch int `env:"DISPATCHER_MAX_BATCH" envDefault:"20"`

	// Interval is the dispatch tick interval.
	Interval time.Duration `env:"DISPATCHER_INTERVAL" envDefault:"15m"`

	// UserConcurrency bounds how many users are processed in parallel per
	// cycle. Zero means unbounded.
	UserConcurrency int `env:"DISPATCHER_USER_CONCURRENCY" envDefault:"4"`

	// MaxAttempts is the default attempt budget for new publish jobs.
	MaxAttempts int `env:"DISPATCHER_MAX_ATTEMPTS" envDefault:"3"`

	// BackoffCap is the upper bound on the exponential retry delay.
	BackoffCap time.Duration `env:"DISPATCHER_BACKOFF_CAP" envDefault:"60s"`

	// BackoffJitter is the upper bound on the random delay added to each
	// retry to spread load.
	BackoffJitter time.Duration `env:"DISPATCHER_BACKOFF_JITTER" envDefault:"1s"`

	// RunOnStart triggers one dispatch cycle immediately on startup instead
	// of waiting for the first tick.
	RunOnStart bool `env:"DISPATCHER_RUN_ON_START" envDefault:"true"`
}

// Sanitize applies guardrails to dispatcher configuration values.
func (d *DispatcherConfig) Sanitize() {
	if d.MaxBatch < 1 {
		d.MaxBatch = 1
	}
	if d.Interval < time.Second {
		d.Interval = time.Second
	}
	if d.UserConcurrency < 0 {
		d.UserConcurrency = 0
	}
	if d.MaxAttempts < 1 {
		d.MaxAttempts = 1
	}
	if d.BackoffCap <= 0 {
		d.BackoffCap = 60 * time.Second
	}
	if d.BackoffJitter < 0 {
		d.BackoffJitter = 0
	}
}
