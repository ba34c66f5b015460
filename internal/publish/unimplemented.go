package publish

import (
	"context"
	"strings"
)

// UnimplementedAdapter registers a platform whose publishing flow is not yet
// supported. Publish always returns a structured failure explaining why, so
// jobs for these platforms consume attempts and terminally fail with a
// useful last error instead of sitting pending forever.
type UnimplementedAdapter struct {
	platform string
	reason   string
}

// NewUnimplementedAdapter creates a stub adapter for the named platform.
func NewUnimplementedAdapter(platform, reason string) *UnimplementedAdapter {
	return &UnimplementedAdapter{
		platform: strings.ToLower(strings.TrimSpace(platform)),
		reason:   reason,
	}
}

// Platform returns the canonical platform identifier.
func (a *UnimplementedAdapter) Platform() string { return a.platform }

// Publish always fails with the configured reason.
func (a *UnimplementedAdapter) Publish(_ context.Context, _ Request) Result {
	return Failure("%s", a.reason)
}
