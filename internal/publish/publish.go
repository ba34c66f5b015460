// Package publish contains the platform adapter contract and the concrete
// adapters that submit content to external social platforms.
package publish

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/publora/publora/internal/domain/model"
)

// Request carries one unit of content plus the integration holding the
// decrypted credentials for the target platform. Credentials always arrive as
// an explicit parameter; adapters never read ambient state.
type Request struct {
	Content     string
	MediaURLs   []string
	Integration model.Integration
}

// Result is the structured outcome of a publish attempt. Platform errors,
// including non-2xx responses, are reported here rather than as Go errors so
// one job's failure can never abort a batch.
type Result struct {
	OK    bool
	Error string
}

// Succeeded returns a successful Result.
func Succeeded() Result {
	return Result{OK: true}
}

// Failure returns a failed Result with a formatted reason.
func Failure(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// Adapter knows how to authenticate and submit one unit of content to exactly
// one external platform.
type Adapter interface {
	// Platform returns the canonical lower-cased platform identifier.
	Platform() string
	// Publish submits the content. Precondition failures (missing
	// credential or config fields) are surfaced as a failed Result before
	// any network call.
	Publish(ctx context.Context, req Request) Result
}

// Registry maps platform identifiers to adapters. Registration happens at
// startup; lookup is a case-insensitive map access.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry from the given adapters. A later adapter for
// the same platform replaces an earlier one.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		if a == nil {
			continue
		}
		r.adapters[strings.ToLower(strings.TrimSpace(a.Platform()))] = a
	}
	return r
}

// DefaultRegistry returns a registry with every supported platform adapter
// wired with its production endpoint.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewFacebookAdapter(FacebookConfig{}),
		NewLinkedInAdapter(LinkedInConfig{}),
		NewRedditAdapter(RedditConfig{}),
		NewBlueskyAdapter(BlueskyConfig{}),
		NewPinterestAdapter(PinterestConfig{}),
		NewUnimplementedAdapter("twitter", "Twitter/X publishing requires OAuth 1.0a server support, which is not yet available"),
		NewUnimplementedAdapter("instagram", "Instagram publishing requires the media-publishing flow, which is not yet available"),
		NewUnimplementedAdapter("blogger", "Blogger publishing requires the OAuth refresh-token flow, which is not yet available"),
	)
}

// Lookup returns the adapter for the platform, matching case-insensitively.
func (r *Registry) Lookup(platform string) (Adapter, bool) {
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(platform))]
	return a, ok
}

// Platforms returns the sorted set of registered platform identifiers.
func (r *Registry) Platforms() []string {
	out := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// truncateRunes shortens s to at most n runes.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
