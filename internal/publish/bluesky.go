package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

const blueskyServiceURL = "https://bsky.social"

// BlueskyConfig configures the Bluesky adapter.
type BlueskyConfig struct {
	BaseURL string
	Client  *http.Client
}

// BlueskyAdapter publishes feed posts over the AT Protocol XRPC surface.
// Publishing is two-step: create a session with the identifier and app
// password to obtain the DID and access JWT, then create a feed-post record.
type BlueskyAdapter struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

// NewBlueskyAdapter creates the Bluesky adapter.
func NewBlueskyAdapter(cfg BlueskyConfig) *BlueskyAdapter {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = blueskyServiceURL
	}
	return &BlueskyAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  defaultHTTPClient(cfg.Client),
		now:     time.Now,
	}
}

// Platform returns the canonical platform identifier.
func (a *BlueskyAdapter) Platform() string { return "bluesky" }

// Publish logs in and creates an app.bsky.feed.post record. Requires the
// identifier and app password credentials; no config fields.
func (a *BlueskyAdapter) Publish(ctx context.Context, req Request) Result {
	identifier := req.Integration.Credential("identifier")
	appPassword := req.Integration.Credential("app_password")
	if identifier == "" || appPassword == "" {
		return Failure("Missing Bluesky identifier or app password")
	}

	session, result := a.createSession(ctx, identifier, appPassword)
	if !result.OK {
		return result
	}

	record := map[string]any{
		"repo":       session.DID,
		"collection": "app.bsky.feed.post",
		"record": map[string]any{
			"$type":     "app.bsky.feed.post",
			"text":      req.Content,
			"createdAt": a.now().UTC().Format(time.RFC3339),
		},
	}

	resp, err := postJSON(ctx, a.client, a.baseURL+"/xrpc/com.atproto.repo.createRecord", record, map[string]string{
		"Authorization": "Bearer " + session.AccessJWT,
	})
	if err != nil {
		return Failure("Bluesky request failed: %v", err)
	}
	if !resp.Success() {
		return Failure("Bluesky API error %d: %s", resp.StatusCode, resp.BodyExcerpt())
	}
	return Succeeded()
}

type blueskySession struct {
	DID       string `json:"did"`
	AccessJWT string `json:"accessJwt"`
}

func (a *BlueskyAdapter) createSession(ctx context.Context, identifier, appPassword string) (blueskySession, Result) {
	resp, err := postJSON(ctx, a.client, a.baseURL+"/xrpc/com.atproto.server.createSession", map[string]string{
		"identifier": identifier,
		"password":   appPassword,
	}, nil)
	if err != nil {
		return blueskySession{}, Failure("Bluesky login failed: %v", err)
	}
	if !resp.Success() {
		return blueskySession{}, Failure("Bluesky login error %d: %s", resp.StatusCode, resp.BodyExcerpt())
	}

	var session blueskySession
	if err := json.Unmarshal(resp.Body, &session); err != nil {
		return blueskySession{}, Failure("Bluesky login returned an unreadable session: %v", err)
	}
	if session.DID == "" || session.AccessJWT == "" {
		return blueskySession{}, Failure("Bluesky login returned an incomplete session")
	}
	return session, Succeeded()
}
