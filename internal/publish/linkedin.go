package publish

import (
	"context"
	"net/http"
	"strings"
)

const linkedinAPIURL = "https://api.linkedin.com"

// LinkedInConfig configures the LinkedIn UGC adapter.
type LinkedInConfig struct {
	BaseURL string
	Client  *http.Client
}

// LinkedInAdapter creates UGC share posts on behalf of a member or
// organization URN.
type LinkedInAdapter struct {
	baseURL string
	client  *http.Client
}

// NewLinkedInAdapter creates the LinkedIn adapter.
func NewLinkedInAdapter(cfg LinkedInConfig) *LinkedInAdapter {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = linkedinAPIURL
	}
	return &LinkedInAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  defaultHTTPClient(cfg.Client),
	}
}

// Platform returns the canonical platform identifier.
func (a *LinkedInAdapter) Platform() string { return "linkedin" }

// Publish builds a UGC share post body and submits it. Requires the access
// token credential and the owner URN config field.
func (a *LinkedInAdapter) Publish(ctx context.Context, req Request) Result {
	token := req.Integration.Credential("access_token")
	ownerURN := req.Integration.Setting("owner_urn")
	if token == "" || ownerURN == "" {
		return Failure("Missing LinkedIn access token or owner URN")
	}

	body := map[string]any{
		"author":         ownerURN,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": map[string]any{
				"shareCommentary": map[string]any{
					"text": req.Content,
				},
				"shareMediaCategory": "NONE",
			},
		},
		"visibility": map[string]any{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	resp, err := postJSON(ctx, a.client, a.baseURL+"/v2/ugcPosts", body, map[string]string{
		"Authorization":             "Bearer " + token,
		"X-Restli-Protocol-Version": "2.0.0",
	})
	if err != nil {
		return Failure("LinkedIn request failed: %v", err)
	}
	if !resp.Success() {
		return Failure("LinkedIn API error %d: %s", resp.StatusCode, resp.BodyExcerpt())
	}
	return Succeeded()
}
