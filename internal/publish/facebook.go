package publish

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

const facebookGraphURL = "https://graph.facebook.com/v19.0"

// FacebookConfig configures the Facebook page adapter.
type FacebookConfig struct {
	// BaseURL overrides the Graph API endpoint, used by tests.
	BaseURL string
	Client  *http.Client
}

// FacebookAdapter posts to a Facebook page feed using a page access token.
type FacebookAdapter struct {
	baseURL string
	client  *http.Client
}

// NewFacebookAdapter creates the Facebook adapter.
func NewFacebookAdapter(cfg FacebookConfig) *FacebookAdapter {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = facebookGraphURL
	}
	return &FacebookAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  defaultHTTPClient(cfg.Client),
	}
}

// Platform returns the canonical platform identifier.
func (a *FacebookAdapter) Platform() string { return "facebook" }

// Publish posts the content to the page feed endpoint. Requires the page
// access token credential and the page id config field.
func (a *FacebookAdapter) Publish(ctx context.Context, req Request) Result {
	token := req.Integration.Credential("access_token")
	if token == "" {
		token = req.Integration.Credential("page_access_token")
	}
	pageID := req.Integration.Setting("page_id")
	if token == "" || pageID == "" {
		return Failure("Missing Facebook page access token or page id")
	}

	form := url.Values{}
	form.Set("message", req.Content)
	form.Set("access_token", token)
	if len(req.MediaURLs) > 0 {
		form.Set("link", req.MediaURLs[0])
	}

	endpoint := a.baseURL + "/" + url.PathEscape(pageID) + "/feed"
	resp, err := postForm(ctx, a.client, endpoint, form, nil)
	if err != nil {
		return Failure("Facebook request failed: %v", err)
	}
	if !resp.Success() {
		return Failure("Facebook API error %d: %s", resp.StatusCode, resp.BodyExcerpt())
	}
	return Succeeded()
}
