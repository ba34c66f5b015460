package publish

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

const (
	redditAuthURL = "https://www.reddit.com"
	redditAPIURL  = "https://oauth.reddit.com"

	// Reddit self-post titles cap at 300 chars server-side; we use the
	// first 100 chars of the content as the title.
	redditTitleRunes = 100
)

// RedditConfig configures the Reddit adapter.
type RedditConfig struct {
	// AuthBaseURL overrides the token endpoint host, used by tests.
	AuthBaseURL string
	// APIBaseURL overrides the submit endpoint host, used by tests.
	APIBaseURL string
	Client     *http.Client
}

// RedditAdapter submits self-posts to a subreddit. Publishing is two-step:
// a password-grant token exchange followed by the submit call, both sent with
// the integration's registered user agent.
type RedditAdapter struct {
	authBaseURL string
	apiBaseURL  string
	client      *http.Client
}

// NewRedditAdapter creates the Reddit adapter.
func NewRedditAdapter(cfg RedditConfig) *RedditAdapter {
	authBase := strings.TrimSpace(cfg.AuthBaseURL)
	if authBase == "" {
		authBase = redditAuthURL
	}
	apiBase := strings.TrimSpace(cfg.APIBaseURL)
	if apiBase == "" {
		apiBase = redditAPIURL
	}
	return &RedditAdapter{
		authBaseURL: strings.TrimRight(authBase, "/"),
		apiBaseURL:  strings.TrimRight(apiBase, "/"),
		client:      defaultHTTPClient(cfg.Client),
	}
}

// Platform returns the canonical platform identifier.
func (a *RedditAdapter) Platform() string { return "reddit" }

// Publish obtains an OAuth token via the password grant and submits a
// self-post. Requires client id/secret, username, password, and user agent
// credentials plus the subreddit config field.
func (a *RedditAdapter) Publish(ctx context.Context, req Request) Result {
	clientID := req.Integration.Credential("client_id")
	clientSecret := req.Integration.Credential("client_secret")
	username := req.Integration.Credential("username")
	password := req.Integration.Credential("password")
	userAgent := req.Integration.Credential("user_agent")
	subreddit := req.Integration.Setting("subreddit")
	if clientID == "" || clientSecret == "" || username == "" || password == "" || userAgent == "" || subreddit == "" {
		return Failure("Missing Reddit credentials (client id/secret, username, password, user agent) or subreddit")
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  a.authBaseURL + "/api/v1/access_token",
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	// Reddit rejects token requests without a descriptive user agent, so
	// route the oauth2 exchange through a client that sets one.
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, &http.Client{
		Timeout:   a.client.Timeout,
		Transport: &userAgentTransport{agent: userAgent, base: a.client.Transport},
	})
	token, err := conf.PasswordCredentialsToken(tokenCtx, username, password)
	if err != nil {
		return Failure("Reddit token exchange failed: %v", err)
	}

	form := url.Values{}
	form.Set("sr", subreddit)
	form.Set("kind", "self")
	form.Set("title", truncateRunes(req.Content, redditTitleRunes))
	form.Set("text", req.Content)
	form.Set("api_type", "json")

	resp, err := postForm(ctx, a.client, a.apiBaseURL+"/api/submit", form, map[string]string{
		"Authorization": "Bearer " + token.AccessToken,
		"User-Agent":    userAgent,
	})
	if err != nil {
		return Failure("Reddit request failed: %v", err)
	}
	if !resp.Success() {
		return Failure("Reddit API error %d: %s", resp.StatusCode, resp.BodyExcerpt())
	}
	return Succeeded()
}

// userAgentTransport stamps a User-Agent header on every request.
type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.agent)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}
