package publish

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/publora/publora/internal/domain/model"
)

func integrationWith(creds, config map[string]string) model.Integration {
	return model.Integration{
		ID:          "int-1",
		UserID:      "user-1",
		Platform:    "test",
		IsActive:    true,
		Credentials: creds,
		Config:      config,
	}
}

func TestRegistry_LookupIsCaseInsensitive(t *testing.T) {
	registry := DefaultRegistry()

	for _, name := range []string{"facebook", "Facebook", "FACEBOOK", " facebook "} {
		adapter, ok := registry.Lookup(name)
		require.True(t, ok, "lookup %q", name)
		assert.Equal(t, "facebook", adapter.Platform())
	}

	_, ok := registry.Lookup("myspace")
	assert.False(t, ok)
}

func TestDefaultRegistry_CoversAllPlatforms(t *testing.T) {
	registry := DefaultRegistry()

	assert.Equal(t, []string{
		"blogger", "bluesky", "facebook", "instagram",
		"linkedin", "pinterest", "reddit", "twitter",
	}, registry.Platforms())
}

func TestUnimplementedAdapter_AlwaysFails(t *testing.T) {
	registry := DefaultRegistry()

	for _, platform := range []string{"twitter", "instagram", "blogger"} {
		adapter, ok := registry.Lookup(platform)
		require.True(t, ok)

		result := adapter.Publish(context.Background(), Request{Content: "hello"})
		assert.False(t, result.OK, platform)
		assert.NotEmpty(t, result.Error, platform)
	}
}

func TestFacebookAdapter_Publish(t *testing.T) {
	var gotForm url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/my-page/feed", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	adapter := NewFacebookAdapter(FacebookConfig{BaseURL: server.URL})
	result := adapter.Publish(context.Background(), Request{
		Content:   "big announcement",
		MediaURLs: []string{"https://example.com/a.png"},
		Integration: integrationWith(
			map[string]string{"access_token": "tok"},
			map[string]string{"page_id": "my-page"},
		),
	})

	require.True(t, result.OK, result.Error)
	assert.Equal(t, "big announcement", gotForm.Get("message"))
	assert.Equal(t, "tok", gotForm.Get("access_token"))
	assert.Equal(t, "https://example.com/a.png", gotForm.Get("link"))
}

func TestFacebookAdapter_MissingCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected when credentials are missing")
	}))
	defer server.Close()

	adapter := NewFacebookAdapter(FacebookConfig{BaseURL: server.URL})
	result := adapter.Publish(context.Background(), Request{
		Content:     "post",
		Integration: integrationWith(nil, nil),
	})

	assert.False(t, result.OK)
	assert.Equal(t, "Missing Facebook page access token or page id", result.Error)
}

func TestFacebookAdapter_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":"token expired"}`)
	}))
	defer server.Close()

	adapter := NewFacebookAdapter(FacebookConfig{BaseURL: server.URL})
	result := adapter.Publish(context.Background(), Request{
		Content: "post",
		Integration: integrationWith(
			map[string]string{"page_access_token": "tok"},
			map[string]string{"page_id": "pg"},
		),
	})

	assert.False(t, result.OK)
	assert.Contains(t, result.Error, "Facebook API error 403")
	assert.Contains(t, result.Error, "token expired")
}

func TestLinkedInAdapter_Publish(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/ugcPosts", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.Equal(t, "2.0.0", r.Header.Get("X-Restli-Protocol-Version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	adapter := NewLinkedInAdapter(LinkedInConfig{BaseURL: server.URL})
	result := adapter.Publish(context.Background(), Request{
		Content: "professional update",
		Integration: integrationWith(
			map[string]string{"access_token": "tok"},
			map[string]string{"owner_urn": "urn:li:person:abc"},
		),
	})

	require.True(t, result.OK, result.Error)
	assert.Equal(t, "urn:li:person:abc", gotBody["author"])
	assert.Equal(t, "PUBLISHED", gotBody["lifecycleState"])
}

func TestLinkedInAdapter_MissingOwnerURN(t *testing.T) {
	adapter := NewLinkedInAdapter(LinkedInConfig{BaseURL: "http://127.0.0.1:1"})
	result := adapter.Publish(context.Background(), Request{
		Content:     "post",
		Integration: integrationWith(map[string]string{"access_token": "tok"}, nil),
	})

	assert.False(t, result.OK)
	assert.Equal(t, "Missing LinkedIn access token or owner URN", result.Error)
}

func TestPinterestAdapter_Publish(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/pins", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	adapter := NewPinterestAdapter(PinterestConfig{BaseURL: server.URL})
	result := adapter.Publish(context.Background(), Request{
		Content:   strings.Repeat("x", 600),
		MediaURLs: []string{"https://example.com/pin.png"},
		Integration: integrationWith(
			map[string]string{"access_token": "tok"},
			map[string]string{"board_id": "board-9"},
		),
	})

	require.True(t, result.OK, result.Error)
	assert.Equal(t, "board-9", gotBody["board_id"])
	assert.Len(t, gotBody["title"], 80)
	assert.Len(t, gotBody["description"], 500)
	media, ok := gotBody["media_source"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "image_url", media["source_type"])
	assert.Equal(t, "https://example.com/pin.png", media["url"])
}

func TestPinterestAdapter_MissingPreconditions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected when preconditions fail")
	}))
	defer server.Close()

	adapter := NewPinterestAdapter(PinterestConfig{BaseURL: server.URL})

	tests := []struct {
		name  string
		creds map[string]string
		cfg   map[string]string
		media []string
	}{
		{"no token", nil, map[string]string{"board_id": "b"}, []string{"https://example.com/a.png"}},
		{"no board", map[string]string{"access_token": "tok"}, nil, []string{"https://example.com/a.png"}},
		{"no image", map[string]string{"access_token": "tok"}, map[string]string{"board_id": "b"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := adapter.Publish(context.Background(), Request{
				Content:     "pin me",
				MediaURLs:   tt.media,
				Integration: integrationWith(tt.creds, tt.cfg),
			})
			assert.False(t, result.OK)
			assert.Equal(t, "Missing Pinterest token, boardId, or image URL", result.Error)
		})
	}
}

func TestBlueskyAdapter_Publish(t *testing.T) {
	var gotRecord map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/xrpc/com.atproto.server.createSession":
			_ = json.NewEncoder(w).Encode(map[string]string{
				"did":       "did:plc:abc",
				"accessJwt": "jwt-token",
			})
		case "/xrpc/com.atproto.repo.createRecord":
			require.Equal(t, "Bearer jwt-token", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRecord))
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	adapter := NewBlueskyAdapter(BlueskyConfig{BaseURL: server.URL})
	result := adapter.Publish(context.Background(), Request{
		Content: "skeet",
		Integration: integrationWith(
			map[string]string{"identifier": "user.bsky.social", "app_password": "pass"},
			nil,
		),
	})

	require.True(t, result.OK, result.Error)
	assert.Equal(t, "did:plc:abc", gotRecord["repo"])
	assert.Equal(t, "app.bsky.feed.post", gotRecord["collection"])
	record, ok := gotRecord["record"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "skeet", record["text"])
	assert.NotEmpty(t, record["createdAt"])
}

func TestBlueskyAdapter_LoginFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/xrpc/com.atproto.server.createSession", r.URL.Path)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, "Invalid identifier or password")
	}))
	defer server.Close()

	adapter := NewBlueskyAdapter(BlueskyConfig{BaseURL: server.URL})
	result := adapter.Publish(context.Background(), Request{
		Content: "skeet",
		Integration: integrationWith(
			map[string]string{"identifier": "user.bsky.social", "app_password": "wrong"},
			nil,
		),
	})

	assert.False(t, result.OK)
	assert.Contains(t, result.Error, "Bluesky login error 401")
}

func TestBlueskyAdapter_IncompleteSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"did": "did:plc:abc"})
	}))
	defer server.Close()

	adapter := NewBlueskyAdapter(BlueskyConfig{BaseURL: server.URL})
	result := adapter.Publish(context.Background(), Request{
		Content: "skeet",
		Integration: integrationWith(
			map[string]string{"identifier": "user.bsky.social", "app_password": "pass"},
			nil,
		),
	})

	assert.False(t, result.OK)
	assert.Equal(t, "Bluesky login returned an incomplete session", result.Error)
}

func TestRedditAdapter_Publish(t *testing.T) {
	var gotSubmit url.Values
	authServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/access_token", r.URL.Path)
		require.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "reddit-token",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	}))
	defer authServer.Close()

	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/submit", r.URL.Path)
		require.Equal(t, "Bearer reddit-token", r.Header.Get("Authorization"))
		require.Equal(t, "test-agent/1.0", r.Header.Get("User-Agent"))
		require.NoError(t, r.ParseForm())
		gotSubmit = r.PostForm
		w.WriteHeader(http.StatusOK)
	}))
	defer apiServer.Close()

	adapter := NewRedditAdapter(RedditConfig{
		AuthBaseURL: authServer.URL,
		APIBaseURL:  apiServer.URL,
	})
	result := adapter.Publish(context.Background(), Request{
		Content: "an interesting discussion topic",
		Integration: integrationWith(
			map[string]string{
				"client_id":     "cid",
				"client_secret": "secret",
				"username":      "poster",
				"password":      "hunter2",
				"user_agent":    "test-agent/1.0",
			},
			map[string]string{"subreddit": "golang"},
		),
	})

	require.True(t, result.OK, result.Error)
	assert.Equal(t, "golang", gotSubmit.Get("sr"))
	assert.Equal(t, "self", gotSubmit.Get("kind"))
	assert.Equal(t, "an interesting discussion topic", gotSubmit.Get("title"))
	assert.Equal(t, "an interesting discussion topic", gotSubmit.Get("text"))
}

func TestRedditAdapter_MissingCredentials(t *testing.T) {
	adapter := NewRedditAdapter(RedditConfig{})
	result := adapter.Publish(context.Background(), Request{
		Content:     "post",
		Integration: integrationWith(map[string]string{"client_id": "cid"}, nil),
	})

	assert.False(t, result.OK)
	assert.Contains(t, result.Error, "Missing Reddit credentials")
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "ab", truncateRunes("abc", 2))
	// Rune-aware, never splits a multibyte character.
	assert.Equal(t, "héll", truncateRunes("héllo", 4))
}
