package publish

import (
	"context"
	"net/http"
	"strings"
)

const (
	pinterestAPIURL = "https://api.pinterest.com/v5"

	pinterestTitleRunes       = 80
	pinterestDescriptionRunes = 500
)

// PinterestConfig configures the Pinterest adapter.
type PinterestConfig struct {
	BaseURL string
	Client  *http.Client
}

// PinterestAdapter creates pins on a board. Pins require an image, so a job
// without media URLs fails before any network call.
type PinterestAdapter struct {
	baseURL string
	client  *http.Client
}

// NewPinterestAdapter creates the Pinterest adapter.
func NewPinterestAdapter(cfg PinterestConfig) *PinterestAdapter {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = pinterestAPIURL
	}
	return &PinterestAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  defaultHTTPClient(cfg.Client),
	}
}

// Platform returns the canonical platform identifier.
func (a *PinterestAdapter) Platform() string { return "pinterest" }

// Publish creates a pin with the first media URL as the image, the first 80
// chars of content as the title and the first 500 as the description.
func (a *PinterestAdapter) Publish(ctx context.Context, req Request) Result {
	token := req.Integration.Credential("access_token")
	boardID := req.Integration.Setting("board_id")
	if token == "" || boardID == "" || len(req.MediaURLs) == 0 {
		return Failure("Missing Pinterest token, boardId, or image URL")
	}

	body := map[string]any{
		"board_id":    boardID,
		"title":       truncateRunes(req.Content, pinterestTitleRunes),
		"description": truncateRunes(req.Content, pinterestDescriptionRunes),
		"media_source": map[string]any{
			"source_type": "image_url",
			"url":         req.MediaURLs[0],
		},
	}

	resp, err := postJSON(ctx, a.client, a.baseURL+"/pins", body, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if err != nil {
		return Failure("Pinterest request failed: %v", err)
	}
	if !resp.Success() {
		return Failure("Pinterest API error %d: %s", resp.StatusCode, resp.BodyExcerpt())
	}
	return Succeeded()
}
