package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultRequestTimeout = 15 * time.Second
	// maxErrorBodyBytes bounds the response excerpt kept for the job's
	// last-error field.
	maxErrorBodyBytes = 2 * 1024
)

func defaultHTTPClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: defaultRequestTimeout}
}

// apiResponse is the decoded outcome of a platform API call.
type apiResponse struct {
	StatusCode int
	Body       []byte
}

// Success reports whether the platform accepted the request.
func (r apiResponse) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// BodyExcerpt returns a trimmed, bounded view of the response body for error
// reporting.
func (r apiResponse) BodyExcerpt() string {
	return strings.TrimSpace(string(r.Body))
}

// postJSON sends a JSON POST and returns the bounded response.
func postJSON(ctx context.Context, client *http.Client, endpoint string, payload any, headers map[string]string) (apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return apiResponse{}, fmt.Errorf("encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return apiResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doRequest(client, req)
}

// postForm sends a form-encoded POST and returns the bounded response.
func postForm(ctx context.Context, client *http.Client, endpoint string, form url.Values, headers map[string]string) (apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return apiResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doRequest(client, req)
}

func doRequest(client *http.Client, req *http.Request) (apiResponse, error) {
	resp, err := client.Do(req)
	if err != nil {
		return apiResponse{}, err
	}

	limited := io.LimitReader(resp.Body, maxErrorBodyBytes+1)
	body, readErr := io.ReadAll(limited)
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	closeErr := resp.Body.Close()
	if readErr != nil {
		return apiResponse{}, fmt.Errorf("read response body: %w", readErr)
	}
	if closeErr != nil {
		return apiResponse{}, fmt.Errorf("close response body: %w", closeErr)
	}

	return apiResponse{StatusCode: resp.StatusCode, Body: body}, nil
}
