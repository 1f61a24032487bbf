// Package upstream holds the HTTP/JSON plumbing shared by the case and entity
// service clients.
package upstream

import (
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
	DefaultTimeout     = 10 * time.Second
	DefaultMaxResponse = 8 * 1024 * 1024
)

// NewHTTPClient returns the client every upstream request goes through. The
// timeout covers the whole exchange, connection included.
func NewHTTPClient(timeout time.Duration, transport http.RoundTripper) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// Client issues GET requests against one service base URL.
type Client struct {
	service     string
	baseURL     string
	httpClient  *http.Client
	maxResponse int64
}

func NewClient(service, baseURL string, httpClient *http.Client, maxResponse int64) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultTimeout, nil)
	}
	if maxResponse <= 0 {
		maxResponse = DefaultMaxResponse
	}
	return &Client{
		service:     service,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  httpClient,
		maxResponse: maxResponse,
	}
}

// GetJSON fetches endpoint (relative to the base URL) and decodes the body
// into out. Any failure is returned as *APIError.
func (c *Client) GetJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return c.fail(endpoint, 0, "", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.fail(endpoint, 0, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponse+1))
	if err != nil {
		return c.fail(endpoint, resp.StatusCode, "", err)
	}
	if int64(len(body)) > c.maxResponse {
		return c.fail(endpoint, resp.StatusCode, "", fmt.Errorf("response exceeds %d bytes", c.maxResponse))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > 2048 {
			snippet = snippet[:2048]
		}
		return c.fail(endpoint, resp.StatusCode, snippet, nil)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return c.fail(endpoint, resp.StatusCode, "", fmt.Errorf("decode: %w", err))
	}
	return nil
}

func (c *Client) fail(endpoint string, status int, body string, err error) error {
	return &APIError{
		Service:    c.service,
		Endpoint:   endpoint,
		StatusCode: status,
		Body:       body,
		Err:        err,
	}
}
