package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"usher/internal/api"
)

// ErrNoResolution indicates the daemon has no access resolution for the
// requested item.
var ErrNoResolution = errors.New("client: no resolution for item")

// StatusError reports a non-2xx API response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("client: server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("client: server returned %d", e.StatusCode)
}

// Client issues access-resolution requests against the daemon HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New builds a client for the API at baseURL. An empty token disables
// authentication headers.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient substitutes the underlying HTTP client, primarily for
// tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.http = hc
	}
	return c
}

// FetchManifest retrieves the plain manifest for an item. The call blocks
// (subject to ctx) until the daemon resolves optimal access.
func (c *Client) FetchManifest(ctx context.Context, itemID string) (*api.ManifestResponse, error) {
	var out api.ManifestResponse
	if err := c.getJSON(ctx, "/api/access/"+url.PathEscape(itemID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchGradedManifest retrieves the graded manifest for an item: whatever
// access is servable right now, tagged with its readiness grade.
func (c *Client) FetchGradedManifest(ctx context.Context, itemID string) (*api.GradedManifestResponse, error) {
	var out api.GradedManifestResponse
	if err := c.getJSON(ctx, "/api/access/"+url.PathEscape(itemID)+"/graded", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchBatch retrieves graded access for several items in one round trip.
func (c *Client) FetchBatch(ctx context.Context, req *api.BatchRequest) (*api.BatchResponse, error) {
	var out api.BatchResponse
	if err := c.postJSON(ctx, "/api/access/batch", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendReceipt submits a consumption receipt and returns its identifier.
func (c *Client) SendReceipt(ctx context.Context, req *api.ReceiptRequest) (string, error) {
	var out api.ReceiptResponse
	if err := c.postJSON(ctx, "/api/access/receipt", req, &out); err != nil {
		return "", err
	}
	return out.ReceiptID, nil
}

// FetchStatus retrieves daemon runtime status.
func (c *Client) FetchStatus(ctx context.Context) (*api.StatusResponse, error) {
	var out api.StatusResponse
	if err := c.getJSON(ctx, "/api/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("client: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return ErrNoResolution
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Message: decodeErrorMessage(resp.Body)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}

func decodeErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var envelope api.ErrorResponse
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error != "" {
		return envelope.Error
	}
	return strings.TrimSpace(string(raw))
}
