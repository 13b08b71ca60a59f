package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codeface/bugcrawl/internal/types"
)

// maxErrorBody bounds how much of a failed response is kept for the error.
const maxErrorBody = 512

// Request describes one read-only JSON call against a tracker.
type Request struct {
	// Path is joined to the client's base URL.
	Path  string
	Query url.Values

	// Part and ID label a decode failure.
	Part Part
	ID   types.IssueID
}

// HTTPClient performs GET requests against one tracker base URL and turns
// failures into the typed errors Classify understands.
type HTTPClient struct {
	BaseURL string
	Client  *http.Client
	// Header is added to every request (auth, Accept).
	Header http.Header
}

// NewHTTPClient builds an HTTPClient from a defaulted Config.
func NewHTTPClient(cfg Config) *HTTPClient {
	cfg = cfg.WithDefaults()
	h := make(http.Header)
	h.Set("Accept", "application/json")
	return &HTTPClient{
		BaseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		Client:  cfg.HTTPClient,
		Header:  h,
	}
}

// URL returns the absolute URL a request resolves to.
func (c *HTTPClient) URL(r Request) string {
	u := c.BaseURL + "/" + strings.TrimPrefix(r.Path, "/")
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}
	return u
}

// GetJSON issues the request and decodes the body into out.
func (c *HTTPClient) GetJSON(ctx context.Context, r Request, out interface{}) error {
	reqURL := c.URL(r)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.Header {
		req.Header[k] = v
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransportError{URL: reqURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &RateLimitError{URL: reqURL, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{URL: reqURL, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{URL: reqURL, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &MalformedError{Part: r.Part, ID: r.ID, Err: err}
	}
	return nil
}

// parseRetryAfter accepts both the delay-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
