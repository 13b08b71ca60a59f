package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/codeface/bugcrawl/internal/types"
)

// HTTPResolver asks a remote id service for person IDs:
// POST {url}/post_user_id with {"name","email","projectID"} returning {"id"}.
type HTTPResolver struct {
	url       string
	projectID int64
	client    *http.Client
	// NewBackOff returns the retry policy for one lookup.
	NewBackOff func() backoff.BackOff
}

type userIDRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	ProjectID int64  `json:"projectID"`
}

type userIDResponse struct {
	ID types.PersonID `json:"id"`
}

// NewHTTPResolver creates a resolver for the id service at baseURL.
func NewHTTPResolver(baseURL string, projectID int64, client *http.Client) *HTTPResolver {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPResolver{
		url:       strings.TrimSuffix(baseURL, "/") + "/post_user_id",
		projectID: projectID,
		client:    client,
		NewBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = 30 * time.Second
			return bo
		},
	}
}

// ResolvePerson implements Resolver. Connection failures and 5xx answers
// are retried; other failures are returned at once.
func (r *HTTPResolver) ResolvePerson(ctx context.Context, descriptor string) (types.PersonID, error) {
	name, email := ParseDescriptor(descriptor)
	body, err := json.Marshal(userIDRequest{Name: name, Email: email, ProjectID: r.projectID})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request body: %w", err)
	}

	var id types.PersonID
	err = backoff.Retry(func() error {
		var err error
		id, err = r.post(ctx, body)
		return err
	}, backoff.WithContext(r.NewBackOff(), ctx))
	return id, err
}

func (r *HTTPResolver) post(ctx context.Context, body []byte) (types.PersonID, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("id service request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return 0, fmt.Errorf("id service error %d: %s", resp.StatusCode, respBody)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, backoff.Permanent(fmt.Errorf("id service error %d: %s", resp.StatusCode, respBody))
	}

	var out userIDResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return 0, backoff.Permanent(fmt.Errorf("failed to parse id service response: %w", err))
	}
	return out.ID, nil
}
