package bugzilla

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/codeface/bugcrawl/internal/tracker"
	"github.com/codeface/bugcrawl/internal/types"
)

// apiKeyHeader carries the Bugzilla API key on every request.
const apiKeyHeader = "X-BUGZILLA-API-KEY"

// Client talks to the Bugzilla REST API. It holds no per-issue state and is
// safe for concurrent use.
type Client struct {
	http *tracker.HTTPClient
}

// NewClient creates a Bugzilla client for cfg.BaseURL.
func NewClient(cfg tracker.Config) *Client {
	c := tracker.NewHTTPClient(cfg)
	if cfg.APIKey != "" {
		c.Header.Set(apiKeyHeader, cfg.APIKey)
	}
	return &Client{http: c}
}

// ListIDs returns one page of IDs for product.
func (c *Client) ListIDs(ctx context.Context, product string, offset, limit int) ([]types.IssueID, error) {
	q := url.Values{}
	q.Set("include_fields", "id")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	q.Set("product", product)

	var resp ListResponse
	if err := c.http.GetJSON(ctx, tracker.Request{Path: "rest/bug", Query: q, Part: tracker.PartDiscovery}, &resp); err != nil {
		return nil, err
	}
	ids := make([]types.IssueID, 0, len(resp.Bugs))
	for _, b := range resp.Bugs {
		ids = append(ids, types.IssueIDFromInt(b.ID))
	}
	return ids, nil
}

// GetBug fetches the bug body.
func (c *Client) GetBug(ctx context.Context, id int) (*Bug, error) {
	issueID := types.IssueIDFromInt(id)
	var resp BugResponse
	req := tracker.Request{Path: fmt.Sprintf("rest/bug/%d", id), Part: tracker.PartIssue, ID: issueID}
	if err := c.http.GetJSON(ctx, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Bugs) == 0 {
		return nil, &tracker.MalformedError{Part: tracker.PartIssue, ID: issueID, Err: errors.New("empty bugs array")}
	}
	return &resp.Bugs[0], nil
}

// GetHistory fetches the change history of a bug. A bug with no recorded
// history yields an empty slice.
func (c *Client) GetHistory(ctx context.Context, id int) ([]HistoryEntry, error) {
	var resp HistoryResponse
	req := tracker.Request{Path: fmt.Sprintf("rest/bug/%d/history", id), Part: tracker.PartHistory, ID: types.IssueIDFromInt(id)}
	if err := c.http.GetJSON(ctx, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Bugs) == 0 {
		return nil, nil
	}
	return resp.Bugs[0].History, nil
}

// GetComments fetches the comments of a bug.
func (c *Client) GetComments(ctx context.Context, id int) ([]Comment, error) {
	issueID := types.IssueIDFromInt(id)
	var resp CommentResponse
	req := tracker.Request{Path: fmt.Sprintf("rest/bug/%d/comment", id), Part: tracker.PartComments, ID: issueID}
	if err := c.http.GetJSON(ctx, req, &resp); err != nil {
		return nil, err
	}
	bc, ok := resp.Bugs[issueID.String()]
	if !ok {
		return nil, &tracker.MalformedError{Part: tracker.PartComments, ID: issueID, Err: fmt.Errorf("no comments entry for bug %d", id)}
	}
	return bc.Comments, nil
}
