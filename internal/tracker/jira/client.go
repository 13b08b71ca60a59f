package jira

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"

	"github.com/codeface/bugcrawl/internal/tracker"
	"github.com/codeface/bugcrawl/internal/types"
)

// Client provides methods to interact with the Jira REST API v2.
type Client struct {
	http    *tracker.HTTPClient
	project string
}

// NewClient creates a new Jira client. With a username the API key is sent
// as basic auth (Cloud), otherwise as a bearer token (Server/DC PAT).
func NewClient(cfg tracker.Config) *Client {
	c := tracker.NewHTTPClient(cfg)
	switch {
	case cfg.APIKey != "" && cfg.Username != "":
		auth := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.APIKey))
		c.Header.Set("Authorization", "Basic "+auth)
	case cfg.APIKey != "":
		c.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	return &Client{http: c, project: cfg.Project}
}

// SearchKeys returns one page of issue keys in the project, oldest first.
func (c *Client) SearchKeys(ctx context.Context, startAt, maxResults int) ([]types.IssueID, error) {
	q := url.Values{}
	q.Set("jql", fmt.Sprintf("project = %q ORDER BY key ASC", c.project))
	q.Set("fields", "key")
	q.Set("startAt", strconv.Itoa(startAt))
	q.Set("maxResults", strconv.Itoa(maxResults))

	var resp SearchResponse
	if err := c.http.GetJSON(ctx, tracker.Request{Path: "rest/api/2/search", Query: q, Part: tracker.PartDiscovery}, &resp); err != nil {
		return nil, err
	}
	keys := make([]types.IssueID, 0, len(resp.Issues))
	for _, is := range resp.Issues {
		keys = append(keys, types.IssueID(is.Key))
	}
	return keys, nil
}

// FetchIssue retrieves a single issue by key.
func (c *Client) FetchIssue(ctx context.Context, key types.IssueID) (*Issue, error) {
	var issue Issue
	req := tracker.Request{Path: "rest/api/2/issue/" + url.PathEscape(key.String()), Part: tracker.PartIssue, ID: key}
	if err := c.http.GetJSON(ctx, req, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// FetchChangelog retrieves every changelog page of an issue.
func (c *Client) FetchChangelog(ctx context.Context, key types.IssueID) ([]ChangeGroup, error) {
	var all []ChangeGroup
	for startAt := 0; ; {
		q := url.Values{}
		q.Set("startAt", strconv.Itoa(startAt))
		q.Set("maxResults", strconv.Itoa(MaxPageSize))
		var page ChangelogResponse
		req := tracker.Request{Path: "rest/api/2/issue/" + url.PathEscape(key.String()) + "/changelog", Query: q, Part: tracker.PartHistory, ID: key}
		if err := c.http.GetJSON(ctx, req, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Values...)
		startAt += len(page.Values)
		if page.IsLast || len(page.Values) == 0 || startAt >= page.Total {
			return all, nil
		}
	}
}

// FetchComments retrieves every comment page of an issue.
func (c *Client) FetchComments(ctx context.Context, key types.IssueID) ([]Comment, error) {
	var all []Comment
	for startAt := 0; ; {
		q := url.Values{}
		q.Set("startAt", strconv.Itoa(startAt))
		q.Set("maxResults", strconv.Itoa(MaxPageSize))
		var page CommentResponse
		req := tracker.Request{Path: "rest/api/2/issue/" + url.PathEscape(key.String()) + "/comment", Query: q, Part: tracker.PartComments, ID: key}
		if err := c.http.GetJSON(ctx, req, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Comments...)
		startAt += len(page.Comments)
		if len(page.Comments) == 0 || startAt >= page.Total {
			return all, nil
		}
	}
}

// FetchWatchers retrieves the users watching an issue.
func (c *Client) FetchWatchers(ctx context.Context, key types.IssueID) ([]User, error) {
	var resp WatchersResponse
	req := tracker.Request{Path: "rest/api/2/issue/" + url.PathEscape(key.String()) + "/watchers", Part: tracker.PartWatchers, ID: key}
	if err := c.http.GetJSON(ctx, req, &resp); err != nil {
		return nil, err
	}
	return resp.Watchers, nil
}
