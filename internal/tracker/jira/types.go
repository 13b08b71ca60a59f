// Package jira provides the Jira REST (v2) integration for the tracker
// framework.
package jira

import (
	"time"
)

// API constants
const (
	MaxPageSize = 100
	timeLayout  = "2006-01-02T15:04:05.000-0700"
)

// Link type names mapped onto the crawl relations.
const (
	LinkBlocks    = "Blocks"
	LinkDuplicate = "Duplicate"
)

// Issue represents a Jira issue from the REST API.
type Issue struct {
	ID     string `json:"id"`
	Key    string `json:"key"` // e.g., "PROJ-123"
	Self   string `json:"self"`
	Fields Fields `json:"fields"`
}

// Fields contains the issue field values.
type Fields struct {
	Summary    string       `json:"summary"`
	Status     *Named       `json:"status"`
	Priority   *Named       `json:"priority"`
	Resolution *Named       `json:"resolution"`
	IssueType  *Named       `json:"issuetype"`
	Project    *ProjectRef  `json:"project"`
	Components []Named      `json:"components"`
	Assignee   *User        `json:"assignee"`
	Reporter   *User        `json:"reporter"`
	Creator    *User        `json:"creator"`
	Watchers   *WatcherInfo `json:"watches"`
	Created    string       `json:"created"`
	Updated    string       `json:"updated"`
	IssueLinks []IssueLink  `json:"issuelinks"`
}

// Named is any Jira object identified by a display name (status,
// priority, resolution, component).
type Named struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProjectRef is a reference to a project.
type ProjectRef struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// WatcherInfo is the "watches" summary field of an issue. It carries the
// count only; the watchers themselves come from WatchersResponse.
type WatcherInfo struct {
	WatchCount int  `json:"watchCount"`
	IsWatching bool `json:"isWatching"`
}

// WatchersResponse is the body of rest/api/2/issue/{key}/watchers.
type WatchersResponse struct {
	WatchCount int    `json:"watchCount"`
	IsWatching bool   `json:"isWatching"`
	Watchers   []User `json:"watchers"`
}

// User represents a Jira user.
type User struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
	Name         string `json:"name"` // Server/DC only
}

// IssueLink represents a link between issues.
type IssueLink struct {
	ID           string    `json:"id"`
	Type         LinkType  `json:"type"`
	InwardIssue  *IssueRef `json:"inwardIssue,omitempty"`
	OutwardIssue *IssueRef `json:"outwardIssue,omitempty"`
}

// LinkType describes the type of link.
type LinkType struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Inward  string `json:"inward"`
	Outward string `json:"outward"`
}

// IssueRef is a reference to another issue in a link.
type IssueRef struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// SearchResponse is the response from the JQL search endpoint.
type SearchResponse struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// ChangelogResponse is one page of rest/api/2/issue/{key}/changelog.
type ChangelogResponse struct {
	StartAt    int           `json:"startAt"`
	MaxResults int           `json:"maxResults"`
	Total      int           `json:"total"`
	IsLast     bool          `json:"isLast"`
	Values     []ChangeGroup `json:"values"`
}

// ChangeGroup is one change set in an issue changelog.
type ChangeGroup struct {
	ID      string       `json:"id"`
	Author  *User        `json:"author"`
	Created string       `json:"created"`
	Items   []ChangeItem `json:"items"`
}

// ChangeItem is one field modification.
type ChangeItem struct {
	Field      string `json:"field"`
	FromString string `json:"fromString"`
	ToString   string `json:"toString"`
}

// CommentResponse is one page of rest/api/2/issue/{key}/comment.
type CommentResponse struct {
	StartAt    int       `json:"startAt"`
	MaxResults int       `json:"maxResults"`
	Total      int       `json:"total"`
	Comments   []Comment `json:"comments"`
}

// Comment is one issue comment.
type Comment struct {
	ID      string `json:"id"`
	Author  *User  `json:"author"`
	Body    string `json:"body"`
	Created string `json:"created"`
}

// ParseTime parses Jira's timestamp format, returning the zero time for
// empty or unparseable values.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, s); err != nil {
			return time.Time{}
		}
	}
	return t
}
