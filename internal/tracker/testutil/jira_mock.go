package testutil

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/codeface/bugcrawl/internal/tracker/jira"
)

// MockJiraIssue is one issue served by JiraMockServer.
type MockJiraIssue struct {
	Issue     jira.Issue
	Changelog []jira.ChangeGroup
	Comments  []jira.Comment
	Watchers  []jira.User
}

// JiraMockServer provides Jira-specific mock functionality.
type JiraMockServer struct {
	*MockTrackerServer

	mu     sync.RWMutex
	issues map[string]MockJiraIssue
}

// NewJiraMockServer creates a new Jira mock server.
func NewJiraMockServer() *JiraMockServer {
	m := &JiraMockServer{issues: make(map[string]MockJiraIssue)}
	m.MockTrackerServer = NewMockTrackerServer(m.handleJiraRequest)
	return m
}

// AddIssue adds a single issue to the mock data.
func (m *JiraMockServer) AddIssue(is MockJiraIssue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issues[is.Issue.Key] = is
}

// handleJiraRequest handles Jira-specific API routes.
func (m *JiraMockServer) handleJiraRequest(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if path == "/rest/api/2/search" {
		m.handleSearch(w, r)
		return
	}
	if !strings.HasPrefix(path, "/rest/api/2/issue/") {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{"error": "Not found"})
		return
	}

	parts := strings.Split(strings.TrimPrefix(path, "/rest/api/2/issue/"), "/")
	m.mu.RLock()
	is, ok := m.issues[parts[0]]
	m.mu.RUnlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]interface{}{"errorMessages": []string{"Issue does not exist"}})
		return
	}

	startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
	maxResults, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
	switch {
	case len(parts) == 1:
		writeJSON(w, is.Issue)
	case parts[1] == "changelog":
		lo, hi := window(startAt, maxResults, len(is.Changelog))
		writeJSON(w, jira.ChangelogResponse{
			StartAt:    startAt,
			MaxResults: maxResults,
			Total:      len(is.Changelog),
			IsLast:     hi == len(is.Changelog),
			Values:     is.Changelog[lo:hi],
		})
	case parts[1] == "comment":
		lo, hi := window(startAt, maxResults, len(is.Comments))
		writeJSON(w, jira.CommentResponse{
			StartAt:    startAt,
			MaxResults: maxResults,
			Total:      len(is.Comments),
			Comments:   is.Comments[lo:hi],
		})
	case parts[1] == "watchers":
		writeJSON(w, jira.WatchersResponse{
			WatchCount: len(is.Watchers),
			Watchers:   append([]jira.User{}, is.Watchers...),
		})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// handleSearch serves keys ordered by their numeric suffix.
func (m *JiraMockServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	startAt, _ := strconv.Atoi(q.Get("startAt"))
	maxResults, _ := strconv.Atoi(q.Get("maxResults"))

	m.mu.RLock()
	keys := make([]string, 0, len(m.issues))
	for k := range m.issues {
		keys = append(keys, k)
	}
	m.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keyNumber(keys[i]) < keyNumber(keys[j]) })

	lo, hi := window(startAt, maxResults, len(keys))
	resp := jira.SearchResponse{StartAt: startAt, MaxResults: maxResults, Total: len(keys), Issues: []jira.Issue{}}
	for _, k := range keys[lo:hi] {
		resp.Issues = append(resp.Issues, jira.Issue{Key: k})
	}
	writeJSON(w, resp)
}

func window(startAt, maxResults, n int) (int, int) {
	lo := min(max(startAt, 0), n)
	if maxResults <= 0 {
		return lo, n
	}
	return lo, min(lo+maxResults, n)
}

func keyNumber(key string) int {
	_, num, _ := strings.Cut(key, "-")
	n, _ := strconv.Atoi(num)
	return n
}

// MakeJiraIssue creates a test Jira issue with common defaults.
func MakeJiraIssue(key, summary, statusName string) MockJiraIssue {
	created := time.Date(2020, 5, 1, 9, 30, 0, 0, time.UTC)
	stamp := created.Format("2006-01-02T15:04:05.000-0700")
	dev := &jira.User{AccountID: "acc-2", DisplayName: "Dana Dev", EmailAddress: "dana@example.org"}
	return MockJiraIssue{
		Issue: jira.Issue{
			ID:  "10" + strings.TrimPrefix(key, "PROJ-"),
			Key: key,
			Fields: jira.Fields{
				Summary:    summary,
				Status:     &jira.Named{ID: "1", Name: statusName},
				IssueType:  &jira.Named{ID: "10001", Name: "Bug"},
				Priority:   &jira.Named{ID: "3", Name: "Medium"},
				Project:    &jira.ProjectRef{Key: "PROJ", Name: "Project"},
				Components: []jira.Named{{ID: "1", Name: "Core"}},
				Reporter:   &jira.User{AccountID: "acc-1", DisplayName: "Rita Reporter", EmailAddress: "rita@example.org"},
				Assignee:   dev,
				Created:    stamp,
				Updated:    stamp,
			},
		},
		Changelog: []jira.ChangeGroup{{
			ID:      "1",
			Author:  dev,
			Created: stamp,
			Items:   []jira.ChangeItem{{Field: "status", FromString: "Open", ToString: statusName}},
		}},
		Comments: []jira.Comment{{ID: "1", Author: dev, Body: "Looking into it.", Created: stamp}},
	}
}
