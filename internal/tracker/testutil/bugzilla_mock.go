package testutil

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/codeface/bugcrawl/internal/tracker/bugzilla"
)

// MockBug is one bug served by BugzillaMockServer.
type MockBug struct {
	Bug      bugzilla.Bug
	History  []bugzilla.HistoryEntry
	Comments []bugzilla.Comment
}

// BugzillaMockServer serves the subset of the Bugzilla REST API the
// crawler uses: the id listing, the bug body, history and comments.
type BugzillaMockServer struct {
	*MockTrackerServer

	mu   sync.RWMutex
	bugs map[int]MockBug
}

// NewBugzillaMockServer creates a new Bugzilla mock server.
func NewBugzillaMockServer() *BugzillaMockServer {
	m := &BugzillaMockServer{bugs: make(map[int]MockBug)}
	m.MockTrackerServer = NewMockTrackerServer(m.handleBugzillaRequest)
	return m
}

// AddBug adds a bug to the mock data.
func (m *BugzillaMockServer) AddBug(b MockBug) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bugs[b.Bug.ID] = b
}

// BugPath returns the path of the bug sub-resource ("", "history" or
// "comment") for use with the fault helpers.
func BugPath(id int, sub string) string {
	p := "/rest/bug/" + strconv.Itoa(id)
	if sub != "" {
		p += "/" + sub
	}
	return p
}

func (m *BugzillaMockServer) handleBugzillaRequest(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	parts := strings.Split(path, "/")

	switch {
	case path == "rest/bug":
		m.handleList(w, r)
	case len(parts) >= 3 && parts[0] == "rest" && parts[1] == "bug":
		id, err := strconv.Atoi(parts[2])
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, map[string]interface{}{"error": true, "message": "invalid bug id"})
			return
		}
		m.mu.RLock()
		bug, ok := m.bugs[id]
		m.mu.RUnlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]interface{}{"error": true, "code": 101, "message": "bug does not exist"})
			return
		}
		switch {
		case len(parts) == 3:
			writeJSON(w, bugzilla.BugResponse{Bugs: []bugzilla.Bug{bug.Bug}})
		case parts[3] == "history":
			writeJSON(w, bugzilla.HistoryResponse{Bugs: []bugzilla.BugHistory{{ID: id, History: bug.History}}})
		case parts[3] == "comment":
			writeJSON(w, bugzilla.CommentResponse{Bugs: map[string]bugzilla.BugComments{
				strconv.Itoa(id): {Comments: bug.Comments},
			}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{"error": "Not found"})
	}
}

// handleList serves rest/bug?include_fields=id&limit&offset&product.
func (m *BugzillaMockServer) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	product := q.Get("product")

	m.mu.RLock()
	var ids []int
	for id, b := range m.bugs {
		if product == "" || b.Bug.Product == product {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()
	sort.Ints(ids)

	resp := bugzilla.ListResponse{Bugs: []bugzilla.ListedBug{}}
	for i := offset; i < len(ids) && (limit <= 0 || i < offset+limit); i++ {
		resp.Bugs = append(resp.Bugs, bugzilla.ListedBug{ID: ids[i]})
	}
	writeJSON(w, resp)
}

// MakeBug creates a test bug with common defaults.
func MakeBug(id int, product string) MockBug {
	created := time.Date(2014, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Hour)
	return MockBug{
		Bug: bugzilla.Bug{
			ID:               id,
			Summary:          "bug " + strconv.Itoa(id),
			CreationTime:     created,
			LastChangeTime:   created.Add(24 * time.Hour),
			Resolution:       "FIXED",
			Severity:         "normal",
			Priority:         "P3",
			Status:           "RESOLVED",
			Product:          product,
			Component:        "General",
			CreatorDetail:    bugzilla.User{ID: 1, Email: "reporter@example.org", Name: "reporter@example.org", RealName: "Rita Reporter"},
			AssignedToDetail: bugzilla.User{ID: 2, Email: bugzilla.NobodyEmail, Name: bugzilla.NobodyEmail, RealName: "Nobody; OK to take it and work on it"},
			CCDetail: []bugzilla.User{
				{ID: 3, Email: "watcher@example.org", Name: "watcher@example.org", RealName: "Walt Watcher"},
			},
		},
		History: []bugzilla.HistoryEntry{{
			When: created.Add(time.Hour),
			Who:  "dev@example.org",
			Changes: []bugzilla.Change{
				{FieldName: "status", Removed: "NEW", Added: "ASSIGNED"},
				{FieldName: "assigned_to", Removed: bugzilla.NobodyEmail, Added: "dev@example.org"},
			},
		}},
		Comments: []bugzilla.Comment{
			{ID: id * 10, Count: 0, Author: "reporter@example.org", CreationTime: created, Text: "It crashes."},
			{ID: id*10 + 1, Count: 1, Author: "dev@example.org", CreationTime: created.Add(2 * time.Hour), Text: "Fixed."},
		},
	}
}
