// Package bugzilla provides the Bugzilla REST integration for the tracker
// framework.
package bugzilla

import (
	"time"
)

// Placeholder account Bugzilla uses for unassigned bugs.
const NobodyEmail = "nobody@mozilla.org"

// Bug is one element of the "bugs" array returned by rest/bug/{id}.
type Bug struct {
	ID             int       `json:"id"`
	Summary        string    `json:"summary"`
	CreationTime   time.Time `json:"creation_time"`
	LastChangeTime time.Time `json:"last_change_time"`
	URL            string    `json:"url"`
	Resolution     string    `json:"resolution"`
	Severity       string    `json:"severity"`
	Priority       string    `json:"priority"`
	Status         string    `json:"status"`
	Product        string    `json:"product"`
	Component      string    `json:"component"`

	CreatorDetail    User   `json:"creator_detail"`
	AssignedToDetail User   `json:"assigned_to_detail"`
	CCDetail         []User `json:"cc_detail"`

	DependsOn []int `json:"depends_on"`
	DupeOf    *int  `json:"dupe_of"`
}

// User is the *_detail object attached to person fields.
type User struct {
	ID       int    `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	RealName string `json:"real_name"`
}

// BugResponse wraps rest/bug/{id}.
type BugResponse struct {
	Bugs []Bug `json:"bugs"`
}

// ListResponse wraps rest/bug?include_fields=id.
type ListResponse struct {
	Bugs []ListedBug `json:"bugs"`
}

// ListedBug is a listing entry; only the id field is requested.
type ListedBug struct {
	ID int `json:"id"`
}

// HistoryResponse wraps rest/bug/{id}/history.
type HistoryResponse struct {
	Bugs []BugHistory `json:"bugs"`
}

// BugHistory is the history of one bug.
type BugHistory struct {
	ID      int            `json:"id"`
	History []HistoryEntry `json:"history"`
}

// HistoryEntry is one change set.
type HistoryEntry struct {
	When    time.Time `json:"when"`
	Who     string    `json:"who"`
	Changes []Change  `json:"changes"`
}

// Change is one field modification inside a HistoryEntry.
type Change struct {
	FieldName string `json:"field_name"`
	Removed   string `json:"removed"`
	Added     string `json:"added"`
}

// CommentResponse wraps rest/bug/{id}/comment. Bugs is keyed by the
// decimal bug ID.
type CommentResponse struct {
	Bugs map[string]BugComments `json:"bugs"`
}

// BugComments holds the comments of one bug.
type BugComments struct {
	Comments []Comment `json:"comments"`
}

// Comment is one bug comment.
type Comment struct {
	ID           int       `json:"id"`
	Count        int       `json:"count"`
	Author       string    `json:"author"`
	CreationTime time.Time `json:"creation_time"`
	Text         string    `json:"text"`
}
