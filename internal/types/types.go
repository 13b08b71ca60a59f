// Package types defines the data model shared by the crawler, the cache and
// the ingestion parser.
package types

import (
	"sort"
	"strconv"
	"time"
)

// IssueID is the identifier the remote tracker assigns to an issue.
// Numeric trackers (Bugzilla) use the decimal form, key-based trackers
// (Jira) use the key itself ("PROJ-123").
type IssueID string

// IssueIDFromInt formats a numeric tracker ID.
func IssueIDFromInt(n int) IssueID {
	return IssueID(strconv.Itoa(n))
}

func (id IssueID) String() string { return string(id) }

// SortIDs sorts ids in place. Numeric IDs compare numerically and sort
// before non-numeric ones, which compare lexically.
func SortIDs(ids []IssueID) {
	sort.Slice(ids, func(i, j int) bool { return lessID(ids[i], ids[j]) })
}

func lessID(a, b IssueID) bool {
	na, errA := strconv.Atoi(string(a))
	nb, errB := strconv.Atoi(string(b))
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}

// PersonID is the stable identifier returned by the identity service.
type PersonID int64

// InternalID is the row identifier the sink assigns to an inserted issue.
type InternalID int64

// Person is a free-text person reference as reported by the tracker.
type Person struct {
	Email    string `json:"email"`
	RealName string `json:"real_name,omitempty"`
	Name     string `json:"name,omitempty"`
}

// FieldChange is a single field modification inside a history event.
type FieldChange struct {
	FieldName string `json:"field_name"`
	Removed   string `json:"removed"`
	Added     string `json:"added"`
}

// HistoryEvent is one recorded change set. Who is the actor's email or
// login as reported by the tracker.
type HistoryEvent struct {
	When    time.Time     `json:"when"`
	Who     string        `json:"who"`
	Changes []FieldChange `json:"changes"`
}

// Comment is one issue comment.
type Comment struct {
	Author       string    `json:"author"`
	CreationTime time.Time `json:"creation_time"`
	Text         string    `json:"text,omitempty"`
}

// RawIssue is the fetched representation of one issue, including its
// history and comments. It is what the cache stores under the issue's ID.
type RawIssue struct {
	ID             IssueID   `json:"id"`
	Summary        string    `json:"summary,omitempty"`
	CreationTime   time.Time `json:"creation_time"`
	LastChangeTime time.Time `json:"last_change_time"`
	URL            string    `json:"url"`
	Resolution     string    `json:"resolution"`
	Severity       string    `json:"severity"`
	Priority       string    `json:"priority"`
	Status         string    `json:"status"`
	Product        string    `json:"product"`
	Component      string    `json:"component"`

	Creator    Person   `json:"creator_detail"`
	AssignedTo Person   `json:"assigned_to_detail"`
	CC         []Person `json:"cc_detail,omitempty"`

	DependsOn []IssueID `json:"depends_on,omitempty"`
	DupeOf    *IssueID  `json:"dupe_of,omitempty"`

	History  []HistoryEvent `json:"history,omitempty"`
	Comments []Comment      `json:"comments,omitempty"`
}

// IssueRow is the issue record handed to the sink.
type IssueRow struct {
	BugID           IssueID
	ProjectID       int64
	CreationDate    time.Time
	ModifiedDate    time.Time
	URL             string
	Resolution      string
	Severity        string
	Priority        string
	Status          string
	CreatedBy       PersonID
	AssignedTo      PersonID
	SubComponent    string
	SubSubComponent *string // nil when the product is treated as the project
}

// HistoryRow is one flattened (event, change) pair.
type HistoryRow struct {
	IssueID    InternalID
	ChangeDate time.Time
	Field      string
	OldValue   string
	NewValue   string
	Who        PersonID
}

// CommentRow is one comment record.
type CommentRow struct {
	IssueID     InternalID
	Who         PersonID
	CommentDate time.Time
}

// CCRow links an issue to a person on its CC list.
type CCRow struct {
	IssueID InternalID
	Who     PersonID
}

// EdgeKind names an issue-to-issue relation table.
type EdgeKind string

const (
	EdgeDependency EdgeKind = "issue_dependencies"
	EdgeDuplicate  EdgeKind = "issue_duplicates"
)

// Edge is a resolved relation between two ingested issues.
type Edge struct {
	From InternalID
	To   InternalID
}
