// Package storage defines the sink the ingestion parser writes into.
//
// Implementations live in sub-packages: sqlite and mysql share the SQL
// core in sqldb, memory keeps rows in process for tests and dry runs.
// Use factory.Open to pick one from configuration.
package storage

import (
	"context"
	"errors"

	"github.com/codeface/bugcrawl/internal/types"
)

// AnalysisMethod tags the project rows this tool owns.
const AnalysisMethod = "bugtracker"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned when a sink is used after Close.
var ErrClosed = errors.New("sink closed")

// Sink is the relational store ingestion writes into.
type Sink interface {
	// GetOrCreateProjectID returns the ID of the named project, creating it
	// if absent.
	GetOrCreateProjectID(ctx context.Context, name, analysisMethod string) (int64, error)

	// GetOrCreatePerson returns the person with email in projectID,
	// creating it with name if absent.
	GetOrCreatePerson(ctx context.Context, projectID int64, name, email string) (types.PersonID, error)

	// InsertIssue inserts one issue row and returns its internal ID.
	InsertIssue(ctx context.Context, row types.IssueRow) (types.InternalID, error)

	// InsertHistoryEvents, InsertComments and InsertCCList insert one batch
	// each. A batch is written atomically.
	InsertHistoryEvents(ctx context.Context, rows []types.HistoryRow) error
	InsertComments(ctx context.Context, rows []types.CommentRow) error
	InsertCCList(ctx context.Context, rows []types.CCRow) error

	// InsertEdges writes one batch of relation rows of the given kind.
	InsertEdges(ctx context.Context, kind types.EdgeKind, edges []types.Edge) error

	// ResetTrackerData removes every issue-tracker row of projectID.
	ResetTrackerData(ctx context.Context, projectID int64) error

	Close() error
}

// ValidEdgeKind reports whether kind names a relation table.
func ValidEdgeKind(kind types.EdgeKind) bool {
	return kind == types.EdgeDependency || kind == types.EdgeDuplicate
}
