// Package sqldb implements storage.Sink over database/sql. The sqlite and
// mysql packages open the connection and supply their schema; the queries
// here are portable between both.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/codeface/bugcrawl/internal/storage"
	"github.com/codeface/bugcrawl/internal/types"
)

// Verify Store implements storage.Sink at compile time
var _ storage.Sink = (*Store)(nil)

// Tables lists the tables every schema must create, parents first.
var Tables = []string{
	"project",
	"person",
	"issue",
	"issue_history",
	"issue_comment",
	"cc_list",
	"issue_dependencies",
	"issue_duplicates",
}

// Store is a SQL-backed sink.
type Store struct {
	db     *sql.DB
	closed atomic.Bool
}

// New applies schema (one statement per element) and returns the store.
func New(ctx context.Context, db *sql.DB, schema []string) (*Store, error) {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// CountRows returns the number of rows in table, which must be one of Tables.
func (s *Store) CountRows(ctx context.Context, table string) (int, error) {
	known := false
	for _, t := range Tables {
		known = known || t == table
	}
	if !known {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
	return n, wrapDBErrorf(err, "count %s", table)
}

// GetOrCreateProjectID implements storage.Sink.
func (s *Store) GetOrCreateProjectID(ctx context.Context, name, analysisMethod string) (int64, error) {
	if s.closed.Load() {
		return 0, storage.ErrClosed
	}
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM project WHERE name = ? AND analysisMethod = ?", name, analysisMethod).Scan(&id)
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO project (name, analysisMethod) VALUES (?, ?)", name, analysisMethod)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, wrapDBErrorf(err, "get or create project %q", name)
}

// GetOrCreatePerson implements storage.Sink.
func (s *Store) GetOrCreatePerson(ctx context.Context, projectID int64, name, email string) (types.PersonID, error) {
	if s.closed.Load() {
		return 0, storage.ErrClosed
	}
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM person WHERE projectId = ? AND email1 = ?", projectID, email).Scan(&id)
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO person (name, email1, projectId) VALUES (?, ?, ?)", name, email, projectID)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return types.PersonID(id), wrapDBErrorf(err, "get or create person %q", email)
}

// InsertIssue implements storage.Sink.
func (s *Store) InsertIssue(ctx context.Context, row types.IssueRow) (types.InternalID, error) {
	if s.closed.Load() {
		return 0, storage.ErrClosed
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO issue
		(bugId, creationDate, modifiedDate, url, resolution, severity, priority,
		 createdBy, assignedTo, projectId, status, subComponent, subSubComponent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.BugID.String(), row.CreationDate.UTC(), row.ModifiedDate.UTC(), row.URL,
		row.Resolution, row.Severity, row.Priority,
		nullPerson(row.CreatedBy), nullPerson(row.AssignedTo), row.ProjectID, row.Status,
		row.SubComponent, nullString(row.SubSubComponent))
	if err != nil {
		return 0, wrapDBErrorf(err, "insert issue %s", row.BugID)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrapDBErrorf(err, "insert issue %s", row.BugID)
	}
	return types.InternalID(id), nil
}

// InsertHistoryEvents implements storage.Sink.
func (s *Store) InsertHistoryEvents(ctx context.Context, rows []types.HistoryRow) error {
	return s.insertBatch(ctx, "insert history",
		"INSERT INTO issue_history (changeDate, field, oldValue, newValue, who, issueId) VALUES (?, ?, ?, ?, ?, ?)",
		len(rows), func(i int) []interface{} {
			r := rows[i]
			return []interface{}{r.ChangeDate.UTC(), r.Field, r.OldValue, r.NewValue, nullPerson(r.Who), int64(r.IssueID)}
		})
}

// InsertComments implements storage.Sink.
func (s *Store) InsertComments(ctx context.Context, rows []types.CommentRow) error {
	return s.insertBatch(ctx, "insert comments",
		"INSERT INTO issue_comment (who, fk_issueId, commentDate) VALUES (?, ?, ?)",
		len(rows), func(i int) []interface{} {
			r := rows[i]
			return []interface{}{nullPerson(r.Who), int64(r.IssueID), r.CommentDate.UTC()}
		})
}

// InsertCCList implements storage.Sink.
func (s *Store) InsertCCList(ctx context.Context, rows []types.CCRow) error {
	return s.insertBatch(ctx, "insert cc list",
		"INSERT INTO cc_list (issueId, who) VALUES (?, ?)",
		len(rows), func(i int) []interface{} {
			return []interface{}{int64(rows[i].IssueID), int64(rows[i].Who)}
		})
}

// InsertEdges implements storage.Sink.
func (s *Store) InsertEdges(ctx context.Context, kind types.EdgeKind, edges []types.Edge) error {
	var query string
	switch kind {
	case types.EdgeDependency:
		query = "INSERT INTO issue_dependencies (issueId, dependsOn) VALUES (?, ?)"
	case types.EdgeDuplicate:
		query = "INSERT INTO issue_duplicates (duplicateIssueId, originalIssueId) VALUES (?, ?)"
	default:
		return fmt.Errorf("insert edges: unknown kind %q", kind)
	}
	return s.insertBatch(ctx, "insert "+string(kind), query, len(edges), func(i int) []interface{} {
		return []interface{}{int64(edges[i].From), int64(edges[i].To)}
	})
}

// ResetTrackerData implements storage.Sink. Child rows go before the
// issues they reference.
func (s *Store) ResetTrackerData(ctx context.Context, projectID int64) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	const byProject = "(SELECT id FROM issue WHERE projectId = ?)"
	stmts := []string{
		"DELETE FROM issue_dependencies WHERE issueId IN " + byProject,
		"DELETE FROM issue_duplicates WHERE duplicateIssueId IN " + byProject,
		"DELETE FROM cc_list WHERE issueId IN " + byProject,
		"DELETE FROM issue_comment WHERE fk_issueId IN " + byProject,
		"DELETE FROM issue_history WHERE issueId IN " + byProject,
		"DELETE FROM issue WHERE projectId = ?",
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt, projectID); err != nil {
				return err
			}
		}
		return nil
	})
	return wrapDBErrorf(err, "reset tracker data for project %d", projectID)
}

// insertBatch runs query once per row inside one transaction.
func (s *Store) insertBatch(ctx context.Context, op, query string, n int, args func(i int) []interface{}) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	if n == 0 {
		return nil
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()
		for i := 0; i < n; i++ {
			if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
		}
		return nil
	})
	return wrapDBError(op, err)
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullPerson stores the zero PersonID (unassigned, unknown actor) as NULL.
func nullPerson(id types.PersonID) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(id), Valid: id != 0}
}
