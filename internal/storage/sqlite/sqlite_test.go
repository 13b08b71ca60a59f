package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/codeface/bugcrawl/internal/storage"
	"github.com/codeface/bugcrawl/internal/storage/sqldb"
	"github.com/codeface/bugcrawl/internal/types"
)

func newTestStore(t *testing.T) *sqldb.Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "bugs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func count(t *testing.T, s *sqldb.Store, table string) int {
	t.Helper()
	n, err := s.CountRows(context.Background(), table)
	if err != nil {
		t.Fatalf("CountRows(%s): %v", table, err)
	}
	return n
}

func TestOpenCreatesSchema(t *testing.T) {
	s := newTestStore(t)
	for _, table := range sqldb.Tables {
		if n := count(t, s, table); n != 0 {
			t.Errorf("%s has %d rows in a new database", table, n)
		}
	}
}

func TestOpenInMemory(t *testing.T) {
	s, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	defer s.Close()
	if _, err := s.GetOrCreateProjectID(context.Background(), "p", storage.AnalysisMethod); err != nil {
		t.Fatalf("GetOrCreateProjectID: %v", err)
	}
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p1, err := s.GetOrCreateProjectID(ctx, "firefox", storage.AnalysisMethod)
	if err != nil {
		t.Fatal(err)
	}
	p2, _ := s.GetOrCreateProjectID(ctx, "firefox", storage.AnalysisMethod)
	p3, _ := s.GetOrCreateProjectID(ctx, "thunderbird", storage.AnalysisMethod)
	if p1 != p2 || p1 == p3 {
		t.Errorf("project ids = %d %d %d", p1, p2, p3)
	}

	a, err := s.GetOrCreatePerson(ctx, p1, "Ada", "ada@example.org")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := s.GetOrCreatePerson(ctx, p1, "Ada L.", "ada@example.org")
	c, _ := s.GetOrCreatePerson(ctx, p3, "Ada", "ada@example.org")
	if a != b || a == c {
		t.Errorf("person ids = %d %d %d", a, b, c)
	}
	if n := count(t, s, "person"); n != 2 {
		t.Errorf("person rows = %d, want 2", n)
	}
}

func seedIssue(t *testing.T, s *sqldb.Store, projectID int64, bugID string) types.InternalID {
	t.Helper()
	ctx := context.Background()
	who, err := s.GetOrCreatePerson(ctx, projectID, "Dev", "dev@example.org")
	if err != nil {
		t.Fatal(err)
	}
	sub := "General"
	id, err := s.InsertIssue(ctx, types.IssueRow{
		BugID:           types.IssueID(bugID),
		ProjectID:       projectID,
		CreationDate:    time.Date(2014, 3, 1, 0, 0, 0, 0, time.UTC),
		ModifiedDate:    time.Date(2014, 3, 2, 0, 0, 0, 0, time.UTC),
		Status:          "NEW",
		CreatedBy:       who,
		AssignedTo:      who,
		SubComponent:    "Firefox",
		SubSubComponent: &sub,
	})
	if err != nil {
		t.Fatalf("InsertIssue: %v", err)
	}
	return id
}

func TestInsertRowsAndReset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid, _ := s.GetOrCreateProjectID(ctx, "firefox", storage.AnalysisMethod)
	other, _ := s.GetOrCreateProjectID(ctx, "other", storage.AnalysisMethod)

	a := seedIssue(t, s, pid, "101")
	b := seedIssue(t, s, pid, "103")
	keep := seedIssue(t, s, other, "9")
	if a == b {
		t.Fatal("issues share an internal id")
	}
	who, _ := s.GetOrCreatePerson(ctx, pid, "Dev", "dev@example.org")
	when := time.Date(2014, 3, 3, 0, 0, 0, 0, time.UTC)

	if err := s.InsertHistoryEvents(ctx, []types.HistoryRow{
		{IssueID: a, ChangeDate: when, Field: "status", OldValue: "NEW", NewValue: "ASSIGNED", Who: who},
		{IssueID: a, ChangeDate: when, Field: "priority", OldValue: "P3", NewValue: "P1", Who: who},
	}); err != nil {
		t.Fatalf("InsertHistoryEvents: %v", err)
	}
	if err := s.InsertComments(ctx, []types.CommentRow{{IssueID: a, Who: who, CommentDate: when}}); err != nil {
		t.Fatalf("InsertComments: %v", err)
	}
	if err := s.InsertCCList(ctx, []types.CCRow{{IssueID: a, Who: who}, {IssueID: keep, Who: who}}); err != nil {
		t.Fatalf("InsertCCList: %v", err)
	}
	if err := s.InsertEdges(ctx, types.EdgeDependency, []types.Edge{{From: a, To: b}}); err != nil {
		t.Fatalf("InsertEdges: %v", err)
	}
	if err := s.InsertEdges(ctx, types.EdgeDuplicate, []types.Edge{{From: b, To: a}}); err != nil {
		t.Fatalf("InsertEdges: %v", err)
	}
	if err := s.InsertEdges(ctx, "issue_links", []types.Edge{{From: a, To: b}}); err == nil {
		t.Error("unknown edge kind accepted")
	}
	if err := s.InsertHistoryEvents(ctx, nil); err != nil {
		t.Errorf("empty batch: %v", err)
	}

	want := map[string]int{"issue": 3, "issue_history": 2, "issue_comment": 1, "cc_list": 2, "issue_dependencies": 1, "issue_duplicates": 1}
	for table, n := range want {
		if got := count(t, s, table); got != n {
			t.Errorf("%s rows = %d, want %d", table, got, n)
		}
	}

	if err := s.ResetTrackerData(ctx, pid); err != nil {
		t.Fatalf("ResetTrackerData: %v", err)
	}
	want = map[string]int{"issue": 1, "issue_history": 0, "issue_comment": 0, "cc_list": 1, "issue_dependencies": 0, "issue_duplicates": 0}
	for table, n := range want {
		if got := count(t, s, table); got != n {
			t.Errorf("after reset %s rows = %d, want %d", table, got, n)
		}
	}
}

func TestBatchIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid, _ := s.GetOrCreateProjectID(ctx, "p", storage.AnalysisMethod)
	a := seedIssue(t, s, pid, "1")

	// The second row references a missing issue and violates the foreign key.
	err := s.InsertCCList(ctx, []types.CCRow{{IssueID: a, Who: 1}, {IssueID: 999, Who: 1}})
	if err == nil {
		t.Fatal("expected foreign key failure")
	}
	if n := count(t, s, "cc_list"); n != 0 {
		t.Errorf("cc_list rows = %d after failed batch, want 0", n)
	}
}

func TestClosedStore(t *testing.T) {
	s := newTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetOrCreateProjectID(context.Background(), "p", storage.AnalysisMethod); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
