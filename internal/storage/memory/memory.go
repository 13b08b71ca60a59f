// Package memory implements storage.Sink in process memory. It backs
// dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/codeface/bugcrawl/internal/storage"
	"github.com/codeface/bugcrawl/internal/types"
)

// Verify Sink implements storage.Sink at compile time
var _ storage.Sink = (*Sink)(nil)

// Issue is a stored issue row with its assigned ID.
type Issue struct {
	ID types.InternalID
	types.IssueRow
}

type projectKey struct{ name, method string }

type personKey struct {
	projectID int64
	email     string
}

// Person is a stored person row.
type Person struct {
	ID        types.PersonID
	ProjectID int64
	Name      string
	Email     string
}

// Sink keeps every row in slices guarded by one mutex.
type Sink struct {
	mu sync.Mutex

	projects map[projectKey]int64
	people   map[personKey]*Person
	issues   []Issue
	history  []types.HistoryRow
	comments []types.CommentRow
	cc       []types.CCRow
	edges    map[types.EdgeKind][]types.Edge
	closed   bool
}

// New returns an empty sink.
func New() *Sink {
	return &Sink{
		projects: make(map[projectKey]int64),
		people:   make(map[personKey]*Person),
		edges:    make(map[types.EdgeKind][]types.Edge),
	}
}

func (s *Sink) check() error {
	if s.closed {
		return storage.ErrClosed
	}
	return nil
}

// GetOrCreateProjectID implements storage.Sink.
func (s *Sink) GetOrCreateProjectID(ctx context.Context, name, analysisMethod string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return 0, err
	}
	k := projectKey{name, analysisMethod}
	if id, ok := s.projects[k]; ok {
		return id, nil
	}
	id := int64(len(s.projects) + 1)
	s.projects[k] = id
	return id, nil
}

// GetOrCreatePerson implements storage.Sink.
func (s *Sink) GetOrCreatePerson(ctx context.Context, projectID int64, name, email string) (types.PersonID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return 0, err
	}
	k := personKey{projectID, email}
	if p, ok := s.people[k]; ok {
		return p.ID, nil
	}
	p := &Person{ID: types.PersonID(len(s.people) + 1), ProjectID: projectID, Name: name, Email: email}
	s.people[k] = p
	return p.ID, nil
}

// InsertIssue implements storage.Sink.
func (s *Sink) InsertIssue(ctx context.Context, row types.IssueRow) (types.InternalID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return 0, err
	}
	var last types.InternalID
	if n := len(s.issues); n > 0 {
		last = s.issues[n-1].ID
	}
	id := last + 1
	s.issues = append(s.issues, Issue{ID: id, IssueRow: row})
	return id, nil
}

// InsertHistoryEvents implements storage.Sink.
func (s *Sink) InsertHistoryEvents(ctx context.Context, rows []types.HistoryRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	s.history = append(s.history, rows...)
	return nil
}

// InsertComments implements storage.Sink.
func (s *Sink) InsertComments(ctx context.Context, rows []types.CommentRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	s.comments = append(s.comments, rows...)
	return nil
}

// InsertCCList implements storage.Sink.
func (s *Sink) InsertCCList(ctx context.Context, rows []types.CCRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	s.cc = append(s.cc, rows...)
	return nil
}

// InsertEdges implements storage.Sink.
func (s *Sink) InsertEdges(ctx context.Context, kind types.EdgeKind, edges []types.Edge) error {
	if !storage.ValidEdgeKind(kind) {
		return fmt.Errorf("insert edges: unknown kind %q", kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	s.edges[kind] = append(s.edges[kind], edges...)
	return nil
}

// ResetTrackerData implements storage.Sink.
func (s *Sink) ResetTrackerData(ctx context.Context, projectID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	doomed := make(map[types.InternalID]bool)
	kept := s.issues[:0]
	for _, is := range s.issues {
		if is.ProjectID == projectID {
			doomed[is.ID] = true
			continue
		}
		kept = append(kept, is)
	}
	s.issues = kept
	s.history = filter(s.history, func(r types.HistoryRow) bool { return !doomed[r.IssueID] })
	s.comments = filter(s.comments, func(r types.CommentRow) bool { return !doomed[r.IssueID] })
	s.cc = filter(s.cc, func(r types.CCRow) bool { return !doomed[r.IssueID] })
	for kind, edges := range s.edges {
		s.edges[kind] = filter(edges, func(e types.Edge) bool { return !doomed[e.From] })
	}
	return nil
}

// Close implements storage.Sink.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func filter[T any](rows []T, keep func(T) bool) []T {
	out := rows[:0]
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Issues returns a copy of the stored issues in insertion order.
func (s *Sink) Issues() []Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Issue(nil), s.issues...)
}

// History returns a copy of the stored history rows.
func (s *Sink) History() []types.HistoryRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.HistoryRow(nil), s.history...)
}

// Comments returns a copy of the stored comment rows.
func (s *Sink) Comments() []types.CommentRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.CommentRow(nil), s.comments...)
}

// CCList returns a copy of the stored cc rows.
func (s *Sink) CCList() []types.CCRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.CCRow(nil), s.cc...)
}

// Edges returns a copy of the stored edges of kind.
func (s *Sink) Edges(kind types.EdgeKind) []types.Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Edge(nil), s.edges[kind]...)
}

// People returns the number of stored persons.
func (s *Sink) People() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.people)
}

// PersonByID returns the stored person with id.
func (s *Sink) PersonByID(id types.PersonID) (Person, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.people {
		if p.ID == id {
			return *p, true
		}
	}
	return Person{}, false
}
