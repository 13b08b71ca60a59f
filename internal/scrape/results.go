package scrape

import (
	"sync"

	"github.com/codeface/bugcrawl/internal/types"
)

// ResultStore maps issue IDs to fetched issues. It is filled by the scrape
// workers (or restored from the cache) and read by the parser.
type ResultStore struct {
	mu     sync.RWMutex
	issues map[types.IssueID]*types.RawIssue
}

// NewResultStore returns an empty store.
func NewResultStore() *ResultStore {
	return &ResultStore{issues: make(map[types.IssueID]*types.RawIssue)}
}

// Put stores issue under its ID.
func (s *ResultStore) Put(issue *types.RawIssue) {
	s.mu.Lock()
	s.issues[issue.ID] = issue
	s.mu.Unlock()
}

// Get returns the issue stored under id.
func (s *ResultStore) Get(id types.IssueID) (*types.RawIssue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	issue, ok := s.issues[id]
	return issue, ok
}

// Has reports whether id is present.
func (s *ResultStore) Has(id types.IssueID) bool {
	_, ok := s.Get(id)
	return ok
}

// Len returns the number of stored issues.
func (s *ResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.issues)
}

// IDs returns the stored IDs in types.SortIDs order.
func (s *ResultStore) IDs() []types.IssueID {
	s.mu.RLock()
	ids := make([]types.IssueID, 0, len(s.issues))
	for id := range s.issues {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	types.SortIDs(ids)
	return ids
}

// Issues returns the stored issues ordered by ID.
func (s *ResultStore) Issues() []*types.RawIssue {
	ids := s.IDs()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.RawIssue, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.issues[id])
	}
	return out
}
