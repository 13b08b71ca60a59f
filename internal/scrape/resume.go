package scrape

import (
	"github.com/codeface/bugcrawl/internal/types"
)

// Checker reports whether a cache entry exists for a key.
type Checker interface {
	Exists(key string) bool
}

// FilterCached splits candidates into the IDs still to fetch and the IDs
// already cached, preserving order. Duplicate candidates are kept once.
func FilterCached(candidates []types.IssueID, c Checker) (pending, cached []types.IssueID) {
	seen := make(map[types.IssueID]struct{}, len(candidates))
	for _, id := range candidates {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if c.Exists(id.String()) {
			cached = append(cached, id)
		} else {
			pending = append(pending, id)
		}
	}
	return pending, cached
}

// Dedupe returns ids without repeats, keeping first occurrences.
func Dedupe(ids []types.IssueID) []types.IssueID {
	seen := make(map[types.IssueID]struct{}, len(ids))
	out := make([]types.IssueID, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
