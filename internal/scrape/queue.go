package scrape

import (
	"sync"

	"github.com/codeface/bugcrawl/internal/types"
)

// Queue is the FIFO of issue IDs awaiting fetch. All methods are safe for
// concurrent use and never block on an empty queue.
type Queue struct {
	mu    sync.Mutex
	items []types.IssueID
}

// NewQueue returns a queue seeded with ids in order.
func NewQueue(ids ...types.IssueID) *Queue {
	q := &Queue{}
	q.items = append(q.items, ids...)
	return q
}

// Push appends id to the tail. Requeued IDs use the same path.
func (q *Queue) Push(id types.IssueID) {
	q.mu.Lock()
	q.items = append(q.items, id)
	q.mu.Unlock()
}

// TryPop removes and returns the head, or reports false if the queue is empty.
func (q *Queue) TryPop() (types.IssueID, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	id := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	return id, true
}

// Empty reports whether the queue has no pending IDs.
func (q *Queue) Empty() bool {
	return q.Len() == 0
}

// Len returns the number of pending IDs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a copy of the pending IDs in queue order.
func (q *Queue) Snapshot() []types.IssueID {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]types.IssueID(nil), q.items...)
}
