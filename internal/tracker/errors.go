package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codeface/bugcrawl/internal/types"
)

// ErrUnsupportedTracker is returned when no client is registered for the
// requested tracker type. It is fatal for a run.
var ErrUnsupportedTracker = errors.New("unsupported tracker type")

// ErrNotInitialized is returned when a tracker is used before Init.
type ErrNotInitialized struct {
	Tracker string
}

func (e *ErrNotInitialized) Error() string {
	return e.Tracker + " tracker not initialized; call Init() first"
}

// Part names the sub-request of a fetch that failed.
type Part string

const (
	PartDiscovery Part = "discovery"
	PartIssue     Part = "issue"
	PartHistory   Part = "history"
	PartComments  Part = "comments"
	PartWatchers  Part = "watchers"
)

// TransportError is a connection-level failure (refused, reset, timeout).
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RateLimitError is an HTTP 429 response.
type RateLimitError struct {
	URL string
	// RetryAfter is the server's Retry-After hint, zero when absent.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited by %s (retry after %s)", e.URL, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited by %s", e.URL)
}

// StatusError is any other non-success HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.URL, e.StatusCode, e.Body)
}

// MalformedError means a response arrived but could not be decoded.
type MalformedError struct {
	Part Part
	ID   types.IssueID
	Err  error
}

func (e *MalformedError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("malformed %s response: %v", e.Part, e.Err)
	}
	return fmt.Sprintf("malformed %s response for issue %s: %v", e.Part, e.ID, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// Action is what the scraper does with an issue whose fetch failed.
type Action int

const (
	// ActionRequeue pushes the ID to the tail of the queue; the next free
	// worker retries it.
	ActionRequeue Action = iota
	// ActionCooldown requeues the ID and suspends the current worker for
	// the cool-down interval.
	ActionCooldown
	// ActionDrop abandons the issue for this run.
	ActionDrop
)

func (a Action) String() string {
	switch a {
	case ActionRequeue:
		return "requeue"
	case ActionCooldown:
		return "cooldown"
	case ActionDrop:
		return "drop"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Classify maps a fetch error to the retry policy:
//   - transport failures and non-success statuses are requeued
//   - 429 responses are requeued with a worker cool-down
//   - undecodable bodies are dropped
//   - cancellation requeues, so the ID is still pending if the run resumes
//   - anything else is dropped, since retrying it cannot succeed
func Classify(err error) Action {
	var (
		rateErr      *RateLimitError
		transportErr *TransportError
		statusErr    *StatusError
		malformedErr *MalformedError
	)
	switch {
	case err == nil:
		return ActionRequeue
	case errors.As(err, &malformedErr):
		return ActionDrop
	case errors.As(err, &rateErr):
		return ActionCooldown
	case errors.As(err, &transportErr), errors.As(err, &statusErr):
		return ActionRequeue
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ActionRequeue
	default:
		return ActionDrop
	}
}

// IsMalformed reports whether err is a MalformedError for the given part.
func IsMalformed(err error, part Part) bool {
	var m *MalformedError
	return errors.As(err, &m) && m.Part == part
}
