// Package testutil provides mock tracker servers for tests.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

// RecordedRequest stores information about a request made to the mock server.
type RecordedRequest struct {
	Method  string
	Path    string
	Query   string
	Headers http.Header
}

// Fault is an injected failure for one path.
type Fault struct {
	// StatusCode is written with an empty JSON object. Zero means the
	// connection is hijacked and closed without a response.
	StatusCode int
	// Body replaces the response body verbatim when non-empty.
	Body string
	// Headers are set on the response.
	Headers map[string]string
}

// MockTrackerServer is the base mock server for tracker tests.
// It records requests, replays queued faults per path and otherwise
// delegates to the tracker-specific handler.
type MockTrackerServer struct {
	Server *httptest.Server

	mu       sync.Mutex
	requests []RecordedRequest
	faults   map[string][]Fault // path -> pending one-shot faults
	sticky   map[string]Fault   // path -> fault applied to every request
	handler  http.HandlerFunc
}

// NewMockTrackerServer creates a new base mock server that routes
// unfaulted requests to handler.
func NewMockTrackerServer(handler http.HandlerFunc) *MockTrackerServer {
	m := &MockTrackerServer{
		faults:  make(map[string][]Fault),
		sticky:  make(map[string]Fault),
		handler: handler,
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handleRequest))
	return m
}

func (m *MockTrackerServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.RawQuery,
		Headers: r.Header.Clone(),
	})
	fault, faulted := m.nextFault(r.URL.Path)
	m.mu.Unlock()

	if faulted {
		writeFault(w, fault)
		return
	}
	if m.handler != nil {
		m.handler(w, r)
		return
	}
	w.WriteHeader(http.StatusNotFound)
	writeJSON(w, map[string]string{"error": "Not found"})
}

// nextFault pops a queued fault for path. Callers hold m.mu.
func (m *MockTrackerServer) nextFault(path string) (Fault, bool) {
	if q := m.faults[path]; len(q) > 0 {
		m.faults[path] = q[1:]
		return q[0], true
	}
	f, ok := m.sticky[path]
	return f, ok
}

func writeFault(w http.ResponseWriter, f Fault) {
	if f.StatusCode == 0 {
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				_ = conn.Close()
				return
			}
		}
		f.StatusCode = http.StatusBadGateway
	}
	for k, v := range f.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.StatusCode)
	if f.Body != "" {
		_, _ = io.WriteString(w, f.Body)
		return
	}
	_, _ = io.WriteString(w, "{}")
}

// URL returns the mock server URL with a trailing slash.
func (m *MockTrackerServer) URL() string {
	return m.Server.URL + "/"
}

// Close shuts down the mock server.
func (m *MockTrackerServer) Close() {
	m.Server.Close()
}

// FailNext queues n copies of f for path; they are served before any
// normal response.
func (m *MockTrackerServer) FailNext(path string, n int, f Fault) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.faults[path] = append(m.faults[path], f)
	}
}

// FailAlways serves f for every request to path.
func (m *MockTrackerServer) FailAlways(path string, f Fault) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sticky[path] = f
}

// RateLimitNext makes the next n requests to path answer 429.
func (m *MockTrackerServer) RateLimitNext(path string, n int) {
	m.FailNext(path, n, Fault{
		StatusCode: http.StatusTooManyRequests,
		Headers:    map[string]string{"Retry-After": "1"},
	})
}

// MalformAlways makes every response for path an undecodable body.
func (m *MockTrackerServer) MalformAlways(path string) {
	m.FailAlways(path, Fault{StatusCode: http.StatusOK, Body: `{"bugs": [`})
}

// GetRequests returns all recorded requests.
func (m *MockTrackerServer) GetRequests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]RecordedRequest, len(m.requests))
	copy(result, m.requests)
	return result
}

// CountRequests returns how many requests hit path.
func (m *MockTrackerServer) CountRequests(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

// GetRequestCount returns the number of recorded requests.
func (m *MockTrackerServer) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// ClearRequests clears all recorded requests.
func (m *MockTrackerServer) ClearRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// Reset clears recorded requests and every injected fault.
func (m *MockTrackerServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.faults = make(map[string][]Fault)
	m.sticky = make(map[string]Fault)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}
