package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"

	"github.com/codeface/bugcrawl/internal/types"
)

func TestDescriptor(t *testing.T) {
	tests := []struct {
		name string
		in   types.Person
		want string
	}{
		{"plain", types.Person{Email: "ada@example.org", RealName: "Ada Lovelace"}, "Ada Lovelace<ada@example.org>"},
		{"non-ascii stripped", types.Person{Email: "jm@example.org", RealName: "Jörg Müller"}, "Jrg Mller<jm@example.org>"},
		{"nobody", types.Person{Email: NobodyEmail, RealName: "Nobody; OK to take it"}, "Nobody the test user<nobody@mozilla.org>"},
		{"empty name", types.Person{Email: "dev@example.org"}, "dev<dev@example.org>"},
		{"only non-ascii", types.Person{Email: "li@example.org", RealName: "李"}, "li<li@example.org>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Descriptor(tt.in); got != tt.want {
				t.Errorf("Descriptor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseDescriptor(t *testing.T) {
	tests := []struct {
		in, name, email string
	}{
		{"Ada Lovelace<ada@example.org>", "Ada Lovelace", "ada@example.org"},
		{"Ada <ada@example.org>", "Ada", "ada@example.org"},
		{"dev@example.org", "dev", "dev@example.org"},
		{"<x@example.org>", "x", "x@example.org"},
	}
	for _, tt := range tests {
		name, email := ParseDescriptor(tt.in)
		if name != tt.name || email != tt.email {
			t.Errorf("ParseDescriptor(%q) = %q, %q; want %q, %q", tt.in, name, email, tt.name, tt.email)
		}
	}
	name, email := ParseDescriptor(Descriptor(types.Person{Email: "a@b.c", RealName: "A B"}))
	if name != "A B" || email != "a@b.c" {
		t.Errorf("round trip = %q, %q", name, email)
	}
}

type fakeStore struct {
	mu     sync.Mutex
	people map[string]types.PersonID
	calls  int
}

func (f *fakeStore) GetOrCreatePerson(ctx context.Context, projectID int64, name, email string) (types.PersonID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.people == nil {
		f.people = make(map[string]types.PersonID)
	}
	if id, ok := f.people[email]; ok {
		return id, nil
	}
	id := types.PersonID(len(f.people) + 1)
	f.people[email] = id
	return id, nil
}

func TestStoreResolverIsIdempotent(t *testing.T) {
	store := &fakeStore{}
	r := NewStoreResolver(store, 1)
	ctx := context.Background()

	a, err := r.ResolvePerson(ctx, "Ada<ada@example.org>")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := r.ResolvePerson(ctx, "Ada<ada@example.org>")
	c, _ := r.ResolvePerson(ctx, "Bob<bob@example.org>")
	if a != b || a == c {
		t.Errorf("ids = %d, %d, %d", a, b, c)
	}
	if _, err := r.ResolvePerson(ctx, "Nameless<>"); err == nil {
		t.Error("descriptor without email should fail")
	}
}

type countingResolver struct {
	calls atomic.Int32
	fail  bool
}

func (c *countingResolver) ResolvePerson(ctx context.Context, descriptor string) (types.PersonID, error) {
	c.calls.Add(1)
	if c.fail {
		return 0, errors.New("service down")
	}
	return types.PersonID(len(descriptor)), nil
}

func TestCachedDedupesLookups(t *testing.T) {
	next := &countingResolver{}
	c := NewCached(next)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.ResolvePerson(context.Background(), "Ada<ada@example.org>"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if n := next.calls.Load(); n < 1 || n > 20 {
		t.Fatalf("underlying calls = %d", n)
	}
	before := next.calls.Load()
	for i := 0; i < 5; i++ {
		_, _ = c.ResolvePerson(context.Background(), "Ada<ada@example.org>")
	}
	if next.calls.Load() != before {
		t.Error("cached descriptor hit the resolver again")
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestCachedDoesNotCacheFailures(t *testing.T) {
	next := &countingResolver{fail: true}
	c := NewCached(next)
	for i := 0; i < 2; i++ {
		if _, err := c.ResolvePerson(context.Background(), "x<x@y>"); err == nil {
			t.Fatal("expected error")
		}
	}
	if next.calls.Load() != 2 || c.Len() != 0 {
		t.Errorf("calls = %d, Len = %d", next.calls.Load(), c.Len())
	}
}

func TestHTTPResolver(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/post_user_id" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req userIDRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Name != "Ada Lovelace" || req.Email != "ada@example.org" || req.ProjectID != 7 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(userIDResponse{ID: 42})
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL+"/", 7, srv.Client())
	r.NewBackOff = func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3) }

	id, err := r.ResolvePerson(context.Background(), "Ada Lovelace<ada@example.org>")
	if err != nil {
		t.Fatalf("ResolvePerson: %v", err)
	}
	if id != 42 || attempts.Load() != 2 {
		t.Errorf("id = %d after %d attempts", id, attempts.Load())
	}
}

func TestHTTPResolverClientErrorIsPermanent(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL, 1, srv.Client())
	r.NewBackOff = func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 5) }
	if _, err := r.ResolvePerson(context.Background(), "a<a@b>"); err == nil {
		t.Fatal("expected error")
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1", attempts.Load())
	}
}
