package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/codeface/bugcrawl/internal/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Action
	}{
		{"transport", &TransportError{URL: "u", Err: errors.New("connection refused")}, ActionRequeue},
		{"rate limited", &RateLimitError{URL: "u"}, ActionCooldown},
		{"server error", &StatusError{URL: "u", StatusCode: 502}, ActionRequeue},
		{"not found", &StatusError{URL: "u", StatusCode: 404}, ActionRequeue},
		{"malformed history", &MalformedError{Part: PartHistory, ID: "1", Err: errors.New("eof")}, ActionDrop},
		{"malformed comments", &MalformedError{Part: PartComments, ID: "1", Err: errors.New("eof")}, ActionDrop},
		{"wrapped rate limit", fmt.Errorf("fetch 7: %w", &RateLimitError{URL: "u"}), ActionCooldown},
		{"canceled", context.Canceled, ActionRequeue},
		{"unknown", errors.New("boom"), ActionDrop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsMalformed(t *testing.T) {
	err := fmt.Errorf("wrap: %w", &MalformedError{Part: PartComments, ID: "102", Err: errors.New("bad")})
	if !IsMalformed(err, PartComments) {
		t.Error("IsMalformed(comments) = false")
	}
	if IsMalformed(err, PartHistory) {
		t.Error("IsMalformed(history) = true")
	}
}

func TestConfigValidate(t *testing.T) {
	var cfg Config
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() on empty config should fail")
	}
	cfg = Config{BaseURL: "https://bugs.example.org", Project: "Core"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	d := cfg.WithDefaults()
	if d.PageSize != DefaultPageSize || d.HTTPClient == nil || d.DiscoveryBackOff == nil {
		t.Errorf("WithDefaults() left fields unset: %+v", d)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("BUGCRAWL_BUGZILLA_API_KEY", "secret")
	cfg := Config{}
	cfg.ApplyEnv("bugzilla")
	if cfg.APIKey != "secret" {
		t.Errorf("APIKey = %q, want secret", cfg.APIKey)
	}

	cfg = Config{APIKey: "explicit"}
	cfg.ApplyEnv("bugzilla")
	if cfg.APIKey != "explicit" {
		t.Errorf("ApplyEnv overrode explicit key: %q", cfg.APIKey)
	}
}

func TestGetJSONErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(`{"value": 3}`))
		case "/limited":
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("oops"))
		case "/garbage":
			_, _ = w.Write([]byte(`{"value":`))
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL + "/"})
	ctx := context.Background()
	var out struct{ Value int }

	if err := c.GetJSON(ctx, Request{Path: "ok"}, &out); err != nil || out.Value != 3 {
		t.Fatalf("GetJSON(ok) = %v, value %d", err, out.Value)
	}

	var rl *RateLimitError
	if err := c.GetJSON(ctx, Request{Path: "limited"}, &out); !errors.As(err, &rl) {
		t.Fatalf("GetJSON(limited) = %v, want RateLimitError", err)
	}
	if rl.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", rl.RetryAfter)
	}

	var se *StatusError
	if err := c.GetJSON(ctx, Request{Path: "broken"}, &out); !errors.As(err, &se) || se.StatusCode != 500 || se.Body != "oops" {
		t.Errorf("GetJSON(broken) = %v, want StatusError 500", err)
	}

	err := c.GetJSON(ctx, Request{Path: "garbage", Part: PartComments, ID: "9"}, &out)
	if !IsMalformed(err, PartComments) {
		t.Errorf("GetJSON(garbage) = %v, want malformed comments", err)
	}
}

func TestGetJSONTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	c := NewHTTPClient(Config{BaseURL: base})
	var te *TransportError
	err := c.GetJSON(context.Background(), Request{Path: "x"}, &struct{}{})
	if !errors.As(err, &te) {
		t.Fatalf("GetJSON on closed server = %v, want TransportError", err)
	}
	if Classify(err) != ActionRequeue {
		t.Errorf("Classify(transport) = %v", Classify(err))
	}
}

func TestHTTPClientURL(t *testing.T) {
	c := NewHTTPClient(Config{BaseURL: "https://bugs.example.org/"})
	got := c.URL(Request{Path: "/rest/bug", Query: url.Values{"limit": {"10"}}})
	if got != "https://bugs.example.org/rest/bug?limit=10" {
		t.Errorf("URL() = %q", got)
	}
}

func idPages(total int) PageFunc {
	return func(ctx context.Context, offset, limit int) ([]types.IssueID, error) {
		var ids []types.IssueID
		for i := offset; i < offset+limit && i < total; i++ {
			ids = append(ids, types.IssueID(strconv.Itoa(i+1)))
		}
		return ids, nil
	}
}

func zeroBackOff() backoff.BackOff { return &backoff.ZeroBackOff{} }

func TestPaginateStopsOnEmptyPage(t *testing.T) {
	var got []types.IssueID
	for id, err := range Paginate(context.Background(), 3, zeroBackOff, idPages(7)) {
		if err != nil {
			t.Fatalf("Paginate: %v", err)
		}
		got = append(got, id)
	}
	if len(got) != 7 || got[0] != "1" || got[6] != "7" {
		t.Errorf("Paginate yielded %v", got)
	}
}

// Servers may serve fewer IDs than requested; none may be skipped.
func TestPaginateServerCapsPageSize(t *testing.T) {
	const total, serverCap = 250, 50
	capped := idPages(total)
	var offsets []int
	page := func(ctx context.Context, offset, limit int) ([]types.IssueID, error) {
		offsets = append(offsets, offset)
		return capped(ctx, offset, min(limit, serverCap))
	}

	seen := make(map[types.IssueID]bool)
	for id, err := range Paginate(context.Background(), 100, zeroBackOff, page) {
		if err != nil {
			t.Fatalf("Paginate: %v", err)
		}
		seen[id] = true
	}
	if len(seen) != total {
		t.Errorf("discovered %d of %d ids", len(seen), total)
	}
	want := []int{0, 50, 100, 150, 200, 250}
	if !reflect.DeepEqual(offsets, want) {
		t.Errorf("requested offsets %v, want %v", offsets, want)
	}
}

func TestPaginateRetriesTransientPage(t *testing.T) {
	calls := 0
	inner := idPages(2)
	page := func(ctx context.Context, offset, limit int) ([]types.IssueID, error) {
		calls++
		if calls == 1 {
			return nil, &StatusError{URL: "u", StatusCode: 503}
		}
		return inner(ctx, offset, limit)
	}

	var got []types.IssueID
	for id, err := range Paginate(context.Background(), 5, zeroBackOff, page) {
		if err != nil {
			t.Fatalf("Paginate: %v", err)
		}
		got = append(got, id)
	}
	if len(got) != 2 {
		t.Errorf("Paginate yielded %v, want 2 ids", got)
	}
}

func TestPaginateStopsOnMalformed(t *testing.T) {
	calls := 0
	page := func(ctx context.Context, offset, limit int) ([]types.IssueID, error) {
		calls++
		return nil, &MalformedError{Part: PartDiscovery, Err: errors.New("bad json")}
	}

	var lastErr error
	for _, err := range Paginate(context.Background(), 5, zeroBackOff, page) {
		lastErr = err
	}
	if !IsMalformed(lastErr, PartDiscovery) {
		t.Errorf("Paginate error = %v, want malformed discovery", lastErr)
	}
	if calls != 1 {
		t.Errorf("malformed page was retried %d times", calls)
	}
}

func TestPaginateEarlyBreak(t *testing.T) {
	n := 0
	for range Paginate(context.Background(), 2, zeroBackOff, idPages(10)) {
		n++
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Errorf("consumed %d ids", n)
	}
}
