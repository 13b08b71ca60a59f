package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codeface/bugcrawl/internal/types"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRequiresDir(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("New(\"\") should fail")
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	c := newTestCache(t)
	dupe := types.IssueID("41")

	tests := []struct {
		name  string
		key   string
		value interface{}
		out   func() interface{}
	}{
		{"int", "test_data", 42, func() interface{} { return new(int) }},
		{"string", "https:\\test.de", "Testing, testing", func() interface{} { return new(string) }},
		{"id list", DiscoveredIDsKey, []types.IssueID{"101", "102", "103"}, func() interface{} { return new([]types.IssueID) }},
		{"issue", "42", types.RawIssue{
			ID:           "42",
			CreationTime: time.Date(2014, 3, 1, 12, 0, 0, 0, time.UTC),
			Status:       "RESOLVED",
			DependsOn:    []types.IssueID{"7", "9"},
			DupeOf:       &dupe,
			History: []types.HistoryEvent{{
				When:    time.Date(2014, 3, 2, 0, 0, 0, 0, time.UTC),
				Who:     "dev@example.org",
				Changes: []types.FieldChange{{FieldName: "status", Removed: "NEW", Added: "RESOLVED"}},
			}},
		}, func() interface{} { return new(types.RawIssue) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Put(tt.key, tt.value); err != nil {
				t.Fatalf("Put: %v", err)
			}
			out := tt.out()
			if err := c.Get(tt.key, out); err != nil {
				t.Fatalf("Get: %v", err)
			}
			got := reflect.ValueOf(out).Elem().Interface()
			if !reflect.DeepEqual(got, tt.value) {
				t.Errorf("Get = %#v, want %#v", got, tt.value)
			}
		})
	}
}

func TestPathIsStableAndSharded(t *testing.T) {
	c := newTestCache(t)

	p1 := c.Path("840976")
	p2 := c.Path("840976")
	if p1 != p2 {
		t.Fatalf("Path not stable: %q vs %q", p1, p2)
	}
	if c.Path("840977") == p1 {
		t.Fatal("distinct keys share a path")
	}

	rel, err := filepath.Rel(c.Dir(), p1)
	if err != nil {
		t.Fatalf("Rel: %v", err)
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 3 {
		t.Fatalf("expected 3 path components, got %v", parts)
	}
	if len(parts[0]) != 2 || len(parts[1]) != 2 || len(parts[2]) != 60 {
		t.Errorf("unexpected shard layout %v", parts)
	}
}

func TestExists(t *testing.T) {
	c := newTestCache(t)

	if c.Exists("1") {
		t.Fatal("Exists before Put")
	}
	if err := c.Put("1", "x"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !c.Exists("1") {
		t.Fatal("Exists after Put = false")
	}
	if c.Exists("") {
		t.Error("Exists(\"\") = true")
	}
}

func TestGetNotFound(t *testing.T) {
	c := newTestCache(t)
	var out string
	err := c.Get("missing", &out)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestGetCorrupt(t *testing.T) {
	c := newTestCache(t)
	if err := c.Put("7", "ok"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := os.WriteFile(c.Path("7"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var out string
	err := c.Get("7", &out)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Get corrupt = %v, want ErrCorrupt", err)
	}
	if !c.Exists("7") {
		t.Error("corrupt entry should still exist")
	}
}

func TestPutRejectsEmpty(t *testing.T) {
	c := newTestCache(t)
	if err := c.Put("", 1); err == nil {
		t.Error("Put with empty key should fail")
	}
	if err := c.Put("k", nil); err == nil {
		t.Error("Put with nil value should fail")
	}
}

func TestPutOverwrites(t *testing.T) {
	c := newTestCache(t)
	if err := c.Put("k", "first"); err != nil {
		t.Fatal(err)
	}
	if err := c.Put("k", "second"); err != nil {
		t.Fatal(err)
	}
	var out string
	if err := c.Get("k", &out); err != nil {
		t.Fatal(err)
	}
	if out != "second" {
		t.Errorf("Get = %q, want second", out)
	}
}

// Workers writing into the same shard directories must not trip over each
// other's MkdirAll.
func TestConcurrentPut(t *testing.T) {
	c := newTestCache(t)

	var wg sync.WaitGroup
	errs := make(chan error, 200)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				key := fmt.Sprintf("%d", i)
				if err := c.Put(key, w); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Put: %v", err)
	}

	for i := 0; i < 25; i++ {
		var v int
		if err := c.Get(fmt.Sprintf("%d", i), &v); err != nil {
			t.Errorf("Get %d: %v", i, err)
		}
	}
}

func TestLockIsExclusive(t *testing.T) {
	c := newTestCache(t)

	unlock, err := c.Lock()
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	other, err := New(c.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Lock(); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Lock = %v, want ErrLocked", err)
	}

	if err := unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	unlock2, err := other.Lock()
	if err != nil {
		t.Fatalf("Lock after unlock: %v", err)
	}
	_ = unlock2()
}
