package tracker

import (
	"errors"
	"strings"
	"testing"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	t.Run("empty registry", func(t *testing.T) {
		if got := r.List(); len(got) != 0 {
			t.Errorf("List() = %v, want empty", got)
		}
		if got := r.Get("bugzilla"); got != nil {
			t.Error("Get() returned non-nil for unregistered tracker")
		}
		_, err := r.NewTracker("bugzilla")
		if !errors.Is(err, ErrUnsupportedTracker) {
			t.Errorf("NewTracker() error = %v, want ErrUnsupportedTracker", err)
		}
	})

	t.Run("register and retrieve", func(t *testing.T) {
		r.Register("mock", func() IssueTracker { return nil })

		if got := r.Get("mock"); got == nil {
			t.Error("Get() returned nil for registered tracker")
		}
		if !r.IsRegistered("mock") {
			t.Error("IsRegistered(mock) = false")
		}
		if r.IsRegistered("missing") {
			t.Error("IsRegistered(missing) = true")
		}
	})

	t.Run("list returns sorted names", func(t *testing.T) {
		r.Register("zebra", func() IssueTracker { return nil })
		r.Register("alpha", func() IssueTracker { return nil })

		got := r.List()
		want := []string{"alpha", "mock", "zebra"}
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("List() = %v, want %v", got, want)
		}
	})

	t.Run("NewTracker returns new instance", func(t *testing.T) {
		callCount := 0
		r.Register("counter", func() IssueTracker {
			callCount++
			return nil
		})

		_, _ = r.NewTracker("counter")
		_, _ = r.NewTracker("counter")
		if callCount != 2 {
			t.Errorf("factory called %d times, want 2", callCount)
		}
	})

	t.Run("unknown name lists alternatives", func(t *testing.T) {
		_, err := r.NewTracker("trac")
		if err == nil || !strings.Contains(err.Error(), "alpha") {
			t.Errorf("NewTracker(trac) error = %v, want available list", err)
		}
	})
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := NewRegistry(), NewRegistry()
	a.Register("bugzilla", func() IssueTracker { return nil })
	if b.IsRegistered("bugzilla") {
		t.Error("registration leaked between registries")
	}
}
