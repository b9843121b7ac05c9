package registry

import (
	"fmt"
	"sync"
	"testing"

	"chatify/internal/models"
)

type fakeHandle struct {
	name string
}

func (f *fakeHandle) Send(models.ServerMessage) bool { return true }

func TestRegistry(t *testing.T) {
	t.Run("RegisterLookup", func(t *testing.T) {
		r := New()
		h := &fakeHandle{name: "a"}
		r.Register("u1", h)

		got, ok := r.Lookup("u1")
		if !ok {
			t.Fatal("expected handle for u1")
		}
		if got != h {
			t.Errorf("expected %v, got %v", h, got)
		}
		if _, ok := r.Lookup("u2"); ok {
			t.Error("expected no handle for u2")
		}
	})

	t.Run("LaterConnectionSupersedes", func(t *testing.T) {
		r := New()
		first := &fakeHandle{name: "first"}
		second := &fakeHandle{name: "second"}
		r.Register("u1", first)
		r.Register("u1", second)

		got, _ := r.Lookup("u1")
		if got != second {
			t.Errorf("expected second handle, got %v", got)
		}
		if r.Len() != 1 {
			t.Errorf("expected 1 entry, got %d", r.Len())
		}
	})

	t.Run("StaleUnregisterIsIgnored", func(t *testing.T) {
		r := New()
		first := &fakeHandle{name: "first"}
		second := &fakeHandle{name: "second"}
		r.Register("u1", first)
		r.Register("u1", second)

		if r.Unregister("u1", first) {
			t.Error("stale handle must not remove the mapping")
		}
		got, ok := r.Lookup("u1")
		if !ok || got != second {
			t.Errorf("expected second handle to survive, got %v (ok=%v)", got, ok)
		}

		if !r.Unregister("u1", second) {
			t.Error("expected current handle to be removed")
		}
		if _, ok := r.Lookup("u1"); ok {
			t.Error("expected u1 to be offline")
		}
	})

	t.Run("UnregisterUnknown", func(t *testing.T) {
		r := New()
		if r.Unregister("nobody", &fakeHandle{}) {
			t.Error("expected false for unknown user")
		}
	})

	t.Run("Online", func(t *testing.T) {
		r := New()
		r.Register("u3", &fakeHandle{})
		r.Register("u1", &fakeHandle{})
		r.Register("u2", &fakeHandle{})

		online := r.Online()
		want := []string{"u1", "u2", "u3"}
		if fmt.Sprint(online) != fmt.Sprint(want) {
			t.Errorf("expected %v, got %v", want, online)
		}
	})
}

func TestRegistry_Concurrent(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := range 50 {
		userID := fmt.Sprintf("u%d", i%5)
		wg.Go(func() {
			h := &fakeHandle{name: fmt.Sprint(i)}
			r.Register(userID, h)
			_, _ = r.Lookup(userID)
			r.Unregister(userID, h)
		})
	}
	wg.Wait()

	if r.Len() > 5 {
		t.Errorf("expected at most 5 entries, got %d", r.Len())
	}
}
