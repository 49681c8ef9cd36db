package requests

import (
	"context"
	"testing"
	"time"

	"github.com/sadopc/reqdeck/internal/clock"
	"github.com/sadopc/reqdeck/internal/core/request"
	"github.com/sadopc/reqdeck/internal/errdef"
	"github.com/sadopc/reqdeck/internal/storage"
)

func newTestStore(t *testing.T) (*Store, *clock.Manual) {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	c := clock.NewManual(clock.ParseTime("2025-01-01T10:00:00Z"))
	return NewStore(db, c), c
}

func TestStore_AddDefaults(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	r, err := store.Add(ctx, "Ping")
	if err != nil {
		t.Fatal(err)
	}
	if r.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if r.Name != "Ping" || r.URL != "" || r.Method != request.MethodGet || r.Body != "" {
		t.Errorf("unexpected defaults: %#v", r)
	}
	if r.CreatedAt.IsZero() || !r.CreatedAt.Equal(r.UpdatedAt) {
		t.Errorf("timestamps not set: created=%s updated=%s", r.CreatedAt, r.UpdatedAt)
	}
}

func TestStore_AddRequiresName(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Add(context.Background(), "   ")
	if !errdef.Is(err, errdef.CodeValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestStore_ListCreationOrder(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	list, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}

	for _, name := range []string{"c", "a", "b"} {
		if _, err := store.Add(ctx, name); err != nil {
			t.Fatal(err)
		}
	}
	list, err = store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	got := []string{list[0].Name, list[1].Name, list[2].Name}
	if got[0] != "c" || got[1] != "a" || got[2] != "b" {
		t.Errorf("order = %v, want [c a b]", got)
	}
}

func TestStore_UpdateReadAfterWrite(t *testing.T) {
	store, c := newTestStore(t)
	ctx := context.Background()

	r, _ := store.Add(ctx, "Ping")
	c.Advance(time.Minute)

	r.URL = "https://example.com/?a=1&b=2"
	r.Method = request.MethodPost
	r.Body = `{"x":1}`
	updated, err := store.Update(ctx, r.ID, r)
	if err != nil {
		t.Fatal(err)
	}
	if !sameContent(updated, r) {
		t.Errorf("Update returned %#v, want content of %#v", updated, r)
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) {
		t.Error("expected updated_at to move forward")
	}

	list, _ := store.List(ctx)
	if len(list) != 1 || !sameContent(list[0], r) {
		t.Errorf("List after update = %#v", list)
	}
}

func TestStore_UpdateIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	r, _ := store.Add(ctx, "Ping")
	r.URL = "https://example.com"
	first, err := store.Update(ctx, r.ID, r)
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.Update(ctx, r.ID, r)
	if err != nil {
		t.Fatal(err)
	}
	if !sameContent(first, second) || first.ID != second.ID {
		t.Errorf("second update changed state: %#v vs %#v", first, second)
	}
	list, _ := store.List(ctx)
	if len(list) != 1 {
		t.Errorf("expected 1 request, got %d", len(list))
	}
}

func TestStore_UpdateIgnoresPayloadID(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	a, _ := store.Add(ctx, "a")
	b, _ := store.Add(ctx, "b")

	payload := a
	payload.ID = b.ID
	payload.Name = "renamed"
	got, err := store.Update(ctx, a.ID, payload)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != a.ID {
		t.Errorf("ID = %d, want %d", got.ID, a.ID)
	}
	unchanged, _ := store.Get(ctx, b.ID)
	if unchanged.Name != "b" {
		t.Errorf("request b was modified: %#v", unchanged)
	}
}

func TestStore_UpdateNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Update(context.Background(), 42, request.New("x"))
	if !errdef.Is(err, errdef.CodeNotFound) {
		t.Fatalf("err = %v, want not_found", err)
	}
}

func TestStore_UpdateValidation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	r, _ := store.Add(ctx, "x")

	r.URL = "not a url"
	_, err := store.Update(ctx, r.ID, r)
	if !errdef.Is(err, errdef.CodeValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	got, _ := store.Get(ctx, r.ID)
	if got.URL != "" {
		t.Errorf("invalid update was persisted: %q", got.URL)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Get(context.Background(), 1)
	if !errdef.Is(err, errdef.CodeNotFound) {
		t.Fatalf("err = %v, want not_found", err)
	}
}

func sameContent(a, b request.Request) bool {
	return a.Name == b.Name && a.URL == b.URL && a.Method == b.Method && a.Body == b.Body
}
