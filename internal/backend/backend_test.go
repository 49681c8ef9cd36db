package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sadopc/reqdeck/internal/core/history"
	"github.com/sadopc/reqdeck/internal/core/requests"
	"github.com/sadopc/reqdeck/internal/engine"
	"github.com/sadopc/reqdeck/internal/errdef"
	"github.com/sadopc/reqdeck/internal/storage"
)

func newLocal(t *testing.T) *Local {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	reqs := requests.NewStore(db, nil)
	hist := history.NewStore(db)
	return NewLocal(reqs, hist, engine.New(reqs, hist), 2)
}

func TestLocal_RoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	b := newLocal(t)
	ctx := context.Background()

	r, err := b.AddRequest(ctx, "Ping")
	if err != nil {
		t.Fatal(err)
	}
	latest, err := b.GetLatestRequestHistory(ctx, r.ID)
	if err != nil || latest != nil {
		t.Fatalf("fresh request latest = %#v, %v", latest, err)
	}

	r.URL = server.URL
	if _, err := b.UpdateRequest(ctx, r.ID, r); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := b.MakeRequest(ctx, r.ID); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := b.GetRequestHistory(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("history limit not applied: %d entries", len(entries))
	}
	latest, _ = b.GetLatestRequestHistory(ctx, r.ID)
	if latest == nil || latest.ID != entries[0].ID {
		t.Errorf("latest %#v is not the first history entry", latest)
	}

	list, _ := b.GetRequests(ctx)
	if len(list) != 1 || list[0].URL != server.URL {
		t.Errorf("GetRequests = %#v", list)
	}
}

func TestLocal_HistoryWithoutLimitKeepsGrowing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	reqs := requests.NewStore(db, nil)
	hist := history.NewStore(db)
	b := NewLocal(reqs, hist, engine.New(reqs, hist), 0)
	ctx := context.Background()

	r, _ := b.AddRequest(ctx, "busy")
	r.URL = server.URL
	if _, err := b.UpdateRequest(ctx, r.ID, r); err != nil {
		t.Fatal(err)
	}
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 200; i++ {
		e := history.Entry{RequestID: r.ID, Method: "GET", URL: server.URL, StatusCode: 200, CreatedAt: start.Add(time.Duration(i) * time.Second)}
		if _, err := hist.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := b.MakeRequest(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	entries, err := b.GetRequestHistory(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 201 {
		t.Fatalf("history has %d entries, want every execution (201)", len(entries))
	}
}

func TestLocal_UnknownRequest(t *testing.T) {
	b := newLocal(t)
	ctx := context.Background()

	if _, err := b.GetRequestHistory(ctx, 5); !errdef.Is(err, errdef.CodeNotFound) {
		t.Errorf("GetRequestHistory err = %v", err)
	}
	if _, err := b.GetLatestRequestHistory(ctx, 5); !errdef.Is(err, errdef.CodeNotFound) {
		t.Errorf("GetLatestRequestHistory err = %v", err)
	}
	if _, err := b.MakeRequest(ctx, 5); !errdef.Is(err, errdef.CodeNotFound) {
		t.Errorf("MakeRequest err = %v", err)
	}
}
