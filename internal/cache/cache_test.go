package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sadopc/reqdeck/internal/clock"
)

type counter struct {
	calls atomic.Int32
	value atomic.Int32
	err   error
}

func (c *counter) fetch(_ context.Context, key string) (int, error) {
	c.calls.Add(1)
	if c.err != nil {
		return 0, c.err
	}
	return int(c.value.Load()), nil
}

func newTable(src *counter, c clock.Clock, opts ...Option[string, int]) *Table[string, int] {
	opts = append([]Option[string, int]{WithClock[string, int](c)}, opts...)
	return New(src.fetch, opts...)
}

func TestGetMissFetchesOnce(t *testing.T) {
	src := &counter{}
	src.value.Store(1)
	c := clock.NewManual(time.Now())
	tbl := newTable(src, c)

	for i := 0; i < 3; i++ {
		v, err := tbl.Get(context.Background(), "k")
		if err != nil {
			t.Fatal(err)
		}
		if v != 1 {
			t.Fatalf("v = %d, want 1", v)
		}
	}
	if n := src.calls.Load(); n != 1 {
		t.Fatalf("fetch calls = %d, want 1 within the window", n)
	}
}

func TestStaleWhileRevalidate(t *testing.T) {
	src := &counter{}
	src.value.Store(1)
	c := clock.NewManual(time.Now())
	tbl := newTable(src, c)
	ctx := context.Background()

	tbl.Get(ctx, "k")
	src.value.Store(2)

	c.Advance(29 * time.Second)
	if v, _ := tbl.Get(ctx, "k"); v != 1 {
		t.Fatalf("v = %d, want cached 1", v)
	}
	tbl.Wait()
	if n := src.calls.Load(); n != 1 {
		t.Fatalf("fetch calls = %d inside window", n)
	}

	c.Advance(time.Second)
	if v, _ := tbl.Get(ctx, "k"); v != 1 {
		t.Fatalf("stale read should return last known value, got %d", v)
	}
	tbl.Wait()
	if n := src.calls.Load(); n != 2 {
		t.Fatalf("fetch calls = %d, want background refresh", n)
	}
	if v, _ := tbl.Get(ctx, "k"); v != 2 {
		t.Fatalf("v = %d after refresh, want 2", v)
	}
}

func TestInvalidateMakesStale(t *testing.T) {
	src := &counter{}
	c := clock.NewManual(time.Now())
	tbl := newTable(src, c)
	ctx := context.Background()

	src.value.Store(1)
	tbl.Get(ctx, "k")
	if e, _ := tbl.Peek("k"); e.Invalid {
		t.Fatal("fresh entry marked invalid")
	}
	tbl.Invalidate("k")
	if e, ok := tbl.Peek("k"); !ok || !e.Invalid || e.Value != 1 {
		t.Fatalf("invalidated entry = %+v, %v; want invalid with value kept", e, ok)
	}

	src.value.Store(5)
	if v, _ := tbl.Get(ctx, "k"); v != 1 {
		t.Fatalf("invalid read should return last known value, got %d", v)
	}
	tbl.Wait()
	if n := src.calls.Load(); n != 2 {
		t.Fatalf("fetch calls = %d, want revalidation inside the window", n)
	}
	if e, _ := tbl.Peek("k"); e.Invalid || e.Value != 5 {
		t.Fatalf("revalidated entry = %+v", e)
	}
}

func TestUpdate(t *testing.T) {
	src := &counter{}
	src.value.Store(1)
	tbl := newTable(src, clock.NewManual(time.Now()))

	if err := tbl.Update("k", func(v int) (int, error) { return v + 1, nil }); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("err = %v, want ErrNotLoaded", err)
	}

	tbl.Get(context.Background(), "k")
	if err := tbl.Update("k", func(v int) (int, error) { return v + 1, nil }); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	if err := tbl.Update("k", func(v int) (int, error) { return 100, boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	e, ok := tbl.Peek("k")
	if !ok || e.Value != 2 {
		t.Fatalf("Peek = %+v, %v; want 2", e, ok)
	}
}

func TestFetchRacingWriteIsNotStored(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	tbl := New(func(ctx context.Context, key string) (int, error) {
		if calls.Add(1) == 2 {
			close(started)
			<-release
			return 10, nil
		}
		return 1, nil
	}, WithClock[string, int](clock.NewManual(time.Now())))
	ctx := context.Background()

	tbl.Get(ctx, "k")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := tbl.Refresh(ctx, "k")
		if err != nil || v != 10 {
			t.Errorf("Refresh = %d, %v", v, err)
		}
	}()
	<-started
	tbl.Update("k", func(int) (int, error) { return 7, nil })
	close(release)
	wg.Wait()

	e, _ := tbl.Peek("k")
	if e.Value != 7 {
		t.Fatalf("value = %d, the optimistic write was overwritten", e.Value)
	}
}

func TestConcurrentMissesShareFetch(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	tbl := New(func(ctx context.Context, key string) (int, error) {
		calls.Add(1)
		<-release
		return 3, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tbl.Get(context.Background(), "k")
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("fetch calls = %d, want 1", n)
	}
}

func TestBackgroundErrorHandler(t *testing.T) {
	src := &counter{}
	c := clock.NewManual(time.Now())
	var got error
	var mu sync.Mutex
	tbl := newTable(src, c, WithErrorHandler[string, int](func(_ string, err error) {
		mu.Lock()
		got = err
		mu.Unlock()
	}))
	ctx := context.Background()

	tbl.Get(ctx, "k")
	src.err = errors.New("offline")
	c.Advance(time.Minute)
	if _, err := tbl.Get(ctx, "k"); err != nil {
		t.Fatalf("stale read should not fail: %v", err)
	}
	tbl.Wait()

	mu.Lock()
	defer mu.Unlock()
	if got == nil || got.Error() != "offline" {
		t.Fatalf("handler got %v", got)
	}
}

func TestFetchErrorOnMiss(t *testing.T) {
	src := &counter{err: errors.New("down")}
	tbl := newTable(src, clock.NewManual(time.Now()))

	if _, err := tbl.Get(context.Background(), "k"); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := tbl.Peek("k"); ok {
		t.Fatal("failed fetch should not mark the key loaded")
	}
}
