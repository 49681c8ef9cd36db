// Package cache keeps fetched values per key with stale-while-revalidate
// semantics.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sadopc/reqdeck/internal/clock"
)

// DefaultWindow is how long a fetched value counts as fresh.
const DefaultWindow = 30 * time.Second

// ErrNotLoaded is returned by Update for a key that was never fetched.
var ErrNotLoaded = errors.New("cache: value not loaded")

// Fetcher loads the current value for a key from the source of truth.
type Fetcher[K comparable, T any] func(ctx context.Context, key K) (T, error)

// Entry is the cached state of one key.
type Entry[T any] struct {
	Value     T
	FetchedAt time.Time
	Loaded    bool
	Invalid   bool
	// Version changes on every write so that a fetch which raced a write
	// does not overwrite it.
	Version uint64
}

// Table is a concurrency-safe map of entries filled by a Fetcher.
type Table[K comparable, T any] struct {
	mu      sync.Mutex
	entries map[K]*Entry[T]
	fetch   Fetcher[K, T]
	window  time.Duration
	clock   clock.Clock
	group   singleflight.Group
	bg      sync.WaitGroup
	onError func(K, error)
}

type Option[K comparable, T any] func(*Table[K, T])

// WithWindow sets the freshness window. A window <= 0 makes every hit stale.
func WithWindow[K comparable, T any](d time.Duration) Option[K, T] {
	return func(t *Table[K, T]) { t.window = d }
}

func WithClock[K comparable, T any](c clock.Clock) Option[K, T] {
	return func(t *Table[K, T]) {
		if c != nil {
			t.clock = c
		}
	}
}

// WithErrorHandler receives failures of background revalidation.
func WithErrorHandler[K comparable, T any](fn func(K, error)) Option[K, T] {
	return func(t *Table[K, T]) { t.onError = fn }
}

func New[K comparable, T any](fetch Fetcher[K, T], opts ...Option[K, T]) *Table[K, T] {
	t := &Table[K, T]{
		entries: make(map[K]*Entry[T]),
		fetch:   fetch,
		window:  DefaultWindow,
		clock:   clock.System(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Get returns the cached value for key. A fresh hit returns immediately. A
// stale hit returns the last known value and starts a background refresh.
// A miss fetches synchronously.
func (t *Table[K, T]) Get(ctx context.Context, key K) (T, error) {
	t.mu.Lock()
	e, ok := t.entries[key]
	if ok && e.Loaded {
		v := e.Value
		stale := t.staleLocked(e)
		t.mu.Unlock()
		if stale {
			t.revalidateAsync(ctx, key)
		}
		return v, nil
	}
	t.mu.Unlock()
	return t.load(ctx, key)
}

// Refresh fetches key synchronously regardless of freshness.
func (t *Table[K, T]) Refresh(ctx context.Context, key K) (T, error) {
	return t.load(ctx, key)
}

// Peek returns the cached entry without fetching.
func (t *Table[K, T]) Peek(key K) (Entry[T], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		return Entry[T]{}, false
	}
	return *e, e.Loaded
}

// Store records v as freshly fetched.
func (t *Table[K, T]) Store(key K, v T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entryLocked(key)
	e.Value = v
	e.FetchedAt = t.clock.Now()
	e.Loaded = true
	e.Invalid = false
	e.Version++
}

// Update replaces the value of a loaded key with fn's result. fn runs under
// the table lock and must not call back into the table. An error from fn
// leaves the entry untouched. Freshness is not changed.
func (t *Table[K, T]) Update(key K, fn func(T) (T, error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok || !e.Loaded {
		return ErrNotLoaded
	}
	v, err := fn(e.Value)
	if err != nil {
		return err
	}
	e.Value = v
	e.Version++
	return nil
}

// Invalidate marks key stale. The value stays readable until refetched.
func (t *Table[K, T]) Invalidate(key K) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok {
		e.Invalid = true
		e.Version++
	}
}

// Wait blocks until background refreshes have finished.
func (t *Table[K, T]) Wait() {
	t.bg.Wait()
}

func (t *Table[K, T]) staleLocked(e *Entry[T]) bool {
	return e.Invalid || t.window <= 0 || t.clock.Since(e.FetchedAt) >= t.window
}

func (t *Table[K, T]) entryLocked(key K) *Entry[T] {
	e, ok := t.entries[key]
	if !ok {
		e = &Entry[T]{}
		t.entries[key] = e
	}
	return e
}

func (t *Table[K, T]) revalidateAsync(ctx context.Context, key K) {
	ctx = context.WithoutCancel(ctx)
	t.bg.Add(1)
	go func() {
		defer t.bg.Done()
		if _, err := t.load(ctx, key); err != nil && t.onError != nil {
			t.onError(key, err)
		}
	}()
}

// load fetches key, sharing the call with concurrent loads of the same
// version. The result is stored only if nothing wrote the entry meanwhile.
func (t *Table[K, T]) load(ctx context.Context, key K) (T, error) {
	t.mu.Lock()
	version := t.entryLocked(key).Version
	t.mu.Unlock()

	v, err, _ := t.group.Do(fmt.Sprintf("%v#%d", key, version), func() (any, error) {
		val, err := t.fetch(ctx, key)
		if err != nil {
			return val, err
		}
		t.mu.Lock()
		e := t.entryLocked(key)
		if e.Version == version {
			e.Value = val
			e.FetchedAt = t.clock.Now()
			e.Loaded = true
			e.Invalid = false
			e.Version++
		}
		t.mu.Unlock()
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}
