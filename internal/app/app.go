// Package app is the client controller: it caches requests and history read
// from a backend, applies edits optimistically, and keeps the selection.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sadopc/reqdeck/internal/backend"
	"github.com/sadopc/reqdeck/internal/cache"
	"github.com/sadopc/reqdeck/internal/clock"
	"github.com/sadopc/reqdeck/internal/core/history"
	"github.com/sadopc/reqdeck/internal/core/request"
	"github.com/sadopc/reqdeck/internal/core/state"
)

const listKey = "requests"

// RequestWithLatest is a request joined with its most recent execution.
type RequestWithLatest struct {
	request.Request
	Latest *history.Entry `json:"latest,omitempty"`
}

// Config tunes an App. Clock, Logger and Selection default when nil.
type Config struct {
	// StaleTime is how long cached reads are served without revalidation.
	// Zero revalidates on every read; use cache.DefaultWindow for the usual
	// window.
	StaleTime time.Duration
	Clock     clock.Clock
	Logger    *zerolog.Logger
	Selection *state.Selection
}

// App synchronizes the client cache with a Backend.
type App struct {
	backend   backend.Backend
	clock     clock.Clock
	log       zerolog.Logger
	selection *state.Selection

	list    *cache.Table[string, []request.Request]
	latest  *cache.Table[int64, *history.Entry]
	history *cache.Table[int64, []history.Entry]

	mu      sync.Mutex
	writes  map[int64]*writeQueue
	sending map[int64]int
}

// New creates an App over b.
func New(b backend.Backend, cfg Config) *App {
	a := &App{
		backend:   b,
		clock:     cfg.Clock,
		selection: cfg.Selection,
		writes:    make(map[int64]*writeQueue),
		sending:   make(map[int64]int),
	}
	if a.clock == nil {
		a.clock = clock.System()
	}
	if a.selection == nil {
		a.selection = state.NewSelection()
	}
	a.log = zerolog.Nop()
	if cfg.Logger != nil {
		a.log = cfg.Logger.With().Str("component", "app").Logger()
	}
	window := cfg.StaleTime

	a.list = cache.New(a.fetchRequests,
		cache.WithWindow[string, []request.Request](window),
		cache.WithClock[string, []request.Request](a.clock),
		cache.WithErrorHandler[string, []request.Request](func(_ string, err error) {
			a.log.Warn().Err(err).Msg("refreshing requests failed")
		}),
	)
	a.latest = cache.New(a.backend.GetLatestRequestHistory,
		cache.WithWindow[int64, *history.Entry](window),
		cache.WithClock[int64, *history.Entry](a.clock),
		cache.WithErrorHandler[int64, *history.Entry](func(id int64, err error) {
			a.log.Warn().Err(err).Int64("request_id", id).Msg("refreshing latest response failed")
		}),
	)
	a.history = cache.New(a.backend.GetRequestHistory,
		cache.WithWindow[int64, []history.Entry](window),
		cache.WithClock[int64, []history.Entry](a.clock),
		cache.WithErrorHandler[int64, []history.Entry](func(id int64, err error) {
			a.log.Warn().Err(err).Int64("request_id", id).Msg("refreshing history failed")
		}),
	)
	return a
}

// Selection returns the selection owned by this App.
func (a *App) Selection() *state.Selection {
	return a.selection
}

// Wait blocks until background revalidations have finished.
func (a *App) Wait() {
	a.list.Wait()
	a.latest.Wait()
	a.history.Wait()
}

// fetchRequests loads the list from the backend and overlays the optimistic
// value of every request with an edit still in flight.
func (a *App) fetchRequests(ctx context.Context, _ string) ([]request.Request, error) {
	list, err := a.backend.GetRequests(ctx)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	for i, r := range list {
		if q, ok := a.writes[r.ID]; ok && q.pending > 0 {
			list[i] = q.optimistic
		}
	}
	a.mu.Unlock()

	ids := make([]int64, len(list))
	for i, r := range list {
		ids[i] = r.ID
	}
	if a.selection.InitFirst(ids) {
		a.log.Debug().Int64("request_id", ids[0]).Msg("selected first request")
	}
	return list, nil
}
