package app

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/sadopc/reqdeck/internal/core/history"
	"github.com/sadopc/reqdeck/internal/errdef"
)

// Send executes request id and refreshes its cached executions. Updates of
// id that are still in flight are awaited first so the executed version
// includes them.
//
// A transport failure is recorded by the backend, so the caches are
// refreshed and the recorded entry is returned along with the error.
func (a *App) Send(ctx context.Context, id int64) (history.Entry, error) {
	a.mu.Lock()
	a.sending[id]++
	var wait chan struct{}
	if q, ok := a.writes[id]; ok {
		wait = q.tail
	}
	a.mu.Unlock()
	defer a.doneSending(id)

	if err := waitFor(ctx, wait); err != nil {
		return history.Entry{}, err
	}

	entry, err := a.backend.MakeRequest(ctx, id)
	if err != nil && !errdef.Is(err, errdef.CodeTransport) {
		return history.Entry{}, err
	}
	a.refreshExecutions(ctx, id)
	return entry, err
}

// IsSending reports whether a Send of id is in progress.
func (a *App) IsSending(id int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sending[id] > 0
}

func (a *App) doneSending(id int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sending[id]--; a.sending[id] <= 0 {
		delete(a.sending, id)
	}
}

func (a *App) refreshExecutions(ctx context.Context, id int64) {
	a.latest.Invalidate(id)
	a.history.Invalidate(id)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := a.latest.Refresh(gctx, id)
		return err
	})
	g.Go(func() error {
		_, err := a.history.Refresh(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		a.log.Warn().Err(err).Int64("request_id", id).Msg("refreshing executions failed")
	}
}
