package app

import (
	"context"

	"github.com/sahilm/fuzzy"
	"golang.org/x/sync/errgroup"

	"github.com/sadopc/reqdeck/internal/core/history"
	"github.com/sadopc/reqdeck/internal/core/request"
	"github.com/sadopc/reqdeck/internal/errdef"
)

// Requests returns all requests in creation order, including optimistic
// edits that have not been confirmed yet.
func (a *App) Requests(ctx context.Context) ([]request.Request, error) {
	list, err := a.list.Get(ctx, listKey)
	if err != nil {
		return nil, err
	}
	out := make([]request.Request, len(list))
	copy(out, list)
	return out, nil
}

// RefreshRequests drops the cached list and fetches it again.
func (a *App) RefreshRequests(ctx context.Context) ([]request.Request, error) {
	a.list.Invalidate(listKey)
	if _, err := a.list.Refresh(ctx, listKey); err != nil {
		return nil, err
	}
	return a.Requests(ctx)
}

// Request returns the cached request with its latest execution.
func (a *App) Request(ctx context.Context, id int64) (RequestWithLatest, error) {
	r, err := a.cachedRequest(ctx, id)
	if err != nil {
		return RequestWithLatest{}, err
	}
	latest, err := a.Latest(ctx, id)
	if err != nil {
		return RequestWithLatest{}, err
	}
	return RequestWithLatest{Request: r, Latest: latest}, nil
}

// Load fetches the request list and the latest execution of id
// concurrently, then returns the composed view.
func (a *App) Load(ctx context.Context, id int64) (RequestWithLatest, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := a.list.Get(gctx, listKey)
		return err
	})
	g.Go(func() error {
		_, err := a.latest.Get(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return RequestWithLatest{}, err
	}
	return a.Request(ctx, id)
}

// History returns the executions of id, newest first.
func (a *App) History(ctx context.Context, id int64) ([]history.Entry, error) {
	entries, err := a.history.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]history.Entry, len(entries))
	copy(out, entries)
	return out, nil
}

// Latest returns a copy of the newest execution of id, or nil.
func (a *App) Latest(ctx context.Context, id int64) (*history.Entry, error) {
	e, err := a.latest.Get(ctx, id)
	if err != nil || e == nil {
		return nil, err
	}
	cp := *e
	return &cp, nil
}

// Active returns the selected request. ok is false when nothing is
// selected, which happens when there are no requests or the selection was
// cleared.
func (a *App) Active(ctx context.Context) (RequestWithLatest, bool, error) {
	if _, err := a.list.Get(ctx, listKey); err != nil {
		return RequestWithLatest{}, false, err
	}
	id, ok := a.selection.Get()
	if !ok {
		return RequestWithLatest{}, false, nil
	}
	r, err := a.Request(ctx, id)
	if err != nil {
		return RequestWithLatest{}, false, err
	}
	return r, true, nil
}

// Select makes id the active request. The id must exist.
func (a *App) Select(ctx context.Context, id int64) error {
	if _, err := a.cachedRequest(ctx, id); err != nil {
		return err
	}
	a.selection.Select(id)
	return nil
}

type requestSource []request.Request

func (s requestSource) String(i int) string { return s[i].Name + " " + s[i].URL }
func (s requestSource) Len() int            { return len(s) }

// FindRequests fuzzy-matches query against request names and URLs in the
// cached list, best match first. An empty list is returned when the list
// has not been loaded.
func (a *App) FindRequests(query string) []request.Request {
	e, ok := a.list.Peek(listKey)
	if !ok {
		return []request.Request{}
	}
	src := requestSource(e.Value)
	matches := fuzzy.FindFrom(query, src)
	out := make([]request.Request, 0, len(matches))
	for _, m := range matches {
		out = append(out, src[m.Index])
	}
	return out
}

// cachedRequest finds id in the cached list, refetching once when it is
// missing in case it was added elsewhere.
func (a *App) cachedRequest(ctx context.Context, id int64) (request.Request, error) {
	list, err := a.list.Get(ctx, listKey)
	if err != nil {
		return request.Request{}, err
	}
	if r, ok := find(list, id); ok {
		return r, nil
	}
	list, err = a.list.Refresh(ctx, listKey)
	if err != nil {
		return request.Request{}, err
	}
	if r, ok := find(list, id); ok {
		return r, nil
	}
	return request.Request{}, errdef.New(errdef.CodeNotFound, "request %d not found", id)
}

func find(list []request.Request, id int64) (request.Request, bool) {
	if i := indexOf(list, id); i >= 0 {
		return list[i], true
	}
	return request.Request{}, false
}

func indexOf(list []request.Request, id int64) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}
