package app

import (
	"context"
	"strings"

	"github.com/sadopc/reqdeck/internal/core/query"
	"github.com/sadopc/reqdeck/internal/core/request"
	"github.com/sadopc/reqdeck/internal/errdef"
)

// Edit changes a copy of a request. Returning an error abandons the update.
type Edit func(r *request.Request) error

// writeQueue orders the updates of one request. Each update takes a ticket
// when it is issued and sends only after the previous ticket finished.
type writeQueue struct {
	issued     uint64
	pending    int
	confirmed  request.Request
	optimistic request.Request
	tail       chan struct{}
}

// AddRequest creates a request and refreshes the cached list. The new id
// comes from the backend, so nothing is inserted optimistically.
func (a *App) AddRequest(ctx context.Context, name string) (request.Request, error) {
	r, err := a.backend.AddRequest(ctx, name)
	if err != nil {
		return request.Request{}, err
	}
	a.refreshList(ctx)
	return r, nil
}

// UpdateRequest applies edit to the newest cached version of request id,
// shows the result immediately, and persists it.
//
// Updates of the same id reach the backend in the order they were issued.
// A confirmed result replaces the cached value only if no newer update of
// that id was issued in between. On failure the cached value reverts to the
// last confirmed one, again only if nothing newer is pending.
func (a *App) UpdateRequest(ctx context.Context, id int64, edit Edit) (request.Request, error) {
	if _, err := a.cachedRequest(ctx, id); err != nil {
		return request.Request{}, err
	}

	a.mu.Lock()
	var prev, next request.Request
	err := a.list.Update(listKey, func(list []request.Request) ([]request.Request, error) {
		i := indexOf(list, id)
		if i < 0 {
			return nil, errdef.New(errdef.CodeNotFound, "request %d not found", id)
		}
		prev = list[i]
		next = prev
		if err := edit(&next); err != nil {
			return nil, err
		}
		next.ID = id
		if err := next.Validate(); err != nil {
			return nil, err
		}
		out := make([]request.Request, len(list))
		copy(out, list)
		out[i] = next
		return out, nil
	})
	if err != nil {
		a.mu.Unlock()
		return request.Request{}, err
	}

	q, ok := a.writes[id]
	if !ok {
		q = &writeQueue{}
		a.writes[id] = q
	}
	if q.pending == 0 {
		q.confirmed = prev
	}
	q.pending++
	q.issued++
	seq := q.issued
	q.optimistic = next
	wait := q.tail
	done := make(chan struct{})
	q.tail = done
	a.mu.Unlock()

	var stored request.Request
	if err = waitFor(ctx, wait); err == nil {
		stored, err = a.backend.UpdateRequest(ctx, id, next)
	}

	a.mu.Lock()
	q.pending--
	newest := q.issued == seq
	switch {
	case err == nil:
		q.confirmed = stored
		if newest {
			a.replaceLocked(id, stored)
		}
	case newest:
		a.replaceLocked(id, q.confirmed)
		a.log.Warn().Err(err).Int64("request_id", id).Msg("update failed, reverted to last saved version")
	default:
		a.log.Warn().Err(err).Int64("request_id", id).Msg("update failed, newer edit pending")
	}
	if q.pending == 0 {
		delete(a.writes, id)
	}
	a.mu.Unlock()

	if wait != nil && ctx.Err() != nil {
		// keep later tickets behind the one we stopped waiting for
		go func() {
			<-wait
			close(done)
		}()
	} else {
		close(done)
	}

	a.refreshList(ctx)
	if err != nil {
		return request.Request{}, err
	}
	return stored, nil
}

// SetURL replaces the whole URL. It must be absolute.
func (a *App) SetURL(ctx context.Context, id int64, rawURL string) (request.Request, error) {
	return a.UpdateRequest(ctx, id, func(r *request.Request) error {
		rawURL = strings.TrimSpace(rawURL)
		if err := query.ValidateURL(rawURL); err != nil {
			return err
		}
		r.URL = rawURL
		return nil
	})
}

func (a *App) SetMethod(ctx context.Context, id int64, method string) (request.Request, error) {
	return a.UpdateRequest(ctx, id, func(r *request.Request) error {
		m, err := request.ParseMethod(method)
		if err != nil {
			return err
		}
		r.Method = m
		return nil
	})
}

func (a *App) SetBody(ctx context.Context, id int64, body string) (request.Request, error) {
	return a.UpdateRequest(ctx, id, func(r *request.Request) error {
		r.Body = body
		return nil
	})
}

func (a *App) Rename(ctx context.Context, id int64, name string) (request.Request, error) {
	return a.UpdateRequest(ctx, id, func(r *request.Request) error {
		r.Name = strings.TrimSpace(name)
		return nil
	})
}

// SetParam edits the query parameter at index. A nil key or value leaves
// that side as it is.
func (a *App) SetParam(ctx context.Context, id int64, index int, key, value *string) (request.Request, error) {
	return a.editURL(ctx, id, func(u string) (string, error) {
		return query.SetParameter(u, index, key, value)
	})
}

func (a *App) SetParamKey(ctx context.Context, id int64, index int, key string) (request.Request, error) {
	return a.editURL(ctx, id, func(u string) (string, error) {
		return query.SetKey(u, index, key)
	})
}

func (a *App) SetParamValue(ctx context.Context, id int64, index int, value string) (request.Request, error) {
	return a.editURL(ctx, id, func(u string) (string, error) {
		return query.SetValue(u, index, value)
	})
}

func (a *App) AddParam(ctx context.Context, id int64, key, value string) (request.Request, error) {
	return a.editURL(ctx, id, func(u string) (string, error) {
		return query.AppendParameter(u, key, value)
	})
}

func (a *App) RemoveParam(ctx context.Context, id int64, index int) (request.Request, error) {
	return a.editURL(ctx, id, func(u string) (string, error) {
		return query.RemoveParameter(u, index)
	})
}

func (a *App) editURL(ctx context.Context, id int64, fn func(string) (string, error)) (request.Request, error) {
	return a.UpdateRequest(ctx, id, func(r *request.Request) error {
		u, err := fn(r.URL)
		if err != nil {
			return err
		}
		r.URL = u
		return nil
	})
}

// replaceLocked swaps the cached value of id. a.mu must be held.
func (a *App) replaceLocked(id int64, r request.Request) {
	_ = a.list.Update(listKey, func(list []request.Request) ([]request.Request, error) {
		i := indexOf(list, id)
		if i < 0 {
			return list, nil
		}
		out := make([]request.Request, len(list))
		copy(out, list)
		out[i] = r
		return out, nil
	})
}

func (a *App) refreshList(ctx context.Context) {
	a.list.Invalidate(listKey)
	if _, err := a.list.Refresh(ctx, listKey); err != nil {
		a.log.Warn().Err(err).Msg("refreshing requests failed")
	}
}

// waitFor blocks until ch is closed. A nil ch does not block.
func waitFor(ctx context.Context, ch <-chan struct{}) error {
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
