// Package backend defines the operations the client synchronizer depends on
// and the local implementation backed by sqlite and the execution engine.
package backend

import (
	"context"

	"github.com/sadopc/reqdeck/internal/core/history"
	"github.com/sadopc/reqdeck/internal/core/request"
	"github.com/sadopc/reqdeck/internal/core/requests"
	"github.com/sadopc/reqdeck/internal/engine"
)

// Backend is the persisted side of the client. Implementations must be safe
// for concurrent use.
type Backend interface {
	GetRequests(ctx context.Context) ([]request.Request, error)
	AddRequest(ctx context.Context, name string) (request.Request, error)
	UpdateRequest(ctx context.Context, requestID int64, r request.Request) (request.Request, error)
	GetRequestHistory(ctx context.Context, requestID int64) ([]history.Entry, error)
	GetLatestRequestHistory(ctx context.Context, requestID int64) (*history.Entry, error)
	MakeRequest(ctx context.Context, requestID int64) (history.Entry, error)
}

// Local serves Backend from in-process stores.
type Local struct {
	requests     *requests.Store
	history      *history.Store
	engine       *engine.Engine
	historyLimit int
}

var _ Backend = (*Local)(nil)

// NewLocal composes the stores and engine. historyLimit caps how many
// entries GetRequestHistory returns; <= 0 returns the whole log.
func NewLocal(reqs *requests.Store, hist *history.Store, eng *engine.Engine, historyLimit int) *Local {
	return &Local{
		requests:     reqs,
		history:      hist,
		engine:       eng,
		historyLimit: historyLimit,
	}
}

func (l *Local) GetRequests(ctx context.Context) ([]request.Request, error) {
	return l.requests.List(ctx)
}

func (l *Local) AddRequest(ctx context.Context, name string) (request.Request, error) {
	return l.requests.Add(ctx, name)
}

func (l *Local) UpdateRequest(ctx context.Context, requestID int64, r request.Request) (request.Request, error) {
	return l.requests.Update(ctx, requestID, r)
}

// GetRequestHistory returns newest first. An unknown request is NotFound
// rather than an empty history.
func (l *Local) GetRequestHistory(ctx context.Context, requestID int64) ([]history.Entry, error) {
	if _, err := l.requests.Get(ctx, requestID); err != nil {
		return nil, err
	}
	return l.history.ListForRequest(ctx, requestID, l.historyLimit)
}

func (l *Local) GetLatestRequestHistory(ctx context.Context, requestID int64) (*history.Entry, error) {
	if _, err := l.requests.Get(ctx, requestID); err != nil {
		return nil, err
	}
	return l.history.Latest(ctx, requestID)
}

func (l *Local) MakeRequest(ctx context.Context, requestID int64) (history.Entry, error) {
	return l.engine.Execute(ctx, requestID)
}
