// Package state holds client-side UI state that is not persisted with the
// requests themselves.
package state

import "sync"

type status int

const (
	statusPending status = iota
	statusNone
	statusSelected
)

// Selection tracks which request is active. It starts pending; the first
// request list load may fill it, after which only explicit calls change it.
type Selection struct {
	mu     sync.Mutex
	status status
	id     int64
}

// NewSelection returns a pending selection.
func NewSelection() *Selection {
	return &Selection{}
}

// Get returns the selected id. ok is false when nothing is selected.
func (s *Selection) Get() (id int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.status == statusSelected
}

// Pending reports whether no selection decision has been made yet.
func (s *Selection) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == statusPending
}

// Select makes id the active request.
func (s *Selection) Select(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(statusSelected, id)
}

// Clear leaves no request selected. InitFirst will not override it.
func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(statusNone, 0)
}

// InitFirst selects the first of ids if the selection is still pending and
// reports whether it did.
func (s *Selection) InitFirst(ids []int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != statusPending || len(ids) == 0 {
		return false
	}
	s.set(statusSelected, ids[0])
	return true
}

// set must be called with mu held.
func (s *Selection) set(st status, id int64) {
	s.status = st
	s.id = id
}
