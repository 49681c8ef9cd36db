package requests

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sadopc/reqdeck/internal/clock"
	"github.com/sadopc/reqdeck/internal/core/request"
	"github.com/sadopc/reqdeck/internal/errdef"
	"github.com/sadopc/reqdeck/internal/storage"
)

// Store persists request definitions.
type Store struct {
	db    *sql.DB
	clock clock.Clock
}

// NewStore creates a store over an already migrated database.
func NewStore(db *sql.DB, c clock.Clock) *Store {
	if c == nil {
		c = clock.System()
	}
	return &Store{db: db, clock: c}
}

const columns = `id, name, url, method, body, created_at, updated_at`

// List returns all requests in creation order.
func (s *Store) List(ctx context.Context) ([]request.Request, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+columns+` FROM requests ORDER BY id ASC`)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "listing requests")
	}
	defer rows.Close()

	reqs := []request.Request{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "listing requests")
	}
	return reqs, nil
}

// Get returns the request with id.
func (s *Store) Get(ctx context.Context, id int64) (request.Request, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return request.Request{}, errdef.New(errdef.CodeNotFound, "request %d not found", id)
	}
	return r, err
}

// Add creates a request named name with an empty URL and GET.
func (s *Store) Add(ctx context.Context, name string) (request.Request, error) {
	r := request.New(name)
	if r.Name == "" {
		return request.Request{}, errdef.New(errdef.CodeValidation, "name is required")
	}
	if err := r.Validate(); err != nil {
		return request.Request{}, err
	}

	now := storage.FormatTime(s.clock.Now())
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO requests (name, url, method, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.Name, r.URL, string(r.Method), r.Body, now, now)
	if err != nil {
		return request.Request{}, errdef.Wrap(errdef.CodeStorage, err, "inserting request")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return request.Request{}, errdef.Wrap(errdef.CodeStorage, err, "inserting request")
	}
	return s.Get(ctx, id)
}

// Update replaces the editable fields of request id with those of r.
// r.ID is ignored; ids never change.
func (s *Store) Update(ctx context.Context, id int64, r request.Request) (request.Request, error) {
	if err := r.Validate(); err != nil {
		return request.Request{}, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE requests SET name = ?, url = ?, method = ?, body = ?, updated_at = ?
		WHERE id = ?`,
		r.Name, r.URL, string(r.Method), r.Body, storage.FormatTime(s.clock.Now()), id)
	if err != nil {
		return request.Request{}, errdef.Wrap(errdef.CodeStorage, err, "updating request %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return request.Request{}, errdef.Wrap(errdef.CodeStorage, err, "updating request %d", id)
	}
	if n == 0 {
		return request.Request{}, errdef.New(errdef.CodeNotFound, "request %d not found", id)
	}
	return s.Get(ctx, id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (request.Request, error) {
	var r request.Request
	var method, created, updated string
	if err := row.Scan(&r.ID, &r.Name, &r.URL, &method, &r.Body, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, errdef.Wrap(errdef.CodeStorage, err, "scanning request row")
	}
	r.Method = request.Method(method)
	r.CreatedAt = storage.ParseTime(created)
	r.UpdatedAt = storage.ParseTime(updated)
	return r, nil
}
