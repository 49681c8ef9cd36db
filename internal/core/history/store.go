package history

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/sadopc/reqdeck/internal/errdef"
	"github.com/sadopc/reqdeck/internal/storage"
)

// Store manages the request history log.
type Store struct {
	db *sql.DB
}

// NewStore creates a history store over an already migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const columns = `id, request_id, request_method, url, request_body, response_status_code,
	response_body, response_time_ms, response_size, error, created_at`

// Append records e and returns the stored row. The insert and the read back
// share one transaction, so a failure leaves no row behind.
func (s *Store) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.CreatedAt.IsZero() {
		return Entry{}, errdef.New(errdef.CodeValidation, "history entry needs a timestamp")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, errdef.Wrap(errdef.CodeStorage, err, "starting history transaction")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO request_history (request_id, request_method, url, request_body, response_status_code,
			response_body, response_time_ms, response_size, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RequestID, e.Method, e.URL, e.RequestBody, e.StatusCode,
		e.ResponseBody, e.ResponseTime, e.ResponseSize, e.Error,
		storage.FormatTime(e.CreatedAt),
	)
	if err != nil {
		if isForeignKeyErr(err) {
			return Entry{}, errdef.New(errdef.CodeNotFound, "request %d not found", e.RequestID)
		}
		return Entry{}, errdef.Wrap(errdef.CodeStorage, err, "inserting history")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Entry{}, errdef.Wrap(errdef.CodeStorage, err, "inserting history")
	}

	stored, err := scanEntry(tx.QueryRowContext(ctx, `SELECT `+columns+` FROM request_history WHERE id = ?`, id))
	if err != nil {
		return Entry{}, err
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, errdef.Wrap(errdef.CodeStorage, err, "committing history")
	}
	return stored, nil
}

// ListForRequest returns the entries of one request, newest first. A limit
// <= 0 returns all of them.
func (s *Store) ListForRequest(ctx context.Context, requestID int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		// sqlite reads a negative LIMIT as no limit
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+columns+`
		FROM request_history
		WHERE request_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, requestID, limit)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "listing history")
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "listing history")
	}
	return entries, nil
}

// Latest returns the newest entry of a request, or nil when it has none.
func (s *Store) Latest(ctx context.Context, requestID int64) (*Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, `
		SELECT `+columns+`
		FROM request_history
		WHERE request_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, requestID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	var ts string
	err := row.Scan(&e.ID, &e.RequestID, &e.Method, &e.URL, &e.RequestBody, &e.StatusCode,
		&e.ResponseBody, &e.ResponseTime, &e.ResponseSize, &e.Error, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return e, err
	}
	if err != nil {
		return e, errdef.Wrap(errdef.CodeStorage, err, "scanning history row")
	}
	e.CreatedAt = storage.ParseTime(ts)
	return e, nil
}

func isForeignKeyErr(err error) bool {
	return strings.Contains(strings.ToUpper(err.Error()), "FOREIGN KEY")
}
