package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/reefsync/internal/queue"
)

// ListAll returns every persisted entry.
// Results are ordered by timestamp ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) when the queue is empty.
func (s *Store) ListAll(ctx context.Context) ([]queue.QueuedRequest, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, url, method, headers, body, has_body, timestamp
		FROM queued_requests
		ORDER BY timestamp ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, queue.NewStorageUnavailable("list", err)
	}
	defer rows.Close()

	entries := []queue.QueuedRequest{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, queue.NewStorageUnavailable("list", err)
	}

	return entries, nil
}

// Get retrieves a single entry by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) Get(ctx context.Context, id string) (queue.QueuedRequest, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return queue.QueuedRequest{}, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT id, url, method, headers, body, has_body, timestamp
		FROM queued_requests
		WHERE id = ?
	`, id)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return queue.QueuedRequest{}, sql.ErrNoRows
	}
	return entry, err
}

// Count returns the number of persisted entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queued_requests`).Scan(&n); err != nil {
		return 0, queue.NewStorageUnavailable("count", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (queue.QueuedRequest, error) {
	var entry queue.QueuedRequest
	var headersJSON string
	var body []byte
	var hasBody int

	if err := sc.Scan(
		&entry.ID, &entry.URL, &entry.Method, &headersJSON, &body, &hasBody, &entry.Timestamp,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return queue.QueuedRequest{}, err
		}
		return queue.QueuedRequest{}, queue.NewStorageUnavailable("scan entry", err)
	}

	headers, err := unmarshalHeaders(headersJSON)
	if err != nil {
		return queue.QueuedRequest{}, fmt.Errorf("entry %s: %w", entry.ID, err)
	}
	entry.Headers = headers

	switch {
	case hasBody == 0:
		entry.Body = nil
	case body == nil:
		entry.Body = []byte{}
	default:
		entry.Body = body
	}

	return entry, nil
}
