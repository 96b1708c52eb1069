package store

import (
	"context"

	"github.com/roach88/reefsync/internal/queue"
)

// Enqueue stamps req with an id and timestamp and persists it.
//
// Validation failures return SerializationFailure and nothing is written.
// If the database cannot be opened or written the entry is lost and
// StorageUnavailable is returned; nothing is buffered in memory.
func (s *Store) Enqueue(ctx context.Context, req queue.Request) (queue.QueuedRequest, error) {
	entry, err := s.stamper.Stamp(req)
	if err != nil {
		return queue.QueuedRequest{}, err
	}

	headersJSON, err := marshalHeaders(entry.Headers)
	if err != nil {
		return queue.QueuedRequest{}, queue.NewSerializationFailure("capture headers", err)
	}

	db, err := s.conn(ctx)
	if err != nil {
		return queue.QueuedRequest{}, err
	}

	hasBody := 0
	if entry.Body != nil {
		hasBody = 1
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO queued_requests
		(id, url, method, headers, body, has_body, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.URL,
		entry.Method,
		headersJSON,
		entry.Body,
		hasBody,
		entry.Timestamp,
	)
	if err != nil {
		return queue.QueuedRequest{}, queue.NewStorageUnavailable("enqueue", err)
	}

	s.logger.Debug("request queued", "id", entry.ID, "method", entry.Method, "url", entry.URL)
	return entry, nil
}

// Remove deletes a single entry. Removing an unknown id is a no-op.
func (s *Store) Remove(ctx context.Context, id string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM queued_requests WHERE id = ?`, id); err != nil {
		return queue.NewStorageUnavailable("remove", err)
	}
	return nil
}
