// Package redisstore keeps the offline queue in Redis so several processes
// can share one queue and one flush lease.
//
// Entries live as JSON in the hash "<key>:entries" keyed by id. The flush
// lease is the string "<key>:lease" holding the owner's name with a PX
// expiry.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/reefsync/internal/queue"
)

// DefaultKey prefixes every key the store touches.
const DefaultKey = "reefsync:queue"

var (
	_ queue.Store  = (*Store)(nil)
	_ queue.Leaser = (*Store)(nil)
)

// Store is a Redis-backed queue.Store.
type Store struct {
	client  redis.UniversalClient
	key     string
	stamper queue.Stamper
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides DefaultKey.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithIDGenerator sets the id generator used when stamping entries.
func WithIDGenerator(g queue.IDGenerator) Option {
	return func(s *Store) { s.stamper.IDs = g }
}

// WithClock sets the clock used when stamping entries.
func WithClock(c queue.Clock) Option {
	return func(s *Store) { s.stamper.Clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New wraps an existing client. The store does not own the client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, key: DefaultKey, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewClient creates a client for addr. The connection is made lazily; Ping
// reports whether the server is reachable.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Ping checks the server within a short deadline.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return queue.NewStorageUnavailable("ping redis", err)
	}
	return nil
}

func (s *Store) entriesKey() string { return s.key + ":entries" }
func (s *Store) leaseKey() string   { return s.key + ":lease" }

// errDuplicateID rejects an id already present in the entries hash.
var errDuplicateID = errors.New("duplicate id")

// Enqueue stamps req and stores it. Nothing is written on failure, and an
// existing entry is never overwritten.
func (s *Store) Enqueue(ctx context.Context, req queue.Request) (queue.QueuedRequest, error) {
	entry, err := s.stamper.Stamp(req)
	if err != nil {
		return queue.QueuedRequest{}, err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return queue.QueuedRequest{}, queue.NewSerializationFailure("encode entry", err)
	}

	added, err := s.client.HSetNX(ctx, s.entriesKey(), entry.ID, data).Result()
	if err != nil {
		return queue.QueuedRequest{}, queue.NewStorageUnavailable("enqueue", err)
	}
	if !added {
		return queue.QueuedRequest{}, queue.NewStorageUnavailable("enqueue "+entry.ID, errDuplicateID)
	}
	return entry, nil
}

// ListAll returns every entry in hash order. Callers sort.
//
// Entries that no longer decode are logged and skipped; they stay in the
// hash so an operator can inspect them.
func (s *Store) ListAll(ctx context.Context) ([]queue.QueuedRequest, error) {
	raw, err := s.client.HGetAll(ctx, s.entriesKey()).Result()
	if err != nil {
		return nil, queue.NewStorageUnavailable("list entries", err)
	}

	entries := make([]queue.QueuedRequest, 0, len(raw))
	for id, data := range raw {
		entry, err := decodeEntry(data)
		if err != nil {
			s.logger.Warn("skipping undecodable queue entry", "id", id, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Remove deletes id. Unknown ids are a no-op.
func (s *Store) Remove(ctx context.Context, id string) error {
	if err := s.client.HDel(ctx, s.entriesKey(), id).Err(); err != nil {
		return queue.NewStorageUnavailable("remove entry", err)
	}
	return nil
}

// Count returns HLEN of the entries hash.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.client.HLen(ctx, s.entriesKey()).Result()
	if err != nil {
		return 0, queue.NewStorageUnavailable("count entries", err)
	}
	return int(n), nil
}

func decodeEntry(data string) (queue.QueuedRequest, error) {
	var entry queue.QueuedRequest
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return queue.QueuedRequest{}, err
	}
	if entry.ID == "" {
		return queue.QueuedRequest{}, errors.New("entry has no id")
	}
	if entry.Headers == nil {
		entry.Headers = map[string]string{}
	}
	return entry, nil
}
