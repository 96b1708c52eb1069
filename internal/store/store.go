package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/reefsync/internal/queue"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added replay-order index on queued_requests(timestamp, id)
const currentSchemaVersion = 1

// Store is the SQLite implementation of queue.Store and queue.Leaser.
type Store struct {
	path    string
	stamper queue.Stamper
	logger  *slog.Logger

	mu sync.Mutex
	db *sql.DB
}

var (
	_ queue.Store  = (*Store)(nil)
	_ queue.Leaser = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator overrides the id generator (UUIDv7 by default).
func WithIDGenerator(g queue.IDGenerator) Option {
	return func(s *Store) { s.stamper.IDs = g }
}

// WithClock overrides the clock used for enqueue timestamps.
func WithClock(c queue.Clock) Option {
	return func(s *Store) { s.stamper.Clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New returns a store for the database at path. No IO happens until the
// first operation or an explicit Open.
func New(path string, opts ...Option) *Store {
	s := &Store{path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates a store and initialises it immediately.
func Open(path string, opts ...Option) (*Store, error) {
	s := New(path, opts...)
	if err := s.Open(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Open initialises the database: pragmas, schema and migrations.
//
// This function is idempotent - safe to call multiple times and from
// multiple goroutines. Existing rows are never touched. A failed Open
// leaves the store closed so a later call can retry.
func (s *Store) Open(ctx context.Context) error {
	_, err := s.conn(ctx)
	return err
}

// conn returns the open database, opening it on first use.
func (s *Store) conn(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return nil, queue.NewStorageUnavailable("open database", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, queue.NewStorageUnavailable("connect to database", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, queue.NewStorageUnavailable("apply pragmas", err)
	}

	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, queue.NewStorageUnavailable("apply schema", err)
	}

	s.logger.Debug("queue store opened", "path", s.path)
	s.db = db
	return db, nil
}

// Close closes the database connection. A later operation reopens it.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(ctx, db); err != nil {
			return err
		}
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

func migrateToV1(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_queued_requests_order
		ON queued_requests(timestamp, id)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	db, err := s.conn(context.Background())
	if err != nil {
		return err
	}
	var value string
	if err := db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
