// Package store provides SQLite-backed durable storage for the offline
// write queue.
//
// The store holds two tables:
//   - queued_requests: one row per QueuedRequest, append-only, deleted only
//     after a confirmed replay outcome
//   - flush_lease: a single named lease that serialises flushes across
//     processes sharing the same database file
//
// # Ordering
//
// ListAll orders by timestamp ASC, id ASC COLLATE BINARY, matching
// queue.Sort. Callers still sort: other backends make no such promise.
//
// # Opening
//
// New performs no IO. Every operation calls Open first, which is idempotent,
// safe for concurrent callers and retryable after a failure. A medium that
// cannot be opened or written surfaces as queue.ErrCodeStorageUnavailable.
//
// # Database Configuration
//
//   - WAL mode: concurrent readers in other processes
//   - synchronous=NORMAL
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - a single connection: SQLite allows one writer
package store
