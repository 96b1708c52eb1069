// Package queue defines the offline write-queue model shared by every
// reefsync component.
//
// A QueuedRequest is a replayable snapshot of a mutating HTTP request that
// failed while the client was disconnected. Entries are immutable once
// stored: replay never rewrites an entry, it only removes it.
//
// # Ordering
//
// Replay order is ascending Timestamp, ties broken by ID compared bytewise
// (the Go equivalent of COLLATE BINARY). Use Sort rather than ad-hoc
// comparisons so every store and the flush engine agree on the order.
//
// # Storage contract
//
// Store is the minimal interface every backend implements. Backends that
// can coordinate across processes also implement Leaser.
package queue
