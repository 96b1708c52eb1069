package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/reefsync/internal/queue"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fixedClock returns a clock pinned to the given Unix millisecond.
func fixedClock(ms int64) queue.Clock {
	return func() time.Time { return time.UnixMilli(ms) }
}

// steppingClock returns a clock that advances one millisecond per call.
func steppingClock(start int64) queue.Clock {
	next := start
	return func() time.Time {
		t := time.UnixMilli(next)
		next++
		return t
	}
}

// createTestRequest creates a request with minimal required fields.
func createTestRequest(method, url string) queue.Request {
	return queue.Request{
		URL:     url,
		Method:  method,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    []byte(`{}`),
	}
}
