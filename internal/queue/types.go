package queue

import (
	"context"
	"maps"
	"time"
)

// Request is an unstamped mutating request as handed over by the HTTP layer.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	// Body is nil when the request carried no payload.
	Body []byte
}

// QueuedRequest is the sole persisted entity.
type QueuedRequest struct {
	ID      string            `json:"id"`
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    []byte            `json:"body"`
	// Timestamp is the enqueue time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (q QueuedRequest) Clone() QueuedRequest {
	c := q
	c.Headers = cloneHeaders(q.Headers)
	if q.Body != nil {
		c.Body = append([]byte{}, q.Body...)
	}
	return c
}

// EnqueuedAt returns Timestamp as a time.Time.
func (q QueuedRequest) EnqueuedAt() time.Time {
	return time.UnixMilli(q.Timestamp)
}

func cloneHeaders(h map[string]string) map[string]string {
	if h == nil {
		return map[string]string{}
	}
	return maps.Clone(h)
}

// Store is the durable queue contract.
//
// Enqueue assigns ID and Timestamp. ListAll returns every entry; callers
// impose order with Sort. Remove of an unknown id is a no-op. Count must
// not materialise entries.
type Store interface {
	Enqueue(ctx context.Context, req Request) (QueuedRequest, error)
	ListAll(ctx context.Context) ([]QueuedRequest, error)
	Remove(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// Leaser is implemented by stores that can serialise flushes across
// processes sharing the same medium.
//
// AcquireLease returns false (and no error) when another holder owns an
// unexpired lease. Re-acquiring an owned lease extends it.
type Leaser interface {
	AcquireLease(ctx context.Context, holder string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, holder string) error
}
