package queue

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IDGenerator produces unique entry ids.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 ids.
//
// uuid.NewV7 keeps a monotonic sequence inside one millisecond, so two
// entries enqueued at the same Timestamp still get distinct, ordered ids.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined ids for tests and scenarios.
// It panics once exhausted.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// Clock returns the current time.
type Clock func() time.Time

// Stamper turns a Request into a QueuedRequest.
// The zero value uses UUIDv7 ids and the wall clock.
type Stamper struct {
	IDs   IDGenerator
	Clock Clock
}

// Stamp validates req and assigns ID and Timestamp.
// Validation failures are SerializationFailure errors.
func (s Stamper) Stamp(req Request) (QueuedRequest, error) {
	method, err := normalizeMethod(req.Method)
	if err != nil {
		return QueuedRequest{}, err
	}
	if err := validateURL(req.URL); err != nil {
		return QueuedRequest{}, err
	}
	for name := range req.Headers {
		if strings.TrimSpace(name) == "" {
			return QueuedRequest{}, NewSerializationFailure("empty header name", nil)
		}
	}

	ids := s.IDs
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	now := time.Now
	if s.Clock != nil {
		now = s.Clock
	}

	entry := QueuedRequest{
		ID:        ids.Generate(),
		URL:       req.URL,
		Method:    method,
		Headers:   cloneHeaders(req.Headers),
		Timestamp: now().UnixMilli(),
	}
	if req.Body != nil {
		entry.Body = append([]byte{}, req.Body...)
	}
	return entry, nil
}

// MutatingMethods lists the verbs the queue accepts.
var MutatingMethods = []string{"POST", "PUT", "PATCH", "DELETE"}

func normalizeMethod(m string) (string, error) {
	upper := strings.ToUpper(strings.TrimSpace(m))
	for _, allowed := range MutatingMethods {
		if upper == allowed {
			return upper, nil
		}
	}
	return "", NewSerializationFailure(fmt.Sprintf("method %q is not a mutating request", m), nil)
}

// IsMutating reports whether method is one the queue accepts.
func IsMutating(method string) bool {
	_, err := normalizeMethod(method)
	return err == nil
}

func validateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return NewSerializationFailure("url is required", nil)
	}
	if _, err := url.Parse(raw); err != nil {
		return NewSerializationFailure("url does not parse", err)
	}
	return nil
}
