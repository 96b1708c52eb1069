package offline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/roach88/reefsync/internal/queue"
)

// QueuedHeader carries the queue id on synthetic responses.
const QueuedHeader = "X-Reefsync-Queued"

// Enqueuer persists requests. *Client satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, url, method string, headers map[string]string, body []byte) (queue.QueuedRequest, error)
}

// Interceptor is an http.RoundTripper that queues mutating requests which
// fail at the transport level.
//
// Reads pass through untouched. When a POST/PUT/PATCH/DELETE fails with a
// transport error (other than caller cancellation) the request is snapshotted
// and enqueued, and the caller receives a synthetic 202 Accepted carrying
// QueuedHeader. HTTP error responses are returned as-is: the server was
// reachable.
type Interceptor struct {
	Next     http.RoundTripper
	Enqueuer Enqueuer
}

// NewInterceptor wraps next (http.DefaultTransport when nil).
func NewInterceptor(next http.RoundTripper, enq Enqueuer) *Interceptor {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Interceptor{Next: next, Enqueuer: enq}
}

// RoundTrip implements http.RoundTripper.
func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	if !queue.IsMutating(req.Method) {
		return i.Next.RoundTrip(req)
	}

	body, err := captureBody(req)
	if err != nil {
		return nil, errors.Join(err, queue.NewSerializationFailure("capture request body", err))
	}

	resp, err := i.Next.RoundTrip(withBody(req, body))
	if err == nil || errors.Is(err, context.Canceled) {
		return resp, err
	}

	ctx := context.WithoutCancel(req.Context())
	entry, qerr := i.Enqueuer.Enqueue(ctx, req.URL.String(), req.Method, flattenHeaders(req.Header), body)
	if qerr != nil {
		return nil, errors.Join(err, qerr)
	}

	return &http.Response{
		Status:     "202 Accepted",
		StatusCode: http.StatusAccepted,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     http.Header{QueuedHeader: []string{entry.ID}},
		Body:       http.NoBody,
		Request:    req,
	}, nil
}

// captureBody reads and closes the request body. A request without a body
// yields nil.
func captureBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	return io.ReadAll(req.Body)
}

// withBody returns a clone of req carrying the captured body, leaving req
// itself unmodified.
func withBody(req *http.Request, body []byte) *http.Request {
	out := req.Clone(req.Context())
	if body == nil {
		return out
	}
	out.Body = io.NopCloser(bytes.NewReader(body))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return out
}

// flattenHeaders snapshots multi-valued headers as comma-joined strings.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		out[name] = strings.Join(values, ", ")
	}
	return out
}
