package flush

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/reefsync/internal/queue"
)

const (
	// DefaultRequestTimeout bounds each replayed request.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultLeaseTTL is how long a flush lease lasts before it must be renewed.
	DefaultLeaseTTL = 30 * time.Second

	tracerName = "github.com/roach88/reefsync/internal/flush"
	flightKey  = "flush"
)

// Doer issues HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result aggregates the outcomes of one flush.
type Result struct {
	// Succeeded counts removed entries, rejections included.
	Succeeded int `json:"succeeded"`
	// Failed counts entries left queued.
	Failed int `json:"failed"`
	// Dropped counts permanent rejections (a subset of Succeeded).
	Dropped int `json:"dropped"`
	// Contended is true when another holder owned the flush lease.
	Contended bool `json:"contended,omitempty"`
}

// Attempted returns the number of entries replayed.
func (r Result) Attempted() int {
	return r.Succeeded + r.Failed
}

// Engine replays queued requests.
type Engine struct {
	store      queue.Store
	doer       Doer
	baseURL    *url.URL
	timeout    time.Duration
	holder     string
	leaseTTL   time.Duration
	onRejected func(queue.QueuedRequest, error)
	logger     *slog.Logger
	tracer     trace.Tracer

	group singleflight.Group
}

// Option configures an Engine.
type Option func(*Engine)

// WithDoer replaces the HTTP client.
func WithDoer(d Doer) Option {
	return func(e *Engine) { e.doer = d }
}

// WithBaseURL resolves relative entry URLs against base.
func WithBaseURL(base *url.URL) Option {
	return func(e *Engine) { e.baseURL = base }
}

// WithRequestTimeout bounds each replayed request. Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithLease sets the lease holder id and TTL used with queue.Leaser stores.
func WithLease(holder string, ttl time.Duration) Option {
	return func(e *Engine) {
		if holder != "" {
			e.holder = holder
		}
		if ttl > 0 {
			e.leaseTTL = ttl
		}
	}
}

// WithOnRejected registers a hook called for every permanently rejected entry.
func WithOnRejected(fn func(queue.QueuedRequest, error)) Option {
	return func(e *Engine) { e.onRejected = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTracerProvider sets the tracer provider (global provider by default).
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tp.Tracer(tracerName) }
}

// New creates an engine replaying entries from store.
func New(store queue.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		timeout:  DefaultRequestTimeout,
		holder:   "reefsync-" + queue.UUIDv7Generator{}.Generate(),
		leaseTTL: DefaultLeaseTTL,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.doer == nil {
		e.doer = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return e
}

// Holder returns the lease holder id.
func (e *Engine) Holder() string {
	return e.holder
}

// Flush replays every queued entry and returns aggregate counts.
//
// Per-entry failures never surface as errors; only a store that cannot be
// read does. Concurrent callers share one replay. The replay itself is
// detached from ctx cancellation: ctx only bounds how long this caller waits.
func (e *Engine) Flush(ctx context.Context) (Result, error) {
	ch := e.group.DoChan(flightKey, func() (any, error) {
		return e.flush(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		res, _ := r.Val.(Result)
		if r.Shared {
			e.logger.Debug("joined in-flight flush")
		}
		return res, r.Err
	}
}

func (e *Engine) flush(ctx context.Context) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "flush")
	defer span.End()

	var res Result

	leaser, leased := e.store.(queue.Leaser)
	if leased {
		ok, err := leaser.AcquireLease(ctx, e.holder, e.leaseTTL)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "acquire lease")
			return res, err
		}
		if !ok {
			e.logger.Info("flush skipped: lease held by another process")
			span.SetAttributes(attribute.Bool("flush.contended", true))
			res.Contended = true
			return res, nil
		}
		defer func() {
			if err := leaser.ReleaseLease(context.WithoutCancel(ctx), e.holder); err != nil {
				e.logger.Error("release flush lease", "error", err)
			}
		}()
	}

	entries, err := e.store.ListAll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list entries")
		return res, err
	}
	queue.Sort(entries)
	span.SetAttributes(attribute.Int("flush.entries", len(entries)))

	if len(entries) > 0 {
		e.logger.Info("flush started", "entries", len(entries))
	}
	if n := e.unresolved(entries); n > 0 {
		e.logger.Warn("queued requests have relative urls and no base url is set", "entries", n)
	}

	for i, entry := range entries {
		if leased && i > 0 {
			ok, err := leaser.AcquireLease(ctx, e.holder, e.leaseTTL)
			if err != nil || !ok {
				// Lost the lease: another process may be replaying now.
				remaining := len(entries) - i
				e.logger.Warn("flush lease lost, stopping replay", "remaining", remaining, "error", err)
				res.Failed += remaining
				break
			}
		}

		switch outcome, replayErr := e.replay(ctx, entry); outcome {
		case OutcomeTransient:
			res.Failed++
			e.logger.Debug("replay failed, entry kept", "id", entry.ID, "error", replayErr)
		case OutcomeSuccess, OutcomeRejected:
			if err := e.store.Remove(ctx, entry.ID); err != nil {
				// Confirmed upstream but still queued: it will be replayed again.
				res.Failed++
				e.logger.Error("remove replayed entry", "id", entry.ID, "error", err)
				continue
			}
			res.Succeeded++
			if outcome == OutcomeRejected {
				res.Dropped++
				e.logger.Warn("queued request rejected and dropped",
					"id", entry.ID, "method", entry.Method, "url", entry.URL, "error", replayErr)
				if e.onRejected != nil {
					e.onRejected(entry, replayErr)
				}
			}
		}
	}

	span.SetAttributes(
		attribute.Int("flush.succeeded", res.Succeeded),
		attribute.Int("flush.failed", res.Failed),
		attribute.Int("flush.dropped", res.Dropped),
	)
	if len(entries) > 0 {
		e.logger.Info("flush complete", "succeeded", res.Succeeded, "failed", res.Failed, "dropped", res.Dropped)
	}
	return res, nil
}

// replay issues one captured request and classifies the outcome.
// The returned error describes transient failures and rejections.
func (e *Engine) replay(ctx context.Context, entry queue.QueuedRequest) (Outcome, error) {
	ctx, span := e.tracer.Start(ctx, "replay", trace.WithAttributes(
		attribute.String("queue.id", entry.ID),
		attribute.String("http.request.method", entry.Method),
		attribute.String("url.full", entry.URL),
	))
	defer span.End()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	req, err := e.buildRequest(ctx, entry)
	if err != nil {
		span.RecordError(err)
		return OutcomeTransient, queue.NewTransient(entry.ID, 0, err)
	}

	resp, err := e.doer.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return OutcomeTransient, queue.NewTransient(entry.ID, 0, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	outcome := Classify(resp.StatusCode)
	span.SetAttributes(
		attribute.Int("http.response.status_code", resp.StatusCode),
		attribute.String("replay.outcome", outcome.String()),
	)

	switch outcome {
	case OutcomeTransient:
		span.SetStatus(codes.Error, resp.Status)
		return outcome, queue.NewTransient(entry.ID, resp.StatusCode, nil)
	case OutcomeRejected:
		return outcome, queue.NewPermanentRejection(entry.ID, resp.StatusCode)
	default:
		return outcome, nil
	}
}

// unresolved counts entries whose relative URL has no base to resolve against.
func (e *Engine) unresolved(entries []queue.QueuedRequest) int {
	if e.baseURL != nil {
		return 0
	}
	return CountRelative(entries)
}

// CountRelative counts entries whose URL is not absolute.
func CountRelative(entries []queue.QueuedRequest) int {
	n := 0
	for _, entry := range entries {
		if u, err := url.Parse(entry.URL); err == nil && !u.IsAbs() {
			n++
		}
	}
	return n
}

func (e *Engine) buildRequest(ctx context.Context, entry queue.QueuedRequest) (*http.Request, error) {
	target := entry.URL
	if e.baseURL != nil {
		ref, err := url.Parse(entry.URL)
		if err != nil {
			return nil, fmt.Errorf("parse url: %w", err)
		}
		target = e.baseURL.ResolveReference(ref).String()
	}

	var body io.Reader
	if entry.Body != nil {
		body = bytes.NewReader(entry.Body)
	}

	req, err := http.NewRequestWithContext(ctx, entry.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for name, value := range entry.Headers {
		req.Header.Set(name, value)
	}
	return req, nil
}
