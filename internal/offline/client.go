// Package offline is the surface the HTTP layer and the UI talk to.
//
// Client wires a queue.Store, a flush.Engine and a monitor.Monitor together
// and exposes enqueue, flush, pending count and the observable status.
// Interceptor is an http.RoundTripper that enqueues mutating requests which
// fail for lack of connectivity.
package offline

import (
	"context"
	"log/slog"

	"github.com/roach88/reefsync/internal/flush"
	"github.com/roach88/reefsync/internal/monitor"
	"github.com/roach88/reefsync/internal/queue"
)

// Client is the offline write queue facade.
type Client struct {
	store   queue.Store
	engine  *flush.Engine
	monitor *monitor.Monitor
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*options)

type options struct {
	flushOpts   []flush.Option
	monitorOpts []monitor.Option
	logger      *slog.Logger
}

// WithFlushOptions passes options to the flush engine.
func WithFlushOptions(opts ...flush.Option) Option {
	return func(o *options) { o.flushOpts = append(o.flushOpts, opts...) }
}

// WithMonitorOptions passes options to the connectivity monitor.
func WithMonitorOptions(opts ...monitor.Option) Option {
	return func(o *options) { o.monitorOpts = append(o.monitorOpts, opts...) }
}

// WithLogger sets the logger for the client and the components it builds.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New builds a client over store, driven by source.
func New(store queue.Store, source monitor.Source, opts ...Option) *Client {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	engine := flush.New(store, append([]flush.Option{flush.WithLogger(o.logger)}, o.flushOpts...)...)
	mon := monitor.New(source, engine, store, append([]monitor.Option{monitor.WithLogger(o.logger)}, o.monitorOpts...)...)

	return &Client{
		store:   store,
		engine:  engine,
		monitor: mon,
		logger:  o.logger,
	}
}

// Start begins observing connectivity. It never flushes by itself.
func (c *Client) Start(ctx context.Context) error {
	return c.monitor.Start(ctx)
}

// Stop stops observing and waits for an in-flight flush.
func (c *Client) Stop() {
	c.monitor.Stop()
}

// Enqueue persists a mutating request for later replay.
//
// It fails with StorageUnavailable when the store cannot be opened or
// written (the request is then lost) and with SerializationFailure when
// the request is not a replayable mutation.
func (c *Client) Enqueue(ctx context.Context, url, method string, headers map[string]string, body []byte) (queue.QueuedRequest, error) {
	entry, err := c.store.Enqueue(ctx, queue.Request{
		URL:     url,
		Method:  method,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		c.logger.Error("enqueue failed", "method", method, "url", url, "error", err)
		return queue.QueuedRequest{}, err
	}

	c.logger.Info("request queued for replay", "id", entry.ID, "method", entry.Method, "url", entry.URL)
	if _, err := c.monitor.Refresh(ctx); err != nil {
		c.logger.Warn("refresh pending count after enqueue", "error", err)
	}
	return entry, nil
}

// Flush replays the queue now. Only store failures are returned.
func (c *Client) Flush(ctx context.Context) (flush.Result, error) {
	res, err := c.engine.Flush(ctx)
	if err != nil {
		return res, err
	}
	if _, err := c.monitor.Refresh(ctx); err != nil {
		c.logger.Warn("refresh pending count after flush", "error", err)
	}
	return res, nil
}

// PendingCount returns the number of queued requests.
func (c *Client) PendingCount(ctx context.Context) (int, error) {
	return c.store.Count(ctx)
}

// Status returns the observable sync state.
func (c *Client) Status() monitor.Status {
	return c.monitor.Status()
}

// Subscribe registers fn for status changes.
func (c *Client) Subscribe(fn func(monitor.Status)) func() {
	return c.monitor.Subscribe(fn)
}

// Wait blocks until no connectivity-triggered flush is running.
func (c *Client) Wait() {
	c.monitor.Wait()
}

// Engine returns the underlying flush engine.
func (c *Client) Engine() *flush.Engine {
	return c.engine
}
