package monitor

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultProbeInterval is how often ProbeSource checks connectivity.
const DefaultProbeInterval = 5 * time.Second

// ProbeSource is a Source that polls a health URL.
//
// Any response below 500 counts as online; transport errors and 5xx count
// as offline. Call Probe once before handing the source to a Monitor so the
// initial state is known without a transition.
type ProbeSource struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger

	mu     sync.Mutex
	online bool
	subs   map[int]func(bool)
	nextID int
}

// ProbeOption configures a ProbeSource.
type ProbeOption func(*ProbeSource)

// WithProbeClient replaces the HTTP client.
func WithProbeClient(c *http.Client) ProbeOption {
	return func(p *ProbeSource) { p.client = c }
}

// WithProbeLogger sets the logger.
func WithProbeLogger(l *slog.Logger) ProbeOption {
	return func(p *ProbeSource) { p.logger = l }
}

// NewProbeSource creates a source polling url every interval.
func NewProbeSource(url string, interval time.Duration, opts ...ProbeOption) *ProbeSource {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	p := &ProbeSource{
		url:      url,
		interval: interval,
		logger:   slog.Default(),
		subs:     make(map[int]func(bool)),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   interval,
		}
	}
	return p
}

// Online implements Source.
func (p *ProbeSource) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// Subscribe implements Source.
func (p *ProbeSource) Subscribe(fn func(online bool)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

// Probe checks connectivity once and records the result without notifying.
func (p *ProbeSource) Probe(ctx context.Context) bool {
	online := p.check(ctx)
	p.mu.Lock()
	p.online = online
	p.mu.Unlock()
	return online
}

// Run polls until ctx is done, notifying subscribers on every transition.
func (p *ProbeSource) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.update(p.check(ctx))
		}
	}
}

func (p *ProbeSource) update(online bool) {
	p.mu.Lock()
	if p.online == online {
		p.mu.Unlock()
		return
	}
	p.online = online
	fns := make([]func(bool), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	p.logger.Debug("connectivity changed", "online", online, "url", p.url)
	for _, fn := range fns {
		fn(online)
	}
}

func (p *ProbeSource) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.logger.Error("build probe request", "url", p.url, "error", err)
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
