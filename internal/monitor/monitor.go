package monitor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/reefsync/internal/flush"
)

// Source reports connectivity and notifies on transitions.
type Source interface {
	Online() bool
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Flusher replays the queue. *flush.Engine satisfies it.
type Flusher interface {
	Flush(ctx context.Context) (flush.Result, error)
}

// Counter reads the pending count. Every queue.Store satisfies it.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Status is the observable sync state.
type Status struct {
	IsOnline     bool `json:"is_online"`
	PendingCount int  `json:"pending_count"`
	IsSyncing    bool `json:"is_syncing"`
}

// Monitor drives flushes from connectivity transitions.
type Monitor struct {
	source  Source
	flusher Flusher
	counter Counter
	logger  *slog.Logger
	onFlush func(flush.Result, error)

	mu          sync.Mutex
	status      Status
	started     bool
	listening   bool // subscribed and initial state read
	rerun       bool
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	subs        map[int]func(Status)
	nextSub     int

	// pubMu orders notifications so subscribers never see stale snapshots
	// after newer ones.
	pubMu sync.Mutex
	wg    sync.WaitGroup
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithOnFlush registers a hook called after every triggered flush.
func WithOnFlush(fn func(flush.Result, error)) Option {
	return func(m *Monitor) { m.onFlush = fn }
}

// New creates a monitor. Call Start to begin observing source.
func New(source Source, flusher Flusher, counter Counter, opts ...Option) *Monitor {
	m := &Monitor{
		source:  source,
		flusher: flusher,
		counter: counter,
		logger:  slog.Default(),
		subs:    make(map[int]func(Status)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start reads the initial connectivity and pending count, then subscribes
// to transitions. It never flushes. Calling Start twice is a no-op.
//
// A failed count is returned but the monitor keeps running.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))
	m.mu.Unlock()

	// Subscribe before reading the initial state so no transition falls
	// between the two. Signals are ignored until listening is set.
	unsubscribe := m.source.Subscribe(m.handle)
	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.status.IsOnline = m.source.Online()
	m.listening = true
	m.mu.Unlock()

	m.logger.Debug("connectivity monitor started", "online", m.Status().IsOnline)

	_, err := m.Refresh(ctx)
	return err
}

// Stop unsubscribes from the source and waits for an in-flight flush.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.listening = false
	unsubscribe := m.unsubscribe
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	m.wg.Wait()
	m.cancel()
}

// Wait blocks until no triggered flush is running.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// Status returns a snapshot of the current state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Subscribe registers fn for every status change and returns an
// unsubscribe func. fn must not block.
func (m *Monitor) Subscribe(fn func(Status)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Refresh re-reads the pending count and publishes it.
func (m *Monitor) Refresh(ctx context.Context) (int, error) {
	n, err := m.counter.Count(ctx)
	if err != nil {
		m.logger.Error("read pending count", "error", err)
		return 0, err
	}
	m.mu.Lock()
	m.status.PendingCount = n
	m.mu.Unlock()
	m.notify()
	return n, nil
}

// handle applies one connectivity transition.
func (m *Monitor) handle(online bool) {
	m.mu.Lock()
	if !m.listening || online == m.status.IsOnline {
		m.mu.Unlock()
		return
	}
	m.status.IsOnline = online

	if !online {
		m.mu.Unlock()
		m.logger.Info("connectivity lost")
		m.notify()
		return
	}

	if m.status.IsSyncing {
		m.rerun = true
		m.mu.Unlock()
		m.logger.Debug("back online during flush, follow-up queued")
		m.notify()
		return
	}

	m.status.IsSyncing = true
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("connectivity restored, flushing queue")
	m.notify()
	go m.sync()
}

// sync runs the flush, then any follow-up requested meanwhile.
func (m *Monitor) sync() {
	defer m.wg.Done()

	for {
		res, err := m.flusher.Flush(m.ctx)
		if err != nil {
			m.logger.Error("flush failed", "error", err)
		}
		if m.onFlush != nil {
			m.onFlush(res, err)
		}

		n, countErr := m.counter.Count(m.ctx)
		if countErr != nil {
			m.logger.Error("read pending count", "error", countErr)
		}

		m.mu.Lock()
		if countErr == nil {
			m.status.PendingCount = n
		}
		again := m.rerun && m.status.IsOnline
		m.rerun = false
		if !again {
			m.status.IsSyncing = false
		}
		m.mu.Unlock()

		m.notify()
		if !again {
			return
		}
	}
}

func (m *Monitor) notify() {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	m.mu.Lock()
	snap := m.status
	fns := make([]func(Status), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
