package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/reefsync/internal/flush"
	"github.com/roach88/reefsync/internal/monitor"
	"github.com/roach88/reefsync/internal/offline"
	"github.com/roach88/reefsync/internal/queue"
	"github.com/roach88/reefsync/internal/store"
	"github.com/roach88/reefsync/internal/testutil"
)

// leaseHolder names the harness process in the flush lease.
const leaseHolder = "harness"

// Harness executes one scenario.
type Harness struct {
	client *offline.Client
	store  *faultyStore
	source *testutil.FakeSource
	doer   *testutil.ScriptedDoer
	clock  *testutil.DeterministicClock
	logger *slog.Logger

	seq     int64
	replays int

	mu      sync.Mutex
	flushes []flushOutcome
}

type flushOutcome struct {
	result flush.Result
	err    error
}

// Run executes a scenario in a fresh in-memory database.
//
// Execution flow:
// 1. Create the store, scripted upstream and fake connectivity source
// 2. Start the client (never flushes on start)
// 3. Execute flow steps, recording the trace and checking expectations
// 4. Evaluate assertions against the trace and the final queue
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with component logs sent to logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	ctx := context.Background()
	clock := testutil.NewDeterministicClock()

	st, err := store.Open(":memory:",
		store.WithIDGenerator(&sequentialIDs{}),
		store.WithClock(clock.Now),
		store.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	doer := scriptDoer(scenario.Responses)

	h := &Harness{
		store:  &faultyStore{Store: st},
		source: testutil.NewFakeSource(scenario.Online),
		doer:   doer,
		clock:  clock,
		logger: logger,
	}
	h.client = offline.New(h.store, h.source,
		offline.WithLogger(logger),
		offline.WithFlushOptions(
			flush.WithDoer(doer),
			flush.WithLease(leaseHolder, 30*time.Second),
		),
		offline.WithMonitorOptions(monitor.WithOnFlush(h.recordMonitorFlush)),
	)
	if err := h.client.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start client: %w", err)
	}
	defer h.client.Stop()

	result := NewResult()
	for i, step := range scenario.Flow {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("flow step %d: %w", i, err)
		}
	}

	actx := &AssertionContext{Ctx: ctx, Store: h.store}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func scriptDoer(responses []Response) *testutil.ScriptedDoer {
	doer := testutil.NewScriptedDoer()
	for _, r := range responses {
		replies := make([]testutil.Reply, 0, len(r.Replies))
		for _, spec := range r.Replies {
			if spec.Error == "network" {
				replies = append(replies, testutil.Reply{Err: testutil.ErrNetwork})
				continue
			}
			replies = append(replies, testutil.Reply{Status: spec.Status})
		}
		doer.On(r.Method, r.URL, replies...)
	}
	return doer
}

func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	switch step.Action {
	case ActionEnqueue:
		h.enqueue(ctx, index, step, result)

	case ActionFlush:
		res, err := h.client.Flush(ctx)
		h.recordReplays(result)
		ev := TraceEvent{Type: EventFlush}
		if err != nil {
			ev.Error = errorCode(err)
		} else {
			ev.Result = &res
		}
		h.add(result, ev)
		h.checkExpect(index, step.Expect, res, err, result)

	case ActionOnline:
		h.add(result, TraceEvent{Type: EventOnline})
		h.source.SetOnline(true)
		h.client.Wait()
		h.recordReplays(result)
		h.recordMonitorFlushes(result)

	case ActionOffline:
		h.add(result, TraceEvent{Type: EventOffline})
		h.source.SetOnline(false)
		h.client.Wait()

	case ActionStoreDown:
		h.store.setDown(true)
		h.add(result, TraceEvent{Type: EventStore, State: "down"})

	case ActionStoreUp:
		h.store.setDown(false)
		h.add(result, TraceEvent{Type: EventStore, State: "up"})

	case ActionHoldClock:
		h.clock.Hold()

	case ActionReleaseClock:
		h.clock.Release()

	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}

	h.logger.Debug("flow step completed", "step", index, "action", step.Action)
	return nil
}

func (h *Harness) enqueue(ctx context.Context, index int, step Step, result *Result) {
	req := step.Request
	var body []byte
	if req.Body != nil {
		body = []byte(*req.Body)
	}

	entry, err := h.client.Enqueue(ctx, req.URL, req.Method, req.Headers, body)
	ev := TraceEvent{Type: EventEnqueue, Method: req.Method, URL: req.URL}
	if err != nil {
		ev.Error = errorCode(err)
	} else {
		ev.ID = entry.ID
		ev.Method = entry.Method
	}
	h.add(result, ev)

	want := ""
	if step.Expect != nil {
		want = step.Expect.Error
	}
	if got := errorCode(err); got != want {
		result.AddError(fmt.Sprintf("flow[%d]: enqueue %s %s: expected error %q, got %q", index, req.Method, req.URL, want, got))
	}
}

func (h *Harness) checkExpect(index int, expect *Expect, res flush.Result, err error, result *Result) {
	want := ""
	if expect != nil {
		want = expect.Error
	}
	if got := errorCode(err); got != want {
		result.AddError(fmt.Sprintf("flow[%d]: flush: expected error %q, got %q", index, want, got))
		return
	}
	if expect == nil || expect.Result == nil {
		return
	}
	exp := *expect.Result
	if res.Succeeded != exp.Succeeded || res.Failed != exp.Failed || res.Dropped != exp.Dropped {
		result.AddError(fmt.Sprintf("flow[%d]: flush: expected succeeded=%d failed=%d dropped=%d, got succeeded=%d failed=%d dropped=%d",
			index, exp.Succeeded, exp.Failed, exp.Dropped, res.Succeeded, res.Failed, res.Dropped))
	}
}

// recordReplays appends calls the upstream saw since the last step.
func (h *Harness) recordReplays(result *Result) {
	calls := h.doer.Calls()
	for _, c := range calls[h.replays:] {
		ev := TraceEvent{Type: EventReplay, Method: c.Method, URL: c.URL, Status: c.Status}
		if c.Err != nil {
			ev.Status = 0
			ev.Error = "network"
			if !errors.Is(c.Err, testutil.ErrNetwork) {
				ev.Error = c.Err.Error()
			}
		}
		h.add(result, ev)
	}
	h.replays = len(calls)
}

func (h *Harness) recordMonitorFlush(res flush.Result, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flushes = append(h.flushes, flushOutcome{result: res, err: err})
}

func (h *Harness) recordMonitorFlushes(result *Result) {
	h.mu.Lock()
	outcomes := h.flushes
	h.flushes = nil
	h.mu.Unlock()

	for _, o := range outcomes {
		ev := TraceEvent{Type: EventFlush}
		if o.err != nil {
			ev.Error = errorCode(o.err)
		} else {
			res := o.result
			ev.Result = &res
		}
		h.add(result, ev)
	}
}

func (h *Harness) add(result *Result, ev TraceEvent) {
	h.seq++
	ev.Seq = h.seq
	result.Trace = append(result.Trace, ev)
}

// errorCode returns the queue error code of err, or its text.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var qe *queue.Error
	if errors.As(err, &qe) {
		return string(qe.Code)
	}
	return err.Error()
}

// sequentialIDs yields req-001, req-002, ...
type sequentialIDs struct {
	mu sync.Mutex
	n  int
}

func (g *sequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("req-%03d", g.n)
}

// faultyStore wraps the SQLite store with a switch simulating an
// unavailable medium.
type faultyStore struct {
	*store.Store

	mu   sync.Mutex
	down bool
}

var (
	_ queue.Store  = (*faultyStore)(nil)
	_ queue.Leaser = (*faultyStore)(nil)
)

func (f *faultyStore) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *faultyStore) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return queue.NewStorageUnavailable(op, errors.New("storage medium unavailable"))
	}
	return nil
}

func (f *faultyStore) Enqueue(ctx context.Context, req queue.Request) (queue.QueuedRequest, error) {
	if err := f.check("enqueue"); err != nil {
		return queue.QueuedRequest{}, err
	}
	return f.Store.Enqueue(ctx, req)
}

func (f *faultyStore) ListAll(ctx context.Context) ([]queue.QueuedRequest, error) {
	if err := f.check("list entries"); err != nil {
		return nil, err
	}
	return f.Store.ListAll(ctx)
}

func (f *faultyStore) Remove(ctx context.Context, id string) error {
	if err := f.check("remove entry"); err != nil {
		return err
	}
	return f.Store.Remove(ctx, id)
}

func (f *faultyStore) Count(ctx context.Context) (int, error) {
	if err := f.check("count entries"); err != nil {
		return 0, err
	}
	return f.Store.Count(ctx)
}

func (f *faultyStore) AcquireLease(ctx context.Context, holder string, ttl time.Duration) (bool, error) {
	if err := f.check("acquire lease"); err != nil {
		return false, err
	}
	return f.Store.AcquireLease(ctx, holder, ttl)
}
