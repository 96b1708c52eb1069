package offline

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reefsync/internal/flush"
	"github.com/roach88/reefsync/internal/monitor"
	"github.com/roach88/reefsync/internal/queue"
	"github.com/roach88/reefsync/internal/store"
	"github.com/roach88/reefsync/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMemoryClient(t *testing.T, online bool) (*Client, *testutil.MemoryStore, *testutil.FakeSource, *testutil.ScriptedDoer) {
	t.Helper()
	st := testutil.NewMemoryStore(nil, testutil.NewDeterministicClock().Now)
	src := testutil.NewFakeSource(online)
	doer := testutil.NewScriptedDoer()
	c := New(st, src,
		WithLogger(quietLogger()),
		WithFlushOptions(flush.WithDoer(doer)),
	)
	t.Cleanup(c.Stop)
	return c, st, src, doer
}

func TestClient_EnqueueUpdatesStatus(t *testing.T) {
	ctx := context.Background()
	c, _, _, _ := newMemoryClient(t, false)
	require.NoError(t, c.Start(ctx))

	entry, err := c.Enqueue(ctx, "/api/tanks/1/livestock", "post",
		map[string]string{"Content-Type": "application/json"}, []byte(`{"species":"clownfish"}`))
	require.NoError(t, err)
	assert.Equal(t, "POST", entry.Method)
	assert.NotEmpty(t, entry.ID)

	n, err := c.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, monitor.Status{IsOnline: false, PendingCount: 1}, c.Status())
}

func TestClient_EnqueueRejectsReads(t *testing.T) {
	ctx := context.Background()
	c, _, _, _ := newMemoryClient(t, false)

	_, err := c.Enqueue(ctx, "/api/tanks", "GET", nil, nil)
	require.Error(t, err)
	assert.True(t, queue.IsSerializationFailure(err))

	n, err := c.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClient_EnqueueStorageUnavailable(t *testing.T) {
	ctx := context.Background()
	c, st, _, _ := newMemoryClient(t, false)
	st.SetFailOpen(true)

	_, err := c.Enqueue(ctx, "/api/tanks/1/parameters", "POST", nil, []byte(`{"ph":8.2}`))
	require.Error(t, err)
	assert.True(t, queue.IsStorageUnavailable(err))

	st.SetFailOpen(false)
	n, err := c.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "failed enqueue must not leave a partial entry")
}

func TestClient_ReconnectDrainsQueue(t *testing.T) {
	ctx := context.Background()
	c, _, src, doer := newMemoryClient(t, false)
	require.NoError(t, c.Start(ctx))

	for _, u := range []string{"/api/a", "/api/b"} {
		_, err := c.Enqueue(ctx, u, "PUT", nil, nil)
		require.NoError(t, err)
	}

	src.SetOnline(true)
	c.Wait()

	assert.Equal(t, monitor.Status{IsOnline: true}, c.Status())
	calls := doer.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "/api/a", calls[0].URL)
	assert.Equal(t, "/api/b", calls[1].URL)
}

func TestClient_ManualFlushRefreshesCount(t *testing.T) {
	ctx := context.Background()
	c, _, _, doer := newMemoryClient(t, false)
	require.NoError(t, c.Start(ctx))

	doer.On("DELETE", "/api/b", testutil.Reply{Err: testutil.ErrNetwork})
	for _, u := range []string{"/api/a", "/api/b"} {
		_, err := c.Enqueue(ctx, u, "DELETE", nil, nil)
		require.NoError(t, err)
	}

	res, err := c.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, flush.Result{Succeeded: 1, Failed: 1}, res)
	assert.Equal(t, 1, c.Status().PendingCount)
}

func TestClient_QueueSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")

	first := store.New(path, store.WithLogger(quietLogger()))
	c := New(first, testutil.NewFakeSource(false), WithLogger(quietLogger()))
	_, err := c.Enqueue(ctx, "/api/tanks/1/maintenance", "POST", nil, []byte(`{"task":"water change"}`))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := store.New(path, store.WithLogger(quietLogger()))
	t.Cleanup(func() { second.Close() })
	doer := testutil.NewScriptedDoer()
	c2 := New(second, testutil.NewFakeSource(true),
		WithLogger(quietLogger()), WithFlushOptions(flush.WithDoer(doer)))

	n, err := c2.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err := c2.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	require.Len(t, doer.Calls(), 1)
	assert.Equal(t, `{"task":"water change"}`, string(doer.Calls()[0].Body))
}
