package cli

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reefsync/internal/flush"
)

// upstream records requests and answers from a status table.
type upstream struct {
	mu       sync.Mutex
	requests []string
	bodies   []string
	statuses map[string]int
}

func newUpstream(t *testing.T, statuses map[string]int) (*upstream, *httptest.Server) {
	t.Helper()
	u := &upstream{statuses: statuses}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		key := r.Method + " " + r.URL.Path

		u.mu.Lock()
		if r.URL.Path != "/healthz" {
			u.requests = append(u.requests, key)
			u.bodies = append(u.bodies, string(body))
		}
		status, ok := u.statuses[key]
		u.mu.Unlock()

		if !ok {
			status = http.StatusOK
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return u, srv
}

func (u *upstream) seen() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string{}, u.requests...)
}

func TestFlushDrainsQueue(t *testing.T) {
	up, srv := newUpstream(t, nil)
	db := testDB(t)

	_, err := execute(t, "--db", db, "enqueue", "POST", "/api/tanks/1/parameters", "--body", `{"ph":8.2}`)
	require.NoError(t, err)
	_, err = execute(t, "--db", db, "enqueue", "DELETE", "/api/tanks/1/livestock/7")
	require.NoError(t, err)

	out, err := execute(t, "--db", db, "flush", "--base-url", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Replayed 2 requests: 2 succeeded, 0 still queued\n", out)
	assert.Equal(t, []string{"POST /api/tanks/1/parameters", "DELETE /api/tanks/1/livestock/7"}, up.seen())
	assert.Equal(t, `{"ph":8.2}`, up.bodies[0])

	out, err = execute(t, "--db", db, "count")
	require.NoError(t, err)
	assert.Equal(t, "0 pending requests\n", out)
}

func TestFlushPartialFailure(t *testing.T) {
	_, srv := newUpstream(t, map[string]int{
		"POST /api/b": http.StatusServiceUnavailable,
		"POST /api/c": http.StatusUnprocessableEntity,
	})
	db := testDB(t)
	for _, u := range []string{"/api/a", "/api/b", "/api/c"} {
		_, err := execute(t, "--db", db, "enqueue", "POST", u)
		require.NoError(t, err)
	}

	out, err := execute(t, "--db", db, "--format", "json", "flush", "--base-url", srv.URL)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var res flush.Result
	decodeData(t, out, &res)
	assert.Equal(t, flush.Result{Succeeded: 2, Failed: 1, Dropped: 1}, res)

	out, err = execute(t, "--db", db, "--format", "json", "list")
	require.NoError(t, err)
	var list ListResult
	decodeData(t, out, &list)
	require.Len(t, list.Entries, 1)
	assert.Equal(t, "/api/b", list.Entries[0].URL)
}

func TestFlushEmptyQueue(t *testing.T) {
	out, err := execute(t, "--db", testDB(t), "flush")
	require.NoError(t, err)
	assert.Equal(t, "Queue is empty, nothing to replay\n", out)
}

func TestFlushInvalidBaseURL(t *testing.T) {
	_, err := execute(t, "--db", testDB(t), "flush", "--base-url", "not a url")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFlushUsesConfig(t *testing.T) {
	up, srv := newUpstream(t, nil)
	dir := t.TempDir()
	db := filepath.Join(dir, "queue.db")
	cfgPath := filepath.Join(dir, "reefsync.yaml")
	writeFile(t, cfgPath, "store:\n  path: "+db+"\nflush:\n  base_url: "+srv.URL+"\n  request_timeout: 2s\n")

	_, err := execute(t, "--config", cfgPath, "enqueue", "PUT", "/api/tanks/3")
	require.NoError(t, err)
	_, err = execute(t, "--config", cfgPath, "flush")
	require.NoError(t, err)
	assert.Equal(t, []string{"PUT /api/tanks/3"}, up.seen())
}

func TestDescribeFlush(t *testing.T) {
	assert.Equal(t, "Flush skipped: another process is replaying the queue", describeFlush(flush.Result{Contended: true}))
	assert.Equal(t, "Replayed 3 requests: 2 succeeded, 1 still queued (1 rejected and dropped)",
		describeFlush(flush.Result{Succeeded: 2, Failed: 1, Dropped: 1}))
}

func TestFlushRelativeURLNeedsBaseURL(t *testing.T) {
	db := testDB(t)
	_, err := execute(t, "--db", db, "enqueue", "POST", "/api/tanks/1/parameters")
	require.NoError(t, err)

	_, err = execute(t, "--db", db, "flush")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 queued request with relative urls")

	out, err := execute(t, "--db", db, "count")
	require.NoError(t, err)
	assert.Equal(t, "1 pending request\n", out)
}

func TestFlushAbsoluteURLWithoutBaseURL(t *testing.T) {
	up, srv := newUpstream(t, nil)
	db := testDB(t)
	_, err := execute(t, "--db", db, "enqueue", "PUT", srv.URL+"/api/tanks/4")
	require.NoError(t, err)

	_, err = execute(t, "--db", db, "flush")
	require.NoError(t, err)
	assert.Equal(t, []string{"PUT /api/tanks/4"}, up.seen())
}

func TestFlushVerboseNamesLeaseHolder(t *testing.T) {
	_, srv := newUpstream(t, nil)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "reefsync.yaml")
	writeFile(t, cfgPath, "store:\n  path: "+filepath.Join(dir, "queue.db")+"\nflush:\n  holder: tank-pi\n")

	root := NewRootCommand()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs([]string{"--config", cfgPath, "--verbose", "flush", "--base-url", srv.URL})
	require.NoError(t, root.Execute())

	assert.Contains(t, stderr.String(), "Flushing as lease holder tank-pi")
	assert.NotContains(t, stdout.String(), "lease holder")
}
