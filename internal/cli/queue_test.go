package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reefsync/internal/store"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func decodeData(t *testing.T, out string, v interface{}) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func TestEnqueueAndList(t *testing.T) {
	db := testDB(t)

	out, err := execute(t, "--db", db, "enqueue", "post", "/api/tanks/1/parameters",
		"--body", `{"ph":8.2}`, "-H", "Content-Type=application/json")
	require.NoError(t, err)
	assert.Contains(t, out, "Queued POST /api/tanks/1/parameters as ")

	_, err = execute(t, "--db", db, "enqueue", "DELETE", "/api/tanks/1/livestock/7")
	require.NoError(t, err)

	out, err = execute(t, "--db", db, "--format", "json", "list")
	require.NoError(t, err)

	var list ListResult
	decodeData(t, out, &list)
	require.Equal(t, 2, list.Total)
	assert.Equal(t, "POST", list.Entries[0].Method)
	assert.Equal(t, "application/json", list.Entries[0].Headers["Content-Type"])
	require.NotNil(t, list.Entries[0].BodyBytes)
	assert.Equal(t, 10, *list.Entries[0].BodyBytes)
	assert.Equal(t, "DELETE", list.Entries[1].Method)
	assert.Nil(t, list.Entries[1].BodyBytes)

	out, err = execute(t, "--db", db, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "METHOD")
	assert.Contains(t, out, "/api/tanks/1/livestock/7")
	assert.Contains(t, out, "2 requests queued")
}

func TestEnqueueEmptyBodyIsPresent(t *testing.T) {
	db := testDB(t)
	_, err := execute(t, "--db", db, "enqueue", "PUT", "/api/tanks/1", "--body", "")
	require.NoError(t, err)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	entries, err := st.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotNil(t, entries[0].Body)
	assert.Empty(t, entries[0].Body)
}

func TestEnqueueBodyFile(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "queue.db")
	bodyPath := filepath.Join(dir, "tank.json")
	writeFile(t, bodyPath, `{"name":"nano"}`)

	out, err := execute(t, "--db", db, "--format", "json", "enqueue", "PATCH", "/api/tanks/2", "--body-file", bodyPath)
	require.NoError(t, err)

	var res EnqueueResult
	decodeData(t, out, &res)
	assert.Equal(t, "PATCH", res.Method)
	assert.NotEmpty(t, res.ID)
	assert.NotZero(t, res.Timestamp)
}

func TestEnqueueRejectsReads(t *testing.T) {
	_, err := execute(t, "--db", testDB(t), "enqueue", "GET", "/api/tanks")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to enqueue request")
}

func TestEnqueueBadHeader(t *testing.T) {
	_, err := execute(t, "--db", testDB(t), "enqueue", "POST", "/api/tanks", "-H", "novalue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid header")
}

func TestEnqueueUnopenableDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "missing-dir", "queue.db")
	_, err := execute(t, "--db", db, "enqueue", "POST", "/api/tanks")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCountAndRemove(t *testing.T) {
	db := testDB(t)
	out, err := execute(t, "--db", db, "--format", "json", "enqueue", "POST", "/api/a")
	require.NoError(t, err)
	var first EnqueueResult
	decodeData(t, out, &first)

	_, err = execute(t, "--db", db, "enqueue", "POST", "/api/b")
	require.NoError(t, err)

	out, err = execute(t, "--db", db, "count")
	require.NoError(t, err)
	assert.Equal(t, "2 pending requests\n", out)

	out, err = execute(t, "--db", db, "remove", first.ID, "unknown-id")
	require.NoError(t, err)
	assert.Equal(t, "Removed 2 requests\n", out)

	out, err = execute(t, "--db", db, "--format", "json", "count")
	require.NoError(t, err)
	var count CountResult
	decodeData(t, out, &count)
	assert.Equal(t, 1, count.Pending)
}

func TestListEmpty(t *testing.T) {
	out, err := execute(t, "--db", testDB(t), "list")
	require.NoError(t, err)
	assert.Equal(t, "Queue is empty.\n", out)
}

func TestParseHeaders(t *testing.T) {
	h, err := parseHeaders([]string{"Content-Type=application/json", "X-Tank: 1", "Authorization=Bearer a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Content-Type":  "application/json",
		"X-Tank":        "1",
		"Authorization": "Bearer a=b",
	}, h)

	_, err = parseHeaders([]string{"=value"})
	assert.Error(t, err)
}

func TestListText(t *testing.T) {
	db := testDB(t)
	_, err := execute(t, "--db", db, "enqueue", "PATCH", "/api/tanks/2", "--body", `{"volume":120}`)
	require.NoError(t, err)

	out, err := execute(t, "--db", db, "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Regexp(t, `^ID\s+ENQUEUED\s+METHOD\s+URL\s+BODY$`, lines[0])
	assert.Regexp(t, `\s\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z\s+PATCH\s+/api/tanks/2\s+14 B$`, lines[1])
	assert.Equal(t, "1 request queued", lines[3])
}
