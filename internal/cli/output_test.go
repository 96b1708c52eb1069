package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reefsync/internal/queue"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]int{"pending": 3}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]interface{}{"pending": float64(3)}, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error("E_STORAGE", "queue database unavailable", nil))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_STORAGE", resp.Error.Code)
	assert.Equal(t, "queue database unavailable", resp.Error.Message)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}

	require.NoError(t, formatter.Error("E_STORAGE", "queue database unavailable", "disk full"))
	assert.Contains(t, buf.String(), "Error [E_STORAGE]: queue database unavailable")
	assert.Contains(t, buf.String(), "Details: disk full")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}

	quiet := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut}
	quiet.VerboseLog("hidden %d", 1)
	assert.Empty(t, errOut.String())

	loud := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}
	loud.VerboseLog("shown %d", 2)
	assert.Equal(t, "shown 2\n", errOut.String())
	assert.Empty(t, out.String())
}

func TestExitError(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "failed to open queue database", cause)

	assert.Equal(t, "failed to open queue database: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ExitFailure, GetExitCode(cause))
	assert.Equal(t, "nothing to do", NewExitError(ExitFailure, "nothing to do").Error())
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "1 request", formatCount(1, "request", "requests"))
	assert.Equal(t, "0 requests", formatCount(0, "request", "requests"))
	assert.Equal(t, "12,345 requests", formatCount(12345, "request", "requests"))
}

func TestErrorCode(t *testing.T) {
	storage := WrapExitError(ExitCommandError, "failed to count queue", queue.NewStorageUnavailable("count", errors.New("disk I/O error")))
	assert.Equal(t, "E_STORAGE_UNAVAILABLE", ErrorCode(storage))
	assert.Equal(t, CodeIncomplete, ErrorCode(NewExitError(ExitFailure, "2 request(s) still queued")))
	assert.Equal(t, CodeCommand, ErrorCode(NewExitError(ExitCommandError, "bad flag")))
}

func TestFailWritesEnvelopeOnce(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	err := f.Fail(NewExitError(ExitCommandError, "invalid base url"))
	require.Error(t, err)
	assert.True(t, IsReported(err))
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	again := f.Fail(err)
	assert.Same(t, err, again)
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("\n")))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, CodeCommand, resp.Error.Code)
	assert.Equal(t, "invalid base url", resp.Error.Message)
}

func TestFailTextModeLeavesErrorUnreported(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}

	err := f.Fail(errors.New("boom"))
	require.Error(t, err)
	assert.False(t, IsReported(err))
	assert.Empty(t, buf.String())
	assert.NoError(t, f.Fail(nil))
}
