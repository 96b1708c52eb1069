package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoldenScenarios(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_ExpectationMismatchFails(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong-expectation
description: expects a failure that does not happen
online: true
flow:
  - action: enqueue
    request: {method: POST, url: /api/tanks}
  - action: flush
    expect:
      result: {succeeded: 0, failed: 1, dropped: 0}
assertions:
  - type: pending_count
    count: 1
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "expected succeeded=0 failed=1 dropped=0, got succeeded=1 failed=0 dropped=0")
	assert.Contains(t, result.Errors[1], "pending_count")
}

func TestRun_UnexpectedEnqueueError(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: read-request
description: GET requests are not replayable
flow:
  - action: enqueue
    request: {method: GET, url: /api/tanks}
assertions:
  - type: pending_count
    count: 0
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `got "SERIALIZATION_FAILURE"`)
}

func TestRun_StoreDownDuringFlush(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: store-down-flush
description: A flush against an unavailable store reports the storage error
online: true
flow:
  - action: enqueue
    request: {method: DELETE, url: /api/tanks/1}
  - action: store_down
  - action: flush
    expect:
      error: STORAGE_UNAVAILABLE
  - action: store_up
assertions:
  - type: pending_count
    count: 1
  - type: replay_order
    requests: []
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	last := result.Trace[len(result.Trace)-1]
	assert.Equal(t, EventStore, last.Type)
	flushEv := result.Trace[len(result.Trace)-2]
	assert.Equal(t, EventFlush, flushEv.Type)
	assert.Equal(t, "STORAGE_UNAVAILABLE", flushEv.Error)
	assert.Nil(t, flushEv.Result)
}

func TestRun_IsDeterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/partial-failure.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := MarshalSnapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := MarshalSnapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestSequentialIDs(t *testing.T) {
	g := &sequentialIDs{}
	assert.Equal(t, "req-001", g.Generate())
	assert.Equal(t, "req-002", g.Generate())
}
