package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func TestInit_ExportsSpansAsTheyEnd(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer

	tp, shutdown, err := Init(ctx, Config{
		ServiceName: "reefsync-test",
		Version:     "1.4.0",
		Commit:      "abc123",
		StoreDriver: "sqlite",
		Writer:      &buf,
	})
	require.NoError(t, err)
	defer shutdown(ctx)
	assert.Same(t, tp, otel.GetTracerProvider())

	_, span := tp.Tracer("test").Start(ctx, "flush")
	span.End()

	out := buf.String()
	assert.Contains(t, out, `"Name": "flush"`)
	assert.Contains(t, out, "reefsync-test")
	assert.Contains(t, out, "1.4.0")
	assert.Contains(t, out, "abc123")
	assert.Contains(t, out, "reefsync.store.driver")
}

func TestNewResource(t *testing.T) {
	res, err := newResource(context.Background(), Config{Version: "dev"})
	require.NoError(t, err)

	name, ok := res.Set().Value(semconv.ServiceNameKey)
	require.True(t, ok)
	assert.Equal(t, DefaultServiceName, name.AsString())

	version, ok := res.Set().Value(semconv.ServiceVersionKey)
	require.True(t, ok)
	assert.Equal(t, "dev", version.AsString())

	_, ok = res.Set().Value(CommitKey)
	assert.False(t, ok, "empty commit is not recorded")
}

func TestInit_NoExporter(t *testing.T) {
	ctx := context.Background()
	tp, shutdown, err := Init(ctx, Config{})
	require.NoError(t, err)
	require.NotNil(t, tp)
	assert.NoError(t, shutdown(ctx))
}
