// Package telemetry configures OpenTelemetry tracing for the reefsync CLI.
//
// reefsync runs as a short-lived command, so spans are exported
// synchronously as they end rather than batched.
package telemetry

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultServiceName is used when Config.ServiceName is empty.
const DefaultServiceName = "reefsync"

// Resource attribute keys specific to reefsync.
const (
	CommitKey      = attribute.Key("reefsync.commit")
	StoreDriverKey = attribute.Key("reefsync.store.driver")
)

// Config describes the process being traced.
type Config struct {
	ServiceName string
	// Version and Commit are the build stamps of the reefsync binary.
	Version     string
	Commit      string
	StoreDriver string
	// Writer receives spans as indented JSON. Nil records spans without
	// exporting them.
	Writer io.Writer
}

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

// Init installs a global tracer provider and returns it with its shutdown func.
func Init(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, Shutdown, error) {
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.Writer != nil {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(cfg.Writer), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, sdktrace.WithSyncer(exp))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown, nil
}

func newResource(ctx context.Context, cfg Config) (*sdkresource.Resource, error) {
	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	attrs := []attribute.KeyValue{semconv.ServiceName(name)}
	if cfg.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.Version))
	}
	if cfg.Commit != "" {
		attrs = append(attrs, CommitKey.String(cfg.Commit))
	}
	if cfg.StoreDriver != "" {
		attrs = append(attrs, StoreDriverKey.String(cfg.StoreDriver))
	}
	return sdkresource.New(ctx,
		sdkresource.WithTelemetrySDK(),
		sdkresource.WithAttributes(attrs...),
	)
}
