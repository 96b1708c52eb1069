package cli

import (
	"context"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/reefsync/internal/config"
	"github.com/roach88/reefsync/internal/flush"
	"github.com/roach88/reefsync/internal/queue"
	"github.com/roach88/reefsync/internal/telemetry"
)

// startTelemetry installs the stdout span exporter when configured.
// The returned shutdown is always safe to call.
func startTelemetry(ctx context.Context, cfg config.Config, cmd *cobra.Command) (trace.TracerProvider, func(), error) {
	if !cfg.Telemetry.Stdout {
		return otel.GetTracerProvider(), func() {}, nil
	}
	tp, shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     build.Version,
		Commit:      build.Commit,
		StoreDriver: cfg.Store.Driver,
		Writer:      cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to start telemetry", err)
	}
	return tp, func() { _ = shutdown(context.WithoutCancel(ctx)) }, nil
}

// flushOptions maps config onto engine options.
func (o *RootOptions) flushOptions(cfg config.Config, tp trace.TracerProvider) ([]flush.Option, error) {
	opts := []flush.Option{
		flush.WithLogger(o.Logger()),
		flush.WithRequestTimeout(cfg.Flush.RequestTimeout),
		flush.WithLease(cfg.Flush.Holder, cfg.Flush.LeaseTTL),
		flush.WithTracerProvider(tp),
		flush.WithOnRejected(func(entry queue.QueuedRequest, err error) {
			o.Logger().Warn("dropped rejected request", "id", entry.ID, "method", entry.Method, "url", entry.URL, "error", err)
		}),
	}
	if cfg.Flush.BaseURL != "" {
		base, err := url.Parse(cfg.Flush.BaseURL)
		if err != nil || base.Scheme == "" || base.Host == "" {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid base url %q", cfg.Flush.BaseURL))
		}
		opts = append(opts, flush.WithBaseURL(base))
	}
	return opts, nil
}
