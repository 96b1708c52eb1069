package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/reefsync/internal/flush"
)

// FlushOptions holds flags for the flush command.
type FlushOptions struct {
	*RootOptions
	BaseURL string
}

// NewFlushCommand creates the flush command.
func NewFlushCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FlushOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Replay queued requests now",
		Long: `Replay every queued request in enqueue order.

Successful and permanently rejected (4xx) requests leave the queue;
network failures, 5xx, 408 and 429 keep the request for the next flush.
When another process holds the flush lease nothing is replayed.

Requests queued with a relative URL ("/api/tanks/1") need --base-url
or flush.base_url; without one the command refuses to replay them.

Exit codes:
  0 - Queue drained (or lease held elsewhere)
  1 - Some requests are still queued
  2 - Command error (storage unavailable, bad config, etc.)

Examples:
  reefsync flush --base-url https://reef.example.com
  reefsync flush --config reefsync.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlush(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "", "resolve relative queued URLs against this origin (overrides config)")
	return cmd
}

func runFlush(ctx context.Context, opts *FlushOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.BaseURL != "" {
		cfg.Flush.BaseURL = opts.BaseURL
	}

	tp, stopTelemetry, err := startTelemetry(ctx, cfg, cmd)
	if err != nil {
		return err
	}
	defer stopTelemetry()

	engineOpts, err := opts.flushOptions(cfg, tp)
	if err != nil {
		return err
	}

	st, err := opts.openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	f := opts.formatter(cmd)
	if cfg.Flush.BaseURL == "" {
		if err := requireAbsolute(ctx, st); err != nil {
			return err
		}
	}

	engine := flush.New(st, engineOpts...)
	f.VerboseLog("Flushing as lease holder %s", engine.Holder())
	res, err := engine.Flush(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "flush failed", err)
	}

	if f.IsJSON() {
		if err := f.Success(res); err != nil {
			return err
		}
	} else {
		if err := f.Success(describeFlush(res)); err != nil {
			return err
		}
	}

	if res.Failed > 0 {
		return incomplete(f, res.Failed)
	}
	return nil
}

// requireAbsolute fails when queued entries could only be replayed against
// a base URL.
func requireAbsolute(ctx context.Context, st queueStore) error {
	entries, err := st.ListAll(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list queue", err)
	}
	if n := flush.CountRelative(entries); n > 0 {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("%s with relative urls; set --base-url or flush.base_url", formatCount(n, "queued request", "queued requests")))
	}
	return nil
}

// incomplete is the exit error for entries left in the queue. In JSON mode
// the result payload already describes them.
func incomplete(f *OutputFormatter, pending int) error {
	err := NewExitError(ExitFailure, fmt.Sprintf("%d request(s) still queued", pending))
	if f.IsJSON() {
		return markReported(err)
	}
	return err
}

// describeFlush renders a one-line text summary.
func describeFlush(res flush.Result) string {
	if res.Contended {
		return "Flush skipped: another process is replaying the queue"
	}
	if res.Attempted() == 0 {
		return "Queue is empty, nothing to replay"
	}
	s := fmt.Sprintf("Replayed %s: %s, %s",
		formatCount(res.Attempted(), "request", "requests"),
		printer.Sprintf("%d succeeded", res.Succeeded),
		printer.Sprintf("%d still queued", res.Failed),
	)
	if res.Dropped > 0 {
		s += printer.Sprintf(" (%d rejected and dropped)", res.Dropped)
	}
	return s
}
