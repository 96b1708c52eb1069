package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/roach88/reefsync/internal/flush"
	"github.com/roach88/reefsync/internal/monitor"
	"github.com/roach88/reefsync/internal/offline"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	ProbeURL     string
	BaseURL      string
	FlushOnStart bool
	Once         bool
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Replay the queue whenever connectivity returns",
		Long: `Poll a health URL and flush the queue on every offline to online
transition, printing each status change.

Being online at start-up does not trigger a flush unless --flush-on-start
is given. With --once the command probes a single time, flushes if online,
prints the resulting status and exits.

Examples:
  reefsync watch --probe-url https://reef.example.com/healthz
  reefsync watch --config reefsync.yaml --flush-on-start
  reefsync watch --once --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ProbeURL, "probe-url", "", "health URL used to detect connectivity (overrides config)")
	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "", "resolve relative queued URLs against this origin (overrides config)")
	cmd.Flags().BoolVar(&opts.FlushOnStart, "flush-on-start", false, "flush once at start-up when already online")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "probe once, flush if online, then exit")

	return cmd
}

func runWatch(ctx context.Context, opts *WatchOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.ProbeURL != "" {
		cfg.Monitor.ProbeURL = opts.ProbeURL
	}
	if opts.BaseURL != "" {
		cfg.Flush.BaseURL = opts.BaseURL
	}
	if cfg.Monitor.ProbeURL == "" {
		return NewExitError(ExitCommandError, "a probe url is required (--probe-url or monitor.probe_url)")
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

	logger := opts.Logger()
	f := opts.formatter(cmd)
	var outMu sync.Mutex
	emit := func(v interface{}) {
		outMu.Lock()
		defer outMu.Unlock()
		_ = f.Success(v)
	}

	probe := monitor.NewProbeSource(cfg.Monitor.ProbeURL, cfg.Monitor.ProbeInterval, monitor.WithProbeLogger(logger))
	probe.Probe(ctx)

	client := offline.New(st, probe,
		offline.WithLogger(logger),
		offline.WithFlushOptions(engineOpts...),
		offline.WithMonitorOptions(monitor.WithOnFlush(func(res flush.Result, err error) {
			if err != nil {
				logger.Error("flush failed", "error", err)
				return
			}
			if !f.IsJSON() {
				emit(describeFlush(res))
			}
		})),
	)

	f.VerboseLog("Watching %s as lease holder %s", cfg.Monitor.ProbeURL, client.Engine().Holder())

	var last monitor.Status
	var seen bool
	unsubscribe := client.Subscribe(func(s monitor.Status) {
		if seen && s == last {
			return
		}
		last, seen = s, true
		emit(statusLine(f, s))
	})
	defer unsubscribe()

	if err := client.Start(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to read queue", err)
	}
	defer client.Stop()

	if opts.Once || opts.FlushOnStart {
		if probe.Online() {
			res, err := client.Flush(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "flush failed", err)
			}
			if !f.IsJSON() {
				emit(describeFlush(res))
			}
		}
		if opts.Once {
			if client.Status().PendingCount > 0 {
				return incomplete(f, client.Status().PendingCount)
			}
			return nil
		}
	}

	logger.Info("watching connectivity", "probe_url", cfg.Monitor.ProbeURL, "interval", cfg.Monitor.ProbeInterval)
	probe.Run(ctx)
	return nil
}

// statusLine renders s for the formatter: the struct for JSON, a sentence
// for text.
func statusLine(f *OutputFormatter, s monitor.Status) interface{} {
	if f.IsJSON() {
		return s
	}
	conn := "offline"
	if s.IsOnline {
		conn = "online"
	}
	line := fmt.Sprintf("Status: %s, %s", conn, formatCount(s.PendingCount, "pending request", "pending requests"))
	if s.IsSyncing {
		line += ", syncing"
	}
	return line
}
