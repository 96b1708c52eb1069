package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/reefsync/internal/config"
	"github.com/roach88/reefsync/internal/queue"
	"github.com/roach88/reefsync/internal/redisstore"
	"github.com/roach88/reefsync/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Config   string // YAML config file
	Database string // overrides store.path

	logger *slog.Logger
}

// BuildInfo stamps the binary. cmd/reefsync sets it from linker flags.
type BuildInfo struct {
	Version string
	Commit  string
}

var build = BuildInfo{Version: "dev"}

// SetBuildInfo records the binary's version and commit for --version and
// trace resources.
func SetBuildInfo(version, commit string) {
	build = BuildInfo{Version: version, Commit: commit}
}

func (b BuildInfo) String() string {
	if b.Commit == "" {
		return b.Version
	}
	return fmt.Sprintf("%s (commit=%s)", b.Version, b.Commit)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the reefsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "reefsync",
		Version: build.String(),
		Short:   "reefsync - offline write queue for the reef tank app",
		Long:    `Inspect, replay and watch the queue of writes captured while the
reef tank app was offline.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			opts.logger = newLogger(cmd.ErrOrStderr(), opts.Verbose)
			slog.SetDefault(opts.logger)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite queue database (overrides config)")

	cmd.AddCommand(NewEnqueueCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewCountCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewFlushCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	for _, sub := range cmd.Commands() {
		reportFailures(sub, opts)
	}
	return cmd
}

// reportFailures routes RunE errors through the formatter so JSON callers
// always get an error envelope.
func reportFailures(cmd *cobra.Command, opts *RootOptions) {
	run := cmd.RunE
	if run == nil {
		return
	}
	cmd.RunE = func(c *cobra.Command, args []string) error {
		return opts.formatter(c).Fail(run(c, args))
	}
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// newLogger builds the stderr text logger; DEBUG when verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Logger returns the command logger, or the default before PreRun.
func (o *RootOptions) Logger() *slog.Logger {
	if o.logger == nil {
		return slog.Default()
	}
	return o.logger
}

// formatter builds the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// loadConfig reads --config and applies flag overrides.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.Config)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Database != "" {
		cfg.Store.Driver = config.DriverSQLite
		cfg.Store.Path = o.Database
	}
	return cfg, nil
}

// queueStore is a queue.Store the CLI can release.
type queueStore interface {
	queue.Store
	Close() error
}

// openStore opens the configured backend and checks it is reachable.
func (o *RootOptions) openStore(ctx context.Context, cfg config.Config) (queueStore, error) {
	logger := o.Logger()

	switch cfg.Store.Driver {
	case config.DriverRedis:
		client := redisstore.NewClient(cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB)
		st := redisstore.New(client, redisstore.WithKey(cfg.Store.Redis.Key), redisstore.WithLogger(logger))
		if err := st.Ping(ctx); err != nil {
			client.Close()
			return nil, WrapExitError(ExitCommandError, "failed to reach redis", err)
		}
		return &redisQueue{Store: st, close: client.Close}, nil

	default:
		st := store.New(cfg.Store.Path, store.WithLogger(logger))
		if err := st.Open(ctx); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open queue database", err)
		}
		return st, nil
	}
}

// redisQueue owns the client behind a redisstore.Store.
type redisQueue struct {
	*redisstore.Store
	close func() error
}

func (r *redisQueue) Close() error { return r.close() }
