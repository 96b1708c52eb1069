package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// CountResult is the JSON payload of count.
type CountResult struct {
	Pending int `json:"pending"`
}

// NewCountCommand creates the count command.
func NewCountCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "count",
		Short:         "Print the number of queued requests",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCount(cmd.Context(), rootOpts, cmd)
		},
	}
}

func runCount(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	st, err := opts.openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.Count(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count queue", err)
	}

	f := opts.formatter(cmd)
	if f.IsJSON() {
		return f.Success(CountResult{Pending: n})
	}
	return f.Success(formatCount(n, "pending request", "pending requests"))
}
