package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// RemoveResult is the JSON payload of remove.
type RemoveResult struct {
	Removed []string `json:"removed"`
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>...",
		Short: "Discard queued requests",
		Long: `Remove queued requests by id without replaying them. Unknown ids are
ignored.

Examples:
  reefsync remove 0190c3e2-7d2a-7b8e-9c41-5a0f3e2d1c00
  reefsync list --format json | jq -r '.data.entries[].id' | xargs reefsync remove`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd.Context(), rootOpts, args, cmd)
		},
	}
}

func runRemove(ctx context.Context, opts *RootOptions, ids []string, cmd *cobra.Command) error {
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

	for _, id := range ids {
		if err := st.Remove(ctx, id); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to remove %s", id), err)
		}
		opts.Logger().Debug("queued request removed", "id", id)
	}

	f := opts.formatter(cmd)
	if f.IsJSON() {
		return f.Success(RemoveResult{Removed: ids})
	}
	return f.Success("Removed " + formatCount(len(ids), "request", "requests"))
}
