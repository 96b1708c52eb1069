package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/reefsync/internal/queue"
)

// ListEntry is one queued request in list output.
type ListEntry struct {
	ID        string            `json:"id"`
	Method    string            `json:"method"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers"`
	BodyBytes *int              `json:"body_bytes"`
	Timestamp int64             `json:"timestamp"`
}

// ListResult is the JSON payload of list.
type ListResult struct {
	Entries []ListEntry `json:"entries"`
	Total   int         `json:"total"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued requests in replay order",
		Long: `List every queued request, oldest first. Ties on enqueue time are
broken by request id, which is the order a flush replays them in.

Examples:
  reefsync list --db ./reefsync.db
  reefsync list --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), rootOpts, cmd)
		},
	}
	return cmd
}

func runList(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
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

	entries, err := st.ListAll(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list queue", err)
	}
	queue.Sort(entries)

	result := ListResult{Entries: make([]ListEntry, 0, len(entries)), Total: len(entries)}
	for _, e := range entries {
		le := ListEntry{
			ID:        e.ID,
			Method:    e.Method,
			URL:       e.URL,
			Headers:   e.Headers,
			Timestamp: e.Timestamp,
		}
		if e.Body != nil {
			n := len(e.Body)
			le.BodyBytes = &n
		}
		result.Entries = append(result.Entries, le)
	}

	f := opts.formatter(cmd)
	if f.IsJSON() {
		return f.Success(result)
	}

	w := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(w, "Queue is empty.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tENQUEUED\tMETHOD\tURL\tBODY")
	for _, e := range entries {
		body := "-"
		if e.Body != nil {
			body = printer.Sprintf("%d B", len(e.Body))
		}
		enqueued := e.EnqueuedAt().UTC().Format(time.RFC3339)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, enqueued, e.Method, e.URL, body)
	}
	tw.Flush()

	fmt.Fprintln(w)
	fmt.Fprintln(w, formatCount(len(entries), "request", "requests")+" queued")
	return nil
}
