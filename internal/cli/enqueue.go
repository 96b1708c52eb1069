package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/reefsync/internal/queue"
)

// EnqueueOptions holds flags for the enqueue command.
type EnqueueOptions struct {
	*RootOptions
	Headers  []string
	Body     string
	BodyFile string
}

// EnqueueResult is the JSON payload of enqueue.
type EnqueueResult struct {
	ID        string `json:"id"`
	Method    string `json:"method"`
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp"`
}

// NewEnqueueCommand creates the enqueue command.
func NewEnqueueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EnqueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "enqueue <method> <url>",
		Short: "Queue a write for later replay",
		Long: `Persist a mutating request (POST, PUT, PATCH or DELETE) in the queue.

Without --body or --body-file the request has no body.

Exit codes:
  0 - Request queued
  2 - Command error (invalid request, storage unavailable, etc.)

Examples:
  reefsync enqueue POST /api/tanks/1/parameters --body '{"ph":8.2}' -H Content-Type=application/json
  reefsync enqueue DELETE /api/tanks/1/livestock/7
  reefsync enqueue PUT /api/tanks/1 --body-file tank.json --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnqueue(cmd.Context(), opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Headers, "header", "H", nil, "request header as Name=Value (repeatable)")
	cmd.Flags().StringVar(&opts.Body, "body", "", "request body")
	cmd.Flags().StringVar(&opts.BodyFile, "body-file", "", "read request body from file")
	cmd.MarkFlagsMutuallyExclusive("body", "body-file")

	return cmd
}

func runEnqueue(ctx context.Context, opts *EnqueueOptions, method, url string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}

	headers, err := parseHeaders(opts.Headers)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid header", err)
	}

	var body []byte
	switch {
	case cmd.Flags().Changed("body"):
		body = []byte(opts.Body)
	case opts.BodyFile != "":
		body, err = os.ReadFile(opts.BodyFile)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read body file", err)
		}
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

	entry, err := st.Enqueue(ctx, queue.Request{URL: url, Method: method, Headers: headers, Body: body})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to enqueue request", err)
	}
	opts.Logger().Debug("request queued", "id", entry.ID, "method", entry.Method, "url", entry.URL)

	f := opts.formatter(cmd)
	if f.IsJSON() {
		return f.Success(EnqueueResult{
			ID:        entry.ID,
			Method:    entry.Method,
			URL:       entry.URL,
			Timestamp: entry.Timestamp,
		})
	}
	return f.Success(fmt.Sprintf("Queued %s %s as %s", entry.Method, entry.URL, entry.ID))
}

// parseHeaders turns Name=Value (or Name: Value) pairs into a map.
func parseHeaders(pairs []string) (map[string]string, error) {
	headers := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok {
			name, value, ok = strings.Cut(p, ":")
		}
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("expected Name=Value, got %q", p)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}
