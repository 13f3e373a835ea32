package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/webcanvas/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string // optional - list sessions when empty
	Tag      string // optional - filter messages to one tag
}

// TraceResult holds the trace of one session.
type TraceResult struct {
	Session  store.Session         `json:"session"`
	Messages []store.MessageRecord `json:"messages"`
	Commands []store.CommandRecord `json:"commands"`
	Tags     []store.TagCount      `json:"tags"`
	Stats    TraceStats            `json:"stats"`
}

// TraceStats holds summary statistics for a session.
type TraceStats struct {
	Inbound   int `json:"inbound"`
	Outbound  int `json:"outbound"`
	Bytes     int `json:"bytes"`
	Succeeded int `json:"commands_succeeded"`
	Failed    int `json:"commands_failed"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show recorded protocol traffic",
		Long: `Read a trace database written by "serve --db" or "export" with
store.path configured.

Without --session the recorded sessions are listed. With --session the
session's messages, command outcomes and per-tag counts are shown.

Examples:
  webcanvas trace --db ./trace.db
  webcanvas trace --db ./trace.db --session 0192f1c2-...
  webcanvas trace --db ./trace.db --session 0192f1c2-... --tag SNAP: --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id to show")
	cmd.Flags().StringVar(&opts.Tag, "tag", "", "only show messages with this tag (e.g. SNAP:)")

	return cmd
}

func runTrace(ctx context.Context, opts *TraceOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	sessions, err := st.Sessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}

	if opts.Session == "" {
		if opts.Format == "json" {
			return writeJSON(cmd, CLIResponse{Status: "ok", Data: sessions})
		}
		return outputSessionsText(cmd.OutOrStdout(), sessions)
	}

	var sess *store.Session
	for i := range sessions {
		if sessions[i].ID == opts.Session {
			sess = &sessions[i]
			break
		}
	}
	if sess == nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", opts.Session))
	}

	result, err := buildTrace(ctx, st, *sess, opts.Tag)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd, CLIResponse{Status: "ok", Data: result, TraceID: sess.ID})
	}
	return outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
}

func buildTrace(ctx context.Context, st *store.Store, sess store.Session, tag string) (TraceResult, error) {
	messages, err := st.Messages(ctx, sess.ID)
	if err != nil {
		return TraceResult{}, err
	}
	commands, err := st.Commands(ctx, sess.ID)
	if err != nil {
		return TraceResult{}, err
	}
	tags, err := st.TagCounts(ctx, sess.ID)
	if err != nil {
		return TraceResult{}, err
	}

	var stats TraceStats
	for _, m := range messages {
		if m.Direction == "in" {
			stats.Inbound++
		} else {
			stats.Outbound++
		}
		stats.Bytes += m.Size
	}
	for _, c := range commands {
		if c.Outcome == "succeeded" {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
	}

	// stats cover the whole session; the filter only narrows the listing
	if tag != "" {
		filtered := []store.MessageRecord{}
		for _, m := range messages {
			if m.Tag == tag {
				filtered = append(filtered, m)
			}
		}
		messages = filtered
	}

	return TraceResult{
		Session:  sess,
		Messages: messages,
		Commands: commands,
		Tags:     tags,
		Stats:    stats,
	}, nil
}

func outputSessionsText(w io.Writer, sessions []store.Session) error {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions recorded")
		return nil
	}
	for _, s := range sessions {
		fmt.Fprintf(w, "%s  %s  %s  window=%s\n", s.ID, s.StartedAt, s.Document, truncateID(s.WindowKey))
	}
	return nil
}

func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	fmt.Fprintf(w, "Trace for Session: %s\n", result.Session.ID)
	fmt.Fprintf(w, "Document: %s\n", result.Session.Document)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Messages ===")
	if len(result.Messages) == 0 {
		fmt.Fprintln(w, "  (no messages)")
	}
	for _, m := range result.Messages {
		arrow := "<-"
		if m.Direction == "out" {
			arrow = "->"
		}
		fmt.Fprintf(w, "  [%d] conn %d %s %s", m.Seq, m.Conn, arrow, m.Tag)
		if verbose {
			fmt.Fprintf(w, " (%d bytes)", m.Size)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Commands ===")
	if len(result.Commands) == 0 {
		fmt.Fprintln(w, "  (no commands)")
	}
	for _, c := range result.Commands {
		fmt.Fprintf(w, "  [%d] #%d %s %s -> %s\n", c.Seq, c.CmdID, c.Verb, c.Arg, c.Outcome)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Inbound:   %d\n", result.Stats.Inbound)
	fmt.Fprintf(w, "  Outbound:  %d\n", result.Stats.Outbound)
	fmt.Fprintf(w, "  Bytes:     %d\n", result.Stats.Bytes)
	fmt.Fprintf(w, "  Commands:  %d succeeded, %d failed\n", result.Stats.Succeeded, result.Stats.Failed)
	if verbose {
		for _, tc := range result.Tags {
			fmt.Fprintf(w, "  %-3s %-10s %d\n", tc.Direction, tc.Tag, tc.Count)
		}
	}
	return nil
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
