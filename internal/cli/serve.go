package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/webcanvas/internal/painter"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr     string
	Database string
	Watch    bool
	Interval time.Duration

	// ready, when set, is called once the window is shown. Tests use it
	// to learn the viewer URL.
	ready func(url string)
}

// ServeResult summarizes a finished serve run.
type ServeResult struct {
	Document string        `json:"document"`
	URL      string        `json:"url"`
	Stats    painter.Stats `json:"stats"`
	Reason   string        `json:"reason"`
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve <document>",
		Short: "Serve a document to browser viewers",
		Long: `Serve a scene document (.yaml, .json or .cue) over websockets.

Viewers connect to the printed URL and receive the document snapshot.
With --watch the file is polled and every change is pushed to all
connected viewers. Serving stops on SIGINT/SIGTERM, when a viewer
sends QUIT or INTERRUPT.

Examples:
  webcanvas serve scene.yaml
  webcanvas serve scene.cue --addr 0.0.0.0:9000 --watch
  webcanvas serve scene.yaml --db ./trace.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the protocol trace to this SQLite database (overrides store.path)")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "reload and push the document when the file changes")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 500*time.Millisecond, "file poll interval for --watch")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions, cmd *cobra.Command, docPath string) error {
	cfg := opts.Config
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}
	if opts.Database != "" {
		cfg.Store.Path = opts.Database
	}
	if opts.Interval <= 0 {
		return NewExitError(ExitCommandError, "--interval must be positive")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	interrupted := false
	s, err := openSession(ctx, cfg, docPath, func() {
		interrupted = true
		cancel()
	})
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.show(ctx, ""); err != nil {
		return err
	}

	url := s.win.URL()
	if opts.Format == "text" {
		fmt.Fprintf(cmd.OutOrStdout(), "Serving %s\nViewer URL: %s\n", docPath, url)
	}
	if opts.ready != nil {
		opts.ready(url)
	}

	step := s.poll
	if opts.Watch {
		step = opts.Interval
	}

	reason, err := serveLoop(ctx, s, step, opts.Watch)
	if err != nil {
		return WrapExitError(ExitFailure, "serve stopped", err)
	}
	if interrupted {
		reason = "interrupted"
	}

	slog.Info("serve finished", "reason", reason, "document", docPath)

	result := ServeResult{
		Document: docPath,
		URL:      url,
		Stats:    s.painter.Stats(),
		Reason:   reason,
	}
	return writeServeResult(cmd, opts.RootOptions, result, s.traceID())
}

// serveLoop pumps viewer messages until the window manager terminates or
// ctx ends, and reports which one happened. Document edits made in
// between are published after every step.
func serveLoop(ctx context.Context, s *session, step time.Duration, watch bool) (string, error) {
	for {
		select {
		case <-s.mgr.Done():
			return "terminated", nil
		default:
		}

		err := s.painter.RunFor(ctx, step)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return "stopped", nil
		default:
			return "", err
		}

		if watch {
			s.reloadIfChanged(ctx)
		}
		s.publish(ctx)
	}
}

func writeServeResult(cmd *cobra.Command, opts *RootOptions, result ServeResult, traceID string) error {
	if opts.Format == "json" {
		return writeJSON(cmd, CLIResponse{Status: "ok", Data: result, TraceID: traceID})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Stopped (%s)\n", result.Reason)
	fmt.Fprintf(w, "  Delivered version: %d of %d\n", result.Stats.DeliveredVersion, result.Stats.CurrentVersion)
	fmt.Fprintf(w, "  Viewers at exit:   %d\n", result.Stats.Connections)
	if traceID != "" {
		fmt.Fprintf(w, "  Trace session:     %s\n", traceID)
	}
	return nil
}
