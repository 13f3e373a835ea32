package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/webcanvas/internal/painter"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Addr    string
	Timeout time.Duration

	ready func(url string)
}

// ExportResult describes a produced image.
type ExportResult struct {
	Document string `json:"document"`
	Output   string `json:"output"`
	Verb     string `json:"verb"`
	Bytes    int64  `json:"bytes"`
}

// exportVerbs maps output extensions to viewer export commands.
var exportVerbs = map[string]string{
	".png":  painter.VerbPNG,
	".svg":  painter.VerbSVG,
	".jpg":  painter.VerbJPEG,
	".jpeg": painter.VerbJPEG,
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <document> <output>",
		Short: "Render a document to an image through a viewer",
		Long: `Serve a document, wait for a viewer to draw it and ask that viewer to
export the drawing. The image format follows the output extension
(.png, .svg, .jpg, .jpeg).

Exit codes:
  0 - image written
  1 - the viewer did not produce the image (refused, left or timed out)
  2 - command error (unreadable document, unsupported extension)

Examples:
  webcanvas export scene.yaml scene.png
  webcanvas export scene.cue out/scene.svg --timeout 2m`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runExport(ctx, opts, cmd, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", time.Minute, "how long to wait for a viewer to connect")

	return cmd
}

func runExport(ctx context.Context, opts *ExportOptions, cmd *cobra.Command, docPath, output string) error {
	verb, ok := exportVerbs[strings.ToLower(filepath.Ext(output))]
	if !ok {
		return unsupportedOutput(output)
	}

	cfg := opts.Config
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s, err := openSession(ctx, cfg, docPath, cancel)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.show(ctx, ""); err != nil {
		return err
	}

	f := newFormatter(cmd, opts.RootOptions)
	fmt.Fprintf(f.GetErrWriter(), "Open %s in a viewer to export %s\n", s.win.URL(), docPath)
	if opts.ready != nil {
		opts.ready(s.win.URL())
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, opts.Timeout)
	err = s.waitForViewer(waitCtx)
	cancelWait()
	if err != nil {
		return WrapExitError(ExitFailure, "no viewer connected", err)
	}
	f.VerboseLog("viewer connected, waiting for the first draw")

	if !s.painter.RequestUpdate(ctx, s.doc.Version(), true, nil) {
		return NewExitError(ExitFailure, "viewer did not draw the document")
	}

	f.VerboseLog("requesting %s export to %s", verb, output)
	if !s.painter.RequestCommand(ctx, verb, output, true, nil) {
		return NewExitError(ExitFailure, fmt.Sprintf("viewer did not export %s", output))
	}

	info, err := os.Stat(output)
	if err != nil {
		return WrapExitError(ExitFailure, "exported file missing", err)
	}

	result := ExportResult{
		Document: docPath,
		Output:   output,
		Verb:     verb,
		Bytes:    info.Size(),
	}
	if opts.Format == "json" {
		return writeJSON(cmd, CLIResponse{Status: "ok", Data: result, TraceID: s.traceID()})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %s (%s, %d bytes)\n", output, verb, info.Size())
	return nil
}

func unsupportedOutput(output string) *ExitError {
	return NewExitError(ExitCommandError,
		fmt.Sprintf("unsupported output %q: extension must be one of .png, .svg, .jpg, .jpeg", output))
}
