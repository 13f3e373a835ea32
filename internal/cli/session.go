package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/roach88/webcanvas/internal/config"
	"github.com/roach88/webcanvas/internal/document"
	"github.com/roach88/webcanvas/internal/painter"
	"github.com/roach88/webcanvas/internal/store"
	"github.com/roach88/webcanvas/internal/window"
)

// interruptFunc adapts a function to painter.Interrupter.
type interruptFunc func()

func (f interruptFunc) Interrupt() { f() }

// session wires one document file to one window through a painter.
type session struct {
	docPath string
	doc     *document.Document
	mgr     *window.Manager
	win     *window.Window
	painter *painter.Painter

	st  *store.Store
	rec *store.Recorder

	poll    time.Duration
	modTime time.Time

	// published is the last document version handed to the painter.
	published uint64
}

// openSession loads the document, creates its window and, when a trace
// database is configured, starts a trace session. Viewer INTERRUPT
// requests call interrupt.
func openSession(ctx context.Context, cfg config.Config, docPath string, interrupt func()) (*session, error) {
	doc, err := document.Load(docPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load document", err)
	}

	s := &session{docPath: docPath, doc: doc, poll: cfg.Painter.PollInterval}
	if s.poll <= 0 {
		s.poll = painter.DefaultPollInterval
	}
	if info, err := os.Stat(docPath); err == nil {
		s.modTime = info.ModTime()
	}

	s.mgr = window.NewManager(window.Options{
		Addr:            cfg.Server.Addr,
		SendQueue:       cfg.Window.SendQueue,
		MaxMessageBytes: cfg.Window.MaxMessageBytes,
		PingInterval:    cfg.Window.PingInterval,
	})
	s.win = s.mgr.NewWindow()

	opts := []painter.Option{
		painter.WithPollInterval(cfg.Painter.PollInterval),
		painter.WithUpdateTimeout(cfg.Painter.UpdateTimeout),
		painter.WithCommandTimeout(cfg.Painter.CommandTimeout),
	}
	if interrupt != nil {
		opts = append(opts, painter.WithInterrupter(interruptFunc(interrupt)))
	}

	if cfg.Store.Path != "" {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open trace database", err)
		}
		// the trace outlives cancellation of the serving context
		rec, err := st.BeginSession(context.WithoutCancel(ctx), docPath, s.win.Key())
		if err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, "failed to start trace session", err)
		}
		s.st, s.rec = st, rec
		opts = append(opts, painter.WithRecorder(rec))
	}

	s.painter = painter.New(s.win, doc, opts...)
	return s, nil
}

// show starts serving and publishes the loaded document version.
func (s *session) show(ctx context.Context, addr string) error {
	if err := s.painter.Show(addr); err != nil {
		return WrapExitError(ExitCommandError, "failed to show window", err)
	}
	s.publish(ctx)
	return nil
}

// publish pushes the document to viewers, without waiting, when its
// version moved past the last one published. Edits applied by viewer
// OBJEXEC requests and file reloads both advance the version.
func (s *session) publish(ctx context.Context) {
	version := s.doc.Version()
	if version <= s.published {
		return
	}
	s.published = version
	s.painter.RequestUpdate(ctx, version, false, nil)
}

// traceID returns the trace session id, or "" without a trace database.
func (s *session) traceID() string {
	if s.rec == nil {
		return ""
	}
	return s.rec.Session().ID
}

// reloadIfChanged re-reads the document when its modification time moved
// and pushes the new version to viewers without waiting.
func (s *session) reloadIfChanged(ctx context.Context) {
	info, err := os.Stat(s.docPath)
	if err != nil {
		slog.Warn("stat document", "path", s.docPath, "error", err)
		return
	}
	if info.ModTime().Equal(s.modTime) {
		return
	}
	s.modTime = info.ModTime()

	if err := s.doc.Reload(s.docPath); err != nil {
		slog.Error("reload document, keeping previous version", "path", s.docPath, "error", err)
		return
	}

	slog.Info("document reloaded", "path", s.docPath, "version", s.doc.Version())
	s.publish(ctx)
}

// waitForViewer pumps until at least one viewer is connected.
func (s *session) waitForViewer(ctx context.Context) error {
	for s.painter.Stats().Connections == 0 {
		if err := s.painter.RunFor(ctx, s.poll); err != nil {
			return fmt.Errorf("wait for viewer: %w", err)
		}
	}
	return nil
}

// close fails whatever is still pending, stops the server and closes the
// trace database.
func (s *session) close() {
	s.painter.Close()
	s.win.Terminate()
	if s.st != nil {
		if err := s.st.Close(); err != nil {
			slog.Warn("close trace database", "error", err)
		}
	}
}
